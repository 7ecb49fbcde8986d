// Package resend provides a minimal client for the Resend email API.
package resend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
)

// Client defines the Resend operations used for delivery.
type Client interface {
	// SendEmail submits one message and returns the provider message id.
	SendEmail(ctx context.Context, req SendRequest) (*SendResponse, error)
}

// SendRequest is the POST /emails payload.
type SendRequest struct {
	From    string            `json:"from"`
	To      []string          `json:"to"`
	Subject string            `json:"subject"`
	Text    string            `json:"text"`
	ReplyTo string            `json:"reply_to,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Tags    []Tag             `json:"tags,omitempty"`
}

// Tag is a name/value pair attached to a message for analytics.
type Tag struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// SendResponse is returned for an accepted message.
type SendResponse struct {
	ID string `json:"id"`
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Name       string
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("resend: status %d (%s): %s", e.StatusCode, e.Name, e.Message)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		if url != "" {
			c.baseURL = url
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a Resend client. It does not retry.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: "https://api.resend.com",
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) SendEmail(ctx context.Context, sr SendRequest) (*SendResponse, error) {
	payload, err := json.Marshal(sr)
	if err != nil {
		return nil, eris.Wrap(err, "resend: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/emails", bytes.NewReader(payload))
	if err != nil {
		return nil, eris.Wrap(err, "resend: create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "resend: request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, eris.Wrap(err, "resend: read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := &StatusError{StatusCode: resp.StatusCode}
		var apiErr struct {
			Name    string `json:"name"`
			Message string `json:"message"`
		}
		if json.Unmarshal(body, &apiErr) == nil {
			se.Name, se.Message = apiErr.Name, apiErr.Message
		}
		if se.Message == "" {
			se.Message = string(body)
		}
		return nil, se
	}

	var out SendResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, eris.Wrap(err, "resend: unmarshal response")
	}
	if out.ID == "" {
		return nil, eris.New("resend: response missing message id")
	}
	return &out, nil
}
