// Package oracle adapts text-generation backends to the single Generate
// contract used by research and drafting.
package oracle

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/ahermangesh/Leads/internal/resilience"
	"github.com/ahermangesh/Leads/pkg/anthropic"
	"github.com/ahermangesh/Leads/pkg/gemini"
)

// Config tunes a single generation call.
type Config struct {
	System      string
	MaxTokens   int64
	Temperature float64
	// JSON requests a structured JSON response where the backend supports it.
	JSON bool
}

// Oracle generates text for a prompt. Errors are classified: throttling and
// server failures are TransientError, credential and request errors are
// PermanentError, and empty output wraps resilience.ErrMalformed.
type Oracle interface {
	Generate(ctx context.Context, prompt string, cfg Config) (string, error)
}

// Usage is the token consumption of one successful generation call.
type Usage struct {
	Provider     string
	Model        string
	InputTokens  int64
	OutputTokens int64
}

// UsageFunc receives the usage of each call. It must not block.
type UsageFunc func(Usage)

// Anthropic is an Oracle backed by the Messages API.
type Anthropic struct {
	client  anthropic.Client
	model   string
	onUsage UsageFunc
}

// NewAnthropic creates an Anthropic-backed oracle.
func NewAnthropic(client anthropic.Client, model string) *Anthropic {
	return &Anthropic{client: client, model: model}
}

// WithUsage registers fn to receive the usage of every call.
func (a *Anthropic) WithUsage(fn UsageFunc) *Anthropic {
	a.onUsage = fn
	return a
}

// Generate implements Oracle.
func (a *Anthropic) Generate(ctx context.Context, prompt string, cfg Config) (string, error) {
	req := anthropic.MessageRequest{
		Model:     a.model,
		MaxTokens: cfg.MaxTokens,
		System:    cfg.System,
		Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = 1024
	}
	if cfg.Temperature > 0 {
		t := cfg.Temperature
		req.Temperature = &t
	}

	resp, err := a.client.CreateMessage(ctx, req)
	if err != nil {
		return "", classify(err, anthropic.StatusCode(err))
	}
	resp.Usage.LogUsage(a.model, "oracle")
	if a.onUsage != nil {
		a.onUsage(Usage{
			Provider:     "anthropic",
			Model:        a.model,
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
		})
	}
	return nonEmpty(resp.Text())
}

// Gemini is an Oracle backed by the Gemini API.
type Gemini struct {
	client  gemini.Client
	onUsage UsageFunc
}

// NewGemini creates a Gemini-backed oracle.
func NewGemini(client gemini.Client) *Gemini {
	return &Gemini{client: client}
}

// WithUsage registers fn to receive the usage of every call.
func (g *Gemini) WithUsage(fn UsageFunc) *Gemini {
	g.onUsage = fn
	return g
}

// Generate implements Oracle.
func (g *Gemini) Generate(ctx context.Context, prompt string, cfg Config) (string, error) {
	req := gemini.Request{
		System:    cfg.System,
		Prompt:    prompt,
		MaxTokens: int32(cfg.MaxTokens),
		JSON:      cfg.JSON,
	}
	if cfg.Temperature > 0 {
		t := float32(cfg.Temperature)
		req.Temperature = &t
	}

	resp, err := g.client.Generate(ctx, req)
	if err != nil {
		return "", classify(err, gemini.StatusCode(err))
	}
	if g.onUsage != nil {
		g.onUsage(Usage{
			Provider:     "gemini",
			Model:        resp.Model,
			InputTokens:  resp.InputTokens,
			OutputTokens: resp.OutputTokens,
		})
	}
	return nonEmpty(resp.Text)
}

func classify(err error, status int) error {
	if status != 0 {
		return resilience.ClassifyHTTPStatus(err, status)
	}
	return err
}

func nonEmpty(text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", eris.Wrap(resilience.ErrMalformed, "oracle: empty response")
	}
	return text, nil
}

// ExtractJSON pulls the outer JSON object out of model output that may be
// wrapped in markdown fences or surrounding prose.
func ExtractJSON(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(strings.TrimPrefix(text, "```json"), "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}
