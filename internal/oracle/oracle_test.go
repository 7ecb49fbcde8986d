package oracle

import (
	"context"
	"net/http"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/ahermangesh/Leads/internal/model"
	"github.com/ahermangesh/Leads/internal/resilience"
	"github.com/ahermangesh/Leads/pkg/anthropic"
	"github.com/ahermangesh/Leads/pkg/gemini"
)

type mockAnthropic struct{ mock.Mock }

func (m *mockAnthropic) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

type mockGemini struct{ mock.Mock }

func (m *mockGemini) Generate(ctx context.Context, req gemini.Request) (*gemini.Response, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gemini.Response), args.Error(1)
}

func TestAnthropic_Generate(t *testing.T) {
	client := &mockAnthropic{}
	client.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return req.Model == "claude-haiku-4-5-20251001" &&
			req.System == "sys" &&
			req.MaxTokens == 1024 &&
			req.Temperature != nil && *req.Temperature == 0.3 &&
			len(req.Messages) == 1 && req.Messages[0].Content == "prompt"
	})).Return(&anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: "hello"}},
	}, nil)

	o := NewAnthropic(client, "claude-haiku-4-5-20251001")
	out, err := o.Generate(context.Background(), "prompt", Config{System: "sys", Temperature: 0.3})
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
	client.AssertExpectations(t)
}

func TestAnthropic_EmptyIsMalformed(t *testing.T) {
	client := &mockAnthropic{}
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(&anthropic.MessageResponse{Content: []anthropic.ContentBlock{{Type: "text", Text: "  "}}}, nil)

	_, err := NewAnthropic(client, "m").Generate(context.Background(), "p", Config{})
	require.Error(t, err)
	assert.True(t, resilience.IsMalformed(err))
}

func TestAnthropic_PlainErrorPassesThrough(t *testing.T) {
	client := &mockAnthropic{}
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(nil, eris.New("boom"))

	_, err := NewAnthropic(client, "m").Generate(context.Background(), "p", Config{})
	require.Error(t, err)
	assert.False(t, resilience.IsTransient(err))
	assert.False(t, resilience.IsPermanent(err))
}

func TestGemini_Generate(t *testing.T) {
	client := &mockGemini{}
	client.On("Generate", mock.Anything, mock.MatchedBy(func(req gemini.Request) bool {
		return req.JSON && req.Prompt == "p" && req.MaxTokens == 256
	})).Return(&gemini.Response{Text: `{"a":1}`}, nil)

	out, err := NewGemini(client).Generate(context.Background(), "p", Config{JSON: true, MaxTokens: 256})
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, out)
}

func TestOracle_ReportsUsage(t *testing.T) {
	ac := &mockAnthropic{}
	ac.On("CreateMessage", mock.Anything, mock.Anything).Return(&anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: "hi"}},
		Usage:   anthropic.TokenUsage{InputTokens: 120, OutputTokens: 30},
	}, nil)
	gc := &mockGemini{}
	gc.On("Generate", mock.Anything, mock.Anything).
		Return(&gemini.Response{Text: "hi", Model: "gemini-2.5-flash", InputTokens: 50, OutputTokens: 5}, nil)

	var got []Usage
	record := func(u Usage) { got = append(got, u) }

	_, err := NewAnthropic(ac, "claude-haiku-4-5-20251001").WithUsage(record).Generate(context.Background(), "p", Config{})
	require.NoError(t, err)
	_, err = NewGemini(gc).WithUsage(record).Generate(context.Background(), "p", Config{})
	require.NoError(t, err)

	assert.Equal(t, []Usage{
		{Provider: "anthropic", Model: "claude-haiku-4-5-20251001", InputTokens: 120, OutputTokens: 30},
		{Provider: "gemini", Model: "gemini-2.5-flash", InputTokens: 50, OutputTokens: 5},
	}, got)
}

func TestGemini_ClassifiesAPIErrors(t *testing.T) {
	tests := []struct {
		code      int
		transient bool
		reason    model.ReasonCode
	}{
		{http.StatusTooManyRequests, true, ""},
		{http.StatusInternalServerError, true, ""},
		{http.StatusUnauthorized, false, model.ReasonAuthFailed},
		{http.StatusBadRequest, false, model.ReasonInvalidConfig},
	}
	for _, tt := range tests {
		client := &mockGemini{}
		client.On("Generate", mock.Anything, mock.Anything).
			Return(nil, eris.Wrap(genai.APIError{Code: tt.code, Message: "x"}, "gemini: generate content"))

		_, err := NewGemini(client).Generate(context.Background(), "p", Config{})
		require.Error(t, err)
		assert.Equal(t, tt.transient, resilience.IsTransient(err), tt.code)
		code, _ := resilience.PermanentCode(err)
		assert.Equal(t, tt.reason, code, tt.code)
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"prose", `Sure! {"a":{"b":2}} Hope that helps.`, `{"a":{"b":2}}`},
		{"no object", "nothing here", "nothing here"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractJSON(tt.in))
		})
	}
}
