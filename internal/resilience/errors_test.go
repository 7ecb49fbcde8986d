package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"

	"github.com/ahermangesh/Leads/internal/model"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"explicit", NewTransientError(errors.New("overloaded"), 503), true},
		{"wrapped", fmt.Errorf("call: %w", NewTransientError(errors.New("rate limited"), 429)), true},
		{"eris wrapped", eris.Wrap(NewTransientError(errors.New("rate limited"), 429), "oracle"), true},
		{"plain", errors.New("invalid input"), false},
		{"conn reset", fmt.Errorf("write: %w", syscall.ECONNRESET), true},
		{"conn refused", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), true},
		{"dns timeout", &net.DNSError{IsTimeout: true, Err: "timeout"}, true},
		{"deadline", fmt.Errorf("fetch: %w", context.DeadlineExceeded), true},
		{"pattern", errors.New("read tcp: i/o timeout"), true},
		{"permanent wins", NewPermanentError(NewTransientError(errors.New("x"), 500), model.ReasonAuthFailed), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestClassifyHTTPStatus(t *testing.T) {
	base := errors.New("http error")

	assert.True(t, IsTransient(ClassifyHTTPStatus(base, 429)))
	assert.True(t, IsTransient(ClassifyHTTPStatus(base, 503)))

	code, ok := PermanentCode(ClassifyHTTPStatus(base, 401))
	assert.True(t, ok)
	assert.Equal(t, model.ReasonAuthFailed, code)

	code, ok = PermanentCode(ClassifyHTTPStatus(base, 422))
	assert.True(t, ok)
	assert.Equal(t, model.ReasonInvalidConfig, code)

	assert.Equal(t, base, ClassifyHTTPStatus(base, 302))
}

func TestPartialAndMalformed(t *testing.T) {
	pd := NewPartialDataError(errors.New("no contacts"), PartialNoContact)
	assert.True(t, IsPartial(fmt.Errorf("resolve: %w", pd)))
	assert.False(t, IsTransient(pd))

	assert.True(t, IsMalformed(eris.Wrap(ErrMalformed, "research: parse")))
	assert.False(t, IsMalformed(errors.New("other")))
}

func TestErrorUnwrap(t *testing.T) {
	inner := errors.New("root cause")
	assert.ErrorIs(t, NewTransientError(inner, 500), inner)
	assert.ErrorIs(t, NewPermanentError(inner, model.ReasonInvalidConfig), inner)
	assert.ErrorIs(t, NewPartialDataError(inner, PartialNoWebsite), inner)
	assert.Equal(t, "root cause", NewPermanentError(inner, model.ReasonAuthFailed).Error())
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		code      model.ReasonCode
		retryable bool
	}{
		{"nil", nil, model.ReasonNone, false},
		{"transient", NewTransientError(eris.New("503"), 503), model.ReasonOracleUnavailable, true},
		{"permanent", NewPermanentError(eris.New("401"), model.ReasonAuthFailed), model.ReasonAuthFailed, false},
		{"cancelled", eris.Wrap(context.Canceled, "stop"), model.ReasonCancelled, true},
		{"malformed", eris.Wrap(ErrMalformed, "parse"), model.ReasonMalformedOutput, false},
		{"unknown", eris.New("boom"), model.ReasonInternal, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, retryable := Classify(tt.err, model.ReasonOracleUnavailable)
			assert.Equal(t, tt.code, code)
			assert.Equal(t, tt.retryable, retryable)
		})
	}
}
