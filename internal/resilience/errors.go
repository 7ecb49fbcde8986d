package resilience

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"

	"github.com/ahermangesh/Leads/internal/model"
)

// ErrMalformed marks oracle output that could not be parsed into the
// expected structure. It is retried by callers that opt in.
var ErrMalformed = eris.New("malformed output")

// TransientError wraps an error that is safe to retry (429, 5xx, timeouts).
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps an error as transient with an optional HTTP status code.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// PermanentError wraps an error that must not be retried (bad credentials,
// invalid configuration).
type PermanentError struct {
	Err  error
	Code model.ReasonCode
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// NewPermanentError wraps an error as permanent with a reason code.
func NewPermanentError(err error, code model.ReasonCode) *PermanentError {
	return &PermanentError{Err: err, Code: code}
}

// PartialKind names the kind of missing data behind a PartialDataError.
type PartialKind string

const (
	PartialNoContact        PartialKind = "no_contact"
	PartialDegradedResearch PartialKind = "degraded_research"
	PartialNoWebsite        PartialKind = "no_website"
)

// PartialDataError reports missing data that lowers a lead's score without
// failing it.
type PartialDataError struct {
	Err  error
	Kind PartialKind
}

func (e *PartialDataError) Error() string {
	return e.Err.Error()
}

func (e *PartialDataError) Unwrap() error {
	return e.Err
}

// NewPartialDataError wraps err as non-fatal missing data of the given kind.
func NewPartialDataError(err error, kind PartialKind) *PartialDataError {
	return &PartialDataError{Err: err, Kind: kind}
}

// IsPermanent returns true if a PermanentError is in the chain.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// IsPartial returns true if a PartialDataError is in the chain.
func IsPartial(err error) bool {
	var pd *PartialDataError
	return errors.As(err, &pd)
}

// IsMalformed returns true if err wraps ErrMalformed.
func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformed)
}

// IsTransient returns true if the error (or any error in its chain) is a
// TransientError, or if it matches common transient error patterns (network
// timeouts, connection resets, DNS failures). A PermanentError anywhere in
// the chain is never transient.
func IsTransient(err error) bool {
	if err == nil || IsPermanent(err) {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
		"transport connection broken",
	}
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// IsTransientHTTPStatus returns true if the HTTP status code indicates a
// transient server-side issue that is safe to retry.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, // Request Timeout
		429, // Too Many Requests
		500, // Internal Server Error
		502, // Bad Gateway
		503, // Service Unavailable
		504: // Gateway Timeout
		return true
	default:
		return false
	}
}

// ClassifyHTTPStatus wraps err according to an HTTP status code: transient
// for throttling and server errors, permanent auth_failed for 401/403, and
// permanent invalid_config for other 4xx responses.
func ClassifyHTTPStatus(err error, statusCode int) error {
	switch {
	case IsTransientHTTPStatus(statusCode):
		return NewTransientError(err, statusCode)
	case statusCode == 401 || statusCode == 403:
		return NewPermanentError(err, model.ReasonAuthFailed)
	case statusCode >= 400 && statusCode < 500:
		return NewPermanentError(err, model.ReasonInvalidConfig)
	default:
		return err
	}
}

// PermanentCode returns the reason code of a PermanentError in the chain.
func PermanentCode(err error) (model.ReasonCode, bool) {
	var pe *PermanentError
	if errors.As(err, &pe) {
		return pe.Code, true
	}
	return model.ReasonNone, false
}

// Classify maps an error to the reason code and retryability recorded on a
// failed lead. stageCode is the code used for transient failures of the
// calling stage (fetch_failed, oracle_unavailable, send_failed).
func Classify(err error, stageCode model.ReasonCode) (model.ReasonCode, bool) {
	switch {
	case err == nil:
		return model.ReasonNone, false
	case errors.Is(err, context.Canceled):
		return model.ReasonCancelled, true
	case IsPermanent(err):
		code, _ := PermanentCode(err)
		return code, false
	case IsTransient(err):
		return stageCode, true
	case IsMalformed(err):
		return model.ReasonMalformedOutput, false
	default:
		return model.ReasonInternal, false
	}
}
