package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	// ErrEmptyResponse indicates a provider returned a well-formed response
	// with no usable text.
	ErrEmptyResponse = errors.New("empty response from provider")

	// ErrNoActionFound indicates the model output contained no action
	// envelope at all.
	ErrNoActionFound = errors.New("no action envelope found")
)

// HTTPError is a non-2xx provider response. 5xx and 429 are retryable,
// everything else fails the turn immediately.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("provider returned status %d", e.StatusCode)
}

func (e *HTTPError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}

// SchemaError is a recoverable protocol failure: an envelope was found but
// its parameters did not validate. The orchestration loop applies fallback
// policy instead of surfacing this to the approval layer.
type SchemaError struct {
	Action string
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("action %q failed validation: %s", e.Action, e.Reason)
}

// IsRecoverable reports whether the error is a protocol failure the
// orchestration loop may substitute a fallback proposal for.
func IsRecoverable(err error) bool {
	var schemaErr *SchemaError
	return errors.Is(err, ErrNoActionFound) || errors.As(err, &schemaErr)
}

// IsRetryable reports whether a provider call failure is worth retrying.
func IsRetryable(err error) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Retryable()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}
