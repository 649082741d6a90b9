package llm

import (
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go/v2"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/jonathan/tender-radar/internal/retry"
)

// APIError represents a failed provider call.
type APIError struct {
	Provider Provider
	Message  string
	Cause    error
}

func (e *APIError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s API error: %s: %v", e.Provider, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s API error: %s", e.Provider, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Cause
}

// StatusCode extracts the HTTP status from the provider error, or 0 when unknown.
func (e *APIError) StatusCode() int {
	var oe *openai.Error
	if errors.As(e.Cause, &oe) {
		return oe.StatusCode
	}
	var ae *anthropic.Error
	if errors.As(e.Cause, &ae) {
		return ae.StatusCode
	}
	var ge *googleapi.Error
	if errors.As(e.Cause, &ge) {
		return ge.Code
	}
	return 0
}

// Retryable reports whether the call may succeed if repeated: rate limiting,
// server errors and timeouts.
func (e *APIError) Retryable() bool {
	if code := e.StatusCode(); code != 0 {
		return retry.StatusRetryable(code)
	}
	if s, ok := status.FromError(e.Cause); ok && s.Code() != codes.Unknown {
		switch s.Code() {
		case codes.ResourceExhausted, codes.Unavailable, codes.DeadlineExceeded, codes.Internal:
			return true
		}
		return false
	}
	return e.Cause != nil && retry.DefaultIsRetryable(e.Cause)
}
