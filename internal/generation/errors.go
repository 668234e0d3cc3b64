package generation

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sashabaranov/go-openai"
)

// Reason says why a generation call failed, for user-facing messages.
type Reason string

const (
	ReasonAuth      Reason = "auth"
	ReasonQuota     Reason = "quota"
	ReasonNetwork   Reason = "network"
	ReasonMalformed Reason = "malformed"
	ReasonTimeout   Reason = "timeout"
)

var (
	// ErrGenerationFailed matches every *Error.
	ErrGenerationFailed = errors.New("generation failed")

	// ErrTimeout matches an *Error whose attempt ran out of time.
	ErrTimeout = errors.New("generation timed out")

	errNoKey = errors.New("no API key configured")
)

type Error struct {
	Reason Reason
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("generation failed (%s): %v", e.Reason, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	switch target {
	case ErrGenerationFailed:
		return true
	case ErrTimeout:
		return e.Reason == ReasonTimeout
	}
	return false
}

func (e *Error) retryable() bool {
	if errors.Is(e.Err, context.Canceled) {
		return false
	}
	return e.Reason == ReasonNetwork || e.Reason == ReasonTimeout
}

// classify maps a transport or API error onto a Reason.
func classify(err error) *Error {
	var gerr *Error
	if errors.As(err, &gerr) {
		return gerr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Reason: ReasonTimeout, Err: err}
	}

	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		if apiErr.Code == "insufficient_quota" || apiErr.Type == "insufficient_quota" {
			return &Error{Reason: ReasonQuota, Err: err}
		}
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &Error{Reason: ReasonAuth, Err: err}
	case status == http.StatusTooManyRequests:
		return &Error{Reason: ReasonQuota, Err: err}
	case status >= 500:
		return &Error{Reason: ReasonNetwork, Err: err}
	case status >= 400:
		return &Error{Reason: ReasonMalformed, Err: err}
	}
	return &Error{Reason: ReasonNetwork, Err: err}
}
