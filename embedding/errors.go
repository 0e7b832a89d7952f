package embedding

import (
	"context"
	"errors"
	"net"
	"strings"
)

var (
	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrInvalidMaxAttempts indicates a non-positive retry ceiling.
	ErrInvalidMaxAttempts = errors.New("max attempts must be positive")

	// ErrResultMismatch indicates the provider returned a different number
	// of vectors than texts submitted.
	ErrResultMismatch = errors.New("embedding result count mismatch")

	// ErrTransient marks an error as retriable when wrapped.
	ErrTransient = errors.New("transient embedding failure")

	// ErrPermanent marks an error as non-retriable when wrapped.
	ErrPermanent = errors.New("permanent embedding failure")
)

// IsTransient classifies an embedding provider error as retriable or not.
//
// Explicit wrapping with ErrTransient or ErrPermanent wins. Context
// cancellation is never retriable. Network timeouts, rate limiting, and
// service unavailability are transient; authentication and input errors
// are permanent. Unknown errors default to transient; the retry ceiling
// bounds a wrong guess.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrPermanent) {
		return false
	}
	if errors.Is(err, ErrTransient) {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"401", "403", "unauthorized", "forbidden", "invalid api key", "invalid input", "bad request", "400"} {
		if strings.Contains(msg, marker) {
			return false
		}
	}
	for _, marker := range []string{"429", "rate limit", "timeout", "timed out", "connection refused", "connection reset", "unavailable", "502", "503", "504"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}

	return true
}
