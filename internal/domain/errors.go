package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidRequest            = errors.New("invalid request")
	ErrProviderRejected          = errors.New("provider rejected request")
	ErrProviderUnavailable       = errors.New("provider unavailable")
	ErrRateLimited               = errors.New("rate limited")
	ErrMalformedProviderResponse = errors.New("malformed provider response")
	ErrStorageUnavailable        = errors.New("storage unavailable")
	ErrArtifactNotFound          = errors.New("artifact not found")
	ErrJobNotFound               = errors.New("job not found")
	ErrCredentialConfiguration   = errors.New("credential configuration invalid")
)

// RateLimitError carries the provider-suggested retry delay, when one was
// supplied. It matches ErrRateLimited under errors.Is so callers can branch
// on the class without caring about the delay.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
	}
	return "rate limited"
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// IsRetryable reports whether the error belongs to a transient class that a
// caller owning a retry budget may retry with backoff.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrProviderUnavailable) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrStorageUnavailable)
}
