package reso

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrMissingCredential is returned at construction time when a provider
	// has no API key configured. No request is ever issued without one.
	ErrMissingCredential = errors.New("missing api credential")

	// ErrAuthentication is returned on HTTP 401. Never retried.
	ErrAuthentication = errors.New("authentication rejected")

	// ErrResponseFormat is returned when a 200 body is not the JSON shape
	// the provider is documented to send.
	ErrResponseFormat = errors.New("unexpected response format")

	// ErrProviderNotConfigured is returned by the registry for providers
	// without credentials.
	ErrProviderNotConfigured = errors.New("provider not configured")

	// ErrNotRESOCompliant guards OData-only operations (replication, media,
	// member search) on providers that speak their own dialect.
	ErrNotRESOCompliant = errors.New("provider is not reso compliant")
)

// RateLimitError reports a 429 that survived every retry.
type RateLimitError struct {
	Provider   string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: rate limited, retry after %s", e.Provider, e.RetryAfter)
}

// RequestError reports a request that failed after exhausting retries.
// Status is zero for transport-level failures; Body holds a snippet of the
// last response for diagnostics.
type RequestError struct {
	Provider string
	Status   int
	Body     string
	Err      error
}

func (e *RequestError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s: request failed: %v", e.Provider, e.Err)
	}
	if e.Body == "" {
		return fmt.Sprintf("%s: request failed: status %d", e.Provider, e.Status)
	}
	return fmt.Sprintf("%s: request failed: status %d: %s", e.Provider, e.Status, e.Body)
}

func (e *RequestError) Unwrap() error { return e.Err }
