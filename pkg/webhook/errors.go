package webhook

import (
	"errors"
	"fmt"
)

var (
	// ErrProviderNotFound is returned when no adapter is registered under a name.
	ErrProviderNotFound = errors.New("provider not found")
	// ErrUnknownEvent is returned when an adapter is built with an event its catalog lacks.
	ErrUnknownEvent = errors.New("unknown event")
	// ErrMalformedPayload is returned when a body cannot be decoded into an event.
	ErrMalformedPayload = errors.New("malformed payload")
	// ErrUnclassifiedEvent is returned when no event definition matches a payload.
	ErrUnclassifiedEvent = errors.New("event not classified")
	// ErrAmbiguousEvent is returned in strict mode when several definitions match.
	ErrAmbiguousEvent = errors.New("event is ambiguous")
	// ErrUpstreamRegistration marks a failed remote registration call.
	ErrUpstreamRegistration = errors.New("upstream registration failed")
)

// UpstreamError carries the provider response of a failed registration call.
type UpstreamError struct {
	Provider   string
	StatusCode int
	Body       string
	Err        error
}

func (e *UpstreamError) Error() string {
	msg := fmt.Sprintf("%s webhook registration failed", e.Provider)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s: status %d", msg, e.StatusCode)
	}
	if e.Body != "" {
		msg = fmt.Sprintf("%s body=%s", msg, e.Body)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap exposes both the sentinel and the transport error, if any.
func (e *UpstreamError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrUpstreamRegistration}
	}
	return []error{ErrUpstreamRegistration, e.Err}
}
