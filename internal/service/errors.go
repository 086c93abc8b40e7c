package service

import (
	"errors"
	"fmt"

	"zentrust-donations/internal/client"
)

type ErrorKind string

const (
	KindValidation       ErrorKind = "validation"        // client's fault
	KindConfiguration    ErrorKind = "configuration"     // operator's fault
	KindProvider         ErrorKind = "provider"          // payment provider failed
	KindProviderRejected ErrorKind = "provider_rejected" // payment provider refused the request
	KindSignature        ErrorKind = "signature"
	KindConflict         ErrorKind = "conflict"
	KindNotFound         ErrorKind = "not_found"
	KindInternal         ErrorKind = "internal"
)

// Error is the only error type the service returns to handlers. Message is
// safe to show to the browser; Err is for logs only.
type Error struct {
	Kind    ErrorKind
	Message string
	Fields  map[string]string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// AsError extracts a service error, if err carries one.
func AsError(err error) (*Error, bool) {
	var se *Error
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

func validationError(fields map[string]string) *Error {
	return &Error{
		Kind:    KindValidation,
		Message: "Invalid donation request.",
		Fields:  fields,
	}
}

func internalError(msg string, err error) *Error {
	return &Error{Kind: KindInternal, Message: msg, Err: err}
}

// fromProviderError maps provider failures onto the error taxonomy without
// leaking provider messages.
func fromProviderError(err error) *Error {
	switch {
	case errors.Is(err, client.ErrProviderAuth):
		return &Error{Kind: KindConfiguration, Message: "Payment configuration error.", Err: err}
	case errors.Is(err, client.ErrProviderInvalidRequest):
		return &Error{Kind: KindProviderRejected, Message: "Payment request rejected.", Err: err}
	default:
		return &Error{Kind: KindProvider, Message: "Unable to prepare payment.", Err: err}
	}
}
