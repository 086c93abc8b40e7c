package client

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/stripe/stripe-go/v82"
)

var (
	ErrProviderAuth           = errors.New("payment provider rejected credentials")
	ErrProviderInvalidRequest = errors.New("payment provider rejected request")
	ErrProviderRateLimited    = errors.New("payment provider rate limited")
	ErrProviderUnavailable    = errors.New("payment provider unavailable")
	ErrMissingClientSecret    = errors.New("payment provider returned no client secret")
	ErrInvalidSignature       = errors.New("invalid webhook signature")
)

// ProviderError carries diagnostic detail for logs. Kind is one of the
// sentinel errors above and is what callers branch on.
type ProviderError struct {
	Op         string
	Kind       error
	StatusCode int
	Code       string
	RequestID  string
	Err        error
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Op, e.Kind)
	if e.Code != "" {
		msg += fmt.Sprintf(" (code=%s)", e.Code)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProviderError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func classifyError(op string, err error) error {
	var se *stripe.Error
	if !errors.As(err, &se) {
		// network failure, timeout, cancelled context
		return &ProviderError{Op: op, Kind: ErrProviderUnavailable, Err: err}
	}

	pe := &ProviderError{
		Op:         op,
		StatusCode: se.HTTPStatusCode,
		Code:       string(se.Code),
		RequestID:  se.RequestID,
		Err:        err,
	}

	switch {
	case se.HTTPStatusCode == http.StatusUnauthorized || se.HTTPStatusCode == http.StatusForbidden:
		pe.Kind = ErrProviderAuth
	case se.HTTPStatusCode == http.StatusTooManyRequests:
		pe.Kind = ErrProviderRateLimited
	case se.HTTPStatusCode >= 400 && se.HTTPStatusCode < 500:
		pe.Kind = ErrProviderInvalidRequest
	default:
		pe.Kind = ErrProviderUnavailable
	}

	return pe
}
