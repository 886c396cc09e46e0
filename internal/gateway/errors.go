package gateway

import (
	"errors"
	"fmt"
)

var (
	// ErrCredentialsMissing means the gateway credentials are not configured.
	ErrCredentialsMissing = errors.New("gateway credentials are not configured")
	// ErrAuthFailed means the gateway rejected our credentials.
	ErrAuthFailed = errors.New("gateway rejected credentials")
	// ErrGatewayRefused means the gateway explicitly refused the charge.
	ErrGatewayRefused = errors.New("gateway refused the charge")
	// ErrGatewayUnreachable covers network failures and unexpected HTTP statuses.
	ErrGatewayUnreachable = errors.New("gateway unreachable")
	// ErrMalformedResponse means the body did not have the expected structure.
	ErrMalformedResponse = errors.New("malformed gateway response")
	// ErrEmptyCode means the gateway accepted the charge but returned no Pix code.
	ErrEmptyCode = errors.New("gateway returned an empty payment code")
)

// RefusedError carries the refusal reason reported by the gateway.
type RefusedError struct {
	Reason string
}

func (e *RefusedError) Error() string {
	if e.Reason == "" {
		return ErrGatewayRefused.Error()
	}
	return fmt.Sprintf("%s: %s", ErrGatewayRefused, e.Reason)
}

func (e *RefusedError) Unwrap() error {
	return ErrGatewayRefused
}

// StatusError is a non-2xx answer from the gateway.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status code %d: %s", ErrGatewayUnreachable, e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error {
	return ErrGatewayUnreachable
}
