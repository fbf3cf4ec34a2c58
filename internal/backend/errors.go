package backend

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrMalformedResponse is returned when a response body fails schema validation.
var ErrMalformedResponse = errors.New("malformed response")

// AuthError is a rejected login or signup. Message is fit to show to the user.
type AuthError struct {
	Status  int
	Message string
}

func (e *AuthError) Error() string {
	return e.Message
}

// TransportError is any other failed call: network error, non-2xx status or malformed body.
// Status is zero when no response was received.
type TransportError struct {
	Op     string
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		if e.Err != nil {
			return fmt.Sprintf("%s failed: %s: %v", e.Op, http.StatusText(e.Status), e.Err)
		}
		return fmt.Sprintf("%s failed: %s", e.Op, http.StatusText(e.Status))
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsUnauthorized reports whether err is a 401 from the API.
func IsUnauthorized(err error) bool {
	var terr *TransportError
	if errors.As(err, &terr) {
		return terr.Status == http.StatusUnauthorized
	}
	var aerr *AuthError
	if errors.As(err, &aerr) {
		return aerr.Status == http.StatusUnauthorized
	}
	return false
}
