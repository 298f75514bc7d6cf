package transport

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/feenthu/movie-tracker-web-sub001/internal/gql"
)

// ErrUnexpectedStatus is wrapped by failures caused by a non-2xx response.
var ErrUnexpectedStatus = errors.New("unexpected status")

// ErrMalformedResponse is wrapped when the body is not a valid envelope.
var ErrMalformedResponse = errors.New("malformed response")

// Error is a transport failure: the exchange did not complete or the server
// answered with a non-success status.
type Error struct {
	// StatusCode is the HTTP status received, or 0 when no response arrived.
	StatusCode int
	// Response is the envelope parsed from a non-2xx body, if any.
	Response *gql.Response
	Err      error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transport: %d %s: %v", e.StatusCode, http.StatusText(e.StatusCode), e.Err)
	}
	return fmt.Sprintf("transport: %v", e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Status returns the HTTP status code, or 0.
func (e *Error) Status() int { return e.StatusCode }

// IsUnauthorized reports whether err is a transport failure with status 401.
func IsUnauthorized(err error) bool {
	var te *Error
	return errors.As(err, &te) && te.StatusCode == http.StatusUnauthorized
}
