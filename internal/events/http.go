package events

import (
	"net/http"
	"time"
)

// HTTPClientStart is emitted before the transport sends a request.
type HTTPClientStart struct {
	Request       *http.Request
	OperationName string
}

// HTTPClientFinish is emitted after the HTTP exchange completes.
// Status is 0 when no response was received.
type HTTPClientFinish struct {
	Request       *http.Request
	OperationName string
	Status        int
	Err           error
	Duration      time.Duration
}
