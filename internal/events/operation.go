package events

import (
	"time"

	"github.com/vektah/gqlparser/v2/gqlerror"
)

// OperationStart is emitted when the client begins executing an operation.
type OperationStart struct {
	OperationName string
	OperationType string
	CacheKey      string
}

// OperationFinish is emitted after an operation resolves, successfully or not.
type OperationFinish struct {
	OperationName string
	OperationType string
	CacheKey      string
	Errors        gqlerror.List
	Err           error
	FromCache     bool
	Duration      time.Duration
}

// SessionInvalidated is emitted when an unauthorized response clears the
// stored credential.
type SessionInvalidated struct {
	OperationName string
	LoginPath     string
}

// CacheWrite is emitted for every key changed by a cache write.
type CacheWrite struct {
	Key string
}
