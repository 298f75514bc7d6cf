// Package session owns the bearer credential used to authenticate API calls.
//
// A Store holds at most one credential. Readers get a snapshot: a value
// returned by Token is never changed afterwards, so a request that captured
// a token keeps it even if the store is cleared while the request is in
// flight.
package session

import (
	"errors"
	"sync"
)

// TokenKey is the fixed key the credential is persisted under.
const TokenKey = "token"

// ErrEmptyToken is returned when storing an empty credential.
var ErrEmptyToken = errors.New("session: empty token")

// Store persists the current credential.
// Implementations must be safe for concurrent use.
type Store interface {
	// Token returns the current credential and whether one is present.
	Token() (string, bool, error)
	// SetToken replaces the current credential.
	SetToken(token string) error
	// Clear removes the credential. Clearing an empty store is a no-op.
	Clear() error
}

// Memory is an in-process Store.
type Memory struct {
	mu    sync.RWMutex
	token string
}

// NewMemory returns a Memory store, optionally seeded with token.
func NewMemory(token string) *Memory { return &Memory{token: token} }

func (m *Memory) Token() (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token, m.token != "", nil
}

func (m *Memory) SetToken(token string) error {
	if token == "" {
		return ErrEmptyToken
	}
	m.mu.Lock()
	m.token = token
	m.mu.Unlock()
	return nil
}

func (m *Memory) Clear() error {
	m.mu.Lock()
	m.token = ""
	m.mu.Unlock()
	return nil
}

var _ Store = (*Memory)(nil)
