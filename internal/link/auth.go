package link

import (
	"context"
	"fmt"

	"github.com/feenthu/movie-tracker-web-sub001/internal/gql"
	"github.com/feenthu/movie-tracker-web-sub001/internal/session"
)

// AuthorizationHeader is the header carrying the bearer credential.
const AuthorizationHeader = "Authorization"

// CredentialError reports that the credential could not be read from the
// session store. The operation was never dispatched.
type CredentialError struct{ Err error }

func (e *CredentialError) Error() string { return fmt.Sprintf("link: read credential: %v", e.Err) }
func (e *CredentialError) Unwrap() error { return e.Err }

type auth struct{ store session.Store }

// Auth returns middleware that reads the current credential from store at
// dispatch time and attaches it as a bearer token. Without a credential the
// operation is sent unauthenticated.
func Auth(store session.Store) Middleware { return auth{store: store} }

func (a auth) Handle(ctx context.Context, op *Operation, next Handler) (*gql.Response, error) {
	tok, ok, err := a.store.Token()
	if err != nil {
		return nil, &CredentialError{Err: err}
	}
	if ok {
		op = op.WithHeader(AuthorizationHeader, "Bearer "+tok)
	} else if op.Header.Get(AuthorizationHeader) != "" {
		op = op.WithoutHeader(AuthorizationHeader)
	}
	return next.Handle(ctx, op)
}
