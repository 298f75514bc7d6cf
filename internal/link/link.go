// Package link composes the request pipeline between the client and the
// transport.
//
// A pipeline is an ordered list of Middleware in front of a terminal
// Handler. Chain(t, a, b) dispatches through a, then b, then t; responses
// return in reverse order. Middleware are stateless per call and may run
// concurrently.
package link

import (
	"context"
	"net/http"

	"github.com/feenthu/movie-tracker-web-sub001/internal/gql"
	"github.com/feenthu/movie-tracker-web-sub001/internal/language"
)

// Operation is a single dispatch of a Request. The Request itself is never
// modified; middleware attach per-dispatch data by deriving a new Operation.
type Operation struct {
	Request gql.Request
	// Type is the operation type selected from the document.
	Type language.Operation
	// Name is the effective operation name, possibly taken from the document.
	Name string
	// Header holds HTTP headers the transport sends with the request.
	Header http.Header
}

// NewOperation classifies req and returns an Operation for it.
func NewOperation(req gql.Request) *Operation {
	typ, name := language.Classify(req.Query, req.OperationName)
	return &Operation{Request: req, Type: typ, Name: name, Header: http.Header{}}
}

// WithHeader returns a copy of o with header key set to value.
func (o *Operation) WithHeader(key, value string) *Operation {
	cp := *o
	cp.Header = o.Header.Clone()
	if cp.Header == nil {
		cp.Header = http.Header{}
	}
	cp.Header.Set(key, value)
	return &cp
}

// WithoutHeader returns a copy of o with header key removed.
func (o *Operation) WithoutHeader(key string) *Operation {
	cp := *o
	cp.Header = o.Header.Clone()
	if cp.Header == nil {
		cp.Header = http.Header{}
	}
	cp.Header.Del(key)
	return &cp
}

// Handler dispatches an operation and returns its envelope. A non-nil error
// is a transport failure; protocol errors travel inside the envelope.
type Handler interface {
	Handle(ctx context.Context, op *Operation) (*gql.Response, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, op *Operation) (*gql.Response, error)

func (f HandlerFunc) Handle(ctx context.Context, op *Operation) (*gql.Response, error) {
	return f(ctx, op)
}

// Middleware observes or transforms an operation on its way to next and the
// result on its way back.
type Middleware interface {
	Handle(ctx context.Context, op *Operation, next Handler) (*gql.Response, error)
}

// MiddlewareFunc adapts a function to Middleware.
type MiddlewareFunc func(ctx context.Context, op *Operation, next Handler) (*gql.Response, error)

func (f MiddlewareFunc) Handle(ctx context.Context, op *Operation, next Handler) (*gql.Response, error) {
	return f(ctx, op, next)
}

// Chain composes mws in front of terminal. The first middleware is the
// outermost.
func Chain(terminal Handler, mws ...Middleware) Handler {
	h := terminal
	for i := len(mws) - 1; i >= 0; i-- {
		h = bound{mw: mws[i], next: h}
	}
	return h
}

type bound struct {
	mw   Middleware
	next Handler
}

func (b bound) Handle(ctx context.Context, op *Operation) (*gql.Response, error) {
	return b.mw.Handle(ctx, op, b.next)
}
