package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/feenthu/movie-tracker-web-sub001/internal/gql"
	"github.com/feenthu/movie-tracker-web-sub001/internal/link"
)

// Call captures a single Handle invocation for assertions.
type Call struct {
	Request gql.Request
	Name    string
	// Header is a snapshot of the headers the operation carried.
	Header http.Header
}

// Result is a queued outcome for Mock.
type Result struct {
	Response *gql.Response
	Err      error
}

// Mock implements link.Handler and returns pre-seeded results in order,
// while recording calls for inspection.
type Mock struct {
	mu      sync.Mutex
	results []Result
	idx     int
	calls   []Call
}

// NewMock creates a Mock returning results in order for successive calls.
func NewMock(results ...Result) *Mock {
	cp := make([]Result, len(results))
	copy(cp, results)
	return &Mock{results: cp}
}

// Respond is shorthand for a successful Result decoded from a JSON envelope.
func Respond(body string) Result {
	env, err := decode([]byte(body))
	if err != nil {
		panic(fmt.Sprintf("transport: bad mock body: %v", err))
	}
	return Result{Response: env}
}

// Fail is shorthand for a transport failure with the given status.
func Fail(status int) Result {
	return Result{Err: &Error{StatusCode: status, Err: ErrUnexpectedStatus}}
}

// Push queues more results.
func (m *Mock) Push(results ...Result) {
	m.mu.Lock()
	m.results = append(m.results, results...)
	m.mu.Unlock()
}

func (m *Mock) Handle(ctx context.Context, op *link.Operation) (*gql.Response, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Request: op.Request, Name: op.Name, Header: op.Header.Clone()})
	if m.idx >= len(m.results) {
		return nil, &Error{Err: fmt.Errorf("mock transport: no more responses")}
	}
	r := m.results[m.idx]
	m.idx++
	return r.Response, r.Err
}

// Calls returns a snapshot of recorded calls.
func (m *Mock) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

var _ link.Handler = (*Mock)(nil)
