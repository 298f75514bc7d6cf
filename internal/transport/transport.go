package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/feenthu/movie-tracker-web-sub001/internal/eventbus"
	"github.com/feenthu/movie-tracker-web-sub001/internal/events"
	"github.com/feenthu/movie-tracker-web-sub001/internal/gql"
	"github.com/feenthu/movie-tracker-web-sub001/internal/link"
)

// HTTP posts operations as JSON to a single endpoint and parses the
// response envelope. It never interprets the payload and never retries.
type HTTP struct {
	opts *Options
}

func New(opts ...Option) *HTTP {
	o := defaultOptions()
	for _, f := range opts {
		f(o)
	}
	if o.Endpoint == "" {
		o.Endpoint = DefaultEndpoint
	}
	if o.Client == nil {
		o.Client = http.DefaultClient
	}
	return &HTTP{opts: o}
}

// Endpoint returns the URL operations are posted to.
func (t *HTTP) Endpoint() string { return t.opts.Endpoint }

var _ link.Handler = (*HTTP)(nil)

func (t *HTTP) Handle(ctx context.Context, op *link.Operation) (*gql.Response, error) {
	body, err := json.Marshal(op.Request)
	if err != nil {
		return nil, &Error{Err: fmt.Errorf("encode request: %w", err)}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.opts.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Err: err}
	}
	for k, vs := range op.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if t.opts.UserAgent != "" {
		req.Header.Set("User-Agent", t.opts.UserAgent)
	}

	start := time.Now()
	status := 0
	eventbus.Publish(ctx, events.HTTPClientStart{Request: req, OperationName: op.Name})
	res, err := t.do(req, &status)
	eventbus.Publish(ctx, events.HTTPClientFinish{
		Request:       req,
		OperationName: op.Name,
		Status:        status,
		Err:           err,
		Duration:      time.Since(start),
	})
	return res, err
}

func (t *HTTP) do(req *http.Request, status *int) (*gql.Response, error) {
	resp, err := t.opts.Client.Do(req)
	if err != nil {
		return nil, &Error{Err: err}
	}
	defer resp.Body.Close()
	*status = resp.StatusCode

	reader := io.Reader(resp.Body)
	if t.opts.MaxResponseBytes > 0 {
		reader = io.LimitReader(resp.Body, t.opts.MaxResponseBytes+1)
	}
	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, &Error{StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}
	if t.opts.MaxResponseBytes > 0 && int64(len(raw)) > t.opts.MaxResponseBytes {
		return nil, &Error{StatusCode: resp.StatusCode, Err: fmt.Errorf("%w: body exceeds %d bytes", ErrMalformedResponse, t.opts.MaxResponseBytes)}
	}

	env, perr := decode(raw)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{StatusCode: resp.StatusCode, Response: env, Err: ErrUnexpectedStatus}
	}
	if perr != nil {
		return nil, &Error{StatusCode: resp.StatusCode, Err: perr}
	}
	return env, nil
}

func decode(raw []byte) (*gql.Response, error) {
	var env gql.Response
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return &env, nil
}
