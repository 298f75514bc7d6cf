// Package client is the single entry point for talking to the movie
// tracker API.
//
// Every operation runs through the pipeline
//
//	errors -> auth -> [extra middleware] -> transport
//
// and its result is written to the normalized cache before it is returned.
// Protocol errors never fail a call: the envelope carries both the partial
// data and the errors. Only transport failures return a non-nil error.
package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/feenthu/movie-tracker-web-sub001/internal/cache"
	"github.com/feenthu/movie-tracker-web-sub001/internal/eventbus"
	"github.com/feenthu/movie-tracker-web-sub001/internal/events"
	"github.com/feenthu/movie-tracker-web-sub001/internal/gql"
	"github.com/feenthu/movie-tracker-web-sub001/internal/language"
	"github.com/feenthu/movie-tracker-web-sub001/internal/link"
	"github.com/feenthu/movie-tracker-web-sub001/internal/reqid"
	"github.com/feenthu/movie-tracker-web-sub001/internal/session"
	"github.com/feenthu/movie-tracker-web-sub001/internal/transport"
)

// ErrWatchMutation is returned when Watch is called with a mutation.
var ErrWatchMutation = errors.New("client: only queries can be watched")

type Client struct {
	opt     Options
	handler link.Handler
}

func New(opts ...Option) *Client {
	o := Options{}
	for _, f := range opts {
		f(&o)
	}
	if o.Session == nil {
		o.Session = session.NewMemory("")
	}
	if o.Cache == nil {
		o.Cache = cache.New(cache.WithPolicies(DefaultPolicies))
	}
	if o.Transport == nil {
		o.Transport = transport.New()
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.LoginPath == "" {
		o.LoginPath = link.DefaultLoginPath
	}

	errOpts := []link.ErrorsOption{link.WithLogger(o.Logger), link.WithLoginPath(o.LoginPath)}
	if o.OnUnauthorized != nil {
		errOpts = append(errOpts, link.OnUnauthorized(o.OnUnauthorized))
	}
	mws := append([]link.Middleware{
		link.Errors(o.Session, errOpts...),
		link.Auth(o.Session),
	}, o.Middleware...)

	return &Client{opt: o, handler: link.Chain(o.Transport, mws...)}
}

// Cache returns the cache results are written to.
func (c *Client) Cache() cache.Store { return c.opt.Cache }

// Session returns the credential store.
func (c *Client) Session() session.Store { return c.opt.Session }

// Login stores token as the current credential. Operations dispatched
// afterwards carry it.
func (c *Client) Login(token string) error {
	if err := c.opt.Session.SetToken(token); err != nil {
		return fmt.Errorf("client: login: %w", err)
	}
	return nil
}

// Logout removes the current credential. Operations already past the auth
// middleware keep the token they captured.
func (c *Client) Logout() error {
	if err := c.opt.Session.Clear(); err != nil {
		return fmt.Errorf("client: logout: %w", err)
	}
	return nil
}

// Reset drops every cached result.
func (c *Client) Reset() { c.opt.Cache.Reset() }

// Execute runs req through the pipeline. Queries write their data under
// their operation key; mutations merge the entities they return. Data is
// cached even when the envelope also carries errors.
func (c *Client) Execute(ctx context.Context, req gql.Request, opts ...ExecOption) (*gql.Response, error) {
	eo := execOptions{}
	for _, f := range opts {
		f(&eo)
	}

	ctx, rid := reqid.Ensure(ctx)
	op := link.NewOperation(req).WithHeader(reqid.Header, rid)
	key := cache.OperationKey(op.Name, req)
	write := language.IsWrite(op.Type)

	start := time.Now()
	eventbus.Publish(ctx, events.OperationStart{OperationName: op.Name, OperationType: string(op.Type), CacheKey: key})
	finish := func(res *gql.Response, err error, fromCache bool) {
		fin := events.OperationFinish{
			OperationName: op.Name,
			OperationType: string(op.Type),
			CacheKey:      key,
			Err:           err,
			FromCache:     fromCache,
			Duration:      time.Since(start),
		}
		if res != nil {
			fin.Errors = res.Errors
		}
		eventbus.Publish(ctx, fin)
	}

	if !write && eo.policy == CacheFirst {
		if res, ok := c.cached(key); ok {
			c.opt.Logger.Debug("cache hit", zap.String("key", key))
			finish(res, nil, true)
			return res, nil
		}
	}

	res, err := c.handler.Handle(ctx, op)
	if err != nil {
		finish(nil, err, false)
		return nil, err
	}
	if res == nil {
		res = &gql.Response{}
	}
	c.store(key, write, res)
	finish(res, nil, false)
	return res, nil
}

func (c *Client) store(key string, write bool, res *gql.Response) {
	if !res.HasData() {
		return
	}
	data, err := res.DataMap()
	if err != nil {
		c.opt.Logger.Warn("response data not cacheable", zap.String("key", key), zap.Error(err))
		return
	}
	if write {
		c.opt.Cache.WriteEntities(data)
		return
	}
	c.opt.Cache.Write(key, data)
}

func (c *Client) cached(key string) (*gql.Response, bool) {
	v, ok := c.opt.Cache.Read(key)
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	res, err := gql.NewResponse(m)
	if err != nil {
		return nil, false
	}
	return res, true
}

// Watch executes req and then calls fn with the latest cached result every
// time its operation key is re-written, including by entity updates from
// other operations. The first delivery is the result of the initial fetch.
// Watching stops when cancel is called.
func (c *Client) Watch(ctx context.Context, req gql.Request, fn func(*gql.Response)) (cancel func(), err error) {
	typ, name := language.Classify(req.Query, req.OperationName)
	if language.IsWrite(typ) {
		return nil, ErrWatchMutation
	}
	key := cache.OperationKey(name, req)
	cancel = c.opt.Cache.Watch(key, func(v any, ok bool) {
		if !ok {
			return
		}
		m, _ := v.(map[string]any)
		res, err := gql.NewResponse(m)
		if err != nil {
			c.opt.Logger.Warn("watch delivery", zap.String("key", key), zap.Error(err))
			return
		}
		fn(res)
	})
	if _, err := c.Execute(ctx, req); err != nil {
		cancel()
		return nil, err
	}
	return cancel, nil
}
