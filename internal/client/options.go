package client

import (
	"go.uber.org/zap"

	"github.com/feenthu/movie-tracker-web-sub001/internal/cache"
	"github.com/feenthu/movie-tracker-web-sub001/internal/link"
	"github.com/feenthu/movie-tracker-web-sub001/internal/session"
)

// DefaultPolicies are the merge policies of the default cache. The movie
// listing is authoritative on every fetch: a new page replaces the cached
// collection rather than accumulating.
var DefaultPolicies = cache.Policies{"movies": cache.Replace}

// Options configures a Client. Zero values select defaults:
// - Session:   in-memory store without a credential
// - Cache:     cache.New with DefaultPolicies
// - Transport: transport.New() posting to the production endpoint
// - Logger:    zap.NewNop()
// - LoginPath: link.DefaultLoginPath
type Options struct {
	Session        session.Store
	Cache          cache.Store
	Transport      link.Handler
	Logger         *zap.Logger
	LoginPath      string
	OnUnauthorized link.UnauthorizedFunc

	// Middleware run between the auth middleware and the transport.
	Middleware []link.Middleware
}

type Option func(*Options)

func WithSession(s session.Store) Option  { return func(o *Options) { o.Session = s } }
func WithCache(c cache.Store) Option      { return func(o *Options) { o.Cache = c } }
func WithTransport(h link.Handler) Option { return func(o *Options) { o.Transport = h } }
func WithLogger(l *zap.Logger) Option     { return func(o *Options) { o.Logger = l } }
func WithLoginPath(p string) Option       { return func(o *Options) { o.LoginPath = p } }
func WithMiddleware(mws ...link.Middleware) Option {
	return func(o *Options) { o.Middleware = append(o.Middleware, mws...) }
}

// OnUnauthorized registers the host callback run after a 401 clears the
// session. Hosts typically navigate to loginPath.
func OnUnauthorized(f link.UnauthorizedFunc) Option {
	return func(o *Options) { o.OnUnauthorized = f }
}

// FetchPolicy selects how read operations use the cache.
type FetchPolicy int

const (
	// NetworkFirst dispatches every call and writes the result to the cache.
	NetworkFirst FetchPolicy = iota
	// CacheFirst returns a cached result for the same operation key without
	// dispatching, and falls back to NetworkFirst on a miss.
	CacheFirst
)

type execOptions struct {
	policy FetchPolicy
}

// ExecOption configures a single Execute call.
type ExecOption func(*execOptions)

func WithFetchPolicy(p FetchPolicy) ExecOption { return func(o *execOptions) { o.policy = p } }
