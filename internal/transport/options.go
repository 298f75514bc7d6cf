package transport

import "net/http"

// DefaultEndpoint is the production API used when no endpoint is configured.
const DefaultEndpoint = "https://api.movietracker.app/graphql"

// Options configures the HTTP transport.
//
// Defaults:
// - Endpoint:         DefaultEndpoint
// - Client:           http.DefaultClient (no timeout of its own)
// - MaxResponseBytes: 0 (unlimited)
//
// All options are safe to leave zero-valued to use defaults.
type Options struct {
	Endpoint string
	Client   *http.Client

	// MaxResponseBytes bounds the response body read. Larger bodies fail
	// the exchange as malformed.
	MaxResponseBytes int64

	UserAgent string
}

// Option mutates Options.
type Option func(*Options)

func defaultOptions() *Options {
	return &Options{Endpoint: DefaultEndpoint, Client: http.DefaultClient}
}

func WithEndpoint(url string) Option       { return func(o *Options) { o.Endpoint = url } }
func WithHTTPClient(c *http.Client) Option { return func(o *Options) { o.Client = c } }
func WithMaxResponseBytes(n int64) Option  { return func(o *Options) { o.MaxResponseBytes = n } }
func WithUserAgent(ua string) Option       { return func(o *Options) { o.UserAgent = ua } }
