package link

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/feenthu/movie-tracker-web-sub001/internal/eventbus"
	"github.com/feenthu/movie-tracker-web-sub001/internal/events"
	"github.com/feenthu/movie-tracker-web-sub001/internal/gql"
	"github.com/feenthu/movie-tracker-web-sub001/internal/reqid"
	"github.com/feenthu/movie-tracker-web-sub001/internal/session"
)

// DefaultLoginPath is where the host is sent once the session is invalidated.
const DefaultLoginPath = "/login"

// StatusError is implemented by transport failures that carry an HTTP status.
type StatusError interface {
	error
	Status() int
}

// StatusOf returns the HTTP status carried by err, if any.
func StatusOf(err error) (int, bool) {
	var se StatusError
	if errors.As(err, &se) && se.Status() != 0 {
		return se.Status(), true
	}
	return 0, false
}

// UnauthorizedFunc is invoked after a 401 has cleared the credential. The
// host navigates to loginPath. It runs on the dispatching goroutine and
// must not block.
type UnauthorizedFunc func(ctx context.Context, loginPath string)

type errorsOptions struct {
	logger         *zap.Logger
	loginPath      string
	onUnauthorized UnauthorizedFunc
}

// ErrorsOption configures the Errors middleware.
type ErrorsOption func(*errorsOptions)

func WithLogger(l *zap.Logger) ErrorsOption          { return func(o *errorsOptions) { o.logger = l } }
func WithLoginPath(p string) ErrorsOption            { return func(o *errorsOptions) { o.loginPath = p } }
func OnUnauthorized(f UnauthorizedFunc) ErrorsOption { return func(o *errorsOptions) { o.onUnauthorized = f } }

type errorsMW struct {
	store session.Store
	opt   errorsOptions
}

// Errors returns middleware that logs protocol errors and transport
// failures. A 401 failure clears store and notifies the host; the failure
// is still returned to the caller and never retried.
func Errors(store session.Store, opts ...ErrorsOption) Middleware {
	o := errorsOptions{loginPath: DefaultLoginPath}
	for _, f := range opts {
		f(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return &errorsMW{store: store, opt: o}
}

func (m *errorsMW) Handle(ctx context.Context, op *Operation, next Handler) (*gql.Response, error) {
	res, err := next.Handle(ctx, op)
	log := m.opt.logger.With(zap.String("operation", op.Name))
	if id, ok := reqid.FromContext(ctx); ok {
		log = log.With(zap.String("request_id", id))
	}

	var credErr *CredentialError
	if errors.As(err, &credErr) {
		log.Error("credential read failure", zap.Error(credErr.Err))
		return res, err
	}
	if err != nil {
		status, _ := StatusOf(err)
		log.Error("transport failure", zap.Int("status", status), zap.Error(err))
		if status == http.StatusUnauthorized {
			m.invalidate(ctx, op, log)
		}
		return res, err
	}

	if res != nil {
		for _, ge := range res.Errors {
			if ge == nil {
				continue
			}
			log.Warn("graphql error",
				zap.String("message", ge.Message),
				zap.Any("locations", ge.Locations),
				zap.String("path", ge.Path.String()),
			)
		}
	}
	return res, nil
}

func (m *errorsMW) invalidate(ctx context.Context, op *Operation, log *zap.Logger) {
	if err := m.store.Clear(); err != nil {
		log.Error("clear credential", zap.Error(err))
	}
	log.Info("session invalidated", zap.String("redirect", m.opt.loginPath))
	eventbus.Publish(ctx, events.SessionInvalidated{OperationName: op.Name, LoginPath: m.opt.loginPath})
	if m.opt.onUnauthorized != nil {
		m.opt.onUnauthorized(ctx, m.opt.loginPath)
	}
}
