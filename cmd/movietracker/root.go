package main

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/feenthu/movie-tracker-web-sub001/internal/cache"
	"github.com/feenthu/movie-tracker-web-sub001/internal/client"
	"github.com/feenthu/movie-tracker-web-sub001/internal/config"
	"github.com/feenthu/movie-tracker-web-sub001/internal/eventbus"
	"github.com/feenthu/movie-tracker-web-sub001/internal/logging"
	"github.com/feenthu/movie-tracker-web-sub001/internal/otel"
	"github.com/feenthu/movie-tracker-web-sub001/internal/session"
	"github.com/feenthu/movie-tracker-web-sub001/internal/transport"
)

const rootLong = `movietracker talks to the movie tracker API.

Settings come from flags, MOVIETRACKER_* environment variables, and an
optional TOML config file, in that order of precedence.`

// app holds what every subcommand needs once flags are parsed.
type app struct {
	conf   *viper.Viper
	cfg    config.Config
	logger *zap.Logger
	stdout io.Writer
	stderr io.Writer

	shutdown func(context.Context) error
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{conf: config.New(), stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:           "movietracker",
		Short:         "Movie tracker API client",
		Long:          rootLong,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close(cmd.Context())
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.String(config.KeyConfig, "", "TOML config file")
	flags.String(config.KeyEndpoint, transport.DefaultEndpoint, "GraphQL endpoint URL")
	flags.String("session-file", "", "session file (default: user config dir)")
	flags.String("log-level", "info", "log level: debug, info, warn, error")
	flags.Bool("log-json", false, "emit JSON logs")
	flags.String("otel-endpoint", "", "OTLP collector endpoint (disabled when empty)")
	flags.Duration(config.KeyTimeout, 0, "HTTP timeout per request, e.g. 10s (0 disables)")
	for key, name := range map[string]string{
		config.KeyConfig:       config.KeyConfig,
		config.KeyEndpoint:     config.KeyEndpoint,
		config.KeySessionFile:  "session-file",
		config.KeyLogLevel:     "log-level",
		config.KeyLogJSON:      "log-json",
		config.KeyOTelEndpoint: "otel-endpoint",
		config.KeyTimeout:      config.KeyTimeout,
	} {
		_ = a.conf.BindPFlag(key, flags.Lookup(name))
	}

	root.AddCommand(newLoginCmd(a), newLogoutCmd(a), newQueryCmd(a), newWatchCmd(a))
	return root
}

func (a *app) init() error {
	cfg, err := config.Load(a.conf)
	if err != nil {
		return err
	}
	a.cfg = cfg
	if a.logger, err = logging.NewWriter(a.stderr, cfg.LogLevel, cfg.LogJSON); err != nil {
		return err
	}
	if cfg.OTelEndpoint != "" {
		eventbus.Use(eventbus.New())
	}
	if a.shutdown, err = otel.Setup(cfg.OTelEndpoint, cfg.OTelService); err != nil {
		return fmt.Errorf("otel setup: %w", err)
	}
	return nil
}

func (a *app) close(ctx context.Context) error {
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	if a.shutdown != nil {
		return a.shutdown(ctx)
	}
	return nil
}

func (a *app) session() *session.File { return session.NewFile(a.cfg.SessionFile) }

func (a *app) client() *client.Client {
	policies := cache.Policies{}
	for k, v := range client.DefaultPolicies {
		policies[k] = v
	}
	for k, v := range a.cfg.Policies {
		policies[k] = v
	}
	tr := transport.New(
		transport.WithEndpoint(a.cfg.Endpoint),
		transport.WithHTTPClient(&http.Client{Timeout: a.cfg.Timeout}),
		transport.WithUserAgent("movietracker-cli"),
	)
	return client.New(
		client.WithSession(a.session()),
		client.WithCache(cache.New(cache.WithPolicies(policies))),
		client.WithTransport(tr),
		client.WithLogger(a.logger),
		client.OnUnauthorized(func(_ context.Context, loginPath string) {
			fmt.Fprintf(a.stderr, "session expired: sign in again (%s), e.g. `movietracker login --token <token>`\n", loginPath)
		}),
	)
}
