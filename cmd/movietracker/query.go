package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/feenthu/movie-tracker-web-sub001/internal/gql"
)

// requestFlags are shared by query and watch.
type requestFlags struct {
	query     string
	file      string
	operation string
	vars      []string
	varsJSON  string
}

func (f *requestFlags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&f.query, "query", "q", "", "GraphQL document")
	fs.StringVarP(&f.file, "file", "f", "", "read the GraphQL document from a file ('-' for stdin)")
	fs.StringVarP(&f.operation, "operation", "o", "", "operation name to run")
	fs.StringArrayVar(&f.vars, "var", nil, "variable as name=value; value is parsed as JSON when possible. Repeatable")
	fs.StringVar(&f.varsJSON, "variables", "", "variables as a JSON object")
}

func (f *requestFlags) request(stdin io.Reader) (gql.Request, error) {
	doc := f.query
	switch {
	case doc != "" && f.file != "":
		return gql.Request{}, errors.New("use either --query or --file")
	case f.file == "-":
		b, err := io.ReadAll(stdin)
		if err != nil {
			return gql.Request{}, err
		}
		doc = string(b)
	case f.file != "":
		b, err := os.ReadFile(f.file)
		if err != nil {
			return gql.Request{}, err
		}
		doc = string(b)
	}
	if strings.TrimSpace(doc) == "" {
		return gql.Request{}, errors.New("missing GraphQL document: pass --query or --file")
	}

	vars := map[string]any{}
	if f.varsJSON != "" {
		if err := json.Unmarshal([]byte(f.varsJSON), &vars); err != nil {
			return gql.Request{}, fmt.Errorf("invalid --variables JSON: %w", err)
		}
	}
	for _, kv := range f.vars {
		name, raw, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			return gql.Request{}, fmt.Errorf("invalid --var %q: want name=value", kv)
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		vars[name] = v
	}
	if len(vars) == 0 {
		vars = nil
	}
	return gql.Request{OperationName: f.operation, Query: doc, Variables: vars}, nil
}

func writeEnvelope(w io.Writer, res *gql.Response) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func newQueryCmd(a *app) *cobra.Command {
	var rf requestFlags
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Run a query or mutation and print the response envelope",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := rf.request(cmd.InOrStdin())
			if err != nil {
				return err
			}
			res, err := a.client().Execute(cmd.Context(), req)
			if err != nil {
				return err
			}
			return writeEnvelope(a.stdout, res)
		},
	}
	rf.register(cmd.Flags())
	return cmd
}

func newWatchCmd(a *app) *cobra.Command {
	var rf requestFlags
	interval := 30 * time.Second
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-run a query on an interval and print each updated result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := rf.request(cmd.InOrStdin())
			if err != nil {
				return err
			}
			if interval <= 0 {
				return errors.New("--interval must be positive")
			}
			c := a.client()
			ctx := cmd.Context()
			cancel, err := c.Watch(ctx, req, func(res *gql.Response) {
				if err := writeEnvelope(a.stdout, res); err != nil {
					a.logger.Warn("write result: " + err.Error())
				}
			})
			if err != nil {
				return err
			}
			defer cancel()

			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					if _, err := c.Execute(ctx, req); err != nil {
						return err
					}
				}
			}
		},
	}
	rf.register(cmd.Flags())
	cmd.Flags().DurationVar(&interval, "interval", interval, "refetch interval")
	return cmd
}
