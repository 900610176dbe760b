package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	flag "github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/calvinalkan/todo-sync/internal/fakeapi"
	"github.com/calvinalkan/todo-sync/internal/todo"
	"github.com/calvinalkan/todo-sync/pkg/docdb"
)

const shutdownTimeout = 5 * time.Second

func serveCmd(a *app) *Command {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	addr := fs.String("addr", "127.0.0.1:4000", "Listen address")
	apiKey := fs.String("api-key", "", "Require this x-api-key (defaults to the configured api_key)")
	seed := fs.String("seed", "", "Preload todos from a dump made by export")

	return &Command{
		Flags: fs,
		Usage: "serve [flags]",
		Short: "Run an in-memory GraphQL to-do service",
		Long: `Serve the to-do GraphQL API from memory, for local development and demos.
Point todosync at it with --endpoint http://<addr>/graphql.`,
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			key := *apiKey
			if !fs.Changed("api-key") {
				key = a.cfg.APIKey
			}

			srv, err := fakeapi.New(fakeapi.Options{APIKey: key, Logger: a.log.Named("fakeapi")})
			if err != nil {
				return err
			}

			if *seed != "" {
				records, err := readSeed(resolve(a, *seed))
				if err != nil {
					return err
				}

				srv.Seed(records...)
			}

			ln, err := net.Listen("tcp", *addr)
			if err != nil {
				return fmt.Errorf("listen: %w", err)
			}

			hs := &http.Server{Handler: srv.Handler(), ReadHeaderTimeout: 10 * time.Second}

			o.Printf("serving http://%s%s\n", ln.Addr(), fakeapi.Path)

			errCh := make(chan error, 1)

			go func() { errCh <- hs.Serve(ln) }()

			select {
			case err = <-errCh:
				return fmt.Errorf("serve: %w", err)
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			err = hs.Shutdown(shutdownCtx)
			if err != nil {
				a.log.Warn("shutdown", zap.Error(err))
			}

			err = <-errCh
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serve: %w", err)
			}

			return nil
		},
	}
}

func readSeed(path string) ([]todo.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed: %w", err)
	}

	var dump docdb.Dump[todo.Record]

	err = json.Unmarshal(data, &dump)
	if err != nil {
		return nil, fmt.Errorf("decode seed: %w", err)
	}

	return dump.Docs, nil
}
