package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"
	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/todo-sync/internal/todo"
	"github.com/calvinalkan/todo-sync/pkg/docdb"
)

var errDumpFileRequired = errors.New("dump file is required")

func exportCmd(a *app) *Command {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	file := fs.StringP("file", "f", "", "Write to this file instead of stdout")

	return &Command{
		Flags: fs,
		Usage: "export [-f file]",
		Short: "Dump the local todos as JSON",
		Long:  "Dump the local todos together with their schema. Files are replaced atomically.",
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			todos, err := a.todos(ctx)
			if err != nil {
				return err
			}

			dump, err := todos.Export(ctx)
			if err != nil {
				return err
			}

			data, err := json.MarshalIndent(dump, "", "  ")
			if err != nil {
				return fmt.Errorf("encode dump: %w", err)
			}

			data = append(data, '\n')

			if *file == "" {
				o.Printf("%s", data)

				return nil
			}

			path := resolve(a, *file)

			err = atomic.WriteFile(path, bytes.NewReader(data))
			if err != nil {
				return fmt.Errorf("write dump: %w", err)
			}

			o.Printf("exported %d todos to %s\n", len(dump.Docs), path)

			return nil
		},
	}
}

func importCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("import", flag.ContinueOnError),
		Usage: "import <file>",
		Short: "Load a dump into the local store",
		Long: `Insert every todo of a dump made by export. The dump's schema must match
the store's. Nothing is written if any todo already exists.`,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) != 1 {
				return errDumpFileRequired
			}

			data, err := os.ReadFile(resolve(a, args[0]))
			if err != nil {
				return fmt.Errorf("read dump: %w", err)
			}

			var dump docdb.Dump[todo.Record]

			err = json.Unmarshal(data, &dump)
			if err != nil {
				return fmt.Errorf("decode dump: %w", err)
			}

			todos, err := a.todos(ctx)
			if err != nil {
				return err
			}

			n, err := todos.Import(ctx, dump)
			if err != nil {
				return err
			}

			o.Printf("imported %d todos\n", n)

			return nil
		},
	}
}

func resolve(a *app, path string) string {
	if filepath.IsAbs(path) {
		return path
	}

	return filepath.Join(a.cfg.EffectiveCwd, path)
}
