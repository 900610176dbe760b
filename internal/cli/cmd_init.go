package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/todo-sync/internal/config"
)

var errConfigExists = errors.New("config file already exists")

func initCmd(a *app) *Command {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	force := fs.Bool("force", false, "Overwrite an existing project config")

	return &Command{
		Flags: fs,
		Usage: "init [--force]",
		Short: "Write the resolved configuration to " + config.FileName,
		Long: `Write the resolved configuration to ` + config.FileName + ` in the working
directory, so later runs need no flags. Combine with --endpoint.`,
		Exec: func(_ context.Context, o *IO, _ []string) error {
			path := filepath.Join(a.cfg.EffectiveCwd, config.FileName)

			_, err := os.Stat(path)
			if err == nil && !*force {
				return fmt.Errorf("%w: %s (use --force)", errConfigExists, path)
			}

			err = config.Save(path, a.cfg)
			if err != nil {
				return err
			}

			o.Println("wrote", path)

			return nil
		},
	}
}
