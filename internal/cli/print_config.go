package cli

import (
	"context"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/todo-sync/internal/config"
)

func printConfigCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("print-config", flag.ContinueOnError),
		Usage: "print-config",
		Short: "Show resolved configuration",
		Long:  "Display the effective configuration and where it was loaded from. The API key is redacted.",
		Exec: func(_ context.Context, o *IO, _ []string) error {
			formatted, err := config.Format(a.cfg)
			if err != nil {
				return err
			}

			o.Println(formatted)
			o.Println()
			o.Println("effective_cwd=" + a.cfg.EffectiveCwd)
			o.Println("db_path=" + a.cfg.DBDirAbs)
			o.Println()
			o.Println("# sources")

			src := a.cfg.Sources
			if src.Global == "" && src.Project == "" && len(src.Env) == 0 {
				o.Println("(defaults only)")

				return nil
			}

			if src.Global != "" {
				o.Println("global_config=" + src.Global)
			}

			if src.Project != "" {
				o.Println("project_config=" + src.Project)
			}

			if len(src.Env) > 0 {
				o.Println("env=" + strings.Join(src.Env, ","))
			}

			return nil
		},
	}
}
