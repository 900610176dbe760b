package cli

import (
	"context"

	flag "github.com/spf13/pflag"
)

func lsCmd(a *app) *Command {
	fs := flag.NewFlagSet("ls", flag.ContinueOnError)
	output := fs.StringP("output", "o", formatTable, "Output format: table, json or yaml")

	return &Command{
		Flags: fs,
		Usage: "ls [-o table|json|yaml]",
		Short: "List remote and local todos",
		Long: `List the service's todos and the local store's todos side by side.

A list that failed to load shows its error instead of rows. The exit code
stays 0: an unreachable service is shown, not fatal.`,
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			ctrl, err := a.mount(ctx)
			if err != nil {
				return err
			}
			defer ctrl.Unmount()

			return render(o.Out(), ctrl.View(), *output)
		},
	}
}
