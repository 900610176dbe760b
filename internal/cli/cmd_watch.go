package cli

import (
	"context"
	"time"

	flag "github.com/spf13/pflag"
)

const clearScreen = "\033[H\033[2J"

func watchCmd(a *app) *Command {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	output := fs.StringP("output", "o", formatTable, "Output format: table, json or yaml")
	limit := fs.IntP("count", "n", 0, "Exit after this many renders (0 runs until interrupted)")

	return &Command{
		Flags: fs,
		Usage: "watch [flags]",
		Short: "Re-render both lists on every change",
		Long: `Mount the lists and print them again whenever either changes, including
commits to the local store made by other processes. Runs until interrupted.`,
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			a.watchExternal = true

			ctrl, err := a.mount(ctx)
			if err != nil {
				return err
			}
			defer ctrl.Unmount()

			tty := isTerminal(o.Out())

			for renders := 1; ; renders++ {
				switch {
				case tty:
					o.Printf("%s", clearScreen)
				case renders > 1:
					o.Println("---", time.Now().Format(time.TimeOnly))
				}

				err = render(o.Out(), ctrl.View(), *output)
				if err != nil {
					return err
				}

				if *limit > 0 && renders >= *limit {
					return nil
				}

				select {
				case <-ctx.Done():
					return nil
				case <-ctrl.Changed():
				}
			}
		},
	}
}
