// Package cli implements the todosync command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/calvinalkan/todo-sync/internal/config"
)

var (
	errFlagRequiresArg = errors.New("flag requires an argument")
	errUnknownFlag     = errors.New("unknown flag")
	errUnknownCommand  = errors.New("unknown command")
)

const (
	consumedNone = 0
	consumedOne  = 1
	consumedTwo  = 2
	helpFlag     = "--help"
)

// Run is the main entry point. args[0] is the program name. A signal on
// sigCh cancels the running command. Returns the exit code.
func Run(in io.Reader, out, errOut io.Writer, args []string, env map[string]string, sigCh <-chan os.Signal) int {
	if len(args) < 2 {
		printUsage(out, commands(nil))

		return 0
	}

	flags, err := parseGlobalFlags(args[1:])
	if err != nil {
		fprintln(errOut, "error:", err)
		printUsage(errOut, commands(nil))

		return 1
	}

	if len(flags.remaining) == 0 || flags.remaining[0] == helpFlag || flags.remaining[0] == "-h" {
		printUsage(out, commands(nil))

		return 0
	}

	cfg, err := config.Load(config.LoadInput{
		WorkDir:    flags.workDir,
		ConfigPath: flags.configPath,
		Overrides:  config.Config{Endpoint: flags.endpoint, DBDir: flags.dbDir},
		Env:        env,
	})
	if err != nil {
		fprintln(errOut, "error:", err)

		return 1
	}

	log := newLogger(errOut, cfg.Production(), flags.verbose)
	defer func() { _ = log.Sync() }()

	a := &app{cfg: cfg, log: log, env: env}
	defer a.close()

	name := flags.remaining[0]

	var cmd *Command

	for _, c := range commands(a) {
		if c.Name() == name {
			cmd = c

			break
		}
	}

	if cmd == nil {
		fprintln(errOut, "error:", fmt.Errorf("%w: %s", errUnknownCommand, name))
		printUsage(errOut, commands(nil))

		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	o := NewIO(in, out, errOut)

	code := cmd.Run(ctx, o, flags.remaining[1:])
	if code != 0 {
		return code
	}

	return o.Finish()
}

// commands lists every command. a may be nil when only help text is needed.
func commands(a *app) []*Command {
	return []*Command{
		lsCmd(a),
		addCmd(a),
		updateCmd(a),
		rmCmd(a),
		countCmd(a),
		watchCmd(a),
		shellCmd(a),
		exportCmd(a),
		importCmd(a),
		serveCmd(a),
		initCmd(a),
		printConfigCmd(a),
	}
}

type globalFlags struct {
	workDir    string
	configPath string
	endpoint   string
	dbDir      string
	verbose    bool
	remaining  []string
}

func parseGlobalFlags(args []string) (globalFlags, error) {
	var flags globalFlags

	idx := 0
	for idx < len(args) {
		consumed, err := parseFlag(args, idx, &flags)
		if err != nil {
			return globalFlags{}, err
		}

		if consumed == consumedNone {
			flags.remaining = args[idx:]

			break
		}

		idx += consumed
	}

	return flags, nil
}

// parseFlag parses the global flag at args[idx] and returns how many args
// it consumed, 0 when args[idx] is not a flag.
func parseFlag(args []string, idx int, flags *globalFlags) (int, error) {
	arg := args[idx]

	valued := []struct {
		short, long string
		dst         *string
	}{
		{"-C", "--cwd", &flags.workDir},
		{"-c", "--config", &flags.configPath},
		{"", "--endpoint", &flags.endpoint},
		{"", "--db-dir", &flags.dbDir},
	}

	for _, f := range valued {
		if arg == f.long || (f.short != "" && arg == f.short) {
			if idx+1 >= len(args) {
				return consumedNone, fmt.Errorf("%w: %s", errFlagRequiresArg, arg)
			}

			*f.dst = args[idx+1]

			return consumedTwo, nil
		}

		if after, ok := strings.CutPrefix(arg, f.long+"="); ok {
			*f.dst = after

			return consumedOne, nil
		}
	}

	switch arg {
	case "-v", "--verbose":
		flags.verbose = true

		return consumedOne, nil
	case "-h", helpFlag:
		flags.remaining = []string{helpFlag}

		return len(args) - idx, nil
	}

	if strings.HasPrefix(arg, "-") && arg != "-" {
		return consumedNone, fmt.Errorf("%w: %s", errUnknownFlag, arg)
	}

	return consumedNone, nil
}

func fprintln(w io.Writer, a ...any) {
	_, _ = fmt.Fprintln(w, a...)
}

func printUsage(w io.Writer, cmds []*Command) {
	fprintln(w, `todosync - to-do list synced between a GraphQL service and a local store

Usage: todosync [options] <command> [args]

Options:
  -C, --cwd <dir>        Run as if started in <dir>
  -c, --config <file>    Use specified config file
      --endpoint <url>   GraphQL endpoint
      --db-dir <dir>     Local database directory
  -v, --verbose          Debug logging

Commands:`)

	for _, c := range cmds {
		fprintln(w, c.HelpLine())
	}
}
