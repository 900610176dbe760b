package cli

import (
	"context"
	"errors"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/todo-sync/internal/todo"
)

var errIDRequired = errors.New("todo id is required")

// formFlags registers one flag per editable field.
func formFlags(fs *flag.FlagSet) map[string]*string {
	values := make(map[string]*string, len(todo.Fields))
	for _, field := range todo.Fields {
		values[field] = fs.String(field, "", "Todo "+field)
	}

	return values
}

func addCmd(a *app) *Command {
	fs := flag.NewFlagSet("add", flag.ContinueOnError)
	values := formFlags(fs)

	return &Command{
		Flags: fs,
		Usage: "add [flags]",
		Short: "Create a todo remotely, then locally",
		Long: `Create a todo on the service. On success it is inserted into the local
store under the id the service assigned. A failed local insert is logged
and does not fail the command.`,
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			ctrl, err := a.mount(ctx)
			if err != nil {
				return err
			}
			defer ctrl.Unmount()

			var form todo.Form
			for field, v := range values {
				_ = form.Set(field, *v)
			}

			ctrl.SetForm(form)

			created, err := ctrl.Submit(ctx)
			if err != nil {
				return err
			}

			o.Println(created.ID)

			return nil
		},
	}
}

func updateCmd(a *app) *Command {
	fs := flag.NewFlagSet("update", flag.ContinueOnError)
	values := formFlags(fs)

	return &Command{
		Flags: fs,
		Usage: "update <id> [flags]",
		Short: "Update a todo locally, then remotely",
		Long: `Update a todo. Fields not given keep their current values. The local
copy is patched if it exists, then the service is updated regardless.`,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) != 1 {
				return errIDRequired
			}

			ctrl, err := a.mount(ctx)
			if err != nil {
				return err
			}
			defer ctrl.Unmount()

			rec, err := lookup(ctrl.View(), args[0])
			if err != nil {
				return err
			}

			// The first phase loads rec into the form, the second commits.
			err = ctrl.Update(ctx, rec)
			if err != nil {
				return err
			}

			for field, v := range values {
				if fs.Changed(field) {
					err = ctrl.SetField(field, *v)
					if err != nil {
						return err
					}
				}
			}

			err = ctrl.Update(ctx, rec)
			if err != nil {
				return err
			}

			o.Println(rec.ID)

			return nil
		},
	}
}

func rmCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("rm", flag.ContinueOnError),
		Usage: "rm <id>",
		Short: "Delete a todo locally, then remotely",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) != 1 {
				return errIDRequired
			}

			ctrl, err := a.mount(ctx)
			if err != nil {
				return err
			}
			defer ctrl.Unmount()

			err = ctrl.Delete(ctx, todo.Record{ID: args[0]})
			if err != nil {
				return err
			}

			o.Println(args[0])

			return nil
		},
	}
}

func countCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("count", flag.ContinueOnError),
		Usage: "count",
		Short: "Count local todos",
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			todos, err := a.todos(ctx)
			if err != nil {
				return err
			}

			n, err := todo.CountAll(ctx, todos)
			if err != nil {
				return err
			}

			o.Println(n)

			return nil
		},
	}
}
