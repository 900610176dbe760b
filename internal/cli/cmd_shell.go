package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/peterh/liner"
	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/todo-sync/internal/syncer"
	"github.com/calvinalkan/todo-sync/internal/todo"
)

const shellPrompt = "todosync> "

var shellWords = []string{"help", "set", "form", "clear", "submit", "edit", "commit", "rm", "ls", "show", "scream", "quit"}

// prompter reads one line per prompt. io.EOF ends the session.
type prompter interface {
	Prompt(prompt string) (string, error)
	AppendHistory(line string)
	Close() error
}

// linePrompter reads plain lines when stdin is not a terminal.
type linePrompter struct {
	sc *bufio.Scanner
}

func (p *linePrompter) Prompt(string) (string, error) {
	if !p.sc.Scan() {
		if err := p.sc.Err(); err != nil {
			return "", err
		}

		return "", io.EOF
	}

	return p.sc.Text(), nil
}

func (*linePrompter) AppendHistory(string) {}

func (*linePrompter) Close() error { return nil }

// linerPrompter is an interactive line editor with history.
type linerPrompter struct {
	*liner.State
	history string
}

func newLinerPrompter(history string) *linerPrompter {
	st := liner.NewLiner()
	st.SetCtrlCAborts(true)
	st.SetCompleter(func(line string) []string {
		var out []string

		for _, w := range shellWords {
			if strings.HasPrefix(w, strings.ToLower(line)) {
				out = append(out, w)
			}
		}

		return out
	})

	if f, err := os.Open(history); err == nil {
		_, _ = st.ReadHistory(f)
		_ = f.Close()
	}

	return &linerPrompter{State: st, history: history}
}

func (p *linerPrompter) Prompt(prompt string) (string, error) {
	line, err := p.State.Prompt(prompt)
	if errors.Is(err, liner.ErrPromptAborted) {
		return "", io.EOF
	}

	return line, err
}

func (p *linerPrompter) Close() error {
	if p.history != "" {
		if f, err := os.Create(p.history); err == nil {
			_, _ = p.WriteHistory(f)
			_ = f.Close()
		}
	}

	return p.State.Close()
}

func shellCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("shell", flag.ContinueOnError),
		Usage: "shell",
		Short: "Interactive session with the edit form",
		Long: `Start an interactive session. Fill the form with "set <field> <value>",
create with "submit", edit an existing todo with "edit <id>" then "commit".
Type "help" for all commands.`,
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			ctrl, err := a.mount(ctx)
			if err != nil {
				return err
			}
			defer ctrl.Unmount()

			var p prompter

			if f, ok := o.In().(*os.File); ok && f == os.Stdin && liner.TerminalSupported() {
				history := ""
				if home := a.env["HOME"]; home != "" {
					history = filepath.Join(home, ".todosync_history")
				}

				p = newLinerPrompter(history)
			} else {
				in := o.In()
				if in == nil {
					in = strings.NewReader("")
				}

				p = &linePrompter{sc: bufio.NewScanner(in)}
			}

			defer func() { _ = p.Close() }()

			s := &shell{a: a, ctrl: ctrl, o: o}

			return s.loop(ctx, p)
		},
	}
}

const settleTimeout = 5 * time.Second

type shell struct {
	a    *app
	ctrl *syncer.Controller
	o    *IO
}

// find looks id up in the view, then in the local store. The view trails
// writes made a moment ago.
func (s *shell) find(ctx context.Context, id string) (todo.Record, error) {
	rec, err := lookup(s.ctrl.View(), id)
	if err == nil {
		return rec, nil
	}

	todos, lerr := s.a.todos(ctx)
	if lerr != nil {
		return todo.Record{}, err
	}

	rec, lerr = todos.FindOne(ctx, id)
	if lerr != nil {
		return todo.Record{}, err
	}

	return rec, nil
}

// settle waits for the controller's own local writes to come back, so the
// form reset they trigger does not land on later input.
func (s *shell) settle(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, settleTimeout)
	defer cancel()

	_ = s.ctrl.Settle(ctx)
}

func (s *shell) loop(ctx context.Context, p prompter) error {
	for ctx.Err() == nil {
		line, err := p.Prompt(shellPrompt)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}

			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		p.AppendHistory(line)

		word, rest, _ := strings.Cut(line, " ")
		rest = strings.TrimSpace(rest)

		if word == "quit" || word == "exit" {
			return nil
		}

		err = s.exec(ctx, strings.ToLower(word), rest)
		if err != nil {
			s.o.Println("error:", err)
		}
	}

	return nil
}

func (s *shell) exec(ctx context.Context, word, rest string) error {
	switch word {
	case "help", "?":
		s.help()
	case "set":
		field, value, _ := strings.Cut(rest, " ")

		return s.ctrl.SetField(field, strings.TrimSpace(value))
	case "clear":
		s.ctrl.SetForm(todo.Form{})
	case "form":
		s.printForm()
	case "submit":
		created, err := s.ctrl.Submit(ctx)
		if err != nil {
			return err
		}

		s.settle(ctx)

		s.o.Println("created", created.ID)
	case "edit":
		if s.ctrl.View().Updating {
			return errors.New("already editing, commit first")
		}

		rec, err := s.find(ctx, rest)
		if err != nil {
			return err
		}

		err = s.ctrl.Update(ctx, rec)
		if err != nil {
			return err
		}

		s.printForm()
	case "commit":
		v := s.ctrl.View()
		if !v.Updating {
			return errors.New(`nothing to commit, use "edit <id>" first`)
		}

		rec, err := s.find(ctx, v.EditingID)
		if err != nil {
			rec = todo.Record{ID: v.EditingID}
		}

		err = s.ctrl.Update(ctx, rec)
		if err != nil {
			return err
		}

		s.settle(ctx)
		s.o.Println("updated", rec.ID)
	case "rm":
		err := s.ctrl.Delete(ctx, todo.Record{ID: rest})
		if err != nil {
			return err
		}

		s.settle(ctx)

		s.o.Println("deleted", rest)
	case "ls":
		renderTable(s.o.Out(), s.ctrl.View())
	case "show":
		rec, err := s.find(ctx, rest)
		if err != nil {
			return err
		}

		s.o.Println(todo.DisplayName(rec))
	case "scream":
		id, what, _ := strings.Cut(rest, " ")

		rec, err := s.find(ctx, id)
		if err != nil {
			return err
		}

		s.o.Println(todo.Scream(rec, what))
	default:
		return fmt.Errorf("unknown command %q (type help)", word)
	}

	return nil
}

func (s *shell) printForm() {
	v := s.ctrl.View()

	s.o.Printf("state: %s, record: %s\n", v.State, v.Record)

	for _, field := range todo.Fields {
		s.o.Printf("  %-12s %s\n", field+":", v.Form.Get(field))
	}
}

func (s *shell) help() {
	s.o.Println(`Commands:
  set <field> <value>   Set a form field (name, when, where, description)
  form                  Show the form
  clear                 Clear the form
  submit                Create a todo from the form
  edit <id>             Load a todo into the form
  commit                Save the form onto the todo being edited
  rm <id>               Delete a todo
  ls                    List remote and local todos
  show <id>             Print a todo's display name
  scream <id> <text>    Let a todo shout
  quit                  Leave`)
}
