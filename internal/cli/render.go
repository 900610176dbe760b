package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"gopkg.in/yaml.v3"

	"github.com/calvinalkan/todo-sync/internal/syncer"
	"github.com/calvinalkan/todo-sync/internal/todo"
)

// Output formats of ls.
const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

var (
	headingStyle = lipgloss.NewStyle().Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// listing is the machine-readable form of a view.
type listing struct {
	Remote      []todo.Record `json:"remote"                 yaml:"remote"`
	RemoteError string        `json:"remote_error,omitempty" yaml:"remote_error,omitempty"`
	Local       []todo.Record `json:"local"                  yaml:"local"`
	LocalError  string        `json:"local_error,omitempty"  yaml:"local_error,omitempty"`
}

func newListing(v syncer.View) listing {
	l := listing{Remote: v.Remote, Local: v.Local}

	if l.Remote == nil {
		l.Remote = []todo.Record{}
	}

	if v.RemoteErr != nil {
		l.RemoteError = v.RemoteErr.Error()
	}

	if v.LocalErr != nil {
		l.LocalError = v.LocalErr.Error()
	}

	return l
}

func render(w io.Writer, v syncer.View, format string) error {
	switch format {
	case formatTable:
		renderTable(w, v)

		return nil
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		return enc.Encode(newListing(v))
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)

		err := enc.Encode(newListing(v))
		if err != nil {
			return err
		}

		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q (want table, json or yaml)", format)
	}
}

// renderTable prints the service list above the local list. A failed
// list shows its error in place of the rows.
func renderTable(w io.Writer, v syncer.View) {
	section(w, "Remote", v.Remote, v.RemoteErr, v.Remote == nil)
	fprintln(w)
	section(w, "Local", v.Local, v.LocalErr, false)
}

func section(w io.Writer, title string, todos []todo.Record, err error, loading bool) {
	fprintln(w, headingStyle.Render(fmt.Sprintf("%s (%d)", title, len(todos))))

	switch {
	case err != nil:
		fprintln(w, errorStyle.Render("Error: "+err.Error()))
	case loading:
		fprintln(w, "loading...")
	case len(todos) == 0:
		fprintln(w, "no todos")
	default:
		fprintln(w, todoTable(todos))
	}
}

func todoTable(todos []todo.Record) string {
	rows := make([][]string, 0, len(todos))
	for _, r := range todos {
		rows = append(rows, []string{r.ID, r.Name, r.When, r.Where, r.Description})
	}

	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "NAME", "WHEN", "WHERE", "DESCRIPTION").
		Rows(rows...).
		String()
}
