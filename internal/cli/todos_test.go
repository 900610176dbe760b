package cli_test

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/todo-sync/internal/fakeapi"
	"github.com/calvinalkan/todo-sync/internal/todo"
)

var lunchArgs = []string{"add", "--name", "Lunch", "--when", "Tuesday", "--where", "Cafe", "--description", "team sync"}

var lunch = todo.Record{ID: "abc123", Name: "Lunch", When: "Tuesday", Where: "Cafe", Description: "team sync"}

type listing struct {
	Remote      []todo.Record `json:"remote"`
	RemoteError string        `json:"remote_error"`
	Local       []todo.Record `json:"local"`
	LocalError  string        `json:"local_error"`
}

func list(t *testing.T, c *CLI) listing {
	t.Helper()

	var l listing

	require.NoError(t, json.Unmarshal([]byte(c.MustRun("ls", "-o", "json")), &l))

	return l
}

func Test_Add_Creates_Todo_Remotely_And_Locally_When_Service_Accepts(t *testing.T) {
	t.Parallel()

	c := NewCLIWithAPI(t)

	assert.Equal(t, "abc123", c.MustRun(lunchArgs...))

	got := list(t, c)
	want := listing{Remote: []todo.Record{lunch}, Local: []todo.Record{lunch}}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("listing mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, "1", c.MustRun("count"))
}

func Test_Add_Writes_Nothing_Locally_When_Service_Fails(t *testing.T) {
	t.Parallel()

	c := NewCLIWithAPI(t)
	c.API.Fail(fakeapi.OpCreate, "create rejected")

	stderr := c.MustFail(lunchArgs...)
	assert.Contains(t, stderr, "create rejected")
	assert.Contains(t, stderr, "error adding todo")

	assert.Equal(t, "0", c.MustRun("count"))
}

func Test_Update_Merges_Given_Fields_When_Todo_Exists(t *testing.T) {
	t.Parallel()

	c := NewCLIWithAPI(t)
	c.MustRun(lunchArgs...)

	assert.Equal(t, "abc123", c.MustRun("update", "abc123", "--where", "Office"))

	want := lunch
	want.Where = "Office"

	got := list(t, c)
	assert.Equal(t, []todo.Record{want}, got.Remote)
	assert.Equal(t, []todo.Record{want}, got.Local)
}

func Test_Update_Fails_When_Todo_Unknown(t *testing.T) {
	t.Parallel()

	c := NewCLIWithAPI(t)

	assert.Contains(t, c.MustFail("update", "nope", "--name", "x"), "todo not found: nope")
	assert.Contains(t, c.MustFail("update"), "todo id is required")
}

func Test_Rm_Deletes_From_Both_Sides_When_Todo_Exists(t *testing.T) {
	t.Parallel()

	c := NewCLIWithAPI(t)
	c.MustRun(lunchArgs...)

	assert.Equal(t, "abc123", c.MustRun("rm", "abc123"))

	got := list(t, c)
	assert.Empty(t, got.Remote)
	assert.Empty(t, got.Local)
}

func Test_Rm_Deletes_Remote_Only_Todo_When_Local_Copy_Missing(t *testing.T) {
	t.Parallel()

	c := NewCLIWithAPI(t)
	c.API.Seed(todo.Record{ID: "remote1", Name: "Elsewhere", When: "now", Where: "there", Description: "-"})

	_, stderr, code := c.Run("rm", "remote1")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stderr, "todo not found in local store")
	assert.Empty(t, c.API.Todos())
}

func Test_Ls_Shows_Error_Inline_When_Remote_List_Fails(t *testing.T) {
	t.Parallel()

	c := NewCLIWithAPI(t)
	c.API.Fail(fakeapi.OpList, "list down")

	stdout := c.MustRun("ls")
	assert.Contains(t, stdout, "Error: ")
	assert.Contains(t, stdout, "list down")
	assert.Contains(t, stdout, "Local (0)")

	got := list(t, c)
	assert.Contains(t, got.RemoteError, "list down")
	assert.Empty(t, got.Remote)
}

func Test_Ls_Renders_Table_And_Yaml_When_Todos_Exist(t *testing.T) {
	t.Parallel()

	c := NewCLIWithAPI(t)
	c.MustRun(lunchArgs...)

	table := c.MustRun("ls")
	assert.Contains(t, table, "Remote (1)")
	assert.Contains(t, table, "Local (1)")
	assert.Contains(t, table, "DESCRIPTION")
	assert.Contains(t, table, "team sync")

	yml := c.MustRun("ls", "-o", "yaml")
	assert.Contains(t, yml, "remote:")
	assert.Contains(t, yml, "name: Lunch")

	assert.Contains(t, c.MustFail("ls", "-o", "xml"), `unknown output format "xml"`)
}

func Test_Watch_Renders_Once_When_Count_Is_One(t *testing.T) {
	t.Parallel()

	c := NewCLIWithAPI(t)
	c.MustRun(lunchArgs...)

	stdout := c.MustRun("watch", "-n", "1")
	assert.Contains(t, stdout, "Remote (1)")
	assert.NotContains(t, stdout, "---")
}

func Test_Export_Import_Copies_Local_Todos_When_Schema_Matches(t *testing.T) {
	t.Parallel()

	src := NewCLIWithAPI(t)
	src.MustRun(lunchArgs...)

	dumpPath := filepath.Join(t.TempDir(), "dump.json")
	assert.Contains(t, src.MustRun("export", "-f", dumpPath), "exported 1 todos")

	dst := NewCLI(t)
	assert.Equal(t, "imported 1 todos", dst.MustRun("import", dumpPath))
	assert.Equal(t, "1", dst.MustRun("count"))

	dst.MustFail("import", dumpPath)
	assert.Equal(t, "1", dst.MustRun("count"))

	stdout := dst.MustRun("export")
	assert.Contains(t, stdout, `"collection": "todos"`)
	assert.Contains(t, stdout, `"id": "abc123"`)
}

func Test_Shell_Submits_And_Edits_When_Driven_By_Stdin(t *testing.T) {
	t.Parallel()

	c := NewCLIWithAPI(t)

	script := `set name Lunch
set when Tuesday
set where Cafe
set description team sync
submit
show abc123
scream abc123 hello
edit abc123
set where Office
commit
commit
bogus
quit
`

	stdout, stderr, code := c.RunWithInput(script, "shell")
	require.Equal(t, 0, code, stderr)

	assert.Contains(t, stdout, "created abc123")
	assert.Contains(t, stdout, "Lunch Cafe")
	assert.Contains(t, stdout, "Lunch screams: HELLO")
	assert.Contains(t, stdout, "updated abc123")
	assert.Contains(t, stdout, "nothing to commit")
	assert.Contains(t, stdout, `unknown command "bogus"`)

	want := lunch
	want.Where = "Office"

	assert.Equal(t, []todo.Record{want}, c.API.Todos())
}

func Test_Watch_Renders_Again_When_Lists_Change(t *testing.T) {
	t.Parallel()

	c := NewCLIWithAPI(t)

	stdout := c.MustRun("watch", "-n", "2")
	assert.Equal(t, 2, strings.Count(stdout, "Remote (0)"))
	assert.Contains(t, stdout, "---")
}
