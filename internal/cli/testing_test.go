package cli_test

import (
	"bytes"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/todo-sync/internal/cli"
	"github.com/calvinalkan/todo-sync/internal/config"
	"github.com/calvinalkan/todo-sync/internal/fakeapi"
)

const testKey = "cli-test-key"

// CLI runs todosync against a temp directory.
type CLI struct {
	t   *testing.T
	Dir string
	Env map[string]string
	API *fakeapi.Server
}

func NewCLI(t *testing.T) *CLI {
	t.Helper()

	return &CLI{t: t, Dir: t.TempDir(), Env: map[string]string{}}
}

// NewCLIWithAPI points the CLI at an in-memory service that assigns the
// ids abc123, def456, ghi789 in turn.
func NewCLIWithAPI(t *testing.T) *CLI {
	t.Helper()

	c := NewCLI(t)

	ids := []string{"abc123", "def456", "ghi789"}
	next := 0

	api, err := fakeapi.New(fakeapi.Options{
		APIKey: testKey,
		NewID: func() string {
			id := ids[next%len(ids)]
			next++

			return id
		},
	})
	require.NoError(t, err)

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	c.API = api
	c.Env[config.EnvVarEndpoint] = srv.URL + fakeapi.Path
	c.Env[config.EnvVarAPIKey] = testKey

	return c
}

func (c *CLI) Run(args ...string) (string, string, int) {
	return c.RunWithInput("", args...)
}

func (c *CLI) RunWithInput(stdin string, args ...string) (string, string, int) {
	var outBuf, errBuf bytes.Buffer

	fullArgs := append([]string{"todosync", "--cwd", c.Dir}, args...)
	code := cli.Run(strings.NewReader(stdin), &outBuf, &errBuf, fullArgs, c.Env, nil)

	return outBuf.String(), errBuf.String(), code
}

// MustRun fails the test on a non-zero exit and returns trimmed stdout.
func (c *CLI) MustRun(args ...string) string {
	c.t.Helper()

	stdout, stderr, code := c.Run(args...)
	if code != 0 {
		c.t.Fatalf("command %v failed with exit code %d\nstderr: %s", args, code, stderr)
	}

	return strings.TrimSpace(stdout)
}

// MustFail fails the test on a zero exit or any stdout, and returns
// trimmed stderr.
func (c *CLI) MustFail(args ...string) string {
	c.t.Helper()

	stdout, stderr, code := c.Run(args...)
	if code == 0 {
		c.t.Fatalf("command %v should have failed but succeeded\nstdout: %s", args, stdout)
	}

	if stdout != "" {
		c.t.Fatalf("command %v failed but stdout should be empty\nstdout: %s", args, stdout)
	}

	return strings.TrimSpace(stderr)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}
