package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/codelens-dev/lens/internal/testenv"
	"github.com/codelens-dev/lens/internal/testutil"
	"github.com/stretchr/testify/require"
)

// testEnv is a fake service plus a private data dir. Commands run against
// it share the stored credential the way separate lens invocations do.
type testEnv struct {
	t       *testing.T
	api     *testutil.FakeAPI
	dataDir string
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{t: t, api: testutil.NewFakeAPI(t), dataDir: testenv.SetDataDir(t)}
	env.writeConfig("poll_interval = \"5ms\"\n")
	env.api.AddUser("ann", "a@b.com", "pw")
	return env
}

func (e *testEnv) writeConfig(content string) {
	e.t.Helper()
	require.NoError(e.t, os.WriteFile(filepath.Join(e.dataDir, "config.toml"), []byte(content), 0644))
}

type result struct {
	stdout string
	stderr string
	err    error
}

// run executes one lens invocation with stdin as its input.
func (e *testEnv) run(stdin string, args ...string) result {
	e.t.Helper()
	root, cleanup := newRootCmd()
	var stdout, stderr bytes.Buffer
	root.SetArgs(append([]string{"--api-url", e.api.URL()}, args...))
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	err := root.ExecuteContext(context.Background())
	cleanup()
	return result{stdout: stdout.String(), stderr: stderr.String(), err: err}
}

// mustRun is run for invocations expected to succeed.
func (e *testEnv) mustRun(stdin string, args ...string) string {
	e.t.Helper()
	res := e.run(stdin, args...)
	require.NoError(e.t, res.err, "lens %s\nstdout:\n%s\nstderr:\n%s", strings.Join(args, " "), res.stdout, res.stderr)
	return res.stdout
}

func (e *testEnv) login() {
	e.t.Helper()
	e.mustRun("pw\n", "login", "--email", "a@b.com")
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	if e, ok := err.(*exitError); ok {
		return e.code
	}
	return 1
}
