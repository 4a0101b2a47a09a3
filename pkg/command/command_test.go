package command

import (
	"context"
	"fmt"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
}

func TestExecRunnerCapturesStreams(t *testing.T) {
	skipOnWindows(t)
	r := NewExecRunner(zaptest.NewLogger(t))

	res, err := r.Run(context.Background(), Spec{
		Name: "sh",
		Args: []string{"-c", "echo out; echo err >&2"},
	})
	require.NoError(t, err)
	assert.True(t, res.Success())
	assert.Equal(t, "out\n", res.Stdout)
	assert.Equal(t, "err\n", res.Stderr)
}

func TestExecRunnerNonZeroExit(t *testing.T) {
	skipOnWindows(t)
	r := NewExecRunner(zaptest.NewLogger(t))

	res, err := r.Run(context.Background(), Spec{
		Name: "sh",
		Args: []string{"-c", "echo compilation error >&2; exit 2"},
	})
	require.NoError(t, err)
	assert.False(t, res.Success())
	assert.Equal(t, 2, res.ExitCode)
	assert.Equal(t, "compilation error\n", res.Stderr)
}

func TestExecRunnerEnvAndDir(t *testing.T) {
	skipOnWindows(t)
	dir := t.TempDir()
	r := NewExecRunner(zaptest.NewLogger(t))

	res, err := r.Run(context.Background(), Spec{
		Name: "sh",
		Args: []string{"-c", `printf "%s %s" "$SNOWLIFT_TEST" "$(pwd)"`},
		Env:  []string{"SNOWLIFT_TEST=yes"},
		Dir:  dir,
	})
	require.NoError(t, err)
	assert.Contains(t, res.Stdout, "yes ")
	assert.Contains(t, res.Stdout, dir)
}

func TestExecRunnerMissingBinary(t *testing.T) {
	r := NewExecRunner(zaptest.NewLogger(t))

	_, err := r.Run(context.Background(), Spec{Name: "snowlift-no-such-binary"})
	assert.Error(t, err)
}

func TestSpecString(t *testing.T) {
	s := Spec{Name: "dbt", Args: []string{"run", "--target", "prod"}, Env: []string{"SECRET=x"}}
	assert.Equal(t, "dbt run --target prod", s.String())
}

func TestFakeRunner(t *testing.T) {
	f := &FakeRunner{Result: &Result{Stdout: "ok"}}
	res, err := f.Run(context.Background(), Spec{Name: "dbt", Args: []string{"run"}})
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Stdout)

	f.Err = fmt.Errorf("boom")
	_, err = f.Run(context.Background(), Spec{Name: "dbt"})
	assert.Error(t, err)
	assert.Len(t, f.Calls(), 2)
}
