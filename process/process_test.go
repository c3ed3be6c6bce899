package process

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshot(t *testing.T) {
	t.Setenv("UVLOOP_PROCESS_TEST", "a=b")
	info, err := Snapshot(context.Background())
	require.NoError(t, err)

	assert.Equal(t, os.Getpid(), info.Pid)
	assert.Equal(t, "a=b", info.Env["UVLOOP_PROCESS_TEST"])
	assert.Positive(t, info.CPUs)

	wd, err := os.Getwd()
	require.NoError(t, err)
	wd, err = filepath.EvalSymlinks(wd)
	require.NoError(t, err)
	assert.Equal(t, wd, info.Cwd)

	exe, err := os.Executable()
	require.NoError(t, err)
	want, err := filepath.EvalSymlinks(exe)
	require.NoError(t, err)
	got, err := filepath.EvalSymlinks(info.ExecPath)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestEnvMap(t *testing.T) {
	assert.Equal(t, map[string]string{"A": "1", "B": "", "C": "x=y"},
		envMap([]string{"A=0", "A=1", "B=", "C=x=y", "=hidden", "junk"}))
}
