package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"celldb/pkg/persistence"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, dataDir string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"--config", filepath.Join(dataDir, "absent.yaml"), "--data-dir", dataDir}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCommands_RoundTrip(t *testing.T) {
	dir := t.TempDir()

	for _, args := range [][]string{
		{"put", "a", "1"},
		{"put", "b", "2"},
		{"put", "c", "3"},
		{"delete", "b"},
	} {
		_, err := run(t, dir, args...)
		require.NoError(t, err, args)
	}

	out, err := run(t, dir, "get", "a")
	require.NoError(t, err)
	assert.Equal(t, "1\n", out)

	_, err = run(t, dir, "get", "b")
	assert.ErrorContains(t, err, "not found")

	out, err = run(t, dir, "scan")
	require.NoError(t, err)
	assert.Equal(t, "a\t1\nc\t3\n", out)

	out, err = run(t, dir, "scan", "--from", "b", "-n", "1")
	require.NoError(t, err)
	assert.Equal(t, "c\t3\n", out)

	out, err = run(t, dir, "compact")
	require.NoError(t, err)
	assert.Contains(t, out, "(2 rows)")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var tables int
	for _, e := range entries {
		if _, ok := persistence.ParseGeneration(e.Name()); ok {
			tables++
		}
	}
	assert.Equal(t, 1, tables)
}

func TestCommands_InvalidConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("logger:\n  level: chatty\n"), 0600))

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"--config", cfgPath, "scan"})
	err := root.ExecuteContext(context.Background())
	assert.ErrorContains(t, err, "logger.level")
}

func TestRunBenchmark(t *testing.T) {
	var calls [10]int
	res := runBenchmark(10, 3, func(i int) error {
		calls[i]++
		if i == 4 {
			return errors.New("boom")
		}
		return nil
	})

	assert.Equal(t, [10]int{1, 1, 1, 1, 1, 1, 1, 1, 1, 1}, calls)
	assert.Equal(t, 9, res.SuccessfulOps)
	assert.Equal(t, 1, res.FailedOps)
	assert.LessOrEqual(t, res.AvgLatency, res.MaxLatency)
}
