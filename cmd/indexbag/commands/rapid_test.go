package commands_test

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/indexbag/cmd/indexbag/commands"
	"github.com/Sumatoshi-tech/indexbag/pkg/config"
	"github.com/Sumatoshi-tech/indexbag/pkg/rapid"
)

func executeRapid(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	return executeRapidContext(t, context.Background(), args...)
}

func executeRapidContext(t *testing.T, ctx context.Context, args ...string) (string, string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer

	cmd := commands.NewRapidCommand()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(ctx)

	return stdout.String(), stderr.String(), err
}

func TestRapidCommand_JSONReport(t *testing.T) {
	t.Parallel()

	stdout, _, err := executeRapid(t, "--ops", "300", "--seed", "11", "--format", "json")
	require.NoError(t, err)

	var report rapid.Report

	require.NoError(t, json.Unmarshal([]byte(stdout), &report))
	assert.Equal(t, uint64(11), report.Seed)
	assert.Equal(t, uint64(300+9), report.Actions()+report.Skipped)
	assert.Equal(t, report.PoolSize, report.Live+report.Unused)
}

func TestRapidCommand_TableReport(t *testing.T) {
	t.Parallel()

	stdout, _, err := executeRapid(t, "--ops", "50", "--base", "20")
	require.NoError(t, err)

	assert.Contains(t, stdout, "indexbag rapid run")
	assert.Contains(t, stdout, "Pool size")
}

func TestRapidCommand_ConfigFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "indexbag.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
bag:
  page_size: 16
rapid:
  seed: 5
  ops: 40
  hibernate_each: 7
  weights:
    insert: 2
    remove: 1
    lookup: 1
logging:
  format: json
`), 0o600))

	stdout, stderr, err := executeRapid(t, "--config", path, "--format", "yaml", "--trace", "--no-color")
	require.NoError(t, err)

	assert.Contains(t, stdout, "seed: 5")
	assert.Contains(t, stdout, "hibernations: 7")
	assert.Contains(t, stderr, "INSERT (")
	assert.Contains(t, stderr, `"msg":"rapid run finished"`)
}

func TestRapidCommand_MetricsServer(t *testing.T) {
	t.Parallel()

	_, stderr, err := executeRapid(t, "--ops", "20", "--metrics-addr", "127.0.0.1:0")
	require.NoError(t, err)

	assert.Contains(t, stderr, "serving metrics")
}

func TestRapidCommand_Errors(t *testing.T) {
	t.Parallel()

	_, _, err := executeRapid(t, "--format", "xml")
	require.ErrorIs(t, err, rapid.ErrUnknownFormat)

	_, _, err = executeRapid(t, "--ops", "-1")
	require.ErrorIs(t, err, config.ErrInvalidOps)

	_, _, err = executeRapid(t, "--base", "-3")
	require.ErrorIs(t, err, config.ErrInvalidBase)

	_, _, err = executeRapid(t, "extra")
	require.Error(t, err)
}

func TestRapidCommand_Plot(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "occupancy.html")

	_, _, err := executeRapid(t, "--ops", "250", "--plot", path)
	require.NoError(t, err)

	html, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(html), "Bag occupancy")
}

func TestRapidCommand_CheckpointResume(t *testing.T) {
	t.Parallel()

	decode := func(stdout string) rapid.Report {
		var report rapid.Report

		require.NoError(t, json.Unmarshal([]byte(stdout), &report))

		report.Duration = 0

		return report
	}

	straight, _, err := executeRapid(t, "--seed", "3", "--ops", "200", "--format", "json")
	require.NoError(t, err)

	dir := t.TempDir()

	_, _, err = executeRapid(t, "--seed", "3", "--ops", "100", "--format", "json", "--checkpoint", dir)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "rapid.gob"))

	resumed, stderr, err := executeRapid(t, "--ops", "100", "--format", "json", "--checkpoint", dir)
	require.NoError(t, err)
	assert.Contains(t, stderr, "resumed from checkpoint")

	assert.Equal(t, decode(straight), decode(resumed))
}

func TestRapidCommand_InterruptedRunKeepsCheckpoint(t *testing.T) {
	t.Parallel()

	decode := func(stdout string) rapid.Report {
		var report rapid.Report

		require.NoError(t, json.Unmarshal([]byte(stdout), &report))

		report.Duration = 0

		return report
	}

	straight, _, err := executeRapid(t, "--seed", "5", "--ops", "150", "--format", "json")
	require.NoError(t, err)

	dir := t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err = executeRapidContext(t, ctx, "--seed", "5", "--ops", "150", "--format", "json", "--checkpoint", dir)
	require.ErrorIs(t, err, context.Canceled)
	assert.FileExists(t, filepath.Join(dir, "rapid.gob"))

	resumed, _, err := executeRapid(t, "--ops", "150", "--format", "json", "--checkpoint", dir)
	require.NoError(t, err)

	assert.Equal(t, decode(straight), decode(resumed))
}
