package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/sigslot/internal/config"
	"github.com/mattjoyce/sigslot/internal/faults"
	"github.com/mattjoyce/sigslot/internal/signal"
	"github.com/mattjoyce/sigslot/internal/storage"
)

func captureOutputWithExitCode(t *testing.T, run func() int) (int, string, string) {
	t.Helper()

	oldStdout := os.Stdout
	oldStderr := os.Stderr

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe stdout failed: %v", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe stderr failed: %v", err)
	}

	os.Stdout = stdoutW
	os.Stderr = stderrW

	code := run()

	_ = stdoutW.Close()
	_ = stderrW.Close()
	os.Stdout = oldStdout
	os.Stderr = oldStderr

	stdoutBytes, _ := io.ReadAll(stdoutR)
	stderrBytes, _ := io.ReadAll(stderrR)

	_ = stdoutR.Close()
	_ = stderrR.Close()

	return code, string(stdoutBytes), string(stderrBytes)
}

func captureRun(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	return captureOutputWithExitCode(t, func() int { return run(args) })
}

const validConfig = `
service:
  log_level: debug
  log_format: text
  emit_timeout: 500ms
threads:
  - name: worker
    depth: 16
probes:
  - name: heartbeat
    every: 20ms
    mode: thread
    thread: worker
faults:
  enabled: true
  path: %DIR%/data/faults.db
`

func writeConfig(t *testing.T, body string) (dir, path string) {
	t.Helper()
	dir = t.TempDir()
	path = filepath.Join(dir, "config.yaml")
	body = strings.ReplaceAll(body, "%DIR%", dir)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return dir, path
}

func TestPrintUsageUsesActionTerminology(t *testing.T) {
	code, stdout, _ := captureRun(t, "help")
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "sigslot <noun> <action> [flags]")
	assert.Contains(t, stdout, "System Commands:")
	assert.Contains(t, stdout, "faults list")
	assert.NotContains(t, stdout, "verb")
}

func TestRunUnknownCommand(t *testing.T) {
	code, _, stderr := captureRun(t, "frobnicate")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "Unknown command: frobnicate")

	code, _, _ = captureRun(t)
	assert.Equal(t, 1, code)
}

func TestVersion(t *testing.T) {
	code, stdout, _ := captureRun(t, "version")
	assert.Equal(t, 0, code)
	assert.Equal(t, "sigslot version "+version+"\n", stdout)
}

func TestNounHelp(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"system", "help"}, "Actions: start, watch"},
		{[]string{"config", "--help"}, "Actions: check, lock"},
		{[]string{"faults", "-h"}, "Actions: list"},
		{[]string{"system", "start", "--help"}, "Usage: sigslot system start"},
		{[]string{"system", "watch", "-h"}, "Live monitor"},
		{[]string{"config", "check", "--help"}, "Usage: sigslot config check"},
		{[]string{"config", "lock", "--help"}, "Usage: sigslot config lock"},
		{[]string{"faults", "list", "--help"}, "Usage: sigslot faults list"},
	}
	for _, tt := range tests {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			code, stdout, _ := captureRun(t, tt.args...)
			assert.Equal(t, 0, code)
			assert.Contains(t, stdout, tt.want)
		})
	}
}

func TestNounWithoutActionFails(t *testing.T) {
	for _, noun := range []string{"system", "config", "faults"} {
		code, _, stderr := captureRun(t, noun)
		assert.Equal(t, 1, code, noun)
		assert.Contains(t, stderr, "Usage: sigslot "+noun, noun)

		code, _, stderr = captureRun(t, noun, "explode")
		assert.Equal(t, 1, code, noun)
		assert.Contains(t, stderr, "Unknown "+noun+" action: explode")
	}
}

func TestConfigCheckUnlockedWarnsAndStrictFails(t *testing.T) {
	_, path := writeConfig(t, validConfig)

	code, stdout, stderr := captureRun(t, "config", "check", "--config", path)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "Configuration valid:")
	assert.Contains(t, stdout, "threads: 1")
	assert.Contains(t, stdout, "probes:  1")
	assert.Contains(t, stdout, "WARNING: configuration is not locked")

	code, _, _ = captureRun(t, "config", "check", "--config", path, "--strict")
	assert.Equal(t, 2, code)
}

func TestConfigLockThenCheckJSON(t *testing.T) {
	dir, path := writeConfig(t, validConfig)

	code, stdout, stderr := captureRun(t, "config", "lock", "--config", path, "--dry-run", "-v")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "HASH config.yaml:")
	assert.Contains(t, stdout, "Dry run completed")
	_, err := os.Stat(filepath.Join(dir, config.ChecksumFile))
	assert.True(t, os.IsNotExist(err), "dry run must not write the manifest")

	code, stdout, stderr = captureRun(t, "config", "lock", "--config", path)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "Successfully locked configuration")

	code, stdout, stderr = captureRun(t, "config", "check", "--config", path, "--json", "--strict")
	require.Equal(t, 0, code, stderr)
	var res checkResult
	require.NoError(t, json.Unmarshal([]byte(stdout), &res))
	assert.True(t, res.Valid)
	assert.True(t, res.Locked)
	assert.Empty(t, res.Warnings)
}

func TestConfigCheckDetectsTamper(t *testing.T) {
	_, path := writeConfig(t, validConfig)
	code, _, stderr := captureRun(t, "config", "lock", "--config", path)
	require.Equal(t, 0, code, stderr)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	require.NoError(t, err)
	_, err = f.WriteString("# edited\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	code, stdout, _ := captureRun(t, "config", "check", "--config", path)
	assert.Equal(t, 1, code)
	assert.Contains(t, stdout, "Configuration invalid:")
	assert.Contains(t, stdout, "ERROR:")
}

func TestConfigCheckInvalidProbe(t *testing.T) {
	_, path := writeConfig(t, `
probes:
  - name: bad
    every: 1s
    mode: thread
`)
	code, stdout, _ := captureRun(t, "config", "check", "--config", path)
	assert.Equal(t, 1, code)
	assert.Contains(t, stdout, "requires a thread")
}

func TestFaultsListWithoutStore(t *testing.T) {
	_, path := writeConfig(t, validConfig)
	code, _, stderr := captureRun(t, "faults", "list", "--config", path)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "No fault store")

	code, _, stderr = captureRun(t, "faults", "list", "--config", path, "--limit", "0")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "--limit must be positive")
}

func TestFaultsListShowsRecords(t *testing.T) {
	dir, path := writeConfig(t, validConfig)
	dbPath := filepath.Join(dir, "data", "faults.db")

	ctx := context.Background()
	db, err := storage.OpenSQLite(ctx, dbPath)
	require.NoError(t, err)
	store := faults.NewStore(db)
	_, err = store.Record(ctx, signal.Fault{
		Signal:     1 << 32,
		SignalName: "probe.heartbeat",
		Receiver:   2 << 32,
		Strategy:   signal.StrategyThreadQueue,
		Err:        signal.ErrQueueFull,
		At:         time.Now(),
	})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	code, stdout, stderr := captureRun(t, "faults", "list", "--config", path)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "probe.heartbeat")
	assert.Contains(t, stdout, "thread_queue")

	code, stdout, stderr = captureRun(t, "faults", "list", "--config", path, "--json", "--limit", "5")
	require.Equal(t, 0, code, stderr)
	var records []faults.Record
	require.NoError(t, json.Unmarshal([]byte(stdout), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "probe.heartbeat", records[0].SignalName)
}

func TestServeRunsUntilCancelled(t *testing.T) {
	_, path := writeConfig(t, validConfig)
	cfg, err := config.Load(path)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, cfg) }()

	time.Sleep(150 * time.Millisecond)

	// A second instance on the same data directory is refused.
	err = serve(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "another instance")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop after cancel")
	}
	_, err = os.Stat(cfg.Faults.Path)
	assert.NoError(t, err, "fault store created")
}

func TestServeRejectsBrokenProbeWiring(t *testing.T) {
	_, path := writeConfig(t, validConfig)
	cfg, err := config.Load(path)
	require.NoError(t, err)
	// Bypass load-time validation to reach the connect-time check.
	cfg.Probes[0].Thread = "missing"

	err = serve(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configure probes")
	assert.False(t, errors.Is(err, context.Canceled))
}
