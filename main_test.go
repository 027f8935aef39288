package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mirrorsync/internal/config"
	"mirrorsync/pkg/logger"
)

type testDirs struct {
	src, replica, logs string
}

func newTestDirs(t *testing.T) testDirs {
	t.Helper()
	base := t.TempDir()
	d := testDirs{
		src:     filepath.Join(base, "src"),
		replica: filepath.Join(base, "replica"),
		logs:    filepath.Join(base, "logs"),
	}
	require.NoError(t, os.MkdirAll(filepath.Join(d.src, "docs"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(d.src, "docs", "a.txt"), []byte("hello"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(d.src, "b.txt"), []byte("world"), 0644))
	return d
}

func execute(ctx context.Context, args ...string) (string, error) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func TestOnceMirrorsSource(t *testing.T) {
	d := newTestDirs(t)

	out, err := execute(context.Background(), "once", "-o", d.src, "-r", d.replica, "-l", d.logs)
	require.NoError(t, err)
	assert.Contains(t, out, "副本已创建")

	data, err := os.ReadFile(filepath.Join(d.replica, "docs", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	assert.FileExists(t, filepath.Join(d.logs, logger.FileName))
	assert.FileExists(t, filepath.Join(d.logs, config.DBFileName))

	out, err = execute(context.Background(), "status", "-l", d.logs)
	require.NoError(t, err)
	assert.Contains(t, out, "STARTED")
	assert.Contains(t, out, "ok")
}

func TestOnceReportsFailedEntries(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores file permissions")
	}
	d := newTestDirs(t)
	locked := filepath.Join(d.src, "b.txt")
	require.NoError(t, os.Chmod(locked, 0000))
	t.Cleanup(func() { os.Chmod(locked, 0644) })

	_, err := execute(context.Background(), "once", "-o", d.src, "-r", d.replica, "-l", d.logs)
	assert.ErrorIs(t, err, errCycleFailed)
	assert.Equal(t, 2, exitCode(err))

	// 其它条目照常同步
	assert.FileExists(t, filepath.Join(d.replica, "docs", "a.txt"))

	out, err := execute(context.Background(), "status", "-l", d.logs)
	require.NoError(t, err)
	assert.Contains(t, out, "1 errors")
}

func TestDaemonRunsFirstCycleImmediately(t *testing.T) {
	d := newTestDirs(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := execute(ctx, "-o", d.src, "-r", d.replica, "-l", d.logs, "-i", "60")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(d.replica, "b.txt"))
}

func TestStartupErrors(t *testing.T) {
	d := newTestDirs(t)
	cases := map[string][]string{
		"missing origin":   {"once", "-r", d.replica, "-l", d.logs},
		"origin not found": {"once", "-o", filepath.Join(d.src, "nope"), "-r", d.replica, "-l", d.logs},
		"nested replica":   {"once", "-o", d.src, "-r", filepath.Join(d.src, "copy"), "-l", d.logs},
		"bad interval":     {"once", "-o", d.src, "-r", d.replica, "-l", d.logs, "-i", "0"},
		"bad log level":    {"once", "-o", d.src, "-r", d.replica, "-l", d.logs, "--log-level", "loud"},
		"missing config":   {"once", "-c", filepath.Join(d.logs, "missing.yaml")},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := execute(context.Background(), args...)
			require.Error(t, err)
			assert.False(t, errors.Is(err, errCycleFailed))
			assert.Equal(t, 1, exitCode(err))
		})
	}
	assert.NoDirExists(t, filepath.Join(d.src, "copy"))
}

func TestFlagsOverrideConfigFile(t *testing.T) {
	d := newTestDirs(t)
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	content := "sync:\n  source: " + d.src + "\n  replica: /should/be/overridden\n  interval: \"45\"\n  exclude: [\"docs\"]\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0644))

	cmd := newRootCmd()
	require.NoError(t, cmd.ParseFlags([]string{"-c", cfgPath, "-r", d.replica, "-l", d.logs}))

	cfg, err := loadConfig(cmd)
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, cfg.Sync.IntervalDuration)
	assert.Equal(t, []string{"docs"}, cfg.Sync.Exclude)
	assert.Equal(t, "replica", filepath.Base(cfg.Sync.Replica))
	assert.True(t, filepath.IsAbs(cfg.Sync.Source))
}

func TestStatusWithoutHistory(t *testing.T) {
	logs := t.TempDir()
	out, err := execute(context.Background(), "status", "-l", logs)
	require.NoError(t, err)
	assert.Contains(t, out, "还没有同步记录")
	assert.NoFileExists(t, filepath.Join(logs, config.DBFileName))
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, exitCode(nil))
	assert.Equal(t, 1, exitCode(errors.New("boom")))
	assert.Equal(t, 2, exitCode(errCycleFailed))
}
