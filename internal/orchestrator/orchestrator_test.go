//go:build !windows

package orchestrator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelierhq/stagehand/internal/config"
	"github.com/atelierhq/stagehand/internal/netprobe"
	"github.com/atelierhq/stagehand/internal/ports"
	"github.com/atelierhq/stagehand/internal/resolve"
	"github.com/atelierhq/stagehand/internal/store"
	"github.com/atelierhq/stagehand/internal/store/sqlite"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// devRoot builds an install root whose virtualenv interpreter is a shell
// script that just sleeps, standing in for the core backend.
func devRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	py := filepath.Join(root, ".venv", "bin", "python")
	require.NoError(t, os.MkdirAll(filepath.Dir(py), 0o755))
	require.NoError(t, os.WriteFile(py, []byte("#!/bin/sh\nexec sleep 60\n"), 0o755))
	return root
}

func testSettings(t *testing.T, root string) config.Settings {
	t.Helper()
	s := config.Settings{
		Home:        t.TempDir(),
		InstallRoot: root,
		CorePort:    netprobe.SuggestPort(45000, 200),
		AutoRestart: true,
	}
	s.ApplyDefaults()
	require.NoError(t, s.Validate())
	return s
}

func testTuning() Tuning {
	tu := DefaultTuning()
	tu.BackoffBase = 5 * time.Millisecond
	tu.StartupGrace = 20 * time.Millisecond
	tu.FatalUnhealthyAfter = 50 * time.Millisecond
	tu.ReadinessWindow = 300 * time.Millisecond
	tu.ReadinessPoll = 20 * time.Millisecond
	return tu
}

func TestBackoffSchedule(t *testing.T) {
	base := 500 * time.Millisecond
	assert.Equal(t, base, Backoff(0, base))
	assert.Equal(t, 2*base, Backoff(1, base))
	assert.Equal(t, 4*base, Backoff(2, base))
	assert.Equal(t, base, Backoff(-1, base))
}

func TestStartSpawnsOnlyCoreWhenSeaweedDisabled(t *testing.T) {
	o := New(testSettings(t, devRoot(t)), quietLogger(), WithTuning(testTuning()))
	defer o.Stop()

	require.NoError(t, o.Start())

	st := o.Status()
	assert.True(t, st.CoreRunning)
	assert.False(t, st.SeaweedEnabled)
	assert.False(t, st.SeaweedRunning)
	assert.Zero(t, st.SeaweedS3Port)
	assert.Equal(t, o.cfg.CoreURL(), st.CoreURL)
}

func TestRepeatedStartKeepsProcessIdentity(t *testing.T) {
	o := New(testSettings(t, devRoot(t)), quietLogger(), WithTuning(testTuning()))
	defer o.Stop()

	require.NoError(t, o.Start())
	pid1 := o.sup.Handle(SlotCore).PID()

	require.NoError(t, o.Start())
	pid2 := o.sup.Handle(SlotCore).PID()
	assert.Equal(t, pid1, pid2, "starting an already-running service is a no-op")
}

func TestStopWithoutStartSucceeds(t *testing.T) {
	o := New(testSettings(t, devRoot(t)), quietLogger(), WithTuning(testTuning()))
	o.Stop() // must not panic or error
	assert.False(t, o.Status().CoreRunning)
}

func TestStopClearsCore(t *testing.T) {
	o := New(testSettings(t, devRoot(t)), quietLogger(), WithTuning(testTuning()))
	require.NoError(t, o.Start())
	o.Stop()

	st := o.Status()
	assert.False(t, st.CoreRunning)
	assert.Nil(t, o.sup.Handle(SlotCore))
}

func TestStartWritesPortsFileBeforeSpawn(t *testing.T) {
	cfg := testSettings(t, devRoot(t))
	o := New(cfg, quietLogger(), WithTuning(testTuning()))
	defer o.Stop()

	require.NoError(t, o.Start())

	doc, err := ports.Read(cfg.Home)
	require.NoError(t, err)
	require.NotNil(t, doc.Core)
	assert.Equal(t, cfg.CorePort, *doc.Core)
	assert.Nil(t, doc.SeaweedS3, "seaweed disabled serializes as null")
}

func TestSeaweedBinaryMissingDoesNotBlockCore(t *testing.T) {
	cfg := testSettings(t, devRoot(t))
	cfg.Seaweed.Enabled = true
	cfg.Seaweed.S3Port = netprobe.SuggestPort(46000, 200)
	o := New(cfg, quietLogger(), WithTuning(testTuning()))
	defer o.Stop()

	err := o.Start()
	require.Error(t, err)
	var nf *resolve.NotFoundError
	require.ErrorAs(t, err, &nf)

	st := o.Status()
	assert.True(t, st.CoreRunning, "core start is independent of the seaweed failure")
	assert.False(t, st.SeaweedRunning)
	assert.NotEmpty(t, st.SeaweedLastError)
	assert.Contains(t, st.SeaweedLastError, "not found")
}

func TestSeaweedPreflightConflictFailsWithoutSpawn(t *testing.T) {
	root := devRoot(t)
	weed := filepath.Join(root, "tools", "weed")
	require.NoError(t, os.MkdirAll(filepath.Dir(weed), 0o755))
	require.NoError(t, os.WriteFile(weed, []byte("#!/bin/sh\nexec sleep 60\n"), 0o755))

	cfg := testSettings(t, root)
	cfg.Seaweed.Enabled = true
	cfg.Seaweed.S3Port = netprobe.SuggestPort(47000, 200)

	// Occupy the S3 port so preflight must report it.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = l.Close() }()
	cfg.Seaweed.S3Port = l.Addr().(*net.TCPAddr).Port

	o := New(cfg, quietLogger(), WithTuning(testTuning()))
	defer o.Stop()

	err = o.Start()
	require.Error(t, err)
	var ce *netprobe.ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, err.Error(), "s3:")
	assert.False(t, o.sup.Alive(SlotSeaweed), "no process spawned on conflict")
	assert.NotEmpty(t, o.Status().SeaweedLastError)
}

func TestSeaweedExitedEarlySurfacesExitAndLog(t *testing.T) {
	root := devRoot(t)
	weed := filepath.Join(root, "tools", "weed")
	require.NoError(t, os.MkdirAll(filepath.Dir(weed), 0o755))
	require.NoError(t, os.WriteFile(weed, []byte("#!/bin/sh\necho boom\nexit 7\n"), 0o755))

	cfg := testSettings(t, root)
	cfg.Seaweed.Enabled = true
	cfg.Seaweed.S3Port = netprobe.SuggestPort(48000, 200)

	o := New(cfg, quietLogger(), WithTuning(testTuning()))
	defer o.Stop()

	err := o.Start()
	var ce *netprobe.ConflictError
	if errors.As(err, &ce) {
		t.Skipf("fixed seaweed ports occupied on this host: %v", ce)
	}
	require.Error(t, err)
	var ee *ExitedEarlyError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "seaweedfs", ee.Service)
	assert.Contains(t, ee.LogPath, "seaweed.log")

	b, rerr := os.ReadFile(ee.LogPath)
	require.NoError(t, rerr)
	assert.Contains(t, string(b), "boom", "child output landed in the rotated log sink")
}

func TestStartRecordsEvents(t *testing.T) {
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	require.NoError(t, db.EnsureSchema(context.Background()))

	o := New(testSettings(t, devRoot(t)), quietLogger(), WithTuning(testTuning()), WithStore(db))
	require.NoError(t, o.Start())
	o.Stop()

	events, err := o.RecentEvents(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, store.KindStop, events[0].Kind)
	assert.Equal(t, store.KindStart, events[1].Kind)
	assert.Equal(t, SlotCore, events[0].Service)
}

func TestStatusHealthProbeIsConnectionBased(t *testing.T) {
	cfg := testSettings(t, devRoot(t))
	o := New(cfg, quietLogger(), WithTuning(testTuning()))

	assert.False(t, o.Status().CoreHealthy, "no listener reports unhealthy")

	// Any listener on the configured port counts as healthy.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = l.Close() }()
	o.cfg.CorePort = l.Addr().(*net.TCPAddr).Port
	assert.True(t, o.Status().CoreHealthy)
}

func TestRestartStopsThenStarts(t *testing.T) {
	o := New(testSettings(t, devRoot(t)), quietLogger(), WithTuning(testTuning()))
	defer o.Stop()

	require.NoError(t, o.Start())
	pid1 := o.sup.Handle(SlotCore).PID()

	require.NoError(t, o.Restart())
	pid2 := o.sup.Handle(SlotCore).PID()
	assert.NotEqual(t, pid1, pid2, "restart replaces the process")
	assert.True(t, o.Status().CoreRunning)
}
