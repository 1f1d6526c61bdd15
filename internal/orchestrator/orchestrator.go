// Package orchestrator composes binary resolution, port preflight, log
// preparation, and process supervision into the start/stop/restart/status
// operations the desktop shell consumes, plus the background health loop.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/atelierhq/stagehand/internal/config"
	"github.com/atelierhq/stagehand/internal/logger"
	"github.com/atelierhq/stagehand/internal/metrics"
	"github.com/atelierhq/stagehand/internal/netprobe"
	"github.com/atelierhq/stagehand/internal/ports"
	"github.com/atelierhq/stagehand/internal/proc"
	"github.com/atelierhq/stagehand/internal/resolve"
	"github.com/atelierhq/stagehand/internal/store"
)

// Service slot names.
const (
	SlotCore    = "core"
	SlotSeaweed = "seaweed"
)

// Environment variables passed to the core backend.
const (
	EnvHome = "ATELIER_HOME"
	EnvBind = "ATELIER_BIND"
)

const loopbackBind = "127.0.0.1"

// Tuning holds the timing constants of the restart policy. Production uses
// DefaultTuning; tests shrink the windows.
type Tuning struct {
	TickInterval        time.Duration
	BackoffBase         time.Duration
	MaxRestartAttempts  int
	StartupGrace        time.Duration
	FatalUnhealthyAfter time.Duration
	ReadinessWindow     time.Duration
	ReadinessPoll       time.Duration
}

func DefaultTuning() Tuning {
	return Tuning{
		TickInterval:        2 * time.Second,
		BackoffBase:         500 * time.Millisecond,
		MaxRestartAttempts:  3,
		StartupGrace:        2 * time.Second,
		FatalUnhealthyAfter: 10 * time.Second,
		ReadinessWindow:     2 * time.Second,
		ReadinessPoll:       100 * time.Millisecond,
	}
}

// Backoff returns the restart delay for the given attempt counter:
// base, 2x base, 4x base, ... The caller bounds attempts at
// MaxRestartAttempts, which bounds the exponent.
func Backoff(attempts int, base time.Duration) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	return base << uint(attempts)
}

// Status is the live snapshot returned on every query; it is recomputed each
// time and never persisted.
type Status struct {
	CoreRunning      bool   `json:"core_running"`
	CoreHealthy      bool   `json:"core_healthy"`
	CoreURL          string `json:"core_url"`
	SeaweedEnabled   bool   `json:"seaweed_enabled"`
	SeaweedRunning   bool   `json:"seaweed_running"`
	SeaweedS3Port    int    `json:"seaweed_s3_port,omitempty"`
	SeaweedLastError string `json:"seaweed_last_error,omitempty"`
}

// ExitedEarlyError reports a service that died during its readiness window.
type ExitedEarlyError struct {
	Service string
	ExitErr error
	LogPath string
}

func (e *ExitedEarlyError) Error() string {
	return fmt.Sprintf("%s exited immediately (%v); check logs at %s", e.Service, e.ExitErr, e.LogPath)
}

func (e *ExitedEarlyError) Unwrap() error { return e.ExitErr }

// Orchestrator owns all mutable orchestration state behind one mutex shared
// by foreground calls and the background monitor tick.
type Orchestrator struct {
	mu          sync.Mutex
	cfg         config.Settings
	installRoot string
	sup         *proc.Supervisor
	log         *slog.Logger
	events      store.Store // optional; nil disables history
	tuning      Tuning

	desiredRunning  bool
	lastSeaweedErr  string
	lastCoreStart   time.Time
	restartAttempts int
}

// Option customizes a new Orchestrator.
type Option func(*Orchestrator)

// WithStore attaches a best-effort event history sink.
func WithStore(s store.Store) Option { return func(o *Orchestrator) { o.events = s } }

// WithTuning overrides the restart-policy timing constants.
func WithTuning(t Tuning) Option { return func(o *Orchestrator) { o.tuning = t } }

func New(cfg config.Settings, log *slog.Logger, opts ...Option) *Orchestrator {
	root := cfg.InstallRoot
	if root == "" {
		root = resolve.DefaultInstallRoot()
	}
	if log == nil {
		log = slog.Default()
	}
	o := &Orchestrator{
		cfg:         cfg,
		installRoot: root,
		sup:         proc.NewSupervisor(),
		log:         log,
		tuning:      DefaultTuning(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Settings returns the configuration this orchestrator was built with.
func (o *Orchestrator) Settings() config.Settings { return o.cfg }

// Start launches seaweed (if enabled) then core. Seaweed is started first so
// its ports are known to core, but core start does not depend on seaweed
// being healthy: a seaweed failure is reported alongside, never instead of,
// the core start result.
func (o *Orchestrator) Start() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.desiredRunning = true
	o.restartAttempts = 0 // user-initiated start resets the cap

	var errs []error
	if o.cfg.Seaweed.Enabled {
		if err := o.startSeaweedLocked(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := o.startCoreLocked(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Stop terminates core then seaweed. Termination errors are swallowed: a
// failed kill must never block the user from reconfiguring or exiting.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stopLocked()
}

func (o *Orchestrator) stopLocked() {
	o.desiredRunning = false
	o.restartAttempts = 0

	if o.sup.Alive(SlotCore) {
		o.sup.Stop(SlotCore)
		metrics.IncStop(SlotCore)
		o.record(SlotCore, store.KindStop, "")
	}
	if o.sup.Alive(SlotSeaweed) {
		o.sup.Stop(SlotSeaweed)
		metrics.IncStop(SlotSeaweed)
		o.record(SlotSeaweed, store.KindStop, "")
	}
	metrics.SetUp(SlotCore, false)
	metrics.SetUp(SlotSeaweed, false)
}

// Restart is a stop followed by a start.
func (o *Orchestrator) Restart() error {
	o.Stop()
	return o.Start()
}

// Status recomputes the snapshot from live process and network state.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()

	coreRunning := o.sup.Alive(SlotCore)
	seaweedRunning := o.sup.Alive(SlotSeaweed)
	metrics.SetUp(SlotCore, coreRunning)
	metrics.SetUp(SlotSeaweed, seaweedRunning)

	st := Status{
		CoreRunning:      coreRunning,
		CoreHealthy:      netprobe.PortOpen(o.cfg.CorePort, netprobe.HealthTimeout),
		CoreURL:          o.cfg.CoreURL(),
		SeaweedEnabled:   o.cfg.Seaweed.Enabled,
		SeaweedRunning:   seaweedRunning,
		SeaweedLastError: o.lastSeaweedErr,
	}
	if o.cfg.Seaweed.Enabled {
		st.SeaweedS3Port = o.cfg.Seaweed.S3Port
	}
	return st
}

// startCoreLocked spawns the core backend if its slot is empty. The runtime
// ports file is rewritten first so the child never reads stale assignments.
func (o *Orchestrator) startCoreLocked() error {
	if o.sup.Alive(SlotCore) {
		return nil
	}

	corePort := o.cfg.CorePort
	var s3Port *int
	if o.cfg.Seaweed.Enabled {
		p := o.cfg.Seaweed.S3Port
		s3Port = &p
	}
	if err := ports.Write(o.cfg.Home, &corePort, s3Port); err != nil {
		return err
	}

	launch, err := resolve.Core(o.installRoot)
	if err != nil {
		o.record(SlotCore, store.KindStartFailed, err.Error())
		return err
	}

	env := []string{
		EnvHome + "=" + o.cfg.Home,
		EnvBind + "=" + loopbackBind,
	}
	dir := launch.Dir
	if launch.DevMode {
		env = append(env, "PYTHONPATH="+launch.CoreSrc)
	} else {
		// Packaged mode: never inherit an arbitrary launch directory.
		dir = o.cfg.Home
	}

	logPath := filepath.Join(o.cfg.LogsDir(), "core.log")
	sink, err := logger.PrepareServiceLog(logPath, o.cfg.Log.MaxSizeMB)
	if err != nil {
		return err
	}

	_, started, err := o.sup.Spawn(SlotCore, proc.SpawnSpec{
		Name:   SlotCore,
		Path:   launch.Path,
		Args:   launch.Args,
		Env:    env,
		Dir:    dir,
		Output: sink,
	})
	if err != nil {
		_ = sink.Close()
		o.record(SlotCore, store.KindStartFailed, err.Error())
		return err
	}
	if started {
		o.lastCoreStart = time.Now()
		metrics.IncStart(SlotCore)
		metrics.SetUp(SlotCore, true)
		o.record(SlotCore, store.KindStart, "")
		o.log.Info("core started", "path", launch.Path, "dev_mode", launch.DevMode, "log", logPath)
	}
	return nil
}

// startSeaweedLocked resolves, preflights and spawns the SeaweedFS server,
// then waits briefly for its S3 port to come up. The last error string is
// kept for status until the next successful start attempt clears it.
func (o *Orchestrator) startSeaweedLocked() error {
	if o.sup.Alive(SlotSeaweed) {
		return nil
	}
	err := o.spawnSeaweedLocked()
	if err != nil {
		o.lastSeaweedErr = err.Error()
		o.record(SlotSeaweed, store.KindStartFailed, err.Error())
		return err
	}
	o.lastSeaweedErr = ""
	metrics.IncStart(SlotSeaweed)
	metrics.SetUp(SlotSeaweed, true)
	o.record(SlotSeaweed, store.KindStart, "")
	return nil
}

func (o *Orchestrator) spawnSeaweedLocked() error {
	weed, err := resolve.Weed(o.installRoot, o.cfg.Home, o.cfg.Seaweed.WeedPath)
	if err != nil {
		return err
	}

	s3Port := o.cfg.Seaweed.S3Port
	// Ports are preflighted on every start, never cached across restarts.
	if err := netprobe.Preflight([]netprobe.Check{
		{Name: "master", Port: config.SeaweedMasterPort},
		{Name: "volume", Port: config.SeaweedVolumePort},
		{Name: "filer", Port: config.SeaweedFilerPort},
		{Name: "s3", Port: s3Port},
	}); err != nil {
		return fmt.Errorf("seaweedfs cannot start: %w", err)
	}

	dataDir := o.cfg.SeaweedDataDir()
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return err
	}

	logPath := filepath.Join(o.cfg.LogsDir(), "seaweed.log")
	sink, err := logger.PrepareServiceLog(logPath, o.cfg.Log.MaxSizeMB)
	if err != nil {
		return err
	}

	args := []string{
		"server",
		"-ip=" + loopbackBind,
		"-dir=" + dataDir,
		fmt.Sprintf("-master.port=%d", config.SeaweedMasterPort),
		fmt.Sprintf("-volume.port=%d", config.SeaweedVolumePort),
		fmt.Sprintf("-filer.port=%d", config.SeaweedFilerPort),
		"-s3",
		fmt.Sprintf("-s3.port=%d", s3Port),
	}
	h, started, err := o.sup.Spawn(SlotSeaweed, proc.SpawnSpec{
		Name:   SlotSeaweed,
		Path:   weed,
		Args:   args,
		Dir:    o.cfg.Home,
		Output: sink,
	})
	if err != nil {
		_ = sink.Close()
		return err
	}
	if !started {
		return nil
	}
	o.log.Info("seaweedfs started", "path", weed, "s3_port", s3Port, "log", logPath)

	// Readiness probe: fail fast with the exit status if the child dies
	// before its S3 port accepts connections.
	deadline := time.Now().Add(o.tuning.ReadinessWindow)
	for time.Now().Before(deadline) {
		if netprobe.PortOpen(s3Port, netprobe.PreflightTimeout) {
			return nil
		}
		if !h.Alive() {
			o.sup.Stop(SlotSeaweed) // clears the exited handle
			return &ExitedEarlyError{Service: "seaweedfs", ExitErr: h.ExitErr(), LogPath: logPath}
		}
		time.Sleep(o.tuning.ReadinessPoll)
	}
	// Window elapsed without the port opening; the process is still up, so
	// treat it as slow rather than failed.
	return nil
}

// record appends to the event history; failures are logged and ignored.
func (o *Orchestrator) record(service, kind, detail string) {
	if o.events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := o.events.Append(ctx, store.Event{Service: service, Kind: kind, Detail: detail}); err != nil {
		o.log.Warn("event history write failed", "err", err)
	}
}

// RecentEvents returns the latest history entries, newest first.
func (o *Orchestrator) RecentEvents(ctx context.Context, limit int) ([]store.Event, error) {
	if o.events == nil {
		return nil, nil
	}
	return o.events.Recent(ctx, limit)
}
