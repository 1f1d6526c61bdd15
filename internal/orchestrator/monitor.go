package orchestrator

import (
	"context"
	"time"

	"github.com/atelierhq/stagehand/internal/metrics"
	"github.com/atelierhq/stagehand/internal/netprobe"
	"github.com/atelierhq/stagehand/internal/store"
)

// Run drives the background monitor loop until ctx is cancelled. It is the
// only writer of restart state and runs for the lifetime of the host
// application. Failures inside a tick are absorbed and reflected in the next
// status snapshot; the loop itself never terminates over a failed attempt.
func (o *Orchestrator) Run(ctx context.Context) {
	t := time.NewTicker(o.tuning.TickInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			o.tick()
		}
	}
}

// tick applies the restart policy. The two-flag predicate is evaluated once
// per tick: the user must want the services running AND the settings must opt
// into automatic restart. The default posture is manual control; a service
// the user stopped is never silently relaunched.
func (o *Orchestrator) tick() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.desiredRunning || !o.cfg.AutoRestart {
		return
	}
	o.tickHealthLocked()
}

// tickHealthLocked is the {absent, starting, healthy, unhealthy} state
// machine over the core service.
func (o *Orchestrator) tickHealthLocked() {
	if !o.sup.Alive(SlotCore) {
		// Crashed or never started: bounded-retry restart with exponential
		// backoff. Once the cap is reached, automatic restart stops until a
		// manual start/stop cycle resets the counter.
		if o.restartAttempts >= o.tuning.MaxRestartAttempts {
			return
		}
		time.Sleep(Backoff(o.restartAttempts, o.tuning.BackoffBase))
		if err := o.startCoreLocked(); err != nil {
			// Absorbed: leave the counter unchanged and retry next tick.
			o.log.Warn("auto-restart attempt failed", "attempt", o.restartAttempts, "err", err)
			return
		}
		o.restartAttempts++
		metrics.IncRestart(SlotCore)
		o.record(SlotCore, store.KindRestart, "process was absent")
		o.log.Info("core auto-restarted", "attempt", o.restartAttempts)
		return
	}

	// Healthy-pending: a freshly started service gets a grace period before
	// probes count against it.
	if time.Since(o.lastCoreStart) < o.tuning.StartupGrace {
		return
	}

	if netprobe.PortOpen(o.cfg.CorePort, netprobe.HealthTimeout) {
		o.restartAttempts = 0 // full recovery credit
		return
	}
	metrics.IncHealthFailure(SlotCore)

	// Unhealthy is tolerated until the fatal threshold, then the process is
	// force-stopped and restarted once with the counter set to 1.
	if time.Since(o.lastCoreStart) > o.tuning.FatalUnhealthyAfter {
		o.log.Warn("core unreachable past fatal threshold, restarting",
			"port", o.cfg.CorePort, "since_start", time.Since(o.lastCoreStart))
		o.sup.Stop(SlotCore)
		o.record(SlotCore, store.KindCrash, "health probe timeout")
		if err := o.startCoreLocked(); err != nil {
			o.log.Warn("restart after health timeout failed", "err", err)
		}
		o.lastCoreStart = time.Now()
		o.restartAttempts = 1
		metrics.IncRestart(SlotCore)
	}
}
