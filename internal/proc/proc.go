// Package proc owns the spawn/poll/terminate lifecycle of the managed child
// processes. Each service occupies one named slot; a slot holds at most one
// live OS process at any time.
package proc

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"
)

// stopWait bounds how long Stop blocks for the killed process to be reaped.
const stopWait = 5 * time.Second

// SpawnSpec describes one child process launch.
type SpawnSpec struct {
	Name   string   // slot/service name, used in errors and logs
	Path   string   // executable path
	Args   []string
	Env    []string  // extra KEY=VALUE entries appended to the inherited environment
	Dir    string    // working directory; never left to the launch directory
	Output io.Writer // combined stdout/stderr sink; nil discards
}

// SpawnError decorates an OS-level launch failure with the executable path
// and, for common error codes, a human hint.
type SpawnError struct {
	Path string
	Err  error
}

func (e *SpawnError) Error() string {
	msg := fmt.Sprintf("spawn %s: %v", e.Path, e.Err)
	if hint := spawnHint(e.Err); hint != "" {
		msg += " (hint: " + hint + ")"
	}
	return msg
}

func (e *SpawnError) Unwrap() error { return e.Err }

// Handle is the opaque owner of one spawned OS process. It is held exclusively
// by the Supervisor slot it occupies.
type Handle struct {
	cmd  *exec.Cmd
	done chan struct{} // closed when the waiter reaps the process

	mu      sync.Mutex
	exitErr error
	closer  io.Closer // log sink, closed after exit
}

func (h *Handle) PID() int {
	if h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}

// Alive is a zero-wait poll of exit status. The waiter goroutine holds the
// only cmd.Wait call, so this never races with os/exec internals.
func (h *Handle) Alive() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// ExitErr returns the error cmd.Wait reported, once the process has exited.
func (h *Handle) ExitErr() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exitErr
}

// Done exposes the exit notification channel for bounded waits.
func (h *Handle) Done() <-chan struct{} { return h.done }

func (h *Handle) waitLoop() {
	err := h.cmd.Wait()
	h.mu.Lock()
	h.exitErr = err
	c := h.closer
	h.closer = nil
	h.mu.Unlock()
	if c != nil {
		_ = c.Close()
	}
	close(h.done)
}

// Supervisor manages the fixed set of service slots.
type Supervisor struct {
	mu    sync.Mutex
	slots map[string]*Handle
}

func NewSupervisor() *Supervisor {
	return &Supervisor{slots: make(map[string]*Handle)}
}

// Alive reports whether the slot currently holds a live process. An exited
// handle is cleared before the result is trusted; the OS, not a cached flag,
// is the source of truth.
func (s *Supervisor) Alive(slot string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aliveLocked(slot)
}

func (s *Supervisor) aliveLocked(slot string) bool {
	h, ok := s.slots[slot]
	if !ok {
		return false
	}
	if !h.Alive() {
		delete(s.slots, slot)
		return false
	}
	return true
}

// Handle returns the slot's current handle, or nil.
func (s *Supervisor) Handle(slot string) *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slots[slot]
}

// Spawn launches spec into the slot. If the slot already holds a live process
// this is a no-op returning the existing handle with started=false; a second
// process is never spawned into an occupied slot.
func (s *Supervisor) Spawn(slot string, spec SpawnSpec) (h *Handle, started bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.aliveLocked(slot) {
		return s.slots[slot], false, nil
	}

	cmd := exec.Command(spec.Path, spec.Args...) // #nosec G204 -- resolver-vetted path
	cmd.Dir = spec.Dir
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}
	cmd.Stdin = nil
	if spec.Output != nil {
		cmd.Stdout = spec.Output
		cmd.Stderr = spec.Output
	}
	configureDetached(cmd)

	if err := cmd.Start(); err != nil {
		return nil, false, &SpawnError{Path: spec.Path, Err: err}
	}
	h = &Handle{cmd: cmd, done: make(chan struct{})}
	if c, ok := spec.Output.(io.Closer); ok {
		h.closer = c
	}
	go h.waitLoop()
	s.slots[slot] = h
	return h, true, nil
}

// Stop forcefully terminates the slot's process and waits for it to be
// reaped. The slot is cleared before returning even when termination fails;
// stopping an empty slot is a no-op. Termination errors are swallowed.
func (s *Supervisor) Stop(slot string) {
	s.mu.Lock()
	h := s.slots[slot]
	delete(s.slots, slot)
	s.mu.Unlock()
	if h == nil || !h.Alive() {
		return
	}
	terminate(h.cmd)
	select {
	case <-h.done:
	case <-time.After(stopWait):
		// best-effort; the waiter goroutine will reap it eventually
	}
}
