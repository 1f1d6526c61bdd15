// Package netprobe holds the small TCP primitives the orchestrator relies on:
// pre-spawn port conflict detection, connection-based health probes, and
// free-port suggestion for the settings wizard. All probes are bounded-timeout
// loopback connects; none are protocol aware.
package netprobe

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

const loopback = "127.0.0.1"

// Timeouts used across the orchestrator. Health probes tolerate slightly more
// latency than preflight checks because they run against a live service.
const (
	PreflightTimeout = 120 * time.Millisecond
	HealthTimeout    = 250 * time.Millisecond
)

// PortOpen reports whether something accepts TCP connections on the loopback
// port within timeout. An accepted connection from any process counts; this
// is the only observable signal available.
func PortOpen(port int, timeout time.Duration) bool {
	addr := net.JoinHostPort(loopback, strconv.Itoa(port))
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// Check names one port a service needs free before spawning.
type Check struct {
	Name string
	Port int
}

// ConflictError reports every preflighted port that already had a listener.
type ConflictError struct {
	Conflicts []string // "name:port" pairs
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("ports already have listeners: %s", strings.Join(e.Conflicts, ", "))
}

// Preflight probes every check and returns a ConflictError listing all
// occupied ports, or nil when every port is free. Starting a multi-port
// server against occupied ports produces confusing partial failures, so
// callers must fail fast on a non-nil result.
func Preflight(checks []Check) error {
	var conflicts []string
	for _, c := range checks {
		if PortOpen(c.Port, PreflightTimeout) {
			conflicts = append(conflicts, fmt.Sprintf("%s:%d", c.Name, c.Port))
		}
	}
	if len(conflicts) > 0 {
		return &ConflictError{Conflicts: conflicts}
	}
	return nil
}

// SuggestPort scans up to span ports starting at base and returns the first
// one nothing is bound to. When the whole span is occupied it returns base,
// leaving the conflict to surface at preflight time.
func SuggestPort(base, span int) int {
	if span <= 0 {
		span = 200
	}
	for p := base; p < base+span && p <= 65535; p++ {
		l, err := net.Listen("tcp", net.JoinHostPort(loopback, strconv.Itoa(p)))
		if err != nil {
			continue
		}
		_ = l.Close()
		return p
	}
	return base
}
