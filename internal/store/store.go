package store

import (
	"context"
	"time"
)

// Event kinds recorded by the orchestrator.
const (
	KindStart       = "start"
	KindStop        = "stop"
	KindRestart     = "restart"
	KindCrash       = "crash"
	KindStartFailed = "start_failed"
)

// Event is one lifecycle observation for a managed service. Persistence is
// best-effort: the orchestrator never fails an operation because the history
// write failed.
type Event struct {
	ID      int64     `json:"id"`
	Service string    `json:"service"`
	Kind    string    `json:"kind"`
	Detail  string    `json:"detail,omitempty"`
	At      time.Time `json:"at"`
}

// Store persists the event history.
type Store interface {
	EnsureSchema(ctx context.Context) error
	Append(ctx context.Context, e Event) error
	Recent(ctx context.Context, limit int) ([]Event, error)
	Close() error
}
