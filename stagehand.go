package stagehand

import (
	"context"
	"log/slog"
	"net/http"

	cfg "github.com/atelierhq/stagehand/internal/config"
	"github.com/atelierhq/stagehand/internal/logger"
	"github.com/atelierhq/stagehand/internal/metrics"
	"github.com/atelierhq/stagehand/internal/orchestrator"
	iapi "github.com/atelierhq/stagehand/internal/server"
	"github.com/atelierhq/stagehand/internal/store"
	sqlitestore "github.com/atelierhq/stagehand/internal/store/sqlite"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Settings = cfg.Settings

type Status = orchestrator.Status

type Event = store.Event

type LogConfig = logger.Config

// Orchestrator is a thin facade over internal/orchestrator.Orchestrator.
// It provides a stable public API for embedding in a host application.
type Orchestrator struct{ inner *orchestrator.Orchestrator }

func New(settings Settings, log *slog.Logger) *Orchestrator {
	return &Orchestrator{inner: orchestrator.New(settings, log)}
}

// NewWithHistory builds an orchestrator backed by a sqlite event history at
// settings.StorePath.
func NewWithHistory(ctx context.Context, settings Settings, log *slog.Logger) (*Orchestrator, error) {
	st, err := sqlitestore.New(settings.StorePath)
	if err != nil {
		return nil, err
	}
	if err := st.EnsureSchema(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return &Orchestrator{inner: orchestrator.New(settings, log, orchestrator.WithStore(st))}, nil
}

func (o *Orchestrator) Start() error   { return o.inner.Start() }
func (o *Orchestrator) Stop()          { o.inner.Stop() }
func (o *Orchestrator) Restart() error { return o.inner.Restart() }
func (o *Orchestrator) Status() Status { return o.inner.Status() }
func (o *Orchestrator) RecentEvents(ctx context.Context, limit int) ([]Event, error) {
	return o.inner.RecentEvents(ctx, limit)
}

// Run blocks and drives the health/restart monitor until ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context) { o.inner.Run(ctx) }

func LoadConfig(path string) (Settings, error) { return cfg.Load(path) }

func NewLogger(c LogConfig) *slog.Logger { return logger.New(c) }

func RegisterMetricsDefault() error { return metrics.Register(nil) }

// NewServer starts the loopback control API on addr and returns the server
// for shutdown.
func (o *Orchestrator) NewServer(addr, basePath string) *http.Server {
	return iapi.NewServer(addr, basePath, o.inner)
}
