package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors, registered via Register.
var (
	regOK atomic.Bool

	serviceStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stagehand",
			Subsystem: "service",
			Name:      "starts_total",
			Help:      "Number of successful service starts.",
		}, []string{"service"},
	)
	serviceStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stagehand",
			Subsystem: "service",
			Name:      "stops_total",
			Help:      "Number of service stops.",
		}, []string{"service"},
	)
	serviceRestarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stagehand",
			Subsystem: "service",
			Name:      "restarts_total",
			Help:      "Number of automatic restart attempts.",
		}, []string{"service"},
	)
	healthFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stagehand",
			Subsystem: "health",
			Name:      "probe_failures_total",
			Help:      "Number of failed health probes.",
		}, []string{"service"},
	)
	serviceUp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "stagehand",
			Subsystem: "service",
			Name:      "up",
			Help:      "Whether the service process is currently alive.",
		}, []string{"service"},
	)
)

// Register registers all collectors with r, defaulting to the global
// registerer when r is nil. Safe to call multiple times.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	if r == nil {
		r = prometheus.DefaultRegisterer
	}
	cs := []prometheus.Collector{serviceStarts, serviceStops, serviceRestarts, healthFailures, serviceUp}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler serves the default gatherer; mounted by the control server.
func Handler() http.Handler { return promhttp.Handler() }

// Helpers below no-op until Register has been called.

func IncStart(service string) {
	if regOK.Load() {
		serviceStarts.WithLabelValues(service).Inc()
	}
}

func IncStop(service string) {
	if regOK.Load() {
		serviceStops.WithLabelValues(service).Inc()
	}
}

func IncRestart(service string) {
	if regOK.Load() {
		serviceRestarts.WithLabelValues(service).Inc()
	}
}

func IncHealthFailure(service string) {
	if regOK.Load() {
		healthFailures.WithLabelValues(service).Inc()
	}
}

func SetUp(service string, up bool) {
	if !regOK.Load() {
		return
	}
	v := 0.0
	if up {
		v = 1.0
	}
	serviceUp.WithLabelValues(service).Set(v)
}
