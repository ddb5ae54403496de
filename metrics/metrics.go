// Package metrics exposes prometheus counters and gauges for a running DKG
// epoch: faults observed, proposals completed, and generation latency.
package metrics

import (
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/drand/syncdkg/internal/log"
)

// Registry collects every metric this module emits, separate from the
// default global registry so embedding applications can compose it freely.
var Registry = prometheus.NewRegistry()

var (
	// FaultCounter counts faults observed per kind.
	FaultCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "syncdkg_faults_total",
		Help: "Number of faults recorded while handling peer messages, by kind",
	}, []string{"kind"})

	// ProposalsComplete is the current count of proposals with more than 2t accepts.
	ProposalsComplete = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "syncdkg_proposals_complete",
		Help: "Number of proposals that have collected more than 2t accepts",
	})

	// Ready reports whether the local node considers the epoch ready (1) or not (0).
	Ready = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "syncdkg_ready",
		Help: "Whether the local node considers the DKG epoch ready to generate",
	})

	// GenerateLatencySeconds observes how long Generate took to run.
	GenerateLatencySeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "syncdkg_generate_latency_seconds",
		Help:    "Time taken by Generate to derive the final key set",
		Buckets: prometheus.DefBuckets,
	})
)

func init() {
	Registry.MustRegister(FaultCounter, ProposalsComplete, Ready, GenerateLatencySeconds)
}

// Start serves the registry's metrics over HTTP at /metrics and returns the
// bound listener so the caller controls its lifecycle.
func Start(bind string, logger log.Logger) (net.Listener, error) {
	if logger == nil {
		logger = log.DefaultLogger()
	}
	if !strings.Contains(bind, ":") {
		bind = "localhost:" + bind
	}
	l, err := net.Listen("tcp", bind)
	if err != nil {
		return nil, err
	}
	mux := chi.NewRouter()
	mux.Handle("/metrics", promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry}))
	server := &http.Server{Addr: l.Addr().String(), Handler: mux}
	go func() {
		logger.Infow("metrics server listening", "addr", l.Addr().String())
		if err := server.Serve(l); err != nil && err != http.ErrServerClosed {
			logger.Warnw("metrics server stopped", "err", err)
		}
	}()
	return l, nil
}
