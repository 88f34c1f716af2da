package metrics

import (
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// Aggregation metrics
	AggregationPasses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "focuspact_aggregation_passes_total",
			Help: "Total usage aggregation passes",
		},
		[]string{"status"},
	)

	AggregationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "focuspact_aggregation_duration_seconds",
			Help:    "Time spent querying and aggregating usage events",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
	)

	EventsProcessed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "focuspact_events_processed_total",
			Help: "Total raw usage events folded into aggregates",
		},
	)

	EventsIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "focuspact_events_ingested_total",
			Help: "Total raw usage events appended to the journal",
		},
		[]string{"source"},
	)

	EventsPruned = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "focuspact_events_pruned_total",
			Help: "Total journal events removed by retention",
		},
	)

	// Limit metrics
	LimitMutations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "focuspact_limit_mutations_total",
			Help: "Total limit set/remove operations",
		},
		[]string{"operation", "type", "status"},
	)

	LimitCacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "focuspact_limit_cache_hits_total",
			Help: "Limit cache hits",
		},
	)

	LimitCacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "focuspact_limit_cache_misses_total",
			Help: "Limit cache misses",
		},
	)

	BackendRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "focuspact_backend_requests_total",
			Help: "Requests made to the hosted limit backend",
		},
		[]string{"method", "status"},
	)

	// Monitor metrics
	PollsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "focuspact_polls_total",
			Help: "Total monitor poll cycles",
		},
		[]string{"status"},
	)

	TrackedApps = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "focuspact_tracked_apps",
			Help: "Apps with non-zero usage in the latest snapshot",
		},
	)

	RestrictedApps = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "focuspact_restricted_apps",
			Help: "Apps over a limit in the latest snapshot",
		},
		[]string{"reason"},
	)

	// Bridge metrics
	BatchesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "focuspact_bridge_batches_total",
			Help: "Event batches received over the bridge",
		},
		[]string{"source", "result"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(
		AggregationPasses,
		AggregationDuration,
		EventsProcessed,
		EventsIngested,
		EventsPruned,
		LimitMutations,
		LimitCacheHits,
		LimitCacheMisses,
		BackendRequests,
		PollsTotal,
		TrackedApps,
		RestrictedApps,
		BatchesReceived,
	)
}

// Server is the metrics HTTP server
type Server struct {
	server   *http.Server
	logger   zerolog.Logger
	listener net.Listener // Optional pre-created listener (for systemd socket activation)
}

// NewServer creates a new metrics server
func NewServer(addr string, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
		logger: logger.With().Str("component", "metrics").Logger(),
	}
}

// SetListener sets a pre-created listener for systemd socket activation
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start starts the metrics server
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting metrics server")
	go func() {
		var err error
		if s.listener != nil {
			s.logger.Debug().Msg("Using systemd socket-activated metrics listener")
			err = s.server.Serve(s.listener)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Metrics server error")
		}
	}()
	return nil
}

// Stop stops the metrics server
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping metrics server")
	return s.server.Close()
}
