package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics tracks the observable surface of a running validator.
type Metrics struct {
	// Scheduler.
	CurrentRound          prometheus.Gauge
	PanoramaSize          prometheus.Gauge
	SummitWeight          prometheus.Gauge
	VotesReceived         prometheus.Counter
	VerticesEmitted       prometheus.Counter
	TimersScheduled       prometheus.Counter
	EquivocationsDetected prometheus.Counter
	RoundsFinalized       prometheus.Counter
	FinalizationLatency   prometheus.Histogram

	// P2P.
	PeerCount        prometheus.Gauge
	MessagesSent     prometheus.Counter
	MessagesReceived prometheus.Counter

	// Mempool.
	MempoolSize     prometheus.Gauge
	DeploysAccepted prometheus.Counter
	DeploysRejected prometheus.Counter

	// Execution.
	BlockGasUsed     prometheus.Histogram
	ExecutionLatency prometheus.Histogram

	// Sync.
	SyncStatus prometheus.Gauge // 0=synced, 1=syncing

	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector())
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: reg,

		CurrentRound: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "highway",
			Name:      "current_round",
			Help:      "Round ID (round-start timestamp) of the most recent scheduler tick.",
		}),
		PanoramaSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "highway",
			Name:      "panorama_size",
			Help:      "Number of validator slots with a non-None observation in the local panorama.",
		}),
		SummitWeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "highway",
			Name:      "summit_weight",
			Help:      "Weight seen at the witness tick of the most recently checked proposal.",
		}),
		VotesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "highway",
			Name:      "votes_received_total",
			Help:      "Total number of votes admitted to local state, local or remote.",
		}),
		VerticesEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "highway",
			Name:      "vertices_emitted_total",
			Help:      "Total number of NewVertex effects gossiped to the network.",
		}),
		TimersScheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "highway",
			Name:      "timers_scheduled_total",
			Help:      "Total number of ScheduleTimer effects armed.",
		}),
		EquivocationsDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "highway",
			Name:      "equivocations_detected_total",
			Help:      "Total number of validators marked faulty for equivocation.",
		}),
		RoundsFinalized: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "highway",
			Name:      "rounds_finalized_total",
			Help:      "Total number of proposals that reached finality.",
		}),
		FinalizationLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "highway",
			Name:      "finalization_latency_seconds",
			Help:      "Time between a proposal's timestamp and the moment it was observed finalized.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}),

		PeerCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "p2p",
			Name:      "peers_connected",
			Help:      "Number of connected peers.",
		}),
		MessagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "p2p",
			Name:      "messages_sent_total",
			Help:      "Total number of P2P messages sent.",
		}),
		MessagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "p2p",
			Name:      "messages_received_total",
			Help:      "Total number of P2P messages received.",
		}),

		MempoolSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "mempool",
			Name:      "size",
			Help:      "Current number of deploys buffered for the next proposal.",
		}),
		DeploysAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mempool",
			Name:      "deploys_accepted_total",
			Help:      "Total deploys accepted into the mempool.",
		}),
		DeploysRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mempool",
			Name:      "deploys_rejected_total",
			Help:      "Total deploys rejected from the mempool.",
		}),

		BlockGasUsed: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "block_gas_used",
			Help:      "Gas used executing a proposed block's deploys.",
			Buckets:   prometheus.ExponentialBuckets(1000, 10, 8),
		}),
		ExecutionLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "latency_seconds",
			Help:      "Block execution latency in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}),

		SyncStatus: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "status",
			Help:      "Sync status: 0=synced, 1=syncing.",
		}),
	}

	reg.MustRegister(
		m.CurrentRound, m.PanoramaSize, m.SummitWeight,
		m.VotesReceived, m.VerticesEmitted, m.TimersScheduled,
		m.EquivocationsDetected, m.RoundsFinalized, m.FinalizationLatency,
		m.PeerCount, m.MessagesSent, m.MessagesReceived,
		m.MempoolSize, m.DeploysAccepted, m.DeploysRejected,
		m.BlockGasUsed, m.ExecutionLatency,
		m.SyncStatus,
	)

	return m
}

// NopMetrics returns a Metrics instance that discards all observations.
func NopMetrics() *Metrics {
	return &Metrics{
		CurrentRound:          prometheus.NewGauge(prometheus.GaugeOpts{Name: "nop_cr"}),
		PanoramaSize:          prometheus.NewGauge(prometheus.GaugeOpts{Name: "nop_ps"}),
		SummitWeight:          prometheus.NewGauge(prometheus.GaugeOpts{Name: "nop_sw"}),
		VotesReceived:         prometheus.NewCounter(prometheus.CounterOpts{Name: "nop_vr"}),
		VerticesEmitted:       prometheus.NewCounter(prometheus.CounterOpts{Name: "nop_ve"}),
		TimersScheduled:       prometheus.NewCounter(prometheus.CounterOpts{Name: "nop_ts"}),
		EquivocationsDetected: prometheus.NewCounter(prometheus.CounterOpts{Name: "nop_eq"}),
		RoundsFinalized:       prometheus.NewCounter(prometheus.CounterOpts{Name: "nop_rf"}),
		FinalizationLatency:   prometheus.NewHistogram(prometheus.HistogramOpts{Name: "nop_fl"}),
		PeerCount:             prometheus.NewGauge(prometheus.GaugeOpts{Name: "nop_pc"}),
		MessagesSent:          prometheus.NewCounter(prometheus.CounterOpts{Name: "nop_ms"}),
		MessagesReceived:      prometheus.NewCounter(prometheus.CounterOpts{Name: "nop_mr"}),
		MempoolSize:           prometheus.NewGauge(prometheus.GaugeOpts{Name: "nop_mps"}),
		DeploysAccepted:       prometheus.NewCounter(prometheus.CounterOpts{Name: "nop_da"}),
		DeploysRejected:       prometheus.NewCounter(prometheus.CounterOpts{Name: "nop_dr"}),
		BlockGasUsed:          prometheus.NewHistogram(prometheus.HistogramOpts{Name: "nop_bgu"}),
		ExecutionLatency:      prometheus.NewHistogram(prometheus.HistogramOpts{Name: "nop_el"}),
		SyncStatus:            prometheus.NewGauge(prometheus.GaugeOpts{Name: "nop_ss"}),
		registry:              prometheus.NewRegistry(),
	}
}

// Registry returns the Prometheus registry for this metrics instance.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// MetricsServer serves Prometheus metrics via HTTP.
type MetricsServer struct {
	server *http.Server
	logger *zap.Logger
}

// NewMetricsServer creates a metrics HTTP server.
func NewMetricsServer(addr string, metrics *Metrics, logger *zap.Logger) *MetricsServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.registry, promhttp.HandlerOpts{}))

	return &MetricsServer{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
		logger: logger,
	}
}

// Start begins serving metrics.
func (ms *MetricsServer) Start() error {
	ms.logger.Info("metrics server starting", zap.String("addr", ms.server.Addr))
	if err := ms.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully shuts down the metrics server.
func (ms *MetricsServer) Stop() error {
	return ms.server.Close()
}
