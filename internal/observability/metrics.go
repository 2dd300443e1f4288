// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Scoring cycle metrics
	CycleRunsTotal       *prometheus.CounterVec
	CycleDuration        *prometheus.HistogramVec
	TokensProcessed      *prometheus.CounterVec
	WalletsScored        prometheus.Counter
	ParticipationsScored prometheus.Counter
	ParticipationErrors  prometheus.Counter
	WalletWriteErrors    prometheus.Counter

	// Collaborator metrics
	WalletStateChecks *prometheus.CounterVec
	RPCCallLatency    *prometheus.HistogramVec
	FeedLatency       *prometheus.HistogramVec
	LeaderboardWrites prometheus.Counter

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulCycle prometheus.Gauge
}

// NewMetrics creates a new Metrics instance registered with registerer.
// A nil registerer uses the default Prometheus registry.
func NewMetrics(namespace string, registerer prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "alpha_finder"
	}
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registerer)

	return &Metrics{
		CycleRunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "runs_total",
			Help:      "Total number of scoring cycle runs by phase and status",
		}, []string{"phase", "status"}),
		CycleDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "duration_seconds",
			Help:      "Scoring cycle duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		}, []string{"phase"}),
		TokensProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "tokens_processed_total",
			Help:      "Runner tokens processed by outcome",
		}, []string{"status"}),
		WalletsScored: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scoring",
			Name:      "wallets_scored_total",
			Help:      "Wallets whose confidence score was recomputed",
		}),
		ParticipationsScored: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scoring",
			Name:      "participations_scored_total",
			Help:      "Runner participations scored",
		}),
		ParticipationErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scoring",
			Name:      "participation_errors_total",
			Help:      "Participations skipped because scoring failed",
		}),
		WalletWriteErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scoring",
			Name:      "wallet_write_errors_total",
			Help:      "Wallet persistence failures",
		}),

		WalletStateChecks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "walletstate",
			Name:      "checks_total",
			Help:      "Wallet-state checks by check and result",
		}, []string{"check", "result"}),
		RPCCallLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		FeedLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "request_latency_seconds",
			Help:      "Market data request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		LeaderboardWrites: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "leaderboard",
			Name:      "writes_total",
			Help:      "Wallet entries published to the leaderboard cache",
		}),

		DBQueryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		LastSuccessfulCycle: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_cycle_timestamp",
			Help:      "Unix timestamp of last successful scoring cycle",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("", nil)

// RecordCycleRun records a scoring cycle phase.
func RecordCycleRun(phase, status string, durationSeconds float64) {
	DefaultMetrics.CycleRunsTotal.WithLabelValues(phase, status).Inc()
	DefaultMetrics.CycleDuration.WithLabelValues(phase).Observe(durationSeconds)
}

// RecordCycleSuccess sets the last successful cycle timestamp.
func RecordCycleSuccess(unixSeconds int64) {
	DefaultMetrics.LastSuccessfulCycle.Set(float64(unixSeconds))
}

// RecordTokenProcessed counts a runner token by outcome.
func RecordTokenProcessed(status string) {
	DefaultMetrics.TokensProcessed.WithLabelValues(status).Inc()
}

// RecordWalletScored counts a wallet whose aggregate was recomputed.
func RecordWalletScored() {
	DefaultMetrics.WalletsScored.Inc()
}

// RecordParticipationScored counts a scored participation, or a failure when err is non-nil.
func RecordParticipationScored(err error) {
	if err != nil {
		DefaultMetrics.ParticipationErrors.Inc()
		return
	}
	DefaultMetrics.ParticipationsScored.Inc()
}

// RecordWalletWriteError counts a wallet persistence failure.
func RecordWalletWriteError() {
	DefaultMetrics.WalletWriteErrors.Inc()
}

// RecordWalletStateCheck counts a wallet-state check. result is "true", "false" or "error".
func RecordWalletStateCheck(check, result string) {
	DefaultMetrics.WalletStateChecks.WithLabelValues(check, result).Inc()
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordFeedLatency records market data request latency.
func RecordFeedLatency(endpoint string, seconds float64) {
	DefaultMetrics.FeedLatency.WithLabelValues(endpoint).Observe(seconds)
}

// RecordLeaderboardWrites counts published leaderboard entries.
func RecordLeaderboardWrites(n int) {
	DefaultMetrics.LeaderboardWrites.Add(float64(n))
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
