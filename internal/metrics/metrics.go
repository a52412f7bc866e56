package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HashrateTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "cryptominer",
		Name:      "hashrate_total",
		Help:      "Aggregate hashrate in H/s over the rolling window.",
	})

	HashrateWorker = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "cryptominer",
		Name:      "hashrate_worker",
		Help:      "Per-worker hashrate in H/s over the rolling window.",
	}, []string{"worker"})

	SharesAccepted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "cryptominer",
		Name:      "shares_accepted_total",
		Help:      "Total shares the pool accepted.",
	})

	SharesRejected = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "cryptominer",
		Name:      "shares_rejected_total",
		Help:      "Total shares the pool rejected (excluding stale).",
	})

	SharesStale = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "cryptominer",
		Name:      "shares_stale_total",
		Help:      "Total shares rejected as stale.",
	})

	SharesLost = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "cryptominer",
		Name:      "shares_lost_total",
		Help:      "Total submissions that timed out or died with a connection.",
	})

	SharesRateLimited = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "cryptominer",
		Name:      "shares_rate_limited_total",
		Help:      "Total submissions dropped at the in-flight cap.",
	})

	BlocksFound = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "cryptominer",
		Name:      "blocks_found_total",
		Help:      "Total shares that also met the network block target.",
	})

	SubmissionResults = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cryptominer",
		Name:      "submission_results_total",
		Help:      "Share submission outcomes by result.",
	}, []string{"result"})

	Reconnects = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "cryptominer",
		Name:      "pool_reconnects_total",
		Help:      "Times the pool session ended, including failed connection attempts.",
	})

	Difficulty = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "cryptominer",
		Name:      "pool_difficulty",
		Help:      "Current pool share difficulty.",
	})

	InflightSubmissions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "cryptominer",
		Name:      "inflight_submissions",
		Help:      "Unacknowledged share submissions.",
	})

	CPUPercent = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "cryptominer",
		Name:      "cpu_percent",
		Help:      "Host-wide CPU utilization percentage.",
	})

	MemoryRSS = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "cryptominer",
		Name:      "memory_rss_bytes",
		Help:      "Resident memory of the miner process.",
	})

	UptimeSeconds = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "cryptominer",
		Name:      "uptime_seconds",
		Help:      "Miner session uptime in seconds.",
	})
)

func init() {
	prometheus.MustRegister(
		HashrateTotal,
		HashrateWorker,
		SharesAccepted,
		SharesRejected,
		SharesStale,
		SharesLost,
		SharesRateLimited,
		BlocksFound,
		SubmissionResults,
		Reconnects,
		Difficulty,
		InflightSubmissions,
		CPUPercent,
		MemoryRSS,
		UptimeSeconds,
	)
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
