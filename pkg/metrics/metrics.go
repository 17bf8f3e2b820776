package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// DownloadsTotal counts completed archive downloads by outcome.
	DownloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "serverkit_downloads_total",
			Help: "Total number of binary downloads by outcome",
		},
		[]string{"outcome"}, // "success", "md5_mismatch", "http_error", "error"
	)

	DownloadBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "serverkit_download_bytes_total",
			Help: "Total bytes fetched while downloading archives",
		},
	)

	DownloadDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "serverkit_download_duration_seconds",
			Help:    "Time taken to provision a binary, including extraction",
			Buckets: prometheus.DefBuckets,
		},
	)

	// LockWaitDuration tracks how long callers block waiting for a lockfile.
	LockWaitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "serverkit_lock_wait_seconds",
			Help:    "Time spent waiting to acquire a cross-process lockfile",
			Buckets: prometheus.DefBuckets,
		},
	)

	// InstancesTotal counts supervisor state transitions by target state.
	InstancesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "serverkit_instance_transitions_total",
			Help: "Total number of supervisor state transitions by target state",
		},
		[]string{"state"}, // "starting", "running", "stopped", "new"
	)

	InstanceStartDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "serverkit_instance_start_duration_seconds",
			Help:    "Time from process spawn to the ready signal",
			Buckets: prometheus.DefBuckets,
		},
	)

	RunningInstances = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "serverkit_running_instances",
			Help: "Number of supervised instances currently in the running state",
		},
	)
)

func init() {
	prometheus.MustRegister(
		DownloadsTotal,
		DownloadBytesTotal,
		DownloadDuration,
		LockWaitDuration,
		InstancesTotal,
		InstanceStartDuration,
		RunningInstances,
	)
}

// Handler returns the Prometheus HTTP handler, for hosting programs that
// want to expose these metrics alongside their own.
func Handler() http.Handler {
	return promhttp.Handler()
}
