// Package metrics holds the Prometheus collectors updated by backup runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsTotal counts finished runs by result ("success" or the failing step).
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mealie_backup_runs_total",
			Help: "Total number of backup runs by result",
		},
		[]string{"result"},
	)

	// RunDuration tracks how long a full run takes.
	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mealie_backup_run_duration_seconds",
			Help:    "Duration of backup runs in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
	)

	// LastSuccessTimestamp is the Unix time of the last successful run.
	LastSuccessTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mealie_backup_last_success_timestamp_seconds",
			Help: "Unix timestamp of the last successful backup run",
		},
	)

	// DownloadedBytesTotal counts archive bytes written to local storage.
	DownloadedBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mealie_backup_downloaded_bytes_total",
			Help: "Total number of backup bytes downloaded",
		},
	)

	// ServerDeletedTotal counts backups removed from the server.
	ServerDeletedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mealie_backup_server_deleted_total",
			Help: "Total number of backups deleted on the server",
		},
	)

	// LocalDeletedTotal counts backup files removed from local storage.
	LocalDeletedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mealie_backup_local_deleted_total",
			Help: "Total number of local backup files deleted",
		},
	)
)

// Storage gauges, refreshed by the daemon's storage monitor.
var (
	LocalBackupFiles = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mealie_backup_local_files",
			Help: "Number of files in the local backup directory",
		},
	)

	LocalBackupBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mealie_backup_local_bytes",
			Help: "Total size of the files in the local backup directory",
		},
	)

	DiskFreeBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mealie_backup_disk_free_bytes",
			Help: "Free space on the filesystem holding the local backup directory",
		},
	)
)

// ObserveRun records the outcome of a run. An empty failedStep means success.
func ObserveRun(started time.Time, failedStep string) {
	RunDuration.Observe(time.Since(started).Seconds())
	if failedStep == "" {
		RunsTotal.WithLabelValues("success").Inc()
		LastSuccessTimestamp.SetToCurrentTime()
		return
	}
	RunsTotal.WithLabelValues(failedStep).Inc()
}
