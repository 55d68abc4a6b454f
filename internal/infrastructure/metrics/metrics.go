// Package metrics exposes Prometheus metrics for backup runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// BackupCount tracks backup runs by outcome.
	BackupCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sqlkeep_backup_total",
		Help: "The total number of backup runs",
	}, []string{"database", "status"})

	BackupDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sqlkeep_backup_duration_seconds",
		Help:    "Time taken to produce a backup artifact",
		Buckets: prometheus.DefBuckets,
	}, []string{"database"})

	// BackupSize is the size of the last written artifact.
	BackupSize = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sqlkeep_backup_size_bytes",
		Help: "Size of the last backup artifact in bytes",
	}, []string{"database"})

	LastBackupTimestamp = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sqlkeep_backup_last_timestamp",
		Help: "Timestamp of the last successful backup",
	}, []string{"database"})

	RetentionDeletes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sqlkeep_backup_deletions_total",
		Help: "The total number of backups deleted by retention policy",
	}, []string{"database", "reason"})

	UploadCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sqlkeep_upload_total",
		Help: "The total number of remote uploads",
	}, []string{"database", "target", "status"})
)

// NewServer returns an HTTP server for /metrics and /health. The caller
// owns its lifecycle.
func NewServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}
