package metrics

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricPrefix = "tunedrop_"

// Pairing methods and results used as label values.
const (
	MethodFresh  = "fresh"
	MethodResume = "resume"

	ResultSuccess = "success"
	ResultStale   = "stale"
	ResultTimeout = "timeout"
	ResultError   = "error"
)

// Recorder owns a registry and the collectors registered in it.
type Recorder struct {
	registry       *prometheus.Registry
	pairings       *prometheus.CounterVec
	uploads        *prometheus.CounterVec
	uploadBytes    prometheus.Counter
	uploadAttempts prometheus.Counter
	uploadLatency  *prometheus.HistogramVec
	lastRun        prometheus.Gauge
}

// NewRecorder creates a Recorder with a private registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		pairings: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "pairings_total",
				Help: "Pairing attempts by method and result",
			},
			[]string{"method", "result"},
		),
		uploads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "uploads_total",
				Help: "Uploads by final status",
			},
			[]string{"status"},
		),
		uploadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "upload_bytes_total",
			Help: "Bytes of accepted uploads",
		}),
		uploadAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "upload_attempts_total",
			Help: "HTTP upload attempts including retries",
		}),
		uploadLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "upload_duration_seconds",
				Help:    "Upload duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
			},
			[]string{"status"},
		),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "last_run_timestamp_seconds",
			Help: "Unix time of the last completed run",
		}),
	}
	r.registry.MustRegister(r.pairings, r.uploads, r.uploadBytes, r.uploadAttempts, r.uploadLatency, r.lastRun)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// ObservePairing counts one pairing attempt.
func (r *Recorder) ObservePairing(method, result string) {
	if r == nil {
		return
	}
	r.pairings.WithLabelValues(method, result).Inc()
}

// ObserveUpload counts one finished upload.
func (r *Recorder) ObserveUpload(status string, bytes int64, attempts int, duration time.Duration) {
	if r == nil {
		return
	}
	r.uploads.WithLabelValues(status).Inc()
	if bytes > 0 {
		r.uploadBytes.Add(float64(bytes))
	}
	if attempts > 0 {
		r.uploadAttempts.Add(float64(attempts))
	}
	if duration > 0 {
		r.uploadLatency.WithLabelValues(status).Observe(duration.Seconds())
	}
}

// MarkRunComplete stamps the completion time of a run.
func (r *Recorder) MarkRunComplete(at time.Time) {
	if r == nil {
		return
	}
	r.lastRun.Set(float64(at.Unix()))
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// WriteTextfile atomically writes the registry to path for the node_exporter
// textfile collector.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics dir: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
