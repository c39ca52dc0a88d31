package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// PipelineMetrics collects Prometheus metrics for the media pipeline.
type PipelineMetrics struct {
	IngestsTotal          *prometheus.CounterVec
	IngestFailures        *prometheus.CounterVec
	TranscodesTotal       prometheus.Counter
	TranscodeFailures     prometheus.Counter
	DeletionsTotal        prometheus.Counter
	ImageOptimizeDuration prometheus.Histogram
	TranscodeDuration     prometheus.Histogram
}

// InitMetrics registers the pipeline collectors with the default registry.
// Re-registration (useful for testing) reuses the existing collectors.
func InitMetrics() (*PipelineMetrics, error) {
	m := &PipelineMetrics{
		IngestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mediavault_ingests_total",
			Help: "Accepted uploads by category.",
		}, []string{"category"}),
		IngestFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mediavault_ingest_failures_total",
			Help: "Failed uploads by category.",
		}, []string{"category"}),
		TranscodesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mediavault_transcodes_total",
			Help: "Completed background transcodes.",
		}),
		TranscodeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mediavault_transcode_failures_total",
			Help: "Terminally failed background transcodes.",
		}),
		DeletionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mediavault_deletions_total",
			Help: "Deleted media records.",
		}),
		ImageOptimizeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mediavault_image_optimize_seconds",
			Help:    "Synchronous image optimization duration.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),
		TranscodeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mediavault_transcode_seconds",
			Help:    "Background transcode duration.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}),
	}

	if err := registerCounterVec(&m.IngestsTotal); err != nil {
		return nil, err
	}
	if err := registerCounterVec(&m.IngestFailures); err != nil {
		return nil, err
	}
	if err := registerCounter(&m.TranscodesTotal); err != nil {
		return nil, err
	}
	if err := registerCounter(&m.TranscodeFailures); err != nil {
		return nil, err
	}
	if err := registerCounter(&m.DeletionsTotal); err != nil {
		return nil, err
	}
	if err := registerHistogram(&m.ImageOptimizeDuration); err != nil {
		return nil, err
	}
	if err := registerHistogram(&m.TranscodeDuration); err != nil {
		return nil, err
	}

	return m, nil
}

func registerCounterVec(c **prometheus.CounterVec) error {
	if err := prometheus.Register(*c); err != nil {
		are, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return err
		}
		*c = are.ExistingCollector.(*prometheus.CounterVec)
	}
	return nil
}

func registerCounter(c *prometheus.Counter) error {
	if err := prometheus.Register(*c); err != nil {
		are, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return err
		}
		*c = are.ExistingCollector.(prometheus.Counter)
	}
	return nil
}

func registerHistogram(h *prometheus.Histogram) error {
	if err := prometheus.Register(*h); err != nil {
		are, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return err
		}
		*h = are.ExistingCollector.(prometheus.Histogram)
	}
	return nil
}

// StartMetricsServer starts an HTTP server exposing /metrics and /health
func StartMetricsServer(addr string, logger *zap.Logger) {
	go func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("OK"))
		})
		mux.Handle("/metrics", promhttp.Handler())

		logger.Info("starting metrics server", zap.String("addr", addr))
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
}
