package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Upload outcomes used as the "result" label.
const (
	ResultOK          = "ok"
	ResultTooLarge    = "too_large"
	ResultUnsupported = "unsupported_type"
	ResultStorage     = "storage_unavailable"
	ResultFailed      = "failed"
)

// Metrics groups the service's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	UploadsTotal       *prometheus.CounterVec
	UploadBytes        *prometheus.HistogramVec
	BlobWriteDuration  prometheus.Histogram
	BlobDeleteFailures *prometheus.CounterVec
	URLResolutions     *prometheus.CounterVec
	Decryptions        *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// NewMetrics registers all collectors on reg. Passing a fresh
// prometheus.NewRegistry() keeps tests independent of the global registry.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "emstore_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status_code"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "emstore_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		UploadsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "emstore_attachment_uploads_total",
				Help: "Attachment uploads by parent kind and outcome",
			},
			[]string{"kind", "result"},
		),
		UploadBytes: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "emstore_attachment_upload_bytes",
				Help:    "Size of accepted attachments in bytes",
				Buckets: prometheus.ExponentialBuckets(1024, 4, 8), // 1KiB .. 16MiB
			},
			[]string{"kind"},
		),
		BlobWriteDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "emstore_blob_write_duration_seconds",
			Help:    "Time spent writing attachment bytes to the blob store",
			Buckets: prometheus.DefBuckets,
		}),
		BlobDeleteFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "emstore_blob_delete_failures_total",
				Help: "Blob deletions that failed and were skipped",
			},
			[]string{"kind"},
		),
		URLResolutions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "emstore_url_resolutions_total",
				Help: "Download URL lookups by source (cached, derived, failed)",
			},
			[]string{"source"},
		),
		Decryptions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "emstore_credential_decryptions_total",
				Help: "Credential display requests by outcome",
			},
			[]string{"result"},
		),
		gatherer: reg,
	}
}

func (m *Metrics) RecordHTTPRequest(method, route, statusCode string, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func (m *Metrics) RecordUpload(kind, result string, size int64) {
	if m == nil {
		return
	}
	m.UploadsTotal.WithLabelValues(kind, result).Inc()
	if result == ResultOK {
		m.UploadBytes.WithLabelValues(kind).Observe(float64(size))
	}
}

func (m *Metrics) RecordBlobWrite(d time.Duration) {
	if m == nil {
		return
	}
	m.BlobWriteDuration.Observe(d.Seconds())
}

func (m *Metrics) RecordBlobDeleteFailure(kind string) {
	if m == nil {
		return
	}
	m.BlobDeleteFailures.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordURLResolution(source string) {
	if m == nil {
		return
	}
	m.URLResolutions.WithLabelValues(source).Inc()
}

func (m *Metrics) RecordDecryption(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "unavailable"
	}
	m.Decryptions.WithLabelValues(result).Inc()
}

// HTTPHandler exposes the registry this Metrics was built on.
func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
