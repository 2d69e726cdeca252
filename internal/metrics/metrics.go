// Package metrics exposes Prometheus collectors for mirror runs and the
// offline gallery. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

const namespace = "vsmirror"

const (
	StatusDownloaded = "downloaded"
	StatusSkipped    = "skipped"
	StatusFailed     = "failed"
)

type Metrics struct {
	registry *prometheus.Registry

	downloadsTotal   *prometheus.CounterVec
	downloadBytes    *prometheus.CounterVec
	downloadDuration *prometheus.HistogramVec
	queriesTotal     *prometheus.CounterVec
	galleryRequests  *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.downloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloads_total",
			Help:      "Artifacts handled by the fetcher, by kind and outcome.",
		},
		[]string{"kind", "status"},
	)
	m.downloadBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "download_bytes_total",
			Help:      "Bytes written to the mirror.",
		},
		[]string{"kind"},
	)
	m.downloadDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "download_duration_seconds",
			Help:      "Time spent downloading one artifact.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		},
		[]string{"kind"},
	)
	m.queriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "marketplace_queries_total",
			Help:      "Marketplace query pages requested.",
		},
		[]string{"provider", "status"},
	)
	m.galleryRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gallery_requests_total",
			Help:      "Requests served by the offline gallery.",
		},
		[]string{"route", "code"},
	)

	m.registry.MustRegister(
		m.downloadsTotal,
		m.downloadBytes,
		m.downloadDuration,
		m.queriesTotal,
		m.galleryRequests,
	)
	return m
}

func (m *Metrics) RecordDownload(kind, status string, bytes int64, duration time.Duration) {
	if m == nil {
		return
	}
	m.downloadsTotal.WithLabelValues(kind, status).Inc()
	if status == StatusDownloaded {
		m.downloadBytes.WithLabelValues(kind).Add(float64(bytes))
		m.downloadDuration.WithLabelValues(kind).Observe(duration.Seconds())
	}
}

func (m *Metrics) RecordQuery(provider string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.queriesTotal.WithLabelValues(provider, status).Inc()
}

func (m *Metrics) RecordGalleryRequest(route string, code int) {
	if m == nil {
		return
	}
	m.galleryRequests.WithLabelValues(route, http.StatusText(code)).Inc()
}

// Downloads sums the download counter by status over every kind.
func (m *Metrics) Downloads() map[string]int {
	counts := make(map[string]int)
	if m == nil {
		return counts
	}
	ch := make(chan prometheus.Metric)
	go func() {
		m.downloadsTotal.Collect(ch)
		close(ch)
	}()
	for metric := range ch {
		var out dto.Metric
		if err := metric.Write(&out); err != nil {
			continue
		}
		for _, label := range out.GetLabel() {
			if label.GetName() == "status" {
				counts[label.GetValue()] += int(out.GetCounter().GetValue())
			}
		}
	}
	return counts
}

// WriteTextfile stores every collector in the Prometheus text format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}
