// Package metrics exposes Prometheus instruments for embedding, search and
// background tasks. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "notesai"

type Metrics struct {
	registry *prometheus.Registry

	embedDuration     *prometheus.HistogramVec
	embedErrors       *prometheus.CounterVec
	searchDuration    prometheus.Histogram
	searchCandidates  prometheus.Histogram
	skippedCandidates *prometheus.CounterVec
	reembedded        prometheus.Counter
	tasks             *prometheus.CounterVec
	httpRequests      *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		embedDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "embed_duration_seconds",
			Help:      "Embedding call latency by provider.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider"}),
		embedErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embed_errors_total",
			Help:      "Failed embedding calls by provider.",
		}, []string{"provider"}),
		searchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "End-to-end semantic search latency.",
			Buckets:   prometheus.DefBuckets,
		}),
		searchCandidates: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_candidates",
			Help:      "Candidates scanned per search.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),
		skippedCandidates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_skipped_candidates_total",
			Help:      "Candidates skipped during ranking, by reason.",
		}, []string{"reason"}),
		reembedded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_reembedded_total",
			Help:      "Stale embeddings recomputed during search.",
		}),
		tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_total",
			Help:      "Finished background tasks by kind and outcome.",
		}, []string{"kind", "status"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method and status code.",
		}, []string{"method", "code"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.embedDuration, m.embedErrors,
		m.searchDuration, m.searchCandidates, m.skippedCandidates, m.reembedded,
		m.tasks, m.httpRequests,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveEmbed(provider string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.embedDuration.WithLabelValues(provider).Observe(d.Seconds())
	if err != nil {
		m.embedErrors.WithLabelValues(provider).Inc()
	}
}

func (m *Metrics) ObserveSearch(d time.Duration, candidates int) {
	if m == nil {
		return
	}
	m.searchDuration.Observe(d.Seconds())
	m.searchCandidates.Observe(float64(candidates))
}

func (m *Metrics) SkippedCandidate(reason string) {
	if m == nil {
		return
	}
	m.skippedCandidates.WithLabelValues(reason).Inc()
}

func (m *Metrics) Reembedded(n int) {
	if m == nil {
		return
	}
	m.reembedded.Add(float64(n))
}

func (m *Metrics) TaskFinished(kind, status string) {
	if m == nil {
		return
	}
	m.tasks.WithLabelValues(kind, status).Inc()
}

func (m *Metrics) HTTPRequest(method string, code int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, strconv.Itoa(code)).Inc()
}
