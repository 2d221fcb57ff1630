package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/odyssey-erp/reqflow/internal/requisition"
)

// Metrics mengumpulkan metrik Prometheus untuk aplikasi.
type Metrics struct {
	registry             *prometheus.Registry
	handler              http.Handler
	requestsTotal        *prometheus.CounterVec
	requestDuration      *prometheus.HistogramVec
	workflowActions      *prometheus.CounterVec
	notificationFailures prometheus.Counter
}

var _ requisition.Metrics = (*Metrics)(nil)

// NewMetrics menginisialisasi registry dan metrik dasar.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reqflow_http_requests_total",
		Help: "Jumlah permintaan HTTP berdasarkan route dan status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "reqflow_http_request_duration_seconds",
		Help:    "Durasi permintaan HTTP per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	actions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reqflow_workflow_actions_total",
		Help: "Jumlah aksi alur persetujuan berdasarkan tipe, aksi, dan hasil.",
	}, []string{"type", "action", "outcome"})
	failures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reqflow_notification_failures_total",
		Help: "Jumlah notifikasi yang gagal dikirim.",
	})
	registry.MustRegister(requests, duration, actions, failures)
	return &Metrics{
		registry:             registry,
		handler:              promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:        requests,
		requestDuration:      duration,
		workflowActions:      actions,
		notificationFailures: failures,
	}
}

// Handler mengembalikan http.Handler untuk endpoint /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware mencatat metrik untuk setiap permintaan HTTP.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer mengekspos registry untuk pendaftaran metrik khusus.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// ObserveAction mencatat hasil satu aksi pada requisition.
func (m *Metrics) ObserveAction(t requisition.Type, action requisition.Action, outcome string) {
	if m == nil {
		return
	}
	m.workflowActions.WithLabelValues(string(t), string(action), outcome).Inc()
}

// ObserveNotificationFailure mencatat notifikasi yang gagal.
func (m *Metrics) ObserveNotificationFailure() {
	if m == nil {
		return
	}
	m.notificationFailures.Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
