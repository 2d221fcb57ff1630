package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"

	jobmetrics "github.com/odyssey-erp/reqflow/internal/jobs"
	"github.com/odyssey-erp/reqflow/internal/requisition"
)

func TestMetricsHandlerExposesPrometheusMetrics(t *testing.T) {
	metrics := NewMetrics()

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)

	metrics.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}

	jobmetrics.NewMetrics(metrics.Registerer()).Track("requisition:remind").End(nil)

	rr = httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, req)
	body := rr.Body.String()
	if !strings.Contains(body, "reqflow_jobs_total") {
		t.Fatalf("expected body to contain reqflow_jobs_total, got: %s", body)
	}
}

func TestWorkflowCounters(t *testing.T) {
	metrics := NewMetrics()
	metrics.ObserveAction(requisition.TypeEmergencyWeek, requisition.ActionFinalApprove, "committed")
	metrics.ObserveAction(requisition.TypeEmergencyWeek, requisition.ActionFinalApprove, "committed")
	metrics.ObserveNotificationFailure()

	got := testutil.ToFloat64(metrics.workflowActions.WithLabelValues("EMERGENCY_1_WEEK", "FINAL_APPROVE", "committed"))
	if got != 2 {
		t.Fatalf("expected 2 committed actions, got %v", got)
	}
	if testutil.ToFloat64(metrics.notificationFailures) != 1 {
		t.Fatal("expected one notification failure")
	}

	var nilMetrics *Metrics
	nilMetrics.ObserveAction(requisition.TypeEmergencyWeek, requisition.ActionApprove, "committed")
	nilMetrics.ObserveNotificationFailure()
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx)
	req = req.WithContext(ctx)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected status %d, got %d", http.StatusTeapot, rr.Code)
	}

	metricsRR := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(metricsRR, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	metricsBody := metricsRR.Body.String()
	if !strings.Contains(metricsBody, "http_requests_total{code=\"418\",route=\"/test\"} 1") {
		t.Fatalf("expected metrics to record request, got: %s", metricsBody)
	}
	if !strings.Contains(metricsBody, "http_request_duration_seconds_bucket{route=\"/test\"") {
		t.Fatalf("expected duration histogram to be present, got: %s", metricsBody)
	}
}
