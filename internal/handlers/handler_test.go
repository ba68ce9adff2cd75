package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"fireplus/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func TestHealth(t *testing.T) {
	r := newTestRouter(&service.Service{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), statusOK) {
		t.Fatalf("health status=%d, body=%s", w.Code, w.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	g := prometheus.NewGauge(prometheus.GaugeOpts{Name: "fireplus_test_gauge", Help: "test"})
	g.Set(3)
	reg.MustRegister(g)

	gin.SetMode(gin.TestMode)
	r := NewHandler(&service.Service{}, nil, promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).InitRoutes()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("metrics status=%d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "fireplus_test_gauge 3") {
		t.Fatalf("gauge missing from output: %s", w.Body.String())
	}

	// not mounted without a handler
	r = newTestRouter(&service.Service{})
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without metrics handler, got %d", w.Code)
	}
}
