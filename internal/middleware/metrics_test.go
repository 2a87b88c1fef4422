package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/momofin/momofin-backend/internal/telemetry"
)

// series returns every sample currently held by collector.
func series(c prometheus.Collector) []*dto.Metric {
	ch := make(chan prometheus.Metric, 64)
	c.Collect(ch)
	close(ch)

	var out []*dto.Metric
	for m := range ch {
		var dm dto.Metric
		if err := m.Write(&dm); err == nil {
			out = append(out, &dm)
		}
	}
	return out
}

func hasLabels(m *dto.Metric, labels prometheus.Labels) bool {
	for k, want := range labels {
		found := false
		for _, lp := range m.GetLabel() {
			if lp.GetName() == k && lp.GetValue() == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func counterValue(cv *prometheus.CounterVec, labels prometheus.Labels) float64 {
	for _, m := range series(cv) {
		if hasLabels(m, labels) {
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func histogramCount(hv *prometheus.HistogramVec, labels prometheus.Labels) uint64 {
	for _, m := range series(hv) {
		if hasLabels(m, labels) {
			return m.GetHistogram().GetSampleCount()
		}
	}
	return 0
}

func newMetricsRouter() *gin.Engine {
	r := gin.New()
	r.Use(MetricsMiddleware())
	r.GET("/documents/:id", func(c *gin.Context) {
		if c.Param("id") == "boom" {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.Status(http.StatusOK)
	})
	return r
}

func TestMetricsMiddleware(t *testing.T) {
	tests := []struct {
		name   string
		target string
		path   string
		status string
	}{
		{"route template label", "/documents/42", "/documents/:id", "200"},
		{"server error status", "/documents/boom", "/documents/:id", "500"},
		{"unmatched route", "/nowhere", "<no-route>", "404"},
	}

	r := newMetricsRouter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			total := prometheus.Labels{"method": "GET", "path": tt.path, "status": tt.status}
			duration := prometheus.Labels{"method": "GET", "path": tt.path}
			beforeTotal := counterValue(telemetry.HTTPRequestsTotal, total)
			beforeCount := histogramCount(telemetry.HTTPRequestDuration, duration)

			r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tt.target, nil))

			if got := counterValue(telemetry.HTTPRequestsTotal, total) - beforeTotal; got != 1 {
				t.Errorf("http_requests_total delta = %.0f, want 1", got)
			}
			if got := histogramCount(telemetry.HTTPRequestDuration, duration) - beforeCount; got != 1 {
				t.Errorf("http_request_duration_seconds count delta = %d, want 1", got)
			}
		})
	}
}

func TestMetricsMiddleware_NeverUsesRawURL(t *testing.T) {
	newMetricsRouter().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/documents/7f1c", nil))

	for _, m := range series(telemetry.HTTPRequestsTotal) {
		if hasLabels(m, prometheus.Labels{"path": "/documents/7f1c"}) {
			t.Fatal("raw URL used as path label")
		}
	}
}
