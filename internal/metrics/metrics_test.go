package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Observe(t *testing.T) {
	m := New()
	m.ObserveNormalization("flat", "ok")
	m.ObserveNormalization("flat", "ok")
	m.ObserveNormalization("unknown", "invalid_structure")
	m.ObserveDocument("completed")
	m.ObserveGeneration("gemini", 2*time.Second)
	m.ObserveCacheHit()

	if got := testutil.ToFloat64(m.normalizations.WithLabelValues("flat", "ok")); got != 2 {
		t.Errorf("expected 2 flat normalizations, got %v", got)
	}
	if got := testutil.ToFloat64(m.cacheHits); got != 1 {
		t.Errorf("expected 1 cache hit, got %v", got)
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.ObserveDocument("failed")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	if !strings.Contains(body, `caseextract_documents_processed_total{status="failed"} 1`) {
		t.Errorf("expected documents counter in output, got:\n%s", body)
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.ObserveDocument("completed")
	m.ObserveNormalization("flat", "ok")
	m.ObserveGeneration("x", time.Second)
	m.ObserveCacheHit()
}
