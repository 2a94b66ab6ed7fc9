package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorderCountsByLabel(t *testing.T) {
	recorder := NewRecorder()
	recorder.Fallback("get_favorites", "transport_unavailable")
	recorder.Fallback("get_favorites", "transport_unavailable")
	recorder.Migration("completed")
	recorder.Export("complete", "uploaded")
	recorder.Email("skipped")

	if got := testutil.ToFloat64(recorder.fallbacks.WithLabelValues("get_favorites", "transport_unavailable")); got != 2 {
		t.Fatalf("expected 2 fallbacks, got %v", got)
	}
	if got := testutil.ToFloat64(recorder.exports.WithLabelValues("complete", "uploaded")); got != 1 {
		t.Fatalf("expected 1 export, got %v", got)
	}
}

func TestNilRecorderIsSafe(t *testing.T) {
	var recorder *Recorder
	recorder.Fallback("op", "reason")
	recorder.Migration("failed")
	recorder.Export("personal", "temporary")
	recorder.Email("failed")
}

func TestHandlerServesMetrics(t *testing.T) {
	recorder := NewRecorder()
	recorder.Migration("partial")

	response := httptest.NewRecorder()
	recorder.Handler().ServeHTTP(response, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))

	if response.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", response.Code)
	}
	if !strings.Contains(response.Body.String(), `proofing_migrations_total{outcome="partial"} 1`) {
		t.Fatalf("expected migration counter in output:\n%s", response.Body.String())
	}
}
