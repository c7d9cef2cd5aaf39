package exporters

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/smazurov/simstream/internal/metrics"
)

func TestHTTPHandler(t *testing.T) {
	handler := HTTPHandler()

	metrics.SetSessionMetrics("http-test-sim", metrics.SessionMetrics{FPS: 25})
	defer metrics.DeleteSessionMetrics("http-test-sim")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	body := w.Body.String()
	if !strings.Contains(body, `simstream_session_fps{udid="http-test-sim"} 25`) {
		t.Errorf("session fps missing from response:\n%s", body)
	}
}
