package telemetry

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMiddlewareLabelsByPattern(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /cube/metrics/{name}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	handler := Middleware(mux)

	before := testutil.ToFloat64(
		HTTPRequestsTotal.WithLabelValues(http.MethodGet, "GET /cube/metrics/{name}", "503"),
	)

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/cube/metrics/total_revenue", nil))

	assert.Equal(t, http.StatusServiceUnavailable, recorder.Code)
	assert.Equal(t, before+1, testutil.ToFloat64(
		HTTPRequestsTotal.WithLabelValues(http.MethodGet, "GET /cube/metrics/{name}", "503"),
	))
}
