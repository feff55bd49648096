package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHandler_ExposesObservations(t *testing.T) {
	m := New()
	m.ObserveRequest(http.MethodPost, "/chat", "200", 0.25)
	m.ObserveCompletion("ok")
	m.ObserveCompletion("UPSTREAM_ERROR")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	out := string(body)
	require.Contains(t, out, `chat_relay_http_requests_total{method="POST",route="/chat",status="200"} 1`)
	require.Contains(t, out, `chat_relay_http_request_duration_seconds_count{method="POST",route="/chat"} 1`)
	require.Contains(t, out, `chat_relay_upstream_completions_total{outcome="ok"} 1`)
	require.Contains(t, out, `chat_relay_upstream_completions_total{outcome="UPSTREAM_ERROR"} 1`)
}

func TestNew_IndependentRegistries(t *testing.T) {
	require.NotPanics(t, func() {
		_ = New()
		_ = New()
	})
}
