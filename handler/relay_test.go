package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chat-relay/internal/integrations/azureopenai"
	"chat-relay/internal/usecase"
)

// newRelay wires the real service and Azure client against a stub upstream.
func newRelay(t *testing.T, upstream http.HandlerFunc) *Handler {
	t.Helper()
	srv := httptest.NewServer(upstream)
	t.Cleanup(srv.Close)

	client, err := azureopenai.NewClient(azureopenai.Settings{
		Endpoint:   srv.URL,
		Deployment: "gpt-test",
		APIKey:     "azure-secret-key",
		APIVersion: "2024-10-21",
	}, azureopenai.WithHTTPClient(&http.Client{Timeout: 2 * time.Second}))
	require.NoError(t, err)

	svc, err := usecase.NewChatService(client, "", 0, time.Second)
	require.NoError(t, err)
	return newTestHandler(t, svc)
}

func TestRelay_HelloRoundTrip(t *testing.T) {
	var gotUserMessage string
	h := newRelay(t, func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode upstream request: %v", err)
		}
		if n := len(payload.Messages); n > 0 {
			gotUserMessage = payload.Messages[n-1].Content
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"gpt-4o-mini",` +
			`"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"Hello! How can I help you today?"}}]}`))
	})

	rec := doRequest(h, http.MethodPost, "/chat", `{"message": "Hello!"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"response":"Hello! How can I help you today?"}`, rec.Body.String())
	require.Equal(t, "Hello!", gotUserMessage)
}

func TestRelay_UpstreamFailure(t *testing.T) {
	h := newRelay(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"code":"InternalServerError","message":"stack trace at azure-secret-key"}}`))
	})

	rec := doRequest(h, http.MethodPost, "/chat", `{"message": "Hello!"}`)
	require.Equal(t, http.StatusBadGateway, rec.Code)
	require.False(t, strings.Contains(rec.Body.String(), "azure-secret-key"))
	require.False(t, strings.Contains(rec.Body.String(), "stack trace"))
}

func TestRelay_UpstreamRateLimited(t *testing.T) {
	h := newRelay(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"code":"429","message":"Rate limit reached"}}`))
	})

	rec := doRequest(h, http.MethodPost, "/chat", `{"message": "Hello!"}`)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, string(usecase.ErrorRateLimited), parseBody[errorResponse](t, rec.Body.String()).Error)
}

func TestRelay_UpstreamTimeout(t *testing.T) {
	release := make(chan struct{})
	h := newRelay(t, func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	rec := doRequest(h, http.MethodPost, "/chat", `{"message": "Hello!"}`)
	require.Equal(t, http.StatusGatewayTimeout, rec.Code)
}
