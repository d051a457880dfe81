package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mattjoyce/pagehooks/internal/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, opts ...Option) *httptest.Server {
	t.Helper()
	pipelines := []*Pipeline{
		newTestPipeline(t, EndpointConfig{Path: "/webhooks/edgeone", Secret: "test-secret", Strict: true}, nil, nil),
		newTestPipeline(t, EndpointConfig{Path: "/webhooks/demo", Scheme: SchemeBearer}, nil, nil),
	}
	srv := New(ServerConfig{Listen: "127.0.0.1:0"}, pipelines, log.Discard(), opts...)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func TestServerRoutesSignedWebhook(t *testing.T) {
	ts := newTestServer(t)
	body := []byte(`{"type":"deployment.error","deployment":{"url":"https://x","errorMessage":"build failed"}}`)

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/webhooks/edgeone", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("X-EdgeOne-Signature", ComputeSignature(body, "test-secret"))

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var env struct {
		Success   bool           `json:"success"`
		EventType string         `json:"eventType"`
		Result    map[string]any `json:"result"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	assert.True(t, env.Success)
	assert.Equal(t, "deployment.error", env.EventType)
	assert.Equal(t, "build failed", env.Result["error"])
	assert.NotEmpty(t, resp.Header.Get("Content-Type"))
}

func TestServerRejectsUnsignedStrictWebhook(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/webhooks/edgeone", "application/json", strings.NewReader(`{"type":"project.created"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServerEndpointHealth(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/webhooks/demo")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var health HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, Health, health)
}

func TestServerMethodNotAllowed(t *testing.T) {
	ts := newTestServer(t)

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/webhooks/demo", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Equal(t, "GET, POST", resp.Header.Get("Allow"))
}

func TestServerUnknownPath(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/webhooks/nope", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	var env ErrorEnvelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	assert.Equal(t, "Not found", env.Error)
}

func TestServerHealthzAndMetrics(t *testing.T) {
	ts := newTestServer(t)

	// Generate at least one request so the counters have samples.
	resp, err := http.Post(ts.URL+"/webhooks/demo", "application/json", strings.NewReader(`{"event":"project.created"}`))
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	var health map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	resp.Body.Close()
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, float64(2), health["endpoints"])

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(data), "pagehooks_requests_total")
	assert.Contains(t, string(data), `endpoint="/webhooks/demo"`)
}

func TestServerWithHandler(t *testing.T) {
	ts := newTestServer(t, WithHandler("/debug/events", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})))

	resp, err := http.Get(ts.URL + "/debug/events")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusTeapot, resp.StatusCode)
}

func TestNew_AppliesDefaults(t *testing.T) {
	srv := New(ServerConfig{Listen: "127.0.0.1:0"}, nil, log.Discard())

	assert.Equal(t, 10*time.Second, srv.config.ReadTimeout)
	assert.Equal(t, 10*time.Second, srv.config.WriteTimeout)
	assert.Equal(t, 5*time.Second, srv.config.ShutdownTimeout)
}

func TestServerStartStopsOnCancel(t *testing.T) {
	srv := New(ServerConfig{Listen: "127.0.0.1:0"}, nil, log.Discard())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled), "unexpected error: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop after cancel")
	}
}
