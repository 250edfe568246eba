package service

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-testrunner/metrics"
)

func TestHealthzHandle(t *testing.T) {
	h := &HealthzServer{Log: log.NewLogger(log.DiscardHandler())}
	rec := httptest.NewRecorder()
	h.Handle(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func waitForAddr(t *testing.T, h *HealthzServer) string {
	t.Helper()
	require.Eventually(t, func() bool { return h.Addr() != nil }, 5*time.Second, 10*time.Millisecond)
	return h.Addr().String()
}

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestHealthzServer(t *testing.T) {
	h := &HealthzServer{}
	errCh := make(chan error, 1)
	go func() { errCh <- h.Start(context.Background(), "127.0.0.1:0") }()
	addr := waitForAddr(t, h)

	req, err := http.NewRequest(http.MethodGet, "http://"+addr+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://example.com")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	require.NoError(t, h.Shutdown())
	assert.ErrorIs(t, <-errCh, http.ErrServerClosed)
}

func TestMetricsServer(t *testing.T) {
	metrics.RecordRetry("service-test", "keep_retrying")

	m := &MetricsServer{}
	go func() { _ = m.Start(context.Background(), "127.0.0.1:0") }()
	addr := waitForAddr(t, &m.HealthzServer)
	defer func() { _ = m.Shutdown() }()

	resp, body := get(t, "http://"+addr+"/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(body, `testrunner_retries_total{reason="keep_retrying",run_id="service-test"} 1`))
}

func TestShutdownBeforeStart(t *testing.T) {
	s := New(log.NewLogger(log.DiscardHandler()), Config{})
	assert.NotPanics(t, s.Shutdown)
}
