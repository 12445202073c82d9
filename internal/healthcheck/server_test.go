package healthcheck

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestHealthEndpoint(t *testing.T) {
	server := NewServer("0", zaptest.NewLogger(t))

	rec := httptest.NewRecorder()
	server.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "UP", resp.Status)
}

func TestReadyWithoutChecksIsReady(t *testing.T) {
	server := NewServer("0", zaptest.NewLogger(t))

	rec := httptest.NewRecorder()
	server.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyReportsPassingChecks(t *testing.T) {
	server := NewServer("0", zaptest.NewLogger(t))
	server.RegisterReadinessCheck("database", func(ctx context.Context) error { return nil })
	server.RegisterReadinessCheck("nats", func(ctx context.Context) error { return nil })

	rec := httptest.NewRecorder()
	server.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "READY", resp.Status)
	assert.Equal(t, "ok", resp.Details["database"])
	assert.Equal(t, "ok", resp.Details["nats"])
}

func TestReadyFailsWhenAnyCheckFails(t *testing.T) {
	server := NewServer("0", zaptest.NewLogger(t))
	server.RegisterReadinessCheck("database", func(ctx context.Context) error { return nil })
	server.RegisterReadinessCheck("nats", func(ctx context.Context) error {
		return errors.New("connection closed")
	})

	rec := httptest.NewRecorder()
	server.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "NOT_READY", resp.Status)
	assert.Equal(t, "ok", resp.Details["database"])
	assert.Contains(t, resp.Details["nats"], "connection closed")
}
