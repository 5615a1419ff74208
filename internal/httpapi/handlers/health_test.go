package handlers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/commercestack/internal/health"
	"github.com/jmylchreest/commercestack/pkg/httpclient"
)

func TestHealthHandler_GetReturnsMetrics(t *testing.T) {
	h := NewHealthHandler(health.NewCollector(t.TempDir(), nil), nil, "test-version")

	resp, err := h.Get(context.Background(), &HealthInput{})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Body.Status)
	assert.Equal(t, "test-version", resp.Body.Version)
	assert.GreaterOrEqual(t, resp.Body.Metrics.CPUCores, 1)
}

func TestHealthHandler_GetIncludesCircuitBreakers(t *testing.T) {
	manager := httpclient.NewCircuitBreakerManager(nil)
	manager.GetOrCreate("test-provider")

	h := NewHealthHandler(health.NewCollector(t.TempDir(), nil), manager, "test-version")

	resp, err := h.Get(context.Background(), &HealthInput{})
	require.NoError(t, err)
	require.Contains(t, resp.Body.CircuitBreakers, "test-provider")
	assert.Equal(t, httpclient.CircuitClosed, resp.Body.CircuitBreakers["test-provider"].State)
}
