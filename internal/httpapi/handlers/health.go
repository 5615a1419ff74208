package handlers

import (
	"context"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/commercestack/internal/health"
	"github.com/jmylchreest/commercestack/pkg/httpclient"
)

// HealthHandler exposes the gopsutil-backed health/metrics snapshot plus
// per-upstream circuit breaker status (SPEC_FULL.md §4 "Health/metrics
// admin endpoint"). Shaped after tvarr's internal/http/handlers/health.go:
// one GET endpoint, uptime tracked from construction time.
type HealthHandler struct {
	collector *health.Collector
	breakers  *httpclient.CircuitBreakerManager
	version   string
	startTime time.Time
}

// NewHealthHandler returns a HealthHandler reading resource metrics from
// collector and circuit breaker state from breakers (the same manager
// internal/urlutil and the provider-calling processors draw their named
// breakers from). A nil breakers falls back to httpclient.DefaultManager.
func NewHealthHandler(collector *health.Collector, breakers *httpclient.CircuitBreakerManager, version string) *HealthHandler {
	if version == "" {
		version = "dev"
	}
	if breakers == nil {
		breakers = httpclient.DefaultManager
	}
	return &HealthHandler{collector: collector, breakers: breakers, version: version, startTime: time.Now()}
}

// Register wires the health route onto api.
func (h *HealthHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getHealth",
		Method:      "GET",
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns system resource metrics used for admission-time backpressure",
		Tags:        []string{"System"},
	}, h.Get)
}

// HealthInput is the Get operation's huma input.
type HealthInput struct{}

// HealthResponse is the wire shape of a health snapshot.
type HealthResponse struct {
	Status          string                                 `json:"status"`
	Version         string                                 `json:"version"`
	UptimeSeconds   float64                                `json:"uptimeSeconds"`
	Metrics         health.Snapshot                         `json:"metrics"`
	CircuitBreakers map[string]httpclient.CircuitBreakerStats `json:"circuitBreakers"`
}

// HealthOutput is the Get operation's huma output.
type HealthOutput struct {
	Body HealthResponse
}

// Get returns the current health snapshot, plus the state of every
// named circuit breaker (download origins, commerce providers, the
// webhook notifier) an operator would need to diagnose why a stack is
// stuck failing provider calls.
func (h *HealthHandler) Get(ctx context.Context, input *HealthInput) (*HealthOutput, error) {
	return &HealthOutput{Body: HealthResponse{
		Status:          "ok",
		Version:         h.version,
		UptimeSeconds:   time.Since(h.startTime).Seconds(),
		Metrics:         h.collector.Collect(ctx),
		CircuitBreakers: h.breakers.GetAllStats(),
	}}, nil
}
