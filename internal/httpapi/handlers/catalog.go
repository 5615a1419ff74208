package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/commercestack/internal/pipelinecore"
	"github.com/jmylchreest/commercestack/internal/providers"
	"github.com/jmylchreest/commercestack/internal/templates"
)

// CatalogHandler exposes the read-only stack template and provider
// catalogues (spec §4.9 "listing APIs filter by availability").
type CatalogHandler struct {
	templates *templates.Catalogue
	providers *providers.Registry
}

// NewCatalogHandler returns a CatalogHandler wrapping catalogue and
// registry.
func NewCatalogHandler(catalogue *templates.Catalogue, registry *providers.Registry) *CatalogHandler {
	return &CatalogHandler{templates: catalogue, providers: registry}
}

// Register wires catalogue routes onto api.
func (h *CatalogHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listStacks",
		Method:      "GET",
		Path:        "/api/v1/stacks",
		Summary:     "List stack templates",
		Tags:        []string{"Catalogue"},
	}, h.ListStacks)

	huma.Register(api, huma.Operation{
		OperationID: "listProviders",
		Method:      "GET",
		Path:        "/api/v1/providers",
		Summary:     "List providers",
		Description: "Lists registered providers, optionally filtered to a single kind",
		Tags:        []string{"Catalogue"},
	}, h.ListProviders)
}

// ListStacksInput is the ListStacks operation's huma input.
type ListStacksInput struct{}

// ListStacksOutput is the ListStacks operation's huma output.
type ListStacksOutput struct {
	Body struct {
		Stacks []pipelinecore.StackTemplate `json:"stacks"`
	}
}

// ListStacks returns every built-in and operator-loaded stack template.
func (h *CatalogHandler) ListStacks(ctx context.Context, input *ListStacksInput) (*ListStacksOutput, error) {
	out := &ListStacksOutput{}
	out.Body.Stacks = h.templates.List()
	return out, nil
}

// ListProvidersInput is the ListProviders operation's huma input.
type ListProvidersInput struct {
	Kind          string `query:"kind" doc:"Provider kind to filter by (optional)"`
	OnlyAvailable bool   `query:"onlyAvailable" default:"false"`
}

// ProviderResponse is the wire shape of a registered provider.
type ProviderResponse struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	IsAvailable bool   `json:"isAvailable"`
}

// ListProvidersOutput is the ListProviders operation's huma output.
type ListProvidersOutput struct {
	Body struct {
		Providers []ProviderResponse `json:"providers"`
	}
}

var allKinds = []providers.Kind{
	providers.KindBackgroundRemoval,
	providers.KindImageTransform,
	providers.KindClassification,
	providers.KindCommercialImage,
	providers.KindProductExtraction,
	providers.KindVideoExtraction,
	providers.KindUnifiedAnalyzer,
	providers.KindUpscaler,
	providers.KindTranscriber,
}

// ListProviders lists registered providers, optionally scoped to one
// kind and/or filtered to only those reporting IsAvailable().
func (h *CatalogHandler) ListProviders(ctx context.Context, input *ListProvidersInput) (*ListProvidersOutput, error) {
	kinds := allKinds
	if input.Kind != "" {
		kinds = []providers.Kind{providers.Kind(input.Kind)}
	}

	out := &ListProvidersOutput{}
	for _, kind := range kinds {
		for _, p := range h.providers.List(kind, input.OnlyAvailable) {
			out.Body.Providers = append(out.Body.Providers, ProviderResponse{
				ID:          p.ID(),
				Kind:        string(p.Kind()),
				IsAvailable: p.IsAvailable(),
			})
		}
	}
	return out, nil
}
