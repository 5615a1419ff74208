package processors

import (
	"context"

	"github.com/jmylchreest/commercestack/internal/providers"
)

// The provider Registry (internal/providers) only specifies the
// bookkeeping contract (ID/Kind/IsAvailable/selection); the actual
// per-kind operation a provider performs is left to each kind's own
// narrow interface, following spec §1's scoping ("concrete provider
// implementations are out of scope"). Processors in this package
// depend on these interfaces, never on a specific vendor, so swapping
// a registered provider never touches processor code.

// Classifier labels product frames (providers.KindClassification).
type Classifier interface {
	providers.Provider
	Classify(ctx context.Context, imagePath string) (ClassificationResult, error)
}

// ClassificationResult is one frame's classification outcome.
type ClassificationResult struct {
	ProductID                string
	VariantID                string
	AngleEstimate            string
	RotationAngleDeg         float64
	Obstructions             []string
	BackgroundRecommendations []string
	IsFinalSelection         bool
}

// VideoAnalyzer performs end-to-end video understanding in one pass,
// bypassing per-frame extraction (providers.KindUnifiedAnalyzer).
type VideoAnalyzer interface {
	providers.Provider
	AnalyzeVideo(ctx context.Context, videoPath string) (VideoAnalysis, error)
}

// VideoAnalysis is a unified analyzer's output: a transcript, a product
// description, and the frame timestamps worth keeping.
type VideoAnalysis struct {
	Transcript      string
	Product         ProductSummary
	KeyFrameSeconds []float64
}

// ProductSummary mirrors pipelinecore.ProductMetadata, kept separate so
// this package never imports a vendor-shaped type into pipelinecore.
type ProductSummary struct {
	Title       string
	Description string
	Category    string
	Attributes  map[string]string
}

// ImageTransformer centers/normalizes a product frame
// (providers.KindImageTransform).
type ImageTransformer interface {
	providers.Provider
	Center(ctx context.Context, imagePath string) (outputPath string, err error)
}

// BackgroundRemover strips the background from a frame
// (providers.KindBackgroundRemoval).
type BackgroundRemover interface {
	providers.Provider
	RemoveBackground(ctx context.Context, imagePath string) (outputPath string, err error)
}

// CommercialImageGenerator renders one background treatment of a
// background-removed frame (providers.KindCommercialImage).
type CommercialImageGenerator interface {
	providers.Provider
	Generate(ctx context.Context, imagePath string, version string) (outputPath string, err error)
}
