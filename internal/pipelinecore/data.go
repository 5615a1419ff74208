package pipelinecore

import "time"

// VideoRef describes the input video, by URL or local path.
type VideoRef struct {
	Path      string `json:"path,omitempty"`
	SourceURL string `json:"sourceUrl,omitempty"`
	Duration  float64 `json:"duration,omitempty"`
	FPS       float64 `json:"fps,omitempty"`
}

// AudioRef describes extracted/derived audio.
type AudioRef struct {
	Path     string `json:"path,omitempty"`
	HasAudio bool   `json:"hasAudio,omitempty"`
}

// CommercialVersion is one of the background treatments a final frame
// is fanned out into.
type CommercialVersion string

const (
	VersionTransparent CommercialVersion = "transparent"
	VersionSolid       CommercialVersion = "solid"
	VersionReal        CommercialVersion = "real"
	VersionCreative    CommercialVersion = "creative"
)

// ProductMetadata is the structured product description the
// classification/unified-analyzer processors populate.
type ProductMetadata struct {
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	Category    string   `json:"category,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
}

// FrameMetadata is one image sampled from the input video, progressively
// enriched by the stages that process it. Fields are only ever added,
// never silently removed, except by the two explicit filtering stages
// (scoring, classification) that may drop whole frames from
// Metadata.Frames.
//
// Phases (gated by the processor performing them):
//  1. Base: FrameID, Filename, Path, Timestamp, Index.
//  2. Scored: Sharpness, Motion, Score, IsBestPerSecond.
//  3. Classified: ProductID, VariantID, AngleEstimate, RotationAngleDeg,
//     Obstructions, BackgroundRecommendations, IsFinalSelection.
//  4. Persisted: DBID.
//  5. Versioned: Version, SourceFrameID.
//  6. Uploaded: S3URL.
type FrameMetadata struct {
	// Base
	FrameID   string  `json:"frameId"`
	Filename  string  `json:"filename"`
	Path      string  `json:"path"`
	Timestamp float64 `json:"timestamp"`
	Index     int     `json:"index"`

	// Scored
	Sharpness       *float64 `json:"sharpness,omitempty"`
	Motion          *float64 `json:"motion,omitempty"`
	Score           *float64 `json:"score,omitempty"`
	IsBestPerSecond bool     `json:"isBestPerSecond,omitempty"`

	// Classified
	ProductID                 string   `json:"productId,omitempty"`
	VariantID                 string   `json:"variantId,omitempty"`
	AngleEstimate              string   `json:"angleEstimate,omitempty"`
	RotationAngleDeg           float64  `json:"rotationAngleDeg,omitempty"`
	Obstructions               []string `json:"obstructions,omitempty"`
	BackgroundRecommendations  []string `json:"backgroundRecommendations,omitempty"`
	IsFinalSelection           bool     `json:"isFinalSelection,omitempty"`

	// Persisted
	DBID string `json:"dbId,omitempty"`

	// Versioned (commercial fan-out)
	Version       CommercialVersion `json:"version,omitempty"`
	SourceFrameID string            `json:"sourceFrameId,omitempty"`

	// Uploaded
	S3URL string `json:"s3Url,omitempty"`
}

// Clone returns a deep-enough copy of f suitable for use inside a
// parallel-map snapshot (see Parallel primitive docs): slice/map
// fields are copied so callers in different goroutines never alias
// the same backing array.
func (f FrameMetadata) Clone() FrameMetadata {
	out := f
	if f.Sharpness != nil {
		v := *f.Sharpness
		out.Sharpness = &v
	}
	if f.Motion != nil {
		v := *f.Motion
		out.Motion = &v
	}
	if f.Score != nil {
		v := *f.Score
		out.Score = &v
	}
	if f.Obstructions != nil {
		out.Obstructions = append([]string(nil), f.Obstructions...)
	}
	if f.BackgroundRecommendations != nil {
		out.BackgroundRecommendations = append([]string(nil), f.BackgroundRecommendations...)
	}
	return out
}

// Metadata is PipelineData's required subrecord. metadata.Frames is the
// current source of truth for frame state; legacy shadow fields
// elsewhere on PipelineData are derived views over it (DESIGN.md Open
// Question 2).
type Metadata struct {
	Frames          []FrameMetadata  `json:"frames,omitempty"`
	Transcript      string           `json:"transcript,omitempty"`
	ProductMetadata *ProductMetadata `json:"productMetadata,omitempty"`

	// Extensions is the open-ended escape hatch for fields not in the
	// closed DataPath vocabulary (spec design note: "sum type for
	// known fields + a metadata.extensions map-of-any for escape").
	Extensions map[string]any `json:"extensions,omitempty"`
}

// Clone returns a deep-enough copy for safe per-item snapshotting.
func (m Metadata) Clone() Metadata {
	out := m
	if m.Frames != nil {
		out.Frames = make([]FrameMetadata, len(m.Frames))
		for i, f := range m.Frames {
			out.Frames[i] = f.Clone()
		}
	}
	if m.Extensions != nil {
		out.Extensions = make(map[string]any, len(m.Extensions))
		for k, v := range m.Extensions {
			out.Extensions[k] = v
		}
	}
	return out
}

// PipelineData is the mutable record threaded through a single stack
// execution. A PipelineData is owned by one executor invocation and
// must not be shared across goroutines except through the parallel
// primitive, which hands each worker an immutable per-item snapshot
// (see internal/parallel).
type PipelineData struct {
	Metadata Metadata `json:"metadata"`

	Video  *VideoRef `json:"video,omitempty"`
	Images []string  `json:"images,omitempty"`
	Text   string    `json:"text,omitempty"`
	Audio  *AudioRef `json:"audio,omitempty"`

	// Legacy shadow views, write-only for one release cycle per
	// DESIGN.md Open Question 2. New processors must not read these;
	// SyncLegacyViews recomputes them from Metadata.Frames at the end of
	// every Merge.
	LegacyFrames          []FrameMetadata `json:"frames,omitempty"`
	LegacyRecommendedFrames []FrameMetadata `json:"recommendedFrames,omitempty"`
	LegacyCandidateFrames   []FrameMetadata `json:"candidateFrames,omitempty"`
	LegacyScoredFrames      []FrameMetadata `json:"scoredFrames,omitempty"`

	CreatedAt time.Time `json:"createdAt,omitzero"`
}

// SyncLegacyViews recomputes the legacy shadow fields from
// Metadata.Frames. Called once after a processor merge, never read by
// new processors.
func (d *PipelineData) SyncLegacyViews() {
	d.LegacyFrames = d.Metadata.Frames
	d.LegacyRecommendedFrames = d.Metadata.Frames
	d.LegacyCandidateFrames = d.Metadata.Frames
	scored := make([]FrameMetadata, 0, len(d.Metadata.Frames))
	for _, f := range d.Metadata.Frames {
		if f.Sharpness != nil {
			scored = append(scored, f)
		}
	}
	d.LegacyScoredFrames = scored
}

// Clone returns a deep-enough copy suitable for a parallel-map
// per-item snapshot.
func (d PipelineData) Clone() PipelineData {
	out := d
	out.Metadata = d.Metadata.Clone()
	if d.Images != nil {
		out.Images = append([]string(nil), d.Images...)
	}
	return out
}

// Merge performs the executor's non-destructive merge contract: fields
// present in patch replace the corresponding field on d; metadata is
// replaced wholesale only when metadataTouched is true, since merging metadata.* is the processor's own responsibility (spec
// §9 design note: "Shallow-merge of returned data").
func (d *PipelineData) Merge(patch PipelineData, metadataTouched bool) {
	if metadataTouched {
		d.Metadata = patch.Metadata
	}
	if patch.Video != nil {
		d.Video = patch.Video
	}
	if patch.Images != nil {
		d.Images = patch.Images
	}
	if patch.Text != "" {
		d.Text = patch.Text
	}
	if patch.Audio != nil {
		d.Audio = patch.Audio
	}
	d.SyncLegacyViews()
}
