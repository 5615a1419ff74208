package pipelinecore

// DataPath is the closed capability vocabulary that flows through a
// stack execution. Each value asserts that a specific predicate over
// PipelineData holds; see Satisfied.
type DataPath string

const (
	PathVideo                 DataPath = "video"
	PathImages                DataPath = "images"
	PathText                  DataPath = "text"
	PathAudio                 DataPath = "audio"
	PathTranscript             DataPath = "transcript"
	PathProductMetadata        DataPath = "product.metadata"
	PathFrames                 DataPath = "frames"
	PathFramesScores           DataPath = "frames.scores"
	PathFramesClassifications  DataPath = "frames.classifications"
	PathFramesDBID             DataPath = "frames.dbId"
	PathFramesS3URL            DataPath = "frames.s3Url"
	PathFramesVersion          DataPath = "frames.version"
)

// knownPaths lists every closed-vocabulary DataPath, used to decide
// whether a requested path falls through the escape hatch.
var knownPaths = map[DataPath]bool{
	PathVideo: true, PathImages: true, PathText: true, PathAudio: true,
	PathTranscript: true, PathProductMetadata: true, PathFrames: true,
	PathFramesScores: true, PathFramesClassifications: true,
	PathFramesDBID: true, PathFramesS3URL: true, PathFramesVersion: true,
}

// Satisfied computes the set of DataPaths currently true of d, per the
// predicate table in the data-path inference component. Unknown paths
// are not evaluated here; they are resolved by the metadata-field
// escape hatch in Present.
func Satisfied(d *PipelineData) map[DataPath]bool {
	out := make(map[DataPath]bool, len(knownPaths))

	if d.Video != nil && (d.Video.Path != "" || d.Video.SourceURL != "") {
		out[PathVideo] = true
	}
	if len(d.Images) > 0 {
		out[PathImages] = true
	}
	if d.Text != "" {
		out[PathText] = true
	}
	if d.Audio != nil && d.Audio.Path != "" && d.Audio.HasAudio {
		out[PathAudio] = true
	}
	if d.Metadata.Transcript != "" {
		out[PathTranscript] = true
	}
	if d.Metadata.ProductMetadata != nil && d.Metadata.ProductMetadata.Title != "" {
		out[PathProductMetadata] = true
	}
	if len(d.Metadata.Frames) > 0 {
		out[PathFrames] = true
	}
	for _, f := range d.Metadata.Frames {
		if f.Sharpness != nil {
			out[PathFramesScores] = true
		}
		if f.ProductID != "" || f.VariantID != "" {
			out[PathFramesClassifications] = true
		}
		if f.DBID != "" {
			out[PathFramesDBID] = true
		}
		if f.S3URL != "" {
			out[PathFramesS3URL] = true
		}
		if f.Version != "" {
			out[PathFramesVersion] = true
		}
	}
	return out
}

// Present reports whether path is satisfied by d. Unknown (not in the
// closed vocabulary) paths fall back to a presence check of the same
// name as a field in metadata.extensions — the documented escape
// hatch, kept per DESIGN.md Open Question 3.
func Present(d *PipelineData, path DataPath) bool {
	if knownPaths[path] {
		return Satisfied(d)[path]
	}
	_, ok := d.Metadata.Extensions[string(path)]
	return ok
}
