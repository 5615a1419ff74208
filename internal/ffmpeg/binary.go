// Package ffmpeg runs ffmpeg to pull candidate frames out of a
// downloaded video: extract-frames samples at a fixed rate,
// gemini-unified-video-analyzer seeks to specific timestamps a
// provider picked out. It does not transcode, stream, or probe codec
// capabilities — commercestack only ever needs still frames.
package ffmpeg

import (
	"fmt"
	"os/exec"

	"github.com/jmylchreest/commercestack/internal/util"
)

// FFmpegBinaryEnvVar overrides where ResolveBinary looks for the
// ffmpeg executable, ahead of ./ffmpeg and $PATH.
const FFmpegBinaryEnvVar = "COMMERCESTACK_FFMPEG_BINARY"

// ResolveBinary locates the ffmpeg executable. path is used verbatim
// if non-empty; otherwise it falls back to util.FindBinary's
// FFmpegBinaryEnvVar -> ./ffmpeg -> $PATH search order. Either way the
// result is verified runnable with "-version" before being returned,
// so a processor registered with a bad path fails fast at startup
// rather than on the first job.
func ResolveBinary(path string) (string, error) {
	if path == "" {
		found, err := util.FindBinary("ffmpeg", FFmpegBinaryEnvVar)
		if err != nil {
			return "", fmt.Errorf("ffmpeg: %w", err)
		}
		path = found
	}

	if err := exec.Command(path, "-version").Run(); err != nil {
		return "", fmt.Errorf("ffmpeg: %s is not runnable: %w", path, err)
	}

	return path, nil
}
