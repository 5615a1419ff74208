package ffmpeg

import (
	"context"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// skipIfNoFFmpeg skips the test if ffmpeg is not installed.
func skipIfNoFFmpeg(t *testing.T) string {
	t.Helper()
	path, err := exec.LookPath("ffmpeg")
	if err != nil {
		t.Skip("ffmpeg not installed")
	}
	return path
}

func TestCommandBuilder_Build_ExtractFramesShape(t *testing.T) {
	cmd := NewCommandBuilder("/usr/bin/ffmpeg").
		HideBanner().
		Overwrite().
		Input("/tmp/video.mp4").
		VideoFilter("fps=1").
		OutputArgs("-qscale:v", "2").
		Output("/tmp/frames/frame_%06d.jpg").
		Build()

	assert.Equal(t, "/usr/bin/ffmpeg", cmd.Binary)
	assert.Equal(t, []string{
		"-loglevel", "error",
		"-hide_banner",
		"-y",
		"-i", "/tmp/video.mp4",
		"-vf", "fps=1",
		"-qscale:v", "2",
		"/tmp/frames/frame_%06d.jpg",
	}, cmd.Args)
}

func TestCommandBuilder_Build_SeekShape(t *testing.T) {
	cmd := NewCommandBuilder("ffmpeg").
		HideBanner().
		Overwrite().
		InputArgs("-ss", "12.500").
		Input("/tmp/video.mp4").
		OutputArgs("-frames:v", "1", "-qscale:v", "2").
		Output("/tmp/frames/keyframe_000000.jpg").
		Build()

	assert.Equal(t, []string{
		"-loglevel", "error",
		"-hide_banner",
		"-y",
		"-ss", "12.500",
		"-i", "/tmp/video.mp4",
		"-frames:v", "1", "-qscale:v", "2",
		"/tmp/frames/keyframe_000000.jpg",
	}, cmd.Args)
}

func TestCommandBuilder_NoFilterNoOverwrite(t *testing.T) {
	cmd := NewCommandBuilder("ffmpeg").Input("in.mp4").Output("out.jpg").Build()
	assert.Equal(t, []string{"-loglevel", "error", "-i", "in.mp4", "out.jpg"}, cmd.Args)
}

func TestCommand_String(t *testing.T) {
	cmd := NewCommandBuilder("ffmpeg").Input("in.mp4").Output("out.jpg").Build()
	assert.Equal(t, "ffmpeg -loglevel error -i in.mp4 out.jpg", cmd.String())
}

func TestCommand_Run(t *testing.T) {
	ffmpegPath := skipIfNoFFmpeg(t)
	cmd := NewCommandBuilder(ffmpegPath).OutputArgs("-version").Output("").Build()
	cmd.Args = []string{"-version"}
	require.NoError(t, cmd.Run(context.Background()))
}

func TestResolveBinary_ExplicitPath(t *testing.T) {
	ffmpegPath := skipIfNoFFmpeg(t)
	resolved, err := ResolveBinary(ffmpegPath)
	require.NoError(t, err)
	assert.Equal(t, ffmpegPath, resolved)
}

func TestResolveBinary_SearchesPath(t *testing.T) {
	skipIfNoFFmpeg(t)
	resolved, err := ResolveBinary("")
	require.NoError(t, err)
	assert.NotEmpty(t, resolved)
}

func TestResolveBinary_NotFound(t *testing.T) {
	_, err := ResolveBinary("/no/such/ffmpeg-binary-should-exist")
	assert.Error(t, err)
}
