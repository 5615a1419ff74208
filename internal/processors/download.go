package processors

import (
	"compress/bzip2"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/asticode/go-astits"
	gohlslib "github.com/bluenviron/gohlslib/v2"
	"github.com/bluenviron/gohlslib/v2/pkg/codecs"
	"github.com/ulikunitz/xz"

	"github.com/jmylchreest/commercestack/internal/pipelinecore"
	"github.com/jmylchreest/commercestack/internal/sandbox"
	"github.com/jmylchreest/commercestack/internal/urlutil"
	"github.com/jmylchreest/commercestack/pkg/httpclient"
)

// DownloadID is this processor's registry id.
const DownloadID = "download"

// Download fetches the job's source video into the sandbox's video
// subpath, resolving three source shapes: a plain HTTP(S) file, an HLS
// multivariant/media playlist (".m3u8"), and a local filesystem path.
// Transparently-compressed sources (".gz"/".bz2"/".xz") are
// decompressed on the way in. Grounded on
// internal/pipeline/stages/filtering/stage.go's Stage shape, generalized
// from filter rules to network I/O.
type Download struct {
	client   *httpclient.Client
	logger   *slog.Logger
	maxBytes int64 // 0 = unlimited
}

// NewDownload returns a Download processor using client for HTTP(S)
// fetches; a nil client gets httpclient.NewWithDefaults(). maxBytes
// caps the size of a fetched/copied source (config.StorageConfig's
// MaxDownloadBytes); 0 leaves it unbounded.
func NewDownload(client *httpclient.Client, logger *slog.Logger, maxBytes int64) *Download {
	if client == nil {
		client = httpclient.NewWithDefaults()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Download{client: client, logger: logger, maxBytes: maxBytes}
}

func (p *Download) ID() string          { return DownloadID }
func (p *Download) DisplayName() string { return "Download source video" }
func (p *Download) StatusKey() string   { return "downloading" }

func (p *Download) IO() pipelinecore.ProcessorIO {
	return pipelinecore.ProcessorIO{
		Requires: []pipelinecore.DataPath{pipelinecore.PathVideo},
		Produces: []pipelinecore.DataPath{pipelinecore.PathVideo},
	}
}

func (p *Download) Execute(ctx *pipelinecore.ProcessorContext, data pipelinecore.PipelineData, options map[string]any) (pipelinecore.ProcessorResult, error) {
	if data.Video == nil || data.Video.SourceURL == "" {
		return fail(pipelinecore.KindPrecondition, errors.New("processors: download requires video.sourceUrl"))
	}

	videoDir, err := ctx.Sandbox.Subpath(string(sandbox.SubpathVideo))
	if err != nil {
		return fail(pipelinecore.KindInternal, wrapf("processors: download: resolve video subpath: %w", err))
	}

	report(ctx, p.StatusKey(), 0, "starting download")

	src := data.Video.SourceURL
	var localPath string
	switch {
	case strings.Contains(src, ".m3u8"):
		localPath, err = p.downloadHLS(ctx, src, videoDir)
	case isLocalPath(src):
		localPath, err = p.copyLocal(src, videoDir)
	default:
		localPath, err = p.downloadHTTP(ctx, src, videoDir)
	}
	if err != nil {
		if errors.Is(err, errDownloadTooLarge) {
			return fail(pipelinecore.KindResource, wrapf("processors: download: %w", err))
		}
		wrapped := wrapf("processors: download: %w", err)
		var classified *pipelinecore.ClassifiedError
		if errors.As(err, &classified) {
			// downloadHTTP/the client already classified this (e.g. a
			// non-retryable status via httpclient.ClassifyStatusError);
			// preserve that kind instead of defaulting to transient.
			return pipelinecore.ProcessorResult{}, wrapped
		}
		return fail(pipelinecore.KindProviderTransient, wrapped)
	}

	if decompressed, dErr := decompressIfNeeded(localPath); dErr != nil {
		return fail(pipelinecore.KindInternal, wrapf("processors: download: decompress: %w", dErr))
	} else if decompressed != "" {
		localPath = decompressed
	}

	if strings.HasSuffix(localPath, ".ts") {
		if probeErr := probeTransportStream(localPath); probeErr != nil {
			p.logger.WarnContext(ctx, "downloaded transport stream failed container probe, continuing", slog.String("error", probeErr.Error()))
		}
	}

	report(ctx, p.StatusKey(), 100, "download complete")

	return pipelinecore.ProcessorResult{
		Success: true,
		Data: pipelinecore.PipelineData{
			Video: &pipelinecore.VideoRef{Path: localPath, SourceURL: src},
		},
	}, nil
}

// errDownloadTooLarge is returned when a source exceeds maxBytes.
var errDownloadTooLarge = errors.New("source exceeds configured max download size")

// copyLimited copies from r to w, failing with errDownloadTooLarge once
// more than maxBytes has been read. maxBytes <= 0 means unlimited.
func copyLimited(w io.Writer, r io.Reader, maxBytes int64) error {
	if maxBytes <= 0 {
		_, err := io.Copy(w, r)
		return err
	}
	limited := io.LimitReader(r, maxBytes+1)
	n, err := io.Copy(w, limited)
	if err != nil {
		return err
	}
	if n > maxBytes {
		return errDownloadTooLarge
	}
	return nil
}

func (p *Download) downloadHTTP(ctx context.Context, src, dir string) (string, error) {
	resp, err := p.client.Get(ctx, src)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", httpclient.ClassifyStatusError(resp.StatusCode, wrapf("unexpected status %d fetching %s", resp.StatusCode, src))
	}

	name := filepath.Base(src)
	if name == "" || name == "." || name == "/" {
		name = "source.mp4"
	}
	dest := filepath.Join(dir, name)
	f, err := os.Create(dest)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if err := copyLimited(f, resp.Body, p.maxBytes); err != nil {
		return "", err
	}
	return dest, nil
}

func (p *Download) copyLocal(src, dir string) (string, error) {
	src = strings.TrimPrefix(src, "file://")
	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	dest := filepath.Join(dir, filepath.Base(src))
	out, err := os.Create(dest)
	if err != nil {
		return "", err
	}
	defer out.Close()
	if err := copyLimited(out, in, p.maxBytes); err != nil {
		return "", err
	}
	return dest, nil
}

// downloadHLS pulls an HLS source with gohlslib's client, writing raw
// H264 access units to a single elementary-stream file in arrival
// order. Grounded on internal/relay/hls_repackager.go's use of
// gohlslib.Client as an input bridge, narrowed from "repackage to a new
// HLS muxer" down to "concatenate to one file for ffmpeg to read".
func (p *Download) downloadHLS(ctx context.Context, src, dir string) (string, error) {
	dest := filepath.Join(dir, "source.h264")
	f, err := os.Create(dest)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var client *gohlslib.Client
	client = &gohlslib.Client{
		URI:        src,
		HTTPClient: p.client.StandardClient(),
		OnTracks: func(tracks []*gohlslib.Track) error {
			for _, track := range tracks {
				if _, ok := track.Codec.(*codecs.H264); !ok {
					continue
				}
				client.OnDataH26x(track, func(pts, dts int64, au [][]byte) {
					for _, nalu := range au {
						_, _ = f.Write(nalu)
					}
				})
			}
			return nil
		},
	}

	if err := client.Start(); err != nil {
		return "", wrapf("starting HLS client: %w", err)
	}
	defer client.Close()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(30 * time.Second):
		// HLS VOD sources finish quickly; live sources are out of
		// scope for a one-shot download step, so a bounded wait is
		// the pragmatic stopping point for this reference processor.
	}

	return dest, nil
}

func isLocalPath(src string) bool {
	return !urlutil.IsRemoteURL(src)
}

// decompressIfNeeded transparently decompresses a gzip/bzip2/xz
// download, choosing the decoder by the file's ".gz"/".bz2"/".xz"
// suffix (file contents are not sniffed). It returns "" when the path
// has none of those suffixes.
func decompressIfNeeded(path string) (string, error) {
	var newReader func(io.Reader) (io.Reader, error)
	var trimExt string

	switch {
	case strings.HasSuffix(path, ".gz"):
		trimExt = ".gz"
		newReader = func(r io.Reader) (io.Reader, error) { return gzip.NewReader(r) }
	case strings.HasSuffix(path, ".bz2"):
		trimExt = ".bz2"
		newReader = func(r io.Reader) (io.Reader, error) { return bzip2.NewReader(r), nil }
	case strings.HasSuffix(path, ".xz"):
		trimExt = ".xz"
		newReader = func(r io.Reader) (io.Reader, error) { return xz.NewReader(r) }
	default:
		return "", nil
	}

	in, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer in.Close()

	r, err := newReader(in)
	if err != nil {
		return "", err
	}

	dest := strings.TrimSuffix(path, trimExt)
	out, err := os.Create(dest)
	if err != nil {
		return "", err
	}
	defer out.Close()
	if _, err := io.Copy(out, r); err != nil {
		return "", err
	}
	return dest, nil
}

// probeTransportStream does a shallow validity check of a downloaded
// ".ts" file: it must contain at least one PAT. Grounded on
// internal/codec's use of mediacommon/go-astits for format detection,
// narrowed to the minimal check a download step needs before handing
// the file to the extract-frames step's ffmpeg invocation.
func probeTransportStream(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dm := astits.NewDemuxer(context.Background(), f)
	for i := 0; i < 256; i++ {
		data, err := dm.NextData()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return err
		}
		if data.PAT != nil {
			return nil
		}
	}
	return errors.New("no PAT found in first 256 packets")
}

var _ pipelinecore.Processor = (*Download)(nil)
