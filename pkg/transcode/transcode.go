package transcode

import (
	"bytes"
	"context"
	"image"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/yomuyume/yomuyume/pkg/config"
	"github.com/yomuyume/yomuyume/pkg/errcodes"
	"github.com/yomuyume/yomuyume/pkg/metrics"

	// Decoders used by imaging.Open through image.Decode.
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	MethodNative = "native"
	MethodDJXL   = "djxl"
	MethodFFmpeg = "ffmpeg"
)

const (
	resultOK          = "ok"
	resultError       = "error"
	resultUnavailable = "unavailable"
)

// ffmpegScale is the filter ffmpeg shrinks images with before piping them
// back. Only the perceptual hash is computed from the result, so a small
// width is plenty.
const ffmpegScale = "scale=100:-1"

type Options struct {
	FFmpegPath    string
	FFmpegLogPath string
	DJXLPath      string
	TempDir       string
	Timeout       time.Duration
	NativeFormats []string
	JPEGXLFormats []string
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		FFmpegPath:    cfg.FFmpegPath,
		FFmpegLogPath: cfg.FFmpegLogPath,
		DJXLPath:      cfg.DJXLPath,
		TempDir:       cfg.TempDir,
		Timeout:       cfg.TranscodeTimeout,
		NativeFormats: cfg.NativeImageFormats,
		JPEGXLFormats: cfg.JPEGXLFormats,
	}
}

// Transcoder decodes image files of any supported format into memory. It is
// safe for concurrent use.
type Transcoder struct {
	opts   Options
	native map[string]struct{}
	jxl    map[string]struct{}

	// logMu serializes appends to the ffmpeg log.
	logMu sync.Mutex
}

func New(opts Options) *Transcoder {
	return &Transcoder{
		opts:   opts,
		native: toSet(opts.NativeFormats),
		jxl:    toSet(opts.JPEGXLFormats),
	}
}

func toSet(exts []string) map[string]struct{} {
	set := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		set[normalizeExt(ext)] = struct{}{}
	}
	return set
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// Method returns which decoding path an extension goes through.
func (t *Transcoder) Method(ext string) string {
	ext = normalizeExt(ext)
	if _, ok := t.native[ext]; ok {
		return MethodNative
	}
	if _, ok := t.jxl[ext]; ok {
		return MethodDJXL
	}
	return MethodFFmpeg
}

// Transcode decodes the image at path, picking the decoder from ext. It
// returns false when the image can't be decoded for any reason, including a
// required tool not being configured; the reason is logged.
func (t *Transcoder) Transcode(ctx context.Context, path, ext string) (image.Image, bool) {
	log := logger.FromContext(ctx)
	method := t.Method(ext)

	start := time.Now()
	var img image.Image
	var err error
	switch method {
	case MethodNative:
		img, err = t.decodeNative(path)
	case MethodDJXL:
		img, err = t.decodeDJXL(ctx, path)
	default:
		img, err = t.decodeFFmpeg(ctx, path)
	}
	metrics.TranscodeDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())

	if err != nil {
		result := resultError
		if errors.Is(err, errUnavailable) {
			result = resultUnavailable
		}
		metrics.TranscodesTotal.WithLabelValues(method, result).Inc()
		log.Err(err).Debug("transcode failed", logger.Data{"path": path, "method": method})
		return nil, false
	}

	metrics.TranscodesTotal.WithLabelValues(method, resultOK).Inc()
	return img, true
}

var errUnavailable = errcodes.Subprocess(nil, "tool not configured")

func (t *Transcoder) decodeNative(path string) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, errors.WithStack(errcodes.Decode(err, "failed to decode %s", path))
	}
	return img, nil
}

// decodeDJXL converts a JPEG XL file to a temporary PNG with djxl and decodes
// that.
func (t *Transcoder) decodeDJXL(ctx context.Context, path string) (image.Image, error) {
	if t.opts.DJXLPath == "" {
		return nil, errors.WithStack(errUnavailable)
	}

	if t.opts.TempDir != "" {
		if err := os.MkdirAll(t.opts.TempDir, 0755); err != nil {
			return nil, errors.WithStack(errcodes.Filesystem(err, "failed to create %s", t.opts.TempDir))
		}
	}
	tmp, err := os.CreateTemp(t.opts.TempDir, "djxl-*.png")
	if err != nil {
		return nil, errors.WithStack(errcodes.Filesystem(err, "failed to create temp file"))
	}
	out := tmp.Name()
	tmp.Close()
	defer os.Remove(out)

	ctx, cancel := t.withTimeout(ctx)
	defer cancel()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, t.opts.DJXLPath, path, out)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, errors.WithStack(errcodes.Subprocess(err, "djxl failed on %s: %s", path, strings.TrimSpace(stderr.String())))
	}

	img, err := imaging.Open(out)
	if err != nil {
		return nil, errors.WithStack(errcodes.Decode(err, "failed to decode djxl output for %s", path))
	}
	return img, nil
}

// decodeFFmpeg pipes the file through ffmpeg, which writes a downscaled PNG to
// stdout. A failing ffmpeg may still have written a usable image, so its
// output is decoded regardless of the exit status.
func (t *Transcoder) decodeFFmpeg(ctx context.Context, path string) (image.Image, error) {
	if t.opts.FFmpegPath == "" {
		return nil, errors.WithStack(errUnavailable)
	}

	ctx, cancel := t.withTimeout(ctx)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, t.opts.FFmpegPath,
		"-i", path,
		"-vf", ffmpegScale,
		"-y",
		"-f", "image2pipe",
		"-vcodec", "png",
		"-",
	)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return nil, errors.WithStack(errcodes.Subprocess(runErr, "failed to run ffmpeg on %s", path))
		}
		t.appendFFmpegLog(ctx, path, stderr.Bytes())
	}

	img, err := imaging.Decode(&stdout)
	if err != nil {
		if runErr != nil {
			return nil, errors.WithStack(errcodes.Subprocess(runErr, "ffmpeg failed on %s", path))
		}
		return nil, errors.WithStack(errcodes.Decode(err, "failed to decode ffmpeg output for %s", path))
	}
	return img, nil
}

func (t *Transcoder) appendFFmpegLog(ctx context.Context, path string, stderr []byte) {
	if t.opts.FFmpegLogPath == "" {
		return
	}

	t.logMu.Lock()
	defer t.logMu.Unlock()

	f, err := os.OpenFile(t.opts.FFmpegLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		logger.FromContext(ctx).Err(err).Warn("failed to open ffmpeg log", logger.Data{"path": t.opts.FFmpegLogPath})
		return
	}
	defer f.Close()

	header := "==> " + time.Now().Format(time.RFC3339) + " " + path + "\n"
	if _, err := f.WriteString(header); err == nil {
		_, err = f.Write(stderr)
		if err != nil {
			logger.FromContext(ctx).Err(err).Warn("failed to write ffmpeg log")
		}
	}
}

func (t *Transcoder) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if t.opts.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, t.opts.Timeout)
}
