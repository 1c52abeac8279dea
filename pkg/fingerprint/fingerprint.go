package fingerprint

import (
	"context"
	"image"
	"math"
	"runtime"
	"sync"

	"github.com/buckket/go-blurhash"
	"github.com/disintegration/imaging"
	"github.com/robinjoseph08/golib/logger"
	"github.com/yomuyume/yomuyume/pkg/metrics"
	"golang.org/x/sync/errgroup"
)

const (
	// maxSide is the longest side an image is shrunk to before hashing.
	maxSide = 100
	// shortComponents is the number of blurhash components along the
	// shorter side of the image. The longer side gets proportionally more.
	shortComponents = 3
	maxComponents   = 9
)

// Decoder turns an image file into a raster. *transcode.Transcoder is one.
type Decoder interface {
	Transcode(ctx context.Context, path, ext string) (image.Image, bool)
}

// Fingerprint is the perceptual hash of an image together with the image's
// original dimensions.
type Fingerprint struct {
	Blurhash string
	Width    int
	Height   int
}

type Hasher struct {
	decoder Decoder
	workers int
}

// New returns a Hasher. A workers value of zero or less uses one worker per
// CPU.
func New(decoder Decoder, workers int) *Hasher {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Hasher{decoder: decoder, workers: workers}
}

// Encode decodes the image at path and returns its fingerprint. It returns
// false if the image can't be decoded or hashed.
func (h *Hasher) Encode(ctx context.Context, path, ext string) (Fingerprint, bool) {
	img, ok := h.decoder.Transcode(ctx, path, ext)
	if !ok {
		return Fingerprint{}, false
	}

	width, height := img.Bounds().Dx(), img.Bounds().Dy()
	if width == 0 || height == 0 {
		return Fingerprint{}, false
	}

	small := imaging.Fit(img, maxSide, maxSide, imaging.Gaussian)
	x, y := Components(width, height)

	hash, err := blurhash.Encode(x, y, small)
	if err != nil {
		logger.FromContext(ctx).Err(err).Debug("blurhash failed", logger.Data{"path": path})
		return Fingerprint{}, false
	}

	return Fingerprint{Blurhash: hash, Width: width, Height: height}, true
}

// Components returns the number of horizontal and vertical blurhash
// components for an image of the given size.
func Components(width, height int) (x, y int) {
	if width >= height {
		return clamp(int(math.Round(shortComponents * float64(width) / float64(height)))), shortComponents
	}
	return shortComponents, clamp(int(math.Round(shortComponents * float64(height) / float64(width))))
}

func clamp(n int) int {
	if n < 1 {
		return 1
	}
	if n > maxComponents {
		return maxComponents
	}
	return n
}

// Page is an image file to fingerprint. Key identifies it in the result.
type Page struct {
	Key  string
	Path string
	Ext  string
}

// EncodeAll fingerprints every page on the worker pool and returns the
// fingerprints of the ones that succeeded, keyed by Page.Key. Pages that
// fail are left out.
func (h *Hasher) EncodeAll(ctx context.Context, pages []Page) map[string]Fingerprint {
	results := make(map[string]Fingerprint, len(pages))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(h.workers)
	for _, page := range pages {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			fp, ok := h.Encode(ctx, page.Path, page.Ext)
			if !ok {
				metrics.PageHashFailures.Inc()
				logger.FromContext(ctx).Warn("skipping page that could not be hashed", logger.Data{"page": page.Key})
				return nil
			}
			metrics.PagesHashed.Inc()

			mu.Lock()
			results[page.Key] = fp
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return results
}
