package fingerprint

import (
	"context"
	"image"
	"image/color"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDecoder serves generated images by path; unknown paths fail to decode.
type fakeDecoder struct {
	images map[string]image.Image
	calls  atomic.Int32
}

func (d *fakeDecoder) Transcode(_ context.Context, path, _ string) (image.Image, bool) {
	d.calls.Add(1)
	img, ok := d.images[path]
	return img, ok
}

func gradient(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 80, A: 255})
		}
	}
	return img
}

func TestComponents(t *testing.T) {
	tests := []struct {
		width, height int
		x, y          int
	}{
		{100, 100, 3, 3},
		{200, 100, 6, 3},
		{100, 150, 3, 5},
		{150, 100, 5, 3},
		{1000, 100, 9, 3},
		{100, 1000, 3, 9},
	}
	for _, tt := range tests {
		x, y := Components(tt.width, tt.height)
		assert.Equal(t, tt.x, x, "%dx%d", tt.width, tt.height)
		assert.Equal(t, tt.y, y, "%dx%d", tt.width, tt.height)
	}
}

func TestEncode_ReturnsOriginalDimensions(t *testing.T) {
	dec := &fakeDecoder{images: map[string]image.Image{"a.png": gradient(640, 960)}}
	h := New(dec, 1)

	fp, ok := h.Encode(context.Background(), "a.png", "png")
	require.True(t, ok)
	assert.Equal(t, 640, fp.Width)
	assert.Equal(t, 960, fp.Height)
	assert.NotEmpty(t, fp.Blurhash)

	again, ok := h.Encode(context.Background(), "a.png", "png")
	require.True(t, ok)
	assert.Equal(t, fp, again)
}

func TestEncode_DecodeFailure(t *testing.T) {
	h := New(&fakeDecoder{}, 1)
	_, ok := h.Encode(context.Background(), "missing.jxl", "jxl")
	assert.False(t, ok)
}

func TestEncode_EmptyImage(t *testing.T) {
	dec := &fakeDecoder{images: map[string]image.Image{"empty.png": image.NewRGBA(image.Rect(0, 0, 0, 0))}}
	_, ok := New(dec, 1).Encode(context.Background(), "empty.png", "png")
	assert.False(t, ok)
}

func TestEncodeAll_SkipsFailures(t *testing.T) {
	dec := &fakeDecoder{images: map[string]image.Image{
		"/s/1.png": gradient(20, 30),
		"/s/2.png": gradient(30, 20),
		"/s/4.png": gradient(10, 10),
	}}
	h := New(dec, 2)

	results := h.EncodeAll(context.Background(), []Page{
		{Key: "1.png", Path: "/s/1.png", Ext: "png"},
		{Key: "2.png", Path: "/s/2.png", Ext: "png"},
		{Key: "3.jxl", Path: "/s/3.jxl", Ext: "jxl"},
		{Key: "4.png", Path: "/s/4.png", Ext: "png"},
	})

	assert.Len(t, results, 3)
	assert.Contains(t, results, "1.png")
	assert.NotContains(t, results, "3.jxl")
	assert.Equal(t, 30, results["2.png"].Width)
	assert.Equal(t, int32(4), dec.calls.Load())
}

func TestNew_DefaultWorkers(t *testing.T) {
	h := New(&fakeDecoder{}, 0)
	assert.Positive(t, h.workers)
}
