package testutils

import (
	"archive/zip"
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// PNG encodes a w×h image filled with a horizontal gradient starting at c.
func PNG(t *testing.T, w, h int, c color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: c.R + uint8(x%32), G: c.G + uint8(y%32), B: c.B, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// WriteFile writes content to path, creating parent directories.
func WriteFile(t *testing.T, path string, content []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, content, 0644))
}

// WriteZip writes a zip archive at path with the given members, in order.
func WriteZip(t *testing.T, path string, members []Member) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	for _, m := range members {
		w, err := zw.Create(m.Name)
		require.NoError(t, err)
		_, err = w.Write(m.Content)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
}

type Member struct {
	Name    string
	Content []byte
}
