package preprocess

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestFromImage_FixedWidthPadsRight(t *testing.T) {
	white := solid(64, 32, color.RGBA{255, 255, 255, 255})
	opts := DefaultOptions()
	opts.Width = 100

	out, err := FromImage(white, opts)
	require.NoError(t, err)
	require.Equal(t, []int{1, 3, 32, 100}, out.Shape)

	// White normalizes to 1; the pad right of the resized content stays zero.
	assert.InDelta(t, 1.0, out.Data[0], 1e-9, "column 0")
	assert.InDelta(t, 1.0, out.Data[63], 1e-9, "last content column")
	assert.Equal(t, 0.0, out.Data[64], "first pad column")
	assert.Equal(t, 0.0, out.Data[99], "last pad column")
}

func TestFromImage_DerivedWidth(t *testing.T) {
	img := solid(100, 50, color.RGBA{255, 255, 255, 255})

	out, err := FromImage(img, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3, 32, 64}, out.Shape, "width follows the aspect ratio")
}

func TestFromImage_SqueezesWideImages(t *testing.T) {
	img := solid(400, 32, color.RGBA{255, 255, 255, 255})
	opts := DefaultOptions()
	opts.Width = 100

	out, err := FromImage(img, opts)
	require.NoError(t, err)
	require.Equal(t, []int{1, 3, 32, 100}, out.Shape)
	assert.InDelta(t, 1.0, out.Data[99], 1e-9, "no pad when the image fills the width")
}

func TestFromImage_ChannelOrder(t *testing.T) {
	red := solid(32, 32, color.RGBA{255, 0, 0, 255})

	out, err := FromImage(red, DefaultOptions())
	require.NoError(t, err)
	require.Equal(t, []int{1, 3, 32, 32}, out.Shape)

	area := 32 * 32
	assert.InDelta(t, 1.0, out.Data[0], 1e-9, "red plane")
	assert.InDelta(t, -1.0, out.Data[area], 1e-9, "green plane")
	assert.InDelta(t, -1.0, out.Data[2*area], 1e-9, "blue plane")
}

func TestFromImage_Grayscale(t *testing.T) {
	black := solid(64, 32, color.RGBA{0, 0, 0, 255})
	opts := Options{Channels: 1, Height: 32, Width: 0, Mean: 0.5, Std: 0.5}

	out, err := FromImage(black, opts)
	require.NoError(t, err)
	require.Equal(t, []int{1, 1, 32, 64}, out.Shape)
	assert.InDelta(t, -1.0, out.Data[0], 1e-9)
	assert.InDelta(t, -1.0, out.Data[len(out.Data)-1], 1e-9)
}

func TestFromImage_Validation(t *testing.T) {
	img := solid(8, 8, color.RGBA{255, 255, 255, 255})

	_, err := FromImage(img, Options{Channels: 2, Height: 32, Std: 0.5})
	assert.ErrorContains(t, err, "unsupported channel count")

	_, err = FromImage(img, Options{Channels: 3, Height: 0, Std: 0.5})
	assert.ErrorContains(t, err, "invalid target height")

	_, err = FromImage(img, Options{Channels: 3, Height: 32, Std: 0})
	assert.ErrorContains(t, err, "std must be non-zero")

	empty := image.NewRGBA(image.Rect(0, 0, 0, 0))
	_, err = FromImage(empty, DefaultOptions())
	assert.ErrorContains(t, err, "empty source image")
}

func TestFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "word.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, solid(64, 32, color.RGBA{255, 255, 255, 255})))
	require.NoError(t, f.Close())

	out, err := FromFile(path, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3, 32, 64}, out.Shape)

	_, err = FromFile(filepath.Join(t.TempDir(), "absent.png"), DefaultOptions())
	assert.ErrorContains(t, err, "failed to open image")
}
