package raster

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gradient returns a w x h image where every pixel encodes its own coordinates.
func gradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: uint8(x ^ y), A: 255})
		}
	}
	return img
}

func pixel(t *testing.T, b Buffer, x, y int) color.NRGBA {
	t.Helper()
	img, err := b.Image()
	require.NoError(t, err)
	return color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
}

func TestImageRotateClockwise(t *testing.T) {
	b, err := NewImage(gradient(4, 2))
	require.NoError(t, err)
	defer b.Close()

	r, err := b.Rotate90(true)
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, image.Pt(2, 4), r.Size())
	// Clockwise: the bottom-left source pixel becomes the top-left one.
	assert.Equal(t, pixel(t, b, 0, 1), pixel(t, r, 0, 0))
	assert.Equal(t, pixel(t, b, 0, 0), pixel(t, r, 1, 0))
}

func TestImageRotateCounterClockwise(t *testing.T) {
	b, err := NewImage(gradient(4, 2))
	require.NoError(t, err)
	defer b.Close()

	r, err := b.Rotate90(false)
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, image.Pt(2, 4), r.Size())
	// Counter-clockwise: the top-right source pixel becomes the top-left one.
	assert.Equal(t, pixel(t, b, 3, 0), pixel(t, r, 0, 0))
}

func TestImageFlip(t *testing.T) {
	b, err := NewImage(gradient(3, 2))
	require.NoError(t, err)
	defer b.Close()

	h, err := b.Flip(Horizontal)
	require.NoError(t, err)
	defer h.Close()
	assert.Equal(t, b.Size(), h.Size())
	assert.Equal(t, pixel(t, b, 2, 0), pixel(t, h, 0, 0))

	v, err := b.Flip(Vertical)
	require.NoError(t, err)
	defer v.Close()
	assert.Equal(t, pixel(t, b, 0, 1), pixel(t, v, 0, 0))
}

func TestImageCloneIsIndependent(t *testing.T) {
	b, err := NewImage(gradient(2, 2))
	require.NoError(t, err)

	c, err := b.Clone()
	require.NoError(t, err)
	require.NoError(t, b.Close())

	assert.Equal(t, image.Pt(2, 2), c.Size())
	_, err = c.Image()
	assert.NoError(t, err)
	require.NoError(t, c.Close())
}

func TestImageUseAfterClose(t *testing.T) {
	b, err := NewImage(gradient(2, 2))
	require.NoError(t, err)
	require.NoError(t, b.Close())

	assert.ErrorIs(t, b.Close(), ErrReleased)
	_, err = b.Rotate90(true)
	assert.ErrorIs(t, err, ErrReleased)
	_, err = b.Flip(Horizontal)
	assert.ErrorIs(t, err, ErrReleased)
	assert.Equal(t, image.Point{}, b.Size())
}

func TestNewImageRejectsEmpty(t *testing.T) {
	_, err := NewImage(nil)
	assert.ErrorIs(t, err, ErrEmpty)

	_, err = NewImage(image.NewNRGBA(image.Rect(0, 0, 0, 5)))
	assert.Error(t, err)
}

func TestFromImageUnknownBackend(t *testing.T) {
	_, err := FromImage("vulkan", gradient(1, 1))
	assert.Error(t, err)
}
