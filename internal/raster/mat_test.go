//go:build opencv

package raster

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// translucent is gradient with a transparent left column and a half
// transparent top row.
func translucent(w, h int) *image.NRGBA {
	img := gradient(w, h)
	for y := 0; y < h; y++ {
		img.SetNRGBA(0, y, color.NRGBA{R: 200, G: 100, B: 50, A: 0})
	}
	for x := 1; x < w; x++ {
		img.SetNRGBA(x, 0, color.NRGBA{R: 250, G: 10, B: 90, A: 128})
	}
	return img
}

func TestMatFromImageKeepsAlpha(t *testing.T) {
	src := translucent(4, 3)
	m, err := MatFromImage(src)
	require.NoError(t, err)
	defer m.Close()

	mat := m.Mat()
	assert.Equal(t, 4, mat.Channels())
	assert.Equal(t, image.Pt(4, 3), m.Size())

	img, err := m.Image()
	require.NoError(t, err)
	require.IsType(t, &image.NRGBA{}, img)
	assert.Equal(t, src.Pix, img.(*image.NRGBA).Pix, "straight alpha survives the BGRA round trip")
}

func TestMatRotate(t *testing.T) {
	m, err := MatFromImage(translucent(4, 2))
	require.NoError(t, err)
	defer m.Close()

	cw, err := m.Rotate90(true)
	require.NoError(t, err)
	defer cw.Close()
	assert.Equal(t, image.Pt(2, 4), cw.Size())
	assert.Equal(t, pixel(t, m, 0, 1), pixel(t, cw, 0, 0))
	assert.Equal(t, pixel(t, m, 0, 0), pixel(t, cw, 1, 0))

	ccw, err := m.Rotate90(false)
	require.NoError(t, err)
	defer ccw.Close()
	assert.Equal(t, pixel(t, m, 3, 0), pixel(t, ccw, 0, 0))
}

func TestMatFlip(t *testing.T) {
	m, err := MatFromImage(translucent(3, 2))
	require.NoError(t, err)
	defer m.Close()

	h, err := m.Flip(Horizontal)
	require.NoError(t, err)
	defer h.Close()
	assert.Equal(t, pixel(t, m, 2, 1), pixel(t, h, 0, 1))
	assert.Zero(t, pixel(t, h, 2, 1).A, "transparent column moves to the right edge")

	v, err := m.Flip(Vertical)
	require.NoError(t, err)
	defer v.Close()
	assert.Equal(t, pixel(t, m, 1, 0), pixel(t, v, 1, 1))
	assert.Equal(t, uint8(128), pixel(t, v, 1, 1).A)
}

func TestMatCloneAndClose(t *testing.T) {
	m, err := MatFromImage(translucent(2, 2))
	require.NoError(t, err)

	c, err := m.Clone()
	require.NoError(t, err)
	require.NoError(t, m.Close())

	assert.ErrorIs(t, m.Close(), ErrReleased)
	_, err = m.Rotate90(true)
	assert.ErrorIs(t, err, ErrReleased)
	assert.Equal(t, image.Point{}, m.Size())

	assert.Equal(t, image.Pt(2, 2), c.Size())
	assert.Zero(t, pixel(t, c, 0, 1).A)
	require.NoError(t, c.Close())
}

func TestFromImageOpenCV(t *testing.T) {
	b, err := FromImage(BackendOpenCV, gradient(3, 3))
	require.NoError(t, err)
	defer b.Close()
	assert.IsType(t, &Mat{}, b)
}
