//go:build opencv

package loader

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"image-crop-engine/internal/raster"
)

func transparentPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			a := uint8(255)
			if x < w/2 {
				a = 0
			}
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 10), G: uint8(y * 10), B: 60, A: a})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestMatDecoderKeepsAlpha(t *testing.T) {
	buf, err := MatDecoder{}.Decode(bytes.NewReader(transparentPNG(t, 6, 4)))
	require.NoError(t, err)
	defer buf.Close()

	require.IsType(t, &raster.Mat{}, buf)
	mat := buf.(*raster.Mat).Mat()
	assert.Equal(t, 4, mat.Channels())
	assert.Equal(t, image.Pt(6, 4), buf.Size())

	img, err := buf.Image()
	require.NoError(t, err)
	assert.True(t, HasAlpha(img))
	assert.Equal(t, color.NRGBA{R: 50, G: 30, B: 60, A: 255}, color.NRGBAModel.Convert(img.At(5, 3)))
}

func TestMatDecoderOpaque(t *testing.T) {
	buf, err := MatDecoder{}.Decode(bytes.NewReader(pngBytes(t, 5, 3)))
	require.NoError(t, err)
	defer buf.Close()

	mat := buf.(*raster.Mat).Mat()
	assert.Equal(t, 3, mat.Channels())
	img, err := buf.Image()
	require.NoError(t, err)
	assert.False(t, HasAlpha(img))
}

func TestMatDecoderRejectsGarbage(t *testing.T) {
	_, err := MatDecoder{}.Decode(bytes.NewReader([]byte("not an image")))
	assert.Error(t, err)
}

func TestMatEncoderPNGKeepsAlpha(t *testing.T) {
	src, err := MatDecoder{}.Decode(bytes.NewReader(transparentPNG(t, 6, 4)))
	require.NoError(t, err)
	defer src.Close()

	rotated, err := src.Rotate90(true)
	require.NoError(t, err)
	defer rotated.Close()
	img, err := rotated.Image()
	require.NoError(t, err)

	data, err := MatEncoder{}.Encode(img, FormatPNG, 90)
	require.NoError(t, err)

	out, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, image.Pt(4, 6), out.Bounds().Size())
	assert.True(t, HasAlpha(out))
	// The transparent left half is the top half after a clockwise turn.
	_, _, _, a := out.At(0, 0).RGBA()
	assert.Zero(t, a)
	_, _, _, a = out.At(0, 5).RGBA()
	assert.Equal(t, uint32(0xffff), a)
}

func TestMatEncoderJPEG(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	for i := range img.Pix {
		img.Pix[i] = 200
	}

	data, err := MatEncoder{}.Encode(img, FormatJPEG, 80)
	require.NoError(t, err)

	out, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, image.Pt(8, 8), out.Bounds().Size())

	_, err = MatEncoder{}.Encode(img, Format("gif"), 80)
	assert.Error(t, err)
}
