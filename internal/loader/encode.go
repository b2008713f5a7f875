package loader

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"gocv.io/x/gocv"

	"image-crop-engine/internal/raster"
)

// Format is an output file format for saved crops.
type Format string

const (
	FormatJPEG Format = "jpg"
	FormatPNG  Format = "png"
)

// Encoder compresses a cropped image for persisting.
type Encoder interface {
	Encode(img image.Image, format Format, quality int) ([]byte, error)
}

// NewEncoder returns the encoder for a raster backend.
func NewEncoder(backend raster.Backend) (Encoder, error) {
	switch backend {
	case raster.BackendOpenCV:
		return MatEncoder{}, nil
	case raster.BackendNative, "":
		return NativeEncoder{}, nil
	default:
		return nil, fmt.Errorf("unknown raster backend: %q", backend)
	}
}

// MatEncoder encodes with OpenCV.
type MatEncoder struct{}

func (MatEncoder) Encode(img image.Image, format Format, quality int) ([]byte, error) {
	buf, err := raster.MatFromImage(img)
	if err != nil {
		return nil, err
	}
	defer buf.Close()
	mat := buf.Mat()

	var (
		ext    gocv.FileExt
		params []int
		src    = mat
	)
	switch format {
	case FormatPNG:
		ext = gocv.PNGFileExt
	case FormatJPEG:
		// JPEG has no alpha channel.
		bgr := gocv.NewMat()
		defer bgr.Close()
		gocv.CvtColor(mat, &bgr, gocv.ColorBGRAToBGR)
		src = bgr
		ext = gocv.JPEGFileExt
		params = []int{gocv.IMWriteJpegQuality, quality}
	default:
		return nil, fmt.Errorf("unsupported image format: %s", format)
	}

	encoded, err := gocv.IMEncodeWithParams(ext, src, params)
	if err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	defer encoded.Close()

	out := make([]byte, encoded.Len())
	copy(out, encoded.GetBytes())
	return out, nil
}

// NativeEncoder encodes with the Go image codecs.
type NativeEncoder struct{}

func (NativeEncoder) Encode(img image.Image, format Format, quality int) ([]byte, error) {
	var (
		buf  bytes.Buffer
		opts []imaging.EncodeOption
		f    imaging.Format
	)
	switch format {
	case FormatPNG:
		f = imaging.PNG
	case FormatJPEG:
		f = imaging.JPEG
		opts = append(opts, imaging.JPEGQuality(quality))
	default:
		return nil, fmt.Errorf("unsupported image format: %s", format)
	}

	if err := imaging.Encode(&buf, img, f, opts...); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}

// HasAlpha reports whether any pixel of img is not fully opaque.
func HasAlpha(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return !o.Opaque()
	}

	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if _, _, _, a := img.At(x, y).RGBA(); a != 0xffff {
				return true
			}
		}
	}
	return false
}
