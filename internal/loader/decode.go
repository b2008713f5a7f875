package loader

import (
	"bytes"
	"fmt"
	"io"

	"github.com/disintegration/imaging"
	"gocv.io/x/gocv"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"image-crop-engine/internal/raster"
)

// Decoder turns encoded image bytes into an owned raster buffer.
type Decoder interface {
	Decode(r io.Reader) (raster.Buffer, error)
}

// NewDecoder returns the decoder for a raster backend.
func NewDecoder(backend raster.Backend, autoOrient bool) (Decoder, error) {
	switch backend {
	case raster.BackendOpenCV:
		return MatDecoder{}, nil
	case raster.BackendNative, "":
		return NativeDecoder{AutoOrient: autoOrient}, nil
	default:
		return nil, fmt.Errorf("unknown raster backend: %q", backend)
	}
}

// MatDecoder decodes with OpenCV. Images with an alpha channel keep it.
// IMReadUnchanged skips EXIF orientation, so opaque images are decoded again
// in color mode where OpenCV applies it.
type MatDecoder struct{}

func (MatDecoder) Decode(r io.Reader) (raster.Buffer, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read image data: %w", err)
	}

	mat, err := imdecode(data, gocv.IMReadUnchanged)
	if err != nil {
		return nil, err
	}
	if mat.Channels() != 4 {
		mat.Close()
		if mat, err = imdecode(data, gocv.IMReadColor); err != nil {
			return nil, err
		}
	}

	// 16-bit sources are scaled down to 8 bits per channel.
	if mat.Type()&7 != gocv.MatTypeCV8U {
		narrow := gocv.NewMat()
		mat.ConvertToWithParams(&narrow, gocv.MatTypeCV8U, 1.0/257, 0)
		mat.Close()
		mat = narrow
	}
	return raster.NewMat(mat)
}

func imdecode(data []byte, flags gocv.IMReadFlag) (gocv.Mat, error) {
	mat, err := gocv.IMDecode(data, flags)
	if err != nil {
		return mat, fmt.Errorf("failed to decode image: %w", err)
	}
	if mat.Empty() {
		mat.Close()
		return mat, fmt.Errorf("failed to decode image: %w", raster.ErrEmpty)
	}
	return mat, nil
}

// NativeDecoder decodes with the Go image codecs (png, jpeg, gif, bmp, tiff, webp).
type NativeDecoder struct {
	AutoOrient bool
}

func (d NativeDecoder) Decode(r io.Reader) (raster.Buffer, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read image data: %w", err)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(d.AutoOrient))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return raster.NewImage(img)
}
