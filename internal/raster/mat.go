package raster

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"gocv.io/x/gocv"
)

// Mat is a Buffer backed by an OpenCV matrix.
type Mat struct {
	mat      gocv.Mat
	released bool
}

// NewMat takes ownership of m. The Mat is validated the way the loader
// validates freshly decoded images.
func NewMat(m gocv.Mat) (*Mat, error) {
	if m.Empty() {
		m.Close()
		return nil, ErrEmpty
	}
	if err := ValidateSize(image.Pt(m.Cols(), m.Rows())); err != nil {
		m.Close()
		return nil, err
	}

	channels := m.Channels()
	if channels != 1 && channels != 3 && channels != 4 {
		m.Close()
		return nil, fmt.Errorf("unsupported number of channels: %d", channels)
	}
	return &Mat{mat: m}, nil
}

// MatFromImage converts a Go image into an owned 4-channel BGRA Mat. Alpha
// is kept unpremultiplied.
func MatFromImage(img image.Image) (*Mat, error) {
	n := imaging.Clone(img)
	b := n.Bounds()
	rgba, err := gocv.NewMatFromBytes(b.Dy(), b.Dx(), gocv.MatTypeCV8UC4, n.Pix)
	if err != nil {
		return nil, fmt.Errorf("convert image to mat: %w", err)
	}
	defer rgba.Close()

	bgra := gocv.NewMat()
	gocv.CvtColor(rgba, &bgra, gocv.ColorRGBAToBGRA)
	return NewMat(bgra)
}

func (m *Mat) Size() image.Point {
	if m.released {
		return image.Point{}
	}
	return image.Pt(m.mat.Cols(), m.mat.Rows())
}

func (m *Mat) Rotate90(clockwise bool) (Buffer, error) {
	if m.released {
		return nil, ErrReleased
	}

	code := gocv.Rotate90CounterClockwise
	if clockwise {
		code = gocv.Rotate90Clockwise
	}

	dst := gocv.NewMat()
	gocv.Rotate(m.mat, &dst, code)
	return wrapResult(dst, "rotate")
}

func (m *Mat) Flip(axis Axis) (Buffer, error) {
	if m.released {
		return nil, ErrReleased
	}

	// OpenCV flip codes: 1 mirrors around the y axis, 0 around the x axis.
	code := 1
	if axis == Vertical {
		code = 0
	}

	dst := gocv.NewMat()
	gocv.Flip(m.mat, &dst, code)
	return wrapResult(dst, "flip")
}

func (m *Mat) Clone() (Buffer, error) {
	if m.released {
		return nil, ErrReleased
	}
	return wrapResult(m.mat.Clone(), "clone")
}

func (m *Mat) Image() (image.Image, error) {
	if m.released {
		return nil, ErrReleased
	}
	if m.mat.Channels() == 4 {
		return m.nrgba()
	}
	return m.mat.ToImage()
}

// nrgba copies a BGRA matrix into an NRGBA image without premultiplying.
func (m *Mat) nrgba() (image.Image, error) {
	rgba := gocv.NewMat()
	defer rgba.Close()
	gocv.CvtColor(m.mat, &rgba, gocv.ColorBGRAToRGBA)

	img := image.NewNRGBA(image.Rect(0, 0, rgba.Cols(), rgba.Rows()))
	data := rgba.ToBytes()
	if len(data) != len(img.Pix) {
		return nil, fmt.Errorf("unexpected mat data length %d for %v", len(data), img.Rect.Size())
	}
	copy(img.Pix, data)
	return img, nil
}

func (m *Mat) Close() error {
	if m.released {
		return ErrReleased
	}
	m.released = true
	return m.mat.Close()
}

// Mat exposes the underlying matrix for OpenCV-only consumers such as the encoder.
// The returned value is still owned by the buffer.
func (m *Mat) Mat() gocv.Mat {
	return m.mat
}

func wrapResult(dst gocv.Mat, op string) (Buffer, error) {
	if dst.Empty() {
		dst.Close()
		return nil, fmt.Errorf("%s: %w", op, ErrEmpty)
	}
	return &Mat{mat: dst}, nil
}
