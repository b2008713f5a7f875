// Raster buffers with explicit ownership and release
package raster

import (
	"errors"
	"fmt"
	"image"
)

var (
	// ErrReleased is returned by any operation on a buffer after Close.
	ErrReleased = errors.New("raster buffer already released")
	// ErrEmpty is returned when a backend produces or receives no pixels.
	ErrEmpty = errors.New("raster buffer is empty")
)

// Axis selects the mirror direction of a flip.
type Axis int

const (
	// Horizontal mirrors left to right (scale -1 on x).
	Horizontal Axis = iota
	// Vertical mirrors top to bottom (scale -1 on y).
	Vertical
)

func (a Axis) String() string {
	switch a {
	case Horizontal:
		return "horizontal"
	case Vertical:
		return "vertical"
	default:
		return fmt.Sprintf("axis(%d)", int(a))
	}
}

// Buffer is decoded pixel data owned by exactly one holder at a time.
//
// Every method that derives pixels returns a new Buffer that the caller owns;
// the receiver is never modified. Close releases the pixel memory and must be
// called exactly once by the owner.
type Buffer interface {
	// Size returns width and height in pixels.
	Size() image.Point
	// Rotate90 returns a copy rotated a quarter turn.
	Rotate90(clockwise bool) (Buffer, error)
	// Flip returns a mirrored copy.
	Flip(axis Axis) (Buffer, error)
	// Clone returns a deep copy.
	Clone() (Buffer, error)
	// Image returns a Go image snapshot that stays valid after Close.
	Image() (image.Image, error)
	// Close releases the pixels.
	Close() error
}

// Backend names the implementation used to hold pixels.
type Backend string

const (
	// BackendOpenCV keeps pixels in gocv Mats.
	BackendOpenCV Backend = "opencv"
	// BackendNative keeps pixels in Go NRGBA images.
	BackendNative Backend = "native"
)

// FromImage wraps a Go image in a buffer of the requested backend.
func FromImage(backend Backend, img image.Image) (Buffer, error) {
	switch backend {
	case BackendOpenCV:
		return MatFromImage(img)
	case BackendNative, "":
		return NewImage(img)
	default:
		return nil, fmt.Errorf("unknown raster backend: %q", backend)
	}
}

// ValidateSize checks basic dimension requirements for a decoded image.
func ValidateSize(size image.Point) error {
	if size.X <= 0 || size.Y <= 0 {
		return fmt.Errorf("invalid dimensions: %dx%d", size.X, size.Y)
	}

	const maxDimension = 16384
	if size.X > maxDimension || size.Y > maxDimension {
		return fmt.Errorf("image too large: %dx%d (max: %d)", size.X, size.Y, maxDimension)
	}
	return nil
}
