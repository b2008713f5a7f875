package raster

import (
	"image"

	"github.com/disintegration/imaging"
)

// Image is a pure-Go Buffer holding NRGBA pixels.
type Image struct {
	img *image.NRGBA
}

// NewImage copies img into an owned NRGBA buffer.
func NewImage(img image.Image) (*Image, error) {
	if img == nil {
		return nil, ErrEmpty
	}
	if err := ValidateSize(img.Bounds().Size()); err != nil {
		return nil, err
	}
	return &Image{img: imaging.Clone(img)}, nil
}

func (b *Image) Size() image.Point {
	if b.img == nil {
		return image.Point{}
	}
	return b.img.Bounds().Size()
}

func (b *Image) Rotate90(clockwise bool) (Buffer, error) {
	if b.img == nil {
		return nil, ErrReleased
	}
	// imaging rotates counter-clockwise.
	if clockwise {
		return &Image{img: imaging.Rotate270(b.img)}, nil
	}
	return &Image{img: imaging.Rotate90(b.img)}, nil
}

func (b *Image) Flip(axis Axis) (Buffer, error) {
	if b.img == nil {
		return nil, ErrReleased
	}
	if axis == Vertical {
		return &Image{img: imaging.FlipV(b.img)}, nil
	}
	return &Image{img: imaging.FlipH(b.img)}, nil
}

func (b *Image) Clone() (Buffer, error) {
	if b.img == nil {
		return nil, ErrReleased
	}
	return &Image{img: imaging.Clone(b.img)}, nil
}

func (b *Image) Image() (image.Image, error) {
	if b.img == nil {
		return nil, ErrReleased
	}
	return imaging.Clone(b.img), nil
}

func (b *Image) Close() error {
	if b.img == nil {
		return ErrReleased
	}
	b.img = nil
	return nil
}
