package core

import (
	"image"

	"image-crop-engine/internal/raster"
)

// Accumulator is the bookkeeping of every transform applied since the
// source was loaded or last reset. It never drives the pixels: buffers are
// transformed in arrival order and the accumulator only records the totals.
type Accumulator struct {
	Rotation          int // degrees in [0, 360)
	FlippedHorizontal bool
	FlippedVertical   bool

	cropRect image.Rectangle
	hasCrop  bool
}

// NormalizeDegrees maps any angle into [0, 360).
func NormalizeDegrees(deg int) int {
	deg %= 360
	if deg < 0 {
		deg += 360
	}
	return deg
}

// Rotate adds delta degrees.
func (a *Accumulator) Rotate(delta int) {
	a.Rotation = NormalizeDegrees(a.Rotation + delta)
}

// Toggle flips the flag of axis.
func (a *Accumulator) Toggle(axis raster.Axis) {
	switch axis {
	case raster.Horizontal:
		a.FlippedHorizontal = !a.FlippedHorizontal
	case raster.Vertical:
		a.FlippedVertical = !a.FlippedVertical
	}
}

// SetCropRect records the last crop rectangle chosen on the display.
func (a *Accumulator) SetCropRect(r image.Rectangle) {
	a.cropRect, a.hasCrop = r, true
}

// ClearCropRect forgets the crop rectangle.
func (a *Accumulator) ClearCropRect() {
	a.cropRect, a.hasCrop = image.Rectangle{}, false
}

// CropRect returns the last recorded crop rectangle, if any.
func (a *Accumulator) CropRect() (image.Rectangle, bool) {
	return a.cropRect, a.hasCrop
}

// Reset returns to the untransformed state.
func (a *Accumulator) Reset() {
	*a = Accumulator{}
}

// Identity reports whether no transform is recorded.
func (a *Accumulator) Identity() bool {
	return a.Rotation == 0 && !a.FlippedHorizontal && !a.FlippedVertical
}
