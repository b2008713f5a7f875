// Display collaborator contract used by the transform engine
package display

import (
	"image"

	"image-crop-engine/internal/raster"
)

// Display shows the session's current buffer and owns the crop window.
//
// SetRasterBuffer must not retain buf past the call: the engine keeps
// ownership and may release it on the next transform. Implementations take a
// snapshot with buf.Image().
type Display interface {
	SetRasterBuffer(buf raster.Buffer) error
	ResetCropWindow()
}

// SourceLoader is implemented by displays that can decode a locator on their
// own. It is used when the engine cannot read the locator eagerly. done is
// expected once; on success the engine takes ownership of buf. A call that
// arrives after the engine stopped waiting, or a repeated call, has its
// buffer released immediately.
type SourceLoader interface {
	SetRasterSource(locator string, done func(buf raster.Buffer, err error))
}

// Cropper is implemented by displays that can produce the user's crop of
// what they currently show.
type Cropper interface {
	CroppedImage() (image.Image, bool)
	CropRect() (image.Rectangle, bool)
}

// AspectRatioSetter is implemented by displays that can constrain the crop
// window to a fixed aspect ratio.
type AspectRatioSetter interface {
	SetFixedAspectRatio(fixed bool)
	SetAspectRatio(width, height int)
	ClearAspectRatio()
}
