package display

import (
	"image"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"

	"image-crop-engine/internal/raster"
)

// Headless is an in-memory crop widget. It keeps a snapshot of the last
// buffer it was given and a crop window over it.
type Headless struct {
	mu     sync.Mutex
	logger logrus.FieldLogger

	snapshot image.Image
	crop     image.Rectangle
	fixed    bool
	ratio    image.Point // zero means free

	resets int
}

// NewHeadless creates an empty headless display.
func NewHeadless(logger logrus.FieldLogger) *Headless {
	return &Headless{logger: logger.WithField("component", "display")}
}

func (h *Headless) SetRasterBuffer(buf raster.Buffer) error {
	img, err := buf.Image()
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.snapshot = img
	h.crop = h.defaultCropLocked()
	h.logger.WithField("bounds", img.Bounds()).Debug("Raster buffer set")
	return nil
}

func (h *Headless) ResetCropWindow() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.crop = h.defaultCropLocked()
	h.resets++
}

// SetCropRect moves the crop window, clamped to the image bounds.
func (h *Headless) SetCropRect(r image.Rectangle) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.snapshot == nil {
		return
	}
	h.crop = r.Canon().Intersect(h.snapshot.Bounds())
}

func (h *Headless) CropRect() (image.Rectangle, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.snapshot == nil || h.crop.Empty() {
		return image.Rectangle{}, false
	}
	return h.crop, true
}

func (h *Headless) CroppedImage() (image.Image, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.snapshot == nil || h.crop.Empty() {
		return nil, false
	}
	return imaging.Crop(h.snapshot, h.crop), true
}

// Snapshot returns the image currently shown.
func (h *Headless) Snapshot() image.Image {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.snapshot
}

// CropResets returns how many times the crop window was recentered.
func (h *Headless) CropResets() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.resets
}

func (h *Headless) SetFixedAspectRatio(fixed bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fixed = fixed
	h.crop = h.defaultCropLocked()
}

func (h *Headless) SetAspectRatio(width, height int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ratio = image.Pt(width, height)
	h.fixed = true
	h.crop = h.defaultCropLocked()
}

// AspectRatio returns the enforced ratio, if the window is fixed to one.
func (h *Headless) AspectRatio() (image.Point, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.fixed || h.ratio.X <= 0 || h.ratio.Y <= 0 {
		return image.Point{}, false
	}
	return h.ratio, true
}

func (h *Headless) ClearAspectRatio() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ratio = image.Point{}
	h.crop = h.defaultCropLocked()
}

func (h *Headless) defaultCropLocked() image.Rectangle {
	if h.snapshot == nil {
		return image.Rectangle{}
	}
	bounds := h.snapshot.Bounds()
	if !h.fixed || h.ratio.X <= 0 || h.ratio.Y <= 0 {
		return bounds
	}
	return CenteredRect(bounds, h.ratio.X, h.ratio.Y)
}

// CenteredRect returns the largest rectangle of aspect w:h centered in bounds.
func CenteredRect(bounds image.Rectangle, w, h int) image.Rectangle {
	bw, bh := bounds.Dx(), bounds.Dy()
	cw, ch := bw, bw*h/w
	if ch > bh {
		cw, ch = bh*w/h, bh
	}
	if cw < 1 || ch < 1 {
		return bounds
	}

	origin := bounds.Min.Add(image.Pt((bw-cw)/2, (bh-ch)/2))
	return image.Rectangle{Min: origin, Max: origin.Add(image.Pt(cw, ch))}
}
