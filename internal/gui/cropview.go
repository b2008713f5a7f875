// Crop view widget: shows the current buffer with a draggable crop window
package gui

import (
	"image"
	"image/color"
	"math"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/widget"
	"github.com/sirupsen/logrus"
	"golang.org/x/image/draw"

	"image-crop-engine/internal/display"
	"image-crop-engine/internal/raster"
)

var (
	shadeColor  = color.NRGBA{A: 140}
	borderColor = color.NRGBA{R: 255, G: 255, B: 255, A: 230}
)

// CropView is the on-screen display of one session. Crop window state
// lives in an embedded headless display; the widget only draws it and
// turns drags into crop rectangles.
type CropView struct {
	widget.BaseWidget
	*display.Headless

	logger logrus.FieldLogger

	img     *canvas.Image
	overlay *canvas.Raster

	dragging  bool
	dragStart image.Point
	dragNow   image.Point

	onCropChanged func(image.Rectangle)
}

// NewCropView creates an empty crop view.
func NewCropView(logger logrus.FieldLogger) *CropView {
	v := &CropView{
		Headless: display.NewHeadless(logger),
		logger:   logger.WithField("component", "crop_view"),
	}
	v.ExtendBaseWidget(v)
	return v
}

// SetCropChangedCallback is called after the user finishes a drag.
func (v *CropView) SetCropChangedCallback(fn func(image.Rectangle)) {
	v.onCropChanged = fn
}

func (v *CropView) CreateRenderer() fyne.WidgetRenderer {
	v.img = canvas.NewImageFromImage(image.NewNRGBA(image.Rect(0, 0, 1, 1)))
	v.img.FillMode = canvas.ImageFillContain
	v.img.ScaleMode = canvas.ImageScaleSmooth

	v.overlay = canvas.NewRaster(v.drawOverlay)

	return &cropViewRenderer{view: v, objects: []fyne.CanvasObject{v.img, v.overlay}}
}

// SetRasterBuffer snapshots buf and schedules a redraw on the UI thread.
func (v *CropView) SetRasterBuffer(buf raster.Buffer) error {
	if err := v.Headless.SetRasterBuffer(buf); err != nil {
		return err
	}
	snap := v.Snapshot()
	fyne.Do(func() {
		if v.img == nil {
			return
		}
		v.img.Image = snap
		v.img.Refresh()
		v.overlay.Refresh()
	})
	return nil
}

func (v *CropView) ResetCropWindow() {
	v.Headless.ResetCropWindow()
	v.refreshOverlay()
}

func (v *CropView) SetFixedAspectRatio(fixed bool) {
	v.Headless.SetFixedAspectRatio(fixed)
	v.refreshOverlay()
}

func (v *CropView) SetAspectRatio(width, height int) {
	v.Headless.SetAspectRatio(width, height)
	v.refreshOverlay()
}

func (v *CropView) ClearAspectRatio() {
	v.Headless.ClearAspectRatio()
	v.refreshOverlay()
}

func (v *CropView) refreshOverlay() {
	fyne.Do(func() {
		if v.overlay != nil {
			v.overlay.Refresh()
		}
	})
}

func (v *CropView) imageSize() (image.Point, bool) {
	snap := v.Snapshot()
	if snap == nil {
		return image.Point{}, false
	}
	return snap.Bounds().Size(), true
}

// MouseDown starts a new crop window at the pointer.
func (v *CropView) MouseDown(ev *desktop.MouseEvent) {
	size, ok := v.imageSize()
	if !ok {
		return
	}
	p := containedMapping(v.Size(), size).toImage(ev.Position)
	v.dragging = true
	v.dragStart, v.dragNow = p, p
}

func (v *CropView) MouseUp(*desktop.MouseEvent) {}

func (v *CropView) Dragged(ev *fyne.DragEvent) {
	size, ok := v.imageSize()
	if !ok || !v.dragging {
		return
	}
	v.dragNow = containedMapping(v.Size(), size).toImage(ev.Position)
	v.overlay.Refresh()
}

func (v *CropView) DragEnd() {
	if !v.dragging {
		return
	}
	v.dragging = false

	r := v.constrain(image.Rectangle{Min: v.dragStart, Max: v.dragNow}.Canon())
	if r.Empty() {
		v.overlay.Refresh()
		return
	}
	v.SetCropRect(r)
	v.overlay.Refresh()

	v.logger.WithField("crop_rect", r).Debug("Crop window moved")
	if v.onCropChanged != nil {
		v.onCropChanged(r)
	}
}

// constrain fits r to the enforced aspect ratio, if any.
func (v *CropView) constrain(r image.Rectangle) image.Rectangle {
	if ratio, ok := v.AspectRatio(); ok && !r.Empty() {
		return display.CenteredRect(r, ratio.X, ratio.Y)
	}
	return r
}

func (v *CropView) drawOverlay(w, h int) image.Image {
	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	size, ok := v.imageSize()
	if !ok {
		return out
	}

	crop, ok := v.CropRect()
	if v.dragging {
		crop, ok = v.constrain(image.Rectangle{Min: v.dragStart, Max: v.dragNow}.Canon()), true
	}
	if !ok {
		return out
	}

	m := containedMapping(fyne.NewSize(float32(w), float32(h)), size)
	screen := m.toScreen(crop)

	draw.Draw(out, m.area, image.NewUniform(shadeColor), image.Point{}, draw.Src)
	draw.Draw(out, screen, image.Transparent, image.Point{}, draw.Src)
	strokeRect(out, screen, borderColor)
	return out
}

func strokeRect(dst *image.NRGBA, r image.Rectangle, c color.NRGBA) {
	if r.Empty() {
		return
	}
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+1),
		image.Rect(r.Min.X, r.Max.Y-1, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+1, r.Max.Y),
		image.Rect(r.Max.X-1, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(dst, e, image.NewUniform(c), image.Point{}, draw.Src)
	}
}

// mapping converts between widget and image coordinates for an image drawn
// with ImageFillContain.
type mapping struct {
	scale  float64
	offset image.Point
	size   image.Point
	area   image.Rectangle // on-screen image area
}

func containedMapping(widgetSize fyne.Size, imageSize image.Point) mapping {
	if imageSize.X <= 0 || imageSize.Y <= 0 || widgetSize.Width <= 0 || widgetSize.Height <= 0 {
		return mapping{scale: 1, size: imageSize}
	}
	scale := math.Min(
		float64(widgetSize.Width)/float64(imageSize.X),
		float64(widgetSize.Height)/float64(imageSize.Y),
	)
	dw := int(math.Round(float64(imageSize.X) * scale))
	dh := int(math.Round(float64(imageSize.Y) * scale))
	off := image.Pt((int(widgetSize.Width)-dw)/2, (int(widgetSize.Height)-dh)/2)

	return mapping{
		scale:  scale,
		offset: off,
		size:   imageSize,
		area:   image.Rectangle{Min: off, Max: off.Add(image.Pt(dw, dh))},
	}
}

// toImage maps a widget position to image pixels, clamped to the image.
func (m mapping) toImage(pos fyne.Position) image.Point {
	x := (float64(pos.X) - float64(m.offset.X)) / m.scale
	y := (float64(pos.Y) - float64(m.offset.Y)) / m.scale
	return image.Pt(
		int(math.Max(0, math.Min(math.Round(x), float64(m.size.X)))),
		int(math.Max(0, math.Min(math.Round(y), float64(m.size.Y)))),
	)
}

func (m mapping) toScreen(r image.Rectangle) image.Rectangle {
	pt := func(p image.Point) image.Point {
		return image.Pt(
			int(math.Round(float64(p.X)*m.scale))+m.offset.X,
			int(math.Round(float64(p.Y)*m.scale))+m.offset.Y,
		)
	}
	return image.Rectangle{Min: pt(r.Min), Max: pt(r.Max)}
}

type cropViewRenderer struct {
	view    *CropView
	objects []fyne.CanvasObject
}

func (r *cropViewRenderer) Layout(size fyne.Size) {
	for _, o := range r.objects {
		o.Resize(size)
	}
}

func (r *cropViewRenderer) MinSize() fyne.Size {
	return fyne.NewSize(400, 300)
}

func (r *cropViewRenderer) Objects() []fyne.CanvasObject {
	return r.objects
}

func (r *cropViewRenderer) Refresh() {
	for _, o := range r.objects {
		o.Refresh()
	}
}

func (r *cropViewRenderer) Destroy() {}
