// Crop toolbar: open, rotate, flip, reset, save and aspect ratio controls
package gui

import (
	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"image-crop-engine/internal/bridge"
)

// Toolbar issues view commands. It holds no image state of its own.
type Toolbar struct {
	window fyne.Window

	container *fyne.Container

	openBtn  *widget.Button
	saveBtn  *widget.Button
	resetBtn *widget.Button
	ccwBtn   *widget.Button
	cwBtn    *widget.Button
	flipHBtn *widget.Button
	flipVBtn *widget.Button

	keepRatio   *widget.Check
	ratioSelect *widget.Select

	onOpen    func(uri string)
	onCommand func(cmd bridge.Command, args []any)
	onRatio   func(keep bool, r bridge.Ratio)
}

func NewToolbar(window fyne.Window) *Toolbar {
	tb := &Toolbar{window: window}
	tb.initializeUI()
	return tb
}

func (tb *Toolbar) initializeUI() {
	tb.openBtn = widget.NewButtonWithIcon("Open", theme.FolderOpenIcon(), tb.openImage)
	tb.openBtn.Importance = widget.HighImportance

	tb.saveBtn = widget.NewButtonWithIcon("Save", theme.DocumentSaveIcon(), func() {
		tb.command(bridge.SaveImage, true)
	})
	tb.resetBtn = widget.NewButtonWithIcon("Reset", theme.ViewRefreshIcon(), func() {
		tb.command(bridge.ResetImage)
	})
	tb.ccwBtn = widget.NewButtonWithIcon("", theme.NavigateBackIcon(), func() {
		tb.command(bridge.RotateImage, false)
	})
	tb.cwBtn = widget.NewButtonWithIcon("", theme.NavigateNextIcon(), func() {
		tb.command(bridge.RotateImage, true)
	})
	tb.flipHBtn = widget.NewButton("Flip H", func() {
		tb.command(bridge.FlipImageHorizontally)
	})
	tb.flipVBtn = widget.NewButton("Flip V", func() {
		tb.command(bridge.FlipImageVertically)
	})

	labels := make([]string, 0, len(bridge.Presets()))
	for _, p := range bridge.Presets() {
		labels = append(labels, p.Label)
	}
	tb.ratioSelect = widget.NewSelect(labels, func(string) { tb.ratioChanged() })
	tb.ratioSelect.SetSelected("Free")
	tb.keepRatio = widget.NewCheck("Keep ratio", func(bool) { tb.ratioChanged() })

	tb.container = container.NewBorder(nil, nil,
		container.NewHBox(tb.openBtn, tb.saveBtn, tb.resetBtn, widget.NewSeparator()),
		container.NewHBox(widget.NewLabel("Aspect ratio:"), tb.ratioSelect, tb.keepRatio),
		container.NewHBox(widget.NewLabel("Rotate:"), tb.ccwBtn, tb.cwBtn, widget.NewSeparator(), tb.flipHBtn, tb.flipVBtn),
	)
	tb.SetImageLoaded(false)
}

func (tb *Toolbar) command(cmd bridge.Command, args ...any) {
	if tb.onCommand != nil {
		tb.onCommand(cmd, args)
	}
}

func (tb *Toolbar) ratioChanged() {
	if tb.onRatio == nil || tb.keepRatio == nil || tb.ratioSelect == nil {
		return
	}
	p, _ := bridge.Lookup(tb.ratioSelect.Selected, nil)
	tb.onRatio(tb.keepRatio.Checked, p.Ratio)
}

func (tb *Toolbar) openImage() {
	fileDialog := dialog.NewFileOpen(func(reader fyne.URIReadCloser, err error) {
		if err != nil || reader == nil {
			return
		}
		uri := reader.URI().String()
		reader.Close()

		if tb.onOpen != nil {
			tb.onOpen(uri)
		}
	}, tb.window)

	fileDialog.SetFilter(storage.NewExtensionFileFilter([]string{".jpg", ".jpeg", ".png", ".tiff", ".tif", ".bmp", ".webp"}))
	fileDialog.Show()
}

// SetImageLoaded enables the commands that need an image.
func (tb *Toolbar) SetImageLoaded(loaded bool) {
	for _, b := range []*widget.Button{tb.saveBtn, tb.resetBtn, tb.ccwBtn, tb.cwBtn, tb.flipHBtn, tb.flipVBtn} {
		if loaded {
			b.Enable()
		} else {
			b.Disable()
		}
	}
}

func (tb *Toolbar) GetContainer() fyne.CanvasObject {
	return tb.container
}

func (tb *Toolbar) SetCallbacks(
	onOpen func(uri string),
	onCommand func(cmd bridge.Command, args []any),
	onRatio func(keep bool, r bridge.Ratio),
) {
	tb.onOpen = onOpen
	tb.onCommand = onCommand
	tb.onRatio = onRatio
}
