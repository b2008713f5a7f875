// Main window hosting one crop view
package gui

import (
	"context"
	"fmt"
	"image"
	"path"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"
	"github.com/sirupsen/logrus"

	"image-crop-engine/internal/bridge"
	"image-crop-engine/internal/core"
)

// MainView is the instance id of the window's crop view.
const MainView core.InstanceID = 1

// Application wires the crop view and toolbar to a bridge manager.
type Application struct {
	app     fyne.App
	window  fyne.Window
	logger  logrus.FieldLogger
	manager *bridge.Manager
	engine  *core.Engine

	view    *CropView
	toolbar *Toolbar
	status  *widget.Label
}

func NewApplication(app fyne.App, engine *core.Engine, manager *bridge.Manager, logger logrus.FieldLogger) *Application {
	window := app.NewWindow("Image Crop")
	window.Resize(fyne.NewSize(1200, 800))
	window.CenterOnScreen()

	a := &Application{
		app:     app,
		window:  window,
		logger:  logger.WithField("component", "gui"),
		manager: manager,
		engine:  engine,
	}
	a.initializeGUI()
	a.setupLayout()
	a.setupCallbacks()

	manager.Mount(MainView, a.view)
	return a
}

func (a *Application) initializeGUI() {
	a.view = NewCropView(a.logger)
	a.toolbar = NewToolbar(a.window)
	a.status = widget.NewLabel("Open an image to start cropping")
}

func (a *Application) setupLayout() {
	content := container.NewBorder(
		container.NewVBox(a.toolbar.GetContainer(), widget.NewSeparator()),
		a.status,
		nil, nil,
		container.NewPadded(a.view),
	)
	a.window.SetContent(content)
}

func (a *Application) setupCallbacks() {
	a.toolbar.SetCallbacks(
		func(uri string) {
			a.updateStatusMessage(fmt.Sprintf("Loading %s", path.Base(uri)))
			a.manager.SetSourceURL(context.Background(), MainView, uri)
		},
		func(cmd bridge.Command, args []any) {
			if err := a.manager.ReceiveCommand(context.Background(), MainView, cmd, args); err != nil {
				a.showError(cmd.String(), err)
				return
			}
			a.refreshStatus()
		},
		func(keep bool, r bridge.Ratio) {
			if err := a.manager.SetKeepAspectRatio(MainView, keep); err != nil {
				a.logger.WithError(err).Warn("Failed to set keep aspect ratio")
			}
			if err := a.manager.SetCropAspectRatio(MainView, r); err != nil {
				a.logger.WithError(err).Warn("Failed to set aspect ratio")
			}
		},
	)

	a.view.SetCropChangedCallback(func(r image.Rectangle) {
		if err := a.engine.UpdateCropRect(MainView, r); err != nil {
			a.logger.WithError(err).Debug("Crop rectangle not recorded")
		}
		a.updateStatusMessage(fmt.Sprintf("Crop %dx%d at (%d,%d)", r.Dx(), r.Dy(), r.Min.X, r.Min.Y))
	})
}

// LoadSource loads a locator given on the command line.
func (a *Application) LoadSource(locator string) {
	a.manager.SetSourceURL(context.Background(), MainView, locator)
}

// OnImageReady is the engine's ready listener. It may run on any goroutine.
func (a *Application) OnImageReady(id core.InstanceID, err error) {
	if id != MainView {
		return
	}
	fyne.Do(func() {
		if err != nil {
			a.showError("Load", err)
			return
		}
		a.toolbar.SetImageLoaded(true)
		a.refreshStatus()
	})
}

// OnImageSaved implements bridge.Listener.
func (a *Application) OnImageSaved(id core.InstanceID, ev bridge.ImageSaved) {
	fyne.Do(func() {
		a.updateStatusMessage(fmt.Sprintf("Saved %dx%d to %s", ev.Width, ev.Height, ev.URI))
		dialog.ShowInformation("Image Saved", ev.URI, a.window)
	})
}

func (a *Application) refreshStatus() {
	st, err := a.engine.State(MainView)
	if err != nil || !st.HasImage {
		return
	}
	a.updateStatusMessage(fmt.Sprintf("%s  %dx%d  rotation %d°  flip h=%t v=%t",
		path.Base(st.Source), st.Size.X, st.Size.Y, st.Rotation, st.FlippedHorizontal, st.FlippedVertical))
}

func (a *Application) updateStatusMessage(message string) {
	if a.status != nil {
		a.status.SetText(message)
	}
}

func (a *Application) ShowAndRun() {
	a.logger.Info("Showing main window")

	a.window.SetCloseIntercept(func() {
		a.cleanup()
		a.app.Quit()
	})
	a.window.ShowAndRun()
}

func (a *Application) cleanup() {
	a.logger.Info("Cleaning up application resources")
	a.manager.Unmount(MainView)
}

func (a *Application) showError(title string, err error) {
	a.logger.WithError(err).Error(title)
	dialog.ShowError(err, a.window)
	a.updateStatusMessage(fmt.Sprintf("Error: %s", err.Error()))
}
