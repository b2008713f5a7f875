// Host-facing view manager: props, numeric commands and events
package bridge

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"sync"

	"fyne.io/fyne/v2/storage"
	"github.com/sirupsen/logrus"

	"image-crop-engine/internal/config"
	"image-crop-engine/internal/core"
	"image-crop-engine/internal/display"
	"image-crop-engine/internal/loader"
)

// ErrNoCroppedImage is returned when the view has nothing to save.
var ErrNoCroppedImage = errors.New("no cropped image available")

// ImageSaved is the payload of the onImageSaved event.
type ImageSaved struct {
	URI    string `json:"uri"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Listener receives view events.
type Listener interface {
	OnImageSaved(id core.InstanceID, ev ImageSaved)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(id core.InstanceID, ev ImageSaved)

func (f ListenerFunc) OnImageSaved(id core.InstanceID, ev ImageSaved) { f(id, ev) }

// Manager routes host props and commands for every mounted view to the
// engine and the view's display.
type Manager struct {
	engine   *core.Engine
	encoder  loader.Encoder
	save     config.SaveConfig
	logger   logrus.FieldLogger
	listener Listener

	mu    sync.RWMutex
	views map[core.InstanceID]display.Display
	ratio map[core.InstanceID]Ratio
}

// NewManager creates a manager. listener may be nil.
func NewManager(engine *core.Engine, encoder loader.Encoder, save config.SaveConfig, listener Listener, logger logrus.FieldLogger) *Manager {
	return &Manager{
		engine:   engine,
		encoder:  encoder,
		save:     save,
		listener: listener,
		logger:   logger.WithField("component", "bridge"),
		views:    make(map[core.InstanceID]display.Display),
		ratio:    make(map[core.InstanceID]Ratio),
	}
}

// Mount creates the session for a new view. The crop window starts free.
func (m *Manager) Mount(id core.InstanceID, d display.Display) core.SessionHandle {
	m.logger.WithField("instance", id).Debug("Creating crop view instance")

	m.mu.Lock()
	m.views[id] = d
	delete(m.ratio, id)
	m.mu.Unlock()

	if a, ok := d.(display.AspectRatioSetter); ok {
		a.SetFixedAspectRatio(false)
	}
	return m.engine.CreateSession(id, d)
}

// Unmount destroys the view's session. Unmounting twice is harmless.
func (m *Manager) Unmount(id core.InstanceID) {
	m.logger.WithField("instance", id).Debug("Dropping view instance")

	m.mu.Lock()
	delete(m.views, id)
	delete(m.ratio, id)
	m.mu.Unlock()

	m.engine.DestroySession(id)
}

func (m *Manager) view(id core.InstanceID) (display.Display, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.views[id]
	return d, ok
}

// SetSourceURL starts loading url into the view. An empty url is ignored
// with a warning. The returned channel yields the load result once.
func (m *Manager) SetSourceURL(ctx context.Context, id core.InstanceID, url string) <-chan error {
	log := m.logger.WithFields(logrus.Fields{"instance": id, "url": url})
	if url == "" {
		log.Warn("Source URL is null or empty")
		done := make(chan error, 1)
		done <- nil
		close(done)
		return done
	}

	log.WithField("kind", loader.Classify(url)).Debug("setSourceUrl called")
	return m.engine.LoadSourceAsync(ctx, id, url)
}

// SetKeepAspectRatio fixes or frees the crop window's aspect ratio.
func (m *Manager) SetKeepAspectRatio(id core.InstanceID, fixed bool) error {
	a, err := m.aspectSetter(id)
	if err != nil {
		return err
	}
	m.logger.WithFields(logrus.Fields{"instance": id, "fixed": fixed}).Debug("setFixedAspectRatio")
	a.SetFixedAspectRatio(fixed)
	return nil
}

// SetCropAspectRatio constrains the crop window to r. A free ratio clears it.
func (m *Manager) SetCropAspectRatio(id core.InstanceID, r Ratio) error {
	a, err := m.aspectSetter(id)
	if err != nil {
		return err
	}

	log := m.logger.WithField("instance", id)
	m.mu.Lock()
	if r.Free() {
		delete(m.ratio, id)
	} else {
		m.ratio[id] = r
	}
	m.mu.Unlock()

	if r.Free() {
		log.Debug("Clearing aspect ratio")
		a.ClearAspectRatio()
		return nil
	}
	log.WithField("ratio", Label(r, nil)).Debug("Setting aspect ratio")
	a.SetAspectRatio(r.Width, r.Height)
	return nil
}

// AspectRatio returns the ratio last set on the view.
func (m *Manager) AspectRatio(id core.InstanceID) Ratio {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ratio[id]
}

func (m *Manager) aspectSetter(id core.InstanceID) (display.AspectRatioSetter, error) {
	d, ok := m.view(id)
	if !ok {
		m.logger.WithField("instance", id).Error("No view state found")
		return nil, fmt.Errorf("instance %d: %w", id, core.ErrUnknownSession)
	}
	a, ok := d.(display.AspectRatioSetter)
	if !ok {
		return nil, fmt.Errorf("instance %d: display does not support aspect ratios", id)
	}
	return a, nil
}

// ReceiveCommand dispatches a host command. Failures of the command itself
// are logged and returned; a missing crop on save is only logged.
func (m *Manager) ReceiveCommand(ctx context.Context, id core.InstanceID, cmd Command, args []any) error {
	log := m.logger.WithFields(logrus.Fields{"instance": id, "command": cmd.String()})

	if _, ok := m.view(id); !ok {
		log.Error("No view state found")
		return fmt.Errorf("%s: instance %d: %w", cmd, id, core.ErrUnknownSession)
	}

	var err error
	switch cmd {
	case SaveImage:
		err = m.saveCommand(id, args)
	case RotateImage:
		var clockwise bool
		if clockwise, err = boolArg(args, 0, true); err == nil {
			err = m.engine.Rotate(id, clockwise)
		}
	case FlipImageHorizontally:
		err = m.engine.FlipHorizontal(id)
	case FlipImageVertically:
		err = m.engine.FlipVertical(id)
	case ResetImage:
		err = m.engine.Reset(id)
	default:
		log.Warn("Unknown command")
		return fmt.Errorf("%w: %d", ErrUnknownCommand, int(cmd))
	}

	if err != nil {
		log.WithError(err).Error("Command failed")
	}
	return err
}

// ReceiveCommandByName dispatches by exported command name.
func (m *Manager) ReceiveCommandByName(ctx context.Context, id core.InstanceID, name string, args []any) error {
	cmd, err := ParseCommand(name)
	if err != nil {
		m.logger.WithFields(logrus.Fields{"instance": id, "command": name}).Warn("Unknown command")
		return err
	}
	return m.ReceiveCommand(ctx, id, cmd, args)
}

func (m *Manager) saveCommand(id core.InstanceID, args []any) error {
	preserve, err := boolArg(args, 0, m.save.PreserveTransparency)
	if err != nil {
		return err
	}
	quality, err := intArg(args, 1, m.save.Quality)
	if err != nil {
		return err
	}

	_, err = m.Save(id, preserve, quality)
	if errors.Is(err, ErrNoCroppedImage) {
		return nil
	}
	return err
}

// Save encodes the view's current crop into a new file under the cache
// directory and emits ImageSaved.
func (m *Manager) Save(id core.InstanceID, preserveTransparency bool, quality int) (ImageSaved, error) {
	log := m.logger.WithField("instance", id)

	d, ok := m.view(id)
	if !ok {
		log.Error("No view state found")
		return ImageSaved{}, fmt.Errorf("save: instance %d: %w", id, core.ErrUnknownSession)
	}
	if quality < 1 || quality > 100 {
		return ImageSaved{}, fmt.Errorf("save: %w: quality %d out of range", ErrBadArgument, quality)
	}

	img, ok := m.croppedImage(id, d)
	if !ok {
		log.Error("No cropped image available")
		return ImageSaved{}, fmt.Errorf("save: %w", ErrNoCroppedImage)
	}
	if c, ok := d.(display.Cropper); ok {
		if r, ok := c.CropRect(); ok {
			if err := m.engine.UpdateCropRect(id, r); err != nil {
				log.WithError(err).Debug("Crop rectangle not recorded")
			}
		}
	}

	format := loader.FormatJPEG
	if preserveTransparency && loader.HasAlpha(img) {
		format = loader.FormatPNG
	}

	data, err := m.encoder.Encode(img, format, quality)
	if err != nil {
		log.WithError(err).Error("Error saving image")
		return ImageSaved{}, fmt.Errorf("save: %w", err)
	}

	path, err := m.writeCacheFile(data, format)
	if err != nil {
		log.WithError(err).Error("Error saving image")
		return ImageSaved{}, fmt.Errorf("save: %w", err)
	}

	size := img.Bounds().Size()
	ev := ImageSaved{
		URI:    storage.NewFileURI(path).String(),
		Width:  size.X,
		Height: size.Y,
	}
	log.WithFields(logrus.Fields{
		"uri":    ev.URI,
		"format": format,
		"width":  ev.Width,
		"height": ev.Height,
	}).Info("Crop complete")

	if m.listener != nil {
		m.listener.OnImageSaved(id, ev)
	}
	return ev, nil
}

// croppedImage returns the view's crop. Views without a crop window save
// the whole current frame.
func (m *Manager) croppedImage(id core.InstanceID, d display.Display) (image.Image, bool) {
	c, ok := d.(display.Cropper)
	if !ok {
		img, err := m.engine.CurrentImage(id)
		if err != nil {
			return nil, false
		}
		return img, true
	}
	img, ok := c.CroppedImage()
	if !ok || img == nil || img.Bounds().Empty() {
		return nil, false
	}
	return img, true
}

func (m *Manager) writeCacheFile(data []byte, format loader.Format) (string, error) {
	if err := os.MkdirAll(m.save.CacheDir, 0o755); err != nil {
		return "", err
	}
	f, err := os.CreateTemp(m.save.CacheDir, "crop-*."+string(format))
	if err != nil {
		return "", err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}
