package bridge

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"fyne.io/fyne/v2/storage"
	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"image-crop-engine/internal/config"
	"image-crop-engine/internal/core"
	"image-crop-engine/internal/display"
	"image-crop-engine/internal/loader"
	"image-crop-engine/internal/raster"
)

const view core.InstanceID = 3

type harness struct {
	manager *Manager
	engine  *core.Engine
	display *display.Headless
	ledger  *raster.Ledger
	hook    *test.Hook
	saved   []ImageSaved
	dir     string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newBackendHarness(t, raster.BackendNative)
}

func newBackendHarness(t *testing.T, backend raster.Backend) *harness {
	t.Helper()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	src, err := loader.New(config.Default().Loader, backend, logger)
	require.NoError(t, err)
	enc, err := loader.NewEncoder(backend)
	require.NoError(t, err)

	h := &harness{
		ledger:  raster.NewLedger(logger),
		display: display.NewHeadless(logger),
		hook:    hook,
		dir:     t.TempDir(),
	}
	h.engine = core.NewEngine(src, logger, core.WithLedger(h.ledger))

	save := config.Default().Save
	save.CacheDir = filepath.Join(h.dir, "cache")
	h.manager = NewManager(h.engine, enc, save,
		ListenerFunc(func(_ core.InstanceID, ev ImageSaved) { h.saved = append(h.saved, ev) }),
		logger)
	h.manager.Mount(view, h.display)
	return h
}

func (h *harness) writeImage(t *testing.T, img image.Image) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	path := filepath.Join(h.dir, "source.png")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func (h *harness) load(t *testing.T, w, h2 int, alpha uint8) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h2))
	for y := 0; y < h2; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 40, A: alpha})
		}
	}
	path := h.writeImage(t, img)
	require.NoError(t, <-h.manager.SetSourceURL(context.Background(), view, path))
	return path
}

func TestCommandTable(t *testing.T) {
	assert.Equal(t, map[string]Command{
		"saveImage":             1,
		"rotateImage":           2,
		"flipImageHorizontally": 3,
		"flipImageVertically":   4,
		"resetImage":            5,
	}, Commands())

	cmd, err := ParseCommand("rotateImage")
	require.NoError(t, err)
	assert.Equal(t, RotateImage, cmd)

	_, err = ParseCommand("cropImage")
	assert.ErrorIs(t, err, ErrUnknownCommand)
	assert.Equal(t, "command(9)", Command(9).String())
}

func TestRotateDefaultsToClockwise(t *testing.T) {
	h := newHarness(t)
	h.load(t, 40, 20, 255)
	ctx := context.Background()

	require.NoError(t, h.manager.ReceiveCommand(ctx, view, RotateImage, nil))
	st, err := h.engine.State(view)
	require.NoError(t, err)
	assert.Equal(t, 90, st.Rotation)

	require.NoError(t, h.manager.ReceiveCommand(ctx, view, RotateImage, []any{false}))
	require.NoError(t, h.manager.ReceiveCommand(ctx, view, RotateImage, []any{false}))
	st, _ = h.engine.State(view)
	assert.Equal(t, 270, st.Rotation)

	err = h.manager.ReceiveCommand(ctx, view, RotateImage, []any{"yes"})
	assert.ErrorIs(t, err, ErrBadArgument)
}

func TestFlipAndResetCommands(t *testing.T) {
	h := newHarness(t)
	h.load(t, 40, 20, 255)
	ctx := context.Background()

	require.NoError(t, h.manager.ReceiveCommandByName(ctx, view, "flipImageHorizontally", nil))
	require.NoError(t, h.manager.ReceiveCommandByName(ctx, view, "flipImageVertically", nil))
	st, _ := h.engine.State(view)
	assert.True(t, st.FlippedHorizontal)
	assert.True(t, st.FlippedVertical)

	require.NoError(t, h.manager.ReceiveCommand(ctx, view, ResetImage, nil))
	st, _ = h.engine.State(view)
	assert.False(t, st.FlippedHorizontal)
	assert.False(t, st.FlippedVertical)
}

func TestUnknownCommand(t *testing.T) {
	h := newHarness(t)
	err := h.manager.ReceiveCommand(context.Background(), view, Command(42), nil)
	assert.ErrorIs(t, err, ErrUnknownCommand)
	assert.Equal(t, logrus.WarnLevel, h.hook.LastEntry().Level)
}

func TestCommandOnUnmountedView(t *testing.T) {
	h := newHarness(t)
	h.manager.Unmount(view)
	h.manager.Unmount(view)

	err := h.manager.ReceiveCommand(context.Background(), view, RotateImage, nil)
	assert.ErrorIs(t, err, core.ErrUnknownSession)
	assert.NoError(t, h.ledger.Check())
}

func TestEmptySourceURLIsIgnored(t *testing.T) {
	h := newHarness(t)
	assert.NoError(t, <-h.manager.SetSourceURL(context.Background(), view, ""))
	assert.Equal(t, logrus.WarnLevel, h.hook.LastEntry().Level)

	st, err := h.engine.State(view)
	require.NoError(t, err)
	assert.False(t, st.HasImage)
}

func TestAspectRatioProps(t *testing.T) {
	h := newHarness(t)
	h.load(t, 200, 100, 255)

	require.NoError(t, h.manager.SetKeepAspectRatio(view, true))
	require.NoError(t, h.manager.SetCropAspectRatio(view, Ratio{1, 1}))
	assert.Equal(t, Ratio{1, 1}, h.manager.AspectRatio(view))
	r, ok := h.display.CropRect()
	require.True(t, ok)
	assert.Equal(t, image.Rect(50, 0, 150, 100), r)

	require.NoError(t, h.manager.SetCropAspectRatio(view, Ratio{0, 3}))
	assert.True(t, h.manager.AspectRatio(view).Free())
	r, _ = h.display.CropRect()
	assert.Equal(t, image.Rect(0, 0, 200, 100), r)

	assert.ErrorIs(t, h.manager.SetKeepAspectRatio(core.InstanceID(99), true), core.ErrUnknownSession)
}

func TestSaveWritesJPEGByDefault(t *testing.T) {
	h := newHarness(t)
	h.load(t, 60, 30, 128)
	h.display.SetCropRect(image.Rect(10, 5, 40, 25))

	require.NoError(t, h.manager.ReceiveCommand(context.Background(), view, SaveImage, nil))
	require.Len(t, h.saved, 1)
	ev := h.saved[0]
	assert.Equal(t, 30, ev.Width)
	assert.Equal(t, 20, ev.Height)
	assert.True(t, strings.HasSuffix(ev.URI, ".jpg"), ev.URI)

	u, err := storage.ParseURI(ev.URI)
	require.NoError(t, err)
	img, err := imaging.Open(u.Path())
	require.NoError(t, err)
	assert.Equal(t, image.Pt(30, 20), img.Bounds().Size())
}

func TestSavePreservesTransparencyAsPNG(t *testing.T) {
	h := newHarness(t)
	h.load(t, 16, 16, 100)

	ev, err := h.manager.Save(view, true, 90)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(ev.URI, ".png"), ev.URI)

	u, err := storage.ParseURI(ev.URI)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(h.dir, "cache"), filepath.Dir(u.Path()))
}

func TestSaveOpaqueWithTransparencyRequestedIsJPEG(t *testing.T) {
	h := newHarness(t)
	h.load(t, 16, 16, 255)

	require.NoError(t, h.manager.ReceiveCommand(context.Background(), view, SaveImage, []any{true, float64(80)}))
	require.Len(t, h.saved, 1)
	assert.True(t, strings.HasSuffix(h.saved[0].URI, ".jpg"))
}

func TestSaveWithoutImageIsLoggedOnly(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.manager.ReceiveCommand(context.Background(), view, SaveImage, nil))
	assert.Empty(t, h.saved)
	assert.Equal(t, "No cropped image available", h.hook.LastEntry().Message)

	_, err := h.manager.Save(view, false, 100)
	assert.ErrorIs(t, err, ErrNoCroppedImage)
}

func TestSaveRejectsBadQuality(t *testing.T) {
	h := newHarness(t)
	h.load(t, 8, 8, 255)

	err := h.manager.ReceiveCommand(context.Background(), view, SaveImage, []any{false, 0})
	assert.ErrorIs(t, err, ErrBadArgument)
	err = h.manager.ReceiveCommand(context.Background(), view, SaveImage, []any{false, 2.5})
	assert.ErrorIs(t, err, ErrBadArgument)
}

func TestMountTwiceReplacesSession(t *testing.T) {
	h := newHarness(t)
	h.load(t, 8, 8, 255)

	h.manager.Mount(view, h.display)
	st, err := h.engine.State(view)
	require.NoError(t, err)
	assert.False(t, st.HasImage)
	assert.NoError(t, h.ledger.Check())
}

// frameDisplay shows buffers but has no crop window.
type frameDisplay struct {
	shown image.Point
}

func (d *frameDisplay) SetRasterBuffer(buf raster.Buffer) error {
	d.shown = buf.Size()
	return nil
}

func (d *frameDisplay) ResetCropWindow() {}

func TestSaveWithoutCropWindowSavesWholeFrame(t *testing.T) {
	h := newHarness(t)
	d := &frameDisplay{}
	h.manager.Mount(view, d)

	_, err := h.manager.Save(view, false, 90)
	assert.ErrorIs(t, err, ErrNoCroppedImage, "nothing loaded yet")

	path := h.writeImage(t, image.NewNRGBA(image.Rect(0, 0, 24, 12)))
	require.NoError(t, <-h.manager.SetSourceURL(context.Background(), view, path))
	require.NoError(t, h.manager.ReceiveCommand(context.Background(), view, RotateImage, nil))
	assert.Equal(t, image.Pt(12, 24), d.shown)

	ev, err := h.manager.Save(view, true, 90)
	require.NoError(t, err)
	assert.Equal(t, 12, ev.Width)
	assert.Equal(t, 24, ev.Height)
	assert.True(t, strings.HasSuffix(ev.URI, ".png"), "a blank NRGBA source is fully transparent")
}
