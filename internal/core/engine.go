// Transform engine: source loading, rotate/flip/reset and session lifecycle
package core

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/sirupsen/logrus"

	"image-crop-engine/internal/display"
	"image-crop-engine/internal/loader"
	"image-crop-engine/internal/metrics"
	"image-crop-engine/internal/raster"
)

// SourceLoader decodes a locator into a buffer owned by the caller.
type SourceLoader interface {
	Load(ctx context.Context, locator string) (raster.Buffer, error)
}

// ReadyFunc is notified after a load attempt completes. err is nil on success.
type ReadyFunc func(id InstanceID, err error)

// Engine applies operations to sessions. Operations on one instance are
// expected to arrive serially; each one holds that session's lock.
type Engine struct {
	registry   *Registry
	loader     SourceLoader
	reconciler Reconciler
	ledger     *raster.Ledger
	logger     logrus.FieldLogger

	onReady     ReadyFunc
	verifyReset bool
}

// Option customises an Engine.
type Option func(*Engine)

// WithReconciler replaces the default RecenterReconciler.
func WithReconciler(r Reconciler) Option {
	return func(e *Engine) { e.reconciler = r }
}

// WithLedger tracks every buffer the engine takes ownership of.
func WithLedger(l *raster.Ledger) Option {
	return func(e *Engine) { e.ledger = l }
}

// WithReadyListener registers the image ready/changed notification.
func WithReadyListener(fn ReadyFunc) Option {
	return func(e *Engine) { e.onReady = fn }
}

// WithResetVerification compares the pixels of current and original after every reset.
func WithResetVerification(enabled bool) Option {
	return func(e *Engine) { e.verifyReset = enabled }
}

// NewEngine creates an engine with an empty registry.
func NewEngine(src SourceLoader, logger logrus.FieldLogger, opts ...Option) *Engine {
	e := &Engine{
		registry:   NewRegistry(),
		loader:     src,
		reconciler: RecenterReconciler{},
		logger:     logger.WithField("component", "engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CreateSession registers a session for id. An existing session for the same
// id is destroyed and replaced. d may be nil.
func (e *Engine) CreateSession(id InstanceID, d display.Display) SessionHandle {
	s, old := e.registry.create(id, d, e.logger)
	if old != nil {
		e.logger.WithField("instance", id).Warn("Session already exists, replacing")
		e.closeSession(old)
	}

	s.logger.Debug("Session created")
	return SessionHandle{Instance: id, Handle: s.handle}
}

// DestroySession releases all buffers of id and forgets it. Destroying an
// unknown or already destroyed session does nothing.
func (e *Engine) DestroySession(id InstanceID) {
	s, ok := e.registry.remove(id)
	if !ok {
		e.logger.WithField("instance", id).Debug("Destroy of unknown session ignored")
		return
	}
	e.closeSession(s)
	s.logger.Debug("Session destroyed")
}

// Close destroys every session.
func (e *Engine) Close() {
	e.logger.WithField("sessions", e.registry.Len()).Debug("Closing engine")
	for _, s := range e.registry.removeAll() {
		e.closeSession(s)
	}
}

func (e *Engine) closeSession(s *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	s.generation++
	s.pendingLocator = ""
	s.releaseAllLocked()
}

// acquire returns the locked session for id.
func (e *Engine) acquire(id InstanceID, op string) (*Session, error) {
	s, ok := e.registry.lookup(id)
	if ok {
		s.mu.Lock()
		if !s.closed {
			return s, nil
		}
		s.mu.Unlock()
	}

	e.logger.WithFields(logrus.Fields{"instance": id, "op": op}).Error("No session found")
	return nil, fmt.Errorf("%s instance %d: %w", op, id, ErrUnknownSession)
}

// State returns a snapshot of the session.
func (e *Engine) State(id InstanceID) (State, error) {
	s, err := e.acquire(id, "state")
	if err != nil {
		return State{}, err
	}
	defer s.mu.Unlock()
	return s.stateLocked(), nil
}

// CurrentImage returns a copy of the pixels of the current buffer.
func (e *Engine) CurrentImage(id InstanceID) (image.Image, error) {
	s, err := e.acquire(id, "current image")
	if err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	if s.current == nil {
		return nil, fmt.Errorf("current image: %w", ErrNoImage)
	}
	return s.current.Image()
}

// UpdateCropRect records the crop rectangle last chosen on the display.
func (e *Engine) UpdateCropRect(id InstanceID, r image.Rectangle) error {
	s, err := e.acquire(id, "update crop")
	if err != nil {
		return err
	}
	defer s.mu.Unlock()

	if s.current == nil {
		return fmt.Errorf("update crop: %w", ErrNoImage)
	}
	s.transform.SetCropRect(r.Canon())
	return nil
}

// LoadSource loads locator into the session and waits for the result.
// Loading the locator already installed is a no-op that keeps the transform
// state.
func (e *Engine) LoadSource(ctx context.Context, id InstanceID, locator string) error {
	s, gen, skip, err := e.beginLoad(id, locator)
	if err != nil || skip {
		return err
	}
	return e.runLoad(ctx, s, gen, locator)
}

// LoadSourceAsync starts loading locator and returns a channel that receives
// the result once. A later load on the same instance supersedes this one.
func (e *Engine) LoadSourceAsync(ctx context.Context, id InstanceID, locator string) <-chan error {
	done := make(chan error, 1)

	s, gen, skip, err := e.beginLoad(id, locator)
	if err != nil || skip {
		done <- err
		close(done)
		return done
	}

	go func() {
		defer close(done)
		done <- e.runLoad(ctx, s, gen, locator)
	}()
	return done
}

// beginLoad applies the idempotence rule and claims a new generation.
func (e *Engine) beginLoad(id InstanceID, locator string) (*Session, uint64, bool, error) {
	s, err := e.acquire(id, "load source")
	if err != nil {
		return nil, 0, false, err
	}
	defer s.mu.Unlock()

	log := s.logger.WithField("locator", locator)

	if locator == s.originalURI && s.current != nil {
		if s.pendingLocator != "" {
			// The installed source wins over an older request still in flight.
			log.WithField("pending", s.pendingLocator).Debug("Cancelling pending load")
			s.generation++
			s.pendingLocator = ""
		}
		log.Debug("Same source, keeping transform state")
		return s, 0, true, nil
	}

	s.generation++
	s.pendingLocator = locator
	log.WithField("generation", s.generation).Info("New source detected")
	return s, s.generation, false, nil
}

// runLoad decodes outside the session lock and re-enters through complete.
func (e *Engine) runLoad(ctx context.Context, s *Session, gen uint64, locator string) error {
	buf, err := e.loader.Load(ctx, locator)
	if errors.Is(err, loader.ErrEagerUnavailable) {
		if sl, ok := s.display.(display.SourceLoader); ok {
			buf, err = e.loadThroughDisplay(ctx, sl, locator)
		}
	}
	return e.complete(s, gen, locator, e.track(buf), err)
}

// loadThroughDisplay waits for the display to decode locator. A result that
// arrives after ctx is done is released by the callback itself.
func (e *Engine) loadThroughDisplay(ctx context.Context, sl display.SourceLoader, locator string) (raster.Buffer, error) {
	type result struct {
		buf raster.Buffer
		err error
	}
	var (
		mu        sync.Mutex
		abandoned bool
		called    bool
	)
	ch := make(chan result, 1)
	sl.SetRasterSource(locator, func(buf raster.Buffer, err error) {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case called:
			e.logger.WithField("locator", locator).Error("Display source loader reported twice")
			if buf != nil {
				buf.Close()
			}
		case abandoned:
			called = true
			if buf != nil {
				buf.Close()
			}
			e.logger.WithField("locator", locator).Debug("Released late display load")
		default:
			called = true
			ch <- result{buf, err}
		}
	})

	select {
	case r := <-ch:
		return r.buf, r.err
	case <-ctx.Done():
		mu.Lock()
		defer mu.Unlock()
		if called {
			// done raced with cancellation; the result is already queued.
			r := <-ch
			return r.buf, r.err
		}
		abandoned = true
		return nil, ctx.Err()
	}
}

func (e *Engine) track(b raster.Buffer) raster.Buffer {
	if b == nil || e.ledger == nil {
		return b
	}
	return e.ledger.Track(b)
}

// complete installs a decode result if the session is alive and gen is
// still the newest load request. Otherwise the result is released.
func (e *Engine) complete(s *Session, gen uint64, locator string, buf raster.Buffer, loadErr error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.logger.WithFields(logrus.Fields{"locator": locator, "generation": gen})

	if s.closed || s.generation != gen {
		if buf != nil {
			s.release(buf, "stale")
		}
		log.WithField("closed", s.closed).Info("Discarding superseded load")
		return fmt.Errorf("load %s: %w", locator, ErrSuperseded)
	}
	s.pendingLocator = ""

	if loadErr == nil && buf == nil {
		loadErr = raster.ErrEmpty
	}
	if loadErr == nil {
		loadErr = s.installLocked(buf, locator)
	}
	if loadErr != nil {
		err := fmt.Errorf("load %s: %w: %v", locator, ErrDecodeFailed, loadErr)
		log.WithError(loadErr).Error("Failed to load source, keeping previous state")
		e.notify(s.id, err)
		return err
	}

	e.showLocked(s)
	size := s.current.Size()
	log.WithFields(logrus.Fields{"width": size.X, "height": size.Y}).Info("Source installed")
	e.notify(s.id, nil)
	return nil
}

func (e *Engine) notify(id InstanceID, err error) {
	if e.onReady != nil {
		e.onReady(id, err)
	}
}

func (e *Engine) showLocked(s *Session) {
	if s.display == nil {
		return
	}
	if err := s.display.SetRasterBuffer(s.current); err != nil {
		s.logger.WithError(err).Error("Failed to set raster buffer on display")
	}
}

// Rotate turns the current buffer a quarter turn.
func (e *Engine) Rotate(id InstanceID, clockwise bool) error {
	delta := -90
	if clockwise {
		delta = 90
	}
	return e.apply(id, "rotate",
		func(cur raster.Buffer) (raster.Buffer, error) { return cur.Rotate90(clockwise) },
		func(a *Accumulator) { a.Rotate(delta) })
}

// Flip mirrors the current buffer along axis.
func (e *Engine) Flip(id InstanceID, axis raster.Axis) error {
	if axis != raster.Horizontal && axis != raster.Vertical {
		e.logger.WithFields(logrus.Fields{"instance": id, "axis": int(axis)}).Error("Unknown flip axis")
		return fmt.Errorf("flip: unknown axis %v", axis)
	}
	return e.apply(id, "flip "+axis.String(),
		func(cur raster.Buffer) (raster.Buffer, error) { return cur.Flip(axis) },
		func(a *Accumulator) { a.Toggle(axis) })
}

// FlipHorizontal mirrors left to right.
func (e *Engine) FlipHorizontal(id InstanceID) error {
	return e.Flip(id, raster.Horizontal)
}

// FlipVertical mirrors top to bottom.
func (e *Engine) FlipVertical(id InstanceID) error {
	return e.Flip(id, raster.Vertical)
}

// apply materialises one operation against the current buffer. The
// accumulator is only updated once the new buffer exists.
func (e *Engine) apply(id InstanceID, op string, produce func(raster.Buffer) (raster.Buffer, error), update func(*Accumulator)) error {
	s, err := e.acquire(id, op)
	if err != nil {
		return err
	}
	defer s.mu.Unlock()

	if s.current == nil {
		s.logger.WithField("op", op).Error("No bitmap available")
		return fmt.Errorf("%s: %w", op, ErrNoImage)
	}

	e.logDiscardedCropLocked(s, op)

	next, err := produce(s.current)
	if err != nil {
		s.logger.WithError(err).WithField("op", op).Error("Transform failed")
		return fmt.Errorf("%s: %w", op, err)
	}

	before := s.current.Size()
	update(&s.transform)
	s.replaceCurrentLocked(next)
	e.showLocked(s)
	e.reconciler.OnBufferReplaced(s, before != next.Size())

	s.logger.WithFields(logrus.Fields{
		"op":                 op,
		"rotation":           s.transform.Rotation,
		"flipped_horizontal": s.transform.FlippedHorizontal,
		"flipped_vertical":   s.transform.FlippedVertical,
		"identity":           s.transform.Identity(),
	}).Debug("Transform applied")
	return nil
}

// logDiscardedCropLocked logs the crop window a transform is about to
// throw away. Crops are never carried across a transform.
func (e *Engine) logDiscardedCropLocked(s *Session, op string) {
	r, ok := s.display.(display.Cropper)
	if !ok {
		return
	}
	if crop, ok := r.CropRect(); ok {
		s.logger.WithFields(logrus.Fields{"op": op, "crop": crop}).Debug("Crop window will be discarded")
	}
}

// Reset discards every transform and shows a fresh copy of the original.
func (e *Engine) Reset(id InstanceID) error {
	s, err := e.acquire(id, "reset")
	if err != nil {
		return err
	}
	defer s.mu.Unlock()

	if s.original == nil {
		s.logger.Warn("No original bitmap found for reset")
		return fmt.Errorf("reset: %w", ErrNoOriginal)
	}

	fresh, err := s.original.Clone()
	if err != nil {
		s.logger.WithError(err).Error("Error resetting image")
		return fmt.Errorf("reset: %w", err)
	}

	var before image.Point
	if s.current != nil {
		before = s.current.Size()
	}
	s.replaceCurrentLocked(fresh)
	s.transform.Reset()
	e.showLocked(s)
	e.reconciler.OnBufferReplaced(s, before != fresh.Size())

	if e.verifyReset {
		e.verifyResetLocked(s)
	}
	s.logger.Debug("Image reset to original")
	return nil
}

func (e *Engine) verifyResetLocked(s *Session) {
	eq, err := metrics.PixelEqual(s.current, s.original, 0)
	switch {
	case err != nil:
		s.logger.WithError(err).Warn("Reset verification failed to compare pixels")
	case !eq:
		s.logger.WithFields(e.resetDiffFields(s)).Error("Reset produced pixels that differ from the original")
	}
}

// resetDiffFields reports every registered metric between current and original.
func (e *Engine) resetDiffFields(s *Session) logrus.Fields {
	fields := logrus.Fields{
		"size":          s.current.Size(),
		"original_size": s.original.Size(),
	}
	cur, err := s.current.Image()
	if err != nil {
		return fields
	}
	orig, err := s.original.Image()
	if err != nil {
		return fields
	}
	for name, v := range metrics.NewEvaluator().CalculateAll(orig, cur) {
		fields[name] = v
	}
	return fields
}
