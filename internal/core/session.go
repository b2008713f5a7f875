// Per-instance image session: original and current buffers plus transform state
package core

import (
	"image"
	"sync"

	"github.com/sirupsen/logrus"

	"image-crop-engine/internal/display"
	"image-crop-engine/internal/raster"
)

// InstanceID identifies the hosting view.
type InstanceID int

// Handle is issued once per created session and never reused, so a session
// that replaced another under the same InstanceID has a different Handle.
type Handle uint64

// SessionHandle is returned by CreateSession.
type SessionHandle struct {
	Instance InstanceID
	Handle   Handle
}

// Session owns the buffers of one view instance. All fields are guarded by mu.
type Session struct {
	mu     sync.Mutex
	id     InstanceID
	handle Handle
	logger logrus.FieldLogger

	display display.Display

	originalURI string
	original    raster.Buffer
	current     raster.Buffer
	transform   Accumulator

	// generation increases on every accepted load request and on destroy;
	// a decode result is installed only if its generation is still current.
	generation     uint64
	pendingLocator string
	closed         bool
}

// State is a read-only snapshot of a session.
type State struct {
	Instance          InstanceID
	Handle            Handle
	Source            string
	HasImage          bool
	Size              image.Point
	OriginalSize      image.Point
	Rotation          int
	FlippedHorizontal bool
	FlippedVertical   bool
	CropRect          image.Rectangle
	HasCropRect       bool
	Loading           bool
}

func (s *Session) stateLocked() State {
	st := State{
		Instance:          s.id,
		Handle:            s.handle,
		Source:            s.originalURI,
		HasImage:          s.current != nil,
		Rotation:          s.transform.Rotation,
		FlippedHorizontal: s.transform.FlippedHorizontal,
		FlippedVertical:   s.transform.FlippedVertical,
		Loading:           s.pendingLocator != "",
	}
	st.CropRect, st.HasCropRect = s.transform.CropRect()
	if s.current != nil {
		st.Size = s.current.Size()
	}
	if s.original != nil {
		st.OriginalSize = s.original.Size()
	}
	return st
}

// installLocked makes buf the new original and a deep copy of it the new
// current buffer. The session takes ownership of buf even on error.
func (s *Session) installLocked(buf raster.Buffer, locator string) error {
	current, err := buf.Clone()
	if err != nil {
		s.release(buf, "decoded")
		return err
	}

	s.releaseAllLocked()
	s.original = buf
	s.current = current
	s.originalURI = locator
	s.transform.Reset()
	return nil
}

// replaceCurrentLocked installs next and releases the previous current
// buffer unless it is the original or next itself.
func (s *Session) replaceCurrentLocked(next raster.Buffer) {
	prev := s.current
	s.current = next
	if prev != nil && prev != s.original && prev != next {
		s.release(prev, "current")
	}
}

// releaseAllLocked releases current (if distinct from original) and original.
func (s *Session) releaseAllLocked() {
	if s.current != nil && s.current != s.original {
		s.release(s.current, "current")
	}
	if s.original != nil {
		s.release(s.original, "original")
	}
	s.current, s.original = nil, nil
}

func (s *Session) release(b raster.Buffer, role string) {
	if err := b.Close(); err != nil {
		log := s.logger.WithError(err).WithField("role", role)
		if t, ok := b.(*raster.Tracked); ok {
			log = log.WithField("buffer", t.ID())
		}
		log.Error("Failed to release buffer")
	}
}
