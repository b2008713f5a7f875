package core

// Reconciler decides what happens to the crop rectangle after the current
// buffer is replaced. It is called with the session locked.
type Reconciler interface {
	OnBufferReplaced(s *Session, dimensionsChanged bool)
}

// RecenterReconciler never remaps a crop rectangle into the new buffer's
// coordinates. It drops the recorded rectangle and asks the display to
// recenter its crop window, whether or not the dimensions changed.
type RecenterReconciler struct{}

func (RecenterReconciler) OnBufferReplaced(s *Session, dimensionsChanged bool) {
	if r, ok := s.transform.CropRect(); ok {
		s.logger.WithField("crop_rect", r).Debug("Discarding crop rectangle")
	}
	s.transform.ClearCropRect()

	if s.display != nil {
		s.display.ResetCropWindow()
	}
	s.logger.WithField("dimensions_changed", dimensionsChanged).Debug("Crop window recentered")
}
