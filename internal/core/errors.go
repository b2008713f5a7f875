package core

import "errors"

var (
	// ErrDecodeFailed means the locator could not be resolved or decoded.
	ErrDecodeFailed = errors.New("decode failed")
	// ErrNoImage means a transform was requested before any source loaded.
	ErrNoImage = errors.New("no image loaded")
	// ErrNoOriginal means a reset was requested before any source loaded.
	ErrNoOriginal = errors.New("no original image available")
	// ErrUnknownSession means no session is registered for the instance.
	ErrUnknownSession = errors.New("unknown session")
	// ErrSuperseded means a load finished after a newer load or a destroy and was discarded.
	ErrSuperseded = errors.New("load superseded")
)
