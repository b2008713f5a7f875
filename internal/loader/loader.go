// Image source loading and saving
package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"image-crop-engine/internal/config"
	"image-crop-engine/internal/raster"
)

// Loader resolves locators and decodes them into raster buffers.
type Loader struct {
	logger   logrus.FieldLogger
	decoder  Decoder
	content  ContentResolver
	client   *http.Client
	maxBytes int64
}

// Option customises a Loader.
type Option func(*Loader)

// WithContentResolver sets the resolver used for content:// locators.
func WithContentResolver(r ContentResolver) Option {
	return func(l *Loader) { l.content = r }
}

// WithHTTPClient sets the client used for remote locators; nil disables remote fetching.
func WithHTTPClient(c *http.Client) Option {
	return func(l *Loader) { l.client = c }
}

// WithDecoder overrides the backend decoder.
func WithDecoder(d Decoder) Option {
	return func(l *Loader) { l.decoder = d }
}

// New builds a loader from configuration.
func New(cfg config.LoaderConfig, backend raster.Backend, logger logrus.FieldLogger, opts ...Option) (*Loader, error) {
	decoder, err := NewDecoder(backend, cfg.AutoOrient)
	if err != nil {
		return nil, err
	}

	timeout := cfg.HTTPTimeout.Duration
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	l := &Loader{
		logger:   logger.WithField("component", "loader"),
		decoder:  decoder,
		client:   &http.Client{Timeout: timeout},
		maxBytes: cfg.MaxBytes,
	}
	if cfg.ContentRoot != "" {
		l.content = DirResolver{Root: cfg.ContentRoot}
	}

	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Load resolves locator and decodes it. The caller owns the returned buffer.
func (l *Loader) Load(ctx context.Context, locator string) (raster.Buffer, error) {
	log := l.logger.WithFields(logrus.Fields{"locator": locator, "kind": Classify(locator)})
	log.Debug("Loading image")

	rc, err := l.open(ctx, locator)
	if err != nil {
		if errors.Is(err, ErrEagerUnavailable) {
			log.WithError(err).Debug("Locator cannot be read eagerly")
		} else {
			log.WithError(err).Error("Failed to open image source")
		}
		return nil, err
	}
	defer rc.Close()

	var r io.Reader = rc
	if l.maxBytes > 0 {
		r = &limitedReader{r: rc, remaining: l.maxBytes}
	}

	buf, err := l.decoder.Decode(r)
	if err != nil {
		log.WithError(err).Error("Failed to decode image")
		return nil, err
	}

	size := buf.Size()
	log.WithFields(logrus.Fields{"width": size.X, "height": size.Y}).Info("Image loaded successfully")
	return buf, nil
}

// limitedReader fails instead of truncating when the source is larger than allowed.
type limitedReader struct {
	r         io.Reader
	remaining int64
}

func (lr *limitedReader) Read(p []byte) (int, error) {
	if lr.remaining <= 0 {
		var extra [1]byte
		if n, _ := lr.r.Read(extra[:]); n > 0 {
			return 0, fmt.Errorf("image source exceeds size limit")
		}
		return 0, io.EOF
	}
	if int64(len(p)) > lr.remaining {
		p = p[:lr.remaining]
	}
	n, err := lr.r.Read(p)
	lr.remaining -= int64(n)
	return n, err
}
