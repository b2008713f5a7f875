// Source locator resolution: maps a locator string onto a byte stream
package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"fyne.io/fyne/v2/storage"
)

// ErrEagerUnavailable means the locator cannot be read by this process and
// must be handed to the display collaborator's own loading path.
var ErrEagerUnavailable = errors.New("eager decode unavailable for locator")

// Kind classifies a locator by its scheme or prefix.
type Kind int

const (
	KindOther Kind = iota
	KindFile
	KindContent
	KindRemote
	KindPath
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindContent:
		return "content"
	case KindRemote:
		return "remote"
	case KindPath:
		return "path"
	default:
		return "other"
	}
}

type opener func(ctx context.Context, l *Loader, locator string) (io.ReadCloser, error)

// dispatch is checked in order; the first matching prefix wins. Locators that
// match nothing are opened as-is.
var dispatch = []struct {
	prefix string
	kind   Kind
	open   opener
}{
	{"file://", KindFile, openFileURI},
	{"content://", KindContent, openContent},
	{"http://", KindRemote, openRemote},
	{"https://", KindRemote, openRemote},
	{"/", KindPath, openPath},
}

// Classify returns the dispatch kind of locator.
func Classify(locator string) Kind {
	for _, d := range dispatch {
		if strings.HasPrefix(locator, d.prefix) {
			return d.kind
		}
	}
	return KindOther
}

func (l *Loader) open(ctx context.Context, locator string) (io.ReadCloser, error) {
	for _, d := range dispatch {
		if strings.HasPrefix(locator, d.prefix) {
			return d.open(ctx, l, locator)
		}
	}
	return openAsIs(ctx, l, locator)
}

func openFileURI(_ context.Context, _ *Loader, locator string) (io.ReadCloser, error) {
	u, err := storage.ParseURI(locator)
	if err != nil {
		return nil, fmt.Errorf("invalid file uri %q: %w", locator, err)
	}
	return os.Open(u.Path())
}

func openPath(_ context.Context, _ *Loader, locator string) (io.ReadCloser, error) {
	// Same as Uri.fromFile: normalise through a file URI.
	return os.Open(storage.NewFileURI(filepath.Clean(locator)).Path())
}

func openContent(ctx context.Context, l *Loader, locator string) (io.ReadCloser, error) {
	if l.content == nil {
		return nil, fmt.Errorf("%w: no content resolver for %q", ErrEagerUnavailable, locator)
	}

	u, err := storage.ParseURI(locator)
	if err != nil {
		return nil, fmt.Errorf("invalid content uri %q: %w", locator, err)
	}
	return l.content.Open(ctx, u.Authority(), u.Path())
}

func openRemote(ctx context.Context, l *Loader, locator string) (io.ReadCloser, error) {
	if l.client == nil {
		return nil, fmt.Errorf("%w: remote fetching disabled for %q", ErrEagerUnavailable, locator)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid remote url %q: %w", locator, err)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", locator, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("fetch %s: unexpected status %s", locator, resp.Status)
	}
	return resp.Body, nil
}

// openAsIs tries the locator as a URI first and falls back to a relative path.
// Nothing is rejected here; a bad locator fails later as a decode error.
func openAsIs(ctx context.Context, l *Loader, locator string) (io.ReadCloser, error) {
	u, err := storage.ParseURI(locator)
	if err != nil {
		if strings.Contains(locator, "://") {
			return nil, fmt.Errorf("%w: %q", ErrEagerUnavailable, locator)
		}
		return os.Open(locator)
	}
	if u.Scheme() == "" {
		return os.Open(locator)
	}

	switch u.Scheme() {
	case "file":
		return os.Open(u.Path())
	default:
		return nil, fmt.Errorf("%w: scheme %q", ErrEagerUnavailable, u.Scheme())
	}
}

// ContentResolver opens content-provider style references.
type ContentResolver interface {
	Open(ctx context.Context, authority, path string) (io.ReadCloser, error)
}

// DirResolver serves content://authority/path from Root/authority/path.
type DirResolver struct {
	Root string
}

func (d DirResolver) Open(_ context.Context, authority, path string) (io.ReadCloser, error) {
	rel := filepath.Join(authority, filepath.FromSlash(path))
	full := filepath.Join(d.Root, rel)
	if !strings.HasPrefix(full, filepath.Clean(d.Root)+string(filepath.Separator)) {
		return nil, fmt.Errorf("content path escapes root: %s", rel)
	}
	return os.Open(full)
}
