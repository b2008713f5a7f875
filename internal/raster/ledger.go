// Buffer allocation ledger for memory debugging
package raster

import (
	"fmt"
	"image"
	"runtime"
	"sync"

	"github.com/sirupsen/logrus"
)

// Ledger counts allocations and releases of tracked buffers and flags any
// buffer closed more than once. It is switched on by the memory debug setting
// and used by tests as a release counter.
type Ledger struct {
	mu       sync.Mutex
	logger   logrus.FieldLogger
	nextID   int
	releases map[int]int
	sizes    map[int]image.Point
	doubles  []int
}

// NewLedger creates an empty ledger. logger may be nil.
func NewLedger(logger logrus.FieldLogger) *Ledger {
	if logger == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		logger = l
	}
	return &Ledger{
		logger:   logger.WithField("component", "ledger"),
		nextID:   1,
		releases: make(map[int]int),
		sizes:    make(map[int]image.Point),
	}
}

// Track wraps b so that its release and every buffer derived from it are
// recorded. Tracking an already tracked buffer returns it unchanged.
func (l *Ledger) Track(b Buffer) Buffer {
	if b == nil {
		return nil
	}
	if t, ok := b.(*Tracked); ok && t.ledger == l {
		return t
	}

	l.mu.Lock()
	id := l.nextID
	l.nextID++
	l.releases[id] = 0
	l.sizes[id] = b.Size()
	l.mu.Unlock()

	l.logger.WithFields(logrus.Fields{
		"buffer": id,
		"width":  b.Size().X,
		"height": b.Size().Y,
	}).Debug("Buffer allocated")

	return &Tracked{Buffer: b, ledger: l, id: id}
}

func (l *Ledger) release(id int) int {
	l.mu.Lock()
	l.releases[id]++
	n := l.releases[id]
	if n == 2 {
		l.doubles = append(l.doubles, id)
	}
	l.mu.Unlock()

	if n > 1 {
		l.logger.WithFields(logrus.Fields{"buffer": id, "releases": n}).Error("Buffer released more than once")
	} else {
		l.logger.WithField("buffer", id).Debug("Buffer released")
	}
	return n
}

// Allocated returns the number of buffers tracked so far.
func (l *Ledger) Allocated() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.releases)
}

// Live returns the number of tracked buffers never released.
func (l *Ledger) Live() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	live := 0
	for _, n := range l.releases {
		if n == 0 {
			live++
		}
	}
	return live
}

// DoubleReleases returns the ids of buffers closed more than once.
func (l *Ledger) DoubleReleases() []int {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]int, len(l.doubles))
	copy(out, l.doubles)
	return out
}

// Check reports an error when any buffer is live or was released twice.
func (l *Ledger) Check() error {
	if d := l.DoubleReleases(); len(d) > 0 {
		return fmt.Errorf("buffers released more than once: %v", d)
	}
	if live := l.Live(); live > 0 {
		return fmt.Errorf("%d buffers never released", live)
	}
	return nil
}

// LiveBytes estimates the pixel memory held by live buffers at four bytes
// per pixel.
func (l *Ledger) LiveBytes() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	total := 0
	for id, n := range l.releases {
		if n == 0 {
			sz := l.sizes[id]
			total += sz.X * sz.Y * 4
		}
	}
	return total
}

// LogSummary logs the ledger counters together with the Go heap statistics.
func (l *Ledger) LogSummary() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	l.logger.WithFields(logrus.Fields{
		"allocated":      l.Allocated(),
		"live":           l.Live(),
		"live_mb":        float64(l.LiveBytes()) / 1024 / 1024,
		"double_release": len(l.DoubleReleases()),
		"heap_alloc_mb":  float64(m.Alloc) / 1024 / 1024,
		"total_alloc_mb": float64(m.TotalAlloc) / 1024 / 1024,
		"sys_mb":         float64(m.Sys) / 1024 / 1024,
		"num_gc":         m.NumGC,
	}).Info("Memory summary")
}

// Tracked is a Buffer registered with a Ledger.
type Tracked struct {
	Buffer
	ledger *Ledger
	id     int
}

// ID returns the ledger id of the buffer.
func (t *Tracked) ID() int {
	return t.id
}

func (t *Tracked) Rotate90(clockwise bool) (Buffer, error) {
	out, err := t.Buffer.Rotate90(clockwise)
	if err != nil {
		return nil, err
	}
	return t.ledger.Track(out), nil
}

func (t *Tracked) Flip(axis Axis) (Buffer, error) {
	out, err := t.Buffer.Flip(axis)
	if err != nil {
		return nil, err
	}
	return t.ledger.Track(out), nil
}

func (t *Tracked) Clone() (Buffer, error) {
	out, err := t.Buffer.Clone()
	if err != nil {
		return nil, err
	}
	return t.ledger.Track(out), nil
}

// Close records the release. A second Close is recorded but not forwarded.
func (t *Tracked) Close() error {
	if t.ledger.release(t.id) > 1 {
		return ErrReleased
	}
	return t.Buffer.Close()
}
