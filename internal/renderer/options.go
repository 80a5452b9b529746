package renderer

import (
	"context"
	"image"
	"time"

	"github.com/local/pdfsnip/internal/pagelist"
)

// Options is the immutable configuration snapshot the worker renders with.
type Options struct {
	// ThumbSize is the bounding box, in pixels, of a thumbnail before decoration.
	ThumbSize       int
	PreferEmbedded  bool
	Antialias       bool
	AntialiasFactor int
	// Timeout bounds a single page render; zero disables it.
	Timeout time.Duration
}

// DefaultOptions are used for zero fields.
var DefaultOptions = Options{
	ThumbSize:       200,
	PreferEmbedded:  true,
	Antialias:       true,
	AntialiasFactor: 4,
	Timeout:         30 * time.Second,
}

func (o Options) withDefaults() Options {
	if o.ThumbSize <= 0 {
		o.ThumbSize = DefaultOptions.ThumbSize
	}
	if o.AntialiasFactor < 1 {
		o.AntialiasFactor = 1
	}
	return o
}

// affectsOutput reports whether switching from o to n changes rendered pixels.
func (o Options) affectsOutput(n Options) bool {
	return o.ThumbSize != n.ThumbSize ||
		o.PreferEmbedded != n.PreferEmbedded ||
		o.Antialias != n.Antialias ||
		(n.Antialias && o.AntialiasFactor != n.AntialiasFactor)
}

// Sink receives the worker's publications. Calls come from the worker
// goroutine; implementations hand them over to their own goroutine.
type Sink interface {
	ThumbnailReady(index int, e *pagelist.Entry)
	LayoutChanged()
	Idle()
}

// Cache stores finished thumbnails across sessions.
type Cache interface {
	Get(ctx context.Context, key string) (image.Image, bool)
	Put(ctx context.Context, key string, img image.Image)
}

// State is the worker's scheduling state.
type State int32

const (
	Scanning State = iota
	Idle
	Stopped
)

func (s State) String() string {
	switch s {
	case Scanning:
		return "scanning"
	case Idle:
		return "idle"
	default:
		return "stopped"
	}
}

type nopSink struct{}

func (nopSink) ThumbnailReady(int, *pagelist.Entry) {}
func (nopSink) LayoutChanged()                      {}
func (nopSink) Idle()                               {}
