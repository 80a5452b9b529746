package renderer

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/local/pdfsnip/internal/document"
	"github.com/local/pdfsnip/internal/metrics"
	"github.com/local/pdfsnip/internal/pagelist"
)

// Worker keeps the thumbnails of a page list current. One goroutine walks
// the list, renders stale requested entries and parks when a full pass finds
// nothing to do.
type Worker struct {
	list  *pagelist.List
	sink  Sink
	cache Cache

	opts  atomic.Pointer[Options]
	gen   atomic.Uint64
	state atomic.Int32

	// documents with a render that ran past the timeout; their remaining
	// pages get placeholders until ClearTimeouts
	hungMu sync.Mutex
	hung   map[*document.Handle]bool

	wake     chan struct{}
	stop     chan struct{}
	done     chan struct{}
	started  atomic.Bool
	stopOnce sync.Once
}

// New creates a worker over list. sink and cache may be nil.
func New(list *pagelist.List, sink Sink, cache Cache, opts Options) *Worker {
	if sink == nil {
		sink = nopSink{}
	}
	w := &Worker{
		list:  list,
		sink:  sink,
		cache: cache,
		hung:  map[*document.Handle]bool{},
		wake:  make(chan struct{}, 1),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	o := opts.withDefaults()
	w.opts.Store(&o)
	return w
}

// Start launches the worker goroutine. Calling it twice is a no-op.
func (w *Worker) Start() {
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	go w.run()
}

// Stop asks the worker to quit and waits for it, or for ctx.
func (w *Worker) Stop(ctx context.Context) error {
	w.stopOnce.Do(func() { close(w.stop) })
	if !w.started.Load() {
		w.state.Store(int32(Stopped))
		return nil
	}
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wake moves an idle worker back to scanning. It never blocks.
func (w *Worker) Wake() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Restart makes the current pass start over from the first entry, then wakes.
func (w *Worker) Restart() {
	w.gen.Add(1)
	w.Wake()
}

// Apply swaps the configuration snapshot. When the change alters rendered
// output every entry is invalidated. The scan restarts either way.
func (w *Worker) Apply(opts Options) {
	n := opts.withDefaults()
	old := w.opts.Swap(&n)
	if old == nil || old.affectsOutput(n) {
		w.list.InvalidateAll()
	}
	w.ClearTimeouts()
	log.Debug().Int("thumb_size", n.ThumbSize).Bool("prefer_embedded", n.PreferEmbedded).Bool("antialias", n.Antialias).Msg("renderer options applied")
	w.Restart()
}

// ClearTimeouts lets documents that timed out be rendered again. Entries
// already holding a placeholder stay as they are until invalidated.
func (w *Worker) ClearTimeouts() {
	w.hungMu.Lock()
	clear(w.hung)
	w.hungMu.Unlock()
}

func (w *Worker) timedOut(doc *document.Handle) bool {
	w.hungMu.Lock()
	defer w.hungMu.Unlock()
	return w.hung[doc]
}

func (w *Worker) markTimedOut(doc *document.Handle) {
	w.hungMu.Lock()
	w.hung[doc] = true
	w.hungMu.Unlock()
}

// Options returns the current snapshot.
func (w *Worker) Options() Options { return *w.opts.Load() }

// State returns the scheduling state.
func (w *Worker) State() State { return State(w.state.Load()) }

// Generation returns the restart counter.
func (w *Worker) Generation() uint64 { return w.gen.Load() }

func (w *Worker) stopping() bool {
	select {
	case <-w.stop:
		return true
	default:
		return false
	}
}

func (w *Worker) run() {
	defer close(w.done)
	defer w.state.Store(int32(Stopped))
	log.Debug().Msg("renderer started")

	for {
		if w.stopping() {
			return
		}
		w.state.Store(int32(Scanning))
		worked, ok := w.scan()
		if !ok {
			return
		}
		if worked {
			continue
		}

		w.state.Store(int32(Idle))
		w.sink.Idle()
		select {
		case <-w.wake:
		case <-w.stop:
			return
		}
	}
}

// scan makes one pass over the list. It reports whether anything was
// rendered, and false in ok when the worker is stopping.
func (w *Worker) scan() (worked, ok bool) {
	gen := w.gen.Load()
	rendered := 0
	for i := 0; ; i++ {
		if w.stopping() {
			return rendered > 0, false
		}
		if g := w.gen.Load(); g != gen {
			gen = g
			i = -1
			metrics.IncScanRestart()
			continue
		}
		e, exists := w.list.At(i)
		if !exists {
			break
		}
		if e.Rendered() || !e.NeedsRender() {
			continue
		}

		rev := e.Revision()
		img := w.render(e, *w.opts.Load())
		if w.stopping() {
			return true, false
		}
		e.Publish(img, rev)
		rendered++

		w.sink.ThumbnailReady(i, e)
		w.sink.LayoutChanged()
	}

	metrics.IncScanPass()
	metrics.SetStaleEntries(w.list.Pending())
	return rendered > 0, true
}
