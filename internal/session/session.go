package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/pdfsnip/internal/config"
	"github.com/local/pdfsnip/internal/document"
	"github.com/local/pdfsnip/internal/export"
	"github.com/local/pdfsnip/internal/metrics"
	"github.com/local/pdfsnip/internal/pagelist"
	"github.com/local/pdfsnip/internal/renderer"
)

// ErrIndex is returned for page list indices outside the list.
var ErrIndex = errors.New("page index out of range")

// EventKind identifies what the renderer published.
type EventKind int

const (
	ThumbnailReady EventKind = iota
	LayoutChanged
	Idle
)

func (k EventKind) String() string {
	switch k {
	case ThumbnailReady:
		return "thumbnail_ready"
	case LayoutChanged:
		return "layout_changed"
	default:
		return "idle"
	}
}

// Event is one renderer publication. Entry is set for ThumbnailReady.
type Event struct {
	Kind  EventKind
	Index int
	Entry *pagelist.Entry
}

// Options assembles a Session. Registry is required.
type Options struct {
	Registry    *document.Registry
	Native      export.Engine
	External    export.Engine
	Uploaders   []export.Uploader
	Cache       renderer.Cache
	Render      config.RenderConfig
	Preferences config.Preferences
	// Closers are released by Close after the registry.
	Closers []io.Closer
	// EventBuffer sizes the Events channel; 0 means 256.
	EventBuffer int
}

// ImportOptions restricts and pre-transforms the pages appended by ImportWith.
// Pages are 1-based; zero bounds mean the first and last page. Bounds outside
// the document are clamped to it.
type ImportOptions struct {
	FirstPage int
	LastPage  int
	Rotation  int
	Crop      pagelist.Crop
}

// Info summarizes the session state.
type Info struct {
	Documents int
	Pages     int
	Pending   int
	ThumbSize int
	Engine    string
	State     string
	WorkDir   string
}

// Session owns the documents, the page list and the render worker of one
// editing session. Methods are meant to be called from a single goroutine.
type Session struct {
	registry  *document.Registry
	list      *pagelist.List
	worker    *renderer.Worker
	native    export.Engine
	external  export.Engine
	uploaders []export.Uploader
	render    config.RenderConfig
	closers   []io.Closer

	mu    sync.RWMutex
	prefs config.Preferences

	events    chan Event
	dropped   atomic.Int64
	closeOnce sync.Once
}

// New builds a session and starts its render worker.
func New(opts Options) (*Session, error) {
	if opts.Registry == nil {
		return nil, errors.New("session: registry is required")
	}
	if opts.Native == nil {
		opts.Native = &export.Native{}
	}
	buf := opts.EventBuffer
	if buf <= 0 {
		buf = 256
	}
	if opts.Render.MinThumbSize <= 0 {
		opts.Render.MinThumbSize = 50
	}
	if opts.Render.MaxThumbSize < opts.Render.MinThumbSize {
		opts.Render.MaxThumbSize = 1600
	}
	s := &Session{
		registry:  opts.Registry,
		list:      pagelist.New(),
		native:    opts.Native,
		external:  opts.External,
		uploaders: opts.Uploaders,
		render:    opts.Render,
		closers:   opts.Closers,
		events:    make(chan Event, buf),
	}
	s.prefs = s.sanitize(opts.Preferences)
	s.worker = renderer.New(s.list, s, opts.Cache, s.rendererOptions(s.prefs))
	s.worker.Start()
	return s, nil
}

func (s *Session) sanitize(p config.Preferences) config.Preferences {
	if p.ThumbSize <= 0 {
		p.ThumbSize = config.DefaultPreferences().ThumbSize
	}
	p.ThumbSize = min(max(p.ThumbSize, s.render.MinThumbSize), s.render.MaxThumbSize)
	return p
}

func (s *Session) rendererOptions(p config.Preferences) renderer.Options {
	return renderer.Options{
		ThumbSize:       p.ThumbSize,
		PreferEmbedded:  p.PreferEmbedded,
		Antialias:       p.Antialias,
		AntialiasFactor: s.render.AntialiasFactor,
		Timeout:         s.render.Timeout,
	}
}

// ThumbnailReady implements renderer.Sink.
func (s *Session) ThumbnailReady(index int, e *pagelist.Entry) {
	s.publish(Event{Kind: ThumbnailReady, Index: index, Entry: e})
}

// LayoutChanged implements renderer.Sink.
func (s *Session) LayoutChanged() { s.publish(Event{Kind: LayoutChanged, Index: -1}) }

// Idle implements renderer.Sink.
func (s *Session) Idle() { s.publish(Event{Kind: Idle, Index: -1}) }

// publish never blocks the worker; events are dropped when nobody drains.
func (s *Session) publish(ev Event) {
	select {
	case s.events <- ev:
	default:
		s.dropped.Add(1)
	}
}

// Events delivers renderer publications. It is closed by Close once the
// worker has stopped.
func (s *Session) Events() <-chan Event { return s.events }

// List exposes the page list for read access.
func (s *Session) List() *pagelist.List { return s.list }

// Documents returns the open documents.
func (s *Session) Documents() []*document.Handle { return s.registry.Documents() }

// Preferences returns the current preference snapshot.
func (s *Session) Preferences() config.Preferences {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prefs
}

// Import imports every ref in order. Directories are expanded to the PDF and
// DjVu files below them. A failing ref is logged and skipped; the others
// continue and the failures are returned joined.
func (s *Session) Import(ctx context.Context, refs ...string) ([]*document.Handle, error) {
	expanded, walkErr := expandRefs(refs)
	var (
		handles []*document.Handle
		errs    []error
	)
	if walkErr != nil {
		errs = append(errs, walkErr)
	}
	for _, ref := range expanded {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		h, err := s.ImportWith(ctx, ref, ImportOptions{})
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ref, err))
			continue
		}
		handles = append(handles, h)
	}
	return handles, errors.Join(errs...)
}

// ImportWith imports one document and appends the selected pages.
func (s *Session) ImportWith(ctx context.Context, ref string, opts ImportOptions) (*document.Handle, error) {
	if err := opts.Crop.Validate(); err != nil {
		return nil, err
	}
	h, reused, err := s.registry.Import(ctx, ref)
	if err != nil {
		result := "error"
		if errors.Is(err, document.ErrUnsupportedFormat) {
			result = "unsupported"
		}
		metrics.IncImport(document.KindUnknown.String(), result)
		log.Warn().Err(err).Str("ref", ref).Msg("import skipped")
		return nil, err
	}
	if reused {
		metrics.IncImport(h.Kind.String(), "reused")
	} else {
		metrics.IncImport(h.Kind.String(), "new")
	}

	first, last := pageRange(h.Pages, opts.FirstPage, opts.LastPage)
	requested := !s.Preferences().LazyRender
	entries := make([]*pagelist.Entry, 0, max(0, last-first+1))
	for p := first - 1; p < last; p++ {
		e := pagelist.NewEntry(h, p, requested)
		if opts.Rotation != 0 {
			e.SetRotation(opts.Rotation)
		}
		if !opts.Crop.IsZero() {
			_ = e.SetCrop(opts.Crop)
		}
		entries = append(entries, e)
	}
	s.list.Append(entries...)
	log.Info().Str("doc", h.Name).Int("pages", len(entries)).Bool("reused", reused).Msg("pages appended")
	s.worker.Wake()
	return h, nil
}

// pageRange clamps a one-based inclusive range to a document of n pages.
// Zero bounds mean the document's first or last page. A range lying outside
// the document collapses onto its nearest page, so at least one page is kept.
func pageRange(n, firstPage, lastPage int) (int, int) {
	if n <= 0 {
		return 1, 0
	}
	if lastPage <= 0 {
		lastPage = n
	}
	first := min(n, max(1, firstPage))
	last := max(first, min(n, lastPage))
	return first, last
}

// Remove deletes the entries at indices. Documents stay open.
func (s *Session) Remove(indices ...int) int {
	removed := s.list.Remove(indices...)
	if len(removed) > 0 {
		s.worker.Restart()
	}
	return len(removed)
}

// RemoveDocument drops every entry of h and closes it.
func (s *Session) RemoveDocument(h *document.Handle) error {
	n := s.list.RemoveDocument(h)
	s.worker.Restart()
	log.Info().Str("doc", h.Name).Int("entries", n).Msg("document removed")
	return s.registry.Remove(h)
}

// Move relocates one entry.
func (s *Session) Move(from, to int) error {
	if err := s.list.Move(from, to); err != nil {
		return err
	}
	s.worker.Restart()
	return nil
}

// MoveBefore moves the entries at indices, in order, in front of target.
func (s *Session) MoveBefore(indices []int, target int) error {
	if err := s.list.MoveBefore(indices, target); err != nil {
		return err
	}
	s.worker.Restart()
	return nil
}

func (s *Session) entries(indices []int) ([]*pagelist.Entry, error) {
	out := make([]*pagelist.Entry, 0, len(indices))
	for _, i := range indices {
		e, ok := s.list.At(i)
		if !ok {
			return nil, fmt.Errorf("%w: %d", ErrIndex, i)
		}
		out = append(out, e)
	}
	return out, nil
}

// Rotate adds deg (clockwise, multiple of 90) to the selected entries.
func (s *Session) Rotate(deg int, indices ...int) error {
	if deg%90 != 0 {
		return fmt.Errorf("rotation %d is not a multiple of 90", deg)
	}
	es, err := s.entries(indices)
	if err != nil {
		return err
	}
	for _, e := range es {
		e.Rotate(deg)
	}
	s.worker.Wake()
	return nil
}

// Crop replaces the crop of the selected entries.
func (s *Session) Crop(c pagelist.Crop, indices ...int) error {
	if err := c.Validate(); err != nil {
		return err
	}
	es, err := s.entries(indices)
	if err != nil {
		return err
	}
	for _, e := range es {
		if err := e.SetCrop(c); err != nil {
			return err
		}
	}
	s.worker.Wake()
	return nil
}

// SetVisible reports the inclusive range of entries shown by the view.
func (s *Session) SetVisible(first, last int) {
	if s.list.SetVisible(first, last) > 0 {
		s.worker.Wake()
	}
}

// SetThumbSize changes the thumbnail bounding box, clamped to the configured range.
func (s *Session) SetThumbSize(px int) int {
	p := s.Preferences()
	p.ThumbSize = px
	return s.ApplyPreferences(p).ThumbSize
}

// ZoomIn doubles the thumbnail size.
func (s *Session) ZoomIn() int { return s.SetThumbSize(s.Preferences().ThumbSize * 2) }

// ZoomOut halves the thumbnail size.
func (s *Session) ZoomOut() int { return s.SetThumbSize(s.Preferences().ThumbSize / 2) }

// ApplyPreferences swaps in a new preference snapshot and returns it as
// stored. Turning lazy rendering off requests every entry.
func (s *Session) ApplyPreferences(p config.Preferences) config.Preferences {
	p = s.sanitize(p)
	s.mu.Lock()
	old := s.prefs
	s.prefs = p
	s.mu.Unlock()

	if old.LazyRender && !p.LazyRender {
		s.list.MarkAllNeedRender()
	}
	s.worker.Apply(s.rendererOptions(p))
	if old.UseExternalTool != p.UseExternalTool {
		log.Info().Str("engine", s.engine(p).Name()).Msg("export engine changed")
	}
	return p
}

// Rerender discards every thumbnail and renders again, including pages of
// documents that previously timed out.
func (s *Session) Rerender() {
	s.list.InvalidateAll()
	s.worker.ClearTimeouts()
	s.worker.Restart()
}

func (s *Session) engine(p config.Preferences) export.Engine {
	if p.UseExternalTool && s.external != nil {
		return s.external
	}
	return s.native
}

// Engine returns the export engine selected by the preferences.
func (s *Session) Engine() export.Engine { return s.engine(s.Preferences()) }

// Export writes the page list to dest.
func (s *Session) Export(ctx context.Context, dest string) (export.Report, error) {
	job := export.NewJob(s.list, s.registry.Documents(), dest)
	return export.Run(ctx, s.Engine(), job, s.uploaders...)
}

// Save exports over the single open document.
func (s *Session) Save(ctx context.Context) (export.Report, error) {
	docs := s.registry.Documents()
	if len(docs) != 1 {
		return export.Report{}, fmt.Errorf("%w: save needs exactly one open document, %d are open", export.ErrUnsupportedOperation, len(docs))
	}
	return s.Export(ctx, docs[0].Path)
}

// Info returns a snapshot of the session.
func (s *Session) Info() Info {
	p := s.Preferences()
	return Info{
		Documents: s.registry.Len(),
		Pages:     s.list.Len(),
		Pending:   s.list.Pending(),
		ThumbSize: p.ThumbSize,
		Engine:    s.engine(p).Name(),
		State:     s.worker.State().String(),
		WorkDir:   s.registry.WorkDir(),
	}
}

// WaitIdle blocks until every requested entry is rendered and the worker is
// parked, or ctx is done.
func (s *Session) WaitIdle(ctx context.Context) error {
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
	for {
		if s.worker.State() != renderer.Scanning && s.list.Pending() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
		}
	}
}

// Close stops the worker, closes the documents and removes the work dir.
func (s *Session) Close(ctx context.Context) error {
	var errs []error
	s.closeOnce.Do(func() {
		if err := s.worker.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop renderer: %w", err))
		} else {
			close(s.events)
		}
		if err := s.registry.Close(); err != nil {
			errs = append(errs, err)
		}
		for _, c := range s.closers {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		log.Debug().Int64("dropped_events", s.dropped.Load()).Msg("session closed")
	})
	return errors.Join(errs...)
}
