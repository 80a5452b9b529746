package pagelist

import (
	"image"
	"sync/atomic"

	"github.com/local/pdfsnip/internal/document"
)

type thumbnail struct{ img image.Image }

// Entry is one output page. Doc and Page are fixed at creation; the other
// fields are atomics so the renderer goroutine never sees a torn value.
//
// The UI side writes rotation, crop and needsRender and bumps rev on every
// change that invalidates the thumbnail. The renderer writes the thumbnail
// and stamps the revision it rendered.
type Entry struct {
	Doc   *document.Handle
	Page  int
	Label string

	rotation    atomic.Int32
	crop        atomic.Pointer[Crop]
	thumb       atomic.Pointer[thumbnail]
	needsRender atomic.Bool
	rev         atomic.Uint64
	renderedRev atomic.Uint64
}

// NewEntry creates an unrendered entry for a zero-based page of doc.
func NewEntry(doc *document.Handle, page int, requested bool) *Entry {
	e := &Entry{Doc: doc, Page: page}
	if doc != nil {
		e.Label = doc.PageLabel(page)
	}
	e.crop.Store(&Crop{})
	e.needsRender.Store(requested)
	e.rev.Store(1)
	return e
}

// Rotation returns the accumulated rotation in degrees, clockwise positive.
func (e *Entry) Rotation() int { return int(e.rotation.Load()) }

// Crop returns the crop in the displayed frame.
func (e *Entry) Crop() Crop { return *e.crop.Load() }

// Rotate adds deg (clockwise) to the rotation. The crop is permuted so it
// stays attached to the same edges of the page content.
func (e *Entry) Rotate(deg int) {
	if deg == 0 {
		return
	}
	c := e.Crop().Permute(Steps(-deg))
	e.crop.Store(&c)
	e.rotation.Add(int32(deg))
	e.Invalidate()
}

// SetRotation replaces the rotation without touching the crop.
func (e *Entry) SetRotation(deg int) {
	e.rotation.Store(int32(deg))
	e.Invalidate()
}

// SetCrop validates and stores a new crop.
func (e *Entry) SetCrop(c Crop) error {
	if err := c.Validate(); err != nil {
		return err
	}
	e.crop.Store(&c)
	e.Invalidate()
	return nil
}

// NeedsRender reports whether the entry has been requested for rendering.
func (e *Entry) NeedsRender() bool { return e.needsRender.Load() }

// SetNeedsRender changes the lazy-rendering request flag and reports whether it changed.
func (e *Entry) SetNeedsRender(v bool) bool { return e.needsRender.Swap(v) != v }

// Invalidate marks the thumbnail stale.
func (e *Entry) Invalidate() { e.rev.Add(1) }

// Revision is the current content revision.
func (e *Entry) Revision() uint64 { return e.rev.Load() }

// Rendered reports whether the published thumbnail matches the current revision.
func (e *Entry) Rendered() bool { return e.renderedRev.Load() == e.rev.Load() }

// Stale reports whether the entry is requested but not rendered.
func (e *Entry) Stale() bool { return e.NeedsRender() && !e.Rendered() }

// Publish stores a thumbnail rendered for revision rev. If the entry changed
// in the meantime it stays stale and will be rendered again.
func (e *Entry) Publish(img image.Image, rev uint64) {
	e.thumb.Store(&thumbnail{img: img})
	e.renderedRev.Store(rev)
}

// Thumbnail returns the last published thumbnail, or nil.
func (e *Entry) Thumbnail() image.Image {
	if t := e.thumb.Load(); t != nil {
		return t.img
	}
	return nil
}
