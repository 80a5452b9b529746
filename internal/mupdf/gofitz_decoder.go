package mupdf

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/gen2brain/go-fitz"
	"github.com/rs/zerolog/log"

	"github.com/local/pdfsnip/internal/document"
)

// Decoder rasterizes PDF pages with go-fitz. Embedded page thumbnails are
// read through pdfcpu on first use.
type Decoder struct {
	mu    sync.Mutex
	path  string
	doc   *fitz.Document
	pages int

	thumbsOnce sync.Once
	thumbs     *thumbReader
}

// Opener opens PDF documents with go-fitz.
type Opener struct{}

// Open implements document.Opener.
func (Opener) Open(path string) (document.Decoder, error) { return Open(path) }

// Open opens the PDF at path.
func Open(path string) (*Decoder, error) {
	doc, err := fitz.New(path)
	if err != nil {
		if errors.Is(err, fitz.ErrNeedsPassword) {
			return nil, document.ErrEncrypted
		}
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	d := &Decoder{path: path, doc: doc, pages: doc.NumPage()}
	log.Debug().Str("pdf", path).Int("pages", d.pages).Msg("opened PDF with go-fitz")
	return d, nil
}

// NumPage returns the page count.
func (d *Decoder) NumPage() int { return d.pages }

func (d *Decoder) checkPage(page int) error {
	if page < 0 || page >= d.pages {
		return fmt.Errorf("page %d out of range (document has %d pages)", page+1, d.pages)
	}
	return nil
}

// PageSize returns the page bounds in points, with /Rotate applied.
func (d *Decoder) PageSize(page int) (float64, float64, error) {
	if err := d.checkPage(page); err != nil {
		return 0, 0, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.doc == nil {
		return 0, 0, errors.New("document closed")
	}
	r, err := d.doc.Bound(page)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to get bounds of page %d: %w", page+1, err)
	}
	return float64(r.Dx()), float64(r.Dy()), nil
}

// Render rasterizes a page at scale pixels per point.
func (d *Decoder) Render(page int, scale float64) (image.Image, error) {
	if err := d.checkPage(page); err != nil {
		return nil, err
	}
	if scale <= 0 {
		return nil, fmt.Errorf("invalid render scale %v", scale)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.doc == nil {
		return nil, errors.New("document closed")
	}
	img, err := d.doc.ImageDPI(page, 72*scale)
	if err != nil {
		return nil, fmt.Errorf("failed to render page %d: %w", page+1, err)
	}
	return img, nil
}

// EmbeddedThumbnail returns the page's /Thumb image, or nil when it has none.
func (d *Decoder) EmbeddedThumbnail(page int) (image.Image, error) {
	if err := d.checkPage(page); err != nil {
		return nil, err
	}
	d.thumbsOnce.Do(func() {
		tr, err := newThumbReader(d.path)
		if err != nil {
			log.Debug().Err(err).Str("pdf", d.path).Msg("embedded thumbnails unavailable")
			return
		}
		d.thumbs = tr
	})
	if d.thumbs == nil {
		return nil, nil
	}
	return d.thumbs.Thumbnail(page + 1)
}

// Close releases the go-fitz document.
func (d *Decoder) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.doc == nil {
		return nil
	}
	err := d.doc.Close()
	d.doc = nil
	return err
}
