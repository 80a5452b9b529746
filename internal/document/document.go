package document

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"time"
)

// Kind identifies the source format of a document.
type Kind int

const (
	KindUnknown Kind = iota
	KindPDF
	KindDjVu
)

func (k Kind) String() string {
	switch k {
	case KindPDF:
		return "pdf"
	case KindDjVu:
		return "djvu"
	default:
		return "unknown"
	}
}

// Extension returns the canonical file extension for the kind, dot included.
func (k Kind) Extension() string {
	switch k {
	case KindPDF:
		return ".pdf"
	case KindDjVu:
		return ".djvu"
	default:
		return ""
	}
}

var (
	// ErrUnsupportedFormat is returned when no decoder is registered for a file's format.
	ErrUnsupportedFormat = errors.New("unsupported document format")
	// ErrEncrypted is returned when a document requires a non-empty password.
	ErrEncrypted = errors.New("document is encrypted")
)

// DecodeError reports a document or page that could not be opened or decoded.
// Page is -1 when the failure concerns the whole document.
type DecodeError struct {
	Path string
	Page int
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Page < 0 {
		return fmt.Sprintf("decode %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("decode %s page %d: %v", e.Path, e.Page+1, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Decoder rasterizes the pages of one opened document. Implementations must
// be safe for use from the renderer goroutine while the caller uses them too.
type Decoder interface {
	NumPage() int
	// PageSize returns the page dimensions in decoder units (points for PDF,
	// pixels for DjVu) with the page's own rotation already applied.
	PageSize(page int) (w, h float64, err error)
	// EmbeddedThumbnail returns the thumbnail stored in the document, or nil
	// when the page has none.
	EmbeddedThumbnail(page int) (image.Image, error)
	// Render rasterizes a page at scale decoder units to pixels.
	Render(page int, scale float64) (image.Image, error)
	Close() error
}

// Opener opens documents of one kind.
type Opener interface {
	Open(path string) (Decoder, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(path string) (Decoder, error)

func (f OpenerFunc) Open(path string) (Decoder, error) { return f(path) }

// Detector resolves the kind of a local file by content.
type Detector interface {
	Kind(path string) (Kind, error)
}

// Fetcher brings remote references (s3://, https://) into the local work directory.
type Fetcher interface {
	Handles(ref string) bool
	// ModTime returns the remote last-modified time used for deduplication.
	ModTime(ctx context.Context, ref string) (time.Time, error)
	Fetch(ctx context.Context, ref, dst string) error
}

// Handle is one opened source document. It is read-only after construction.
type Handle struct {
	ID          string
	Path        string
	Name        string
	ModTime     time.Time
	Pages       int
	Kind        Kind
	WorkingCopy string
	Remote      bool

	info     os.FileInfo
	dec      Decoder
	ownsCopy bool
}

// Decoder returns the decoder owned by the handle.
func (h *Handle) Decoder() Decoder { return h.dec }

// PageLabel is the display label for a zero-based page of the document.
func (h *Handle) PageLabel(page int) string {
	return fmt.Sprintf("%s page %d", h.Name, page+1)
}

func (h *Handle) String() string { return h.Name }

// same reports whether the handle was imported from the given file at the given mtime.
func (h *Handle) same(info os.FileInfo) bool {
	if h.info == nil || info == nil {
		return false
	}
	return os.SameFile(h.info, info) && h.ModTime.Equal(info.ModTime())
}

func (h *Handle) release() error {
	var err error
	if h.dec != nil {
		err = h.dec.Close()
	}
	if h.ownsCopy && h.WorkingCopy != "" {
		if rmErr := os.Remove(h.WorkingCopy); rmErr != nil && !os.IsNotExist(rmErr) && err == nil {
			err = rmErr
		}
	}
	return err
}

// NewHandle builds a handle around an already opened decoder. Used by tests
// and by callers that manage the working copy themselves.
func NewHandle(path, name string, kind Kind, dec Decoder) *Handle {
	return &Handle{Path: path, Name: name, Kind: kind, Pages: dec.NumPage(), WorkingCopy: path, dec: dec}
}
