package document

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	// WorkDir receives the working copies. A private temp dir is created when empty.
	WorkDir  string
	Detector Detector
	Openers  map[Kind]Opener
	Fetchers []Fetcher
}

// Registry owns the open documents of a session and deduplicates imports.
type Registry struct {
	mu       sync.Mutex
	workDir  string
	ownsDir  bool
	detector Detector
	openers  map[Kind]Opener
	fetchers []Fetcher
	docs     []*Handle
	seq      int
}

// NewRegistry prepares the work directory and returns an empty registry.
func NewRegistry(opts RegistryOptions) (*Registry, error) {
	if opts.Detector == nil {
		return nil, errors.New("registry: detector is required")
	}
	r := &Registry{
		detector: opts.Detector,
		openers:  opts.Openers,
		fetchers: opts.Fetchers,
	}
	if opts.WorkDir == "" {
		dir, err := os.MkdirTemp("", "pdfsnip-")
		if err != nil {
			return nil, fmt.Errorf("create work dir: %w", err)
		}
		r.workDir, r.ownsDir = dir, true
	} else {
		if err := os.MkdirAll(opts.WorkDir, 0o755); err != nil {
			return nil, fmt.Errorf("create work dir: %w", err)
		}
		r.workDir = opts.WorkDir
	}
	return r, nil
}

// WorkDir returns the directory holding working copies.
func (r *Registry) WorkDir() string { return r.workDir }

// Import opens ref, or returns the existing handle when the same file with an
// unchanged modification time was imported before (reused is then true).
func (r *Registry) Import(ctx context.Context, ref string) (h *Handle, reused bool, err error) {
	if f := r.fetcherFor(ref); f != nil {
		return r.importRemote(ctx, f, ref)
	}
	return r.importLocal(ref)
}

func (r *Registry) importLocal(ref string) (*Handle, bool, error) {
	abs, err := filepath.Abs(ref)
	if err != nil {
		return nil, false, fmt.Errorf("resolve %s: %w", ref, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, false, fmt.Errorf("stat %s: %w", abs, err)
	}
	if info.IsDir() {
		return nil, false, fmt.Errorf("%s: %w", abs, ErrUnsupportedFormat)
	}

	r.mu.Lock()
	for _, h := range r.docs {
		if h.same(info) {
			r.mu.Unlock()
			log.Debug().Str("doc", abs).Str("id", h.ID).Msg("document already open, reusing handle")
			return h, true, nil
		}
	}
	r.mu.Unlock()

	kind, err := r.detector.Kind(abs)
	if err != nil {
		return nil, false, err
	}
	h, err := r.open(abs, kind, info.ModTime(), func(dst string) error { return copyFile(abs, dst) })
	if err != nil {
		return nil, false, err
	}
	h.info = info
	return r.add(h), false, nil
}

func (r *Registry) importRemote(ctx context.Context, f Fetcher, ref string) (*Handle, bool, error) {
	mtime, err := f.ModTime(ctx, ref)
	if err != nil {
		return nil, false, fmt.Errorf("stat %s: %w", ref, err)
	}
	r.mu.Lock()
	for _, h := range r.docs {
		if h.Remote && h.Path == ref && h.ModTime.Equal(mtime) {
			r.mu.Unlock()
			return h, true, nil
		}
	}
	r.mu.Unlock()

	// fetch to a staging name first; the kind is only known from content
	staging := filepath.Join(r.workDir, "fetch-"+uuid.NewString())
	if err := f.Fetch(ctx, ref, staging); err != nil {
		_ = os.Remove(staging)
		return nil, false, fmt.Errorf("fetch %s: %w", ref, err)
	}
	defer os.Remove(staging)

	kind, err := r.detector.Kind(staging)
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", ref, err)
	}
	h, err := r.open(ref, kind, mtime, func(dst string) error { return os.Rename(staging, dst) })
	if err != nil {
		return nil, false, err
	}
	h.Remote = true
	return r.add(h), false, nil
}

// open makes the working copy, then opens it with the decoder for kind.
// A failed open leaves no working copy behind.
func (r *Registry) open(src string, kind Kind, mtime time.Time, materialize func(dst string) error) (*Handle, error) {
	opener, ok := r.openers[kind]
	if !ok || opener == nil {
		return nil, fmt.Errorf("%s (%s): %w", src, kind, ErrUnsupportedFormat)
	}

	name := shortName(src)
	r.mu.Lock()
	r.seq++
	copyPath := filepath.Join(r.workDir, fmt.Sprintf("%02d_%s%s", r.seq, name, kind.Extension()))
	r.mu.Unlock()

	if err := materialize(copyPath); err != nil {
		_ = os.Remove(copyPath)
		return nil, fmt.Errorf("working copy of %s: %w", src, err)
	}

	dec, err := opener.Open(copyPath)
	if err != nil {
		_ = os.Remove(copyPath)
		if errors.Is(err, ErrEncrypted) {
			return nil, fmt.Errorf("%s: %w", src, err)
		}
		return nil, &DecodeError{Path: src, Page: -1, Err: err}
	}
	if dec.NumPage() <= 0 {
		_ = dec.Close()
		_ = os.Remove(copyPath)
		return nil, &DecodeError{Path: src, Page: -1, Err: errors.New("document has no pages")}
	}

	return &Handle{
		ID:          uuid.NewString(),
		Path:        src,
		Name:        name,
		ModTime:     mtime,
		Pages:       dec.NumPage(),
		Kind:        kind,
		WorkingCopy: copyPath,
		dec:         dec,
		ownsCopy:    true,
	}, nil
}

func (r *Registry) add(h *Handle) *Handle {
	r.mu.Lock()
	r.docs = append(r.docs, h)
	r.mu.Unlock()
	log.Info().Str("doc", h.Path).Str("id", h.ID).Str("kind", h.Kind.String()).Int("pages", h.Pages).Msg("document opened")
	return h
}

// Documents returns the open documents in import order.
func (r *Registry) Documents() []*Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Handle, len(r.docs))
	copy(out, r.docs)
	return out
}

// Len returns the number of open documents.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.docs)
}

// Remove closes one document and deletes its working copy.
func (r *Registry) Remove(h *Handle) error {
	r.mu.Lock()
	idx := -1
	for i, d := range r.docs {
		if d == h {
			idx = i
			break
		}
	}
	if idx < 0 {
		r.mu.Unlock()
		return nil
	}
	r.docs = append(r.docs[:idx], r.docs[idx+1:]...)
	r.mu.Unlock()
	return h.release()
}

// Close releases every document and removes a work directory the registry created.
func (r *Registry) Close() error {
	r.mu.Lock()
	docs := r.docs
	r.docs = nil
	r.mu.Unlock()

	var errs []error
	for _, h := range docs {
		if err := h.release(); err != nil {
			errs = append(errs, fmt.Errorf("release %s: %w", h.Path, err))
		}
	}
	if r.ownsDir {
		if err := os.RemoveAll(r.workDir); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Registry) fetcherFor(ref string) Fetcher {
	for _, f := range r.fetchers {
		if f != nil && f.Handles(ref) {
			return f
		}
	}
	return nil
}

// shortName is the file name without directories or extension.
func shortName(ref string) string {
	base := ref
	if i := strings.LastIndexAny(base, `/\`); i >= 0 {
		base = base[i+1:]
	}
	if i := strings.Index(base, "?"); i >= 0 {
		base = base[:i]
	}
	if ext := filepath.Ext(base); ext != "" && ext != base {
		base = strings.TrimSuffix(base, ext)
	}
	if base == "" {
		base = "document"
	}
	return base
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
