// Package export writes the page list out as a single PDF.
package export

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/pdfsnip/internal/document"
	"github.com/local/pdfsnip/internal/metrics"
	"github.com/local/pdfsnip/internal/pagelist"
)

var (
	// ErrUnsupportedOperation is returned before any I/O when an engine cannot
	// handle the job's sources.
	ErrUnsupportedOperation = errors.New("unsupported export operation")
	// ErrEmptyDocument is returned for a job without pages. Nothing is written.
	ErrEmptyDocument = errors.New("nothing to export: page list is empty")
)

// IOError reports a destination that could not be written.
type IOError struct {
	Dest string
	Err  error
}

func (e *IOError) Error() string { return fmt.Sprintf("write %s: %v", e.Dest, e.Err) }
func (e *IOError) Unwrap() error { return e.Err }

// Capabilities describes what an engine can honour.
type Capabilities struct {
	PerPageTransforms bool
	MultipleDocuments bool
	DjVuSources       bool
}

// Page is one output page.
type Page struct {
	Doc      *document.Handle
	Page     int
	Rotation int
	Crop     pagelist.Crop
}

// Transformed reports whether the page carries a rotation or crop.
func (p Page) Transformed() bool {
	return pagelist.NormalizeRotation(p.Rotation) != 0 || !p.Crop.IsZero()
}

// Job is a snapshot of everything an export needs.
type Job struct {
	Pages []Page
	// Documents are all documents open in the session, used or not.
	Documents []*document.Handle
	Dest      string
}

// Report summarizes a finished export.
type Report struct {
	Engine            string
	Dest              string
	Pages             int
	DroppedTransforms int
	Duration          time.Duration
}

// Engine produces a PDF at a local destination path.
type Engine interface {
	Name() string
	Capabilities() Capabilities
	Export(ctx context.Context, job Job) (Report, error)
}

// Uploader publishes a locally written file to a remote destination.
type Uploader interface {
	Handles(ref string) bool
	Upload(ctx context.Context, localPath, ref string) error
}

// NewJob snapshots list in order.
func NewJob(list *pagelist.List, docs []*document.Handle, dest string) Job {
	entries := list.Snapshot()
	job := Job{Pages: make([]Page, 0, len(entries)), Documents: docs, Dest: dest}
	for _, e := range entries {
		job.Pages = append(job.Pages, Page{Doc: e.Doc, Page: e.Page, Rotation: e.Rotation(), Crop: e.Crop()})
	}
	return job
}

// Run exports job with engine. Remote destinations are written to a local
// temp file first and handed to the matching uploader.
func Run(ctx context.Context, engine Engine, job Job, uploaders ...Uploader) (Report, error) {
	start := time.Now()
	if len(job.Pages) == 0 {
		metrics.ObserveExport(engine.Name(), "empty", 0, 0)
		return Report{Engine: engine.Name(), Dest: job.Dest}, ErrEmptyDocument
	}

	var up Uploader
	for _, u := range uploaders {
		if u != nil && u.Handles(job.Dest) {
			up = u
			break
		}
	}
	remote := job.Dest
	if up != nil {
		dir, err := os.MkdirTemp("", "pdfsnip-upload-")
		if err != nil {
			return Report{}, &IOError{Dest: remote, Err: err}
		}
		defer os.RemoveAll(dir)
		job.Dest = filepath.Join(dir, "output.pdf")
	}

	rep, err := engine.Export(ctx, job)
	if err == nil && up != nil {
		if uerr := up.Upload(ctx, job.Dest, remote); uerr != nil {
			err = &IOError{Dest: remote, Err: uerr}
		}
	}
	rep.Engine = engine.Name()
	rep.Dest = remote
	rep.Duration = time.Since(start)

	if err != nil {
		metrics.ObserveExport(engine.Name(), "error", 0, 0)
		log.Error().Err(err).Str("engine", engine.Name()).Str("dest", remote).Msg("export failed")
		return rep, err
	}
	metrics.ObserveExport(engine.Name(), "success", rep.Pages, rep.DroppedTransforms)
	if rep.DroppedTransforms > 0 {
		log.Warn().Str("engine", engine.Name()).Int("dropped", rep.DroppedTransforms).Msg("engine ignored per-page rotation and crop")
	}
	log.Info().Str("engine", engine.Name()).Str("dest", remote).Int("pages", rep.Pages).Dur("duration", rep.Duration).Msg("export finished")
	return rep, nil
}

// writeAtomic lets produce write a temp file next to dest, then renames it
// over dest. The temp file is removed on any failure.
func writeAtomic(dest string, produce func(tmp string) error) error {
	dir := filepath.Dir(dest)
	f, err := os.CreateTemp(dir, ".pdfsnip-*.pdf")
	if err != nil {
		return &IOError{Dest: dest, Err: err}
	}
	tmp := f.Name()
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return &IOError{Dest: dest, Err: err}
	}
	if err := produce(tmp); err != nil {
		os.Remove(tmp)
		var pe *fs.PathError
		var ioe *IOError
		if errors.As(err, &pe) && !errors.As(err, &ioe) && pe.Path == tmp {
			return &IOError{Dest: dest, Err: err}
		}
		return err
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return &IOError{Dest: dest, Err: err}
	}
	return nil
}

// sourceDocuments lists the distinct documents of job: open ones first, then
// any referenced only by pages.
func sourceDocuments(job Job) []*document.Handle {
	seen := map[*document.Handle]bool{}
	var out []*document.Handle
	add := func(d *document.Handle) {
		if d != nil && !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	for _, d := range job.Documents {
		add(d)
	}
	for _, p := range job.Pages {
		add(p.Doc)
	}
	return out
}
