package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/rs/zerolog/log"

	"github.com/local/pdfsnip/internal/document"
	"github.com/local/pdfsnip/internal/imagerender"
	"github.com/local/pdfsnip/internal/pagelist"
)

// Native assembles the output with pdfcpu. Every page is extracted into a
// single-page file, transformed, and the files are merged in order.
type Native struct {
	// TempDir holds intermediate single-page files. Empty means os.TempDir.
	TempDir string
	// DjVuScale is the raster scale for DjVu pages (1 = native resolution).
	DjVuScale float64
}

// Name implements Engine.
func (n *Native) Name() string { return "native" }

// Capabilities implements Engine.
func (n *Native) Capabilities() Capabilities {
	return Capabilities{PerPageTransforms: true, MultipleDocuments: true, DjVuSources: true}
}

func newConfig() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	// only the empty password is tried
	conf.UserPW = ""
	conf.OwnerPW = ""
	return conf
}

// Export implements Engine.
func (n *Native) Export(ctx context.Context, job Job) (Report, error) {
	if len(job.Pages) == 0 {
		return Report{}, ErrEmptyDocument
	}
	work, err := os.MkdirTemp(n.TempDir, "pdfsnip-export-")
	if err != nil {
		return Report{}, fmt.Errorf("create export work dir: %w", err)
	}
	defer os.RemoveAll(work)

	conf := newConfig()
	sources := map[*document.Handle]*source{}
	files := make([]string, 0, len(job.Pages))

	for i, p := range job.Pages {
		if err := ctx.Err(); err != nil {
			return Report{}, err
		}
		if p.Doc == nil {
			return Report{}, fmt.Errorf("page %d has no source document", i+1)
		}

		var single *model.Context
		switch p.Doc.Kind {
		case document.KindPDF:
			src, ok := sources[p.Doc]
			if !ok {
				src, err = openSource(p.Doc, conf)
				if err != nil {
					return Report{}, err
				}
				sources[p.Doc] = src
			}
			single, err = src.extract(p.Page, conf)
		case document.KindDjVu:
			single, err = n.rasterPage(p, conf)
		default:
			err = fmt.Errorf("%s: %w", p.Doc.Path, document.ErrUnsupportedFormat)
		}
		if err != nil {
			return Report{}, &document.DecodeError{Path: p.Doc.Path, Page: p.Page, Err: err}
		}

		if err := applyTransform(single, p); err != nil {
			return Report{}, &document.DecodeError{Path: p.Doc.Path, Page: p.Page, Err: err}
		}
		out := filepath.Join(work, fmt.Sprintf("%05d.pdf", i))
		if err := api.WriteContextFile(single, out); err != nil {
			return Report{}, fmt.Errorf("write page %d: %w", i+1, err)
		}
		files = append(files, out)
	}

	err = writeAtomic(job.Dest, func(tmp string) error {
		if len(files) == 1 {
			return copyInto(files[0], tmp)
		}
		return api.MergeCreateFile(files, tmp, false, conf)
	})
	if err != nil {
		return Report{}, err
	}
	return Report{Pages: len(files)}, nil
}

// source is one PDF working copy read for export. Extracted page objects may
// be shared with the source context, so a page used a second time is taken
// from a freshly parsed context.
type source struct {
	doc  *document.Handle
	data []byte
	ctx  *model.Context
	used map[int]bool
}

func openSource(doc *document.Handle, conf *model.Configuration) (*source, error) {
	data, err := os.ReadFile(doc.WorkingCopy)
	if err != nil {
		return nil, &document.DecodeError{Path: doc.Path, Page: -1, Err: err}
	}
	s := &source{doc: doc, data: data}
	if err := s.parse(conf); err != nil {
		return nil, err
	}
	log.Debug().Str("doc", doc.Path).Int("pages", s.ctx.PageCount).Msg("export source opened")
	return s, nil
}

func (s *source) parse(conf *model.Configuration) error {
	ctx, err := api.ReadContext(bytes.NewReader(s.data), conf)
	if err == nil {
		err = api.ValidateContext(ctx)
	}
	if err != nil {
		if isPasswordError(err) {
			return fmt.Errorf("%s: %w", s.doc.Path, document.ErrEncrypted)
		}
		return &document.DecodeError{Path: s.doc.Path, Page: -1, Err: err}
	}
	s.ctx, s.used = ctx, map[int]bool{}
	return nil
}

// extract returns a single-page context for a zero-based page.
func (s *source) extract(page int, conf *model.Configuration) (*model.Context, error) {
	if page < 0 || page >= s.ctx.PageCount {
		return nil, fmt.Errorf("page out of range (document has %d pages)", s.ctx.PageCount)
	}
	if s.used[page] {
		if err := s.parse(conf); err != nil {
			return nil, err
		}
	}
	s.used[page] = true
	single, err := pdfcpu.ExtractPages(s.ctx, []int{page + 1}, false)
	if err != nil {
		return nil, err
	}
	// The extracted page tree carries /Count but PageCount stays unset.
	if err := single.EnsurePageCount(); err != nil {
		return nil, err
	}
	return single, nil
}

// rasterPage turns a DjVu page into a one-page PDF holding its image.
func (n *Native) rasterPage(p Page, conf *model.Configuration) (*model.Context, error) {
	scale := n.DjVuScale
	if scale <= 0 {
		scale = 1
	}
	img, err := p.Doc.Decoder().Render(p.Page, scale)
	if err != nil {
		return nil, err
	}
	data, err := imagerender.EncodePNG(img)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := api.ImportImages(nil, &buf, []io.Reader{bytes.NewReader(data)}, nil, conf); err != nil {
		return nil, fmt.Errorf("import page image: %w", err)
	}
	ctx, err := api.ReadContext(bytes.NewReader(buf.Bytes()), conf)
	if err != nil {
		return nil, err
	}
	if err := api.ValidateContext(ctx); err != nil {
		return nil, err
	}
	return ctx, nil
}

// applyTransform adds the entry rotation to the page's own /Rotate and, for
// a cropped page, insets the media box. The crop is given in the displayed
// orientation, so it is permuted back by the combined quarter turns before
// being applied in unrotated user space.
func applyTransform(ctx *model.Context, p Page) error {
	d, _, inh, err := ctx.PageDict(1, false)
	if err != nil {
		return err
	}
	if d == nil || inh == nil {
		return errors.New("page dictionary missing")
	}

	total := inh.Rotate + p.Rotation
	d.Update("Rotate", types.Integer(pagelist.NormalizeRotation(total)))

	if p.Crop.IsZero() {
		return nil
	}
	box := inh.MediaBox
	if box == nil {
		return errors.New("page has no media box")
	}
	c := p.Crop.Permute(pagelist.Steps(total))
	w, h := box.Width(), box.Height()
	r := types.NewRectangle(
		box.LL.X+w*c.Left,
		box.LL.Y+h*c.Bottom,
		box.UR.X-w*c.Right,
		box.UR.Y-h*c.Top,
	)
	d.Update("MediaBox", r.Array())
	d.Delete("CropBox")
	return nil
}

func isPasswordError(err error) bool {
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "password") || strings.Contains(s, "encrypt")
}

func copyInto(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
