package renderer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/local/pdfsnip/internal/document"
	"github.com/local/pdfsnip/internal/imagerender"
	"github.com/local/pdfsnip/internal/metrics"
	"github.com/local/pdfsnip/internal/pagelist"
)

// ErrRenderTimeout is wrapped in the DecodeError of a render that ran past Options.Timeout.
var ErrRenderTimeout = errors.New("render timed out")

var errStopping = errors.New("renderer stopping")

// cacheNamespace scopes thumbnail cache keys.
var cacheNamespace = uuid.MustParse("6f1c2a3e-8d4b-4c57-9a0e-2f6d5b1e7c90")

type raster struct {
	img  image.Image
	path string
	err  error
}

// render produces the decorated thumbnail for e. It never fails: any error
// yields a decorated blank placeholder.
func (w *Worker) render(e *pagelist.Entry, opts Options) image.Image {
	start := time.Now()
	rot := e.Rotation()
	crop := e.Crop()
	kind := "unknown"
	if e.Doc != nil {
		kind = e.Doc.Kind.String()
	}

	key := ""
	if w.cache != nil && e.Doc != nil {
		key = cacheKey(e, rot, crop, opts)
		if img, ok := w.cache.Get(context.Background(), key); ok {
			metrics.IncCache("hit")
			metrics.ObserveRender("cache", kind, time.Since(start))
			return img
		}
		metrics.IncCache("miss")
	}

	r := w.rasterizeBounded(e, opts)
	if r.err != nil {
		if !errors.Is(r.err, errStopping) {
			ev := log.Error().Err(r.err).Int("page", e.Page+1)
			if e.Doc != nil {
				ev = ev.Str("doc", e.Doc.Path)
			}
			ev.Msg("thumbnail render failed, using placeholder")
		}
		metrics.ObserveRender("placeholder", kind, time.Since(start))
		return imagerender.Decorate(imagerender.Placeholder(opts.ThumbSize))
	}

	out := imagerender.Finish(r.img, rot, crop)
	metrics.ObserveRender(r.path, kind, time.Since(start))
	if key != "" {
		w.cache.Put(context.Background(), key, out)
	}
	return out
}

// rasterizeBounded runs rasterize under the configured timeout. A render
// that outlives the timeout keeps running in the background; its result is
// dropped. Its document is then treated as hung: later pages of it fail at
// once instead of queueing behind the stuck decoder.
func (w *Worker) rasterizeBounded(e *pagelist.Entry, opts Options) raster {
	if opts.Timeout <= 0 {
		return rasterize(e, opts)
	}
	if e.Doc != nil && w.timedOut(e.Doc) {
		return raster{err: decodeErr(e, fmt.Errorf("%w earlier in this document", ErrRenderTimeout))}
	}
	ch := make(chan raster, 1)
	go func() { ch <- rasterize(e, opts) }()

	timer := time.NewTimer(opts.Timeout)
	defer timer.Stop()
	select {
	case r := <-ch:
		return r
	case <-timer.C:
		if e.Doc != nil {
			w.markTimedOut(e.Doc)
		}
		return raster{err: decodeErr(e, fmt.Errorf("%w after %v", ErrRenderTimeout, opts.Timeout))}
	case <-w.stop:
		return raster{err: errStopping}
	}
}

// rasterize returns the undecorated page image at the thumbnail size and
// which path produced it (embedded or raster).
func rasterize(e *pagelist.Entry, opts Options) (r raster) {
	defer func() {
		if p := recover(); p != nil {
			r = raster{err: decodeErr(e, fmt.Errorf("decoder panic: %v", p))}
		}
	}()

	if e.Doc == nil || e.Doc.Decoder() == nil {
		return raster{err: decodeErr(e, errors.New("entry has no document"))}
	}
	dec := e.Doc.Decoder()
	if e.Page < 0 || e.Page >= dec.NumPage() {
		return raster{err: decodeErr(e, fmt.Errorf("page out of range (document has %d pages)", dec.NumPage()))}
	}
	box := opts.ThumbSize

	if opts.PreferEmbedded {
		thumb, err := dec.EmbeddedThumbnail(e.Page)
		if err != nil {
			log.Debug().Err(err).Str("doc", e.Doc.Path).Int("page", e.Page+1).Msg("embedded thumbnail unreadable, rasterizing")
		} else if thumb != nil && !thumb.Bounds().Empty() {
			return raster{img: imagerender.ScaleToBox(thumb, box), path: "embedded"}
		}
	}

	pw, ph, err := dec.PageSize(e.Page)
	if err != nil {
		return raster{err: decodeErr(e, err)}
	}
	if pw <= 0 || ph <= 0 {
		return raster{err: decodeErr(e, fmt.Errorf("degenerate page size %vx%v", pw, ph))}
	}
	scale := float64(box) / math.Max(pw, ph)
	tw, th := imagerender.FitBox(pw, ph, box)

	factor := 1
	if opts.Antialias && opts.AntialiasFactor > 1 {
		factor = opts.AntialiasFactor
	}
	img, err := dec.Render(e.Page, scale*float64(factor))
	if err != nil {
		return raster{err: decodeErr(e, err)}
	}
	if factor > 1 {
		img = imagerender.Downsample(img, tw, th)
	}
	return raster{img: img, path: "raster"}
}

func decodeErr(e *pagelist.Entry, err error) error {
	path := ""
	if e.Doc != nil {
		path = e.Doc.Path
	}
	return &document.DecodeError{Path: path, Page: e.Page, Err: err}
}

// cacheKey identifies a finished thumbnail: document identity, page and every
// input that changes its pixels.
func cacheKey(e *pagelist.Entry, rot int, crop pagelist.Crop, opts Options) string {
	raw := fmt.Sprintf("%s|%d|%s|%d|%d|%g,%g,%g,%g|%d|%t|%t|%d",
		e.Doc.Path, e.Doc.ModTime.UnixNano(), e.Doc.Kind, e.Page,
		pagelist.NormalizeRotation(rot), crop.Left, crop.Right, crop.Top, crop.Bottom,
		opts.ThumbSize, opts.PreferEmbedded, opts.Antialias, opts.AntialiasFactor)
	return uuid.NewSHA1(cacheNamespace, []byte(raw)).String()
}
