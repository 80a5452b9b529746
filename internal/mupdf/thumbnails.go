package mupdf

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/local/pdfsnip/internal/imagerender"
)

// thumbReader looks up /Thumb streams in a pdfcpu context.
type thumbReader struct {
	mu  sync.Mutex
	ctx *model.Context
}

func newThumbReader(path string) (*thumbReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	ctx, err := api.ReadContext(f, conf)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if err := api.ValidateContext(ctx); err != nil {
		return nil, fmt.Errorf("validate %s: %w", path, err)
	}
	return &thumbReader{ctx: ctx}, nil
}

// Thumbnail returns the thumbnail of a 1-based page, or nil. The image is
// turned by the page's /Rotate so it matches a rendered page.
func (t *thumbReader) Thumbnail(pageNr int) (image.Image, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	d, _, inh, err := t.ctx.PageDict(pageNr, false)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, nil
	}
	img, err := t.thumbImage(d, pageNr)
	if err != nil || img == nil {
		return nil, err
	}
	if inh != nil {
		img = imagerender.Rotate(img, inh.Rotate)
	}
	return img, nil
}

func (t *thumbReader) thumbImage(d types.Dict, pageNr int) (image.Image, error) {
	o, found := d.Find("Thumb")
	if !found || o == nil {
		return nil, nil
	}
	sd, _, err := t.ctx.DereferenceStreamDict(o)
	if err != nil || sd == nil {
		return nil, err
	}

	for _, f := range sd.FilterPipeline {
		if f.Name == "DCTDecode" {
			return jpeg.Decode(bytes.NewReader(sd.Raw))
		}
	}
	if err := sd.Decode(); err != nil {
		return nil, fmt.Errorf("decode thumbnail of page %d: %w", pageNr, err)
	}

	w, h := sd.IntEntry("Width"), sd.IntEntry("Height")
	if w == nil || h == nil {
		return nil, nil
	}
	bpc := 8
	if v := sd.IntEntry("BitsPerComponent"); v != nil {
		bpc = *v
	}
	cs := ""
	if v := sd.NameEntry("ColorSpace"); v != nil {
		cs = *v
	}
	return rasterThumb(*w, *h, bpc, cs, sd.Content), nil
}

// rasterThumb builds an image from raw 8-bit DeviceRGB or DeviceGray samples.
// Other layouts are not decoded and yield nil.
func rasterThumb(w, h, bpc int, colorSpace string, data []byte) image.Image {
	if w <= 0 || h <= 0 || bpc != 8 {
		return nil
	}
	switch colorSpace {
	case "DeviceRGB":
		if len(data) < w*h*3 {
			return nil
		}
		img := image.NewRGBA(image.Rect(0, 0, w, h))
		for i := 0; i < w*h; i++ {
			img.Pix[i*4] = data[i*3]
			img.Pix[i*4+1] = data[i*3+1]
			img.Pix[i*4+2] = data[i*3+2]
			img.Pix[i*4+3] = 0xFF
		}
		return img
	case "DeviceGray":
		if len(data) < w*h {
			return nil
		}
		img := image.NewGray(image.Rect(0, 0, w, h))
		copy(img.Pix, data[:w*h])
		return img
	}
	return nil
}
