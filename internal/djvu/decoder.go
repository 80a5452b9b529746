// Package djvu decodes DjVu documents through the DjVuLibre command line
// tools (djvused for structure, ddjvu for rasterization).
package djvu

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/image/tiff"

	"github.com/local/pdfsnip/internal/converter"
	"github.com/local/pdfsnip/internal/document"
)

const (
	djvusedBin = "djvused"
	ddjvuBin   = "ddjvu"
)

// Opener opens DjVu documents.
type Opener struct {
	Runner  converter.Runner
	TempDir string
	Timeout time.Duration
}

// Open implements document.Opener.
func (o Opener) Open(path string) (document.Decoder, error) {
	runner := o.Runner
	if runner == nil {
		runner = converter.NewExec(o.Timeout, 1)
	}
	timeout := o.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	d := &Decoder{runner: runner, path: path, tmpDir: o.TempDir, timeout: timeout, sizes: map[int][2]float64{}}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	out, err := runner.Run(ctx, djvusedBin, "-e", "n", path)
	if err != nil {
		return nil, fmt.Errorf("count pages: %w", err)
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(out)))
	if err != nil {
		return nil, fmt.Errorf("parse page count %q: %w", strings.TrimSpace(string(out)), err)
	}
	d.pages = n
	log.Debug().Str("djvu", path).Int("pages", n).Msg("opened DjVu document")
	return d, nil
}

// Decoder renders DjVu pages. Sizes are in pixels at the page's native
// resolution.
type Decoder struct {
	runner  converter.Runner
	path    string
	tmpDir  string
	timeout time.Duration
	pages   int

	mu     sync.Mutex
	sizes  map[int][2]float64
	closed bool
}

// NumPage returns the page count.
func (d *Decoder) NumPage() int { return d.pages }

func (d *Decoder) checkPage(page int) error {
	if page < 0 || page >= d.pages {
		return fmt.Errorf("page %d out of range (document has %d pages)", page+1, d.pages)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return errors.New("document closed")
	}
	return nil
}

// PageSize returns the page size in pixels.
func (d *Decoder) PageSize(page int) (float64, float64, error) {
	if err := d.checkPage(page); err != nil {
		return 0, 0, err
	}
	d.mu.Lock()
	if s, ok := d.sizes[page]; ok {
		d.mu.Unlock()
		return s[0], s[1], nil
	}
	d.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	out, err := d.runner.Run(ctx, djvusedBin, "-e", fmt.Sprintf("select %d; size", page+1), d.path)
	if err != nil {
		return 0, 0, fmt.Errorf("size of page %d: %w", page+1, err)
	}
	w, h, err := parseSize(string(out))
	if err != nil {
		return 0, 0, fmt.Errorf("size of page %d: %w", page+1, err)
	}
	d.mu.Lock()
	d.sizes[page] = [2]float64{w, h}
	d.mu.Unlock()
	return w, h, nil
}

// EmbeddedThumbnail always reports none; ddjvu cannot extract THUM chunks.
func (d *Decoder) EmbeddedThumbnail(page int) (image.Image, error) {
	return nil, d.checkPage(page)
}

// Render rasterizes a page at scale output pixels per page pixel.
func (d *Decoder) Render(page int, scale float64) (image.Image, error) {
	if scale <= 0 {
		return nil, fmt.Errorf("invalid render scale %v", scale)
	}
	w, h, err := d.PageSize(page)
	if err != nil {
		return nil, err
	}
	ow := max(1, int(math.Round(w*scale)))
	oh := max(1, int(math.Round(h*scale)))

	dir := d.tmpDir
	if dir == "" {
		dir = os.TempDir()
	}
	out := filepath.Join(dir, fmt.Sprintf("ddjvu-%s.tiff", uuid.New().String()))
	defer os.Remove(out)

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	args := []string{
		"-format=tiff",
		fmt.Sprintf("-page=%d", page+1),
		fmt.Sprintf("-size=%dx%d", ow, oh),
		d.path, out,
	}
	if _, err := d.runner.Run(ctx, ddjvuBin, args...); err != nil {
		return nil, fmt.Errorf("render page %d: %w", page+1, err)
	}
	return decodeTIFF(out)
}

// Close marks the decoder closed. The tools hold no state between calls.
func (d *Decoder) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}

func decodeTIFF(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, err := tiff.Decode(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("decode ddjvu output: %w", err)
	}
	return img, nil
}

// parseSize reads djvused "size" output such as "width=2550 height=3300".
// A rotation of 90 or 270 swaps the dimensions.
func parseSize(out string) (float64, float64, error) {
	var w, h, rot int
	for _, field := range strings.Fields(out) {
		k, v, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			continue
		}
		switch k {
		case "width":
			w = n
		case "height":
			h = n
		case "rotation":
			rot = n
		}
	}
	if w <= 0 || h <= 0 {
		return 0, 0, fmt.Errorf("unexpected size output %q", strings.TrimSpace(out))
	}
	if rot == 90 || rot == 270 {
		w, h = h, w
	}
	return float64(w), float64(h), nil
}
