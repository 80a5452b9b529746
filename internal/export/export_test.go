package export

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/local/pdfsnip/internal/converter"
	"github.com/local/pdfsnip/internal/document"
	"github.com/local/pdfsnip/internal/pagelist"
)

type stubDecoder struct{ pages int }

func (d stubDecoder) NumPage() int { return d.pages }
func (d stubDecoder) PageSize(int) (float64, float64, error) { return 40, 60, nil }
func (d stubDecoder) EmbeddedThumbnail(int) (image.Image, error) { return nil, nil }
func (d stubDecoder) Render(int, float64) (image.Image, error) {
	img := image.NewRGBA(image.Rect(0, 0, 40, 60))
	for i := range img.Pix {
		img.Pix[i] = 0xC0
	}
	return img, nil
}
func (d stubDecoder) Close() error { return nil }

func pngOf(t *testing.T, w, h int) io.Reader {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 0x40, A: 0xFF})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return &buf
}

// fixturePDF writes a PDF with one page per size and returns its handle.
func fixturePDF(t *testing.T, name string, sizes ...image.Point) *document.Handle {
	t.Helper()
	var imgs []io.Reader
	for _, s := range sizes {
		imgs = append(imgs, pngOf(t, s.X, s.Y))
	}
	path := filepath.Join(t.TempDir(), name+".pdf")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := api.ImportImages(nil, f, imgs, nil, newConfig()); err != nil {
		t.Fatalf("ImportImages: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	return document.NewHandle(path, name, document.KindPDF, stubDecoder{pages: len(sizes)})
}

type pageInfo struct {
	rotate int
	box    *types.Rectangle
}

func readPages(t *testing.T, path string) []pageInfo {
	t.Helper()
	ctx, err := api.ReadContextFile(path)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	var out []pageInfo
	for i := 1; i <= ctx.PageCount; i++ {
		_, _, inh, err := ctx.PageDict(i, false)
		if err != nil {
			t.Fatal(err)
		}
		box := inh.CropBox
		if box == nil {
			box = inh.MediaBox
		}
		out = append(out, pageInfo{rotate: inh.Rotate, box: box})
	}
	return out
}

func near(a, b float64) bool { return math.Abs(a-b) < 0.01 }

func TestEmptyJob(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "out.pdf")
	for _, eng := range []Engine{&Native{}, &ExternalTool{}} {
		_, err := Run(context.Background(), eng, Job{Dest: dest})
		if !errors.Is(err, ErrEmptyDocument) {
			t.Fatalf("%s: got %v, want ErrEmptyDocument", eng.Name(), err)
		}
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Fatal("empty export wrote a file")
	}
}

func TestNativeOrderRotationAndCrop(t *testing.T) {
	a := fixturePDF(t, "a", image.Pt(200, 100), image.Pt(100, 200))
	b := fixturePDF(t, "b", image.Pt(150, 150))
	src := readPages(t, a.WorkingCopy)
	w, h := src[0].box.Width(), src[0].box.Height()

	dest := filepath.Join(t.TempDir(), "out.pdf")
	job := Job{
		Dest:      dest,
		Documents: []*document.Handle{a, b},
		Pages: []Page{
			{Doc: b, Page: 0},
			{Doc: a, Page: 0, Rotation: 90, Crop: pagelist.Crop{Left: 0.1}},
			{Doc: a, Page: 1, Rotation: -90},
			{Doc: a, Page: 0},
		},
	}
	rep, err := Run(context.Background(), &Native{TempDir: t.TempDir()}, job)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if rep.Pages != 4 || rep.DroppedTransforms != 0 {
		t.Fatalf("report = %+v", rep)
	}

	out := readPages(t, dest)
	if len(out) != 4 {
		t.Fatalf("output has %d pages, want 4", len(out))
	}
	if out[0].rotate != 0 || !near(out[0].box.Width(), out[0].box.Height()) {
		t.Errorf("page 1 should be the square page of b, got %+v", out[0].box)
	}

	// turned clockwise, the displayed left edge is the source bottom edge
	if out[1].rotate != 90 {
		t.Errorf("page 2 rotate = %d, want 90", out[1].rotate)
	}
	box := out[1].box
	orig := src[0].box
	if !near(box.LL.Y, orig.LL.Y+0.1*h) || !near(box.UR.Y, orig.UR.Y) ||
		!near(box.LL.X, orig.LL.X) || !near(box.UR.X, orig.UR.X) {
		t.Errorf("page 2 box = %v, want bottom inset by %v", box, 0.1*h)
	}
	if !near(box.Width(), w) {
		t.Errorf("page 2 width changed: %v", box.Width())
	}

	if out[2].rotate != 270 {
		t.Errorf("page 3 rotate = %d, want 270", out[2].rotate)
	}
	// the same source page exported twice keeps its own transform
	if out[3].rotate != 0 || !near(out[3].box.Height(), h) {
		t.Errorf("page 4 = rotate %d box %v, want untouched", out[3].rotate, out[3].box)
	}
}

// withCropBox rewrites page 1 of h's file with a visible region half the
// media box wide.
func withCropBox(t *testing.T, h *document.Handle) *types.Rectangle {
	t.Helper()
	ctx, err := api.ReadContextFile(h.WorkingCopy)
	if err != nil {
		t.Fatal(err)
	}
	d, _, inh, err := ctx.PageDict(1, false)
	if err != nil {
		t.Fatal(err)
	}
	m := inh.MediaBox
	d.Update("CropBox", types.NewRectangle(m.LL.X, m.LL.Y, m.LL.X+m.Width()/2, m.UR.Y).Array())
	if err := api.WriteContextFile(ctx, h.WorkingCopy); err != nil {
		t.Fatal(err)
	}
	return m
}

func TestNativeCropInsetsMediaBox(t *testing.T) {
	a := fixturePDF(t, "a", image.Pt(200, 100))
	media := withCropBox(t, a)

	dest := filepath.Join(t.TempDir(), "out.pdf")
	_, err := Run(context.Background(), &Native{TempDir: t.TempDir()}, Job{
		Dest:  dest,
		Pages: []Page{{Doc: a, Page: 0, Crop: pagelist.Crop{Left: 0.25}}},
	})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	out := readPages(t, dest)
	if len(out) != 1 {
		t.Fatalf("output has %d pages, want 1", len(out))
	}
	box := out[0].box
	if !near(box.LL.X, media.LL.X+0.25*media.Width()) || !near(box.UR.X, media.UR.X) {
		t.Errorf("box = %v, want left quarter of media box %v removed", box, media)
	}
}

func TestNativeDjVuPageBecomesImagePage(t *testing.T) {
	d := document.NewHandle("/scans/s.djvu", "s", document.KindDjVu, stubDecoder{pages: 2})
	dest := filepath.Join(t.TempDir(), "out.pdf")
	_, err := Run(context.Background(), &Native{TempDir: t.TempDir()}, Job{
		Dest:  dest,
		Pages: []Page{{Doc: d, Page: 1, Rotation: 180}},
	})
	if err != nil {
		t.Fatal(err)
	}
	out := readPages(t, dest)
	if len(out) != 1 || out[0].rotate != 180 {
		t.Fatalf("unexpected output %+v", out)
	}
}

func TestNativeErrors(t *testing.T) {
	a := fixturePDF(t, "a", image.Pt(50, 50))

	_, err := Run(context.Background(), &Native{}, Job{
		Dest:  filepath.Join(t.TempDir(), "missing-dir", "out.pdf"),
		Pages: []Page{{Doc: a, Page: 0}},
	})
	var ioe *IOError
	if !errors.As(err, &ioe) {
		t.Fatalf("unwritable destination: got %v, want IOError", err)
	}

	dest := filepath.Join(t.TempDir(), "out.pdf")
	_, err = Run(context.Background(), &Native{}, Job{Dest: dest, Pages: []Page{{Doc: a, Page: 5}}})
	var de *document.DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("page out of range: got %v, want DecodeError", err)
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Fatal("failed export left a destination file")
	}
	entries, _ := os.ReadDir(filepath.Dir(dest))
	if len(entries) != 0 {
		t.Fatalf("temp files left behind: %d", len(entries))
	}
}

type fakeRunner struct {
	name string
	args []string
	err  error
}

func (r *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	r.name, r.args = name, args
	if r.err != nil {
		return nil, r.err
	}
	// the tool writes the file named after "output"
	return nil, os.WriteFile(args[len(args)-1], []byte("%PDF-1.4\n"), 0o644)
}

func TestExternalToolCommandLine(t *testing.T) {
	a := document.NewHandle("/docs/a.pdf", "a", document.KindPDF, stubDecoder{pages: 5})
	r := &fakeRunner{}
	dest := filepath.Join(t.TempDir(), "out.pdf")
	rep, err := Run(context.Background(), &ExternalTool{Runner: r}, Job{
		Dest:      dest,
		Documents: []*document.Handle{a},
		Pages: []Page{
			{Doc: a, Page: 4},
			{Doc: a, Page: 0, Rotation: 90},
			{Doc: a, Page: 2, Crop: pagelist.Crop{Top: 0.2}},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	got := strings.Join(r.args[:len(r.args)-1], " ")
	if r.name != "pdftk" || got != "/docs/a.pdf cat 5 1 3 output" {
		t.Fatalf("ran %s %q", r.name, got)
	}
	if rep.DroppedTransforms != 2 || rep.Pages != 3 {
		t.Fatalf("report = %+v", rep)
	}
	if _, err := os.Stat(dest); err != nil {
		t.Fatalf("destination missing: %v", err)
	}
}

func TestExternalToolRejectsMultipleDocuments(t *testing.T) {
	a := document.NewHandle("/docs/a.pdf", "a", document.KindPDF, stubDecoder{pages: 1})
	b := document.NewHandle("/docs/b.pdf", "b", document.KindPDF, stubDecoder{pages: 1})
	r := &fakeRunner{}
	_, err := Run(context.Background(), &ExternalTool{Runner: r}, Job{
		Dest:      filepath.Join(t.TempDir(), "out.pdf"),
		Documents: []*document.Handle{a, b},
		Pages:     []Page{{Doc: a, Page: 0}},
	})
	if !errors.Is(err, ErrUnsupportedOperation) {
		t.Fatalf("got %v, want ErrUnsupportedOperation", err)
	}
	if r.name != "" {
		t.Fatal("tool ran despite the unsupported job")
	}

	d := document.NewHandle("/docs/s.djvu", "s", document.KindDjVu, stubDecoder{pages: 1})
	_, err = Run(context.Background(), &ExternalTool{Runner: r}, Job{
		Dest:  filepath.Join(t.TempDir(), "out.pdf"),
		Pages: []Page{{Doc: d, Page: 0}},
	})
	if !errors.Is(err, ErrUnsupportedOperation) {
		t.Fatalf("djvu source: got %v", err)
	}
}

func TestExternalToolPasswordError(t *testing.T) {
	a := document.NewHandle("/docs/a.pdf", "a", document.KindPDF, stubDecoder{pages: 1})
	r := &fakeRunner{err: converter.ErrProtected}
	_, err := Run(context.Background(), &ExternalTool{Runner: r}, Job{
		Dest:  filepath.Join(t.TempDir(), "out.pdf"),
		Pages: []Page{{Doc: a, Page: 0}},
	})
	if !errors.Is(err, document.ErrEncrypted) {
		t.Fatalf("got %v, want ErrEncrypted", err)
	}
}

type recordingUploader struct{ local, ref string }

func (u *recordingUploader) Handles(ref string) bool { return strings.HasPrefix(ref, "s3://") }
func (u *recordingUploader) Upload(_ context.Context, local, ref string) error {
	if _, err := os.Stat(local); err != nil {
		return err
	}
	u.local, u.ref = local, ref
	return nil
}

func TestRemoteDestinationIsUploaded(t *testing.T) {
	a := document.NewHandle("/docs/a.pdf", "a", document.KindPDF, stubDecoder{pages: 1})
	up := &recordingUploader{}
	rep, err := Run(context.Background(), &ExternalTool{Runner: &fakeRunner{}}, Job{
		Dest:  "s3://bucket/out/final.pdf",
		Pages: []Page{{Doc: a, Page: 0}},
	}, up)
	if err != nil {
		t.Fatal(err)
	}
	if up.ref != "s3://bucket/out/final.pdf" || rep.Dest != up.ref {
		t.Fatalf("uploaded to %q, report dest %q", up.ref, rep.Dest)
	}
}
