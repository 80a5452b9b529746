package mupdf

import (
	"bytes"
	"image"
	"image/png"
	"io"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

func TestRasterThumb(t *testing.T) {
	rgb := []byte{
		255, 0, 0, 0, 255, 0,
		0, 0, 255, 10, 20, 30,
	}
	img := rasterThumb(2, 2, 8, "DeviceRGB", rgb)
	if img == nil {
		t.Fatal("expected an RGB image")
	}
	r, g, b, a := img.At(1, 1).RGBA()
	if r>>8 != 10 || g>>8 != 20 || b>>8 != 30 || a>>8 != 255 {
		t.Fatalf("pixel (1,1) = %d,%d,%d,%d", r>>8, g>>8, b>>8, a>>8)
	}

	gray := rasterThumb(3, 1, 8, "DeviceGray", []byte{0, 128, 255})
	if g, ok := gray.(*image.Gray); !ok || g.GrayAt(1, 0).Y != 128 {
		t.Fatalf("unexpected gray thumbnail %#v", gray)
	}

	cases := []struct {
		name string
		w, h int
		bpc  int
		cs   string
		data []byte
	}{
		{"short data", 2, 2, 8, "DeviceRGB", []byte{1, 2, 3}},
		{"4 bit", 2, 2, 4, "DeviceGray", make([]byte, 4)},
		{"cmyk", 1, 1, 8, "DeviceCMYK", make([]byte, 4)},
		{"empty", 0, 5, 8, "DeviceGray", nil},
	}
	for _, c := range cases {
		if img := rasterThumb(c.w, c.h, c.bpc, c.cs, c.data); img != nil {
			t.Errorf("%s: expected nil image", c.name)
		}
	}
}

// thumbFixture returns a one-page context whose page carries a 3x1 gray
// thumbnail and the given /Rotate.
func thumbFixture(t *testing.T, rotate int) *model.Context {
	t.Helper()
	var page bytes.Buffer
	if err := png.Encode(&page, image.NewGray(image.Rect(0, 0, 30, 10))); err != nil {
		t.Fatal(err)
	}
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	var buf bytes.Buffer
	if err := api.ImportImages(nil, &buf, []io.Reader{&page}, nil, conf); err != nil {
		t.Fatalf("ImportImages: %v", err)
	}
	ctx, err := api.ReadContext(bytes.NewReader(buf.Bytes()), conf)
	if err != nil {
		t.Fatal(err)
	}
	if err := api.ValidateContext(ctx); err != nil {
		t.Fatal(err)
	}

	d, _, _, err := ctx.PageDict(1, false)
	if err != nil {
		t.Fatal(err)
	}
	thumb := types.StreamDict{
		Dict: types.Dict{
			"Type":             types.Name("XObject"),
			"Subtype":          types.Name("Image"),
			"Width":            types.Integer(3),
			"Height":           types.Integer(1),
			"BitsPerComponent": types.Integer(8),
			"ColorSpace":       types.Name("DeviceGray"),
		},
		Content: []byte{10, 20, 30},
	}
	ref, err := ctx.IndRefForNewObject(thumb)
	if err != nil {
		t.Fatal(err)
	}
	d.Update("Thumb", *ref)
	if rotate != 0 {
		d.Update("Rotate", types.Integer(rotate))
	}
	return ctx
}

func TestThumbnailFollowsPageRotation(t *testing.T) {
	cases := []struct {
		rotate int
		size   image.Point
		first  image.Point // where the thumbnail's first sample lands
	}{
		{0, image.Pt(3, 1), image.Pt(0, 0)},
		{90, image.Pt(1, 3), image.Pt(0, 0)},
		{180, image.Pt(3, 1), image.Pt(2, 0)},
		{270, image.Pt(1, 3), image.Pt(0, 2)},
	}
	for _, c := range cases {
		tr := &thumbReader{ctx: thumbFixture(t, c.rotate)}
		img, err := tr.Thumbnail(1)
		if err != nil {
			t.Fatalf("rotate %d: %v", c.rotate, err)
		}
		if img == nil {
			t.Fatalf("rotate %d: no thumbnail", c.rotate)
		}
		if got := img.Bounds().Size(); got != c.size {
			t.Errorf("rotate %d: size = %v, want %v", c.rotate, got, c.size)
		}
		b := img.Bounds()
		if r, _, _, _ := img.At(b.Min.X+c.first.X, b.Min.Y+c.first.Y).RGBA(); r>>8 != 10 {
			t.Errorf("rotate %d: first sample not at %v (got %d)", c.rotate, c.first, r>>8)
		}
	}
}

func TestThumbnailMissing(t *testing.T) {
	ctx := thumbFixture(t, 0)
	d, _, _, err := ctx.PageDict(1, false)
	if err != nil {
		t.Fatal(err)
	}
	d.Delete("Thumb")
	img, err := (&thumbReader{ctx: ctx}).Thumbnail(1)
	if err != nil || img != nil {
		t.Fatalf("got %v, %v, want no thumbnail", img, err)
	}
}
