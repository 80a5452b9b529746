package imagerender

import (
	"image"
	"image/color"
	"testing"

	"github.com/local/pdfsnip/internal/pagelist"
)

// gradient gives every pixel a distinct colour so orientation mistakes show up.
func gradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 10), G: uint8(y * 10), B: 0x80, A: 0xFF})
		}
	}
	return img
}

func samePixels(t *testing.T, a, b image.Image) {
	t.Helper()
	if a.Bounds().Size() != b.Bounds().Size() {
		t.Fatalf("size %v != %v", a.Bounds().Size(), b.Bounds().Size())
	}
	ab, bb := a.Bounds(), b.Bounds()
	for y := 0; y < ab.Dy(); y++ {
		for x := 0; x < ab.Dx(); x++ {
			ca := color.NRGBAModel.Convert(a.At(ab.Min.X+x, ab.Min.Y+y))
			cb := color.NRGBAModel.Convert(b.At(bb.Min.X+x, bb.Min.Y+y))
			if ca != cb {
				t.Fatalf("pixel (%d,%d): %v != %v", x, y, ca, cb)
			}
		}
	}
}

func TestFitBox(t *testing.T) {
	cases := []struct {
		w, h         float64
		box          int
		wantW, wantH int
	}{
		{612, 792, 200, 154, 200},
		{792, 612, 200, 200, 154},
		{100, 100, 64, 64, 64},
		{0, 10, 50, 50, 50},
	}
	for _, c := range cases {
		w, h := FitBox(c.w, c.h, c.box)
		if w != c.wantW || h != c.wantH {
			t.Errorf("FitBox(%v,%v,%d) = %dx%d, want %dx%d", c.w, c.h, c.box, w, h, c.wantW, c.wantH)
		}
	}
}

func TestFinishIdentity(t *testing.T) {
	src := gradient(12, 20)
	samePixels(t, Finish(src, 0, pagelist.Crop{}), Decorate(src))
	samePixels(t, Finish(src, 360, pagelist.Crop{}), Decorate(src))
}

func TestZeroCropKeepsSize(t *testing.T) {
	src := gradient(12, 20)
	if got := Crop(src, pagelist.Crop{}).Bounds().Size(); got != src.Bounds().Size() {
		t.Fatalf("zero crop changed size to %v", got)
	}
}

func TestFourQuarterTurnsRoundTrip(t *testing.T) {
	src := gradient(7, 11)
	img := image.Image(src)
	for i := 0; i < 4; i++ {
		img = Rotate(img, 90)
	}
	samePixels(t, img, src)

	if got := Rotate(src, 90).Bounds().Size(); got != image.Pt(11, 7) {
		t.Fatalf("quarter turn size = %v", got)
	}
}

func TestRotateIsClockwise(t *testing.T) {
	src := gradient(4, 6)
	rot := Rotate(src, 90)
	// the source's bottom-left corner ends up top-left
	want := src.At(0, 5)
	if got := rot.At(0, 0); color.NRGBAModel.Convert(got) != want {
		t.Fatalf("top-left after +90 = %v, want %v", got, want)
	}
	samePixels(t, Rotate(src, -90), Rotate(src, 270))
}

func TestCropAppliesInFinalOrientation(t *testing.T) {
	red := color.NRGBA{R: 0xFF, A: 0xFF}
	src := image.NewNRGBA(image.Rect(0, 0, 10, 20))
	for y := 0; y < 20; y++ {
		for x := 0; x < 10; x++ {
			c := color.NRGBA{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF}
			if y >= 18 {
				c = red
			}
			src.SetNRGBA(x, y, c)
		}
	}
	// after a clockwise quarter turn the red source bottom is on the left
	out := Crop(Rotate(src, 90), pagelist.Crop{Left: 0.1})
	if got := out.Bounds().Size(); got != image.Pt(18, 10) {
		t.Fatalf("cropped size = %v, want 18x10", got)
	}
	b := out.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if color.NRGBAModel.Convert(out.At(x, y)) == red {
				t.Fatalf("red pixel left at (%d,%d): crop removed the wrong side", x, y)
			}
		}
	}
}

func TestDecorate(t *testing.T) {
	src := gradient(5, 4)
	out := Decorate(src)
	if got := out.Bounds().Size(); got != image.Pt(8, 7) {
		t.Fatalf("decorated size = %v", got)
	}
	if out.NRGBAAt(0, 0) != borderColor {
		t.Errorf("corner = %v, want border", out.NRGBAAt(0, 0))
	}
	if out.NRGBAAt(7, 6) != shadowColor {
		t.Errorf("bottom-right = %v, want shadow", out.NRGBAAt(7, 6))
	}
	if c := out.NRGBAAt(7, 0); c.A != 0 || c != backgroundColor {
		t.Errorf("top-right = %v, want transparent background", c)
	}
	if out.NRGBAAt(1, 1) != src.NRGBAAt(0, 0) {
		t.Errorf("image not placed at (1,1)")
	}
}

func TestPlaceholderAndPNG(t *testing.T) {
	p := Placeholder(32)
	if p.Bounds().Size() != image.Pt(32, 32) {
		t.Fatalf("placeholder size = %v", p.Bounds().Size())
	}
	data, err := EncodePNG(p)
	if err != nil {
		t.Fatal(err)
	}
	back, err := DecodePNG(data)
	if err != nil {
		t.Fatal(err)
	}
	samePixels(t, back, p)
}
