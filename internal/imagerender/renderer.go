package imagerender

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"

	"github.com/local/pdfsnip/internal/pagelist"
)

var (
	shadowColor     = color.NRGBA{R: 0xA0, G: 0xA0, B: 0x90, A: 0xFF}
	borderColor     = color.NRGBA{R: 0x40, G: 0x40, B: 0x40, A: 0xFF}
	backgroundColor = color.NRGBA{}
)

// FitBox returns the size of a w×h image scaled so its longer side equals box.
func FitBox(w, h float64, box int) (int, int) {
	if w <= 0 || h <= 0 || box <= 0 {
		return box, box
	}
	switch {
	case h > w:
		return max(1, int(float64(box)*w/h)), box
	case w > h:
		return box, max(1, int(float64(box)*h/w))
	default:
		return box, box
	}
}

// ScaleToBox rescales img so its longer side equals box, preserving aspect ratio.
func ScaleToBox(img image.Image, box int) image.Image {
	b := img.Bounds()
	w, h := FitBox(float64(b.Dx()), float64(b.Dy()), box)
	if w == b.Dx() && h == b.Dy() {
		return img
	}
	return imaging.Resize(img, w, h, imaging.Linear)
}

// Downsample shrinks a supersampled render back to w×h with bilinear filtering.
func Downsample(img image.Image, w, h int) image.Image {
	if w <= 0 || h <= 0 {
		return img
	}
	b := img.Bounds()
	if b.Dx() == w && b.Dy() == h {
		return img
	}
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// Rotate turns img clockwise by deg, rounded to a quarter turn.
func Rotate(img image.Image, deg int) image.Image {
	switch pagelist.NormalizeRotation(deg) {
	case 90:
		return imaging.Rotate270(img)
	case 180:
		return imaging.Rotate180(img)
	case 270:
		return imaging.Rotate90(img)
	default:
		return img
	}
}

// Crop trims the given fractions of each side, measured on img as displayed.
func Crop(img image.Image, c pagelist.Crop) image.Image {
	if c.IsZero() {
		return img
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	x0 := int(c.Left * float64(w))
	y0 := int(c.Top * float64(h))
	cw := max(1, int((1-c.Left-c.Right)*float64(w)))
	ch := max(1, int((1-c.Top-c.Bottom)*float64(h)))
	r := image.Rect(b.Min.X+x0, b.Min.Y+y0, b.Min.X+x0+cw, b.Min.Y+y0+ch).Intersect(b)
	return imaging.Crop(img, r)
}

// Decorate frames img with a 1px dark border and a drop shadow offset by one
// pixel down and right. The result is 3px larger than img in each dimension.
func Decorate(img image.Image) *image.NRGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := image.NewNRGBA(image.Rect(0, 0, w+3, h+3))
	draw.Draw(out, out.Bounds(), image.NewUniform(backgroundColor), image.Point{}, draw.Src)
	draw.Draw(out, image.Rect(1, 1, w+3, h+3), image.NewUniform(shadowColor), image.Point{}, draw.Src)
	draw.Draw(out, image.Rect(0, 0, w+2, h+2), image.NewUniform(borderColor), image.Point{}, draw.Src)
	draw.Draw(out, image.Rect(1, 1, w+1, h+1), img, b.Min, draw.Src)
	return out
}

// Placeholder is the blank page shown for a page that failed to render.
func Placeholder(box int) image.Image {
	if box <= 0 {
		box = 1
	}
	return imaging.New(box, box, color.White)
}

// Finish applies the display rotation and crop, then decorates the thumbnail.
func Finish(img image.Image, rotation int, crop pagelist.Crop) *image.NRGBA {
	return Decorate(Crop(Rotate(img, rotation), crop))
}

// EncodePNG serializes a thumbnail for the cache and for file output.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodePNG is the inverse of EncodePNG.
func DecodePNG(data []byte) (image.Image, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode PNG: %w", err)
	}
	return img, nil
}
