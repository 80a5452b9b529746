package pagelist

import (
	"errors"
	"fmt"
	"math"
)

// MaxCropSum bounds left+right and top+bottom when clamping.
const MaxCropSum = 0.99

// ErrInvalidCrop is returned for crop fractions outside [0,1) or whose
// opposite sides meet.
var ErrInvalidCrop = errors.New("invalid crop")

// Crop holds the fraction trimmed from each side of a page, in the frame the
// page is displayed in.
type Crop struct {
	Left   float64
	Right  float64
	Top    float64
	Bottom float64
}

// IsZero reports whether the crop trims nothing.
func (c Crop) IsZero() bool { return c == Crop{} }

// Validate rejects fractions outside [0,1) and opposite sides summing to 1 or more.
func (c Crop) Validate() error {
	for _, v := range [...]float64{c.Left, c.Right, c.Top, c.Bottom} {
		if math.IsNaN(v) || v < 0 || v >= 1 {
			return fmt.Errorf("%w: fraction %v out of [0,1)", ErrInvalidCrop, v)
		}
	}
	if c.Left+c.Right >= 1 {
		return fmt.Errorf("%w: left+right = %v", ErrInvalidCrop, c.Left+c.Right)
	}
	if c.Top+c.Bottom >= 1 {
		return fmt.Errorf("%w: top+bottom = %v", ErrInvalidCrop, c.Top+c.Bottom)
	}
	return nil
}

// Clamp forces the crop into the valid range, shrinking opposite sides
// proportionally when they overlap.
func (c Crop) Clamp() Crop {
	clamp := func(v float64) float64 {
		if math.IsNaN(v) || v < 0 {
			return 0
		}
		if v > MaxCropSum {
			return MaxCropSum
		}
		return v
	}
	c = Crop{clamp(c.Left), clamp(c.Right), clamp(c.Top), clamp(c.Bottom)}
	if s := c.Left + c.Right; s > MaxCropSum {
		c.Left, c.Right = c.Left*MaxCropSum/s, c.Right*MaxCropSum/s
	}
	if s := c.Top + c.Bottom; s > MaxCropSum {
		c.Top, c.Bottom = c.Top*MaxCropSum/s, c.Bottom*MaxCropSum/s
	}
	return c
}

// Permute maps a crop given in a frame rotated clockwise by steps×90° back
// to the unrotated frame. Sides cycle in clockwise order: left, top, right,
// bottom. Negative steps rotate the other way.
func (c Crop) Permute(steps int) Crop {
	steps = ((steps % 4) + 4) % 4
	if steps == 0 {
		return c
	}
	old := [4]float64{c.Left, c.Top, c.Right, c.Bottom}
	var out [4]float64
	for i := range out {
		out[i] = old[(i+steps)%4]
	}
	return Crop{Left: out[0], Top: out[1], Right: out[2], Bottom: out[3]}
}

// NormalizeRotation rounds deg to the nearest multiple of 90 in [0,360).
func NormalizeRotation(deg int) int {
	d := ((deg % 360) + 360) % 360
	return ((d + 45) / 90 * 90) % 360
}

// Steps returns the number of clockwise quarter turns deg represents.
func Steps(deg int) int { return NormalizeRotation(deg) / 90 }
