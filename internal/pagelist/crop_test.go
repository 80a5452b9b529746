package pagelist

import (
	"errors"
	"math"
	"testing"
)

func TestNormalizeRotation(t *testing.T) {
	cases := []struct{ in, want int }{
		{0, 0}, {90, 90}, {180, 180}, {270, 270}, {360, 0},
		{-90, 270}, {-180, 180}, {-270, 90}, {450, 90}, {-450, 270},
		{44, 0}, {45, 90}, {134, 90}, {315, 0}, {720, 0},
	}
	for _, c := range cases {
		if got := NormalizeRotation(c.in); got != c.want {
			t.Errorf("NormalizeRotation(%d) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestCropValidate(t *testing.T) {
	cases := []struct {
		name string
		c    Crop
		ok   bool
	}{
		{"zero", Crop{}, true},
		{"typical", Crop{0.1, 0.2, 0.3, 0.4}, true},
		{"left+right at 1", Crop{Left: 0.5, Right: 0.5}, false},
		{"top+bottom over 1", Crop{Top: 0.7, Bottom: 0.6}, false},
		{"negative", Crop{Left: -0.1}, false},
		{"one", Crop{Bottom: 1}, false},
		{"nan", Crop{Top: math.NaN()}, false},
	}
	for _, c := range cases {
		err := c.c.Validate()
		if c.ok && err != nil {
			t.Errorf("%s: unexpected error %v", c.name, err)
		}
		if !c.ok && !errors.Is(err, ErrInvalidCrop) {
			t.Errorf("%s: got %v, want ErrInvalidCrop", c.name, err)
		}
	}
}

func TestCropClampProducesValidCrop(t *testing.T) {
	for _, c := range []Crop{
		{Left: 0.8, Right: 0.8},
		{Top: 2, Bottom: -1},
		{Left: math.NaN(), Right: 0.5, Top: 0.99, Bottom: 0.99},
	} {
		got := c.Clamp()
		if err := got.Validate(); err != nil {
			t.Errorf("Clamp(%+v) = %+v is invalid: %v", c, got, err)
		}
	}
	in := Crop{0.1, 0.2, 0.3, 0.4}
	if got := in.Clamp(); got != in {
		t.Errorf("Clamp changed a valid crop: %+v", got)
	}
}

func TestCropPermute(t *testing.T) {
	c := Crop{Left: 0.1, Right: 0.2, Top: 0.3, Bottom: 0.4}
	cases := []struct {
		steps int
		want  Crop
	}{
		{0, c},
		{4, c},
		// a page shown turned clockwise: its visible left edge is the source bottom
		{1, Crop{Left: 0.3, Top: 0.2, Right: 0.4, Bottom: 0.1}},
		{2, Crop{Left: 0.2, Top: 0.4, Right: 0.1, Bottom: 0.3}},
		{3, Crop{Left: 0.4, Top: 0.1, Right: 0.3, Bottom: 0.2}},
		{-1, Crop{Left: 0.4, Top: 0.1, Right: 0.3, Bottom: 0.2}},
	}
	for _, tc := range cases {
		if got := c.Permute(tc.steps); got != tc.want {
			t.Errorf("Permute(%d) = %+v, want %+v", tc.steps, got, tc.want)
		}
	}
	if got := c.Permute(1).Permute(3); got != c {
		t.Errorf("Permute(1) then Permute(3) = %+v, want identity", got)
	}
}
