// Package geometry projects normalized detection boxes into viewport pixels.
package geometry

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidGeometry reports a box or viewport that cannot be rendered faithfully.
var ErrInvalidGeometry = errors.New("invalid geometry")

// sumTolerance absorbs float error in x+width and y+height.
const sumTolerance = 1e-9

// NormalizedBox is a bounding box with every component in [0,1].
type NormalizedBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Viewport is the pixel size of the surface a frame is drawn on.
type Viewport struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// PixelBox is a box in viewport pixel space.
type PixelBox struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Validate checks the box lies inside the unit square.
func (b NormalizedBox) Validate() error {
	for _, c := range []struct {
		name string
		v    float64
	}{{"x", b.X}, {"y", b.Y}, {"width", b.Width}, {"height", b.Height}} {
		if math.IsNaN(c.v) || c.v < 0 || c.v > 1 {
			return fmt.Errorf("%w: %s=%v outside [0,1]", ErrInvalidGeometry, c.name, c.v)
		}
	}
	if b.X+b.Width > 1+sumTolerance {
		return fmt.Errorf("%w: x+width=%v exceeds 1", ErrInvalidGeometry, b.X+b.Width)
	}
	if b.Y+b.Height > 1+sumTolerance {
		return fmt.Errorf("%w: y+height=%v exceeds 1", ErrInvalidGeometry, b.Y+b.Height)
	}
	return nil
}

// Validate rejects negative, NaN or infinite viewport extents.
func (v Viewport) Validate() error {
	if !finiteNonNegative(v.Width) || !finiteNonNegative(v.Height) {
		return fmt.Errorf("%w: viewport %vx%v", ErrInvalidGeometry, v.Width, v.Height)
	}
	return nil
}

// Project maps box onto vp. It has no side effects and is safe for concurrent use.
func Project(box NormalizedBox, vp Viewport) (PixelBox, error) {
	if err := box.Validate(); err != nil {
		return PixelBox{}, err
	}
	if err := vp.Validate(); err != nil {
		return PixelBox{}, err
	}
	return PixelBox{
		Left:   box.X * vp.Width,
		Top:    box.Y * vp.Height,
		Width:  box.Width * vp.Width,
		Height: box.Height * vp.Height,
	}, nil
}

func finiteNonNegative(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0) && f >= 0
}
