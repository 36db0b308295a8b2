package imaging

import (
	"fmt"
	"image"
	"math"
)

// CropRegion is a rectangle expressed as fractions (0-1) of an image's width
// and height.
//
// A region is calibrated once against a sample screenshot and then reused for
// every image in a batch, so it has to survive differences in source
// resolution. CropRegion is a value type and is never modified after creation.
type CropRegion struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// CropPreset is a named CropRegion as persisted in settings.
type CropPreset struct {
	Name   string     `json:"name"`
	Region CropRegion `json:"region"`
}

// Validate reports whether the region is well-formed: all components are
// finite, x and y are non-negative, width and height are positive, and the
// region ends inside the unit square.
//
// Regions are rejected, never clamped.
func (r CropRegion) Validate() error {
	for _, v := range []float64{r.X, r.Y, r.Width, r.Height} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &InvalidRegionError{Region: r, Reason: "non-finite coordinate"}
		}
	}
	if r.X < 0 || r.Y < 0 {
		return &InvalidRegionError{Region: r, Reason: "x and y must be >= 0"}
	}
	if r.Width <= 0 || r.Height <= 0 {
		return &InvalidRegionError{Region: r, Reason: "width and height must be > 0"}
	}
	if r.X+r.Width > 1 || r.Y+r.Height > 1 {
		return &InvalidRegionError{Region: r, Reason: "region extends past the image edge"}
	}
	return nil
}

// PixelRect maps the region onto an image with the given bounds.
//
// The rectangle is (floor(W*x), floor(H*y), floor(W*(x+width)),
// floor(H*(y+height))), translated by bounds.Min. An empty result is
// reported as an InvalidRegionError: a valid region can still collapse to
// zero pixels on a very small image.
func (r CropRegion) PixelRect(bounds image.Rectangle) (image.Rectangle, error) {
	if err := r.Validate(); err != nil {
		return image.Rectangle{}, err
	}

	w := float64(bounds.Dx())
	h := float64(bounds.Dy())
	rect := image.Rect(
		int(math.Floor(w*r.X)),
		int(math.Floor(h*r.Y)),
		int(math.Floor(w*(r.X+r.Width))),
		int(math.Floor(h*(r.Y+r.Height))),
	).Add(bounds.Min)

	if rect.Empty() {
		return image.Rectangle{}, &InvalidRegionError{
			Region: r,
			Reason: fmt.Sprintf("region is empty on a %dx%d image", bounds.Dx(), bounds.Dy()),
		}
	}
	if !rect.In(bounds) {
		return image.Rectangle{}, &InvalidRegionError{
			Region: r,
			Reason: fmt.Sprintf("pixel rectangle %v outside image bounds %v", rect, bounds),
		}
	}
	return rect, nil
}

// RegionFromPixels converts a pixel rectangle drawn on an image of the given
// size back to fractional coordinates. Used by calibration, where the
// operator selects a rectangle on a sample screenshot.
func RegionFromPixels(rect image.Rectangle, width, height int) (CropRegion, error) {
	if width <= 0 || height <= 0 {
		return CropRegion{}, fmt.Errorf("invalid image size %dx%d", width, height)
	}
	r := CropRegion{
		X:      float64(rect.Min.X) / float64(width),
		Y:      float64(rect.Min.Y) / float64(height),
		Width:  float64(rect.Dx()) / float64(width),
		Height: float64(rect.Dy()) / float64(height),
	}
	if err := r.Validate(); err != nil {
		return CropRegion{}, err
	}
	return r, nil
}
