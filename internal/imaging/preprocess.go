package imaging

import (
	"fmt"
	"image"
	"image/color"

	"github.com/anthonynsimon/bild/convolution"
	"github.com/anthonynsimon/bild/effect"
	"github.com/anthonynsimon/bild/segment"
	"github.com/disintegration/imaging"
)

// VariantCount is the number of images Variants always returns.
const VariantCount = 3

// BinarizeThreshold is the luminance above which variant 2 pixels turn white.
const BinarizeThreshold = 160

// VariantSpec describes one preprocessing recipe.
type VariantSpec struct {
	Name     string  `json:"name"`
	Contrast float64 `json:"contrast"`
	Sharpen  bool    `json:"sharpen"`
	Binarize bool    `json:"binarize"`
	Invert   bool    `json:"invert"`
}

// VariantSpecs lists the fixed recipes in the order Variants produces them.
//
// The three variants give the OCR backends different contrast/noise
// trade-offs. Which variant a backend reads is the caller's choice; the
// pipeline does not judge which one "worked".
var VariantSpecs = [VariantCount]VariantSpec{
	{Name: "sharpened", Contrast: 1.2, Sharpen: true},
	{Name: "binarized", Contrast: 1.5, Sharpen: true, Binarize: true},
	{Name: "inverted", Contrast: 1.1, Invert: true},
}

// sharpenKernel is the classic 3x3 "SHARPEN" filter: centre 32, ring -2,
// pre-divided by 16 so the weights sum to 1 (Kernel.Normalized uses the
// absolute sum).
var sharpenKernel = &convolution.Kernel{
	Matrix: []float64{
		-2.0 / 16, -2.0 / 16, -2.0 / 16,
		-2.0 / 16, 32.0 / 16, -2.0 / 16,
		-2.0 / 16, -2.0 / 16, -2.0 / 16,
	},
	Width:  3,
	Height: 3,
}

// Variants derives the recognition-friendly versions of img, always exactly
// VariantCount of them, in VariantSpecs order:
//
//  1. grayscale, contrast 1.2, sharpen
//  2. grayscale, contrast 1.5, sharpen, binarize at luminance 160
//  3. grayscale, contrast 1.1, inverted
//
// Parameters:
//   - img: The cropped roster area. Any color model is accepted; it is
//     converted to grayscale first.
//
// Returns:
//   - []image.Image: VariantCount images the size of img, in
//     VariantSpecs order.
//   - error: Non-nil if img has no pixels.
//
// Variants is a pure function of pixel content: the same pixels always give
// the same variants.
//
// # Errors
//
// A nil or empty image is reported as *InputError. No other error is
// returned.
func Variants(img image.Image) ([]image.Image, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, &InputError{Err: fmt.Errorf("image has no pixels")}
	}

	out := make([]image.Image, 0, VariantCount)
	for _, spec := range VariantSpecs {
		out = append(out, ApplyVariant(img, spec))
	}
	return out, nil
}

// ApplyVariant runs a single recipe over img.
//
// Contrast blends every level towards the image's mean grey: 1.0 leaves
// the image unchanged, 1.5 moves every level 50% further from the mean. A
// uniform image is therefore unchanged by any gain.
func ApplyVariant(img image.Image, spec VariantSpec) image.Image {
	var out image.Image = imaging.Grayscale(img)

	if spec.Contrast != 1.0 {
		out = enhanceContrast(out, spec.Contrast)
	}
	if spec.Sharpen {
		out = convolution.Convolve(out, sharpenKernel, &convolution.Options{KeepAlpha: true})
	}
	if spec.Binarize {
		out = segment.Threshold(out, BinarizeThreshold+1)
	}
	if spec.Invert {
		out = effect.Invert(out)
	}
	return out
}

// enhanceContrast maps each grey level v of a grayscale image to
// mean + gain*(v-mean), where mean is the rounded average level. Results
// are clipped to 0-255 and truncated, matching an 8-bit blend against a
// flat image of the mean.
func enhanceContrast(gray image.Image, gain float64) *image.NRGBA {
	mean := float64(meanLevel(gray))
	return imaging.AdjustFunc(gray, func(c color.NRGBA) color.NRGBA {
		v := contrastLevel(c.R, mean, gain)
		return color.NRGBA{R: v, G: v, B: v, A: c.A}
	})
}

func contrastLevel(v uint8, mean, gain float64) uint8 {
	f := mean + gain*(float64(v)-mean)
	switch {
	case f <= 0:
		return 0
	case f >= 255:
		return 255
	}
	return uint8(f)
}

// meanLevel is the average grey level of img rounded to the nearest integer.
func meanLevel(img image.Image) int {
	b := img.Bounds()
	if b.Empty() {
		return 0
	}
	var sum uint64
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, _, _, _ := img.At(x, y).RGBA()
			sum += uint64(r >> 8)
		}
	}
	n := uint64(b.Dx() * b.Dy())
	return int((sum*2 + n) / (2 * n))
}
