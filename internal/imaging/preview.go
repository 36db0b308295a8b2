package imaging

import (
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/draw"

	colorful "github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// PreviewOptions controls how a calibration preview is drawn.
type PreviewOptions struct {
	// OutlineColor is the hex colour ("#RRGGBB" or "#RGB") of the region
	// outline and the tint inside it.
	OutlineColor string

	// TintOpacity is how strongly the region interior is tinted (0-1).
	TintOpacity float64

	// GridDivisions draws a fractional grid with this many cells per axis.
	// 0 disables the grid.
	GridDivisions int
}

// DefaultPreviewOptions returns the options used when the caller supplies none.
func DefaultPreviewOptions() PreviewOptions {
	return PreviewOptions{
		OutlineColor:  "#FF3B30",
		TintOpacity:   0.25,
		GridDivisions: 10,
	}
}

// PreviewResult contains a calibration preview encoded as base64 PNG.
type PreviewResult struct {
	Width       int             `json:"width"`
	Height      int             `json:"height"`
	Crop        image.Rectangle `json:"crop"`
	ImageBase64 string          `json:"image_base64"`
	MimeType    string          `json:"mime_type"`
}

// RenderRegionPreview draws region on top of img so an operator can check a
// calibration before running a batch.
//
// The preview shows:
//   - an optional fractional grid (every 1/GridDivisions of width and height)
//   - the region interior tinted with OutlineColor at TintOpacity
//   - a 2-pixel outline around the region
//   - a "WxH" label with the crop size in pixels
//
// The region is validated exactly as Crop would validate it, so a preview
// that renders guarantees the crop will succeed on images of the same size.
func RenderRegionPreview(img image.Image, region CropRegion, opts PreviewOptions) (*PreviewResult, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, &InputError{Err: fmt.Errorf("image has no pixels")}
	}

	bounds := img.Bounds()
	rect, err := region.PixelRect(bounds)
	if err != nil {
		return nil, err
	}

	outline, err := colorful.Hex(opts.OutlineColor)
	if err != nil {
		outline, _ = colorful.Hex(DefaultPreviewOptions().OutlineColor)
	}
	opacity := opts.TintOpacity
	if opacity < 0 {
		opacity = 0
	}
	if opacity > 1 {
		opacity = 1
	}

	result := image.NewRGBA(bounds)
	draw.Draw(result, bounds, img, bounds.Min, draw.Src)

	if opts.GridDivisions > 0 {
		drawGrid(result, opts.GridDivisions)
	}

	// Tint the region interior
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			src, ok := colorful.MakeColor(result.At(x, y))
			if !ok {
				continue
			}
			result.Set(x, y, src.BlendRgb(outline, opacity).Clamped())
		}
	}

	drawOutline(result, rect, outline, 2)
	drawLabel(result, rect.Min.X+4, rect.Min.Y+15, fmt.Sprintf("%dx%d", rect.Dx(), rect.Dy()), outline)

	data, err := EncodePNG(result)
	if err != nil {
		return nil, err
	}

	return &PreviewResult{
		Width:       bounds.Dx(),
		Height:      bounds.Dy(),
		Crop:        rect,
		ImageBase64: base64.StdEncoding.EncodeToString(data),
		MimeType:    "image/png",
	}, nil
}

// drawGrid draws faint grey lines every 1/divisions of the image.
func drawGrid(img *image.RGBA, divisions int) {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	grey, _ := colorful.Hex("#808080")

	blend := func(x, y int) {
		src, ok := colorful.MakeColor(img.At(x, y))
		if !ok {
			return
		}
		img.Set(x, y, src.BlendRgb(grey, 0.5).Clamped())
	}

	for i := 1; i < divisions; i++ {
		gx := bounds.Min.X + w*i/divisions
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			blend(gx, y)
		}
		gy := bounds.Min.Y + h*i/divisions
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			blend(x, gy)
		}
	}
}

func drawOutline(img *image.RGBA, rect image.Rectangle, c color.Color, thickness int) {
	for t := 0; t < thickness; t++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			img.Set(x, rect.Min.Y+t, c)
			img.Set(x, rect.Max.Y-1-t, c)
		}
		for y := rect.Min.Y; y < rect.Max.Y; y++ {
			img.Set(rect.Min.X+t, y, c)
			img.Set(rect.Max.X-1-t, y, c)
		}
	}
}

// drawLabel writes text with its baseline at (x, y) using the 7x13 bitmap face.
func drawLabel(img *image.RGBA, x, y int, text string, c color.Color) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}
