package imaging

import (
	"errors"
	"image"
	"math"
	"sort"

	"github.com/anthonynsimon/bild/effect"
	"github.com/anthonynsimon/bild/segment"
)

// ErrNoText is returned by SuggestRegion when no part of the image looks
// like text.
var ErrNoText = errors.New("no text-like area found")

// SuggestOptions tunes SuggestRegion.
type SuggestOptions struct {
	// EdgeLevel is the Sobel magnitude (0-255) at which a pixel counts as
	// an edge.
	EdgeLevel uint8

	// MinDensity is the fraction of edge pixels a window needs to count as
	// text.
	MinDensity float64

	// Padding grows the suggested rectangle on every side, in pixels.
	Padding int
}

// DefaultSuggestOptions returns the options used when the caller supplies
// none.
func DefaultSuggestOptions() SuggestOptions {
	return SuggestOptions{EdgeLevel: 64, MinDensity: 0.03, Padding: 4}
}

// TextBlock is a merged area of text-like windows.
type TextBlock struct {
	Bounds  image.Rectangle `json:"-"`
	X       int             `json:"x"`
	Y       int             `json:"y"`
	Width   int             `json:"width"`
	Height  int             `json:"height"`
	Density float64         `json:"density"`
}

// SuggestResult is a crop region proposed for calibration.
type SuggestResult struct {
	Region CropRegion  `json:"region"`
	Blocks []TextBlock `json:"blocks"`
}

// SuggestRegion proposes a CropRegion around the largest text-dense area of
// img. It slides a window over a Sobel edge map and keeps windows whose edge
// density reaches opts.MinDensity; overlapping windows merge into blocks
// and the biggest block, padded, becomes the region. Blocks are returned
// largest first so a caller can offer alternatives.
func SuggestRegion(img image.Image, opts SuggestOptions) (*SuggestResult, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, &InputError{Err: errors.New("image has no pixels")}
	}
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	edges := segment.Threshold(effect.Sobel(img), opts.EdgeLevel)
	clearBorder(edges, width, height)

	// Window about 1/16 of the width and one text line tall.
	winW := maxInt(8, width/16)
	winH := maxInt(4, height/24)
	if winW > width {
		winW = width
	}
	if winH > height {
		winH = height
	}

	var windows []TextBlock
	for y := 0; y+winH <= height; y += maxInt(1, winH/2) {
		for x := 0; x+winW <= width; x += maxInt(1, winW/2) {
			count := 0
			for wy := y; wy < y+winH; wy++ {
				row := edges.Pix[wy*edges.Stride : wy*edges.Stride+width]
				for _, v := range row[x : x+winW] {
					if v != 0 {
						count++
					}
				}
			}
			density := float64(count) / float64(winW*winH)
			if density >= opts.MinDensity {
				windows = append(windows, TextBlock{
					Bounds:  image.Rect(x, y, x+winW, y+winH),
					Density: density,
				})
			}
		}
	}
	if len(windows) == 0 {
		return nil, ErrNoText
	}

	blocks := mergeBlocks(windows)
	sort.SliceStable(blocks, func(i, j int) bool {
		ai := blocks[i].Bounds.Dx() * blocks[i].Bounds.Dy()
		aj := blocks[j].Bounds.Dx() * blocks[j].Bounds.Dy()
		return ai > aj
	})

	for i := range blocks {
		b := blocks[i].Bounds
		blocks[i].X, blocks[i].Y = b.Min.X, b.Min.Y
		blocks[i].Width, blocks[i].Height = b.Dx(), b.Dy()
		blocks[i].Density = math.Round(blocks[i].Density*1000) / 1000
	}

	rect := blocks[0].Bounds.Inset(-opts.Padding).Intersect(image.Rect(0, 0, width, height))
	region, err := RegionFromPixels(rect, width, height)
	if err != nil {
		return nil, err
	}
	return &SuggestResult{Region: region, Blocks: blocks}, nil
}

// mergeBlocks unions overlapping windows until no two blocks overlap. A
// block's density is the mean of the windows it absorbed.
func mergeBlocks(windows []TextBlock) []TextBlock {
	type acc struct {
		rect  image.Rectangle
		sum   float64
		count int
	}
	blocks := make([]acc, 0, len(windows))
	for _, w := range windows {
		blocks = append(blocks, acc{rect: w.Bounds, sum: w.Density, count: 1})
	}

	for merged := true; merged; {
		merged = false
		for i := 0; i < len(blocks); i++ {
			for j := i + 1; j < len(blocks); j++ {
				if !blocks[i].rect.Overlaps(blocks[j].rect) {
					continue
				}
				blocks[i].rect = blocks[i].rect.Union(blocks[j].rect)
				blocks[i].sum += blocks[j].sum
				blocks[i].count += blocks[j].count
				blocks = append(blocks[:j], blocks[j+1:]...)
				merged = true
				j--
			}
		}
	}

	out := make([]TextBlock, len(blocks))
	for i, b := range blocks {
		out[i] = TextBlock{Bounds: b.rect, Density: b.sum / float64(b.count)}
	}
	return out
}

// clearBorder drops the outermost pixel ring, where the gradient has no
// neighbours on one side.
func clearBorder(edges *image.Gray, width, height int) {
	for y := 0; y < height; y++ {
		row := edges.Pix[y*edges.Stride : y*edges.Stride+width]
		if y == 0 || y == height-1 {
			clear(row)
			continue
		}
		row[0], row[width-1] = 0, 0
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
