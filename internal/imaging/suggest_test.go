package imaging

import (
	"errors"
	"image"
	"image/color"
	"image/draw"
	"testing"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// textImage draws lines of text inside box on a white canvas.
func textImage(width, height int, box image.Rectangle) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.Black),
		Face: basicfont.Face7x13,
	}
	line := "NICK 12345 ROLE ABCDEFGHIJKLMNOP"
	for y := box.Min.Y + 13; y <= box.Max.Y; y += 16 {
		d.Dot = fixed.P(box.Min.X, y)
		for _, r := range line {
			if d.Dot.X.Ceil()+7 > box.Max.X {
				break
			}
			d.DrawString(string(r))
		}
	}
	return img
}

func TestSuggestRegion(t *testing.T) {
	box := image.Rect(220, 30, 390, 170)
	img := textImage(400, 200, box)

	res, err := SuggestRegion(img, DefaultSuggestOptions())
	if err != nil {
		t.Fatalf("SuggestRegion failed: %v", err)
	}
	if err := res.Region.Validate(); err != nil {
		t.Fatalf("suggested region invalid: %v", err)
	}
	if len(res.Blocks) == 0 {
		t.Fatal("no blocks returned")
	}

	rect, err := res.Region.PixelRect(img.Bounds())
	if err != nil {
		t.Fatalf("PixelRect failed: %v", err)
	}
	center := rect.Min.Add(rect.Max).Div(2)
	if center.X < 200 {
		t.Errorf("region centre x: got %d, want >= 200 (text is on the right)", center.X)
	}
	if !box.Inset(8).In(rect) {
		t.Errorf("region %v does not cover text box %v", rect, box)
	}
	if rect.Min.X < 150 {
		t.Errorf("region starts at x=%d, want it to skip the blank left side", rect.Min.X)
	}
}

func TestSuggestRegion_BlocksLargestFirst(t *testing.T) {
	img := textImage(400, 200, image.Rect(210, 20, 390, 180))
	// A short second block on the left
	small := textImage(400, 200, image.Rect(10, 20, 80, 40))
	draw.Draw(img, image.Rect(0, 0, 100, 60), small, image.Point{}, draw.Src)

	res, err := SuggestRegion(img, DefaultSuggestOptions())
	if err != nil {
		t.Fatalf("SuggestRegion failed: %v", err)
	}
	for i := 1; i < len(res.Blocks); i++ {
		prev := res.Blocks[i-1].Width * res.Blocks[i-1].Height
		cur := res.Blocks[i].Width * res.Blocks[i].Height
		if cur > prev {
			t.Errorf("block %d area %d larger than block %d area %d", i, cur, i-1, prev)
		}
	}
	if res.Region.X < 0.4 {
		t.Errorf("region x: got %.3f, want the large right-hand block", res.Region.X)
	}
}

func TestSuggestRegion_Blank(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 200, 100))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	_, err := SuggestRegion(img, DefaultSuggestOptions())
	if !errors.Is(err, ErrNoText) {
		t.Errorf("got %v, want ErrNoText", err)
	}
}

func TestSuggestRegion_Empty(t *testing.T) {
	_, err := SuggestRegion(image.NewRGBA(image.Rectangle{}), DefaultSuggestOptions())
	var inErr *InputError
	if !errors.As(err, &inErr) {
		t.Errorf("got %v, want *InputError", err)
	}
}

func TestMergeBlocks(t *testing.T) {
	windows := []TextBlock{
		{Bounds: image.Rect(0, 0, 10, 10), Density: 0.25},
		{Bounds: image.Rect(50, 50, 60, 60), Density: 0.125},
		{Bounds: image.Rect(5, 5, 15, 15), Density: 0.5},
		// Joins the first two only through the merged union
		{Bounds: image.Rect(14, 14, 52, 52), Density: 0.125},
	}
	got := mergeBlocks(windows)
	if len(got) != 1 {
		t.Fatalf("blocks: got %d, want 1", len(got))
	}
	if want := image.Rect(0, 0, 60, 60); got[0].Bounds != want {
		t.Errorf("bounds: got %v, want %v", got[0].Bounds, want)
	}
	if want := 0.25; got[0].Density != want {
		t.Errorf("density: got %v, want %v", got[0].Density, want)
	}
}
