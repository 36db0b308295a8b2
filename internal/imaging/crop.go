package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
)

// CropResult contains a cropped image encoded for transport.
type CropResult struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
}

// Crop applies a fractional region to an image.
//
// The pixel rectangle is computed by CropRegion.PixelRect. The returned image
// is a copy whose bounds start at (0,0); the source is not modified.
//
// # Errors
//
//   - *InvalidRegionError if the region is malformed, empty on this image, or
//     falls outside the image bounds
//   - *InputError if img is nil or has no pixels
func Crop(img image.Image, region CropRegion) (image.Image, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, &InputError{Err: fmt.Errorf("image has no pixels")}
	}

	rect, err := region.PixelRect(img.Bounds())
	if err != nil {
		return nil, err
	}

	return imaging.Crop(img, rect), nil
}

// BatchCrop crops every image in paths with the same region and writes the
// results to outputDir as cropped_001.png, cropped_002.png, ...
//
// outputDir (and its parents) is created if absent; running the batch again
// over an existing directory overwrites the previous crops. The returned
// paths are index-aligned with the input.
//
// The first failing image stops the batch and its typed error is returned
// together with the paths written so far. Callers that need
// skip-and-continue semantics crop image by image with CroppedName.
func BatchCrop(paths []string, region CropRegion, outputDir string) ([]string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	written := make([]string, 0, len(paths))
	for i, path := range paths {
		img, err := Open(path)
		if err != nil {
			return written, err
		}

		cropped, err := Crop(img, region)
		if err != nil {
			return written, err
		}

		outPath := filepath.Join(outputDir, CroppedName(i+1))
		if err := SavePNG(cropped, outPath); err != nil {
			return written, err
		}
		written = append(written, outPath)
	}

	return written, nil
}

// CroppedName returns the file name for the n-th (1-based) cropped image.
func CroppedName(n int) string {
	return fmt.Sprintf("cropped_%03d.png", n)
}

// SavePNG encodes img as PNG at path.
func SavePNG(img image.Image, path string) error {
	if err := imaging.Save(img, path, imaging.PNGCompressionLevel(png.DefaultCompression)); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}

// EncodePNG returns img encoded as PNG bytes.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}

// NewCropResult wraps img as a base64 PNG result.
func NewCropResult(img image.Image) (*CropResult, error) {
	data, err := EncodePNG(img)
	if err != nil {
		return nil, err
	}

	return &CropResult{
		Width:       img.Bounds().Dx(),
		Height:      img.Bounds().Dy(),
		ImageBase64: base64.StdEncoding.EncodeToString(data),
		MimeType:    "image/png",
	}, nil
}
