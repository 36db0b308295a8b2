package ocr

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// DefaultLanguage is the Tesseract language tag used when none is configured.
const DefaultLanguage = "kor+eng"

// TesseractName is the engine name reported by Tesseract.
const TesseractName = "tesseract"

// Bounds represents a rectangular bounding box in pixel coordinates.
type Bounds struct {
	X1 int `json:"x1"` // Left edge
	Y1 int `json:"y1"` // Top edge
	X2 int `json:"x2"` // Right edge
	Y2 int `json:"y2"` // Bottom edge
}

// TextRegion represents a word or text block with its location and OCR confidence.
type TextRegion struct {
	// Text is the recognized text content.
	Text string `json:"text"`

	// Confidence is the OCR confidence score (0.0 to 1.0).
	Confidence float64 `json:"confidence"`

	// Bounds is the bounding box around this text in the image.
	Bounds Bounds `json:"bounds"`
}

// Tesseract is the classical OCR backend, backed by gosseract.
//
// It holds no recognition state between calls: every ReadText creates a fresh
// client, so one Tesseract value may be shared by concurrent pipeline
// workers.
type Tesseract struct {
	// Language is a "+"-joined Tesseract language tag, e.g. "kor+eng".
	Language string

	// TessdataPrefix overrides the directory holding *.traineddata files.
	// Empty means the system default.
	TessdataPrefix string
}

// NewTesseract returns a Tesseract backend for the given language tag.
// An empty tag selects DefaultLanguage.
func NewTesseract(language string) *Tesseract {
	if strings.TrimSpace(language) == "" {
		language = DefaultLanguage
	}
	return &Tesseract{Language: language}
}

// Name implements Engine.
func (t *Tesseract) Name() string { return TesseractName }

// ReadText implements Engine.
//
// The image is handed to Tesseract as PNG bytes; nothing touches disk.
func (t *Tesseract) ReadText(ctx context.Context, img image.Image) (string, error) {
	client, err := t.prepare(ctx, img)
	if err != nil {
		return "", err
	}
	defer client.Close()

	text, err := client.Text()
	if err != nil {
		return "", &EngineError{Engine: TesseractName, Err: err}
	}
	return text, nil
}

// ReadRegions performs word-level recognition and returns each word with its
// bounding box and confidence.
//
// Empty words are filtered out.
func (t *Tesseract) ReadRegions(ctx context.Context, img image.Image) ([]TextRegion, error) {
	client, err := t.prepare(ctx, img)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, &EngineError{Engine: TesseractName, Err: fmt.Errorf("failed to get bounding boxes: %w", err)}
	}

	regions := make([]TextRegion, 0, len(boxes))
	for _, box := range boxes {
		if box.Word == "" {
			continue
		}
		regions = append(regions, TextRegion{
			Text:       box.Word,
			Confidence: float64(box.Confidence) / 100.0,
			Bounds: Bounds{
				X1: box.Box.Min.X,
				Y1: box.Box.Min.Y,
				X2: box.Box.Max.X,
				Y2: box.Box.Max.Y,
			},
		})
	}
	return regions, nil
}

// prepare returns a client loaded with img. The caller must Close it.
func (t *Tesseract) prepare(ctx context.Context, img image.Image) (*gosseract.Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, &EngineError{Engine: TesseractName, Err: err}
	}

	data, err := encodePNG(img)
	if err != nil {
		return nil, &EngineError{Engine: TesseractName, Err: err}
	}

	client := gosseract.NewClient()
	if t.TessdataPrefix != "" {
		if err := client.SetTessdataPrefix(t.TessdataPrefix); err != nil {
			client.Close()
			return nil, &EngineError{Engine: TesseractName, Err: fmt.Errorf("failed to set tessdata path: %w", err)}
		}
	}
	if err := client.SetLanguage(Languages(t.Language)...); err != nil {
		client.Close()
		return nil, &EngineError{Engine: TesseractName, Err: fmt.Errorf("failed to set language: %w", err)}
	}
	if err := client.SetImageFromBytes(data); err != nil {
		client.Close()
		return nil, &EngineError{Engine: TesseractName, Err: fmt.Errorf("failed to set image: %w", err)}
	}
	return client, nil
}

// Info implements the diagnostics hook used by Info.
func (t *Tesseract) Info() EngineInfo {
	info := EngineInfo{
		Name:      TesseractName,
		Backend:   "gosseract",
		Languages: Languages(t.Language),
	}

	version, err := TesseractVersion()
	if err != nil {
		info.Error = err.Error()
		return info
	}
	info.Available = true
	info.Version = version
	return info
}

// Languages splits a "+"-joined language tag into its parts. Blank parts are
// dropped; an empty tag yields the parts of DefaultLanguage.
func Languages(tag string) []string {
	var langs []string
	for _, part := range strings.Split(tag, "+") {
		if part = strings.TrimSpace(part); part != "" {
			langs = append(langs, part)
		}
	}
	if len(langs) == 0 {
		return Languages(DefaultLanguage)
	}
	return langs
}

// TesseractVersion returns the linked Tesseract version.
func TesseractVersion() (string, error) {
	client := gosseract.NewClient()
	defer client.Close()

	version := client.Version()
	if version == "" {
		return "", errors.New("tesseract did not report a version")
	}
	return version, nil
}
