package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"time"
)

// Engine is anything that turns an image into text.
//
// ReadText either returns the recognized text or an error; a failing engine
// never reports "" as success. Implementations must be safe for concurrent
// use.
type Engine interface {
	Name() string
	ReadText(ctx context.Context, img image.Image) (string, error)
}

// EngineError reports a failure inside one OCR backend.
type EngineError struct {
	Engine string
	Err    error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("%s OCR failed: %v", e.Engine, e.Err)
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

// wrapEngineError tags err with the engine name unless it already carries one.
func wrapEngineError(engine string, err error) error {
	if err == nil {
		return nil
	}
	var engineErr *EngineError
	if errors.As(err, &engineErr) {
		return err
	}
	return &EngineError{Engine: engine, Err: err}
}

// encodePNG serializes img for backends that take encoded bytes.
func encodePNG(img image.Image) ([]byte, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, errors.New("image has no pixels")
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode PNG: %w", err)
	}
	return buf.Bytes(), nil
}

type timeoutEngine struct {
	engine  Engine
	timeout time.Duration
}

// WithTimeout bounds every ReadText call on engine to d. A call that runs past
// the deadline returns an *EngineError wrapping context.DeadlineExceeded. The
// backend sees the same cancelled context: the neural helper is killed,
// while a Tesseract call in progress runs to completion in the background.
//
// A non-positive d returns engine unchanged.
func WithTimeout(engine Engine, d time.Duration) Engine {
	if d <= 0 {
		return engine
	}
	return &timeoutEngine{engine: engine, timeout: d}
}

func (t *timeoutEngine) Name() string {
	return t.engine.Name()
}

func (t *timeoutEngine) ReadText(ctx context.Context, img image.Image) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		text, err := t.engine.ReadText(ctx, img)
		done <- result{text, err}
	}()

	select {
	case r := <-done:
		return r.text, r.err
	case <-ctx.Done():
		return "", &EngineError{Engine: t.engine.Name(), Err: ctx.Err()}
	}
}

// Unwrap exposes the wrapped engine, mainly for Info.
func (t *timeoutEngine) Unwrap() Engine {
	return t.engine
}
