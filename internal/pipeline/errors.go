package pipeline

import (
	"context"
	"errors"

	"github.com/ironsheep/roster-ocr/internal/imaging"
	"github.com/ironsheep/roster-ocr/internal/ocr"
	"github.com/ironsheep/roster-ocr/internal/review"
	"github.com/ironsheep/roster-ocr/internal/roster"
)

// ErrorKind classifies why an image did not produce a clean record.
type ErrorKind string

const (
	KindNone            ErrorKind = ""
	KindInput           ErrorKind = "INPUT_ERROR"
	KindInvalidRegion   ErrorKind = "INVALID_REGION"
	KindEngine          ErrorKind = "ENGINE_ERROR"
	KindParseWarning    ErrorKind = "PARSE_WARNING"
	KindReviewCancelled ErrorKind = "REVIEW_CANCELLED"
	KindStore           ErrorKind = "STORE_ERROR"
	KindAborted         ErrorKind = "ABORTED"
)

// Fatal reports whether an image with this kind produced no record.
func (k ErrorKind) Fatal() bool {
	return k != KindNone && k != KindParseWarning
}

// ItemError is a classified per-image failure.
type ItemError struct {
	Kind ErrorKind
	Err  error
}

func (e *ItemError) Error() string {
	return string(e.Kind) + ": " + e.Err.Error()
}

func (e *ItemError) Unwrap() error {
	return e.Err
}

// Classify maps an error from any pipeline stage to its kind.
func Classify(err error) ErrorKind {
	var (
		itemErr   *ItemError
		inputErr  *imaging.InputError
		regionErr *imaging.InvalidRegionError
		engineErr *ocr.EngineError
		warning   *roster.ParseWarning
	)
	switch {
	case err == nil:
		return KindNone
	case errors.As(err, &itemErr):
		return itemErr.Kind
	case errors.As(err, &inputErr):
		return KindInput
	case errors.As(err, &regionErr):
		return KindInvalidRegion
	case errors.As(err, &engineErr):
		return KindEngine
	case errors.As(err, &warning):
		return KindParseWarning
	case errors.Is(err, review.ErrCancelled), errors.Is(err, review.ErrNotResolved):
		return KindReviewCancelled
	case errors.Is(err, roster.ErrDuplicateIndex), errors.Is(err, roster.ErrFixedColumn):
		return KindStore
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindAborted
	default:
		return KindStore
	}
}
