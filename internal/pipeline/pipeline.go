// Package pipeline turns screenshots into roster records.
//
// For each image: crop, derive the preprocessing variants, read the text with
// both OCR engines, reconcile the two readings, hand unresolved readings to a
// reviewer, parse the chosen text and append the record. A failing image is
// reported and skipped; it never stops the batch.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ironsheep/roster-ocr/internal/imaging"
	"github.com/ironsheep/roster-ocr/internal/ocr"
	"github.com/ironsheep/roster-ocr/internal/reconcile"
	"github.com/ironsheep/roster-ocr/internal/review"
	"github.com/ironsheep/roster-ocr/internal/roster"
)

// Status is the outcome of one image.
type Status string

const (
	StatusRecorded  Status = "recorded"
	StatusCancelled Status = "cancelled"
	StatusSkipped   Status = "skipped"
)

// Options configure a Pipeline.
type Options struct {
	Region      imaging.CropRegion
	Threshold   float64
	Concurrency int

	// Index into imaging.Variants for each engine.
	PrimaryVariant   int
	SecondaryVariant int

	// Project, when set, receives the cropped images and raw OCR text.
	Project *Project
}

// ItemReport describes what happened to one image.
type ItemReport struct {
	Position      int            `json:"position"`
	Index         int            `json:"index"`
	Path          string         `json:"path"`
	Status        Status         `json:"status"`
	Kind          ErrorKind      `json:"kind,omitempty"`
	Error         string         `json:"error,omitempty"`
	PrimaryText   string         `json:"primary_text,omitempty"`
	SecondaryText string         `json:"secondary_text,omitempty"`
	Similarity    float64        `json:"similarity"`
	Reviewed      bool           `json:"reviewed"`
	Record        *roster.Record `json:"record,omitempty"`
}

// Report summarizes a batch.
type Report struct {
	StartIndex int          `json:"start_index"`
	Items      []ItemReport `json:"items"`
	Recorded   int          `json:"recorded"`
	Cancelled  int          `json:"cancelled"`
	Skipped    int          `json:"skipped"`
	Warnings   int          `json:"warnings"`
	Started    time.Time    `json:"started"`
	Finished   time.Time    `json:"finished"`
}

func (r *Report) tally() {
	r.Recorded, r.Cancelled, r.Skipped, r.Warnings = 0, 0, 0, 0
	for _, item := range r.Items {
		switch item.Status {
		case StatusRecorded:
			r.Recorded++
		case StatusCancelled:
			r.Cancelled++
		default:
			r.Skipped++
		}
		if item.Kind == KindParseWarning {
			r.Warnings++
		}
	}
}

// Pipeline processes batches of screenshots into a Store.
type Pipeline struct {
	primary   ocr.Engine
	secondary ocr.Engine
	reviewer  review.Reviewer
	store     *roster.Store
	opts      Options
	log       logrus.FieldLogger

	// OnItem, if set, is called after each image finishes. It may be called
	// from several goroutines at once.
	OnItem func(ItemReport)
}

// New returns a Pipeline. reviewer may be nil, in which case readings that
// need review are cancelled.
func New(primary, secondary ocr.Engine, reviewer review.Reviewer, store *roster.Store, opts Options, log logrus.FieldLogger) (*Pipeline, error) {
	if primary == nil || secondary == nil {
		return nil, errors.New("both OCR engines are required")
	}
	if store == nil {
		return nil, errors.New("record store is required")
	}
	if err := opts.Region.Validate(); err != nil {
		return nil, err
	}
	if opts.Threshold < 0 || opts.Threshold > 100 {
		return nil, fmt.Errorf("threshold must be between 0 and 100, got %v", opts.Threshold)
	}
	if opts.PrimaryVariant < 0 || opts.PrimaryVariant >= imaging.VariantCount {
		return nil, fmt.Errorf("primary variant must be between 0 and %d", imaging.VariantCount-1)
	}
	if opts.SecondaryVariant < 0 || opts.SecondaryVariant >= imaging.VariantCount {
		return nil, fmt.Errorf("secondary variant must be between 0 and %d", imaging.VariantCount-1)
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	return &Pipeline{
		primary:   primary,
		secondary: secondary,
		reviewer:  reviewer,
		store:     store,
		opts:      opts,
		log:       log,
	}, nil
}

// Run processes paths and returns a report with one item per path, in input
// order. Record indices are NextIndex at the start of the run plus the
// position of the path, so they follow submission order even when images
// finish out of order.
//
// Parameters:
//   - ctx: Bounds the whole batch. Cancelling it stops images that have not
//     started and interrupts OCR and review in progress.
//   - paths: Screenshot files to process, in submission order.
//
// Returns:
//   - *Report: Always non-nil, with one ItemReport per path and the tallies
//     filled in.
//   - error: ctx.Err() if ctx ended during the run, else nil.
//
// # Errors
//
// A failure on one image never stops the batch. It is recorded on that
// image's ItemReport as StatusSkipped with its ErrorKind, or as
// StatusCancelled when the reviewer cancelled. When ctx ends, images not yet
// started are skipped with KindAborted and Run returns the context's error
// alongside the report.
func (p *Pipeline) Run(ctx context.Context, paths []string) (*Report, error) {
	report := &Report{
		StartIndex: p.store.NextIndex(),
		Items:      make([]ItemReport, len(paths)),
		Started:    time.Now(),
	}

	p.log.WithFields(logrus.Fields{
		"images":      len(paths),
		"start_index": report.StartIndex,
		"concurrency": p.opts.Concurrency,
	}).Info("Batch started")

	var g errgroup.Group
	g.SetLimit(p.opts.Concurrency)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			item := p.process(ctx, i, report.StartIndex+i, path)
			report.Items[i] = item
			if p.OnItem != nil {
				p.OnItem(item)
			}
			return nil
		})
	}
	_ = g.Wait()

	report.Finished = time.Now()
	report.tally()

	p.log.WithFields(logrus.Fields{
		"recorded":  report.Recorded,
		"cancelled": report.Cancelled,
		"skipped":   report.Skipped,
		"warnings":  report.Warnings,
		"elapsed":   report.Finished.Sub(report.Started).String(),
	}).Info("Batch finished")

	return report, ctx.Err()
}

// process runs one image through every stage.
func (p *Pipeline) process(ctx context.Context, position, index int, path string) ItemReport {
	item := ItemReport{Position: position, Index: index, Path: path}
	log := p.log.WithFields(logrus.Fields{"index": index, "path": filepath.Base(path)})

	fail := func(err error) ItemReport {
		item.Status = StatusSkipped
		item.Kind = Classify(err)
		item.Error = err.Error()
		if item.Kind == KindReviewCancelled {
			item.Status = StatusCancelled
		}
		entry := log.WithField("kind", item.Kind)
		if item.Status == StatusCancelled {
			entry.Info("Review cancelled, no record")
		} else {
			entry.WithError(err).Warn("Image skipped")
		}
		p.opts.Project.logItem(item)
		return item
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	img, err := imaging.Open(path)
	if err != nil {
		return fail(err)
	}
	cropped, err := imaging.Crop(img, p.opts.Region)
	if err != nil {
		return fail(err)
	}
	if err := p.opts.Project.saveCrop(index, cropped); err != nil {
		return fail(&ItemError{Kind: KindStore, Err: err})
	}

	variants, err := imaging.Variants(cropped)
	if err != nil {
		return fail(err)
	}

	primaryText, secondaryText, err := p.read(ctx, variants)
	if err != nil {
		return fail(err)
	}
	item.PrimaryText, item.SecondaryText = primaryText, secondaryText
	if err := p.opts.Project.saveRawText(index, p.primary.Name(), primaryText, p.secondary.Name(), secondaryText); err != nil {
		return fail(&ItemError{Kind: KindStore, Err: err})
	}

	result := reconcile.Compare(primaryText, secondaryText, p.opts.Threshold)
	item.Similarity = result.SimilarityScore
	log = log.WithField("similarity", result.SimilarityScore)

	text, ok := result.Chosen()
	if !ok {
		item.Reviewed = true
		log.Debug("Readings disagree, review required")
		if text, err = p.review(ctx, result, path, index); err != nil {
			return fail(err)
		}
	}

	rec, warning := roster.Parse(text, index)
	if err := p.store.Append(rec); err != nil {
		return fail(&ItemError{Kind: KindStore, Err: err})
	}

	item.Status = StatusRecorded
	item.Record = &rec
	if warning != nil {
		item.Kind = KindParseWarning
		item.Error = warning.Error()
		log.WithField("kind", item.Kind).Warn("Record appended without fields")
	} else {
		log.WithField("reviewed", item.Reviewed).Info("Record appended")
	}
	p.opts.Project.logItem(item)
	return item
}

// read runs both engines concurrently on their variants.
func (p *Pipeline) read(ctx context.Context, variants []image.Image) (primary, secondary string, err error) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		text, err := p.primary.ReadText(gctx, variants[p.opts.PrimaryVariant])
		primary = text
		return engineFailure(p.primary.Name(), err)
	})
	g.Go(func() error {
		text, err := p.secondary.ReadText(gctx, variants[p.opts.SecondaryVariant])
		secondary = text
		return engineFailure(p.secondary.Name(), err)
	})
	if err := g.Wait(); err != nil {
		return "", "", err
	}
	return primary, secondary, nil
}

// engineFailure makes sure an engine error classifies as ENGINE_ERROR even
// when a custom engine returns a bare error.
func engineFailure(name string, err error) error {
	if err == nil {
		return nil
	}
	var engineErr *ocr.EngineError
	if errors.As(err, &engineErr) {
		return err
	}
	return &ocr.EngineError{Engine: name, Err: err}
}

// review blocks until the reviewer decides and returns the chosen text.
func (p *Pipeline) review(ctx context.Context, result reconcile.Result, path string, index int) (string, error) {
	session := review.NewSession(result, path, index)
	if p.reviewer == nil {
		_ = session.Cancel()
	} else if err := p.reviewer.Review(ctx, session); err != nil {
		return "", err
	}
	return review.Outcome(session)
}
