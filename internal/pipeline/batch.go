package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// BatchState is the lifecycle of a background batch.
type BatchState string

const (
	BatchRunning BatchState = "running"
	BatchDone    BatchState = "done"
	BatchAborted BatchState = "aborted"
)

var (
	// ErrBatchRunning is returned when a batch is started while another is
	// still running. Batches share the store's index sequence, so they run
	// one at a time.
	ErrBatchRunning = errors.New("a batch is already running")

	// ErrUnknownBatch is returned for an id the tracker has never issued.
	ErrUnknownBatch = errors.New("unknown batch id")
)

// BatchStatus is a point-in-time view of a batch.
type BatchStatus struct {
	ID        string       `json:"id"`
	State     BatchState   `json:"state"`
	Total     int          `json:"total"`
	Completed int          `json:"completed"`
	Items     []ItemReport `json:"items,omitempty"`
	Report    *Report      `json:"report,omitempty"`
	Error     string       `json:"error,omitempty"`
	Started   time.Time    `json:"started"`
}

type batch struct {
	id      string
	total   int
	started time.Time
	cancel  context.CancelFunc
	done    chan struct{}

	mu     sync.Mutex
	state  BatchState
	items  []ItemReport
	report *Report
	err    error
}

// Tracker runs pipelines in the background and keeps their progress.
type Tracker struct {
	log logrus.FieldLogger

	// OnDone, if set, is called with the final status of every batch.
	OnDone func(BatchStatus)

	mu      sync.Mutex
	batches map[string]*batch
	order   []string
	running string
}

// NewTracker returns an empty Tracker.
func NewTracker(log logrus.FieldLogger) *Tracker {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Tracker{log: log, batches: make(map[string]*batch)}
}

// Start runs p over paths in a new goroutine and returns the batch id. The
// tracker takes over p.OnItem. The batch outlives the caller's request; it
// ends when it finishes or Cancel is called. ctx supplies values only.
func (t *Tracker) Start(ctx context.Context, p *Pipeline, paths []string) (string, error) {
	t.mu.Lock()
	if t.running != "" {
		t.mu.Unlock()
		return "", ErrBatchRunning
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	b := &batch{
		id:      uuid.NewString(),
		total:   len(paths),
		started: time.Now(),
		cancel:  cancel,
		done:    make(chan struct{}),
		state:   BatchRunning,
	}
	t.batches[b.id] = b
	t.order = append(t.order, b.id)
	t.running = b.id
	t.mu.Unlock()

	p.OnItem = func(item ItemReport) {
		b.mu.Lock()
		b.items = append(b.items, item)
		b.mu.Unlock()
	}
	p.log = p.log.WithField("batch_id", b.id)

	go func() {
		defer close(b.done)
		defer cancel()

		report, err := p.Run(runCtx, paths)

		b.mu.Lock()
		b.report = report
		b.err = err
		b.state = BatchDone
		if err != nil {
			b.state = BatchAborted
		}
		b.mu.Unlock()

		t.mu.Lock()
		if t.running == b.id {
			t.running = ""
		}
		t.mu.Unlock()

		if t.OnDone != nil {
			t.OnDone(b.status())
		}
	}()

	return b.id, nil
}

// Running returns the id of the running batch, or "" when idle.
func (t *Tracker) Running() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// Status returns the current view of batch id.
func (t *Tracker) Status(id string) (BatchStatus, error) {
	b, err := t.get(id)
	if err != nil {
		return BatchStatus{}, err
	}
	return b.status(), nil
}

// List returns every batch, oldest first, without per-item detail.
func (t *Tracker) List() []BatchStatus {
	t.mu.Lock()
	ids := append([]string(nil), t.order...)
	t.mu.Unlock()

	out := make([]BatchStatus, 0, len(ids))
	for _, id := range ids {
		if b, err := t.get(id); err == nil {
			s := b.status()
			s.Items = nil
			s.Report = nil
			out = append(out, s)
		}
	}
	return out
}

// Cancel stops batch id. Images already recorded stay recorded.
func (t *Tracker) Cancel(id string) error {
	b, err := t.get(id)
	if err != nil {
		return err
	}
	b.cancel()
	t.log.WithField("batch_id", id).Info("Batch cancel requested")
	return nil
}

// Wait blocks until batch id finishes or ctx ends.
func (t *Tracker) Wait(ctx context.Context, id string) (BatchStatus, error) {
	b, err := t.get(id)
	if err != nil {
		return BatchStatus{}, err
	}
	select {
	case <-b.done:
		return b.status(), nil
	case <-ctx.Done():
		return b.status(), ctx.Err()
	}
}

func (t *Tracker) get(id string) (*batch, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	b, ok := t.batches[id]
	if !ok {
		return nil, ErrUnknownBatch
	}
	return b, nil
}

func (b *batch) status() BatchStatus {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := BatchStatus{
		ID:        b.id,
		State:     b.state,
		Total:     b.total,
		Completed: len(b.items),
		Items:     append([]ItemReport(nil), b.items...),
		Report:    b.report,
		Started:   b.started,
	}
	if b.err != nil {
		s.Error = b.err.Error()
	}
	return s
}
