package review

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ironsheep/roster-ocr/internal/reconcile"
)

// Reviewer drives a Presented session to a terminal state. Review blocks
// until a decision is made; an error means the session could not be
// decided.
type Reviewer interface {
	Review(ctx context.Context, s *Session) error
}

// ReviewerFunc adapts a function to Reviewer.
type ReviewerFunc func(ctx context.Context, s *Session) error

// Review implements Reviewer.
func (f ReviewerFunc) Review(ctx context.Context, s *Session) error {
	return f(ctx, s)
}

// ErrUnknownSession is returned by Queue.Resolve for an id that is not
// pending.
var ErrUnknownSession = errors.New("no pending review with that id")

// Pending describes a session waiting in a Queue.
type Pending struct {
	ID         string           `json:"id"`
	Index      int              `json:"index"`
	ImagePath  string           `json:"image_path,omitempty"`
	Result     reconcile.Result `json:"result"`
	ManualSeed string           `json:"manual_seed"`
	CreatedAt  time.Time        `json:"created_at"`
}

type queued struct {
	info    Pending
	session *Session
	done    chan struct{}
}

// Queue is a Reviewer for clients that answer asynchronously. Each session
// is parked under a fresh id and only the goroutine that submitted it
// blocks; other images keep flowing.
type Queue struct {
	log logrus.FieldLogger

	mu      sync.Mutex
	pending map[string]*queued
	order   []string
}

// NewQueue returns an empty Queue.
func NewQueue(log logrus.FieldLogger) *Queue {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Queue{log: log, pending: make(map[string]*queued)}
}

// Review implements Reviewer. It returns once Resolve has been called for
// the session or ctx ends; in the latter case the session is cancelled and
// ctx's error returned.
func (q *Queue) Review(ctx context.Context, s *Session) error {
	item := &queued{
		info: Pending{
			ID:         uuid.NewString(),
			Index:      s.Index(),
			ImagePath:  s.ImagePath(),
			Result:     s.Result(),
			ManualSeed: s.ManualSeed(),
			CreatedAt:  time.Now(),
		},
		session: s,
		done:    make(chan struct{}),
	}

	q.mu.Lock()
	q.pending[item.info.ID] = item
	q.order = append(q.order, item.info.ID)
	q.mu.Unlock()
	defer q.remove(item.info.ID)

	q.log.WithFields(logrus.Fields{
		"review_id":  item.info.ID,
		"index":      item.info.Index,
		"similarity": item.info.Result.SimilarityScore,
	}).Info("Review pending")

	select {
	case <-item.done:
		return nil
	case <-ctx.Done():
		if err := s.Cancel(); errors.Is(err, ErrAlreadyResolved) {
			return nil
		}
		return ctx.Err()
	}
}

// Resolve applies d to the pending session id and releases its goroutine.
func (q *Queue) Resolve(id string, d Decision) error {
	q.mu.Lock()
	item, ok := q.pending[id]
	q.mu.Unlock()
	if !ok {
		return ErrUnknownSession
	}

	if err := item.session.Resolve(d); err != nil {
		return err
	}

	q.log.WithFields(logrus.Fields{
		"review_id": id,
		"index":     item.info.Index,
		"action":    d.Action,
	}).Info("Review resolved")

	q.remove(id)
	close(item.done)
	return nil
}

// Pending lists waiting sessions, oldest first.
func (q *Queue) Pending() []Pending {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Pending, 0, len(q.order))
	for _, id := range q.order {
		out = append(out, q.pending[id].info)
	}
	return out
}

// Len returns the number of waiting sessions.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.order)
}

func (q *Queue) remove(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.pending, id)
	for i, v := range q.order {
		if v == id {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
}
