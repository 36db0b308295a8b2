// Package review implements the human decision step for OCR readings that
// did not reconcile automatically.
//
// A Session starts Presented and moves to exactly one terminal state:
// AcceptPrimary, AcceptSecondary, ManualEdit or Cancelled. A Reviewer drives
// sessions; Queue is a Reviewer that parks sessions until an external client
// resolves them.
package review

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ironsheep/roster-ocr/internal/reconcile"
)

// State is the position of a Session in its lifecycle.
type State int

const (
	Presented State = iota
	AcceptPrimary
	AcceptSecondary
	ManualEdit
	Cancelled
)

var stateNames = [...]string{"presented", "accept_primary", "accept_secondary", "manual_edit", "cancelled"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// Terminal reports whether no further transition is possible from s.
func (s State) Terminal() bool {
	return s != Presented
}

var (
	// ErrAlreadyResolved is returned when a decided session is decided again.
	ErrAlreadyResolved = errors.New("review session already resolved")

	// ErrCancelled marks the deliberate "produce no record" outcome. It is
	// not a failure.
	ErrCancelled = errors.New("review cancelled")

	// ErrNotResolved is returned when a Reviewer leaves a session Presented.
	ErrNotResolved = errors.New("review session left unresolved")
)

// Session is one pending human decision about an unresolved Result.
type Session struct {
	mu        sync.Mutex
	result    reconcile.Result
	imagePath string
	index     int
	state     State
	text      string
}

// NewSession presents result for review. imagePath may be empty.
func NewSession(result reconcile.Result, imagePath string, index int) *Session {
	return &Session{result: result, imagePath: imagePath, index: index}
}

// Result returns the comparison being reviewed.
func (s *Session) Result() reconcile.Result { return s.result }

// ImagePath returns the source image, if known.
func (s *Session) ImagePath() string { return s.imagePath }

// Index returns the record index the session will produce.
func (s *Session) Index() int { return s.index }

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ManualSeed is the text an editor should start from.
func (s *Session) ManualSeed() string {
	return s.result.PrimaryText
}

func (s *Session) transition(to State, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return ErrAlreadyResolved
	}
	s.state = to
	s.text = text
	return nil
}

// AcceptPrimary chooses the primary reading.
func (s *Session) AcceptPrimary() error {
	return s.transition(AcceptPrimary, s.result.PrimaryText)
}

// AcceptSecondary chooses the secondary reading.
func (s *Session) AcceptSecondary() error {
	return s.transition(AcceptSecondary, s.result.SecondaryText)
}

// ManualEdit chooses text typed by the reviewer. Any text is accepted,
// including "".
func (s *Session) ManualEdit(text string) error {
	return s.transition(ManualEdit, text)
}

// Cancel abandons the image; it will produce no record.
func (s *Session) Cancel() error {
	return s.transition(Cancelled, "")
}

// FinalText returns the decided text. ok is false while Presented and after
// Cancel.
func (s *Session) FinalText() (text string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case AcceptPrimary, AcceptSecondary, ManualEdit:
		return s.text, true
	default:
		return "", false
	}
}

// Resolve applies d to the session.
func (s *Session) Resolve(d Decision) error {
	switch d.Action {
	case ActionPrimary:
		return s.AcceptPrimary()
	case ActionSecondary:
		return s.AcceptSecondary()
	case ActionManual:
		return s.ManualEdit(d.Text)
	case ActionCancel:
		return s.Cancel()
	default:
		return fmt.Errorf("unknown review action %q", d.Action)
	}
}

// Action names a reviewer decision in wire form.
type Action string

const (
	ActionPrimary   Action = "primary"
	ActionSecondary Action = "secondary"
	ActionManual    Action = "manual"
	ActionCancel    Action = "cancel"
)

// Decision is a reviewer's answer for one session.
type Decision struct {
	Action Action `json:"action"`
	Text   string `json:"text,omitempty"`
}

// Outcome returns the text to parse for a session a Reviewer has finished
// with. It returns ErrCancelled for a cancelled session and ErrNotResolved if
// the session is still Presented.
func Outcome(s *Session) (string, error) {
	if text, ok := s.FinalText(); ok {
		return text, nil
	}
	if s.State() == Cancelled {
		return "", ErrCancelled
	}
	return "", ErrNotResolved
}
