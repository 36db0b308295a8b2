package review

import (
	"errors"
	"testing"

	"github.com/ironsheep/roster-ocr/internal/reconcile"
)

func unresolved() reconcile.Result {
	return reconcile.Compare("닉네임 길동", "닉네임 개똥", reconcile.DefaultThreshold)
}

func TestSession_Transitions(t *testing.T) {
	tests := []struct {
		name     string
		apply    func(*Session) error
		want     State
		wantText string
		wantOK   bool
	}{
		{"accept primary", (*Session).AcceptPrimary, AcceptPrimary, "닉네임 길동", true},
		{"accept secondary", (*Session).AcceptSecondary, AcceptSecondary, "닉네임 개똥", true},
		{"manual edit", func(s *Session) error { return s.ManualEdit("닉네임 홍길동") }, ManualEdit, "닉네임 홍길동", true},
		{"manual edit empty", func(s *Session) error { return s.ManualEdit("") }, ManualEdit, "", true},
		{"cancel", (*Session).Cancel, Cancelled, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSession(unresolved(), "/shots/1.png", 7)
			if s.State() != Presented {
				t.Fatalf("initial state: got %v, want %v", s.State(), Presented)
			}
			if _, ok := s.FinalText(); ok {
				t.Error("Presented session should have no final text")
			}

			if err := tt.apply(s); err != nil {
				t.Fatalf("transition failed: %v", err)
			}
			if s.State() != tt.want {
				t.Errorf("state: got %v, want %v", s.State(), tt.want)
			}
			text, ok := s.FinalText()
			if text != tt.wantText || ok != tt.wantOK {
				t.Errorf("FinalText: got (%q, %v), want (%q, %v)", text, ok, tt.wantText, tt.wantOK)
			}

			// Exactly one transition per session
			for _, again := range []func(*Session) error{(*Session).AcceptPrimary, (*Session).Cancel} {
				if err := again(s); !errors.Is(err, ErrAlreadyResolved) {
					t.Errorf("second transition: got %v, want ErrAlreadyResolved", err)
				}
			}
			if s.State() != tt.want {
				t.Errorf("state changed after rejected transition: got %v", s.State())
			}
		})
	}
}

func TestSession_Accessors(t *testing.T) {
	res := unresolved()
	s := NewSession(res, "/shots/3.png", 3)

	if s.ManualSeed() != res.PrimaryText {
		t.Errorf("ManualSeed: got %q, want %q", s.ManualSeed(), res.PrimaryText)
	}
	if s.ImagePath() != "/shots/3.png" || s.Index() != 3 {
		t.Errorf("accessors: got (%q, %d)", s.ImagePath(), s.Index())
	}
	if s.Result().SimilarityScore != res.SimilarityScore {
		t.Error("Result should be the presented comparison")
	}
}

func TestSession_Resolve(t *testing.T) {
	s := NewSession(unresolved(), "", 1)
	if err := s.Resolve(Decision{Action: "shrug"}); err == nil {
		t.Error("unknown action should fail")
	}
	if s.State() != Presented {
		t.Errorf("state after bad decision: got %v, want presented", s.State())
	}

	if err := s.Resolve(Decision{Action: ActionManual, Text: "fixed"}); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if text, _ := s.FinalText(); text != "fixed" {
		t.Errorf("FinalText: got %q, want fixed", text)
	}
}

func TestOutcome(t *testing.T) {
	s := NewSession(unresolved(), "", 1)
	if _, err := Outcome(s); !errors.Is(err, ErrNotResolved) {
		t.Errorf("Outcome(presented): got %v, want ErrNotResolved", err)
	}

	s.Cancel()
	if _, err := Outcome(s); !errors.Is(err, ErrCancelled) {
		t.Errorf("Outcome(cancelled): got %v, want ErrCancelled", err)
	}

	s = NewSession(unresolved(), "", 1)
	s.AcceptSecondary()
	if text, err := Outcome(s); err != nil || text != "닉네임 개똥" {
		t.Errorf("Outcome(secondary): got (%q, %v)", text, err)
	}
}

func TestState_String(t *testing.T) {
	if Presented.String() != "presented" || Cancelled.String() != "cancelled" {
		t.Errorf("unexpected names: %s, %s", Presented, Cancelled)
	}
	if State(42).String() != "State(42)" {
		t.Errorf("out of range: got %s", State(42))
	}
}
