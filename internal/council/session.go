package council

import (
	"errors"
	"fmt"
)

var ErrInvalidTransition = errors.New("invalid session transition")

// State is a pipeline controller state.
type State int

const (
	StateIdle State = iota
	StateSelecting
	StateStage
	StateSynthesizing
	StateComplete
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSelecting:
		return "selecting"
	case StateStage:
		return "stage"
	case StateSynthesizing:
		return "synthesizing"
	case StateComplete:
		return "complete"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further transitions are allowed.
func (s State) Terminal() bool { return s == StateComplete || s == StateError }

// Session is the state owned by one council run. It is never shared between
// runs.
type Session struct {
	ID       string
	Members  []Member
	Evidence *Evidence

	state State
	stage int // 1-based while in StateStage
}

func newSession(id, prompt string) *Session {
	return &Session{ID: id, Evidence: NewEvidence(prompt)}
}

func (s *Session) State() State { return s.state }

// Stage is the 1-based index of the running stage, or 0 outside StateStage.
func (s *Session) Stage() int {
	if s.state != StateStage {
		return 0
	}
	return s.stage
}

func (s *Session) transition(to State) error {
	from := s.state
	ok := false
	switch {
	case from.Terminal():
	case to == StateError:
		ok = true
	case from == StateIdle && to == StateSelecting:
		ok = true
	case from == StateSelecting && to == StateStage:
		ok = true
	case from == StateStage && to == StateStage:
		ok = true
	case from == StateStage && to == StateSynthesizing:
		ok = true
	case from == StateSynthesizing && to == StateComplete:
		ok = true
	}
	if !ok {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	if to == StateStage {
		s.stage++
	}
	s.state = to
	return nil
}
