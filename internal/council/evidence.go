package council

import (
	"errors"
	"fmt"
)

var ErrSlotFilled = errors.New("evidence slot already filled")

// Entry is one recorded stage output.
type Entry struct {
	Role Role
	Slot Slot
	Text string
}

// Evidence accumulates stage outputs for one session. Slots are write-once
// and kept in the order they were recorded. Evidence is owned by a single
// session goroutine and is not safe for concurrent writes.
type Evidence struct {
	prompt  string
	entries []Entry
}

func NewEvidence(prompt string) *Evidence {
	return &Evidence{prompt: prompt}
}

func (e *Evidence) Prompt() string { return e.prompt }

// Record stores text for role's slot.
func (e *Evidence) Record(role Role, text string) error {
	slot := role.Slot()
	if slot == "" {
		return fmt.Errorf("%w: %s does not produce evidence", ErrBadRegistry, role)
	}
	if _, ok := e.Get(slot); ok {
		return fmt.Errorf("%w: %s", ErrSlotFilled, slot)
	}
	e.entries = append(e.entries, Entry{Role: role, Slot: slot, Text: text})
	return nil
}

// Get returns the text stored in slot.
func (e *Evidence) Get(slot Slot) (string, bool) {
	for _, en := range e.entries {
		if en.Slot == slot {
			return en.Text, true
		}
	}
	return "", false
}

// Text returns the output recorded by role, or "" when absent.
func (e *Evidence) Text(role Role) string {
	s, _ := e.Get(role.Slot())
	return s
}

// Entries returns a copy of the recorded outputs in stage order.
func (e *Evidence) Entries() []Entry {
	return append([]Entry(nil), e.entries...)
}

// Len is the number of filled slots.
func (e *Evidence) Len() int { return len(e.entries) }
