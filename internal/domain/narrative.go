package domain

import (
	"fmt"
	"strings"
)

// Narrative accumulates human-readable notes for every decision point an
// evaluation passes through. Lines are append-only and joined once when the
// trade record is persisted.
type Narrative struct {
	lines []string
}

func NewNarrative() *Narrative {
	return &Narrative{}
}

// Add appends one note.
func (n *Narrative) Add(line string) {
	n.lines = append(n.lines, line)
}

// Addf appends one formatted note.
func (n *Narrative) Addf(format string, args ...any) {
	n.lines = append(n.lines, fmt.Sprintf(format, args...))
}

// Lines returns the recorded notes in order.
func (n *Narrative) Lines() []string {
	return n.lines
}

// String joins the notes into the persisted form.
func (n *Narrative) String() string {
	return strings.Join(n.lines, "\n")
}
