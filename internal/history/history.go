// Package history keeps undo/redo stacks of schedule snapshots per
// planning session.
package history

import (
	"errors"
	"time"

	"studycal/internal/scheduler"
)

// DefaultLimit caps the undo stack.
const DefaultLimit = 20

var (
	// ErrEmpty is returned by Undo and Redo when there is nothing to move to.
	ErrEmpty = errors.New("history: nothing to restore")
)

// Snapshot is one saved schedule.
type Snapshot struct {
	ID        string             `json:"id"`
	Label     string             `json:"label"`
	CreatedAt time.Time          `json:"created_at"`
	Events    []scheduler.Record `json:"events"`
}

// History is the state of one session. Current is the schedule on
// screen; Undo holds older snapshots (last is most recent) and Redo the
// ones undone.
type History struct {
	Current *Snapshot  `json:"current,omitempty"`
	Undo    []Snapshot `json:"undo"`
	Redo    []Snapshot `json:"redo"`
	Limit   int        `json:"limit,omitempty"`
}

func (h *History) limit() int {
	if h.Limit <= 0 {
		return DefaultLimit
	}
	return h.Limit
}

// Push makes s current. The previous current snapshot moves onto the undo
// stack and the redo stack is cleared.
func (h *History) Push(s Snapshot) {
	if h.Current != nil {
		h.Undo = append(h.Undo, *h.Current)
		if over := len(h.Undo) - h.limit(); over > 0 {
			h.Undo = append([]Snapshot(nil), h.Undo[over:]...)
		}
	}
	h.Current = &s
	h.Redo = nil
}

// StepBack restores the most recent undo snapshot.
func (h *History) StepBack() (Snapshot, error) {
	if len(h.Undo) == 0 {
		return Snapshot{}, ErrEmpty
	}
	prev := h.Undo[len(h.Undo)-1]
	h.Undo = h.Undo[:len(h.Undo)-1]
	if h.Current != nil {
		h.Redo = append(h.Redo, *h.Current)
	}
	h.Current = &prev
	return prev, nil
}

// StepForward re-applies the most recently undone snapshot.
func (h *History) StepForward() (Snapshot, error) {
	if len(h.Redo) == 0 {
		return Snapshot{}, ErrEmpty
	}
	next := h.Redo[len(h.Redo)-1]
	h.Redo = h.Redo[:len(h.Redo)-1]
	if h.Current != nil {
		h.Undo = append(h.Undo, *h.Current)
	}
	h.Current = &next
	return next, nil
}

// CanUndo and CanRedo report whether StepBack / StepForward would succeed.
func (h *History) CanUndo() bool { return len(h.Undo) > 0 }
func (h *History) CanRedo() bool { return len(h.Redo) > 0 }
