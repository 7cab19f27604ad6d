// Package reaction computes reaction sets. It holds no state and performs no
// I/O, so callers can rerun it inside an optimistic write loop.
package reaction

import (
	"errors"

	"github.com/emilythestrangee/terakoya-timeline/backend/internal/models"
)

// ErrConflict is returned when a user who already reacted tries a different
// reaction type without removing the first one.
var ErrConflict = errors.New("already reacted with a different reaction type")

type Outcome int

const (
	Added Outcome = iota + 1
	Removed
)

func (o Outcome) String() string {
	switch o {
	case Added:
		return "added"
	case Removed:
		return "removed"
	}
	return "unknown"
}

// Reconcile returns the reaction set after applying incoming to existing.
// A first reaction from a user is appended, a repeat of the same type is
// toggled off, and a different type yields ErrConflict. existing is never
// modified.
func Reconcile(existing []models.Reaction, incoming models.Reaction) ([]models.Reaction, Outcome, error) {
	var match *models.Reaction
	for i := range existing {
		if existing[i].UUID == incoming.UUID {
			match = &existing[i]
			break
		}
	}

	if match == nil {
		out := make([]models.Reaction, 0, len(existing)+1)
		out = append(out, existing...)
		return append(out, incoming), Added, nil
	}

	if match.Type != incoming.Type {
		return nil, 0, ErrConflict
	}

	out := make([]models.Reaction, 0, len(existing))
	for _, r := range existing {
		if r.UUID != incoming.UUID {
			out = append(out, r)
		}
	}
	return out, Removed, nil
}
