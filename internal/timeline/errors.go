package timeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/emilythestrangee/terakoya-timeline/backend/internal/reaction"
)

var (
	// ErrReactionConflict rejects switching reaction type without removing
	// the previous reaction first.
	ErrReactionConflict = reaction.ErrConflict
	// ErrConcurrentUpdate is returned when a reaction kept losing the
	// compare-and-swap race and retries were exhausted.
	ErrConcurrentUpdate = errors.New("too many concurrent updates, try again")
	// ErrInvalidReaction rejects reaction types outside the known set.
	ErrInvalidReaction = errors.New("invalid reaction")
)

// PartialFailureError reports a multi-step write where the first step was
// stored and a later one was not.
type PartialFailureError struct {
	Step      string
	PostID    string
	CommentID string
	Err       error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("comment %s stored but %s on post %s failed: %v", e.CommentID, e.Step, e.PostID, e.Err)
}

func (e *PartialFailureError) Unwrap() error { return e.Err }

// RecordFailure is one record the propagation sweep could not update.
type RecordFailure struct {
	Collection string `json:"collection"`
	Key        string `json:"key"`
	Err        error  `json:"-"`
	Message    string `json:"error"`
}

// PartialBatchError is returned when some records of a sweep failed.
type PartialBatchError struct {
	Report *PropagationReport
}

func (e *PartialBatchError) Error() string {
	keys := make([]string, len(e.Report.Failures))
	for i, f := range e.Report.Failures {
		keys[i] = f.Collection + "/" + f.Key
	}
	return fmt.Sprintf("user info propagation for %s: %d of %d records failed (%s)",
		e.Report.UUID, len(e.Report.Failures), e.Report.Total(), strings.Join(keys, ", "))
}

func (e *PartialBatchError) Unwrap() []error {
	errs := make([]error, len(e.Report.Failures))
	for i, f := range e.Report.Failures {
		errs[i] = f.Err
	}
	return errs
}
