package replay

import (
	"errors"
	"fmt"

	gh "github.com/rancher/cherry-pick-bot/internal/github"
)

// Kind classifies replay failures for callers.
type Kind string

const (
	// KindNotFound means the target branch or a source commit does not exist.
	KindNotFound Kind = "not_found"
	// KindMergeConflict means a source commit could not be merged automatically.
	KindMergeConflict Kind = "merge_conflict"
	// KindTransient covers every other remote failure. The engine never retries these.
	KindTransient Kind = "transient"
)

// ErrNoCommits is returned when a replay is requested without source commits.
var ErrNoCommits = errors.New("replay: no commits to replay")

// Error reports the step at which a replay stopped.
type Error struct {
	Kind   Kind
	Op     string
	Commit string
	Err    error
}

func (e *Error) Error() string {
	if e.Commit != "" {
		return fmt.Sprintf("replay %s (commit %s): %v", e.Op, e.Commit, e.Err)
	}
	return fmt.Sprintf("replay %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of a replay error, or "" when err did not come from the engine.
func KindOf(err error) Kind {
	var replayErr *Error
	if errors.As(err, &replayErr) {
		return replayErr.Kind
	}
	return ""
}

// IsMergeConflict reports whether err stopped a replay on a merge conflict.
func IsMergeConflict(err error) bool {
	return KindOf(err) == KindMergeConflict
}

func wrap(op, commit string, err error) error {
	if err == nil {
		return nil
	}

	kind := KindTransient
	switch {
	case errors.Is(err, gh.ErrNotFound), errors.Is(err, gh.ErrBranchNotFound):
		kind = KindNotFound
	case errors.Is(err, gh.ErrMergeConflict):
		kind = KindMergeConflict
	}

	return &Error{Kind: kind, Op: op, Commit: commit, Err: err}
}
