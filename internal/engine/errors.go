package engine

import (
	"errors"
	"fmt"

	"tabtask/internal/domain"
)

var (
	// ErrNotFound reports a mutation addressed at an item the engine does not hold.
	ErrNotFound = errors.New("not found")
	// ErrReconciliationMiss reports a confirmation whose pending item was
	// already gone. It is logged and otherwise ignored.
	ErrReconciliationMiss = errors.New("reconciliation miss")
	// ErrUnconfirmed is returned to a mutation whose target was created
	// locally but whose create never succeeded.
	ErrUnconfirmed = errors.New("item was never confirmed by the remote store")
	ErrClosed      = errors.New("engine closed")
)

// ValidationError rejects a mutation before anything is applied.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func notFound(field string, r domain.Ref) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf("%s not found", r), Err: ErrNotFound}
}

// SyncFailure is the error of a mutation the remote store rejected. The
// optimistic change has already been undone when it is reported.
type SyncFailure struct {
	Op  string
	Ref domain.Ref
	Err error
}

func (e *SyncFailure) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Ref, e.Err)
}

func (e *SyncFailure) Unwrap() error { return e.Err }

// Message is the user-facing text for the failure.
func (e *SyncFailure) Message() string {
	if m, ok := failureMessages[e.Op]; ok {
		return m
	}
	return "Couldn't save your change. It has been undone."
}

var failureMessages = map[string]string{
	OpAddTab:      "Couldn't create the tab. It has been removed.",
	OpRenameTab:   "Couldn't rename the tab. The old name is back.",
	OpDeleteTab:   "Couldn't delete the tab. It has been restored.",
	OpReorderTabs: "Couldn't save the new tab order. The previous order is back.",
	OpAddTask:     "Couldn't save the new task. It has been removed.",
	OpEditTask:    "Couldn't save the task text. The previous text is back.",
	OpToggleTask:  "Couldn't update the task. It has been reverted.",
	OpDeleteTask:  "Couldn't delete the task. It has been put back.",
	OpReorderTask: "Couldn't save the new task order. The previous order is back.",
	OpRestoreTask: "Couldn't restore the task. It is still in the trash.",
}
