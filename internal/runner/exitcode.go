package runner

import (
	"errors"
	"fmt"

	"github.com/julianshen/worldforge/internal/worlderr"
)

// Process exit codes.
const (
	ExitOK              = 0
	ExitFatal           = 1
	ExitSnapshotMissing = 2
	ExitNotReady        = 3
)

// ExitError is returned when a command should exit with a non-zero code.
// Using a typed error instead of os.Exit ensures deferred cleanup runs.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit code %d", e.Code)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// ExitCodeFor maps a run error onto the process exit code. A not-ready
// verdict only reaches here as an error in strict mode.
func ExitCodeFor(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case worlderr.Has(err, worlderr.KindSnapshotMissing):
		return ExitSnapshotMissing
	case worlderr.Has(err, worlderr.KindCrossValidationNotReady):
		return ExitNotReady
	default:
		return ExitFatal
	}
}

// Exit wraps err in an ExitError carrying its exit code; nil stays nil.
func Exit(err error) error {
	if err == nil {
		return nil
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		return err
	}
	return &ExitError{Code: ExitCodeFor(err), Err: err}
}
