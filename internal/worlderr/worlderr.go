// Package worlderr defines the error taxonomy shared by every pipeline stage.
//
// Each stage returns either a plain wrapped error, a *Error carrying a Kind,
// or accumulates Warnings for non-fatal conditions. Kind.Fatal decides whether
// a failure aborts the run.
package worlderr

import (
	"errors"
	"fmt"
)

// Kind identifies one entry of the pipeline's failure taxonomy.
type Kind string

const (
	KindSnapshotMissing         Kind = "SnapshotMissing"
	KindSnapshotCorrupt         Kind = "SnapshotCorrupt"
	KindSchemaMismatch          Kind = "SchemaMismatch"
	KindDuplicateEntityUUID     Kind = "DuplicateEntityUuid"
	KindMapPayloadMalformed     Kind = "MapPayloadMalformed"
	KindMapTileInvalid          Kind = "MapTileInvalid"
	KindPatternAnalysisPartial  Kind = "PatternAnalysisPartial"
	KindLLMUnavailable          Kind = "LLMUnavailable"
	KindLLMSchemaViolation      Kind = "LLMSchemaViolation"
	KindLLMCacheCorrupt         Kind = "LLMCacheCorrupt"
	KindCrossValidationNotReady Kind = "CrossValidationNotReady"
	KindDBTransactionFailed     Kind = "DBTransactionFailed"
	KindEmitterTemplateError    Kind = "EmitterTemplateError"
	KindIO                      Kind = "IO"
)

// Fatal reports whether a failure of this kind aborts the run.
// CrossValidationNotReady is non-fatal here; strict mode promotes it.
func (k Kind) Fatal() bool {
	switch k {
	case KindSnapshotMissing, KindSnapshotCorrupt, KindSchemaMismatch,
		KindDuplicateEntityUUID, KindMapPayloadMalformed, KindIO:
		return true
	default:
		return false
	}
}

// Error is a classified failure raised by a pipeline component.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error of the same kind, so callers can write
// errors.Is(err, worlderr.New(worlderr.KindSnapshotMissing, "", nil)).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// New returns a classified error.
func New(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf returns a classified error with a formatted cause.
func Errorf(kind Kind, op string, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the Kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Has reports whether err's chain carries the given kind.
func Has(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// IsFatal reports whether err aborts the run. Unclassified errors are fatal.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	k, ok := KindOf(err)
	if !ok {
		return true
	}
	return k.Fatal()
}

// Warning is a non-fatal condition accumulated into the analysis report.
type Warning struct {
	Kind      Kind   `json:"kind"`
	Component string `json:"component"`
	Subject   string `json:"subject,omitempty"`
	Message   string `json:"message"`
}

func (w Warning) String() string {
	if w.Subject == "" {
		return fmt.Sprintf("[%s] %s: %s", w.Component, w.Kind, w.Message)
	}
	return fmt.Sprintf("[%s] %s (%s): %s", w.Component, w.Kind, w.Subject, w.Message)
}

// Warnf builds a Warning with a formatted message.
func Warnf(kind Kind, component, subject, format string, args ...any) Warning {
	return Warning{
		Kind:      kind,
		Component: component,
		Subject:   subject,
		Message:   fmt.Sprintf(format, args...),
	}
}
