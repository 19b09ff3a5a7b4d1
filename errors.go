package bridge

import (
	"fmt"
)

// FormatError reports interchange input or graph state that violates the
// codec's schema. Always fatal to the encode or decode call that raised
// it; the codec never partially converts and never repairs.
type FormatError struct {
	Line    int // 1-based interchange line, 0 when not line-addressable
	Message string
}

func (e *FormatError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("bridge: format: line %d: %s", e.Line, e.Message)
	}
	return "bridge: format: " + e.Message
}

// CompileError reports the first construct of a change brief that cannot
// be resolved into a valid operation. Index is the 0-based position the
// operation would have held in the emitted list, or -1 for brief-level
// failures. No partial operation list accompanies a CompileError.
type CompileError struct {
	Index   int
	Field   string
	Rule    string
	Message string
}

func (e *CompileError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("bridge: compile: %s: %s", e.Rule, e.Message)
	}
	return fmt.Sprintf("bridge: compile: operation %d (%s): %s: %s", e.Index, e.Field, e.Rule, e.Message)
}

// ExecutionError reports the first operation of a list that failed
// re-validation against live graph state. The workflow handed to the
// executor is guaranteed unchanged.
type ExecutionError struct {
	Index   int
	Kind    OpKind
	Message string
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("bridge: execute: operation %d (%s): %s", e.Index, e.Kind, e.Message)
}

// CatalogError reports a missing or malformed class definition. It blocks
// any compile or execute call depending on the entry.
type CatalogError struct {
	Class   string
	Message string
}

func (e *CatalogError) Error() string {
	if e.Class != "" {
		return fmt.Sprintf("bridge: catalog: class %q: %s", e.Class, e.Message)
	}
	return "bridge: catalog: " + e.Message
}

// Violation is a single validation rule failure raised while checking one
// operation against a graph snapshot. The compiler wraps it into a
// CompileError and the executor into an ExecutionError, each adding the
// operation index.
type Violation struct {
	Field   string
	Rule    string
	Message string
}

func (v *Violation) Error() string {
	return v.Rule + ": " + v.Message
}

// Violationf builds a Violation with a formatted message.
func Violationf(field, rule, format string, args ...any) *Violation {
	return &Violation{Field: field, Rule: rule, Message: fmt.Sprintf(format, args...)}
}
