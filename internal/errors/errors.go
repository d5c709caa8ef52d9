// Package errors provides structured error types for the template-directive
// pipeline.
//
// Every failure inside the pipeline is one of four kinds: parse errors from
// the lexer, security errors from the policy, compile errors from the
// compiler, and cache errors from the persistent tier. All of them share a
// single structured type carrying a machine-readable code, the offending
// source fragment, and an optional byte offset, so the runtime can log
// uniformly and callers can branch on kind without string matching.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType categorizes pipeline errors.
type ErrorType string

const (
	ErrorTypeParse    ErrorType = "parse"
	ErrorTypeSecurity ErrorType = "security"
	ErrorTypeCompile  ErrorType = "compile"
	ErrorTypeCache    ErrorType = "cache"
	ErrorTypeConfig   ErrorType = "config"
	ErrorTypeInternal ErrorType = "internal"
)

// Well-known compile error codes. The compiler guarantees structural
// imbalance is reported with one of these, never repaired silently.
const (
	CodeElseWithoutIf   = "ELSE_WITHOUT_IF"
	CodeElseIfWithoutIf = "ELSEIF_WITHOUT_IF"
	CodeUnbalancedIf    = "UNBALANCED_IF"
	CodeUnbalancedFunc  = "UNBALANCED_FUNC"
	CodeForbiddenCall   = "FORBIDDEN_CALL"
	CodeForbiddenExpr   = "FORBIDDEN_EXPR"
	CodeInvalidExpr     = "INVALID_EXPR"
)

// snippetLimit bounds the fragment length embedded in error messages so a
// hostile template cannot blow up log lines.
const snippetLimit = 80

// PipelineError is a structured error with pipeline context.
type PipelineError struct {
	Type        ErrorType
	Code        string
	Message     string
	Cause       error
	Fragment    string // offending source fragment, truncated for display
	Offset      int    // byte offset into the source, -1 when unknown
	Recoverable bool
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	parts = append(parts, e.Message)

	if e.Fragment != "" {
		parts = append(parts, fmt.Sprintf("near %q", Truncate(e.Fragment, snippetLimit)))
	}

	if e.Offset >= 0 {
		parts = append(parts, fmt.Sprintf("at offset %d", e.Offset))
	}

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison by type and code.
func (e *PipelineError) Is(target error) bool {
	var t *PipelineError
	if errors.As(target, &t) {
		return e.Type == t.Type && (t.Code == "" || e.Code == t.Code)
	}

	return false
}

// WithFragment attaches the offending source fragment.
func (e *PipelineError) WithFragment(fragment string) *PipelineError {
	e.Fragment = fragment

	return e
}

// WithOffset attaches the source byte offset.
func (e *PipelineError) WithOffset(offset int) *PipelineError {
	e.Offset = offset

	return e
}

// Error creation functions

// NewParseError creates a lexer error carrying offset and snippet context.
func NewParseError(code, message string, offset int, snippet string) *PipelineError {
	return &PipelineError{
		Type:        ErrorTypeParse,
		Code:        code,
		Message:     message,
		Fragment:    snippet,
		Offset:      offset,
		Recoverable: true,
	}
}

// NewSecurityError creates a policy rejection carrying the offending fragment.
func NewSecurityError(code, message, fragment string) *PipelineError {
	return &PipelineError{
		Type:        ErrorTypeSecurity,
		Code:        code,
		Message:     message,
		Fragment:    fragment,
		Offset:      -1,
		Recoverable: false,
	}
}

// NewCompileError creates a compiler error, optionally wrapping a cause.
func NewCompileError(code, message string, cause error) *PipelineError {
	return &PipelineError{
		Type:        ErrorTypeCompile,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Offset:      -1,
		Recoverable: true,
	}
}

// NewCacheError creates a persistent-cache I/O error.
func NewCacheError(code, message string, cause error) *PipelineError {
	return &PipelineError{
		Type:        ErrorTypeCache,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Offset:      -1,
		Recoverable: true,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string) *PipelineError {
	return &PipelineError{
		Type:        ErrorTypeConfig,
		Code:        code,
		Message:     message,
		Offset:      -1,
		Recoverable: false,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *PipelineError {
	return &PipelineError{
		Type:        ErrorTypeInternal,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Offset:      -1,
		Recoverable: false,
	}
}

// Predicates

// IsParseError checks if an error is a parse error.
func IsParseError(err error) bool {
	return isType(err, ErrorTypeParse)
}

// IsSecurityError checks if an error is a policy rejection.
func IsSecurityError(err error) bool {
	return isType(err, ErrorTypeSecurity)
}

// IsCompileError checks if an error is a compile error.
func IsCompileError(err error) bool {
	return isType(err, ErrorTypeCompile)
}

// IsCacheError checks if an error is a cache I/O error.
func IsCacheError(err error) bool {
	return isType(err, ErrorTypeCache)
}

// IsRecoverable checks if the pipeline may degrade gracefully past this
// error. Everything the runtime catches is recoverable by policy; the flag
// exists so internal misuse (nil stores, bad construction) can fail loudly in
// tests.
func IsRecoverable(err error) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Recoverable
	}

	return false
}

func isType(err error, t ErrorType) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Type == t
	}

	return false
}

// Truncate shortens s to at most n bytes for diagnostics, appending an
// ellipsis when content was dropped.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}

	return s[:n-3] + "..."
}
