// Package templateguard compiles a restricted forum-template markup language
// (conditionals, whitelisted function calls, includes, inline expressions,
// variable assignment) into safely-executable template logic, without ever
// handing untrusted template text to a general-purpose interpreter.
//
// The host application wraps its template storage with a Runtime and calls
// Fetch wherever it previously fetched raw template text. Plain templates
// pass through untouched; directive-bearing templates come back compiled, and
// any failure along the way degrades to the original text instead of an
// error.
package templateguard

import (
	"templateguard/internal/config"
	"templateguard/internal/evaluator"
	"templateguard/internal/lexer"
	"templateguard/internal/logging"
	"templateguard/internal/runtime"
	"templateguard/internal/storage"
)

// Re-exported types so embedding hosts import a single package.
type (
	// Runtime is the pipeline front door; see [New].
	Runtime = runtime.Runtime
	// Options configures runtime construction.
	Options = runtime.Options
	// Config is the full configuration surface.
	Config = config.Config
	// TemplateStore is the host's template storage boundary.
	TemplateStore = storage.TemplateStore
	// MemoryStore is an in-memory TemplateStore.
	MemoryStore = storage.MemoryStore
	// EscapeMode selects host-side pre-escaping on fetch.
	EscapeMode = storage.EscapeMode
	// Logger is the structured logging interface the runtime uses.
	Logger = logging.Logger
	// Diagnostic is one finding from editor-time validation.
	Diagnostic = lexer.Diagnostic
	// Evaluator executes compiled artifacts.
	Evaluator = evaluator.Evaluator
)

const (
	EscapeNone = storage.EscapeNone
	EscapeHTML = storage.EscapeHTML
)

// New wires a Runtime around the host's template store.
func New(store TemplateStore, opts Options) (*Runtime, error) {
	return runtime.New(store, opts)
}

// NewMemoryStore creates an empty in-memory template store.
func NewMemoryStore() *MemoryStore {
	return storage.NewMemoryStore()
}

// LoadConfig reads configuration from the optional YAML file at path and the
// TEMPLATEGUARD_ environment, layered over defaults.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// DefaultConfig returns the defaults used when no configuration is provided.
func DefaultConfig() *Config {
	return config.Default()
}

// Validate checks template source for structural problems without compiling
// it. Intended for editor-time and pre-save checks.
func Validate(source string) []Diagnostic {
	return lexer.Validate(source)
}

// NewEvaluator creates an evaluator for compiled artifacts. store backs
// <template> includes and may be nil.
func NewEvaluator(store TemplateStore) *Evaluator {
	return evaluator.New(store)
}
