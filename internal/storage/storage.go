// Package storage defines the boundary to the host application's template
// storage component. The pipeline only ever reads from it — compiled
// artifacts live in the cache, never back in template storage.
package storage

import (
	"fmt"
	"strings"
	"sync"
)

// EscapeMode selects how the host pre-escapes template text on fetch. The
// pipeline always fetches raw text; the other modes exist because the host's
// fetch operation exposes them.
type EscapeMode int

const (
	// EscapeNone returns the stored text verbatim.
	EscapeNone EscapeMode = iota
	// EscapeHTML returns the text with HTML metacharacters escaped.
	EscapeHTML
)

// TemplateStore is the host's fetch-by-name-and-scope operation. A scope
// identifier disambiguates customization contexts (for example visual
// themes) that carry templates under the same identity.
type TemplateStore interface {
	GetOriginal(identity string, scopeID int, escape EscapeMode) (string, error)
}

// MemoryStore is an in-memory TemplateStore for tests and for embedding
// hosts that keep templates in memory.
type MemoryStore struct {
	mu        sync.RWMutex
	templates map[storeKey]string
}

type storeKey struct {
	identity string
	scope    int
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{templates: make(map[storeKey]string)}
}

// Put stores text under (identity, scopeID).
func (ms *MemoryStore) Put(identity string, scopeID int, text string) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.templates[storeKey{identity, scopeID}] = text
}

// GetOriginal implements TemplateStore. Scope fallback: a template missing in
// the requested scope falls back to scope 0, the host's global scope.
func (ms *MemoryStore) GetOriginal(identity string, scopeID int, escape EscapeMode) (string, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	text, ok := ms.templates[storeKey{identity, scopeID}]
	if !ok && scopeID != 0 {
		text, ok = ms.templates[storeKey{identity, 0}]
	}
	if !ok {
		return "", fmt.Errorf("template %q not found in scope %d", identity, scopeID)
	}

	if escape == EscapeHTML {
		return htmlEscape(text), nil
	}

	return text, nil
}

var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
)

func htmlEscape(s string) string {
	return htmlEscaper.Replace(s)
}
