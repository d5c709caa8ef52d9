// Package cache stores compiled template artifacts in two tiers: an
// in-process LRU map owned by one runtime instance, and a persistent
// directory of entry files shared between processes.
//
// Entries are keyed by template identity, scope identifier and a content hash
// of the source text. Because the hash participates in the key, a source edit
// changes the key and the stale entry simply stops being found — no explicit
// staleness check exists anywhere. Disk writes are atomic
// (write-to-temp-then-rename), so concurrent writers racing on the same key
// produce byte-identical files and the losing writer's work is discarded, not
// corrupted.
package cache

import (
	"fmt"
	"strings"
)

// Key identifies one compiled artifact.
type Key struct {
	Identity string
	ScopeID  int
	Hash     string
}

// SanitizeIdentity maps a template identity to its file-name-safe form.
// Alphanumeric bytes pass through; everything else (including '-', the escape
// marker itself) becomes '-' plus its two-digit hex value. The mapping is
// injective, so distinct identities never share entry names and invalidating
// one identity cannot touch another's entries. Underscores stay free for use
// as the entry-name field separator.
func SanitizeIdentity(identity string) string {
	var b strings.Builder
	b.Grow(len(identity))

	for i := 0; i < len(identity); i++ {
		c := identity[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			b.WriteByte(c)

			continue
		}
		fmt.Fprintf(&b, "-%02x", c)
	}

	return b.String()
}

// EntryName derives the deterministic persistent entry name for a key.
func (k Key) EntryName() string {
	return fmt.Sprintf("%d_%s_%s.tpl", k.ScopeID, SanitizeIdentity(k.Identity), k.Hash)
}

// memKey is the in-process map key; identity is stored sanitized so memory
// and disk invalidation agree on what "same identity" means.
func (k Key) memKey() memKey {
	return memKey{scope: k.ScopeID, identity: SanitizeIdentity(k.Identity), hash: k.Hash}
}

type memKey struct {
	scope    int
	identity string
	hash     string
}

// TieredCache consults the memory tier before the disk tier. The disk tier is
// optional; a nil disk cache leaves the memory tier operating alone.
type TieredCache struct {
	memory *MemoryCache
	disk   *DiskCache
}

// NewTiered combines a memory tier with an optional disk tier.
func NewTiered(memory *MemoryCache, disk *DiskCache) *TieredCache {
	return &TieredCache{memory: memory, disk: disk}
}

// Get returns the cached artifact for key. A disk read error is treated as a
// miss; disk hits are promoted into the memory tier.
func (tc *TieredCache) Get(key Key) (string, bool) {
	if content, ok := tc.memory.Get(key); ok {
		return content, true
	}

	if tc.disk == nil {
		return "", false
	}

	content, ok, err := tc.disk.Get(key)
	if err != nil || !ok {
		return "", false
	}

	tc.memory.Set(key, content)

	return content, true
}

// Set writes the artifact to both tiers. The memory write always succeeds;
// a disk write failure is returned for the caller to log and ignore — the
// compiled text is still served from memory.
func (tc *TieredCache) Set(key Key, content string) error {
	tc.memory.Set(key, content)

	if tc.disk == nil {
		return nil
	}

	return tc.disk.Set(key, content)
}

// Invalidate removes every entry for identity across all scopes and hashes,
// in both tiers, and returns the number of entries removed.
func (tc *TieredCache) Invalidate(identity string) int {
	removed := tc.memory.Invalidate(identity)
	if tc.disk != nil {
		removed += tc.disk.Invalidate(identity)
	}

	return removed
}

// Clear empties both tiers and returns the number of entries removed.
func (tc *TieredCache) Clear() int {
	removed := tc.memory.Clear()
	if tc.disk != nil {
		removed += tc.disk.Clear()
	}

	return removed
}

// EvictMemory drops a single memory-tier entry by persistent entry name. The
// disk watcher calls this when another process removes or replaces the
// backing file.
func (tc *TieredCache) EvictMemory(entryName string) {
	if key, ok := parseEntryName(entryName); ok {
		tc.memory.Delete(key)
	}
}
