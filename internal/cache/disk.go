package cache

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"templateguard/internal/errors"
)

// DiskCache is the persistent tier: one file per entry under a single
// directory, named deterministically from (scope, identity, hash). Writes go
// to a temp file in the same directory and are renamed into place, so a
// reader never observes a partially written entry and racing writers for the
// same key overwrite each other with identical bytes.
type DiskCache struct {
	dir string
}

// entrySuffix terminates every persistent entry name.
const entrySuffix = ".tpl"

// NewDiskCache creates the persistent tier rooted at dir, creating the
// directory if needed.
func NewDiskCache(dir string) (*DiskCache, error) {
	if dir == "" {
		return nil, errors.NewConfigError("CACHE_DIR_EMPTY", "persistent cache directory is not set")
	}

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, errors.NewCacheError("CACHE_DIR_CREATE", "creating cache directory", err)
	}

	return &DiskCache{dir: dir}, nil
}

// Dir returns the cache directory, for the watcher and janitor.
func (dc *DiskCache) Dir() string {
	return dc.dir
}

// Get reads the entry for key. A missing entry is (_, false, nil); any other
// read failure is reported so callers can decide to treat it as a miss.
func (dc *DiskCache) Get(key Key) (string, bool, error) {
	content, err := os.ReadFile(filepath.Join(dc.dir, key.EntryName()))
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}

		return "", false, errors.NewCacheError("CACHE_READ", "reading cache entry", err)
	}

	return string(content), true, nil
}

// Set writes the entry for key atomically.
func (dc *DiskCache) Set(key Key, content string) error {
	tmp, err := os.CreateTemp(dc.dir, key.EntryName()+".tmp*")
	if err != nil {
		return errors.NewCacheError("CACHE_WRITE", "creating temp cache file", err)
	}

	tmpName := tmp.Name()

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)

		return errors.NewCacheError("CACHE_WRITE", "writing temp cache file", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)

		return errors.NewCacheError("CACHE_WRITE", "closing temp cache file", err)
	}

	if err := os.Rename(tmpName, filepath.Join(dc.dir, key.EntryName())); err != nil {
		os.Remove(tmpName)

		return errors.NewCacheError("CACHE_WRITE", "publishing cache entry", err)
	}

	return nil
}

// Invalidate removes every entry for identity across scopes and hashes.
func (dc *DiskCache) Invalidate(identity string) int {
	sanitized := SanitizeIdentity(identity)

	removed := 0
	for _, name := range dc.list() {
		// Parsed identities are already in sanitized form.
		key, ok := parseEntryName(name)
		if !ok || key.Identity != sanitized {
			continue
		}
		if os.Remove(filepath.Join(dc.dir, name)) == nil {
			removed++
		}
	}

	return removed
}

// Clear removes every entry.
func (dc *DiskCache) Clear() int {
	removed := 0
	for _, name := range dc.list() {
		if os.Remove(filepath.Join(dc.dir, name)) == nil {
			removed++
		}
	}

	return removed
}

// list returns the entry file names currently present. Temp files and
// foreign files are skipped.
func (dc *DiskCache) list() []string {
	dirents, err := os.ReadDir(dc.dir)
	if err != nil {
		return nil
	}

	var names []string
	for _, de := range dirents {
		if de.IsDir() || !strings.HasSuffix(de.Name(), entrySuffix) {
			continue
		}
		names = append(names, de.Name())
	}

	return names
}

// parseEntryName inverts Key.EntryName. Identity comes back in sanitized
// form, which is all invalidation needs.
func parseEntryName(name string) (Key, bool) {
	if !strings.HasSuffix(name, entrySuffix) {
		return Key{}, false
	}
	base := strings.TrimSuffix(name, entrySuffix)

	first := strings.Index(base, "_")
	last := strings.LastIndex(base, "_")
	if first < 0 || last <= first {
		return Key{}, false
	}

	scope, err := strconv.Atoi(base[:first])
	if err != nil {
		return Key{}, false
	}

	return Key{
		ScopeID:  scope,
		Identity: base[first+1 : last],
		Hash:     base[last+1:],
	}, true
}
