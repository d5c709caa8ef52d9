// Package runtime is the public-facing front of the pipeline. It wraps the
// host's template storage by static composition and intercepts template
// fetches: plain templates pass straight through, directive-bearing ones are
// compiled (or served from cache) before being handed back.
//
// The contract that shapes everything here: a compilation failure must never
// break the calling application. Every error on the directive path — parse,
// compile, cache read or write — is caught, logged with the template identity
// and a truncated diagnostic, and answered with the original unmodified text.
package runtime

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"templateguard/internal/cache"
	"templateguard/internal/compiler"
	"templateguard/internal/config"
	"templateguard/internal/errors"
	"templateguard/internal/lexer"
	"templateguard/internal/logging"
	"templateguard/internal/policy"
	"templateguard/internal/storage"
)

// Runtime owns the pipeline components and both cache tiers for its
// lifetime. All state is explicit instance state; nothing is process-global.
type Runtime struct {
	store    storage.TemplateStore
	policy   *policy.Policy
	compiler *compiler.Compiler
	cache    *cache.TieredCache
	janitor  *cache.Janitor
	watcher  *cache.Watcher
	logger   logging.Logger

	cacheEnabled bool
}

// Options configures runtime construction. The zero value uses defaults with
// caching on and no disk tier.
type Options struct {
	// Config supplies the cache and logging surface; nil means defaults.
	Config *config.Config
	// Logger overrides the logger built from Config; nil builds one.
	Logger logging.Logger
}

// New wires a runtime around the host's template store.
func New(store storage.TemplateStore, opts Options) (*Runtime, error) {
	if store == nil {
		return nil, errors.NewInternalError("NIL_STORE", "template store must not be nil", nil)
	}

	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
		cfg.Cache.Dir = "" // no disk tier unless explicitly configured
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		level := logging.LevelInfo
		if cfg.Logging.Verbose {
			level = logging.LevelDebug
		}
		logger = logging.NewLogger(&logging.LoggerConfig{
			Level:  level,
			Format: cfg.Logging.Format,
			Output: nil,
		})
	}
	logger = logger.WithComponent("templateguard")

	pol := policy.New()

	rt := &Runtime{
		store:        store,
		policy:       pol,
		compiler:     compiler.New(pol),
		logger:       logger,
		cacheEnabled: cfg.Cache.Enabled,
	}

	if cfg.Cache.Enabled {
		memory := cache.NewMemoryCache(cfg.Cache.MaxMemoryBytes, cfg.Cache.TTL)

		var disk *cache.DiskCache
		if cfg.Cache.Dir != "" {
			var err error
			disk, err = cache.NewDiskCache(cfg.Cache.Dir)
			if err != nil {
				return nil, err
			}
		}

		rt.cache = cache.NewTiered(memory, disk)

		if disk != nil {
			rt.janitor = cache.NewJanitor(disk, cfg.Cache.Retention, cfg.Cache.CleanupSchedule, logger)
			if err := rt.janitor.Start(); err != nil {
				return nil, errors.NewConfigError("JANITOR_START", "starting cache janitor: "+err.Error())
			}

			if cfg.Cache.WatchDir {
				rt.watcher = cache.NewWatcher(rt.cache, logger)
				if err := rt.watcher.Start(); err != nil {
					logger.Warn(context.Background(), err, "cache watcher unavailable, continuing without it")
					rt.watcher = nil
				}
			}
		}
	}

	return rt, nil
}

// Close stops background cache maintenance. The runtime remains usable for
// fetches afterwards.
func (r *Runtime) Close() {
	if r.watcher != nil {
		r.watcher.Stop()
	}
	if r.janitor != nil {
		r.janitor.Stop()
	}
}

// Fetch returns the processed text for (identity, scopeID). This is the only
// method the host calls on the hot path, and it never returns an error: any
// pipeline failure degrades to the original unmodified template text.
func (r *Runtime) Fetch(identity string, scopeID int) string {
	text, _ := r.fetch(identity, scopeID)

	return text
}

// fetch runs the pipeline and additionally reports whether the returned text
// is a compiled artifact, as opposed to directive-free or degraded source.
func (r *Runtime) fetch(identity string, scopeID int) (string, bool) {
	ctx := context.Background()

	original, err := r.store.GetOriginal(identity, scopeID, storage.EscapeNone)
	if err != nil {
		r.logger.Warn(ctx, err, "template storage fetch failed",
			"template", identity, "scope", scopeID)

		return "", false
	}

	// Fast path: no directive lead-in, nothing to do.
	if !lexer.ContainsDirective(original) {
		return original, false
	}

	hash := ContentHash(original)
	key := cache.Key{Identity: identity, ScopeID: scopeID, Hash: hash}

	if r.cacheEnabled {
		if compiled, ok := r.cache.Get(key); ok {
			return compiled, true
		}
	}

	compiled, err := r.compile(original)
	if err != nil {
		r.logger.Warn(ctx, err, "template compilation failed, serving original text",
			"template", identity, "scope", scopeID,
			"detail", errors.Truncate(err.Error(), 200))

		return original, false
	}

	if r.cacheEnabled {
		if err := r.cache.Set(key, compiled); err != nil {
			// The compiled text is still served; only persistence failed.
			r.logger.Warn(ctx, err, "cache write failed",
				"template", identity, "scope", scopeID)
		}
	}

	return compiled, true
}

// Precompile warms both cache tiers for the given identities ahead of
// traffic. Failures are logged per template and do not abort the batch; the
// returned count is how many templates now have a compiled artifact cached.
// Directive-free templates and templates that degraded to their original
// text do not count.
func (r *Runtime) Precompile(scopeID int, identities ...string) int {
	compiled := 0
	for _, identity := range identities {
		if _, ok := r.fetch(identity, scopeID); ok {
			compiled++
		}
	}

	return compiled
}

// InvalidateTemplate removes every cached entry for identity across scopes
// and hashes, returning the number removed.
func (r *Runtime) InvalidateTemplate(identity string) int {
	if !r.cacheEnabled {
		return 0
	}

	return r.cache.Invalidate(identity)
}

// ClearCache empties both cache tiers, returning the number removed.
func (r *Runtime) ClearCache() int {
	if !r.cacheEnabled {
		return 0
	}

	return r.cache.Clear()
}

// Policy exposes the security policy for editor-time linting tools.
func (r *Runtime) Policy() *policy.Policy {
	return r.policy
}

// compile runs the parse and compile stages.
func (r *Runtime) compile(source string) (string, error) {
	tokens, err := lexer.Parse(source)
	if err != nil {
		return "", err
	}

	return r.compiler.Compile(tokens)
}

// hashLength truncates the hex digest for cache entry names. 64 bits of
// sha256 is plenty for distinguishing revisions of one template.
const hashLength = 16

// ContentHash computes the deterministic digest of template source text used
// as the cache-invalidation key.
func ContentHash(source string) string {
	sum := sha256.Sum256([]byte(source))

	return hex.EncodeToString(sum[:])[:hashLength]
}
