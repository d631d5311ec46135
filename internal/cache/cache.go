package cache

import (
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/tiptally/tiptally/internal/llm"
)

// Stats is a point-in-time snapshot of cache effectiveness.
type Stats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Entries int   `json:"entries"`
}

type entry struct {
	result     llm.ExtractionResult
	insertedAt time.Time
}

// ContentCache maps a normalized-image fingerprint to the extraction
// result previously computed for those exact bytes. Entries expire after
// the configured TTL; expiry is lazy, applied on Get. One instance is
// shared by all concurrent requests, so every method is mutex-guarded.
//
// A benign race is accepted by design: two concurrent misses on the same
// fingerprint may both call upstream and both Put; results are
// idempotent functions of the same bytes, so last-writer-wins is
// harmless.
type ContentCache struct {
	mu      sync.Mutex
	entries map[string]entry
	ttl     time.Duration
	hits    int64
	misses  int64
	logger  *slog.Logger

	// now is swappable for expiry tests
	now func() time.Time
}

func New(ttl time.Duration, logger *slog.Logger) *ContentCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ContentCache{
		entries: make(map[string]entry),
		ttl:     ttl,
		logger:  logger,
		now:     time.Now,
	}
}

// NewWithClock is New with an injectable clock, for tests.
func NewWithClock(ttl time.Duration, logger *slog.Logger, now func() time.Time) *ContentCache {
	c := New(ttl, logger)
	if now != nil {
		c.now = now
	}
	return c
}

// Get returns the cached result for fp, if present and unexpired. An
// expired entry counts as a miss and is removed on the spot. The
// returned result is a snapshot; callers cannot mutate the cached copy.
func (c *ContentCache) Get(fp string) (*llm.ExtractionResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[fp]
	if !ok {
		c.misses++
		return nil, false
	}
	if c.now().Sub(e.insertedAt) > c.ttl {
		delete(c.entries, fp)
		c.misses++
		c.logger.Debug("cache.expired", "fingerprint", fp[:12])
		return nil, false
	}
	c.hits++
	out := cloneResult(e.result)
	return &out, true
}

// Put stores result under fp, overwriting any previous entry with a
// fresh insertion time. Only successful extractions reach here; failures
// are never cached.
func (c *ContentCache) Put(fp string, result *llm.ExtractionResult) {
	if result == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[fp] = entry{result: cloneResult(*result), insertedAt: c.now()}
}

// Flush clears all entries and reports how many were removed.
func (c *ContentCache) Flush() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.entries)
	c.entries = make(map[string]entry)
	c.logger.Info("cache.flush", "removed", n)
	return n
}

// Stats reports hit/miss counters and the current entry count. Expired
// but not-yet-collected entries still count toward Entries.
func (c *ContentCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Hits: c.hits, Misses: c.misses, Entries: len(c.entries)}
}

// cloneResult deep-copies the map/slice members so cache entries stay
// immutable snapshots.
func cloneResult(r llm.ExtractionResult) llm.ExtractionResult {
	out := r
	out.Fields.Confidence = maps.Clone(r.Fields.Confidence)
	out.Fields.Names = slices.Clone(r.Fields.Names)
	return out
}
