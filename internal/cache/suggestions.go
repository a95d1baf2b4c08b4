// Package cache provides caching utilities for the classifier.
package cache

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/usestring/formsense/pkg/types"
)

// DefaultMaxItems bounds the number of chunk results kept.
const DefaultMaxItems = 512

// Entry is one cached chunk result.
type Entry struct {
	Key         string
	Suggestions []types.Suggestion
	LatencyMs   int64
	StoredAt    time.Time
}

// SuggestionCache maps chunk fingerprints to suggestion sets.
// Entries go stale after a caller-supplied TTL; stale entries read as misses
// and are left in place until overwritten or pushed out by the LRU bound.
type SuggestionCache struct {
	cache *lru.Cache[string, Entry]
	now   func() time.Time
}

// Option is a functional option for configuring the SuggestionCache.
type Option func(*SuggestionCache)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *SuggestionCache) {
		c.now = now
	}
}

// NewSuggestionCache creates a cache holding at most maxItems chunk results.
func NewSuggestionCache(maxItems int, opts ...Option) (*SuggestionCache, error) {
	if maxItems <= 0 {
		maxItems = DefaultMaxItems
	}
	c, err := lru.New[string, Entry](maxItems)
	if err != nil {
		return nil, err
	}
	sc := &SuggestionCache{cache: c, now: time.Now}
	for _, opt := range opts {
		opt(sc)
	}
	return sc, nil
}

// Get returns the entry for key if it was stored less than ttl ago.
// A non-positive ttl disables reads.
func (c *SuggestionCache) Get(key string, ttl time.Duration) (Entry, bool) {
	if ttl <= 0 {
		return Entry{}, false
	}
	e, ok := c.cache.Get(key)
	if !ok {
		return Entry{}, false
	}
	if c.now().Sub(e.StoredAt) >= ttl {
		return Entry{}, false
	}
	e.Suggestions = cloneSuggestions(e.Suggestions)
	return e, true
}

// Put stores suggestions under key, replacing any previous entry.
func (c *SuggestionCache) Put(key string, suggestions []types.Suggestion, latencyMs int64) Entry {
	e := Entry{
		Key:         key,
		Suggestions: cloneSuggestions(suggestions),
		LatencyMs:   latencyMs,
		StoredAt:    c.now(),
	}
	c.cache.Add(key, e)
	return e
}

// Len returns the current number of items in the cache, stale ones included.
func (c *SuggestionCache) Len() int {
	return c.cache.Len()
}

// Purge drops every entry.
func (c *SuggestionCache) Purge() {
	c.cache.Purge()
}

func cloneSuggestions(in []types.Suggestion) []types.Suggestion {
	out := make([]types.Suggestion, len(in))
	for i, s := range in {
		if s.Index != nil {
			s.Index = types.IntPtr(*s.Index)
		}
		out[i] = s
	}
	return out
}
