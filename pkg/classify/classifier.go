// Package classify asks a local inference backend to classify form fields.
//
// Fields are sent in fixed-size chunks, one backend request per chunk, in
// order. Each chunk's result is cached under a fingerprint of the backend, the
// form HTML and the chunk's fields, so repeated calls on the same page are
// served without touching the backend.
package classify

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/cases"

	"github.com/usestring/formsense/internal/cache"
	"github.com/usestring/formsense/pkg/backend"
	"github.com/usestring/formsense/pkg/extract"
	"github.com/usestring/formsense/pkg/types"
)

// Defaults for classification options.
const (
	DefaultBatchSize              = 10
	DefaultLowConfidenceThreshold = 0.7
	DefaultCacheTTL               = 5 * time.Minute
)

// Options controls one Classify call.
type Options struct {
	BatchSize              int
	OnlyLowConfidence      bool
	LowConfidenceThreshold float64
	Concise                bool
	CacheTTL               time.Duration
	MaxHTMLChars           int
	Verbose                bool
	Page                   types.PageContext
}

// DefaultOptions returns the standard classification options.
func DefaultOptions() Options {
	return Options{
		BatchSize:              DefaultBatchSize,
		OnlyLowConfidence:      true,
		LowConfidenceThreshold: DefaultLowConfidenceThreshold,
		CacheTTL:               DefaultCacheTTL,
		MaxHTMLChars:           DefaultMaxHTMLChars,
	}
}

func (o Options) normalized() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.MaxHTMLChars <= 0 {
		o.MaxHTMLChars = DefaultMaxHTMLChars
	}
	return o
}

// Classifier runs batched, cached classification against one backend.
type Classifier struct {
	backend backend.Backend
	cache   *cache.SuggestionCache
	flight  singleflight.Group
}

// New creates a Classifier. A nil cache gets a fresh private one.
func New(b backend.Backend, c *cache.SuggestionCache) (*Classifier, error) {
	if c == nil {
		var err error
		c, err = cache.NewSuggestionCache(cache.DefaultMaxItems)
		if err != nil {
			return nil, fmt.Errorf("creating suggestion cache: %w", err)
		}
	}
	return &Classifier{backend: b, cache: c}, nil
}

// Backend returns the backend the classifier talks to.
func (c *Classifier) Backend() backend.Backend {
	return c.backend
}

// chunkOutcome is what one backend round trip produced for a chunk.
type chunkOutcome struct {
	suggestions []types.Suggestion
	latencyMs   int64
}

// Classify returns AI suggestions for the fields that need them. Remote
// failures never surface as errors: a failed chunk contributes no suggestions
// and is counted in FailedChunks.
func (c *Classifier) Classify(ctx context.Context, formHTML string, fields []types.FieldDescriptor, opts Options) *types.ClassifyResult {
	opts = opts.normalized()
	result := &types.ClassifyResult{Suggestions: []types.Suggestion{}}

	candidates := SelectCandidates(fields, opts)
	result.Candidates = len(candidates)
	if len(candidates) == 0 {
		return result
	}

	excerpt := Excerpt(formHTML, opts.MaxHTMLChars)
	htmlHash := shortHash(excerpt)
	identity := backend.Identity(c.backend)

	for _, chunk := range Chunk(candidates, opts.BatchSize) {
		result.Chunks++
		key := fingerprint(identity, htmlHash, chunk)

		if entry, ok := c.cache.Get(key, opts.CacheTTL); ok {
			result.Cached = true
			result.Suggestions = append(result.Suggestions, entry.Suggestions...)
			c.logChunk(ctx, opts.Verbose, "chunk served from cache", key, chunk, len(entry.Suggestions), 0)
			continue
		}

		var executed bool
		v, err, _ := c.flight.Do(key, func() (any, error) {
			executed = true
			return c.fetchChunk(ctx, key, excerpt, chunk, opts)
		})
		if executed {
			result.Requests++
		}
		out, _ := v.(chunkOutcome)
		result.LatencyMs += out.latencyMs
		if err != nil {
			result.FailedChunks++
			slog.Warn("chunk classification failed",
				slog.String("backend", identity),
				slog.Int("fields", len(chunk)),
				slog.String("error", err.Error()),
			)
			continue
		}

		result.Suggestions = append(result.Suggestions, out.suggestions...)
		c.logChunk(ctx, opts.Verbose, "chunk classified", key, chunk, len(out.suggestions), out.latencyMs)
	}

	return result
}

// fetchChunk performs the backend round trip for one chunk and caches the
// joined result. Failures are not cached; their elapsed time is still
// reported.
func (c *Classifier) fetchChunk(ctx context.Context, key, excerpt string, chunk []types.FieldDescriptor, opts Options) (chunkOutcome, error) {
	prompt := BuildPrompt(opts.Page, excerpt, chunk, opts.Concise)

	start := time.Now()
	text, err := c.backend.Classify(ctx, prompt)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return chunkOutcome{latencyMs: latency}, err
	}

	suggestions := joinChunk(chunk, extract.Extract(text))
	if len(suggestions) == 0 && opts.Verbose {
		slog.Info("backend answer yielded no suggestions",
			slog.Int("fields", len(chunk)),
			slog.Int("response_length", len(text)),
		)
	}
	c.cache.Put(key, suggestions, latency)
	return chunkOutcome{suggestions: suggestions, latencyMs: latency}, nil
}

// joinChunk ties suggestions to the chunk's original indices. A suggestion
// carrying an index outside the chunk is dropped; one without an index is
// matched to a chunk field by case-folded name.
func joinChunk(chunk []types.FieldDescriptor, suggestions []types.Suggestion) []types.Suggestion {
	fold := cases.Fold()
	indices := roaring.New()
	names := make(map[string]int, len(chunk))
	byIndex := make(map[int]string, len(chunk))
	for _, f := range chunk {
		if !bitmapIndex(f.Index) {
			continue
		}
		indices.Add(uint32(f.Index))
		byIndex[f.Index] = f.Name
		if f.Name == "" {
			continue
		}
		if _, dup := names[fold.String(f.Name)]; !dup {
			names[fold.String(f.Name)] = f.Index
		}
	}

	out := make([]types.Suggestion, 0, len(suggestions))
	for _, s := range suggestions {
		switch {
		case s.Index != nil:
			if !bitmapIndex(*s.Index) || !indices.Contains(uint32(*s.Index)) {
				continue
			}
		case s.Name != "":
			idx, ok := names[fold.String(s.Name)]
			if !ok {
				continue
			}
			s.Index = types.IntPtr(idx)
		default:
			continue
		}
		if s.Name == "" {
			s.Name = byIndex[*s.Index]
		}
		out = append(out, s)
	}
	return out
}

// bitmapIndex reports whether i fits the uint32 index set without aliasing.
func bitmapIndex(i int) bool {
	return i >= 0 && uint64(i) <= math.MaxUint32
}

func (c *Classifier) logChunk(ctx context.Context, verbose bool, msg, key string, chunk []types.FieldDescriptor, suggestions int, latencyMs int64) {
	level := slog.LevelDebug
	if verbose {
		level = slog.LevelInfo
	}
	slog.Log(ctx, level, msg,
		slog.String("key", key),
		slog.Int("first_index", chunk[0].Index),
		slog.Int("fields", len(chunk)),
		slog.Int("suggestions", suggestions),
		slog.Int64("latency_ms", latencyMs),
	)
}

// SelectCandidates returns the fields that should be sent to the backend,
// in their original order.
func SelectCandidates(fields []types.FieldDescriptor, opts Options) []types.FieldDescriptor {
	if !opts.OnlyLowConfidence {
		return append([]types.FieldDescriptor(nil), fields...)
	}
	out := make([]types.FieldDescriptor, 0, len(fields))
	for _, f := range fields {
		if f.DetectionConfidence < opts.LowConfidenceThreshold {
			out = append(out, f)
		}
	}
	return out
}

// Chunk splits fields into consecutive groups of at most size.
func Chunk(fields []types.FieldDescriptor, size int) [][]types.FieldDescriptor {
	if size <= 0 {
		size = DefaultBatchSize
	}
	chunks := make([][]types.FieldDescriptor, 0, (len(fields)+size-1)/size)
	for start := 0; start < len(fields); start += size {
		end := min(start+size, len(fields))
		chunks = append(chunks, fields[start:end])
	}
	return chunks
}

// fingerprint keys a chunk by backend identity, form HTML and chunk fields.
func fingerprint(identity, htmlHash string, chunk []types.FieldDescriptor) string {
	var b strings.Builder
	for _, f := range chunk {
		b.WriteString(strconv.Itoa(f.Index))
		b.WriteByte(':')
		b.WriteString(f.Name)
		b.WriteByte('|')
	}
	return identity + "|" + htmlHash + "|" + shortHash(b.String())
}

func shortHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:8])
}
