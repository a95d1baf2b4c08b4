package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usestring/formsense/internal/cache"
	"github.com/usestring/formsense/pkg/backend"
	"github.com/usestring/formsense/pkg/probe"
	"github.com/usestring/formsense/pkg/types"
)

// promptFieldPattern recovers (index, name) pairs from a prompt.
var promptFieldPattern = regexp.MustCompile(`"index"\s*:\s*(\d+)\s*,\s*"name"\s*:\s*"(\w+)"`)

// fakeBackend answers every prompt with one suggestion per field it finds.
type fakeBackend struct {
	mu      sync.Mutex
	calls   int
	prompts []string
	delay   time.Duration
	// respond overrides the default answer when set.
	respond func(call int, prompt string) (string, error)
}

func (f *fakeBackend) Kind() types.BackendKind { return types.BackendLMStudio }
func (f *fakeBackend) Host() string            { return "fake" }
func (f *fakeBackend) Port() int               { return 1 }
func (f *fakeBackend) BaseURL() string         { return "http://fake:1" }

func (f *fakeBackend) ProbeHealth(context.Context, probe.Options) types.HealthResult {
	return types.HealthResult{Kind: f.Kind(), Host: f.Host(), Port: f.Port(), Healthy: true}
}

func (f *fakeBackend) Classify(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.respond != nil {
		return f.respond(call, prompt)
	}
	return echoSuggestions(prompt, "firstName", 0.9), nil
}

func (f *fakeBackend) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func echoSuggestions(prompt, suggested string, confidence float64) string {
	var out []map[string]any
	for _, m := range promptFieldPattern.FindAllStringSubmatch(prompt, -1) {
		idx, _ := strconv.Atoi(m[1])
		out = append(out, map[string]any{
			"index":         idx,
			"name":          m[2],
			"suggestedType": suggested,
			"confidence":    confidence,
		})
	}
	data, _ := json.Marshal(out)
	return "Here you go:\n" + string(data)
}

func makeFields(n int, confidence float64) []types.FieldDescriptor {
	fields := make([]types.FieldDescriptor, n)
	for i := range fields {
		fields[i] = types.FieldDescriptor{
			Index:               i,
			Name:                fmt.Sprintf("f%d", i),
			DetectedType:        types.UnknownType,
			DetectionConfidence: confidence,
		}
	}
	return fields
}

func newTestClassifier(t *testing.T, b backend.Backend) *Classifier {
	t.Helper()
	c, err := New(b, nil)
	require.NoError(t, err)
	return c
}

func suggestionIndices(suggestions []types.Suggestion) []int {
	out := make([]int, 0, len(suggestions))
	for _, s := range suggestions {
		out = append(out, *s.Index)
	}
	sort.Ints(out)
	return out
}

const testForm = `<form><input name="a"><input name="b"></form>`

func TestClassify_NoCallWhenAllConfident(t *testing.T) {
	fb := &fakeBackend{}
	c := newTestClassifier(t, fb)

	fields := makeFields(5, 0.9)
	fields[2].DetectionConfidence = 0.7 // at threshold counts as confident

	res := c.Classify(context.Background(), testForm, fields, DefaultOptions())

	assert.Zero(t, fb.callCount())
	assert.NotNil(t, res.Suggestions)
	assert.Empty(t, res.Suggestions)
	assert.False(t, res.Cached)
	assert.Zero(t, res.Chunks)
}

func TestClassify_OnlyLowConfidenceDisabled(t *testing.T) {
	fb := &fakeBackend{}
	c := newTestClassifier(t, fb)

	opts := DefaultOptions()
	opts.OnlyLowConfidence = false
	res := c.Classify(context.Background(), testForm, makeFields(3, 0.99), opts)

	assert.Equal(t, 1, fb.callCount())
	assert.Equal(t, []int{0, 1, 2}, suggestionIndices(res.Suggestions))
}

func TestClassify_BatchingReducesCallCount(t *testing.T) {
	tests := []struct {
		batchSize int
		wantCalls int
	}{
		{batchSize: 10, wantCalls: 2},
		{batchSize: 1, wantCalls: 20},
		{batchSize: 7, wantCalls: 3},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("batch_%d", tt.batchSize), func(t *testing.T) {
			fb := &fakeBackend{}
			c := newTestClassifier(t, fb)

			opts := DefaultOptions()
			opts.BatchSize = tt.batchSize
			res := c.Classify(context.Background(), testForm, makeFields(20, 0.2), opts)

			assert.Equal(t, tt.wantCalls, fb.callCount())
			assert.Equal(t, tt.wantCalls, res.Requests)
			assert.Equal(t, tt.wantCalls, res.Chunks)
			assert.Equal(t, 20, res.Candidates)
			assert.Len(t, res.Suggestions, 20)
		})
	}
}

func TestClassify_FilteredFieldsKeepOriginalIndices(t *testing.T) {
	fb := &fakeBackend{}
	c := newTestClassifier(t, fb)

	fields := makeFields(6, 0.2)
	fields[0].DetectionConfidence = 0.95
	fields[3].DetectionConfidence = 0.95

	opts := DefaultOptions()
	opts.BatchSize = 2
	res := c.Classify(context.Background(), testForm, fields, opts)

	assert.Equal(t, 2, fb.callCount())
	assert.Equal(t, []int{1, 2, 4, 5}, suggestionIndices(res.Suggestions))
	assert.Contains(t, fb.prompts[0], `"index":1,"name":"f1"`)
	assert.Contains(t, fb.prompts[1], `"index":4,"name":"f4"`)
}

func TestClassify_CacheIdempotence(t *testing.T) {
	fb := &fakeBackend{}
	c := newTestClassifier(t, fb)
	fields := makeFields(4, 0.1)
	opts := DefaultOptions()
	opts.BatchSize = 2

	first := c.Classify(context.Background(), testForm, fields, opts)
	require.Equal(t, 2, fb.callCount())
	assert.False(t, first.Cached)

	second := c.Classify(context.Background(), testForm, fields, opts)
	assert.Equal(t, 2, fb.callCount(), "second call must not reach the backend")
	assert.True(t, second.Cached)
	assert.Zero(t, second.Requests)
	assert.Zero(t, second.LatencyMs)
	assert.Equal(t, first.Suggestions, second.Suggestions)
}

func TestClassify_CacheKeyDependsOnHTMLAndFields(t *testing.T) {
	fb := &fakeBackend{}
	c := newTestClassifier(t, fb)
	fields := makeFields(2, 0.1)
	opts := DefaultOptions()

	c.Classify(context.Background(), testForm, fields, opts)
	c.Classify(context.Background(), `<form><input name="other"></form>`, fields, opts)
	assert.Equal(t, 2, fb.callCount())

	renamed := makeFields(2, 0.1)
	renamed[1].Name = "renamed"
	c.Classify(context.Background(), testForm, renamed, opts)
	assert.Equal(t, 3, fb.callCount())
}

func TestClassify_CacheExpires(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	sc, err := cache.NewSuggestionCache(16, cache.WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	fb := &fakeBackend{}
	c, err := New(fb, sc)
	require.NoError(t, err)

	opts := DefaultOptions()
	opts.CacheTTL = time.Minute
	fields := makeFields(1, 0.1)

	c.Classify(context.Background(), testForm, fields, opts)
	now = now.Add(30 * time.Second)
	assert.True(t, c.Classify(context.Background(), testForm, fields, opts).Cached)
	assert.Equal(t, 1, fb.callCount())

	now = now.Add(time.Minute)
	res := c.Classify(context.Background(), testForm, fields, opts)
	assert.False(t, res.Cached)
	assert.Equal(t, 2, fb.callCount())
}

func TestClassify_SharedCacheIsolatedByBackend(t *testing.T) {
	sc, err := cache.NewSuggestionCache(16)
	require.NoError(t, err)

	fb := &fakeBackend{}
	c1, err := New(fb, sc)
	require.NoError(t, err)

	other, err := backend.New(types.BackendOllama, "127.0.0.1", 1, backend.WithRequestTimeout(10*time.Millisecond))
	require.NoError(t, err)
	c2, err := New(other, sc)
	require.NoError(t, err)

	fields := makeFields(1, 0.1)
	c1.Classify(context.Background(), testForm, fields, DefaultOptions())
	res := c2.Classify(context.Background(), testForm, fields, DefaultOptions())
	assert.False(t, res.Cached)
}

func TestClassify_IndexPreservingJoin(t *testing.T) {
	fb := &fakeBackend{respond: func(int, string) (string, error) {
		return `[
			{"index":1,"suggestedType":"lastName","confidence":0.8},
			{"index":0,"suggestedType":"firstName","confidence":0.9},
			{"index":7,"suggestedType":"email","confidence":0.9},
			{"name":"B","suggestedType":"lastName","confidence":0.5},
			{"name":"zzz","suggestedType":"city","confidence":0.5}
		]`, nil
	}}
	c := newTestClassifier(t, fb)
	fields := []types.FieldDescriptor{
		{Index: 0, Name: "a", DetectedType: types.UnknownType},
		{Index: 1, Name: "b", DetectedType: types.UnknownType},
	}

	res := c.Classify(context.Background(), testForm, fields, DefaultOptions())

	require.Len(t, res.Suggestions, 3)
	assert.Equal(t, 1, *res.Suggestions[0].Index)
	assert.Equal(t, "b", res.Suggestions[0].Name)
	assert.Equal(t, "lastName", res.Suggestions[0].SuggestedType)
	assert.Equal(t, 0, *res.Suggestions[1].Index)
	assert.Equal(t, "a", res.Suggestions[1].Name)
	assert.Equal(t, "firstName", res.Suggestions[1].SuggestedType)
	// Name-only answer joined by folded name.
	assert.Equal(t, 1, *res.Suggestions[2].Index)
	assert.Equal(t, "B", res.Suggestions[2].Name)
}

func TestClassify_FailureIsolation(t *testing.T) {
	fb := &fakeBackend{}
	fb.respond = func(call int, prompt string) (string, error) {
		if call == 1 {
			return "", &backend.StatusError{StatusCode: http.StatusInternalServerError}
		}
		return echoSuggestions(prompt, "email", 0.8), nil
	}
	c := newTestClassifier(t, fb)
	opts := DefaultOptions()
	opts.BatchSize = 2
	fields := makeFields(6, 0.1)

	res := c.Classify(context.Background(), testForm, fields, opts)
	assert.Equal(t, 3, fb.callCount())
	assert.Equal(t, 1, res.FailedChunks)
	assert.Equal(t, []int{2, 3, 4, 5}, suggestionIndices(res.Suggestions))

	// The failed chunk was not cached and is retried; the others are served from cache.
	res = c.Classify(context.Background(), testForm, fields, opts)
	assert.Equal(t, 4, fb.callCount())
	assert.True(t, res.Cached)
	assert.Zero(t, res.FailedChunks)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5}, suggestionIndices(res.Suggestions))
}

func TestClassify_MalformedResponse(t *testing.T) {
	fb := &fakeBackend{respond: func(int, string) (string, error) {
		return "here's your answer: not json", nil
	}}
	c := newTestClassifier(t, fb)

	res := c.Classify(context.Background(), testForm, makeFields(2, 0.1), DefaultOptions())
	assert.NotNil(t, res.Suggestions)
	assert.Empty(t, res.Suggestions)
	assert.Zero(t, res.FailedChunks)
}

func TestClassify_ConcisePrompt(t *testing.T) {
	fb := &fakeBackend{}
	c := newTestClassifier(t, fb)
	fields := makeFields(2, 0.1)

	c.Classify(context.Background(), testForm, fields, DefaultOptions())
	opts := DefaultOptions()
	opts.Concise = true
	c.Classify(context.Background(), `<form><input name="c"></form>`, fields, opts)

	require.Len(t, fb.prompts, 2)
	assert.Less(t, len(fb.prompts[1]), len(fb.prompts[0]))
}

// Fewer, larger requests should win as the field count grows.
func TestClassify_BatchingBenchmark(t *testing.T) {
	if testing.Short() {
		t.Skip("timing test")
	}
	run := func(batchSize int) (int, time.Duration) {
		fb := &fakeBackend{delay: 10 * time.Millisecond}
		c := newTestClassifier(t, fb)
		opts := DefaultOptions()
		opts.BatchSize = batchSize

		start := time.Now()
		c.Classify(context.Background(), testForm, makeFields(20, 0.1), opts)
		return fb.callCount(), time.Since(start)
	}

	batchedCalls, batchedTime := run(10)
	singleCalls, singleTime := run(1)

	assert.Equal(t, 2, batchedCalls)
	assert.Equal(t, 20, singleCalls)
	assert.Less(t, batchedTime, singleTime)
}

func TestClassify_AgainstLMStudio(t *testing.T) {
	var generateCalls int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		mu.Lock()
		generateCalls++
		mu.Unlock()

		var body struct {
			Prompt string `json:"prompt"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		content := echoSuggestions(body.Prompt, "firstName", 0.9)
		_ = json.NewEncoder(w).Encode(map[string]string{"content": content})
	}))
	defer srv.Close()

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	host, portStr, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	b, err := backend.New(types.BackendLMStudio, host, port)
	require.NoError(t, err)
	c := newTestClassifier(t, b)

	fields := []types.FieldDescriptor{
		{Index: 0, Name: "a", DetectionConfidence: 0.3},
		{Index: 1, Name: "b", DetectionConfidence: 0.2},
		{Index: 2, Name: "c", DetectionConfidence: 0.1},
		{Index: 3, Name: "d", DetectionConfidence: 0.1},
		{Index: 4, Name: "e", DetectionConfidence: 0.2},
	}
	opts := DefaultOptions()
	opts.BatchSize = 2

	res := c.Classify(context.Background(), `<form><input name="a"><input name="b"><input name="c"><input name="d"><input name="e"></form>`, fields, opts)
	assert.Equal(t, 3, generateCalls)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, suggestionIndices(res.Suggestions))
	assert.False(t, res.Cached)
	assert.GreaterOrEqual(t, res.LatencyMs, int64(0))
}

func TestClassify_BackendDownDegrades(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close()

	u, err := url.Parse(addr)
	require.NoError(t, err)
	host, portStr, _ := net.SplitHostPort(u.Host)
	port, _ := strconv.Atoi(portStr)

	b, err := backend.New(types.BackendLMStudio, host, port)
	require.NoError(t, err)
	c := newTestClassifier(t, b)

	res := c.Classify(context.Background(), testForm, makeFields(3, 0.1), DefaultOptions())
	assert.Empty(t, res.Suggestions)
	assert.Equal(t, 1, res.FailedChunks)
	assert.Equal(t, 1, res.Requests)
}

func TestClassify_FailedChunkLatencyCounts(t *testing.T) {
	fb := &fakeBackend{
		delay: 30 * time.Millisecond,
		respond: func(int, string) (string, error) {
			return "", &backend.StatusError{StatusCode: http.StatusGatewayTimeout}
		},
	}
	c := newTestClassifier(t, fb)

	res := c.Classify(context.Background(), testForm, makeFields(2, 0.1), DefaultOptions())
	assert.Equal(t, 1, res.FailedChunks)
	assert.Empty(t, res.Suggestions)
	assert.GreaterOrEqual(t, res.LatencyMs, int64(30))
}

func TestJoinChunk_IndicesDoNotAlias(t *testing.T) {
	if strconv.IntSize < 64 {
		t.Skip("needs 64-bit int")
	}
	var shift uint = 32
	wide := 1 << shift

	chunk := []types.FieldDescriptor{
		{Index: 0, Name: "a"},
		{Index: -1, Name: "neg"},
	}
	suggestions := []types.Suggestion{
		{Index: types.IntPtr(wide), SuggestedType: "email", Confidence: 0.9},
		{Index: types.IntPtr(wide - 1), SuggestedType: "city", Confidence: 0.9},
		{Index: types.IntPtr(0), SuggestedType: "firstName", Confidence: 0.9},
	}

	out := joinChunk(chunk, suggestions)
	require.Len(t, out, 1)
	assert.Equal(t, 0, *out[0].Index)
	assert.Equal(t, "firstName", out[0].SuggestedType)
}
