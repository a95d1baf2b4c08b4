package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSleep captures requested backoff delays without waiting.
type recordingSleep struct {
	delays []time.Duration
}

func (r *recordingSleep) sleep(_ context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return nil
}

func TestOptions_Delay(t *testing.T) {
	opts := Options{Timeout: 1000 * time.Millisecond, Retries: 3, Backoff: 1.5}

	assert.Equal(t, time.Duration(0), opts.Delay(1))
	assert.Equal(t, 1000*time.Millisecond, opts.Delay(2))
	assert.Equal(t, 1500*time.Millisecond, opts.Delay(3))
	assert.Equal(t, 2250*time.Millisecond, opts.Delay(4))
}

func TestProbe_BackoffGrowthAndAttemptCap(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	rec := &recordingSleep{}
	c := New(WithSleep(rec.sleep))

	res := c.Probe(context.Background(), srv.URL+"/health", Options{
		Timeout: 1000 * time.Millisecond,
		Retries: 3,
		Backoff: 1.5,
	})

	assert.False(t, res.OK)
	assert.Equal(t, http.StatusServiceUnavailable, res.Status)
	assert.Equal(t, "HTTP 503", res.Error)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, int32(3), hits.Load())
	assert.Equal(t, []time.Duration{1000 * time.Millisecond, 1500 * time.Millisecond}, rec.delays)
}

func TestProbe_SucceedsAfterFailure(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	rec := &recordingSleep{}
	c := New(WithSleep(rec.sleep))

	res := c.Probe(context.Background(), srv.URL, DefaultOptions())
	require.True(t, res.OK)
	assert.Equal(t, http.StatusOK, res.Status)
	assert.Equal(t, 2, res.Attempts)
	assert.Empty(t, res.Error)
	assert.Len(t, rec.delays, 1)
}

func TestProbe_FirstSuccessNoSleep(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	rec := &recordingSleep{}
	res := New(WithSleep(rec.sleep)).Probe(context.Background(), srv.URL, DefaultOptions())

	assert.True(t, res.OK)
	assert.Equal(t, 1, res.Attempts)
	assert.Empty(t, rec.delays)
	assert.GreaterOrEqual(t, res.LatencyMs, int64(0))
}

func TestProbe_TimeoutAbortsAttempt(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	rec := &recordingSleep{}
	res := New(WithSleep(rec.sleep)).Probe(context.Background(), srv.URL, Options{
		Timeout: 20 * time.Millisecond,
		Retries: 2,
		Backoff: 2,
	})

	assert.False(t, res.OK)
	assert.Equal(t, 2, res.Attempts)
	assert.NotEmpty(t, res.Error)
	assert.Equal(t, []time.Duration{20 * time.Millisecond}, rec.delays)
}

func TestProbe_MalformedURL(t *testing.T) {
	rec := &recordingSleep{}
	res := New(WithSleep(rec.sleep)).Probe(context.Background(), "http://[::1", DefaultOptions())

	assert.False(t, res.OK)
	assert.Contains(t, res.Error, "invalid probe URL")
	assert.Zero(t, res.Attempts)
	assert.Empty(t, rec.delays)
}

func TestProbe_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close()

	rec := &recordingSleep{}
	res := New(WithSleep(rec.sleep)).Probe(context.Background(), addr, Options{Timeout: 200 * time.Millisecond, Retries: 2, Backoff: 1.5})

	assert.False(t, res.OK)
	assert.Equal(t, 2, res.Attempts)
	assert.NotEmpty(t, res.Error)
}

func TestProbe_ZeroRetriesMeansOneAttempt(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	res := New().Probe(context.Background(), srv.URL, Options{Timeout: time.Second, Retries: 0})
	assert.False(t, res.OK)
	assert.Equal(t, int32(1), hits.Load())
}
