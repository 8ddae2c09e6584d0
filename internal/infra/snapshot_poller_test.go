package infra

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"hliquity_mirror/internal/domain"
	"hliquity_mirror/internal/event"
	"hliquity_mirror/pkg/quant"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func newTestPoller(t *testing.T, url string, inbox chan event.Event) *SnapshotPoller {
	t.Helper()
	p := NewSnapshotPoller(PollerConfig{
		URL:          url,
		Account:      "0xabc",
		PollInterval: time.Hour,
		Timeout:      time.Second,
		MaxRetries:   2,
		Params:       domain.DefaultParams(),
	}, inbox, 1, &Metrics{})
	p.backoff = func(int) time.Duration { return 0 }
	return p
}

func TestSnapshotPoller_LoadThenSnapshot(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "0xabc", r.URL.Query().Get("account"))
		assert.Equal(t, DefaultUserAgent, r.Header.Get("User-Agent"))
		if calls.Add(1) == 1 {
			w.Write([]byte(`{"block_tag": 10, "price": "200", "number_of_troves": 3}`))
			return
		}
		w.Write([]byte(`{"block_tag": 11, "price": "190"}`))
	}))
	defer server.Close()

	inbox := make(chan event.Event, 4)
	p := newTestPoller(t, server.URL, inbox)
	ctx := context.Background()

	p.poll(ctx)
	require.Len(t, inbox, 1)
	load, ok := (<-inbox).(*event.LoadEvent)
	require.True(t, ok, "first snapshot must load the mirror")
	assert.Equal(t, uint64(1), load.Seq)
	assert.True(t, load.Base.Price.Eq(quant.FromInt(200)))
	assert.Equal(t, uint64(3), load.Base.NumberOfTroves)
	assert.Equal(t, uint64(10), load.Block.BlockTag)

	p.poll(ctx)
	require.Len(t, inbox, 1)
	snap, ok := (<-inbox).(*event.SnapshotEvent)
	require.True(t, ok)
	assert.Equal(t, uint64(2), snap.Seq)
	require.NotNil(t, snap.Update.Price)
	assert.True(t, snap.Update.Price.Eq(quant.FromInt(190)))
	assert.Nil(t, snap.Update.NumberOfTroves)
	event.Release(snap)

	assert.Equal(t, uint64(11), p.metrics.Snapshot().LastBlockTag)
}

func TestSnapshotPoller_SkipsUnchangedBlock(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"block_tag": 7, "price": "200"}`))
	}))
	defer server.Close()

	inbox := make(chan event.Event, 4)
	p := newTestPoller(t, server.URL, inbox)

	p.poll(context.Background())
	p.poll(context.Background())
	assert.Len(t, inbox, 1)
}

func TestSnapshotPoller_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"price": "200"}`))
	}))
	defer server.Close()

	inbox := make(chan event.Event, 1)
	p := newTestPoller(t, server.URL, inbox)

	snap, err := p.fetchWithRetry(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, snap.Update.Price)
	assert.Equal(t, int32(3), calls.Load())

	m := p.metrics.Snapshot()
	assert.Equal(t, uint64(3), m.SnapshotFetches)
	assert.Equal(t, uint64(2), m.FetchFailures)
}

func TestSnapshotPoller_GivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	p := newTestPoller(t, server.URL, make(chan event.Event, 1))

	_, err := p.fetchWithRetry(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSnapshotFetch)
	assert.Equal(t, int32(3), calls.Load(), "one attempt plus MaxRetries")
}

func TestSnapshotPoller_FatalErrorsAreNotRetried(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		invalid bool
	}{
		{"client error", http.StatusNotFound, "", false},
		{"invalid snapshot", http.StatusOK, `{"price": "abc"}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			inbox := make(chan event.Event, 1)
			p := newTestPoller(t, server.URL, inbox)

			_, err := p.fetchWithRetry(context.Background())
			require.Error(t, err)
			assert.False(t, domain.IsRetriable(err))
			assert.Equal(t, tt.invalid, errors.Is(err, domain.ErrInvalidSnapshot))
			assert.Equal(t, int32(1), calls.Load())

			p.poll(context.Background())
			assert.Empty(t, inbox, "failed reads emit nothing")
		})
	}
}

func TestSnapshotPoller_StartStop(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"block_tag": 1, "price": "200"}`))
	}))
	defer server.Close()

	inbox := make(chan event.Event, 1)
	p := newTestPoller(t, server.URL, inbox)

	require.NoError(t, p.Start(context.Background()))

	select {
	case ev := <-inbox:
		assert.Equal(t, event.EvLoad, ev.GetType())
	case <-time.After(2 * time.Second):
		t.Fatal("Timeout waiting for initial snapshot")
	}

	p.Stop()
}

func TestSnapshotPoller_StopWhileInboxFull(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"price": "200"}`))
	}))
	defer server.Close()

	// Unbuffered and never read: emit must give up when the context ends.
	p := newTestPoller(t, server.URL, make(chan event.Event))
	require.NoError(t, p.Start(context.Background()))

	done := make(chan struct{})
	go func() {
		p.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop blocked on a full inbox")
	}
}

func TestSnapshotPoller_RequestLimit(t *testing.T) {
	limited := NewSnapshotPoller(PollerConfig{URL: "http://x/", RequestsPerSecond: 5}, nil, 1, &Metrics{})
	assert.Equal(t, rate.Limit(5), limited.limiter.Limit())

	unlimited := NewSnapshotPoller(PollerConfig{URL: "http://x/"}, nil, 1, &Metrics{})
	assert.Equal(t, rate.Inf, unlimited.limiter.Limit())
}
