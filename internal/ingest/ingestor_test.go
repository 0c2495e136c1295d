package ingest

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netsentry/netsentry/internal/aggregate"
	"github.com/netsentry/netsentry/internal/models"
	"github.com/netsentry/netsentry/internal/store"
)

type fakeStream struct {
	ch   chan []byte
	done chan struct{}
	once sync.Once
}

func newFakeStream() *fakeStream {
	return &fakeStream{ch: make(chan []byte, 16), done: make(chan struct{})}
}

func (s *fakeStream) Next() ([]byte, error) {
	select {
	case payload := <-s.ch:
		return payload, nil
	case <-s.done:
		return nil, io.EOF
	}
}

func (s *fakeStream) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

// drop simulates the upstream tearing the connection down.
func (s *fakeStream) drop() { s.Close() }

type fakeSource struct {
	mu       sync.Mutex
	fetches  int
	fetchErr error
	events   []models.ThreatEvent
	streams  []*fakeStream
}

func (f *fakeSource) Fetch(context.Context) ([]models.ThreatEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.events, nil
}

func (f *fakeSource) Stream(context.Context) (Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := newFakeStream()
	f.streams = append(f.streams, s)
	return s, nil
}

func (f *fakeSource) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

func (f *fakeSource) streamCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.streams)
}

func (f *fakeSource) stream(n int) *fakeStream {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streams[n]
}

func newTestIngestor(t *testing.T, source Source, opts Options) (*Ingestor, *store.Store, *aggregate.Engine) {
	t.Helper()
	st := store.New(0)
	agg := aggregate.NewEngine()
	ing := New(source, st, agg, nil, opts)
	t.Cleanup(ing.Close)
	return ing, st, agg
}

func TestStartBulkLoadsThenStreams(t *testing.T) {
	source := &fakeSource{events: []models.ThreatEvent{
		{ThreatType: "DDoS Attack", SourceIP: "1.1.1.1", Timestamp: time.Now().Format("2006-01-02 15:04:05")},
		{ThreatType: "Port Scanning", SourceIP: "2.2.2.2", Timestamp: time.Now().Format("2006-01-02 15:04:05")},
	}}
	ing, st, agg := newTestIngestor(t, source, Options{})

	require.NoError(t, ing.Start(context.Background()))
	assert.Equal(t, 2, st.Len())
	assert.Equal(t, 2, agg.Snapshot().Total)

	require.Eventually(t, func() bool {
		return ing.State() == StateConnected
	}, time.Second, 5*time.Millisecond)

	source.stream(0).ch <- []byte(`{"threatType":"SQL Injection Attempt","sourceIP":"3.3.3.3"}`)
	require.Eventually(t, func() bool {
		return st.Len() == 3
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 3, agg.Snapshot().Total)
	assert.True(t, ing.Live())
}

func TestMalformedMessageIsDroppedSilently(t *testing.T) {
	source := &fakeSource{}
	ing, st, _ := newTestIngestor(t, source, Options{})

	require.NoError(t, ing.Start(context.Background()))
	require.Eventually(t, func() bool {
		return ing.State() == StateConnected
	}, time.Second, 5*time.Millisecond)

	source.stream(0).ch <- []byte(`{not json`)
	source.stream(0).ch <- []byte(`{"sourceIP":"1.1.1.1"}`)

	// The valid event after the bad one proves the channel stayed open.
	require.Eventually(t, func() bool {
		return st.Len() == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "1.1.1.1", st.All()[0].SourceIP)
}

func TestStartFailureIsRetryable(t *testing.T) {
	source := &fakeSource{fetchErr: &TransportError{Kind: KindUnreachable}}
	ing, st, _ := newTestIngestor(t, source, Options{})

	err := ing.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateDisconnected, ing.State())
	assert.Zero(t, st.Len())

	// Once the upstream recovers, Start succeeds on a fresh call.
	source.mu.Lock()
	source.fetchErr = nil
	source.events = []models.ThreatEvent{{SourceIP: "1.1.1.1"}}
	source.mu.Unlock()

	require.NoError(t, ing.Start(context.Background()))
	assert.Equal(t, 1, st.Len())
}

func TestDoubleStartRefused(t *testing.T) {
	source := &fakeSource{}
	ing, _, _ := newTestIngestor(t, source, Options{})

	require.NoError(t, ing.Start(context.Background()))
	assert.ErrorIs(t, ing.Start(context.Background()), ErrAlreadyStarted)
}

func TestReconnectRefetchesBeforeStreaming(t *testing.T) {
	source := &fakeSource{events: []models.ThreatEvent{{SourceIP: "1.1.1.1"}}}
	ing, st, _ := newTestIngestor(t, source, Options{ReconnectDelay: 10 * time.Millisecond})

	require.NoError(t, ing.Start(context.Background()))
	require.Eventually(t, func() bool {
		return ing.State() == StateConnected
	}, time.Second, 5*time.Millisecond)

	// Grow the upstream set while "offline" so the repair is observable.
	source.mu.Lock()
	source.events = []models.ThreatEvent{{SourceIP: "1.1.1.1"}, {SourceIP: "2.2.2.2"}}
	source.mu.Unlock()

	source.stream(0).drop()

	require.Eventually(t, func() bool {
		return source.streamCount() == 2 && ing.State() == StateConnected
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, source.fetchCount())
	assert.Equal(t, 2, st.Len())
}

func TestDuplicateFailuresScheduleOneReconnect(t *testing.T) {
	source := &fakeSource{}
	ing, _, _ := newTestIngestor(t, source, Options{ReconnectDelay: 30 * time.Millisecond})

	ctx := context.Background()
	require.NoError(t, ing.Start(ctx))
	require.Eventually(t, func() bool {
		return ing.State() == StateConnected
	}, time.Second, 5*time.Millisecond)

	// Two failures land inside one backoff window; the pending retry
	// absorbs the second.
	ing.scheduleReconnect(ctx)
	ing.scheduleReconnect(ctx)

	require.Eventually(t, func() bool {
		return source.fetchCount() == 2
	}, time.Second, 5*time.Millisecond)

	// Wait out another full window: no second reconnect may fire.
	time.Sleep(90 * time.Millisecond)
	assert.Equal(t, 2, source.fetchCount())
	assert.Equal(t, 2, source.streamCount())
}

func TestCloseCancelsPendingReconnect(t *testing.T) {
	source := &fakeSource{}
	ing, _, _ := newTestIngestor(t, source, Options{ReconnectDelay: 20 * time.Millisecond})

	require.NoError(t, ing.Start(context.Background()))
	require.Eventually(t, func() bool {
		return ing.State() == StateConnected
	}, time.Second, 5*time.Millisecond)

	source.stream(0).drop()
	require.Eventually(t, func() bool {
		return ing.State() == StateConnecting
	}, time.Second, time.Millisecond)

	ing.Close()
	time.Sleep(60 * time.Millisecond)

	assert.Equal(t, 1, source.fetchCount(), "reconnect must not fire after Close")
	assert.Equal(t, 1, source.streamCount())
	assert.Equal(t, StateDisconnected, ing.State())
}

func TestCloseIsIdempotent(t *testing.T) {
	source := &fakeSource{}
	ing, _, _ := newTestIngestor(t, source, Options{})

	require.NoError(t, ing.Start(context.Background()))
	ing.Close()
	ing.Close()
	assert.Equal(t, StateDisconnected, ing.State())
}

func TestLiveness(t *testing.T) {
	current := time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)
	source := &fakeSource{}
	ing, _, _ := newTestIngestor(t, source, Options{
		LivenessWindow: 5 * time.Second,
		Now:            func() time.Time { return current },
	})

	assert.False(t, ing.Live(), "no events yet")

	require.NoError(t, ing.Start(context.Background()))
	require.Eventually(t, func() bool {
		return ing.State() == StateConnected
	}, time.Second, 5*time.Millisecond)

	source.stream(0).ch <- []byte(`{"sourceIP":"1.1.1.1"}`)
	require.Eventually(t, ing.Live, time.Second, 5*time.Millisecond)

	current = current.Add(10 * time.Second)
	assert.False(t, ing.Live())
}
