package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/netsentry/netsentry/internal/aggregate"
	"github.com/netsentry/netsentry/internal/logging"
	"github.com/netsentry/netsentry/internal/metrics"
	"github.com/netsentry/netsentry/internal/models"
	"github.com/netsentry/netsentry/internal/store"
)

// State is the ingestor connection state.
type State string

// Connection states. A failed stream moves back through Connecting while the
// reconnect timer is pending.
const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)

// ErrAlreadyStarted means Start was called while the pipeline is running.
var ErrAlreadyStarted = errors.New("ingestor already started")

// Defaults for the reconnect and liveness policies.
const (
	DefaultReconnectDelay = 5 * time.Second
	DefaultLivenessWindow = 5 * time.Second
)

// Options tune the ingestor. Zero values take the defaults above.
type Options struct {
	ReconnectDelay time.Duration
	LivenessWindow time.Duration
	Now            func() time.Time
}

// Ingestor drives the pipeline: bulk load, stream consumption, and the
// single-shot reconnect policy. It is the only writer to the store; every
// successful append is followed synchronously by a snapshot recomputation so
// the event set and the derived stats never drift apart by more than one
// event.
type Ingestor struct {
	source Source
	store  *store.Store
	agg    *aggregate.Engine
	log    *logging.Logger

	reconnectDelay time.Duration
	livenessWindow time.Duration
	now            func() time.Time

	mu           sync.Mutex
	state        State
	closed       bool
	retryPending bool
	retryTimer   *time.Timer
	cancel       context.CancelFunc

	lastUpdate   time.Time
	lastUpdateMu sync.RWMutex
}

// New wires an ingestor to its store and aggregation engine.
func New(source Source, st *store.Store, agg *aggregate.Engine, log *logging.Logger, opts Options) *Ingestor {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.LivenessWindow <= 0 {
		opts.LivenessWindow = DefaultLivenessWindow
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if log == nil {
		log = logging.Default()
	}
	return &Ingestor{
		source:         source,
		store:          st,
		agg:            agg,
		log:            log,
		reconnectDelay: opts.ReconnectDelay,
		livenessWindow: opts.LivenessWindow,
		now:            opts.Now,
		state:          StateDisconnected,
	}
}

// Start performs the initial bulk load and, on success, begins streaming in
// the background. A bulk-load failure is returned to the caller (the one
// user-visible, blocking error) and nothing is started; Start may be called
// again to retry.
func (i *Ingestor) Start(ctx context.Context) error {
	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return context.Canceled
	}
	if i.state != StateDisconnected {
		i.mu.Unlock()
		return ErrAlreadyStarted
	}
	runCtx, cancel := context.WithCancel(ctx)
	i.cancel = cancel
	i.state = StateConnecting
	i.mu.Unlock()

	if err := i.bulkLoad(runCtx); err != nil {
		i.setState(StateDisconnected)
		cancel()
		return err
	}

	go i.streamLoop(runCtx)
	return nil
}

// Close tears the ingestor down: the stream is closed via context
// cancellation and any pending reconnect timer is stopped. A timer that
// already fired becomes a no-op. Close is idempotent.
func (i *Ingestor) Close() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return
	}
	i.closed = true
	i.retryPending = false
	if i.retryTimer != nil {
		i.retryTimer.Stop()
		i.retryTimer = nil
	}
	if i.cancel != nil {
		i.cancel()
	}
	i.state = StateDisconnected
	metrics.StreamConnected.Set(0)
}

// State reports the current connection state.
func (i *Ingestor) State() State {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}

// LastUpdate is the instant of the most recent successfully ingested event.
func (i *Ingestor) LastUpdate() time.Time {
	i.lastUpdateMu.RLock()
	defer i.lastUpdateMu.RUnlock()
	return i.lastUpdate
}

// Live reports whether an event arrived within the liveness window. Purely
// presentational; never used for control flow.
func (i *Ingestor) Live() bool {
	last := i.LastUpdate()
	if last.IsZero() {
		return false
	}
	return i.now().Sub(last) < i.livenessWindow
}

// bulkLoad fetches the full current event set and replaces the store
// contents, repairing anything missed while disconnected.
func (i *Ingestor) bulkLoad(ctx context.Context) error {
	events, err := i.source.Fetch(ctx)
	if err != nil {
		metrics.BulkFetches.WithLabelValues("error").Inc()
		return err
	}
	metrics.BulkFetches.WithLabelValues("ok").Inc()

	i.store.ReplaceAll(events)
	metrics.StoreEvents.Set(float64(i.store.Len()))
	i.agg.Recompute(i.store.All())
	i.log.Info("bulk event load complete", logging.FieldEventCount, len(events))
	return nil
}

// streamLoop consumes the push channel until it fails, then hands off to the
// reconnect scheduler.
func (i *Ingestor) streamLoop(ctx context.Context) {
	stream, err := i.source.Stream(ctx)
	if err != nil {
		i.log.Warn("event stream failed to open", logging.FieldError, err.Error())
		i.scheduleReconnect(ctx)
		return
	}

	i.setState(StateConnected)
	metrics.StreamConnected.Set(1)
	i.log.Info("event stream connected")

	for {
		payload, err := stream.Next()
		if err != nil {
			_ = stream.Close()
			metrics.StreamConnected.Set(0)
			if ctx.Err() != nil {
				return
			}
			i.log.Warn("event stream dropped", logging.FieldError, err.Error())
			i.setState(StateConnecting)
			i.scheduleReconnect(ctx)
			return
		}
		i.handleMessage(payload)
	}
}

// handleMessage appends one decoded event and recomputes the snapshot.
// Messages that fail to decode are dropped silently; the channel stays open.
func (i *Ingestor) handleMessage(payload []byte) {
	var event models.ThreatEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		metrics.EventsDropped.Inc()
		i.log.Debug("dropped unparseable stream message", logging.FieldError, err.Error())
		return
	}

	i.store.Append(event)
	metrics.EventsIngested.Inc()
	metrics.StoreEvents.Set(float64(i.store.Len()))
	i.agg.Recompute(i.store.All())

	i.lastUpdateMu.Lock()
	i.lastUpdate = i.now()
	i.lastUpdateMu.Unlock()
}

// scheduleReconnect arms the single-shot reconnect timer. If an attempt is
// already pending, further failures are absorbed; at most one reconnect is
// ever in flight.
func (i *Ingestor) scheduleReconnect(ctx context.Context) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed || i.retryPending {
		return
	}
	i.retryPending = true
	metrics.Reconnects.Inc()
	i.log.Info("reconnect scheduled", "delay", i.reconnectDelay.String())

	i.retryTimer = time.AfterFunc(i.reconnectDelay, func() {
		i.mu.Lock()
		i.retryPending = false
		stale := i.closed || ctx.Err() != nil
		i.mu.Unlock()
		if stale {
			return
		}
		i.reconnect(ctx)
	})
}

// reconnect re-issues the bulk fetch before resuming the stream, so events
// missed during the outage are repaired. A failed fetch here is not
// user-blocking; it just re-arms the timer.
func (i *Ingestor) reconnect(ctx context.Context) {
	i.setState(StateConnecting)
	if err := i.bulkLoad(ctx); err != nil {
		i.log.Warn("reconnect bulk load failed", logging.FieldError, err.Error())
		i.scheduleReconnect(ctx)
		return
	}
	go i.streamLoop(ctx)
}

func (i *Ingestor) setState(s State) {
	i.mu.Lock()
	i.state = s
	i.mu.Unlock()
}
