package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/netsentry/netsentry/internal/models"
)

// Default subjects for the NATS feed variant.
const (
	DefaultEventSubject    = "threats.events"
	DefaultSnapshotSubject = "threats.snapshot"
)

// NATSSource consumes detections from a NATS broker instead of the HTTP
// upstream: a request/reply snapshot subject for the bulk load and a plain
// subscription for the live feed. The ingestor treats both sources
// identically.
type NATSSource struct {
	conn            *nats.Conn
	eventSubject    string
	snapshotSubject string
}

// NewNATSSource wraps an established NATS connection. Empty subjects fall
// back to the defaults.
func NewNATSSource(conn *nats.Conn, eventSubject, snapshotSubject string) *NATSSource {
	if eventSubject == "" {
		eventSubject = DefaultEventSubject
	}
	if snapshotSubject == "" {
		snapshotSubject = DefaultSnapshotSubject
	}
	return &NATSSource{
		conn:            conn,
		eventSubject:    eventSubject,
		snapshotSubject: snapshotSubject,
	}
}

// Fetch requests the full current event set over request/reply.
func (s *NATSSource) Fetch(ctx context.Context) ([]models.ThreatEvent, error) {
	msg, err := s.conn.RequestWithContext(ctx, s.snapshotSubject, nil)
	if err != nil {
		return nil, &TransportError{Kind: KindUnreachable, Err: err}
	}
	events, err := decodeBulk(msg.Data)
	if err != nil {
		return nil, &TransportError{Kind: KindBackendError, Message: err.Error()}
	}
	return events, nil
}

// Stream subscribes to the event subject.
func (s *NATSSource) Stream(ctx context.Context) (Stream, error) {
	ch := make(chan *nats.Msg, 256)
	sub, err := s.conn.ChanSubscribe(s.eventSubject, ch)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", s.eventSubject, err)
	}
	return &natsStream{ctx: ctx, sub: sub, ch: ch}, nil
}

type natsStream struct {
	ctx context.Context
	sub *nats.Subscription
	ch  chan *nats.Msg
}

func (s *natsStream) Next() ([]byte, error) {
	select {
	case <-s.ctx.Done():
		return nil, s.ctx.Err()
	case msg, ok := <-s.ch:
		if !ok {
			return nil, errors.New("nats subscription closed")
		}
		return msg.Data, nil
	}
}

func (s *natsStream) Close() error {
	return s.sub.Unsubscribe()
}
