// Package ingest maintains the live connection to the upstream threat feed:
// one bulk fetch of the current event set at startup, then a server-push
// stream of individual events, with a single-shot reconnect on failure.
package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/netsentry/netsentry/internal/models"
)

// Source is an upstream event feed. Fetch retrieves the full current event
// set; Stream opens the persistent push channel.
type Source interface {
	// Fetch returns the full current event set. Failures are reported as
	// *TransportError so callers can phrase them for the operator.
	Fetch(ctx context.Context) ([]models.ThreatEvent, error)

	// Stream opens the push channel. The returned stream yields one raw
	// JSON-encoded event per message.
	Stream(ctx context.Context) (Stream, error)
}

// Stream is an open push channel. Next blocks until a message arrives or the
// channel fails; Close tears the channel down and unblocks Next.
type Stream interface {
	Next() ([]byte, error)
	Close() error
}

// decodeBulk accepts both bulk payload shapes: a bare JSON array of events,
// or an object wrapping the array in a "threats" field.
func decodeBulk(data []byte) ([]models.ThreatEvent, error) {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty bulk payload")
	}

	if trimmed[0] == '[' {
		var events []models.ThreatEvent
		if err := json.Unmarshal(trimmed, &events); err != nil {
			return nil, fmt.Errorf("decode bulk event array: %w", err)
		}
		return events, nil
	}

	var wrapped struct {
		Threats []models.ThreatEvent `json:"threats"`
	}
	if err := json.Unmarshal(trimmed, &wrapped); err != nil {
		return nil, fmt.Errorf("decode bulk event object: %w", err)
	}
	return wrapped.Threats, nil
}
