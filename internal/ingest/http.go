package ingest

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/netsentry/netsentry/internal/models"
)

const fetchTimeout = 30 * time.Second

// HTTPSource consumes the reference upstream contract: a JSON bulk endpoint
// and a Server-Sent Events stream.
type HTTPSource struct {
	threatsURL string
	streamURL  string
	client     *http.Client
	// The streaming client must not time out the response body.
	streamClient *http.Client
}

// NewHTTPSource builds a source for the given bulk and stream URLs.
func NewHTTPSource(threatsURL, streamURL string) *HTTPSource {
	return &HTTPSource{
		threatsURL:   threatsURL,
		streamURL:    streamURL,
		client:       &http.Client{Timeout: fetchTimeout},
		streamClient: &http.Client{},
	}
}

// Fetch retrieves the full current event set. Network-level failures,
// structured error payloads, and bare HTTP failures come back as distinct
// TransportError kinds.
func (s *HTTPSource) Fetch(ctx context.Context) ([]models.ThreatEvent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.threatsURL, nil)
	if err != nil {
		return nil, &TransportError{Kind: KindUnreachable, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &TransportError{Kind: KindUnreachable, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Kind: KindUnreachable, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		var payload struct {
			Error string `json:"error"`
		}
		if jsonErr := json.Unmarshal(body, &payload); jsonErr == nil && payload.Error != "" {
			return nil, &TransportError{Kind: KindBackendError, Status: resp.StatusCode, Message: payload.Error}
		}
		return nil, &TransportError{Kind: KindHTTPStatus, Status: resp.StatusCode}
	}

	events, err := decodeBulk(body)
	if err != nil {
		return nil, &TransportError{Kind: KindBackendError, Status: resp.StatusCode, Message: err.Error()}
	}
	return events, nil
}

// Stream opens the SSE channel. The returned stream yields the data payload
// of each event frame.
func (s *HTTPSource) Stream(ctx context.Context) (Stream, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.streamURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := s.streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("open event stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("event stream returned HTTP status %d", resp.StatusCode)
	}
	return newSSEStream(resp.Body), nil
}

// sseStream decodes the Server-Sent Events wire format: "data:" lines
// accumulate until a blank line dispatches the event; comment frames
// (leading colon) and non-data fields are skipped.
type sseStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	data    bytes.Buffer
}

const maxSSELine = 1024 * 1024

func newSSEStream(body io.ReadCloser) *sseStream {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), maxSSELine)
	return &sseStream{body: body, scanner: scanner}
}

// Next returns the next event payload, or an error once the channel drops.
func (s *sseStream) Next() ([]byte, error) {
	s.data.Reset()
	for s.scanner.Scan() {
		line := strings.TrimRight(s.scanner.Text(), "\r")
		switch {
		case line == "":
			if s.data.Len() > 0 {
				payload := make([]byte, s.data.Len())
				copy(payload, s.data.Bytes())
				s.data.Reset()
				return payload, nil
			}
		case strings.HasPrefix(line, ":"):
			// Keepalive comment, ignore.
		case strings.HasPrefix(line, "data:"):
			if s.data.Len() > 0 {
				s.data.WriteByte('\n')
			}
			s.data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		default:
			// event:, id:, retry: fields are not used by this feed.
		}
	}
	if err := s.scanner.Err(); err != nil {
		return nil, fmt.Errorf("event stream read: %w", err)
	}
	return nil, io.EOF
}

func (s *sseStream) Close() error {
	return s.body.Close()
}
