package ingest

import "fmt"

// TransportKind distinguishes the user-visible phrasings for a failed bulk
// fetch.
type TransportKind int

const (
	// KindUnreachable means the backend could not be reached at all.
	KindUnreachable TransportKind = iota
	// KindBackendError means the backend answered with a structured error
	// payload.
	KindBackendError
	// KindHTTPStatus means the backend answered with a non-success status
	// and no usable error body.
	KindHTTPStatus
)

// TransportError is the only error surfaced to the operator: the initial
// bulk fetch failed and the pipeline cannot start until retried.
type TransportError struct {
	Kind    TransportKind
	Status  int
	Message string
	Err     error
}

func (e *TransportError) Error() string {
	switch e.Kind {
	case KindUnreachable:
		return fmt.Sprintf("cannot reach the aggregation backend: %v", e.Err)
	case KindBackendError:
		return fmt.Sprintf("backend returned an error: %s", e.Message)
	default:
		return fmt.Sprintf("backend request failed with HTTP status %d", e.Status)
	}
}

func (e *TransportError) Unwrap() error { return e.Err }
