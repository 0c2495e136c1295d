package logging

import "log/slog"

// Common field names for consistent logging across components.
const (
	FieldService    = "service"
	FieldIP         = "ip"
	FieldSourceIP   = "source_ip"
	FieldThreatType = "threat_type"
	FieldEventCount = "event_count"
	FieldState      = "state"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldStatus     = "status"
	FieldDuration   = "duration_ms"
	FieldError      = "error"
)

// Service returns a slog attribute for the service name.
func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

// IP returns a slog attribute for an IP address.
func IP(ip string) slog.Attr {
	return slog.String(FieldIP, ip)
}

// SourceIP returns a slog attribute for an event's source IP.
func SourceIP(ip string) slog.Attr {
	return slog.String(FieldSourceIP, ip)
}

// ThreatType returns a slog attribute for a threat category label.
func ThreatType(label string) slog.Attr {
	return slog.String(FieldThreatType, label)
}

// EventCount returns a slog attribute for a number of events.
func EventCount(n int) slog.Attr {
	return slog.Int(FieldEventCount, n)
}

// State returns a slog attribute for the ingestor connection state.
func State(state string) slog.Attr {
	return slog.String(FieldState, state)
}

// Method returns a slog attribute for the HTTP method.
func Method(method string) slog.Attr {
	return slog.String(FieldMethod, method)
}

// Path returns a slog attribute for the HTTP path.
func Path(path string) slog.Attr {
	return slog.String(FieldPath, path)
}

// Status returns a slog attribute for the HTTP status code.
func Status(code int) slog.Attr {
	return slog.Int(FieldStatus, code)
}

// Duration returns a slog attribute for duration in milliseconds.
func Duration(ms int64) slog.Attr {
	return slog.Int64(FieldDuration, ms)
}

// Error returns a slog attribute for an error.
func Error(err error) slog.Attr {
	return slog.String(FieldError, err.Error())
}
