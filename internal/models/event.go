// Package models defines the wire and in-memory representation of threat events.
package models

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Threat category labels as they appear in detector output. Matching is by
// substring containment, so a label like "DDoS Flood" still counts as DDoS.
const (
	CategoryDDoS         = "DDoS"
	CategoryPortScan     = "Port Scan"
	CategoryMalicious    = "Malicious"
	CategorySQLInjection = "SQL Injection"
	CategoryXSS          = "XSS"
)

// Severity levels derived from the threat type.
const (
	SeverityHigh   = "high"
	SeverityMedium = "medium"
	SeverityLow    = "low"
)

// timestampLayouts are tried in order when parsing event timestamps.
// Detectors emit "2006-01-02 15:04:05"; replayed or external feeds may
// use RFC 3339.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999",
}

// Geolocation is the enrichment record attached to an event or resolved
// on demand for a source IP.
type Geolocation struct {
	Country     string   `json:"country"`
	CountryCode string   `json:"country_code,omitempty"`
	City        string   `json:"city"`
	Lat         *float64 `json:"lat"`
	Lon         *float64 `json:"lon"`
	ISP         string   `json:"isp,omitempty"`
	Org         string   `json:"org,omitempty"`
}

// ThreatEvent is one reported network threat observation. Events are
// immutable once appended to the store.
type ThreatEvent struct {
	Timestamp     string       `json:"timestamp"`
	ThreatType    string       `json:"threatType"`
	SourceIP      string       `json:"sourceIP"`
	DestinationIP string       `json:"destinationIP"`
	Ports         FlexString   `json:"ports"`
	Geolocation   *Geolocation `json:"geolocation,omitempty"`
}

// Time parses the event timestamp. ok is false when the timestamp does not
// parse; such events are kept in the store but excluded from time-windowed
// aggregates.
func (e ThreatEvent) Time() (time.Time, bool) {
	ts := strings.TrimSpace(e.Timestamp)
	if ts == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, ts, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Severity classifies the event by its threat type label.
func (e ThreatEvent) Severity() string {
	switch {
	case e.ThreatType == "":
		return SeverityLow
	case strings.Contains(e.ThreatType, CategoryDDoS),
		strings.Contains(e.ThreatType, CategoryMalicious),
		strings.Contains(e.ThreatType, CategorySQLInjection):
		return SeverityHigh
	case strings.Contains(e.ThreatType, CategoryPortScan),
		strings.Contains(e.ThreatType, CategoryXSS):
		return SeverityMedium
	}
	return SeverityLow
}

// FlexString decodes a JSON value that may arrive as a string or a number.
// Detector output stores ports as free-form text, but some feeds emit bare
// integers for single-port events.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*f = ""
		return nil
	}
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	// Render whole floats without a trailing ".0" so 443.0 and 443 compare equal.
	if v, err := n.Float64(); err == nil && v == float64(int64(v)) {
		*f = FlexString(strconv.FormatInt(int64(v), 10))
		return nil
	}
	*f = FlexString(n.String())
	return nil
}

func (f FlexString) String() string { return string(f) }
