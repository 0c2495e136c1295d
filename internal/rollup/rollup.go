// Package rollup derives per-source-IP statistics from the event store,
// scoped to a caller-selected trailing time range.
package rollup

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/netsentry/netsentry/internal/models"
)

// ErrNoData means the IP has no events anywhere in the store. This is a
// distinct terminal state from "no events in the selected range", which
// still yields zero-valued aggregates.
var ErrNoData = errors.New("no threats recorded for this IP")

// Range selects the trailing window for the rollup.
type Range string

// Supported time ranges.
const (
	Range24h Range = "24h"
	Range7d  Range = "7d"
	Range30d Range = "30d"
)

// Duration maps the range to its window length. Unknown values fall back
// to 24 hours.
func (r Range) Duration() time.Duration {
	switch r {
	case Range7d:
		return 7 * 24 * time.Hour
	case Range30d:
		return 30 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// topPorts caps the port histogram.
const topPorts = 10

// NameCount is one histogram entry.
type NameCount struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

// HourCount is one hour-of-day histogram entry.
type HourCount struct {
	Hour  string `json:"hour"`
	Count int    `json:"count"`
}

// Stats is the rollup for one (sourceIP, range) pair.
type Stats struct {
	IP                 string              `json:"ip"`
	Range              Range               `json:"range"`
	TotalThreats       int                 `json:"totalThreats"`
	ThreatTypes        []NameCount         `json:"threatTypes"`
	Ports              []NameCount         `json:"ports"`
	Hourly             []HourCount         `json:"hourlyData"`
	UniqueDestinations int                 `json:"uniqueDestinations"`
	FirstSeen          string              `json:"firstSeen,omitempty"`
	LastSeen           string              `json:"lastSeen,omitempty"`
	Geolocation        *models.Geolocation `json:"geolocation,omitempty"`
}

// Enricher resolves geolocation for an IP when no stored event carries one.
// Lookup errors are absorbed; the rollup simply ships without geolocation.
type Enricher interface {
	Lookup(ctx context.Context, ip string) (*models.Geolocation, error)
}

// Compute builds the rollup for ip over the trailing window ending at now.
// Events whose timestamps do not parse have no window membership and are
// excluded from the range-filtered aggregates.
func Compute(ctx context.Context, events []models.ThreatEvent, ip string, r Range, now time.Time, enricher Enricher) (*Stats, error) {
	var ipEvents []models.ThreatEvent
	for _, ev := range events {
		if ev.SourceIP == ip {
			ipEvents = append(ipEvents, ev)
		}
	}
	if len(ipEvents) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoData, ip)
	}

	rangeStart := now.Add(-r.Duration())
	stats := &Stats{IP: ip, Range: r}

	types := make(map[string]int)
	ports := make(map[string]int)
	hours := make(map[string]int)
	destinations := make(map[string]struct{})
	var firstSeen, lastSeen time.Time
	var firstRaw, lastRaw string

	for _, ev := range ipEvents {
		t, ok := ev.Time()
		if !ok || t.Before(rangeStart) {
			continue
		}
		stats.TotalThreats++

		label := ev.ThreatType
		if label == "" {
			label = "Unknown"
		}
		types[label]++

		port := ev.Ports.String()
		if port == "" {
			port = "Unknown"
		}
		ports[port]++

		hours[fmt.Sprintf("%d:00", t.Hour())]++
		destinations[ev.DestinationIP] = struct{}{}

		if firstSeen.IsZero() || t.Before(firstSeen) {
			firstSeen, firstRaw = t, ev.Timestamp
		}
		if lastSeen.IsZero() || t.After(lastSeen) {
			lastSeen, lastRaw = t, ev.Timestamp
		}
	}

	stats.ThreatTypes = toHistogram(types, 0)
	stats.Ports = toHistogram(ports, topPorts)
	stats.Hourly = toHourly(hours)
	stats.UniqueDestinations = len(destinations)
	stats.FirstSeen = firstRaw
	stats.LastSeen = lastRaw
	stats.Geolocation = resolveGeolocation(ctx, ipEvents, ip, enricher)
	return stats, nil
}

// resolveGeolocation prefers data already attached to a stored event (any
// event for the IP, not just those in the window) and falls back to the
// enrichment service.
func resolveGeolocation(ctx context.Context, ipEvents []models.ThreatEvent, ip string, enricher Enricher) *models.Geolocation {
	for _, ev := range ipEvents {
		if ev.Geolocation != nil {
			return ev.Geolocation
		}
	}
	if enricher == nil {
		return nil
	}
	loc, err := enricher.Lookup(ctx, ip)
	if err != nil {
		return nil
	}
	return loc
}

// toHistogram sorts entries by frequency, then name for stable output.
// A positive limit keeps only the top entries.
func toHistogram(counts map[string]int, limit int) []NameCount {
	out := make([]NameCount, 0, len(counts))
	for name, value := range counts {
		out = append(out, NameCount{Name: name, Value: value})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Value != out[j].Value {
			return out[i].Value > out[j].Value
		}
		return out[i].Name < out[j].Name
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// TopSources lists the busiest source IPs across the whole store, excluding
// empty and placeholder addresses. Used by the IP analytics index view.
func TopSources(events []models.ThreatEvent, limit int) []NameCount {
	counts := make(map[string]int)
	for _, ev := range events {
		if ev.SourceIP == "" || ev.SourceIP == "N/A" {
			continue
		}
		counts[ev.SourceIP]++
	}
	return toHistogram(counts, limit)
}

func toHourly(counts map[string]int) []HourCount {
	out := make([]HourCount, 0, len(counts))
	for hour, count := range counts {
		out = append(out, HourCount{Hour: hour, Count: count})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hour < out[j].Hour })
	return out
}
