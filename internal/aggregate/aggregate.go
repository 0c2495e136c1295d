// Package aggregate derives the dashboard summary views from the event store:
// headline counters, a trailing-24h hourly timeline, and a trailing-30-day
// daily timeline. Snapshots are immutable; each recomputation publishes a
// fresh one atomically.
package aggregate

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/netsentry/netsentry/internal/models"
)

const (
	// HourlyBuckets is the fixed length of the hourly timeline.
	HourlyBuckets = 24
	// DailyBuckets is the fixed length of the daily timeline.
	DailyBuckets = 30
)

// HourBucket is one slot of the hourly timeline. Slots are positional
// (indexed by hours-ago), so the same hour-of-day label can appear twice
// when the window spans midnight.
type HourBucket struct {
	Hour         string `json:"hour"`
	DDoS         int    `json:"DDoS"`
	PortScan     int    `json:"PortScan"`
	Malicious    int    `json:"Malicious"`
	SQLInjection int    `json:"SQLInjection"`
	Total        int    `json:"Total"`
}

// DayBucket is one slot of the daily timeline.
type DayBucket struct {
	Day   string `json:"day"`
	Count int    `json:"count"`
}

// Snapshot is the derived aggregate view over the full event set, anchored
// to the instant it was computed at.
type Snapshot struct {
	Total             int          `json:"total"`
	DDoSCount         int          `json:"ddosCount"`
	PortScanCount     int          `json:"portScanCount"`
	MaliciousIPCount  int          `json:"maliciousIpCount"`
	SQLInjectionCount int          `json:"sqlInjectionCount"`
	RecentThreats     int          `json:"recentThreats"`
	HourlyTimeline    []HourBucket `json:"hourlyTimeline"`
	DailyTimeline     []DayBucket  `json:"dailyTimeline"`
	GeneratedAt       time.Time    `json:"generatedAt"`
}

// Engine recomputes and publishes snapshots. Publication is an atomic
// pointer swap, so readers never see a half-built snapshot.
type Engine struct {
	current atomic.Pointer[Snapshot]
	now     func() time.Time
}

// NewEngine creates an engine with an empty published snapshot, so consumers
// can render before the first event arrives.
func NewEngine() *Engine {
	return NewEngineAt(time.Now)
}

// NewEngineAt creates an engine with an injectable clock for tests.
func NewEngineAt(now func() time.Time) *Engine {
	e := &Engine{now: now}
	e.current.Store(Compute(nil, now()))
	return e
}

// Recompute derives a new snapshot from events and publishes it.
func (e *Engine) Recompute(events []models.ThreatEvent) *Snapshot {
	snap := Compute(events, e.now())
	e.current.Store(snap)
	return snap
}

// Snapshot returns the most recently published snapshot.
func (e *Engine) Snapshot() *Snapshot {
	return e.current.Load()
}

// Compute is the pure aggregation function: deterministic given the event
// set and the anchor instant. Time-windowed buckets are relative to now,
// not to event arrival time.
func Compute(events []models.ThreatEvent, now time.Time) *Snapshot {
	snap := &Snapshot{
		Total:       len(events),
		GeneratedAt: now,
	}

	dayAgo := now.Add(-24 * time.Hour)
	monthAgo := now.Add(-DailyBuckets * 24 * time.Hour)

	// Events with unparseable timestamps count toward totals and category
	// counters but have no time-bucket membership.
	var last24h, last30d []timedEvent
	for _, ev := range events {
		if strings.Contains(ev.ThreatType, models.CategoryDDoS) {
			snap.DDoSCount++
		}
		if strings.Contains(ev.ThreatType, models.CategoryPortScan) {
			snap.PortScanCount++
		}
		if strings.Contains(ev.ThreatType, models.CategoryMalicious) {
			snap.MaliciousIPCount++
		}
		if strings.Contains(ev.ThreatType, models.CategorySQLInjection) {
			snap.SQLInjectionCount++
		}
		t, ok := ev.Time()
		if !ok {
			continue
		}
		if t.After(dayAgo) {
			snap.RecentThreats++
			last24h = append(last24h, timedEvent{ev, t})
		}
		if t.After(monthAgo) {
			last30d = append(last30d, timedEvent{ev, t})
		}
	}

	snap.HourlyTimeline = hourlyTimeline(last24h, now)
	snap.DailyTimeline = dailyTimeline(last30d, now)
	return snap
}

type timedEvent struct {
	event models.ThreatEvent
	at    time.Time
}

// hourlyTimeline produces exactly 24 buckets, oldest first. Each bucket
// covers the calendar hour containing now minus i hours and counts only
// events already inside the trailing-24h window.
func hourlyTimeline(recent []timedEvent, now time.Time) []HourBucket {
	buckets := make([]HourBucket, 0, HourlyBuckets)
	for i := HourlyBuckets - 1; i >= 0; i-- {
		anchor := now.Add(-time.Duration(i) * time.Hour)
		start := time.Date(anchor.Year(), anchor.Month(), anchor.Day(), anchor.Hour(), 0, 0, 0, anchor.Location())
		end := start.Add(time.Hour)

		bucket := HourBucket{Hour: fmt.Sprintf("%d:00", anchor.Hour())}
		for _, te := range recent {
			if te.at.Before(start) || !te.at.Before(end) {
				continue
			}
			label := te.event.ThreatType
			if strings.Contains(label, models.CategoryDDoS) {
				bucket.DDoS++
			}
			if strings.Contains(label, models.CategoryPortScan) {
				bucket.PortScan++
			}
			if strings.Contains(label, models.CategoryMalicious) {
				bucket.Malicious++
			}
			if strings.Contains(label, models.CategorySQLInjection) {
				bucket.SQLInjection++
			}
		}
		bucket.Total = bucket.DDoS + bucket.PortScan + bucket.Malicious + bucket.SQLInjection
		buckets = append(buckets, bucket)
	}
	return buckets
}

// dailyTimeline produces exactly 30 buckets, oldest first, each covering one
// calendar day (local midnight to midnight).
func dailyTimeline(recent []timedEvent, now time.Time) []DayBucket {
	buckets := make([]DayBucket, 0, DailyBuckets)
	for i := DailyBuckets - 1; i >= 0; i-- {
		anchor := now.AddDate(0, 0, -i)
		start := time.Date(anchor.Year(), anchor.Month(), anchor.Day(), 0, 0, 0, 0, anchor.Location())
		end := start.AddDate(0, 0, 1)

		bucket := DayBucket{Day: anchor.Format("Jan 2")}
		for _, te := range recent {
			if !te.at.Before(start) && te.at.Before(end) {
				bucket.Count++
			}
		}
		buckets = append(buckets, bucket)
	}
	return buckets
}
