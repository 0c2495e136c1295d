// Package query implements the table view over the event store: free-text
// search, category filter, sortable columns, and pagination.
package query

import (
	"math"
	"sort"
	"strings"

	"github.com/netsentry/netsentry/internal/models"
)

// Sortable column keys.
const (
	SortTimestamp     = "timestamp"
	SortThreatType    = "threatType"
	SortSourceIP      = "sourceIP"
	SortDestinationIP = "destinationIP"
	SortPorts         = "ports"
)

// Sort directions.
const (
	DirAsc  = "asc"
	DirDesc = "desc"
)

// FilterAll passes every category.
const FilterAll = "all"

const defaultPageSize = 25

// Params selects and orders the rows to display.
type Params struct {
	Search     string
	TypeFilter string
	SortKey    string
	SortDir    string
	Page       int
	PageSize   int
}

// DefaultParams matches the dashboard's initial state: newest first,
// 25 rows per page.
func DefaultParams() Params {
	return Params{
		TypeFilter: FilterAll,
		SortKey:    SortTimestamp,
		SortDir:    DirDesc,
		Page:       1,
		PageSize:   defaultPageSize,
	}
}

// Result is the materialized view for one set of params.
type Result struct {
	// Rows is the full filtered set in presentation order.
	Rows []models.ThreatEvent
	// Page is the slice of Rows for the requested page.
	Page []models.ThreatEvent
	// Total is the filtered row count.
	Total int
	// TotalPages is at least 1, even for an empty result.
	TotalPages int
	// PageNumber is the 1-indexed page the slice corresponds to.
	PageNumber int
}

// Filter returns the events matching the search term and category filter,
// in store (arrival) order. Export consumes this set directly.
func Filter(events []models.ThreatEvent, p Params) []models.ThreatEvent {
	term := strings.ToLower(p.Search)
	out := make([]models.ThreatEvent, 0, len(events))
	for _, ev := range events {
		if !matchesSearch(ev, term) {
			continue
		}
		if p.TypeFilter != "" && p.TypeFilter != FilterAll &&
			!strings.Contains(ev.ThreatType, p.TypeFilter) {
			continue
		}
		out = append(out, ev)
	}
	return out
}

// Run produces the page of rows for the given params. The filtered set is
// reversed from store order before sorting, so the default view shows the
// newest events first; the sort on top of that is stable.
func Run(events []models.ThreatEvent, p Params) Result {
	p = normalize(p)

	rows := Filter(events, p)
	reverse(rows)
	sortRows(rows, p.SortKey, p.SortDir)

	total := len(rows)
	totalPages := int(math.Ceil(float64(total) / float64(p.PageSize)))
	if totalPages < 1 {
		totalPages = 1
	}

	start := (p.Page - 1) * p.PageSize
	end := start + p.PageSize
	var page []models.ThreatEvent
	if start < total {
		if end > total {
			end = total
		}
		page = rows[start:end]
	}

	return Result{
		Rows:       rows,
		Page:       page,
		Total:      total,
		TotalPages: totalPages,
		PageNumber: p.Page,
	}
}

// matchesSearch is a case-insensitive substring match against the IP fields,
// the threat type, and the string form of ports. An empty term matches all.
func matchesSearch(ev models.ThreatEvent, term string) bool {
	if term == "" {
		return true
	}
	return strings.Contains(strings.ToLower(ev.SourceIP), term) ||
		strings.Contains(strings.ToLower(ev.DestinationIP), term) ||
		strings.Contains(strings.ToLower(ev.ThreatType), term) ||
		strings.Contains(ev.Ports.String(), term)
}

func normalize(p Params) Params {
	if p.TypeFilter == "" {
		p.TypeFilter = FilterAll
	}
	switch p.SortKey {
	case SortTimestamp, SortThreatType, SortSourceIP, SortDestinationIP, SortPorts:
	default:
		p.SortKey = SortTimestamp
	}
	if p.SortDir != DirAsc {
		p.SortDir = DirDesc
	}
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = defaultPageSize
	}
	return p
}

func reverse(events []models.ThreatEvent) {
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
}

func sortRows(rows []models.ThreatEvent, key, dir string) {
	sign := 1
	if dir == DirDesc {
		sign = -1
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return compare(rows[i], rows[j], key)*sign < 0
	})
}

// compare orders two events by the given column. Unparseable timestamps sort
// as epoch zero; ports compare as raw strings; the remaining columns compare
// case-insensitively.
func compare(a, b models.ThreatEvent, key string) int {
	switch key {
	case SortTimestamp:
		at, bt := int64(0), int64(0)
		if t, ok := a.Time(); ok {
			at = t.UnixMilli()
		}
		if t, ok := b.Time(); ok {
			bt = t.UnixMilli()
		}
		switch {
		case at < bt:
			return -1
		case at > bt:
			return 1
		}
		return 0
	case SortPorts:
		return strings.Compare(a.Ports.String(), b.Ports.String())
	default:
		return strings.Compare(strings.ToLower(field(a, key)), strings.ToLower(field(b, key)))
	}
}

func field(ev models.ThreatEvent, key string) string {
	switch key {
	case SortThreatType:
		return ev.ThreatType
	case SortSourceIP:
		return ev.SourceIP
	case SortDestinationIP:
		return ev.DestinationIP
	case SortPorts:
		return ev.Ports.String()
	}
	return ev.Timestamp
}
