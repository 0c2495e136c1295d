package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netsentry/netsentry/internal/models"
)

const layout = "2006-01-02 15:04:05"

var base = time.Date(2025, 3, 15, 12, 0, 0, 0, time.Local)

func ev(minutesAgo int, threatType, src, dst, ports string) models.ThreatEvent {
	return models.ThreatEvent{
		Timestamp:     base.Add(-time.Duration(minutesAgo) * time.Minute).Format(layout),
		ThreatType:    threatType,
		SourceIP:      src,
		DestinationIP: dst,
		Ports:         models.FlexString(ports),
	}
}

// fixture is in chronological append order: oldest first.
func fixture() []models.ThreatEvent {
	return []models.ThreatEvent{
		ev(30, "DDoS Attack", "1.1.1.1", "10.0.0.1", "80"),
		ev(20, "Port Scanning", "2.2.2.2", "10.0.0.2", "[22, 443]"),
		ev(10, "SQL Injection Attempt", "3.3.3.3", "10.0.0.1", "3306"),
	}
}

func TestDefaultOrderIsNewestFirst(t *testing.T) {
	// Default params sort by timestamp descending over the reversed set, so
	// the newest append comes out on top.
	res := Run(fixture(), DefaultParams())
	require.Len(t, res.Page, 3)
	assert.Equal(t, "3.3.3.3", res.Page[0].SourceIP)
	assert.Equal(t, "1.1.1.1", res.Page[2].SourceIP)
}

func TestSearchMatchesAnyField(t *testing.T) {
	events := fixture()
	tests := []struct {
		term string
		want int
	}{
		{"", 3},
		{"2.2.2.2", 1},     // source IP
		{"10.0.0.1", 2},    // destination IP
		{"ddos", 1},        // threat type, case-insensitive
		{"22", 1},          // ports substring
		{"no-match-at-all", 0},
	}

	for _, tt := range tests {
		p := DefaultParams()
		p.Search = tt.term
		assert.Equal(t, tt.want, Run(events, p).Total, "term %q", tt.term)
	}
}

func TestCategoryFilterIsSubstring(t *testing.T) {
	p := DefaultParams()
	p.TypeFilter = "SQL Injection"
	res := Run(fixture(), p)
	require.Equal(t, 1, res.Total)
	assert.Equal(t, "3.3.3.3", res.Page[0].SourceIP)

	p.TypeFilter = FilterAll
	assert.Equal(t, 3, Run(fixture(), p).Total)
}

func TestEmptyResultHasOnePage(t *testing.T) {
	p := DefaultParams()
	p.Search = "nothing matches this"
	res := Run(fixture(), p)

	assert.Equal(t, 0, res.Total)
	assert.Equal(t, 1, res.TotalPages)
	assert.Empty(t, res.Page)
}

func TestSortDirectionsAreMirrored(t *testing.T) {
	events := fixture()

	asc := DefaultParams()
	asc.SortKey = SortSourceIP
	asc.SortDir = DirAsc
	desc := asc
	desc.SortDir = DirDesc

	up := Run(events, asc).Page
	down := Run(events, desc).Page
	require.Len(t, up, 3)
	require.Len(t, down, 3)
	for i := range up {
		assert.Equal(t, up[i].SourceIP, down[len(down)-1-i].SourceIP)
	}
}

func TestSortIsStableForEqualKeys(t *testing.T) {
	events := []models.ThreatEvent{
		ev(3, "DDoS Attack", "9.9.9.9", "10.0.0.1", "80"),
		ev(2, "DDoS Attack", "8.8.8.8", "10.0.0.1", "80"),
		ev(1, "DDoS Attack", "7.7.7.7", "10.0.0.1", "80"),
	}

	// All threat types are equal; the reversed (newest-first) order must
	// survive the sort in both directions.
	p := DefaultParams()
	p.SortKey = SortThreatType
	p.SortDir = DirAsc
	page := Run(events, p).Page
	require.Len(t, page, 3)
	assert.Equal(t, "7.7.7.7", page[0].SourceIP)
	assert.Equal(t, "9.9.9.9", page[2].SourceIP)

	p.SortDir = DirDesc
	page = Run(events, p).Page
	assert.Equal(t, "7.7.7.7", page[0].SourceIP)
}

func TestUnparseableTimestampSortsAsEpoch(t *testing.T) {
	events := []models.ThreatEvent{
		ev(1, "DDoS Attack", "1.1.1.1", "", ""),
		{Timestamp: "garbage", ThreatType: "Port Scanning", SourceIP: "2.2.2.2"},
	}

	p := DefaultParams()
	p.SortDir = DirAsc
	page := Run(events, p).Page
	require.Len(t, page, 2)
	assert.Equal(t, "2.2.2.2", page[0].SourceIP)
}

func TestPagination(t *testing.T) {
	var events []models.ThreatEvent
	for i := 0; i < 55; i++ {
		events = append(events, ev(i, "DDoS Attack", "1.1.1.1", "", ""))
	}

	p := DefaultParams()
	p.PageSize = 25

	res := Run(events, p)
	assert.Equal(t, 3, res.TotalPages)
	assert.Len(t, res.Page, 25)

	p.Page = 3
	res = Run(events, p)
	assert.Len(t, res.Page, 5)

	// A page past the end yields no rows, not an error.
	p.Page = 9
	res = Run(events, p)
	assert.Empty(t, res.Page)
	assert.Equal(t, 3, res.TotalPages)
}

func TestFilterPreservesStoreOrder(t *testing.T) {
	filtered := Filter(fixture(), DefaultParams())
	require.Len(t, filtered, 3)
	assert.Equal(t, "1.1.1.1", filtered[0].SourceIP)
	assert.Equal(t, "3.3.3.3", filtered[2].SourceIP)
}

func TestViewResetsPageOnChanges(t *testing.T) {
	v := NewView()
	v.SetPage(4)
	require.Equal(t, 4, v.Params().Page)

	v.SetSearch("ddos")
	assert.Equal(t, 1, v.Params().Page)

	v.SetPage(3)
	v.SetTypeFilter("Port Scan")
	assert.Equal(t, 1, v.Params().Page)

	v.SetPage(2)
	v.SetSort(SortSourceIP)
	assert.Equal(t, 1, v.Params().Page)

	v.SetPage(2)
	v.SetPageSize(50)
	assert.Equal(t, 1, v.Params().Page)

	// Unchanged values do not reset the page.
	v.SetPage(2)
	v.SetSearch("ddos")
	assert.Equal(t, 2, v.Params().Page)
}

func TestViewSortToggle(t *testing.T) {
	v := NewView()

	v.SetSort(SortSourceIP)
	p := v.Params()
	assert.Equal(t, SortSourceIP, p.SortKey)
	assert.Equal(t, DirAsc, p.SortDir)

	v.SetSort(SortSourceIP)
	assert.Equal(t, DirDesc, v.Params().SortDir)

	v.SetSort(SortPorts)
	p = v.Params()
	assert.Equal(t, SortPorts, p.SortKey)
	assert.Equal(t, DirAsc, p.SortDir)
}
