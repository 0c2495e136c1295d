package query

import "sync"

// View carries the table state between queries and enforces the page-reset
// rule: changing the search term, category filter, sort column, or page size
// snaps the view back to page 1.
type View struct {
	mu     sync.Mutex
	params Params
}

// NewView starts at the dashboard defaults.
func NewView() *View {
	return &View{params: DefaultParams()}
}

// Params returns a copy of the current parameters.
func (v *View) Params() Params {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.params
}

// SetSearch updates the free-text term and resets to page 1.
func (v *View) SetSearch(term string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.params.Search == term {
		return
	}
	v.params.Search = term
	v.params.Page = 1
}

// SetTypeFilter updates the category filter and resets to page 1.
func (v *View) SetTypeFilter(filter string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if filter == "" {
		filter = FilterAll
	}
	if v.params.TypeFilter == filter {
		return
	}
	v.params.TypeFilter = filter
	v.params.Page = 1
}

// SetSort selects a sort column. Re-selecting the current column flips the
// direction; a new column starts ascending. Either way the page resets.
func (v *View) SetSort(key string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.params.SortKey == key {
		if v.params.SortDir == DirAsc {
			v.params.SortDir = DirDesc
		} else {
			v.params.SortDir = DirAsc
		}
	} else {
		v.params.SortKey = key
		v.params.SortDir = DirAsc
	}
	v.params.Page = 1
}

// SetOrder sets the sort column and direction explicitly, resetting to
// page 1 when either changes. API clients use this; SetSort mirrors the
// column-header toggle.
func (v *View) SetOrder(key, dir string) {
	if dir != DirAsc {
		dir = DirDesc
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.params.SortKey == key && v.params.SortDir == dir {
		return
	}
	v.params.SortKey = key
	v.params.SortDir = dir
	v.params.Page = 1
}

// SetPageSize changes the rows-per-page and resets to page 1.
func (v *View) SetPageSize(size int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if size < 1 || v.params.PageSize == size {
		return
	}
	v.params.PageSize = size
	v.params.Page = 1
}

// SetPage moves to the given 1-indexed page.
func (v *View) SetPage(page int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if page < 1 {
		page = 1
	}
	v.params.Page = page
}
