// Package server exposes the aggregation core to the dashboard over a small
// JSON API. The handlers are thin reads over the store and the derived
// views; all state reconciliation happens in the ingest pipeline.
package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/netsentry/netsentry/internal/aggregate"
	"github.com/netsentry/netsentry/internal/export"
	"github.com/netsentry/netsentry/internal/ingest"
	"github.com/netsentry/netsentry/internal/logging"
	"github.com/netsentry/netsentry/internal/models"
	"github.com/netsentry/netsentry/internal/query"
	"github.com/netsentry/netsentry/internal/rollup"
	"github.com/netsentry/netsentry/internal/store"
)

// topSourceLimit caps the IP analytics index listing.
const topSourceLimit = 20

// Handler serves the dashboard API.
type Handler struct {
	store    *store.Store
	agg      *aggregate.Engine
	ingestor *ingest.Ingestor
	view     *query.View
	enricher rollup.Enricher
	log      *logging.Logger
	now      func() time.Time

	// RetryStart re-attempts the initial bulk load after a blocking
	// transport failure. Set by the serve command.
	RetryStart func() error
}

// NewHandler wires the API handler. enricher may be nil when geolocation is
// disabled.
func NewHandler(st *store.Store, agg *aggregate.Engine, ing *ingest.Ingestor, enricher rollup.Enricher, log *logging.Logger) *Handler {
	if log == nil {
		log = logging.Default()
	}
	return &Handler{
		store:    st,
		agg:      agg,
		ingestor: ing,
		view:     query.NewView(),
		enricher: enricher,
		log:      log,
		now:      time.Now,
	}
}

// Threats returns the full current event set in arrival order.
func (h *Handler) Threats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.All())
}

// Stats returns the current aggregate snapshot.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.agg.Snapshot())
}

// queryRow is one table row: the event plus its derived severity.
type queryRow struct {
	models.ThreatEvent
	Severity string `json:"severity"`
}

// queryResponse is the paged table view.
type queryResponse struct {
	Rows       []queryRow `json:"rows"`
	Total      int        `json:"total"`
	Page       int        `json:"page"`
	TotalPages int        `json:"totalPages"`
}

// Query applies search, filter, sort, and pagination over the event set.
// The view keeps the table state between requests, so changing any selection
// parameter resets the page to 1.
func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Has("search") {
		h.view.SetSearch(q.Get("search"))
	}
	if q.Has("type") {
		h.view.SetTypeFilter(q.Get("type"))
	}
	if q.Has("sort") {
		h.view.SetOrder(q.Get("sort"), q.Get("dir"))
	}
	if q.Has("page_size") {
		if size, err := strconv.Atoi(q.Get("page_size")); err == nil {
			h.view.SetPageSize(size)
		}
	}
	if q.Has("page") {
		if page, err := strconv.Atoi(q.Get("page")); err == nil {
			h.view.SetPage(page)
		}
	}

	res := query.Run(h.store.All(), h.view.Params())

	rows := make([]queryRow, 0, len(res.Page))
	for _, ev := range res.Page {
		rows = append(rows, queryRow{ThreatEvent: ev, Severity: ev.Severity()})
	}
	writeJSON(w, http.StatusOK, queryResponse{
		Rows:       rows,
		Total:      res.Total,
		Page:       res.PageNumber,
		TotalPages: res.TotalPages,
	})
}

// TopIPs lists the busiest source IPs for the analytics index view.
func (h *Handler) TopIPs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, rollup.TopSources(h.store.All(), topSourceLimit))
}

// IPStats returns the rollup for one source IP over the selected range.
func (h *Handler) IPStats(w http.ResponseWriter, r *http.Request) {
	ip := r.PathValue("ip")
	timeRange := rollup.Range(r.URL.Query().Get("range"))

	stats, err := rollup.Compute(r.Context(), h.store.All(), ip, timeRange, h.now(), h.enricher)
	if err != nil {
		if errors.Is(err, rollup.ErrNoData) {
			writeError(w, http.StatusNotFound, "no threats recorded for this IP")
			return
		}
		h.log.ErrorContext(r.Context(), "ip rollup failed", logging.FieldIP, ip, logging.FieldError, err.Error())
		writeError(w, http.StatusInternalServerError, "failed to compute IP statistics")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Export streams the currently filtered event set as a CSV report. The
// filter honors the same search and type parameters as the query endpoint
// but exports the full filtered set in store order.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := h.view.Params()
	if q.Has("search") {
		params.Search = q.Get("search")
	}
	if q.Has("type") {
		params.TypeFilter = q.Get("type")
	}

	filtered := query.Filter(h.store.All(), params)

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.Filename(h.now())+`"`)
	if err := export.WriteCSV(w, filtered); err != nil {
		h.log.ErrorContext(r.Context(), "csv export failed", logging.FieldError, err.Error())
	}
}

// Retry re-triggers the initial bulk load after a startup transport
// failure. The distinct unreachable / backend-error phrasing from the fetch
// is passed through to the operator.
func (h *Handler) Retry(w http.ResponseWriter, r *http.Request) {
	if h.RetryStart == nil {
		writeError(w, http.StatusConflict, "ingestion already running")
		return
	}
	if err := h.RetryStart(); err != nil {
		if errors.Is(err, ingest.ErrAlreadyStarted) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "connected"})
}

// healthResponse reports pipeline status for the dashboard header.
type healthResponse struct {
	Status     string    `json:"status"`
	Events     int       `json:"events"`
	Live       bool      `json:"live"`
	State      string    `json:"state"`
	LastUpdate time.Time `json:"lastUpdate,omitempty"`
}

// Health reports store size, connection state, and the liveness indicator.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status: "ok",
		Events: h.store.Len(),
	}
	if h.ingestor != nil {
		resp.Live = h.ingestor.Live()
		resp.State = string(h.ingestor.State())
		resp.LastUpdate = h.ingestor.LastUpdate()
	}
	writeJSON(w, http.StatusOK, resp)
}
