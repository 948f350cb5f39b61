package http

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/scanscore/omr-backend/internal/audit"
	"github.com/scanscore/omr-backend/internal/omr"
)

// ListResultsHandler returns every scored sheet joined with its latest
// result, newest upload first.
func ListResultsHandler(store omr.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := store.ListLatestResults(r.Context())
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		if rows == nil {
			rows = []omr.SheetWithResult{}
		}
		_ = json.NewEncoder(w).Encode(rows)
	}
}

// StatsHandler computes cohort statistics over the latest result of every
// scored sheet. ?days= adjusts the trailing trend window.
func StatsHandler(store omr.Store, defaultTrendDays int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := store.ListLatestResults(r.Context())
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		recs := make([]omr.ResultRecord, 0, len(rows))
		for _, row := range rows {
			if row.Result == nil {
				continue
			}
			recs = append(recs, omr.ResultRecord{
				Result:    row.Result.Result,
				Version:   row.Sheet.Version,
				Timestamp: time.Unix(row.Result.CreatedAt, 0),
			})
		}
		days := atoiOr(r.URL.Query().Get("days"), defaultTrendDays)
		stats := omr.Aggregate(recs, omr.WithTrendDays(days))
		_ = json.NewEncoder(w).Encode(stats)
	}
}

// SheetAuditHandler returns a sheet's audit trail, oldest event first.
func SheetAuditHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		events, err := audit.ListBySheet(r.Context(), db, chi.URLParam(r, "sheetID"))
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		if events == nil {
			events = []audit.Event{}
		}
		_ = json.NewEncoder(w).Encode(events)
	}
}
