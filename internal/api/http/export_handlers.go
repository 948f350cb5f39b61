package http

import (
	"net/http"

	authmw "github.com/scanscore/omr-backend/internal/auth/middleware"
	"github.com/scanscore/omr-backend/internal/audit"
	"github.com/scanscore/omr-backend/internal/export"
	"github.com/scanscore/omr-backend/internal/omr"
)

// ExportCSVHandler downloads all scored sheets as CSV. The export event is
// recorded before any bytes go out; a failed record fails the export.
func ExportCSVHandler(store omr.Store, rec audit.Recorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := store.ListLatestResults(r.Context())
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		ev := audit.Event{
			ActorID: authmw.SubjectFromContext(r.Context()),
			Action:  audit.ActionExport,
			Details: detailsJSON(map[string]any{"rows": len(rows)}),
		}
		if err := rec.Record(r.Context(), ev); err != nil {
			http.Error(w, "audit log unavailable: "+err.Error(), 500)
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="omr_results.csv"`)
		if err := export.WriteCSV(w, rows); err != nil {
			// headers already sent; nothing more to do than log via middleware
			return
		}
	}
}
