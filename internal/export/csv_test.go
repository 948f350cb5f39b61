package export_test

import (
	"bytes"
	"encoding/csv"
	"testing"

	"github.com/scanscore/omr-backend/internal/export"
	"github.com/scanscore/omr-backend/internal/omr"
)

func TestWriteCSV(t *testing.T) {
	rows := []omr.SheetWithResult{
		{
			Sheet: omr.Sheet{ID: "sh1", StudentID: "101", StudentName: "Asha", Version: "A", Status: omr.StatusCompleted},
			Result: &omr.SheetResult{
				Result: omr.Result{
					TotalScore: 75, MaxScore: 100, Percentage: 75,
					CorrectCount: 45, IncorrectCount: 10, UnansweredCount: 5,
					Ambiguous:       []int{3, 17},
					ConfidenceScore: 0.91,
					SubjectScores:   map[string]int{"physics": 20, "math": 25},
				},
			},
		},
		// Unscored sheets are skipped, not rendered half-empty.
		{Sheet: omr.Sheet{ID: "sh2", StudentID: "102", Version: "B", Status: omr.StatusUploaded}},
	}

	var buf bytes.Buffer
	if err := export.WriteCSV(&buf, rows); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}

	recs, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("parse output: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want header + 1 row", len(recs))
	}
	if recs[0][0] != "sheet_id" {
		t.Fatalf("header = %v", recs[0])
	}
	row := recs[1]
	if row[0] != "sh1" || row[5] != "75.00" || row[7] != "75.00" || row[8] != "45" {
		t.Fatalf("row = %v", row)
	}
	// Subject order is fixed regardless of map iteration.
	if row[len(row)-1] != "math=25;physics=20" {
		t.Fatalf("subjects = %q, want math=25;physics=20", row[len(row)-1])
	}
	if row[11] != "2" {
		t.Fatalf("ambiguous count = %q, want 2", row[11])
	}
}
