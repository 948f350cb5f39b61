// Package export renders joined sheet+result rows as CSV for download.
package export

import (
	"encoding/csv"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/scanscore/omr-backend/internal/omr"
)

var header = []string{
	"sheet_id", "student_id", "student_name", "version", "status",
	"total_score", "max_score", "percentage",
	"correct", "incorrect", "unanswered", "ambiguous", "confidence", "subject_scores",
}

// WriteCSV streams one row per scored sheet. Subject scores are packed as
// "subject=n" pairs so the column set stays fixed across answer keys.
func WriteCSV(w io.Writer, rows []omr.SheetWithResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, row := range rows {
		s, r := row.Sheet, row.Result
		if r == nil {
			continue
		}
		rec := []string{
			s.ID, s.StudentID, s.StudentName, s.Version, s.Status,
			f2(r.TotalScore), f2(r.MaxScore), f2(r.Percentage),
			strconv.Itoa(r.CorrectCount), strconv.Itoa(r.IncorrectCount), strconv.Itoa(r.UnansweredCount),
			strconv.Itoa(len(r.Ambiguous)), f2(r.ConfidenceScore), packSubjects(r.SubjectScores),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func f2(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) }

func packSubjects(scores map[string]int) string {
	if len(scores) == 0 {
		return ""
	}
	keys := make([]string, 0, len(scores))
	for k := range scores {
		keys = append(keys, k)
	}
	// Deterministic column content regardless of map order.
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+strconv.Itoa(scores[k]))
	}
	return strings.Join(parts, ";")
}
