package omr

import (
	"context"
	"errors"

	"github.com/scanscore/omr-backend/internal/audit"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrKeyInUse rejects edits to an answer key already referenced by a
	// result; mutating it would silently invalidate historical scores.
	ErrKeyInUse = errors.New("answer key in use")
)

type ListSheetsOpts struct {
	Status  string
	Version string
	Q       string // matches student id or name
	Limit   int
	Offset  int
}

// SheetWithResult joins a sheet with its latest result, if any.
type SheetWithResult struct {
	Sheet  Sheet        `json:"sheet"`
	Result *SheetResult `json:"result,omitempty"`
}

// Store is the persistence boundary for keys, sheets and results. Results
// are append-only; re-scores insert new rows and reads take the latest.
type Store interface {
	PutKey(ctx context.Context, k AnswerKey) error
	GetKey(ctx context.Context, id string) (AnswerKey, error)
	GetKeyByVersion(ctx context.Context, version string) (AnswerKey, error)
	ListKeys(ctx context.Context) ([]AnswerKey, error)
	DeleteKey(ctx context.Context, id string) error

	CreateSheet(ctx context.Context, s Sheet, ev audit.Event) error
	GetSheet(ctx context.Context, id string) (Sheet, error)
	ListSheets(ctx context.Context, opts ListSheetsOpts) ([]Sheet, error)

	// UpdateStatus moves a sheet between statuses and appends the audit
	// event in the same transaction. Every transition is logged; if the log
	// write fails the transition does not happen.
	UpdateStatus(ctx context.Context, id, status, note string, ev audit.Event) error

	// SaveResult writes the result row, the sheet's new status and the audit
	// event atomically: either all land or none do.
	SaveResult(ctx context.Context, r SheetResult, status string, ev audit.Event) error
	LatestResult(ctx context.Context, sheetID string) (SheetResult, error)

	// ListLatestResults joins every sheet that has a result with its latest
	// result row; feeds the aggregator and the CSV export.
	ListLatestResults(ctx context.Context) ([]SheetWithResult, error)
}
