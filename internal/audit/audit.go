package audit

import (
	"context"
	"database/sql"
	"time"
)

// Actions recorded in the trail. One event is appended per state transition;
// rows are never updated or deleted.
const (
	ActionUpload   = "upload"
	ActionProcess  = "process"
	ActionEvaluate = "evaluate"
	ActionReview   = "review"
	ActionExport   = "export"
)

type Event struct {
	Offset    int64  `json:"offset"`
	SheetID   string `json:"sheet_id"`
	ActorID   string `json:"actor_id,omitempty"`
	Action    string `json:"action"`
	Details   string `json:"details"` // JSON payload specific to the action
	CreatedAt int64  `json:"created_at"`
}

// Recorder appends events. A failed append must fail the triggering
// operation; callers never proceed with an unlogged state change.
type Recorder interface {
	Record(ctx context.Context, e Event) error
}

// Execer is satisfied by *sql.DB and *sql.Tx, so appends can join the
// transaction that writes the state they describe.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Append inserts one event. CreatedAt defaults to now.
func Append(ctx context.Context, db Execer, e Event) error {
	ts := e.CreatedAt
	if ts == 0 {
		ts = time.Now().Unix()
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO audit_log (sheet_id, actor_id, action, details, created_at)
		 VALUES ($1,$2,$3,$4,$5)`,
		e.SheetID, e.ActorID, e.Action, e.Details, ts)
	return err
}

type SQLRecorder struct{ db *sql.DB }

func NewSQLRecorder(db *sql.DB) *SQLRecorder { return &SQLRecorder{db: db} }

func (r *SQLRecorder) Record(ctx context.Context, e Event) error {
	return Append(ctx, r.db, e)
}

// ListBySheet returns a sheet's trail, oldest first.
func ListBySheet(ctx context.Context, db *sql.DB, sheetID string) ([]Event, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT seq, sheet_id, actor_id, action, details, created_at
		 FROM audit_log WHERE sheet_id=$1 ORDER BY seq`, sheetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.Offset, &e.SheetID, &e.ActorID, &e.Action, &e.Details, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
