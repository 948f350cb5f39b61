package omr

import (
	"context"
	"errors"
	"testing"

	"github.com/scanscore/omr-backend/internal/audit"
)

func memKey(id string) AnswerKey {
	return AnswerKey{
		ID: id, Name: "midterm", Version: "A",
		TotalQuestions: 4, NumOptions: 4,
		Answers:  []int{1, 2, 3, 4},
		Subjects: []SubjectRange{{Subject: "s", Start: 1, End: 4}},
	}
}

func TestMemStoreKeyValidation(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	bad := memKey("k1")
	bad.Subjects = []SubjectRange{{Subject: "s", Start: 1, End: 3}}
	if err := s.PutKey(ctx, bad); !errors.Is(err, ErrRangeGap) {
		t.Fatalf("PutKey(bad) = %v, want ErrRangeGap", err)
	}
	if err := s.PutKey(ctx, memKey("k1")); err != nil {
		t.Fatalf("PutKey: %v", err)
	}
}

func TestMemStoreKeyFrozenOnceUsed(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	if err := s.PutKey(ctx, memKey("k1")); err != nil {
		t.Fatalf("PutKey: %v", err)
	}
	if err := s.CreateSheet(ctx, Sheet{ID: "sh1", StudentID: "stu1", Version: "A", Status: StatusUploaded},
		audit.Event{SheetID: "sh1", Action: audit.ActionUpload}); err != nil {
		t.Fatalf("CreateSheet: %v", err)
	}
	r := SheetResult{ID: "r1", SheetID: "sh1", KeyID: "k1", DetectedAnswers: []int{1, 2, 3, 4}}
	if err := s.SaveResult(ctx, r, StatusCompleted, audit.Event{SheetID: "sh1", Action: audit.ActionEvaluate}); err != nil {
		t.Fatalf("SaveResult: %v", err)
	}

	if err := s.PutKey(ctx, memKey("k1")); !errors.Is(err, ErrKeyInUse) {
		t.Fatalf("PutKey(used) = %v, want ErrKeyInUse", err)
	}
	if err := s.DeleteKey(ctx, "k1"); !errors.Is(err, ErrKeyInUse) {
		t.Fatalf("DeleteKey(used) = %v, want ErrKeyInUse", err)
	}
}

func TestMemStoreAppendOnlyResults(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	if err := s.PutKey(ctx, memKey("k1")); err != nil {
		t.Fatalf("PutKey: %v", err)
	}
	if err := s.CreateSheet(ctx, Sheet{ID: "sh1", StudentID: "stu1", Version: "A", Status: StatusUploaded},
		audit.Event{SheetID: "sh1", Action: audit.ActionUpload}); err != nil {
		t.Fatalf("CreateSheet: %v", err)
	}

	first := SheetResult{ID: "r1", SheetID: "sh1", KeyID: "k1", CreatedAt: 100}
	second := SheetResult{ID: "r2", SheetID: "sh1", KeyID: "k1", CreatedAt: 200}
	for _, r := range []SheetResult{first, second} {
		if err := s.SaveResult(ctx, r, StatusCompleted, audit.Event{SheetID: "sh1", Action: audit.ActionEvaluate}); err != nil {
			t.Fatalf("SaveResult(%s): %v", r.ID, err)
		}
	}

	latest, err := s.LatestResult(ctx, "sh1")
	if err != nil {
		t.Fatalf("LatestResult: %v", err)
	}
	if latest.ID != "r2" {
		t.Fatalf("latest = %s, want r2 (re-score must not replace history)", latest.ID)
	}

	rows, err := s.ListLatestResults(ctx)
	if err != nil {
		t.Fatalf("ListLatestResults: %v", err)
	}
	if len(rows) != 1 || rows[0].Result.ID != "r2" {
		t.Fatalf("joined rows = %+v, want one row with r2", rows)
	}
}

func TestMemStoreAuditTrail(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore().(*memoryStore)
	if err := s.CreateSheet(ctx, Sheet{ID: "sh1", StudentID: "stu1", Version: "A", Status: StatusUploaded},
		audit.Event{SheetID: "sh1", Action: audit.ActionUpload}); err != nil {
		t.Fatalf("CreateSheet: %v", err)
	}
	if err := s.UpdateStatus(ctx, "sh1", StatusFlagged, "smudged", audit.Event{SheetID: "sh1", Action: audit.ActionReview}); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if err := s.UpdateStatus(ctx, "missing", StatusFlagged, "", audit.Event{Action: audit.ActionReview}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("UpdateStatus(missing) = %v, want ErrNotFound", err)
	}

	evs := s.Events()
	if len(evs) != 2 {
		t.Fatalf("got %d events, want 2 (failed transition must not log)", len(evs))
	}
	if evs[0].Action != audit.ActionUpload || evs[1].Action != audit.ActionReview {
		t.Fatalf("actions = %s,%s, want upload,review", evs[0].Action, evs[1].Action)
	}

	sh, err := s.GetSheet(ctx, "sh1")
	if err != nil {
		t.Fatalf("GetSheet: %v", err)
	}
	if sh.Status != StatusFlagged || sh.StatusNote != "smudged" {
		t.Fatalf("sheet = %+v, want flagged with note", sh)
	}
}

func TestMemStoreListSheetsFilters(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	sheets := []Sheet{
		{ID: "a", StudentID: "101", StudentName: "Asha", Version: "A", Status: StatusCompleted, UploadedAt: 3},
		{ID: "b", StudentID: "102", StudentName: "Ben", Version: "B", Status: StatusUploaded, UploadedAt: 2},
		{ID: "c", StudentID: "103", StudentName: "Asha K", Version: "A", Status: StatusUploaded, UploadedAt: 1},
	}
	for _, sh := range sheets {
		if err := s.CreateSheet(ctx, sh, audit.Event{SheetID: sh.ID, Action: audit.ActionUpload}); err != nil {
			t.Fatalf("CreateSheet: %v", err)
		}
	}

	got, err := s.ListSheets(ctx, ListSheetsOpts{Status: StatusUploaded})
	if err != nil {
		t.Fatalf("ListSheets: %v", err)
	}
	if len(got) != 2 || got[0].ID != "b" || got[1].ID != "c" {
		t.Fatalf("status filter = %+v, want [b c] newest first", got)
	}

	got, _ = s.ListSheets(ctx, ListSheetsOpts{Q: "Asha"})
	if len(got) != 2 {
		t.Fatalf("name filter returned %d sheets, want 2", len(got))
	}

	got, _ = s.ListSheets(ctx, ListSheetsOpts{Version: "A", Limit: 1})
	if len(got) != 1 || got[0].ID != "a" {
		t.Fatalf("version+limit = %+v, want [a]", got)
	}
}
