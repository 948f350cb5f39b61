package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	api "github.com/scanscore/omr-backend/internal/api/http"
	"github.com/scanscore/omr-backend/internal/audit"
	"github.com/scanscore/omr-backend/internal/omr"
	"github.com/scanscore/omr-backend/internal/storage"
	"github.com/scanscore/omr-backend/internal/vision"
)

type fakeRecorder struct {
	events []audit.Event
	fail   bool
}

func (f *fakeRecorder) Record(_ context.Context, e audit.Event) error {
	if f.fail {
		return fmt.Errorf("audit log unavailable")
	}
	f.events = append(f.events, e)
	return nil
}

type env struct {
	store omr.Store
	rec   *fakeRecorder
	r     chi.Router
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store := omr.NewInMemoryStore()
	bs, err := storage.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("blob store: %v", err)
	}
	rec := &fakeRecorder{}
	pipeline := vision.NewStubPipeline(1)

	r := chi.NewRouter()
	r.Post("/keys", api.CreateKeyHandler(store))
	r.Put("/keys/{keyID}", api.UpdateKeyHandler(store))
	r.Delete("/keys/{keyID}", api.DeleteKeyHandler(store))
	r.Post("/sheets", api.UploadSheetHandler(store, bs))
	r.Get("/sheets", api.ListSheetsHandler(store))
	r.Get("/sheets/{sheetID}", api.GetSheetHandler(store))
	r.Post("/sheets/{sheetID}/process", api.ProcessSheetHandler(store, bs, pipeline))
	r.Post("/sheets/{sheetID}/review", api.ReviewSheetHandler(store))
	r.Get("/stats", api.StatsHandler(store, 7))
	r.Get("/export.csv", api.ExportCSVHandler(store, rec))
	return &env{store: store, rec: rec, r: r}
}

func (e *env) do(t *testing.T, method, path, contentType string, body *bytes.Buffer) *httptest.ResponseRecorder {
	t.Helper()
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)
	return w
}

func (e *env) createKey(t *testing.T, id string) {
	t.Helper()
	k := omr.AnswerKey{
		ID: id, Name: "midterm", Version: "A",
		TotalQuestions: 20, NumOptions: 4,
		Subjects: []omr.SubjectRange{
			{Subject: "math", Start: 1, End: 10},
			{Subject: "physics", Start: 11, End: 20},
		},
	}
	k.Answers = make([]int, 20)
	for i := range k.Answers {
		k.Answers[i] = 1 + i%4
	}
	buf, _ := json.Marshal(k)
	w := e.do(t, "POST", "/keys", "application/json", bytes.NewBuffer(buf))
	if w.Code != http.StatusCreated {
		t.Fatalf("create key: %d %s", w.Code, w.Body.String())
	}
}

func (e *env) uploadSheet(t *testing.T) omr.Sheet {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("file", "scan.png")
	_, _ = fw.Write([]byte("not really a png"))
	_ = mw.WriteField("student_id", "101")
	_ = mw.WriteField("student_name", "Asha")
	_ = mw.WriteField("version", "A")
	_ = mw.Close()

	w := e.do(t, "POST", "/sheets", mw.FormDataContentType(), &buf)
	if w.Code != http.StatusCreated {
		t.Fatalf("upload: %d %s", w.Code, w.Body.String())
	}
	var sh omr.Sheet
	if err := json.Unmarshal(w.Body.Bytes(), &sh); err != nil {
		t.Fatalf("decode sheet: %v", err)
	}
	return sh
}

func TestUploadProcessFlow(t *testing.T) {
	e := newEnv(t)
	e.createKey(t, "k1")
	sh := e.uploadSheet(t)
	if sh.Status != omr.StatusUploaded {
		t.Fatalf("status = %s, want uploaded", sh.Status)
	}

	w := e.do(t, "POST", "/sheets/"+sh.ID+"/process", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("process: %d %s", w.Code, w.Body.String())
	}
	var res omr.SheetResult
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if res.KeyID != "k1" || res.SheetID != sh.ID {
		t.Fatalf("result = %+v", res)
	}
	if got := res.CorrectCount + res.IncorrectCount + res.UnansweredCount; got != 20 {
		t.Fatalf("counts sum to %d, want 20", got)
	}

	w = e.do(t, "GET", "/sheets/"+sh.ID, "", nil)
	var joined omr.SheetWithResult
	if err := json.Unmarshal(w.Body.Bytes(), &joined); err != nil {
		t.Fatalf("decode joined: %v", err)
	}
	if joined.Sheet.Status != omr.StatusCompleted {
		t.Fatalf("status = %s, want completed", joined.Sheet.Status)
	}
	if joined.Result == nil || joined.Result.ID != res.ID {
		t.Fatalf("joined result missing or stale: %+v", joined.Result)
	}

	// The whole flow is audited: upload, process, evaluate.
	type sink interface{ Events() []audit.Event }
	evs := e.store.(sink).Events()
	var actions []string
	for _, ev := range evs {
		actions = append(actions, ev.Action)
	}
	want := []string{audit.ActionUpload, audit.ActionProcess, audit.ActionEvaluate}
	if strings.Join(actions, ",") != strings.Join(want, ",") {
		t.Fatalf("audit actions = %v, want %v", actions, want)
	}
}

func TestProcessWithoutKeyFails(t *testing.T) {
	e := newEnv(t)
	sh := e.uploadSheet(t)
	w := e.do(t, "POST", "/sheets/"+sh.ID+"/process", "", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("process without key: %d, want 400", w.Code)
	}
}

func TestReviewFlagsSheet(t *testing.T) {
	e := newEnv(t)
	e.createKey(t, "k1")
	sh := e.uploadSheet(t)
	e.do(t, "POST", "/sheets/"+sh.ID+"/process", "", nil)

	body := bytes.NewBufferString(`{"flag":true,"comment":"smudged column"}`)
	w := e.do(t, "POST", "/sheets/"+sh.ID+"/review", "application/json", body)
	if w.Code != http.StatusOK {
		t.Fatalf("review: %d %s", w.Code, w.Body.String())
	}
	var flagged omr.Sheet
	_ = json.Unmarshal(w.Body.Bytes(), &flagged)
	if flagged.Status != omr.StatusFlagged || flagged.StatusNote != "smudged column" {
		t.Fatalf("sheet = %+v, want flagged with comment", flagged)
	}

	body = bytes.NewBufferString(`{"flag":false}`)
	w = e.do(t, "POST", "/sheets/"+sh.ID+"/review", "application/json", body)
	var cleared omr.Sheet
	_ = json.Unmarshal(w.Body.Bytes(), &cleared)
	if cleared.Status != omr.StatusCompleted {
		t.Fatalf("status = %s, want completed after clearing", cleared.Status)
	}
}

func TestKeyUpdateConflictsOnceUsed(t *testing.T) {
	e := newEnv(t)
	e.createKey(t, "k1")
	sh := e.uploadSheet(t)
	e.do(t, "POST", "/sheets/"+sh.ID+"/process", "", nil)

	k, err := e.store.GetKey(context.Background(), "k1")
	if err != nil {
		t.Fatalf("GetKey: %v", err)
	}
	buf, _ := json.Marshal(k)
	if w := e.do(t, "PUT", "/keys/k1", "application/json", bytes.NewBuffer(buf)); w.Code != http.StatusConflict {
		t.Fatalf("update used key: %d, want 409", w.Code)
	}
	if w := e.do(t, "DELETE", "/keys/k1", "", nil); w.Code != http.StatusConflict {
		t.Fatalf("delete used key: %d, want 409", w.Code)
	}
}

func TestStatsEndpoint(t *testing.T) {
	e := newEnv(t)
	e.createKey(t, "k1")
	sh := e.uploadSheet(t)
	e.do(t, "POST", "/sheets/"+sh.ID+"/process", "", nil)

	w := e.do(t, "GET", "/stats?days=14", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("stats: %d %s", w.Code, w.Body.String())
	}
	var stats omr.CohortStats
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.TotalResults != 1 {
		t.Fatalf("total = %d, want 1", stats.TotalResults)
	}
	if len(stats.RecentTrend) != 14 {
		t.Fatalf("trend has %d entries, want 14", len(stats.RecentTrend))
	}
	total := 0
	for _, b := range stats.ScoreDistribution {
		total += b.Count
	}
	if total != 1 {
		t.Fatalf("distribution counts sum to %d, want 1", total)
	}
}

func TestExportRequiresAuditLog(t *testing.T) {
	e := newEnv(t)
	e.createKey(t, "k1")
	sh := e.uploadSheet(t)
	e.do(t, "POST", "/sheets/"+sh.ID+"/process", "", nil)

	w := e.do(t, "GET", "/export.csv", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("export: %d %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/csv" {
		t.Fatalf("content type = %q", ct)
	}
	if len(e.rec.events) != 1 || e.rec.events[0].Action != audit.ActionExport {
		t.Fatalf("export not audited: %+v", e.rec.events)
	}

	// An unavailable audit log fails the export instead of proceeding unlogged.
	e.rec.fail = true
	if w := e.do(t, "GET", "/export.csv", "", nil); w.Code != http.StatusInternalServerError {
		t.Fatalf("export with dead audit log: %d, want 500", w.Code)
	}
}
