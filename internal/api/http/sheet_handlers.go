package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	authmw "github.com/scanscore/omr-backend/internal/auth/middleware"
	"github.com/scanscore/omr-backend/internal/audit"
	"github.com/scanscore/omr-backend/internal/omr"
	"github.com/scanscore/omr-backend/internal/storage"
	"github.com/scanscore/omr-backend/internal/vision"
)

// UploadSheetHandler accepts a multipart sheet image plus student metadata,
// stores the image and creates the sheet in status "uploaded". The upload
// audit event is written in the same transaction as the sheet row.
func UploadSheetHandler(store omr.Store, bs storage.BlobStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, hdr, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "file required", 400)
			return
		}
		defer f.Close()

		studentID := r.FormValue("student_id")
		version := r.FormValue("version")
		if studentID == "" || version == "" {
			http.Error(w, "student_id and version required", 400)
			return
		}

		id := uuid.NewString()
		key := "sheets/" + id + path.Ext(hdr.Filename)
		if _, err := bs.Put(key, f); err != nil {
			http.Error(w, "store error: "+err.Error(), 500)
			return
		}

		sh := omr.Sheet{
			ID:          id,
			StudentID:   studentID,
			StudentName: r.FormValue("student_name"),
			Version:     version,
			ImageKey:    key,
			Status:      omr.StatusUploaded,
		}
		ev := audit.Event{
			SheetID: id,
			ActorID: authmw.SubjectFromContext(r.Context()),
			Action:  audit.ActionUpload,
			Details: detailsJSON(map[string]any{"filename": hdr.Filename, "image_key": key, "version": version}),
		}
		if err := store.CreateSheet(r.Context(), sh, ev); err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		created, err := store.GetSheet(r.Context(), id)
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(created)
	}
}

// ProcessSheetHandler runs detection and scoring for one sheet: vision stub
// -> Score -> result+evaluate event in one transaction. Results are
// append-only, so re-processing an already completed sheet adds a new row
// and readers keep taking the latest.
func ProcessSheetHandler(store omr.Store, bs storage.BlobStore, vp vision.Pipeline, scoreOpts ...omr.Option) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "sheetID")
		actor := authmw.SubjectFromContext(r.Context())

		sh, err := store.GetSheet(r.Context(), id)
		if err != nil {
			http.Error(w, err.Error(), 404)
			return
		}

		key, err := keyForSheet(r, store, sh)
		if err != nil {
			http.Error(w, err.Error(), 400)
			return
		}

		ev := audit.Event{SheetID: id, ActorID: actor, Action: audit.ActionProcess,
			Details: detailsJSON(map[string]any{"key_id": key.ID})}
		if err := store.UpdateStatus(r.Context(), id, omr.StatusProcessing, "", ev); err != nil {
			http.Error(w, err.Error(), 500)
			return
		}

		started := time.Now()
		res, serr := detectAndScore(r, store, bs, vp, sh, key, scoreOpts)
		if serr != nil {
			// The failure is itself a logged transition; the sheet stays
			// eligible for manual re-upload or re-process.
			fev := audit.Event{SheetID: id, ActorID: actor, Action: audit.ActionProcess,
				Details: detailsJSON(map[string]any{"error": serr.Error()})}
			if uerr := store.UpdateStatus(r.Context(), id, omr.StatusFailed, serr.Error(), fev); uerr != nil {
				http.Error(w, uerr.Error(), 500)
				return
			}
			http.Error(w, serr.Error(), processErrStatus(serr))
			return
		}
		res.ProcessingTimeMs = time.Since(started).Milliseconds()

		sev := audit.Event{SheetID: id, ActorID: actor, Action: audit.ActionEvaluate,
			Details: detailsJSON(map[string]any{
				"result_id": res.ID, "key_id": key.ID,
				"total_score": res.TotalScore, "percentage": res.Percentage,
			})}
		if err := store.SaveResult(r.Context(), res, omr.StatusCompleted, sev); err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		_ = json.NewEncoder(w).Encode(res)
	}
}

// keyForSheet picks the answer key: an explicit ?key_id wins, otherwise the
// newest key for the sheet's layout version.
func keyForSheet(r *http.Request, store omr.Store, sh omr.Sheet) (omr.AnswerKey, error) {
	if keyID := r.URL.Query().Get("key_id"); keyID != "" {
		return store.GetKey(r.Context(), keyID)
	}
	return store.GetKeyByVersion(r.Context(), sh.Version)
}

func detectAndScore(r *http.Request, store omr.Store, bs storage.BlobStore, vp vision.Pipeline,
	sh omr.Sheet, key omr.AnswerKey, scoreOpts []omr.Option) (omr.SheetResult, error) {

	img, err := bs.Get(sh.ImageKey)
	if err != nil {
		return omr.SheetResult{}, fmt.Errorf("sheet image: %w", err)
	}
	defer img.Close()

	detected, err := vp.Detect(r.Context(), img, key.TotalQuestions, key.NumOptions)
	if err != nil {
		return omr.SheetResult{}, fmt.Errorf("detect: %w", err)
	}
	res, err := omr.Score(detected, key, scoreOpts...)
	if err != nil {
		return omr.SheetResult{}, err
	}
	return omr.SheetResult{
		ID:              uuid.NewString(),
		SheetID:         sh.ID,
		KeyID:           key.ID,
		DetectedAnswers: detected.Answers,
		Result:          res,
	}, nil
}

func processErrStatus(err error) int {
	if errors.Is(err, omr.ErrShapeMismatch) || errors.Is(err, omr.ErrInvalidOption) ||
		errors.Is(err, omr.ErrAnswerCountMismatch) {
		return http.StatusBadRequest
	}
	return http.StatusBadGateway
}

// ReviewSheetHandler flags a completed sheet for human attention or clears
// the flag back to completed.
func ReviewSheetHandler(store omr.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "sheetID")
		var req struct {
			Flag    bool   `json:"flag"`
			Comment string `json:"comment,omitempty"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", 400)
			return
		}
		status := omr.StatusCompleted
		if req.Flag {
			status = omr.StatusFlagged
		}
		ev := audit.Event{
			SheetID: id,
			ActorID: authmw.SubjectFromContext(r.Context()),
			Action:  audit.ActionReview,
			Details: detailsJSON(map[string]any{"flag": req.Flag, "comment": req.Comment}),
		}
		if err := store.UpdateStatus(r.Context(), id, status, req.Comment, ev); err != nil {
			if errors.Is(err, omr.ErrNotFound) {
				http.Error(w, err.Error(), 404)
				return
			}
			http.Error(w, err.Error(), 500)
			return
		}
		sh, err := store.GetSheet(r.Context(), id)
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		_ = json.NewEncoder(w).Encode(sh)
	}
}

func GetSheetHandler(store omr.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "sheetID")
		sh, err := store.GetSheet(r.Context(), id)
		if err != nil {
			http.Error(w, err.Error(), 404)
			return
		}
		out := omr.SheetWithResult{Sheet: sh}
		if res, err := store.LatestResult(r.Context(), id); err == nil {
			out.Result = &res
		}
		_ = json.NewEncoder(w).Encode(out)
	}
}

func ListSheetsHandler(store omr.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		opts := omr.ListSheetsOpts{
			Status:  q.Get("status"),
			Version: q.Get("version"),
			Q:       q.Get("q"),
			Limit:   atoiOr(q.Get("limit"), 100),
			Offset:  atoiOr(q.Get("offset"), 0),
		}
		sheets, err := store.ListSheets(r.Context(), opts)
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		if sheets == nil {
			sheets = []omr.Sheet{}
		}
		_ = json.NewEncoder(w).Encode(sheets)
	}
}

// GetSheetImageHandler streams the stored scan back to the dashboard.
func GetSheetImageHandler(store omr.Store, bs storage.BlobStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sh, err := store.GetSheet(r.Context(), chi.URLParam(r, "sheetID"))
		if err != nil {
			http.Error(w, err.Error(), 404)
			return
		}
		rc, err := bs.Get(sh.ImageKey)
		if err != nil {
			http.Error(w, "not found: "+err.Error(), 404)
			return
		}
		defer rc.Close()
		w.Header().Set("Content-Type", imageContentType(sh.ImageKey))
		_, _ = io.Copy(w, rc)
	}
}

func imageContentType(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	default:
		return "application/octet-stream"
	}
}

func detailsJSON(m map[string]any) string {
	b, _ := json.Marshal(m)
	return string(b)
}

func atoiOr(s string, def int) int {
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}
