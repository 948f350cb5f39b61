package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/scanscore/omr-backend/internal/omr"
)

func CreateKeyHandler(store omr.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var k omr.AnswerKey
		if err := json.NewDecoder(r.Body).Decode(&k); err != nil {
			http.Error(w, "bad json", 400)
			return
		}
		if k.ID == "" {
			k.ID = uuid.NewString()
		}
		if err := store.PutKey(r.Context(), k); err != nil {
			http.Error(w, err.Error(), keyErrStatus(err))
			return
		}
		created, err := store.GetKey(r.Context(), k.ID)
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(created)
	}
}

func UpdateKeyHandler(store omr.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "keyID")
		if _, err := store.GetKey(r.Context(), id); err != nil {
			http.Error(w, err.Error(), 404)
			return
		}
		var k omr.AnswerKey
		if err := json.NewDecoder(r.Body).Decode(&k); err != nil {
			http.Error(w, "bad json", 400)
			return
		}
		k.ID = id
		if err := store.PutKey(r.Context(), k); err != nil {
			http.Error(w, err.Error(), keyErrStatus(err))
			return
		}
		updated, err := store.GetKey(r.Context(), id)
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		_ = json.NewEncoder(w).Encode(updated)
	}
}

func GetKeyHandler(store omr.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		k, err := store.GetKey(r.Context(), chi.URLParam(r, "keyID"))
		if err != nil {
			http.Error(w, err.Error(), 404)
			return
		}
		_ = json.NewEncoder(w).Encode(k)
	}
}

func ListKeysHandler(store omr.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		keys, err := store.ListKeys(r.Context())
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		if keys == nil {
			keys = []omr.AnswerKey{}
		}
		_ = json.NewEncoder(w).Encode(keys)
	}
}

func DeleteKeyHandler(store omr.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := store.DeleteKey(r.Context(), chi.URLParam(r, "keyID")); err != nil {
			http.Error(w, err.Error(), keyErrStatus(err))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// Validation failures are the caller's to fix; a key in use is a conflict.
func keyErrStatus(err error) int {
	switch {
	case errors.Is(err, omr.ErrKeyInUse):
		return http.StatusConflict
	case errors.Is(err, omr.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusBadRequest
	}
}
