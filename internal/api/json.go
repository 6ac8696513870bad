package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"github.com/starford/lightauth/internal/apperr"
)

// maxBody bounds request bodies. Bundles of a few thousand accounts fit.
const maxBody = 10 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error" validate:"required"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// decodeJSON reads a JSON request body into v. An empty body leaves v at
// its zero value; any other body must be sent as application/json.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.ContentLength != 0 {
		mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil || mt != "application/json" {
			writeJSON(w, http.StatusUnsupportedMediaType, errorBody("content type must be application/json"))
			return false
		}
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	return true
}

// writeError maps domain errors to HTTP statuses. Unclassified errors are
// logged and reported without detail.
func writeError(w http.ResponseWriter, op string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, apperr.ErrInvalidSecret),
		errors.Is(err, apperr.ErrInvalidAccount),
		errors.Is(err, apperr.ErrSecretImmutable),
		errors.Is(err, apperr.ErrInvalidSettings),
		errors.Is(err, apperr.ErrFormat):
		status = http.StatusBadRequest
	case errors.Is(err, apperr.ErrOutOfRange):
		status = http.StatusNotFound
	case errors.Is(err, apperr.ErrLocked):
		status = http.StatusLocked
	case errors.Is(err, apperr.ErrWrongPassword),
		errors.Is(err, apperr.ErrPasswordRequired):
		status = http.StatusUnauthorized
	case errors.Is(err, apperr.ErrDecryptionFailed),
		errors.Is(err, apperr.ErrNotCiphertext),
		errors.Is(err, apperr.ErrMalformedCiphertext):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, apperr.ErrVaultUnreadable):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, status, errorBody("internal error"))
		return
	}
	writeJSON(w, status, errorBody(err.Error()))
}
