package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/render"
	"go.uber.org/zap"

	"github.com/yourorg/inventory-api/internal/store"
)

// writeError sends the {error, code, timestamp} body every endpoint uses.
func writeError(w http.ResponseWriter, req *http.Request, status int, code, msg string) {
	render.Status(req, status)
	render.JSON(w, req, map[string]any{
		"error":     msg,
		"code":      code,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// storeError maps store sentinels to 404/409 and hides everything else
// behind a logged 500.
func storeError(w http.ResponseWriter, req *http.Request, log *zap.Logger, err error, what string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, req, http.StatusNotFound, "NOT_FOUND", what+" not found")
	case errors.Is(err, store.ErrConflict):
		writeError(w, req, http.StatusConflict, "CONFLICT", what+" already exists")
	default:
		log.Error(what+" store error", zap.Error(err))
		writeError(w, req, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
	}
}

func decodeJSON(w http.ResponseWriter, req *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, req.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func nopIfNil(log *zap.Logger) *zap.Logger {
	if log == nil {
		return zap.NewNop()
	}
	return log
}
