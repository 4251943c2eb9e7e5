package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"stash/internal/core"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// writeError maps the core error taxonomy onto HTTP statuses. Every
// response carries the human-readable message from the error chain.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, core.ErrValidation), errors.Is(err, core.ErrImmutableField):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, core.ErrInsufficientFunds):
		status = http.StatusConflict
	case errors.Is(err, core.ErrCommitFailed):
		status = http.StatusBadGateway
	}

	if status >= 500 {
		slog.ErrorContext(r.Context(), "Request failed",
			"method", r.Method,
			"url", r.URL.Path,
			"error", err)
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}
