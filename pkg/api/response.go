package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"audio-advisor/pkg/apperr"
	"audio-advisor/pkg/logging"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "err", err)
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrMissingAudio), errors.Is(err, apperr.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps err onto the status taxonomy. Outside development a 500
// carries only the failure kind, never the wrapped cause.
func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	message := err.Error()

	if status >= http.StatusInternalServerError {
		logging.FromContext(r.Context()).Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"err", err,
		)
		if !h.opts.Development {
			message = http.StatusText(status)
			if kind := apperr.KindOf(err); kind != nil {
				message = kind.Error()
			}
		}
	}

	writeJSON(w, status, errorResponse{Error: message})
}
