package dashboard

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/starford/postdesk/internal/apperr"
	"github.com/starford/postdesk/internal/postservice"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// writeError maps err to a status code and logs anything unexpected.
func writeError(w http.ResponseWriter, logger *slog.Logger, op string, err error) {
	var ie *postservice.InputError
	switch {
	case errors.As(err, &ie):
		writeJSON(w, http.StatusBadRequest, errorBody(ie.Error()))
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case apperr.IsAuth(err):
		writeJSON(w, http.StatusUnauthorized, errorBody(err.Error()))
	case apperr.StatusCode(err) != 0, apperr.IsValidation(err):
		logger.Warn(op+" failed upstream", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadGateway, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, errorBody("platform unavailable"))
	default:
		logger.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}
