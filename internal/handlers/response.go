package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stanstork/claimflow/internal/claims"
)

type errorResponse struct {
	OK      bool   `json:"ok"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{OK: false, Code: code, Message: message})
}

// writeWorkflowError maps workflow failures to distinct HTTP statuses and
// stable codes. invalidStatus is the HTTP status used for *claims.StatusError.
func writeWorkflowError(w http.ResponseWriter, logger zerolog.Logger, err error, invalidStatus int) {
	var statusErr *claims.StatusError
	switch {
	case errors.As(err, &statusErr):
		writeError(w, invalidStatus, "invalid_status", statusErr.Error())
	case errors.Is(err, claims.ErrTokenRequired):
		writeError(w, http.StatusBadRequest, "token_required", err.Error())
	case errors.Is(err, claims.ErrDescriptionTooShort):
		writeError(w, http.StatusBadRequest, "description_too_short", err.Error())
	case errors.Is(err, claims.ErrTokenNotFound):
		writeError(w, http.StatusNotFound, "token_invalid", err.Error())
	case errors.Is(err, claims.ErrTokenExpired):
		writeError(w, http.StatusGone, "token_expired", err.Error())
	case errors.Is(err, claims.ErrTokenUsed):
		writeError(w, http.StatusConflict, "token_used", err.Error())
	case errors.Is(err, claims.ErrClaimIDRequired):
		writeError(w, http.StatusBadRequest, "claim_id_required", err.Error())
	case errors.Is(err, claims.ErrClaimNotFound):
		writeError(w, http.StatusNotFound, "claim_not_found", err.Error())
	case errors.Is(err, claims.ErrClosureForbidden):
		writeError(w, http.StatusForbidden, "closure_forbidden", err.Error())
	default:
		logger.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
