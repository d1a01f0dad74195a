package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"govconsole/internal/canister"
	govsvc "govconsole/internal/services/governance"
	"govconsole/internal/services/views"
	"govconsole/internal/store/repositories"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeErrorCode(w http.ResponseWriter, status int, code, msg string) {
	var body errorBody
	body.Error.Code = code
	body.Error.Message = msg
	writeJSON(w, status, body)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "invalid_json", "invalid JSON")
		return false
	}
	return true
}

// writeError maps service and canister errors to a status and code
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *govsvc.ValidationError
	var apiErr *canister.APIError
	status, code := http.StatusInternalServerError, "internal"

	switch {
	case errors.As(err, &ve):
		status, code = http.StatusBadRequest, "validation"
	case errors.Is(err, repositories.ErrInvalidListQuery), errors.Is(err, canister.ErrValidation):
		status, code = http.StatusBadRequest, "validation"
	case errors.Is(err, canister.ErrNotFound), errors.Is(err, views.ErrNotFound), errors.Is(err, repositories.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, canister.ErrNotPermission):
		status, code = http.StatusForbidden, "not_permitted"
	case errors.Is(err, canister.ErrNotVotingState),
		errors.Is(err, canister.ErrNotApprovedState),
		errors.Is(err, canister.ErrAlreadyVoted),
		errors.Is(err, canister.ErrVotingConfigNotFound):
		status, code = http.StatusConflict, "conflict"
	case errors.Is(err, canister.ErrUnavailable):
		status, code = http.StatusServiceUnavailable, "unavailable"
	}
	if errors.As(err, &apiErr) && status != http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		code = apiErr.Code
	}

	ev := log.Warn()
	if status >= 500 {
		ev = log.Error()
	}
	ev.Err(err).Str("method", r.Method).Str("path", r.URL.Path).Int("status", status).Msg("request failed")

	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	writeErrorCode(w, status, code, msg)
}
