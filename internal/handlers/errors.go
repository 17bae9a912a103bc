package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"guildmembers/internal/repository"
	"guildmembers/internal/security"
	"guildmembers/internal/service"
	"guildmembers/internal/validation"
)

type errorResponse struct {
	Error  string             `json:"error"`
	Fields []fieldErrResponse `json:"fields,omitempty"`
}

type fieldErrResponse struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func respondWithJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

func respondWithError(w http.ResponseWriter, status int, userMsg, logMsg string, err error) {
	if err != nil {
		if logMsg == "" {
			logMsg = userMsg
		}
		slog.Error(logMsg, "status", status, "error", err)
	}

	respondWithJSON(w, status, errorResponse{Error: userMsg})
}

// respondWithServiceError maps a service or repository error to a status code.
// Only unexpected failures are logged; the rest are the caller's fault.
func respondWithServiceError(w http.ResponseWriter, logMsg string, err error) {
	var single validation.ValidationError
	var multi validation.Errors
	switch {
	case errors.As(err, &multi):
		resp := errorResponse{Error: ErrValidationFailed}
		for _, fe := range multi {
			resp.Fields = append(resp.Fields, fieldErrResponse{Field: fe.Field, Message: fe.Message})
		}
		respondWithJSON(w, http.StatusBadRequest, resp)
	case errors.As(err, &single):
		respondWithJSON(w, http.StatusBadRequest, errorResponse{
			Error:  ErrValidationFailed,
			Fields: []fieldErrResponse{{Field: single.Field, Message: single.Message}},
		})
	case errors.Is(err, service.ErrInvalidCredentials), errors.Is(err, security.ErrInvalidToken):
		respondWithJSON(w, http.StatusUnauthorized, errorResponse{Error: err.Error()})
	case errors.Is(err, service.ErrMemberNotFound),
		errors.Is(err, service.ErrMembershipNotFound),
		errors.Is(err, service.ErrTemporaryMemberNotFound),
		errors.Is(err, service.ErrUserNotFound):
		respondWithJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, service.ErrNotApproved),
		errors.Is(err, service.ErrNoRecipients),
		errors.Is(err, repository.ErrDuplicateMembership),
		errors.Is(err, repository.ErrDuplicateUsername):
		respondWithJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, repository.ErrAllocationConflict):
		slog.Warn(logMsg, "error", err)
		respondWithJSON(w, http.StatusConflict, errorResponse{Error: ErrTryAgain})
	default:
		respondWithError(w, http.StatusInternalServerError, ErrInternalServerError, logMsg, err)
	}
}
