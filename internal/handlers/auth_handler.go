package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"guildmembers/internal/service"
)

// AuthHandler handles staff login
type AuthHandler struct {
	accounts *service.AccountService
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(accounts *service.AccountService) *AuthHandler {
	return &AuthHandler{accounts: accounts}
}

// Login exchanges staff credentials for a bearer token
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.accounts.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		respondWithServiceError(w, "Error logging in", err)
		return
	}

	respondWithJSON(w, http.StatusOK, LoginResponse{
		Token:     result.Token,
		ExpiresAt: result.ExpiresAt,
		User:      newUserResponse(result.User),
	})
}

// Me returns the staff account behind the token
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	if user == nil {
		respondWithError(w, http.StatusUnauthorized, ErrUnauthorized, "", nil)
		return
	}
	respondWithJSON(w, http.StatusOK, newUserResponse(user))
}

// decodeJSON reads a JSON body into dst, answering 400 itself on failure
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respondWithError(w, http.StatusRequestEntityTooLarge, "Request body too large", "", nil)
			return false
		}
		respondWithJSON(w, http.StatusBadRequest, errorResponse{Error: ErrInvalidJSON + ": " + err.Error()})
		return false
	}
	return true
}

// urlInt64 parses a positive integer URL parameter, answering 400 itself on failure
func urlInt64(w http.ResponseWriter, r *http.Request, name, userMsg string) (int64, bool) {
	n, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || n <= 0 {
		respondWithError(w, http.StatusBadRequest, userMsg, "", nil)
		return 0, false
	}
	return n, true
}
