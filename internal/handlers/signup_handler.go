package handlers

import (
	"net/http"

	"guildmembers/internal/models"
	"guildmembers/internal/repository"
	"guildmembers/internal/service"
)

// SignupHandler handles the public signup form and the staff review of signups
type SignupHandler struct {
	signups *service.SignupService
}

// NewSignupHandler creates a new signup handler
func NewSignupHandler(signups *service.SignupService) *SignupHandler {
	return &SignupHandler{signups: signups}
}

// Submit stores a public signup for staff to review
func (h *SignupHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	form, err := req.form()
	if err != nil {
		respondWithServiceError(w, "", err)
		return
	}

	signup, err := h.signups.Submit(r.Context(), form)
	if err != nil {
		respondWithServiceError(w, "Error submitting signup", err)
		return
	}
	respondWithJSON(w, http.StatusCreated, SignupResponse{
		ID:      signup.ID,
		Message: "Thank you. Your application will be reviewed by our staff.",
	})
}

// ListSignups lists signups, newest first. ?pending=true hides converted ones.
func (h *SignupHandler) ListSignups(w http.ResponseWriter, r *http.Request) {
	filter := repository.TemporaryMemberFilter{
		PendingOnly: r.URL.Query().Get("pending") == "true",
		Limit:       defaultPageSize,
	}
	if !parsePaging(w, r, &filter.Limit, &filter.Offset) {
		return
	}

	list, err := h.signups.ListSignups(r.Context(), filter)
	if err != nil {
		respondWithServiceError(w, "Error listing signups", err)
		return
	}

	resp := make([]TemporaryMemberResponse, len(list))
	for i := range list {
		resp[i] = newTemporaryMemberResponse(&list[i])
	}
	respondWithJSON(w, http.StatusOK, resp)
}

// GetSignup returns one signup
func (h *SignupHandler) GetSignup(w http.ResponseWriter, r *http.Request) {
	id, ok := urlInt64(w, r, "id", ErrInvalidID)
	if !ok {
		return
	}

	signup, err := h.signups.GetSignup(r.Context(), id)
	if err != nil {
		respondWithServiceError(w, "Error loading signup", err)
		return
	}
	respondWithJSON(w, http.StatusOK, newTemporaryMemberResponse(signup))
}

// Review saves a staff decision. An approval without approved_by is
// attributed to the calling staff user.
func (h *SignupHandler) Review(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	if user == nil {
		respondWithError(w, http.StatusUnauthorized, ErrUnauthorized, "", nil)
		return
	}
	id, ok := urlInt64(w, r, "id", ErrInvalidID)
	if !ok {
		return
	}

	var params service.ReviewParams
	if !decodeJSON(w, r, &params) {
		return
	}
	if params.IsApprovedPaid && params.ApprovedBy == nil {
		params.ApprovedBy = &user.ID
	}

	signup, err := h.signups.Review(r.Context(), id, params)
	if err != nil {
		respondWithServiceError(w, "Error reviewing signup", err)
		return
	}
	respondWithJSON(w, http.StatusOK, newTemporaryMemberResponse(signup))
}

// Convert turns an approved signup into a member with a payment and a
// membership. With "approve": true the calling staff user approves it first.
func (h *SignupHandler) Convert(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	if user == nil {
		respondWithError(w, http.StatusUnauthorized, ErrUnauthorized, "", nil)
		return
	}
	id, ok := urlInt64(w, r, "id", ErrInvalidID)
	if !ok {
		return
	}

	var req ConvertRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	var (
		member *models.Member
		err    error
	)
	if req.Approve {
		member, err = h.signups.ApproveAndConvert(r.Context(), id, user.ID, req.ConvertParams)
	} else {
		member, err = h.signups.ConvertToMember(r.Context(), id, req.ConvertParams)
	}
	if err != nil {
		respondWithServiceError(w, "Error converting signup", err)
		return
	}
	respondWithJSON(w, http.StatusOK, newMemberResponse(member))
}
