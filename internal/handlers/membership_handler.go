package handlers

import (
	"net/http"

	"guildmembers/internal/service"
)

// MembershipHandler handles the tags issued for a membership
type MembershipHandler struct {
	memberships *service.MembershipService
}

// NewMembershipHandler creates a new membership handler
func NewMembershipHandler(memberships *service.MembershipService) *MembershipHandler {
	return &MembershipHandler{memberships: memberships}
}

// ListTags lists the tags and cards handed over for a membership
func (h *MembershipHandler) ListTags(w http.ResponseWriter, r *http.Request) {
	id, ok := urlInt64(w, r, "id", ErrInvalidID)
	if !ok {
		return
	}

	tags, err := h.memberships.ListTags(r.Context(), id)
	if err != nil {
		respondWithServiceError(w, "Error listing tags", err)
		return
	}

	resp := make([]TagResponse, len(tags))
	for i := range tags {
		resp[i] = newTagResponse(&tags[i])
	}
	respondWithJSON(w, http.StatusOK, resp)
}

// IssueTag records a tag or card handed over by the calling staff user
func (h *MembershipHandler) IssueTag(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	if user == nil {
		respondWithError(w, http.StatusUnauthorized, ErrUnauthorized, "", nil)
		return
	}
	id, ok := urlInt64(w, r, "id", ErrInvalidID)
	if !ok {
		return
	}

	var params service.TagParams
	if !decodeJSON(w, r, &params) {
		return
	}

	tag, err := h.memberships.IssueTag(r.Context(), id, user.ID, params)
	if err != nil {
		respondWithServiceError(w, "Error issuing tag", err)
		return
	}
	respondWithJSON(w, http.StatusCreated, newTagResponse(tag))
}
