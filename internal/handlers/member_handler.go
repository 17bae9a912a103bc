package handlers

import (
	"net/http"
	"strconv"
	"time"

	"guildmembers/internal/models"
	"guildmembers/internal/repository"
	"guildmembers/internal/service"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// MemberHandler handles the staff member routes, keyed by member number
type MemberHandler struct {
	members     *service.MemberService
	memberships *service.MembershipService
	payments    *service.PaymentService
	now         func() time.Time
}

// NewMemberHandler creates a new member handler
func NewMemberHandler(members *service.MemberService, memberships *service.MembershipService, payments *service.PaymentService) *MemberHandler {
	return &MemberHandler{
		members:     members,
		memberships: memberships,
		payments:    payments,
		now:         time.Now,
	}
}

// ListMembers lists members, filtered by ?active=, ?search=, ?site_id= and paged by ?limit= and ?offset=
func (h *MemberHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.MemberFilter{
		Search: q.Get("search"),
		Today:  h.now(),
		Limit:  defaultPageSize,
	}

	if v := q.Get("active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid active filter", "", nil)
			return
		}
		filter.Active = &active
	}
	if !parseQueryInt64(w, q.Get("site_id"), "Invalid site_id", &filter.SiteID) {
		return
	}
	if !parsePaging(w, r, &filter.Limit, &filter.Offset) {
		return
	}

	list, err := h.members.ListMembers(r.Context(), filter)
	if err != nil {
		respondWithServiceError(w, "Error listing members", err)
		return
	}

	resp := make([]MemberResponse, len(list))
	for i := range list {
		resp[i] = newMemberResponse(&list[i])
	}
	respondWithJSON(w, http.StatusOK, resp)
}

// CreateMember creates a member with the next free number
func (h *MemberHandler) CreateMember(w http.ResponseWriter, r *http.Request) {
	var req MemberRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	params, err := req.params()
	if err != nil {
		respondWithServiceError(w, "", err)
		return
	}

	member, err := h.members.CreateMember(r.Context(), params)
	if err != nil {
		respondWithServiceError(w, "Error creating member", err)
		return
	}
	h.respondWithMember(w, r, http.StatusCreated, member)
}

// GetMember returns a member with its contact details and membership history
func (h *MemberHandler) GetMember(w http.ResponseWriter, r *http.Request) {
	member, ok := h.loadMember(w, r)
	if !ok {
		return
	}
	h.respondWithMember(w, r, http.StatusOK, member)
}

// UpdateMember replaces the editable fields of a member
func (h *MemberHandler) UpdateMember(w http.ResponseWriter, r *http.Request) {
	member, ok := h.loadMember(w, r)
	if !ok {
		return
	}

	var req MemberRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	params, err := req.params()
	if err != nil {
		respondWithServiceError(w, "", err)
		return
	}

	updated, err := h.members.UpdateMember(r.Context(), member.ID, params)
	if err != nil {
		respondWithServiceError(w, "Error updating member", err)
		return
	}
	h.respondWithMember(w, r, http.StatusOK, updated)
}

// ListMemberships lists a member's memberships
func (h *MemberHandler) ListMemberships(w http.ResponseWriter, r *http.Request) {
	member, ok := h.loadMember(w, r)
	if !ok {
		return
	}

	list, err := h.memberships.ListMemberships(r.Context(), member.ID)
	if err != nil {
		respondWithServiceError(w, "Error listing memberships", err)
		return
	}

	now := h.now()
	resp := make([]MembershipResponse, len(list))
	for i := range list {
		resp[i] = newMembershipResponse(&list[i], member, now)
	}
	respondWithJSON(w, http.StatusOK, resp)
}

// CreateMembership grants a membership to a member
func (h *MemberHandler) CreateMembership(w http.ResponseWriter, r *http.Request) {
	member, ok := h.loadMember(w, r)
	if !ok {
		return
	}

	var req MembershipRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	params, err := req.params()
	if err != nil {
		respondWithServiceError(w, "", err)
		return
	}

	ms, err := h.memberships.CreateMembership(r.Context(), member.ID, params)
	if err != nil {
		respondWithServiceError(w, "Error creating membership", err)
		return
	}
	respondWithJSON(w, http.StatusCreated, newMembershipResponse(ms, member, h.now()))
}

// ListPayments lists a member's payments
func (h *MemberHandler) ListPayments(w http.ResponseWriter, r *http.Request) {
	member, ok := h.loadMember(w, r)
	if !ok {
		return
	}

	list, err := h.payments.ListPayments(r.Context(), member.ID)
	if err != nil {
		respondWithServiceError(w, "Error listing payments", err)
		return
	}
	respondWithJSON(w, http.StatusOK, newPaymentResponses(list))
}

// ListAllPayments lists every payment ordered by member name, then creation time
func (h *MemberHandler) ListAllPayments(w http.ResponseWriter, r *http.Request) {
	list, err := h.payments.ListAllPayments(r.Context())
	if err != nil {
		respondWithServiceError(w, "Error listing payments", err)
		return
	}
	respondWithJSON(w, http.StatusOK, newPaymentResponses(list))
}

// RecordPayment records a payment from a member
func (h *MemberHandler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	member, ok := h.loadMember(w, r)
	if !ok {
		return
	}

	var params service.PaymentParams
	if !decodeJSON(w, r, &params) {
		return
	}

	payment, err := h.payments.RecordPayment(r.Context(), member.ID, params)
	if err != nil {
		respondWithServiceError(w, "Error recording payment", err)
		return
	}
	respondWithJSON(w, http.StatusCreated, newPaymentResponse(payment))
}

// SendWelcomeEmail mails the welcome letter to every address of the member
func (h *MemberHandler) SendWelcomeEmail(w http.ResponseWriter, r *http.Request) {
	member, ok := h.loadMember(w, r)
	if !ok {
		return
	}

	if err := h.members.SendWelcomeEmail(r.Context(), member.ID); err != nil {
		respondWithServiceError(w, "Error sending welcome email", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *MemberHandler) loadMember(w http.ResponseWriter, r *http.Request) (*models.Member, bool) {
	number, ok := urlInt64(w, r, "number", ErrInvalidNumber)
	if !ok {
		return nil, false
	}
	member, err := h.members.GetMemberByNumber(r.Context(), number)
	if err != nil {
		respondWithServiceError(w, "Error loading member", err)
		return nil, false
	}
	return member, true
}

func (h *MemberHandler) respondWithMember(w http.ResponseWriter, r *http.Request, status int, member *models.Member) {
	ctx := r.Context()
	resp := newMemberResponse(member)

	var err error
	if resp.Emails, err = h.members.GetEmails(ctx, member.ID); err != nil {
		respondWithServiceError(w, "Error loading member emails", err)
		return
	}
	if resp.Phones, err = h.members.GetPhones(ctx, member.ID); err != nil {
		respondWithServiceError(w, "Error loading member phones", err)
		return
	}
	if resp.Memberships, err = h.members.GetMemberships(ctx, member.ID); err != nil {
		respondWithServiceError(w, "Error loading member memberships", err)
		return
	}
	respondWithJSON(w, status, resp)
}

func parseQueryInt64(w http.ResponseWriter, raw, userMsg string, dst *int64) bool {
	if raw == "" {
		return true
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		respondWithError(w, http.StatusBadRequest, userMsg, "", nil)
		return false
	}
	*dst = n
	return true
}

// parsePaging reads ?limit= and ?offset=, capping the page size
func parsePaging(w http.ResponseWriter, r *http.Request, limit, offset *int) bool {
	q := r.URL.Query()
	var l, o int64
	if !parseQueryInt64(w, q.Get("limit"), "Invalid limit", &l) {
		return false
	}
	if !parseQueryInt64(w, q.Get("offset"), "Invalid offset", &o) {
		return false
	}
	if l > 0 {
		*limit = int(min(l, maxPageSize))
	}
	*offset = int(o)
	return true
}
