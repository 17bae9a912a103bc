package handlers

import (
	"time"

	"guildmembers/internal/models"
	"guildmembers/internal/service"
	"guildmembers/internal/validation"
)

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      UserResponse `json:"user"`
}

type UserResponse struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email,omitempty"`
}

func newUserResponse(u *models.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Username:  u.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Email:     u.Email,
	}
}

type MemberResponse struct {
	ID           int64     `json:"id"`
	Number       int64     `json:"number"`
	Label        string    `json:"label"`
	Name         string    `json:"name"`
	SortName     string    `json:"sort_name"`
	RefName      string    `json:"ref_name"`
	Title        string    `json:"title,omitempty"`
	Notes        string    `json:"notes,omitempty"`
	PrivateNotes string    `json:"private_notes,omitempty"`
	Address      string    `json:"address,omitempty"`
	Postcode     string    `json:"postcode,omitempty"`
	Suburb       string    `json:"suburb,omitempty"`
	State        string    `json:"state,omitempty"`
	Country      string    `json:"country,omitempty"`
	Year         int       `json:"year,omitempty"`
	DOB          string    `json:"dob,omitempty"`
	IsCurrent    bool      `json:"is_current"`
	Key          string    `json:"key"`
	LegacySource string    `json:"legacy_source,omitempty"`
	SiteID       int64     `json:"site_id"`
	UserID       *int64    `json:"user_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Emails       string    `json:"emails,omitempty"`
	Phones       string    `json:"phones,omitempty"`
	Memberships  string    `json:"memberships,omitempty"`
}

func newMemberResponse(m *models.Member) MemberResponse {
	resp := MemberResponse{
		ID:           m.ID,
		Number:       m.Number,
		Label:        m.Label(m.IsCurrent),
		Name:         m.Name,
		SortName:     m.SortName,
		RefName:      m.RefName,
		Title:        m.Title,
		Notes:        m.Notes,
		PrivateNotes: m.PrivateNotes,
		Address:      m.Address,
		Postcode:     m.Postcode,
		Suburb:       m.Suburb,
		State:        m.State,
		Country:      m.Country,
		Year:         m.Year,
		IsCurrent:    m.IsCurrent,
		Key:          m.Key,
		LegacySource: m.LegacySource,
		SiteID:       m.SiteID,
		UserID:       m.UserID,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
	if m.DOB != nil {
		resp.DOB = models.FormatDate(*m.DOB)
	}
	return resp
}

type MembershipResponse struct {
	ID          int64  `json:"id"`
	MemberID    int64  `json:"member_id"`
	MemberType  string `json:"member_type"`
	Special     string `json:"special,omitempty"`
	ValidFrom   string `json:"valid_from"`
	ValidUntil  string `json:"valid_until,omitempty"`
	Note        string `json:"note,omitempty"`
	IsCurrent   bool   `json:"is_current"`
	Description string `json:"description,omitempty"`
}

// newMembershipResponse describes ms as of now; member may be nil when it was not loaded
func newMembershipResponse(ms *models.Membership, member *models.Member, now time.Time) MembershipResponse {
	resp := MembershipResponse{
		ID:         ms.ID,
		MemberID:   ms.MemberID,
		MemberType: ms.MemberType,
		Special:    ms.Special,
		ValidFrom:  models.FormatDate(ms.ValidFrom),
		Note:       ms.Note,
		IsCurrent:  ms.IsCurrent(now),
	}
	if ms.ValidUntil != nil {
		resp.ValidUntil = models.FormatDate(*ms.ValidUntil)
	}
	if member != nil {
		resp.Description = ms.Describe(member, now)
	}
	return resp
}

type TagResponse struct {
	ID           int64     `json:"id"`
	MembershipID int64     `json:"membership_id"`
	GivenByID    int64     `json:"given_by_id"`
	GivenByName  string    `json:"given_by_name"`
	GivenAt      time.Time `json:"given_at"`
	GivenTag     bool      `json:"given_tag"`
	GivenCard    bool      `json:"given_card"`
}

func newTagResponse(t *models.MembershipTag) TagResponse {
	return TagResponse{
		ID:           t.ID,
		MembershipID: t.MembershipID,
		GivenByID:    t.GivenByID,
		GivenByName:  t.GivenByName,
		GivenAt:      t.GivenAt,
		GivenTag:     t.GivenTag,
		GivenCard:    t.GivenCard,
	}
}

type PaymentResponse struct {
	ID            int64     `json:"id"`
	MemberID      int64     `json:"member_id"`
	PaymentMethod string    `json:"payment_method"`
	PaymentRef    string    `json:"payment_ref,omitempty"`
	AmountPaid    string    `json:"amount_paid"`
	CreatedAt     time.Time `json:"created_at"`
}

func newPaymentResponse(p *models.Payment) PaymentResponse {
	return PaymentResponse{
		ID:            p.ID,
		MemberID:      p.MemberID,
		PaymentMethod: p.PaymentMethod,
		PaymentRef:    p.PaymentRef,
		AmountPaid:    p.AmountPaid.StringFixed(2),
		CreatedAt:     p.CreatedAt,
	}
}

func newPaymentResponses(list []models.Payment) []PaymentResponse {
	resp := make([]PaymentResponse, len(list))
	for i := range list {
		resp[i] = newPaymentResponse(&list[i])
	}
	return resp
}

type TemporaryMemberResponse struct {
	ID                    int64      `json:"id"`
	Summary               string     `json:"summary"`
	CreatedAt             time.Time  `json:"created_at"`
	IsChecked             bool       `json:"is_checked"`
	IsApprovedPaid        bool       `json:"is_approved_paid"`
	ApprovedPaymentMethod string     `json:"approved_payment_method,omitempty"`
	ApprovedBy            *int64     `json:"approved_by,omitempty"`
	ApprovedAt            *time.Time `json:"approved_at,omitempty"`
	PaymentMethod         string     `json:"payment_method,omitempty"`
	PaymentSource         string     `json:"payment_source,omitempty"`
	MemberID              *int64     `json:"member_id,omitempty"`
	MemberType            string     `json:"member_type"`
	Name                  string     `json:"name"`
	SortName              string     `json:"sort_name"`
	RefName               string     `json:"ref_name"`
	Notes                 string     `json:"notes,omitempty"`
	Email                 string     `json:"email,omitempty"`
	Phone                 string     `json:"phone,omitempty"`
	Address               string     `json:"address,omitempty"`
	Suburb                string     `json:"suburb,omitempty"`
	Postcode              string     `json:"postcode,omitempty"`
	State                 string     `json:"state,omitempty"`
	Country               string     `json:"country,omitempty"`
	Year                  int        `json:"year,omitempty"`
	DOB                   string     `json:"dob,omitempty"`
	SurveyGames           string     `json:"survey_games,omitempty"`
	SurveyFood            string     `json:"survey_food,omitempty"`
	SurveyHear            string     `json:"survey_hear,omitempty"`
	SurveySuggestions     string     `json:"survey_suggestions,omitempty"`
}

func newTemporaryMemberResponse(t *models.TemporaryMember) TemporaryMemberResponse {
	resp := TemporaryMemberResponse{
		ID:                    t.ID,
		Summary:               t.String(),
		CreatedAt:             t.CreatedAt,
		IsChecked:             t.IsChecked,
		IsApprovedPaid:        t.IsApprovedPaid,
		ApprovedPaymentMethod: t.ApprovedPaymentMethod,
		ApprovedBy:            t.ApprovedBy,
		ApprovedAt:            t.ApprovedAt,
		PaymentMethod:         t.PaymentMethod,
		PaymentSource:         t.PaymentSource,
		MemberID:              t.MemberID,
		MemberType:            t.MemberType,
		Name:                  t.Name,
		SortName:              t.SortName,
		RefName:               t.RefName,
		Notes:                 t.Notes,
		Email:                 t.Email,
		Phone:                 t.Phone,
		Address:               t.Address,
		Suburb:                t.Suburb,
		Postcode:              t.Postcode,
		State:                 t.State,
		Country:               t.Country,
		Year:                  t.Year,
		SurveyGames:           t.SurveyGames,
		SurveyFood:            t.SurveyFood,
		SurveyHear:            t.SurveyHear,
		SurveySuggestions:     t.SurveySuggestions,
	}
	if t.DOB != nil {
		resp.DOB = models.FormatDate(*t.DOB)
	}
	return resp
}

// SignupResponse is what the public sees after submitting the form
type SignupResponse struct {
	ID      int64  `json:"id"`
	Message string `json:"message"`
}

// ConvertRequest converts a signup. With Approve set, the calling staff
// account approves the signup in the same step.
type ConvertRequest struct {
	Approve bool `json:"approve"`
	service.ConvertParams
}

// MemberRequest takes dates as YYYY-MM-DD; the outer DOB shadows the embedded one
type MemberRequest struct {
	service.MemberParams
	DOB string `json:"dob"`
}

func (r *MemberRequest) params() (service.MemberParams, error) {
	p := r.MemberParams
	dob, err := parseOptionalDate("dob", r.DOB)
	if err != nil {
		return p, err
	}
	p.DOB = dob
	return p, nil
}

type MembershipRequest struct {
	MemberType string `json:"member_type"`
	Special    string `json:"special"`
	ValidFrom  string `json:"valid_from"`
	ValidUntil string `json:"valid_until"`
	Note       string `json:"note"`
}

func (r *MembershipRequest) params() (service.MembershipParams, error) {
	p := service.MembershipParams{MemberType: r.MemberType, Special: r.Special, Note: r.Note}
	var errs validation.Errors
	if from, err := parseOptionalDate("valid_from", r.ValidFrom); err != nil {
		errs = append(errs, err.(validation.ValidationError))
	} else if from != nil {
		p.ValidFrom = *from
	}
	until, err := parseOptionalDate("valid_until", r.ValidUntil)
	if err != nil {
		errs = append(errs, err.(validation.ValidationError))
	}
	p.ValidUntil = until
	return p, errs.OrNil()
}

type SignupRequest struct {
	service.SignupForm
	DOB string `json:"dob"`
}

func (r *SignupRequest) form() (service.SignupForm, error) {
	f := r.SignupForm
	dob, err := parseOptionalDate("dob", r.DOB)
	if err != nil {
		return f, err
	}
	f.DOB = dob
	return f, nil
}

// parseOptionalDate parses a YYYY-MM-DD date; blank means no date
func parseOptionalDate(field, s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return nil, validation.ValidationError{Field: field, Message: "must be a date in YYYY-MM-DD format"}
	}
	return &t, nil
}
