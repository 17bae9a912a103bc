package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"guildmembers/internal/database"
	"guildmembers/internal/models"
	"guildmembers/internal/repository"
	"guildmembers/internal/validation"
)

// SignupForm is the public membership signup form
type SignupForm struct {
	MemberType    string     `json:"member_type" validate:"required"`
	RefName       string     `json:"ref_name" validate:"required,max=255"`
	SortName      string     `json:"sort_name" validate:"required,max=255"`
	Name          string     `json:"name" validate:"max=255"`
	Notes         string     `json:"notes"`
	Email         string     `json:"email" validate:"required,email"`
	Phone         string     `json:"phone" validate:"max=50"`
	Address       string     `json:"address" validate:"max=255"`
	Suburb        string     `json:"suburb" validate:"required,max=255"`
	Postcode      string     `json:"postcode" validate:"required,max=10"`
	State         string     `json:"state" validate:"required,max=255"`
	Country       string     `json:"country" validate:"max=255"`
	Year          int        `json:"year" validate:"gte=0"`
	DOB           *time.Time `json:"dob"`
	PaymentMethod string     `json:"payment_method"`
	PaymentSource string     `json:"payment_source" validate:"max=255"`

	SurveyGames       string `json:"survey_games"`
	SurveyFood        string `json:"survey_food"`
	SurveyHear        string `json:"survey_hear"`
	SurveySuggestions string `json:"survey_suggestions"`
}

// ReviewParams is a staff decision on a signup
type ReviewParams struct {
	IsChecked             bool   `json:"is_checked"`
	IsApprovedPaid        bool   `json:"is_approved_paid"`
	ApprovedPaymentMethod string `json:"approved_payment_method"`
	// ApprovedBy is the approving staff account
	ApprovedBy *int64 `json:"approved_by"`
}

// ConvertParams carries the payment and membership created on conversion
type ConvertParams struct {
	PaymentMethod string          `json:"payment_method"`
	PaymentRef    string          `json:"payment_ref"`
	AmountPaid    decimal.Decimal `json:"amount_paid"`
	MemberType    string          `json:"member_type"`
	Special       string          `json:"special"`
}

// SignupService runs the signup workflow: public submission, staff review and
// conversion of an approved signup into a member with a payment and a membership
type SignupService struct {
	db             *database.DB
	temps          *repository.TemporaryMemberRepository
	contacts       *repository.ContactRepository
	users          *repository.UserRepository
	members        *MemberService
	memberships    *MembershipService
	payments       *PaymentService
	mailer         Mailer
	staffEmails    []string
	memberTypes    []string
	paymentMethods []string
	now            func() time.Time
}

// SignupConfig holds the choices and recipients used by the signup workflow
type SignupConfig struct {
	StaffEmails    []string
	MemberTypes    []string
	PaymentMethods []string
}

// NewSignupService creates a new signup service
func NewSignupService(db *database.DB, members *MemberService, memberships *MembershipService, payments *PaymentService, mailer Mailer, cfg SignupConfig) *SignupService {
	return &SignupService{
		db:             db,
		temps:          repository.NewTemporaryMemberRepository(db),
		contacts:       repository.NewContactRepository(db),
		users:          repository.NewUserRepository(db),
		members:        members,
		memberships:    memberships,
		payments:       payments,
		mailer:         mailer,
		staffEmails:    cfg.StaffEmails,
		memberTypes:    cfg.MemberTypes,
		paymentMethods: cfg.PaymentMethods,
		now:            time.Now,
	}
}

func (s *SignupService) validateForm(form SignupForm) error {
	if err := validation.Struct(form); err != nil {
		return err
	}

	var errs validation.Errors
	if form.MemberType == models.MemberTypeSpecial {
		errs = append(errs, validation.ValidationError{Field: "member_type", Message: "special memberships are granted by staff"})
	} else if err := validation.OneOf("member_type", form.MemberType, s.memberTypes); err != nil {
		errs = append(errs, err.(validation.ValidationError))
	}
	if form.PaymentMethod != "" {
		if err := validation.OneOf("payment_method", form.PaymentMethod, s.paymentMethods); err != nil {
			errs = append(errs, err.(validation.ValidationError))
		}
	}
	return errs.OrNil()
}

// Submit stores a public signup as an unapproved temporary member and notifies staff
func (s *SignupService) Submit(ctx context.Context, form SignupForm) (signup *models.TemporaryMember, err error) {
	ctx, span := startSpan(ctx, "SignupService.Submit")
	defer func() { endSpan(span, err) }()

	if err := s.validateForm(form); err != nil {
		return nil, err
	}

	t := &models.TemporaryMember{
		CreatedAt:         s.now().UTC(),
		PaymentMethod:     form.PaymentMethod,
		PaymentSource:     form.PaymentSource,
		MemberType:        form.MemberType,
		Name:              strings.TrimSpace(form.Name),
		SortName:          strings.TrimSpace(form.SortName),
		RefName:           strings.TrimSpace(form.RefName),
		Notes:             form.Notes,
		Email:             strings.TrimSpace(form.Email),
		Phone:             strings.TrimSpace(form.Phone),
		Address:           form.Address,
		Suburb:            form.Suburb,
		Postcode:          form.Postcode,
		State:             form.State,
		Country:           form.Country,
		Year:              form.Year,
		SurveyGames:       form.SurveyGames,
		SurveyFood:        form.SurveyFood,
		SurveyHear:        form.SurveyHear,
		SurveySuggestions: form.SurveySuggestions,
	}
	if form.DOB != nil {
		dob := models.DateOf(*form.DOB)
		t.DOB = &dob
	}
	if t.Country == "" {
		t.Country = models.DefaultCountry
	}
	t.EnsureName()

	err = s.db.WithTx(ctx, func(tx *database.Tx) error {
		contacts := s.contacts.WithTx(tx)
		email, err := contacts.CreateEmail(ctx, t.Email)
		if err != nil {
			return err
		}
		t.EmailID = &email.ID

		if t.Phone != "" {
			phone, err := contacts.CreatePhone(ctx, t.Phone)
			if err != nil {
				return err
			}
			t.PhoneID = &phone.ID
		}

		if err := t.Validate(); err != nil {
			return err
		}
		return s.temps.WithTx(tx).CreateTemporaryMember(ctx, t)
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "signup received", "temporary_member_id", t.ID, "member_type", t.MemberType)

	// The signup is stored at this point, so a failed notice is logged rather than returned.
	if len(s.staffEmails) > 0 {
		if err := s.mailer.Send(ctx, signupNoticeMessage(s.staffEmails, t)); err != nil {
			span.RecordError(err)
			slog.ErrorContext(ctx, "failed to notify staff of signup", "temporary_member_id", t.ID, "error", err)
		}
	}

	return t, nil
}

// GetSignup returns a temporary member by ID
func (s *SignupService) GetSignup(ctx context.Context, id int64) (*models.TemporaryMember, error) {
	t, err := s.temps.GetTemporaryMemberByID(ctx, id, false)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, ErrTemporaryMemberNotFound
	}
	return t, nil
}

// ListSignups returns signups, newest first
func (s *SignupService) ListSignups(ctx context.Context, filter repository.TemporaryMemberFilter) ([]models.TemporaryMember, error) {
	return s.temps.ListTemporaryMembers(ctx, filter)
}

// Review applies a staff decision to a signup. Approval needs both an
// approving staff account and a payment method.
func (s *SignupService) Review(ctx context.Context, id int64, params ReviewParams) (signup *models.TemporaryMember, err error) {
	ctx, span := startSpan(ctx, "SignupService.Review", trace.WithAttributes(attribute.Int64("temporary_member.id", id)))
	defer func() { endSpan(span, err) }()

	if params.ApprovedPaymentMethod != "" {
		if err := validation.OneOf("approved_payment_method", params.ApprovedPaymentMethod, s.paymentMethods); err != nil {
			return nil, err
		}
	}

	err = s.db.WithTx(ctx, func(tx *database.Tx) error {
		t, err := s.lockSignup(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := s.applyReview(ctx, tx, t, params); err != nil {
			return err
		}
		signup = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return signup, nil
}

func (s *SignupService) lockSignup(ctx context.Context, tx database.DBTX, id int64) (*models.TemporaryMember, error) {
	t, err := s.temps.WithTx(tx).GetTemporaryMemberByID(ctx, id, true)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, ErrTemporaryMemberNotFound
	}
	return t, nil
}

// applyReview copies the decision onto t and saves it, re-running the approval rule
func (s *SignupService) applyReview(ctx context.Context, tx database.DBTX, t *models.TemporaryMember, params ReviewParams) error {
	if params.ApprovedBy != nil {
		approver, err := s.users.WithTx(tx).GetUserByID(ctx, *params.ApprovedBy)
		if err != nil {
			return err
		}
		if approver == nil || !approver.IsStaff {
			return ErrUserNotFound
		}
	}

	t.IsChecked = params.IsChecked || params.IsApprovedPaid
	t.IsApprovedPaid = params.IsApprovedPaid
	t.ApprovedPaymentMethod = params.ApprovedPaymentMethod
	t.ApprovedBy = params.ApprovedBy

	if err := t.Validate(); err != nil {
		return err
	}
	return s.temps.WithTx(tx).UpdateTemporaryMember(ctx, t)
}

// ConvertToMember turns an approved signup into a member with one payment and
// one membership, all in one transaction. Converting an already converted
// signup returns its member unchanged.
func (s *SignupService) ConvertToMember(ctx context.Context, id int64, params ConvertParams) (member *models.Member, err error) {
	ctx, span := startSpan(ctx, "SignupService.ConvertToMember", trace.WithAttributes(attribute.Int64("temporary_member.id", id)))
	defer func() { endSpan(span, err) }()

	err = s.members.withAllocationRetry(ctx, func(tx *database.Tx) error {
		t, err := s.lockSignup(ctx, tx, id)
		if err != nil {
			return err
		}
		member, err = s.convertInTx(ctx, tx, t, params)
		return err
	})
	if err != nil {
		return nil, err
	}
	return member, nil
}

// ApproveAndConvert approves a signup on behalf of approvedBy and converts it
// in the same transaction
func (s *SignupService) ApproveAndConvert(ctx context.Context, id, approvedBy int64, params ConvertParams) (member *models.Member, err error) {
	ctx, span := startSpan(ctx, "SignupService.ApproveAndConvert", trace.WithAttributes(attribute.Int64("temporary_member.id", id)))
	defer func() { endSpan(span, err) }()

	if err := validation.OneOf("payment_method", params.PaymentMethod, s.paymentMethods); err != nil {
		return nil, err
	}

	err = s.members.withAllocationRetry(ctx, func(tx *database.Tx) error {
		t, err := s.lockSignup(ctx, tx, id)
		if err != nil {
			return err
		}
		if !t.IsConverted() {
			review := ReviewParams{
				IsChecked:             true,
				IsApprovedPaid:        true,
				ApprovedPaymentMethod: params.PaymentMethod,
				ApprovedBy:            &approvedBy,
			}
			if err := s.applyReview(ctx, tx, t, review); err != nil {
				return err
			}
		}
		member, err = s.convertInTx(ctx, tx, t, params)
		return err
	})
	if err != nil {
		return nil, err
	}
	return member, nil
}

// convertInTx performs the conversion of a locked signup
func (s *SignupService) convertInTx(ctx context.Context, tx database.DBTX, t *models.TemporaryMember, params ConvertParams) (*models.Member, error) {
	if t.IsConverted() {
		member, err := s.members.members.WithTx(tx).GetMemberByID(ctx, *t.MemberID)
		if err != nil {
			return nil, err
		}
		if member == nil {
			return nil, ErrMemberNotFound
		}
		return member, nil
	}

	if !t.IsApprovedPaid || t.ApprovedBy == nil || t.ApprovedPaymentMethod == "" {
		return nil, ErrNotApproved
	}

	if params.PaymentMethod == "" {
		params.PaymentMethod = t.ApprovedPaymentMethod
	}
	if params.MemberType == "" {
		params.MemberType = t.MemberType
	}
	paymentParams := PaymentParams{
		PaymentMethod: params.PaymentMethod,
		PaymentRef:    params.PaymentRef,
		AmountPaid:    params.AmountPaid,
	}
	if err := validatePayment(paymentParams, s.payments.paymentMethods); err != nil {
		return nil, err
	}

	approvedAt := s.now().UTC()
	validFrom := models.DateOf(approvedAt)
	validUntil := models.DateOf(approvedAt.Add(models.MembershipLength))
	membership := &models.Membership{
		MemberType: params.MemberType,
		Special:    params.Special,
		ValidFrom:  validFrom,
		ValidUntil: &validUntil,
	}
	if err := membership.Validate(s.memberTypes); err != nil {
		return nil, err
	}

	member := t.ToMember()
	if err := s.members.createInTx(ctx, tx, member); err != nil {
		return nil, err
	}

	contacts := s.contacts.WithTx(tx)
	if t.EmailID != nil {
		if err := contacts.AttachEmail(ctx, member.ID, *t.EmailID); err != nil {
			return nil, err
		}
	}
	if t.PhoneID != nil {
		if err := contacts.AttachPhone(ctx, member.ID, *t.PhoneID); err != nil {
			return nil, err
		}
	}

	t.IsChecked = true
	t.IsApprovedPaid = true
	t.ApprovedAt = &approvedAt
	t.ApprovedPaymentMethod = params.PaymentMethod
	t.MemberID = &member.ID
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if err := s.temps.WithTx(tx).UpdateTemporaryMember(ctx, t); err != nil {
		return nil, err
	}

	payment := &models.Payment{
		MemberID:      member.ID,
		PaymentMethod: params.PaymentMethod,
		PaymentRef:    params.PaymentRef,
		AmountPaid:    params.AmountPaid,
		CreatedAt:     approvedAt,
	}
	if err := s.payments.createInTx(ctx, tx, payment); err != nil {
		return nil, err
	}

	membership.MemberID = member.ID
	if err := s.memberships.createInTx(ctx, tx, membership); err != nil {
		return nil, err
	}
	member.IsCurrent = membership.IsCurrent(s.memberships.now())

	slog.InfoContext(ctx, "temporary member converted",
		"temporary_member_id", t.ID, "member_id", member.ID, "number", member.Number)
	return member, nil
}
