package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"guildmembers/internal/database"
	"guildmembers/internal/models"
	"guildmembers/internal/repository"
	"guildmembers/internal/security"
	"guildmembers/internal/validation"
)

const (
	memberKeyLength = 16

	// maxAllocationAttempts bounds the retries of a member insert that lost
	// the race for a number on PostgreSQL or MySQL
	maxAllocationAttempts = 5
)

// MemberParams holds the editable fields of a member
type MemberParams struct {
	Name         string     `json:"name" validate:"max=255"`
	SortName     string     `json:"sort_name" validate:"max=255"`
	RefName      string     `json:"ref_name" validate:"max=255"`
	Title        string     `json:"title" validate:"max=255"`
	Notes        string     `json:"notes"`
	PrivateNotes string     `json:"private_notes"`
	Address      string     `json:"address" validate:"max=255"`
	Postcode     string     `json:"postcode" validate:"max=10"`
	Suburb       string     `json:"suburb" validate:"max=255"`
	State        string     `json:"state" validate:"max=255"`
	Country      string     `json:"country" validate:"max=255"`
	Year         int        `json:"year" validate:"gte=0"`
	DOB          *time.Time `json:"dob"`
	LegacySource string     `json:"legacy_source" validate:"max=255"`
	// SiteID overrides the default site
	SiteID int64 `json:"site_id" validate:"gte=0"`
	// Emails and Phones are attached on create only
	Emails []string `json:"emails" validate:"dive,email"`
	Phones []string `json:"phones" validate:"dive,max=50"`
}

func (p *MemberParams) apply(m *models.Member) {
	m.Name = strings.TrimSpace(p.Name)
	m.SortName = strings.TrimSpace(p.SortName)
	m.RefName = strings.TrimSpace(p.RefName)
	m.Title = p.Title
	m.Notes = p.Notes
	m.PrivateNotes = p.PrivateNotes
	m.Address = p.Address
	m.Postcode = p.Postcode
	m.Suburb = p.Suburb
	m.State = p.State
	m.Country = p.Country
	m.Year = p.Year
	m.DOB = nil
	if p.DOB != nil {
		dob := models.DateOf(*p.DOB)
		m.DOB = &dob
	}
	m.LegacySource = p.LegacySource
	if p.SiteID != 0 {
		m.SiteID = p.SiteID
	}
}

func validateMemberParams(p MemberParams) error {
	if err := validation.Struct(p); err != nil {
		return err
	}
	if strings.TrimSpace(p.Name) == "" && models.FullName(p.RefName, p.SortName) == "" {
		return validation.ValidationError{Field: "name", Message: "name or ref_name and sort_name is required"}
	}
	return nil
}

// MemberService handles member records
type MemberService struct {
	db          *database.DB
	members     *repository.MemberRepository
	memberships *repository.MembershipRepository
	contacts    *repository.ContactRepository
	sites       *repository.SiteRepository
	accounts    AccountProvisioner
	mailer      Mailer
	siteID      int64
	now         func() time.Time
}

// NewMemberService creates a new member service. siteID is assigned to new
// members that do not name a site.
func NewMemberService(db *database.DB, accounts AccountProvisioner, mailer Mailer, siteID int64) *MemberService {
	return &MemberService{
		db:          db,
		members:     repository.NewMemberRepository(db),
		memberships: repository.NewMembershipRepository(db),
		contacts:    repository.NewContactRepository(db),
		sites:       repository.NewSiteRepository(db),
		accounts:    accounts,
		mailer:      mailer,
		siteID:      siteID,
		now:         time.Now,
	}
}

// CreateMember creates a member with the next free number, a fresh key and a linked account
func (s *MemberService) CreateMember(ctx context.Context, params MemberParams) (member *models.Member, err error) {
	ctx, span := startSpan(ctx, "MemberService.CreateMember")
	defer func() { endSpan(span, err) }()

	if err := validateMemberParams(params); err != nil {
		return nil, err
	}

	err = s.withAllocationRetry(ctx, func(tx *database.Tx) error {
		m := &models.Member{}
		params.apply(m)
		if err := s.createInTx(ctx, tx, m); err != nil {
			return err
		}

		contacts := s.contacts.WithTx(tx)
		for _, address := range params.Emails {
			email, err := contacts.CreateEmail(ctx, address)
			if err != nil {
				return err
			}
			if err := contacts.AttachEmail(ctx, m.ID, email.ID); err != nil {
				return err
			}
		}
		for _, number := range params.Phones {
			phone, err := contacts.CreatePhone(ctx, number)
			if err != nil {
				return err
			}
			if err := contacts.AttachPhone(ctx, m.ID, phone.ID); err != nil {
				return err
			}
		}

		member = m
		return nil
	})
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int64("member.number", member.Number))
	slog.InfoContext(ctx, "member created", "member_id", member.ID, "number", member.Number)
	return member, nil
}

// withAllocationRetry runs fn in a transaction, starting over while the
// transaction loses a member number or key to a concurrent insert
func (s *MemberService) withAllocationRetry(ctx context.Context, fn func(tx *database.Tx) error) error {
	for attempt := 1; attempt <= maxAllocationAttempts; attempt++ {
		err := s.db.WithTx(ctx, fn)
		if !errors.Is(err, repository.ErrAllocationConflict) {
			return err
		}
		slog.WarnContext(ctx, "member allocation conflict, retrying", "attempt", attempt, "error", err)
	}
	return fmt.Errorf("failed to allocate member after %d attempts: %w", maxAllocationAttempts, repository.ErrAllocationConflict)
}

// createInTx allocates number and key, provisions the account and inserts m.
// New members have no memberships, so they start out not current.
func (s *MemberService) createInTx(ctx context.Context, tx database.DBTX, m *models.Member) error {
	members := s.members.WithTx(tx)

	m.EnsureName()
	if m.Country == "" {
		m.Country = models.DefaultCountry
	}
	if m.SiteID == 0 {
		m.SiteID = s.siteID
	}
	if err := s.checkSite(ctx, tx, m.SiteID); err != nil {
		return err
	}

	number, err := members.NextNumber(ctx)
	if err != nil {
		return err
	}
	m.Number = number

	key, err := security.GenerateUniqueHex(ctx, memberKeyLength, members.KeyExists)
	if err != nil {
		return fmt.Errorf("failed to generate member key: %w", err)
	}
	m.Key = key

	user, err := s.accounts.ProvisionMemberAccount(ctx, tx, m)
	if err != nil {
		return err
	}
	m.UserID = &user.ID

	now := s.now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now
	m.IsCurrent = false

	return members.CreateMember(ctx, m)
}

func (s *MemberService) checkSite(ctx context.Context, q database.DBTX, siteID int64) error {
	site, err := s.sites.WithTx(q).GetSiteByID(ctx, siteID)
	if err != nil {
		return err
	}
	if site == nil {
		return validation.ValidationError{Field: "site_id", Message: fmt.Sprintf("unknown site %d", siteID)}
	}
	return nil
}

// GetMember returns a member by ID
func (s *MemberService) GetMember(ctx context.Context, id int64) (*models.Member, error) {
	m, err := s.members.GetMemberByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, ErrMemberNotFound
	}
	return m, nil
}

// GetMemberByNumber returns a member by member number
func (s *MemberService) GetMemberByNumber(ctx context.Context, number int64) (*models.Member, error) {
	m, err := s.members.GetMemberByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, ErrMemberNotFound
	}
	return m, nil
}

// UpdateMember replaces the editable fields of a member. Number, key, account
// and contacts are left alone.
func (s *MemberService) UpdateMember(ctx context.Context, id int64, params MemberParams) (*models.Member, error) {
	if err := validateMemberParams(params); err != nil {
		return nil, err
	}

	m, err := s.GetMember(ctx, id)
	if err != nil {
		return nil, err
	}
	params.apply(m)
	m.EnsureName()
	if m.Country == "" {
		m.Country = models.DefaultCountry
	}
	if err := s.checkSite(ctx, s.db, m.SiteID); err != nil {
		return nil, err
	}
	m.UpdatedAt = s.now().UTC()

	if err := s.members.UpdateMember(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// ListMembers returns members matching filter. An Active filter is evaluated
// against today's date when filter.Today is unset.
func (s *MemberService) ListMembers(ctx context.Context, filter repository.MemberFilter) ([]models.Member, error) {
	if filter.Today.IsZero() {
		filter.Today = s.now()
	}
	return s.members.ListMembers(ctx, filter)
}

// GetEmails returns the member's email addresses joined with ", "
func (s *MemberService) GetEmails(ctx context.Context, memberID int64) (string, error) {
	emails, err := s.contacts.GetMemberEmails(ctx, memberID)
	if err != nil {
		return "", err
	}
	parts := make([]string, len(emails))
	for i, e := range emails {
		parts[i] = e.Email
	}
	return strings.Join(parts, ", "), nil
}

// GetPhones returns the member's phone numbers joined with ", "
func (s *MemberService) GetPhones(ctx context.Context, memberID int64) (string, error) {
	phones, err := s.contacts.GetMemberPhones(ctx, memberID)
	if err != nil {
		return "", err
	}
	parts := make([]string, len(phones))
	for i, p := range phones {
		parts[i] = p.Phone
	}
	return strings.Join(parts, ", "), nil
}

// GetMemberships returns the start dates of the member's memberships joined with ", "
func (s *MemberService) GetMemberships(ctx context.Context, memberID int64) (string, error) {
	memberships, err := s.memberships.GetMemberMemberships(ctx, memberID)
	if err != nil {
		return "", err
	}
	parts := make([]string, len(memberships))
	for i, ms := range memberships {
		parts[i] = models.FormatDate(ms.ValidFrom)
	}
	return strings.Join(parts, ", "), nil
}

// IsActive reports whether the member holds at least one current membership
func (s *MemberService) IsActive(ctx context.Context, memberID int64) (bool, error) {
	count, err := s.memberships.CountCurrent(ctx, memberID, s.now())
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// SendWelcomeEmail sends the welcome message to all of the member's email addresses
func (s *MemberService) SendWelcomeEmail(ctx context.Context, memberID int64) (err error) {
	ctx, span := startSpan(ctx, "MemberService.SendWelcomeEmail")
	defer func() { endSpan(span, err) }()

	member, err := s.GetMember(ctx, memberID)
	if err != nil {
		return err
	}
	emails, err := s.contacts.GetMemberEmails(ctx, memberID)
	if err != nil {
		return err
	}
	if len(emails) == 0 {
		return ErrNoRecipients
	}

	to := make([]string, len(emails))
	for i, e := range emails {
		to[i] = e.Email
	}
	return s.mailer.Send(ctx, welcomeMessage(to, member))
}

// RefreshCurrentFlags recomputes is_current for every member as of today
func (s *MemberService) RefreshCurrentFlags(ctx context.Context) (changed int64, err error) {
	ctx, span := startSpan(ctx, "MemberService.RefreshCurrentFlags")
	defer func() { endSpan(span, err) }()

	changed, err = s.members.RefreshCurrentFlags(ctx, s.now())
	if err != nil {
		return 0, err
	}
	slog.InfoContext(ctx, "member status refreshed", "changed", changed)
	return changed, nil
}
