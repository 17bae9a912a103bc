package service

import (
	"context"
	"time"

	"guildmembers/internal/database"
	"guildmembers/internal/models"
	"guildmembers/internal/repository"
	"guildmembers/internal/validation"
)

// MembershipParams describes a new membership
type MembershipParams struct {
	MemberType string     `json:"member_type" validate:"required"`
	Special    string     `json:"special" validate:"max=255"`
	ValidFrom  time.Time  `json:"valid_from" validate:"required"`
	ValidUntil *time.Time `json:"valid_until"`
	Note       string     `json:"note"`
}

// TagParams describes a tag or card handed over for a membership
type TagParams struct {
	GivenTag  bool `json:"given_tag"`
	GivenCard bool `json:"given_card"`
}

// MembershipService handles memberships and the tags issued for them
type MembershipService struct {
	db          *database.DB
	members     *repository.MemberRepository
	memberships *repository.MembershipRepository
	users       *repository.UserRepository
	memberTypes []string
	now         func() time.Time
}

// NewMembershipService creates a new membership service
func NewMembershipService(db *database.DB, memberTypes []string) *MembershipService {
	return &MembershipService{
		db:          db,
		members:     repository.NewMemberRepository(db),
		memberships: repository.NewMembershipRepository(db),
		users:       repository.NewUserRepository(db),
		memberTypes: memberTypes,
		now:         time.Now,
	}
}

// CreateMembership validates and stores a membership, then refreshes the member's is_current flag
func (s *MembershipService) CreateMembership(ctx context.Context, memberID int64, params MembershipParams) (membership *models.Membership, err error) {
	ctx, span := startSpan(ctx, "MembershipService.CreateMembership")
	defer func() { endSpan(span, err) }()

	if err := validation.Struct(params); err != nil {
		return nil, err
	}

	membership = &models.Membership{
		MemberID:   memberID,
		MemberType: params.MemberType,
		Special:    params.Special,
		ValidFrom:  params.ValidFrom,
		ValidUntil: params.ValidUntil,
		Note:       params.Note,
	}
	if err := membership.Validate(s.memberTypes); err != nil {
		return nil, err
	}

	err = s.db.WithTx(ctx, func(tx *database.Tx) error {
		member, err := s.members.WithTx(tx).GetMemberByID(ctx, memberID)
		if err != nil {
			return err
		}
		if member == nil {
			return ErrMemberNotFound
		}
		return s.createInTx(ctx, tx, membership)
	})
	if err != nil {
		return nil, err
	}
	return membership, nil
}

// createInTx stores an already validated membership and refreshes the member's is_current flag
func (s *MembershipService) createInTx(ctx context.Context, tx database.DBTX, membership *models.Membership) error {
	memberships := s.memberships.WithTx(tx)
	if err := memberships.CreateMembership(ctx, membership); err != nil {
		return err
	}

	count, err := memberships.CountCurrent(ctx, membership.MemberID, s.now())
	if err != nil {
		return err
	}
	return s.members.WithTx(tx).SetIsCurrent(ctx, membership.MemberID, count > 0)
}

// GetMembership returns a membership by ID
func (s *MembershipService) GetMembership(ctx context.Context, id int64) (*models.Membership, error) {
	m, err := s.memberships.GetMembershipByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, ErrMembershipNotFound
	}
	return m, nil
}

// ListMemberships returns a member's memberships, oldest first
func (s *MembershipService) ListMemberships(ctx context.Context, memberID int64) ([]models.Membership, error) {
	return s.memberships.GetMemberMemberships(ctx, memberID)
}

// IssueTag records that the staff user givenBy handed over a tag or card for a membership
func (s *MembershipService) IssueTag(ctx context.Context, membershipID, givenBy int64, params TagParams) (*models.MembershipTag, error) {
	if _, err := s.GetMembership(ctx, membershipID); err != nil {
		return nil, err
	}

	user, err := s.users.GetUserByID(ctx, givenBy)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	tag := &models.MembershipTag{
		MembershipID: membershipID,
		GivenByID:    user.ID,
		GivenByName:  user.FullName(),
		GivenAt:      s.now().UTC(),
		GivenTag:     params.GivenTag,
		GivenCard:    params.GivenCard,
	}
	if err := s.memberships.CreateTag(ctx, tag); err != nil {
		return nil, err
	}
	return tag, nil
}

// ListTags returns the tags issued for a membership
func (s *MembershipService) ListTags(ctx context.Context, membershipID int64) ([]models.MembershipTag, error) {
	if _, err := s.GetMembership(ctx, membershipID); err != nil {
		return nil, err
	}
	return s.memberships.GetMembershipTags(ctx, membershipID)
}
