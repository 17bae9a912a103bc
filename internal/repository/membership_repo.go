package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"guildmembers/internal/database"
	"guildmembers/internal/models"
)

// MembershipRepository handles database operations for memberships and their tags
type MembershipRepository struct {
	db database.DBTX
}

// NewMembershipRepository creates a new membership repository
func NewMembershipRepository(db database.DBTX) *MembershipRepository {
	return &MembershipRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *MembershipRepository) WithTx(tx database.DBTX) *MembershipRepository {
	return &MembershipRepository{db: tx}
}

const membershipColumns = "id, member_id, member_type, special, valid_from, valid_until, note"

func scanMembership(s scanner) (*models.Membership, error) {
	var (
		m          models.Membership
		validUntil sql.NullTime
	)
	if err := s.Scan(&m.ID, &m.MemberID, &m.MemberType, &m.Special, &m.ValidFrom, &validUntil, &m.Note); err != nil {
		return nil, err
	}
	m.ValidFrom = models.DateOf(m.ValidFrom)
	if validUntil.Valid {
		until := models.DateOf(validUntil.Time)
		m.ValidUntil = &until
	}
	return &m, nil
}

// CreateMembership inserts a membership. Dates are stored as calendar dates.
// The caller validates the record first; a duplicate (member, type, valid_from)
// is reported as ErrDuplicateMembership.
func (r *MembershipRepository) CreateMembership(ctx context.Context, m *models.Membership) error {
	m.ValidFrom = models.DateOf(m.ValidFrom)
	if m.ValidUntil != nil {
		until := models.DateOf(*m.ValidUntil)
		m.ValidUntil = &until
	}

	query := `
		INSERT INTO memberships (member_id, member_type, special, valid_from, valid_until, note)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	id, err := r.db.ExecReturningID(ctx, query,
		m.MemberID, m.MemberType, m.Special, m.ValidFrom, nullTime(m.ValidUntil), m.Note)
	if err != nil {
		if database.IsUniqueViolation(r.db, err) {
			return ErrDuplicateMembership
		}
		return fmt.Errorf("failed to create membership: %w", err)
	}
	m.ID = id
	return nil
}

// GetMembershipByID retrieves a membership, or nil when it does not exist
func (r *MembershipRepository) GetMembershipByID(ctx context.Context, id int64) (*models.Membership, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+membershipColumns+" FROM memberships WHERE id = ?", id)
	m, err := scanMembership(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	return m, nil
}

// GetMemberMemberships retrieves a member's memberships, oldest first
func (r *MembershipRepository) GetMemberMemberships(ctx context.Context, memberID int64) ([]models.Membership, error) {
	query := "SELECT " + membershipColumns + " FROM memberships WHERE member_id = ? ORDER BY valid_from ASC, id ASC"
	rows, err := r.db.QueryContext(ctx, query, memberID)
	if err != nil {
		return nil, fmt.Errorf("failed to query memberships: %w", err)
	}
	defer rows.Close()

	var memberships []models.Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		memberships = append(memberships, *m)
	}
	return memberships, rows.Err()
}

// CountCurrent counts a member's memberships valid on today
func (r *MembershipRepository) CountCurrent(ctx context.Context, memberID int64, today time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM memberships
		WHERE member_id = ? AND (valid_until IS NULL OR valid_until >= ?)
	`
	var count int
	if err := r.db.QueryRowContext(ctx, query, memberID, models.Today(today)).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count current memberships: %w", err)
	}
	return count, nil
}

// CreateTag records a tag or card handed over for a membership
func (r *MembershipRepository) CreateTag(ctx context.Context, tag *models.MembershipTag) error {
	query := `
		INSERT INTO membership_tags (membership_id, given_by_id, given_by_name, given_at, given_tag, given_card)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	id, err := r.db.ExecReturningID(ctx, query,
		tag.MembershipID, tag.GivenByID, tag.GivenByName, tag.GivenAt, tag.GivenTag, tag.GivenCard)
	if err != nil {
		return fmt.Errorf("failed to create membership tag: %w", err)
	}
	tag.ID = id
	return nil
}

// GetMembershipTags retrieves the tags issued for a membership, oldest first
func (r *MembershipRepository) GetMembershipTags(ctx context.Context, membershipID int64) ([]models.MembershipTag, error) {
	query := `
		SELECT id, membership_id, given_by_id, given_by_name, given_at, given_tag, given_card
		FROM membership_tags
		WHERE membership_id = ?
		ORDER BY given_at ASC, id ASC
	`
	rows, err := r.db.QueryContext(ctx, query, membershipID)
	if err != nil {
		return nil, fmt.Errorf("failed to query membership tags: %w", err)
	}
	defer rows.Close()

	var tags []models.MembershipTag
	for rows.Next() {
		var t models.MembershipTag
		if err := rows.Scan(&t.ID, &t.MembershipID, &t.GivenByID, &t.GivenByName, &t.GivenAt, &t.GivenTag, &t.GivenCard); err != nil {
			return nil, fmt.Errorf("failed to scan membership tag: %w", err)
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}
