package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"guildmembers/internal/database"
	"guildmembers/internal/models"
)

// MemberRepository handles database operations for members
type MemberRepository struct {
	db database.DBTX
}

// NewMemberRepository creates a new member repository
func NewMemberRepository(db database.DBTX) *MemberRepository {
	return &MemberRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *MemberRepository) WithTx(tx database.DBTX) *MemberRepository {
	return &MemberRepository{db: tx}
}

const memberColumns = `
	m.id, m.user_id, m.number, m.name, m.sort_name, m.ref_name, m.title, m.notes, m.private_notes,
	m.address, m.postcode, m.suburb, m.state, m.country, m.year, m.dob,
	m.created_at, m.updated_at, m.is_current, m.member_key, m.legacy_source, m.site_id`

func scanMember(s scanner) (*models.Member, error) {
	var (
		m      models.Member
		userID sql.NullInt64
		dob    sql.NullTime
	)
	err := s.Scan(
		&m.ID, &userID, &m.Number, &m.Name, &m.SortName, &m.RefName, &m.Title, &m.Notes, &m.PrivateNotes,
		&m.Address, &m.Postcode, &m.Suburb, &m.State, &m.Country, &m.Year, &dob,
		&m.CreatedAt, &m.UpdatedAt, &m.IsCurrent, &m.Key, &m.LegacySource, &m.SiteID,
	)
	if err != nil {
		return nil, err
	}
	m.UserID = int64Ptr(userID)
	m.DOB = timePtr(dob)
	return &m, nil
}

// NextNumber returns one more than the highest member number, or 1 when there are no members.
// Call it inside the transaction that inserts the member.
func (r *MemberRepository) NextNumber(ctx context.Context) (int64, error) {
	var next int64
	err := r.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(number), 0) + 1 FROM members").Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("failed to read next member number: %w", err)
	}
	return next, nil
}

// KeyExists checks whether a member key is taken
func (r *MemberRepository) KeyExists(ctx context.Context, key string) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM members WHERE member_key = ?", key).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check member key: %w", err)
	}
	return count > 0, nil
}

// CreateMember inserts a member with an already allocated number and key, and sets its ID.
// A collision on number or key is reported as ErrAllocationConflict.
func (r *MemberRepository) CreateMember(ctx context.Context, m *models.Member) error {
	query := `
		INSERT INTO members (
			user_id, number, name, sort_name, ref_name, title, notes, private_notes,
			address, postcode, suburb, state, country, year, dob,
			created_at, updated_at, is_current, member_key, legacy_source, site_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	id, err := r.db.ExecReturningID(ctx, query,
		nullInt64(m.UserID), m.Number, m.Name, m.SortName, m.RefName, m.Title, m.Notes, m.PrivateNotes,
		m.Address, m.Postcode, m.Suburb, m.State, m.Country, m.Year, nullTime(m.DOB),
		m.CreatedAt, m.UpdatedAt, m.IsCurrent, m.Key, m.LegacySource, m.SiteID,
	)
	if err != nil {
		if database.IsUniqueViolation(r.db, err) {
			return fmt.Errorf("failed to create member #%d: %w", m.Number, ErrAllocationConflict)
		}
		return fmt.Errorf("failed to create member: %w", err)
	}
	m.ID = id
	return nil
}

// GetMemberByID retrieves a member by ID, or nil when it does not exist
func (r *MemberRepository) GetMemberByID(ctx context.Context, id int64) (*models.Member, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+memberColumns+" FROM members m WHERE m.id = ?", id)
	m, err := scanMember(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	return m, nil
}

// GetMemberByNumber retrieves a member by number, or nil when it does not exist
func (r *MemberRepository) GetMemberByNumber(ctx context.Context, number int64) (*models.Member, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+memberColumns+" FROM members m WHERE m.number = ?", number)
	m, err := scanMember(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	return m, nil
}

// UpdateMember saves the editable fields of a member. Number, key and
// creation time never change after insert.
func (r *MemberRepository) UpdateMember(ctx context.Context, m *models.Member) error {
	query := `
		UPDATE members
		SET user_id = ?, name = ?, sort_name = ?, ref_name = ?, title = ?, notes = ?, private_notes = ?,
		    address = ?, postcode = ?, suburb = ?, state = ?, country = ?, year = ?, dob = ?,
		    updated_at = ?, is_current = ?, legacy_source = ?, site_id = ?
		WHERE id = ?
	`
	_, err := r.db.ExecContext(ctx, query,
		nullInt64(m.UserID), m.Name, m.SortName, m.RefName, m.Title, m.Notes, m.PrivateNotes,
		m.Address, m.Postcode, m.Suburb, m.State, m.Country, m.Year, nullTime(m.DOB),
		m.UpdatedAt, m.IsCurrent, m.LegacySource, m.SiteID,
		m.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update member: %w", err)
	}
	return nil
}

// SetIsCurrent updates the cached is_current flag of one member
func (r *MemberRepository) SetIsCurrent(ctx context.Context, id int64, current bool) error {
	_, err := r.db.ExecContext(ctx, "UPDATE members SET is_current = ? WHERE id = ?", current, id)
	if err != nil {
		return fmt.Errorf("failed to update member status: %w", err)
	}
	return nil
}

// currentMembershipExists is true for members with a membership valid on the bound date
func currentMembershipExists(memberID string) string {
	return `EXISTS (
		SELECT 1 FROM memberships ms
		WHERE ms.member_id = ` + memberID + ` AND (ms.valid_until IS NULL OR ms.valid_until >= ?)
	)`
}

// RefreshCurrentFlags recomputes is_current for every member as of today
// and returns how many members changed state
func (r *MemberRepository) RefreshCurrentFlags(ctx context.Context, today time.Time) (int64, error) {
	query := `
		UPDATE members
		SET is_current = NOT is_current
		WHERE is_current <> ` + currentMembershipExists("members.id") + `
	`
	result, err := r.db.ExecContext(ctx, query, models.Today(today))
	if err != nil {
		return 0, fmt.Errorf("failed to refresh member status: %w", err)
	}
	changed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read refresh result: %w", err)
	}
	return changed, nil
}

// MemberFilter narrows ListMembers
type MemberFilter struct {
	// Active keeps only members with (true) or without (false) a current membership on Today
	Active *bool
	Today  time.Time
	Number int64
	SiteID int64
	// Search matches a substring of the full name, case-insensitively
	Search string
	Limit  int
	Offset int
}

// ListMembers retrieves members ordered by number
func (r *MemberRepository) ListMembers(ctx context.Context, filter MemberFilter) ([]models.Member, error) {
	var (
		where []string
		args  []any
	)
	if filter.Active != nil {
		if *filter.Active {
			where = append(where, currentMembershipExists("m.id"))
		} else {
			where = append(where, "NOT "+currentMembershipExists("m.id"))
		}
		args = append(args, models.Today(filter.Today))
	}
	if filter.Number != 0 {
		where = append(where, "m.number = ?")
		args = append(args, filter.Number)
	}
	if filter.SiteID != 0 {
		where = append(where, "m.site_id = ?")
		args = append(args, filter.SiteID)
	}
	if filter.Search != "" {
		where = append(where, "LOWER(m.name) LIKE ?")
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	query := "SELECT " + memberColumns + " FROM members m"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY m.number ASC"
	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query members: %w", err)
	}
	defer rows.Close()

	var members []models.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate members: %w", err)
	}

	return members, nil
}
