package repository

import (
	"context"
	"database/sql"
	"fmt"

	"guildmembers/internal/database"
	"guildmembers/internal/models"
)

// TemporaryMemberRepository handles database operations for signup submissions
type TemporaryMemberRepository struct {
	db database.DBTX
}

// NewTemporaryMemberRepository creates a new temporary member repository
func NewTemporaryMemberRepository(db database.DBTX) *TemporaryMemberRepository {
	return &TemporaryMemberRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *TemporaryMemberRepository) WithTx(tx database.DBTX) *TemporaryMemberRepository {
	return &TemporaryMemberRepository{db: tx}
}

// Contact strings are read through scalar subqueries so the row can be
// locked without locking the outer side of a join.
const temporaryMemberColumns = `
	t.id, t.created_at, t.is_checked, t.is_approved_paid, t.approved_payment_method,
	t.approved_by_id, t.approved_at, t.payment_method, t.payment_source, t.member_id, t.member_type,
	t.name, t.sort_name, t.ref_name, t.notes,
	t.email_id, COALESCE((SELECT e.email FROM emails e WHERE e.id = t.email_id), ''),
	t.phone_id, COALESCE((SELECT p.phone FROM phones p WHERE p.id = t.phone_id), ''),
	t.address, t.suburb, t.postcode, t.state, t.country, t.year, t.dob, t.legacy_source,
	t.survey_games, t.survey_food, t.survey_hear, t.survey_suggestions`

func scanTemporaryMember(s scanner) (*models.TemporaryMember, error) {
	var (
		t                           models.TemporaryMember
		approvedBy, memberID        sql.NullInt64
		emailID, phoneID            sql.NullInt64
		approvedAt, dob             sql.NullTime
		games, food, hear, suggests sql.NullString
	)
	err := s.Scan(
		&t.ID, &t.CreatedAt, &t.IsChecked, &t.IsApprovedPaid, &t.ApprovedPaymentMethod,
		&approvedBy, &approvedAt, &t.PaymentMethod, &t.PaymentSource, &memberID, &t.MemberType,
		&t.Name, &t.SortName, &t.RefName, &t.Notes,
		&emailID, &t.Email,
		&phoneID, &t.Phone,
		&t.Address, &t.Suburb, &t.Postcode, &t.State, &t.Country, &t.Year, &dob, &t.LegacySource,
		&games, &food, &hear, &suggests,
	)
	if err != nil {
		return nil, err
	}
	t.ApprovedBy = int64Ptr(approvedBy)
	t.ApprovedAt = timePtr(approvedAt)
	t.MemberID = int64Ptr(memberID)
	t.EmailID = int64Ptr(emailID)
	t.PhoneID = int64Ptr(phoneID)
	t.DOB = timePtr(dob)
	t.SurveyGames = games.String
	t.SurveyFood = food.String
	t.SurveyHear = hear.String
	t.SurveySuggestions = suggests.String
	return &t, nil
}

// CreateTemporaryMember inserts a signup. EmailID and PhoneID must already reference stored contacts.
func (r *TemporaryMemberRepository) CreateTemporaryMember(ctx context.Context, t *models.TemporaryMember) error {
	query := `
		INSERT INTO temporary_members (
			created_at, is_checked, is_approved_paid, approved_payment_method, approved_by_id, approved_at,
			payment_method, payment_source, member_id, member_type,
			name, sort_name, ref_name, notes, email_id, phone_id,
			address, suburb, postcode, state, country, year, dob, legacy_source,
			survey_games, survey_food, survey_hear, survey_suggestions
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	id, err := r.db.ExecReturningID(ctx, query,
		t.CreatedAt, t.IsChecked, t.IsApprovedPaid, t.ApprovedPaymentMethod, nullInt64(t.ApprovedBy), nullTime(t.ApprovedAt),
		t.PaymentMethod, t.PaymentSource, nullInt64(t.MemberID), t.MemberType,
		t.Name, t.SortName, t.RefName, t.Notes, nullInt64(t.EmailID), nullInt64(t.PhoneID),
		t.Address, t.Suburb, t.Postcode, t.State, t.Country, t.Year, nullTime(t.DOB), t.LegacySource,
		nullIfEmpty(t.SurveyGames), nullIfEmpty(t.SurveyFood), nullIfEmpty(t.SurveyHear), nullIfEmpty(t.SurveySuggestions),
	)
	if err != nil {
		return fmt.Errorf("failed to create temporary member: %w", err)
	}
	t.ID = id
	return nil
}

// GetTemporaryMemberByID retrieves a signup, or nil when it does not exist.
// With forUpdate the row stays locked until the surrounding transaction ends.
func (r *TemporaryMemberRepository) GetTemporaryMemberByID(ctx context.Context, id int64, forUpdate bool) (*models.TemporaryMember, error) {
	query := "SELECT " + temporaryMemberColumns + " FROM temporary_members t WHERE t.id = ?"
	if forUpdate {
		query += r.db.GetDialect().LockClause()
	}
	t, err := scanTemporaryMember(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get temporary member: %w", err)
	}
	return t, nil
}

// UpdateTemporaryMember saves the staff-editable state of a signup: approval and the member link
func (r *TemporaryMemberRepository) UpdateTemporaryMember(ctx context.Context, t *models.TemporaryMember) error {
	query := `
		UPDATE temporary_members
		SET is_checked = ?, is_approved_paid = ?, approved_payment_method = ?, approved_by_id = ?,
		    approved_at = ?, member_id = ?, member_type = ?, payment_method = ?, payment_source = ?
		WHERE id = ?
	`
	_, err := r.db.ExecContext(ctx, query,
		t.IsChecked, t.IsApprovedPaid, t.ApprovedPaymentMethod, nullInt64(t.ApprovedBy),
		nullTime(t.ApprovedAt), nullInt64(t.MemberID), t.MemberType, t.PaymentMethod, t.PaymentSource,
		t.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update temporary member: %w", err)
	}
	return nil
}

// TemporaryMemberFilter narrows ListTemporaryMembers
type TemporaryMemberFilter struct {
	// PendingOnly keeps signups that have not been converted yet
	PendingOnly bool
	Limit       int
	Offset      int
}

// ListTemporaryMembers retrieves signups, newest first
func (r *TemporaryMemberRepository) ListTemporaryMembers(ctx context.Context, filter TemporaryMemberFilter) ([]models.TemporaryMember, error) {
	var args []any
	query := "SELECT " + temporaryMemberColumns + " FROM temporary_members t"
	if filter.PendingOnly {
		query += " WHERE t.member_id IS NULL"
	}
	query += " ORDER BY t.created_at DESC, t.id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query temporary members: %w", err)
	}
	defer rows.Close()

	var signups []models.TemporaryMember
	for rows.Next() {
		t, err := scanTemporaryMember(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan temporary member: %w", err)
		}
		signups = append(signups, *t)
	}
	return signups, rows.Err()
}
