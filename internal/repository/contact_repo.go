package repository

import (
	"context"
	"fmt"
	"strings"

	"guildmembers/internal/database"
	"guildmembers/internal/models"
)

// ContactRepository handles email and phone records and their links to members
type ContactRepository struct {
	db database.DBTX
}

// NewContactRepository creates a new contact repository
func NewContactRepository(db database.DBTX) *ContactRepository {
	return &ContactRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *ContactRepository) WithTx(tx database.DBTX) *ContactRepository {
	return &ContactRepository{db: tx}
}

// CreateEmail stores an email address
func (r *ContactRepository) CreateEmail(ctx context.Context, email string) (*models.Email, error) {
	email = strings.TrimSpace(email)
	id, err := r.db.ExecReturningID(ctx, "INSERT INTO emails (email) VALUES (?)", email)
	if err != nil {
		return nil, fmt.Errorf("failed to create email: %w", err)
	}
	return &models.Email{ID: id, Email: email}, nil
}

// CreatePhone stores a phone number
func (r *ContactRepository) CreatePhone(ctx context.Context, phone string) (*models.Phone, error) {
	phone = strings.TrimSpace(phone)
	id, err := r.db.ExecReturningID(ctx, "INSERT INTO phones (phone) VALUES (?)", phone)
	if err != nil {
		return nil, fmt.Errorf("failed to create phone: %w", err)
	}
	return &models.Phone{ID: id, Phone: phone}, nil
}

// AttachEmail links an email to a member. Linking twice is a no-op.
func (r *ContactRepository) AttachEmail(ctx context.Context, memberID, emailID int64) error {
	_, err := r.db.ExecContext(ctx, "INSERT INTO member_emails (member_id, email_id) VALUES (?, ?)", memberID, emailID)
	if err != nil && !database.IsUniqueViolation(r.db, err) {
		return fmt.Errorf("failed to attach email: %w", err)
	}
	return nil
}

// AttachPhone links a phone to a member. Linking twice is a no-op.
func (r *ContactRepository) AttachPhone(ctx context.Context, memberID, phoneID int64) error {
	_, err := r.db.ExecContext(ctx, "INSERT INTO member_phones (member_id, phone_id) VALUES (?, ?)", memberID, phoneID)
	if err != nil && !database.IsUniqueViolation(r.db, err) {
		return fmt.Errorf("failed to attach phone: %w", err)
	}
	return nil
}

// GetMemberEmails retrieves the emails linked to a member in insertion order
func (r *ContactRepository) GetMemberEmails(ctx context.Context, memberID int64) ([]models.Email, error) {
	query := `
		SELECT e.id, e.email
		FROM emails e
		INNER JOIN member_emails me ON me.email_id = e.id
		WHERE me.member_id = ?
		ORDER BY e.id ASC
	`
	rows, err := r.db.QueryContext(ctx, query, memberID)
	if err != nil {
		return nil, fmt.Errorf("failed to query emails: %w", err)
	}
	defer rows.Close()

	var emails []models.Email
	for rows.Next() {
		var e models.Email
		if err := rows.Scan(&e.ID, &e.Email); err != nil {
			return nil, fmt.Errorf("failed to scan email: %w", err)
		}
		emails = append(emails, e)
	}
	return emails, rows.Err()
}

// GetMemberPhones retrieves the phones linked to a member in insertion order
func (r *ContactRepository) GetMemberPhones(ctx context.Context, memberID int64) ([]models.Phone, error) {
	query := `
		SELECT p.id, p.phone
		FROM phones p
		INNER JOIN member_phones mp ON mp.phone_id = p.id
		WHERE mp.member_id = ?
		ORDER BY p.id ASC
	`
	rows, err := r.db.QueryContext(ctx, query, memberID)
	if err != nil {
		return nil, fmt.Errorf("failed to query phones: %w", err)
	}
	defer rows.Close()

	var phones []models.Phone
	for rows.Next() {
		var p models.Phone
		if err := rows.Scan(&p.ID, &p.Phone); err != nil {
			return nil, fmt.Errorf("failed to scan phone: %w", err)
		}
		phones = append(phones, p)
	}
	return phones, rows.Err()
}
