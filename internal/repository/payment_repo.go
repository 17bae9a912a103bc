package repository

import (
	"context"
	"fmt"

	"guildmembers/internal/database"
	"guildmembers/internal/models"
)

// PaymentRepository handles database operations for payments
type PaymentRepository struct {
	db database.DBTX
}

// NewPaymentRepository creates a new payment repository
func NewPaymentRepository(db database.DBTX) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *PaymentRepository) WithTx(tx database.DBTX) *PaymentRepository {
	return &PaymentRepository{db: tx}
}

// CreatePayment inserts a payment. The amount is stored with two decimal places.
func (r *PaymentRepository) CreatePayment(ctx context.Context, p *models.Payment) error {
	query := `
		INSERT INTO payments (member_id, payment_method, payment_ref, amount_paid, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	id, err := r.db.ExecReturningID(ctx, query,
		p.MemberID, p.PaymentMethod, p.PaymentRef, p.AmountPaid.StringFixed(2), p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	p.ID = id
	return nil
}

// GetMemberPayments retrieves a member's payments, oldest first
func (r *PaymentRepository) GetMemberPayments(ctx context.Context, memberID int64) ([]models.Payment, error) {
	query := `
		SELECT id, member_id, payment_method, payment_ref, amount_paid, created_at
		FROM payments
		WHERE member_id = ?
		ORDER BY created_at ASC, id ASC
	`
	rows, err := r.db.QueryContext(ctx, query, memberID)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	var payments []models.Payment
	for rows.Next() {
		var p models.Payment
		if err := rows.Scan(&p.ID, &p.MemberID, &p.PaymentMethod, &p.PaymentRef, &p.AmountPaid, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// CountMemberPayments counts a member's payments
func (r *PaymentRepository) CountMemberPayments(ctx context.Context, memberID int64) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM payments WHERE member_id = ?", memberID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count payments: %w", err)
	}
	return count, nil
}

// GetAllPayments retrieves every payment ordered by member name, then by creation time
func (r *PaymentRepository) GetAllPayments(ctx context.Context) ([]models.Payment, error) {
	query := `
		SELECT p.id, p.member_id, p.payment_method, p.payment_ref, p.amount_paid, p.created_at
		FROM payments p
		INNER JOIN members m ON m.id = p.member_id
		ORDER BY m.name ASC, p.created_at ASC, p.id ASC
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	var payments []models.Payment
	for rows.Next() {
		var p models.Payment
		if err := rows.Scan(&p.ID, &p.MemberID, &p.PaymentMethod, &p.PaymentRef, &p.AmountPaid, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}
