package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"guildmembers/internal/database"
	"guildmembers/internal/models"
	"guildmembers/internal/repository"
	"guildmembers/internal/validation"
)

// maxAmount is the first value that no longer fits a decimal(10,2) column
var maxAmount = decimal.New(1, 8)

// PaymentParams describes a payment
type PaymentParams struct {
	PaymentMethod string          `json:"payment_method" validate:"required"`
	PaymentRef    string          `json:"payment_ref" validate:"max=255"`
	AmountPaid    decimal.Decimal `json:"amount_paid"`
}

// validatePayment checks method and amount. Amounts are positive with at most two decimal places.
func validatePayment(params PaymentParams, paymentMethods []string) error {
	if err := validation.Struct(params); err != nil {
		return err
	}

	var errs validation.Errors
	if err := validation.OneOf("payment_method", params.PaymentMethod, paymentMethods); err != nil {
		errs = append(errs, err.(validation.ValidationError))
	}
	switch {
	case !params.AmountPaid.IsPositive():
		errs = append(errs, validation.ValidationError{Field: "amount_paid", Message: "must be greater than zero"})
	case !params.AmountPaid.Equal(params.AmountPaid.Truncate(2)):
		errs = append(errs, validation.ValidationError{Field: "amount_paid", Message: "must have at most two decimal places"})
	case params.AmountPaid.GreaterThanOrEqual(maxAmount):
		errs = append(errs, validation.ValidationError{Field: "amount_paid", Message: "must be less than 100000000"})
	}
	return errs.OrNil()
}

// PaymentService records member payments
type PaymentService struct {
	members        *repository.MemberRepository
	payments       *repository.PaymentRepository
	paymentMethods []string
	defaultMethod  string
	now            func() time.Time
}

// NewPaymentService creates a new payment service. defaultMethod is used
// when a payment names no method.
func NewPaymentService(db *database.DB, paymentMethods []string, defaultMethod string) *PaymentService {
	return &PaymentService{
		members:        repository.NewMemberRepository(db),
		payments:       repository.NewPaymentRepository(db),
		paymentMethods: paymentMethods,
		defaultMethod:  defaultMethod,
		now:            time.Now,
	}
}

// RecordPayment stores a payment for a member
func (s *PaymentService) RecordPayment(ctx context.Context, memberID int64, params PaymentParams) (payment *models.Payment, err error) {
	ctx, span := startSpan(ctx, "PaymentService.RecordPayment")
	defer func() { endSpan(span, err) }()

	if params.PaymentMethod == "" {
		params.PaymentMethod = s.defaultMethod
	}
	if err := validatePayment(params, s.paymentMethods); err != nil {
		return nil, err
	}

	member, err := s.members.GetMemberByID(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, ErrMemberNotFound
	}

	payment = &models.Payment{
		MemberID:      memberID,
		PaymentMethod: params.PaymentMethod,
		PaymentRef:    params.PaymentRef,
		AmountPaid:    params.AmountPaid,
		CreatedAt:     s.now().UTC(),
	}
	if err := s.payments.CreatePayment(ctx, payment); err != nil {
		return nil, err
	}
	return payment, nil
}

// createInTx stores an already validated payment
func (s *PaymentService) createInTx(ctx context.Context, tx database.DBTX, payment *models.Payment) error {
	return s.payments.WithTx(tx).CreatePayment(ctx, payment)
}

// ListPayments returns a member's payments, oldest first
func (s *PaymentService) ListPayments(ctx context.Context, memberID int64) ([]models.Payment, error) {
	return s.payments.GetMemberPayments(ctx, memberID)
}

// ListAllPayments returns every payment ordered by member name, then creation time
func (s *PaymentService) ListAllPayments(ctx context.Context) ([]models.Payment, error) {
	return s.payments.GetAllPayments(ctx)
}
