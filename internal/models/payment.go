package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Payment is a monetary transaction from a member
type Payment struct {
	ID            int64
	MemberID      int64
	PaymentMethod string
	PaymentRef    string
	AmountPaid    decimal.Decimal
	CreatedAt     time.Time
}

// Describe renders the payment as "#12 $50.00 [cash] (Jane Doe)"
func (p *Payment) Describe(member *Member) string {
	return fmt.Sprintf("#%d $%s [%s] (%s)", member.Number, p.AmountPaid.StringFixed(2), p.PaymentMethod, member.Name)
}
