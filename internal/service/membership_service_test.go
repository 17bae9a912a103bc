package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guildmembers/internal/repository"
	"guildmembers/internal/validation"
)

func TestCreateMembership(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	m, err := env.members.CreateMember(ctx, MemberParams{Name: "Jane Doe"})
	require.NoError(t, err)

	special, err := env.memberships.CreateMembership(ctx, m.ID, MembershipParams{
		MemberType: "special",
		Special:    "founding sponsor",
		ValidFrom:  testNow,
	})
	require.NoError(t, err)
	assert.Nil(t, special.ValidUntil)

	got, err := env.members.GetMember(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, got.IsCurrent)

	t.Run("special needs an explanation", func(t *testing.T) {
		_, err := env.memberships.CreateMembership(ctx, m.ID, MembershipParams{MemberType: "special", ValidFrom: testNow})
		var errs validation.Errors
		require.ErrorAs(t, err, &errs)
		assert.Equal(t, "special", errs[0].Field)
	})

	t.Run("duplicate start date", func(t *testing.T) {
		_, err := env.memberships.CreateMembership(ctx, m.ID, MembershipParams{
			MemberType: "special",
			Special:    "again",
			ValidFrom:  testNow,
		})
		assert.ErrorIs(t, err, repository.ErrDuplicateMembership)
	})

	t.Run("unknown member", func(t *testing.T) {
		_, err := env.memberships.CreateMembership(ctx, 999, MembershipParams{MemberType: "standard", ValidFrom: testNow})
		assert.ErrorIs(t, err, ErrMemberNotFound)
	})

	t.Run("missing start date", func(t *testing.T) {
		_, err := env.memberships.CreateMembership(ctx, m.ID, MembershipParams{MemberType: "standard"})
		assert.True(t, validation.IsValidationError(err))
	})
}

func TestIssueTag(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	m, err := env.members.CreateMember(ctx, MemberParams{Name: "Jane Doe"})
	require.NoError(t, err)
	ms, err := env.memberships.CreateMembership(ctx, m.ID, MembershipParams{MemberType: "standard", ValidFrom: testNow})
	require.NoError(t, err)

	tag, err := env.memberships.IssueTag(ctx, ms.ID, env.staff.ID, TagParams{GivenTag: true, GivenCard: true})
	require.NoError(t, err)
	assert.Equal(t, "Door Keeper", tag.GivenByName)
	assert.True(t, tag.GivenAt.Equal(testNow))

	tags, err := env.memberships.ListTags(ctx, ms.ID)
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.True(t, tags[0].GivenCard)

	_, err = env.memberships.IssueTag(ctx, 999, env.staff.ID, TagParams{GivenTag: true})
	assert.ErrorIs(t, err, ErrMembershipNotFound)

	_, err = env.memberships.IssueTag(ctx, ms.ID, 999, TagParams{GivenTag: true})
	assert.ErrorIs(t, err, ErrUserNotFound)

	_, err = env.memberships.ListTags(ctx, 999)
	assert.ErrorIs(t, err, ErrMembershipNotFound)
}

func TestRecordPayment(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	zoe, err := env.members.CreateMember(ctx, MemberParams{Name: "Zoe Adams"})
	require.NoError(t, err)
	adam, err := env.members.CreateMember(ctx, MemberParams{Name: "Adam Zane"})
	require.NoError(t, err)

	p, err := env.payments.RecordPayment(ctx, zoe.ID, PaymentParams{
		PaymentMethod: "bank_transfer",
		PaymentRef:    "INV-7",
		AmountPaid:    decimal.RequireFromString("12.5"),
	})
	require.NoError(t, err)
	assert.Equal(t, "#1 $12.50 [bank_transfer] (Zoe Adams)", p.Describe(zoe))

	_, err = env.payments.RecordPayment(ctx, adam.ID, PaymentParams{PaymentMethod: "cash", AmountPaid: decimal.RequireFromString("20")})
	require.NoError(t, err)

	all, err := env.payments.ListAllPayments(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, adam.ID, all[0].MemberID, "ordered by member name")

	tests := []struct {
		name   string
		params PaymentParams
	}{
		{name: "negative", params: PaymentParams{PaymentMethod: "cash", AmountPaid: decimal.RequireFromString("-1")}},
		{name: "zero", params: PaymentParams{PaymentMethod: "cash", AmountPaid: decimal.Zero}},
		{name: "fractional cents", params: PaymentParams{PaymentMethod: "cash", AmountPaid: decimal.RequireFromString("1.005")}},
		{name: "too large", params: PaymentParams{PaymentMethod: "cash", AmountPaid: decimal.RequireFromString("100000000")}},
		{name: "unknown method", params: PaymentParams{PaymentMethod: "barter", AmountPaid: decimal.RequireFromString("1")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.payments.RecordPayment(ctx, zoe.ID, tt.params)
			assert.True(t, validation.IsValidationError(err), "got %v", err)
		})
	}

	t.Run("default method", func(t *testing.T) {
		p, err := env.payments.RecordPayment(ctx, zoe.ID, PaymentParams{AmountPaid: decimal.RequireFromString("5")})
		require.NoError(t, err)
		assert.Equal(t, "cash", p.PaymentMethod)
	})

	_, err = env.payments.RecordPayment(ctx, 999, PaymentParams{PaymentMethod: "cash", AmountPaid: decimal.RequireFromString("1")})
	assert.ErrorIs(t, err, ErrMemberNotFound)
}
