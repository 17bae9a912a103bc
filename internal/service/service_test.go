package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"guildmembers/internal/database"
	"guildmembers/internal/models"
	"guildmembers/internal/repository"
	"guildmembers/internal/security"
	"guildmembers/migrations"
)

var (
	memberTypes    = []string{"special", "standard", "concession", "junior"}
	paymentMethods = []string{"cash", "card", "bank_transfer", "online"}
	testNow        = time.Date(2026, time.October, 19, 10, 30, 0, 0, time.UTC)
)

// recordingMailer keeps every message instead of sending it
type recordingMailer struct {
	mu   sync.Mutex
	sent []Message
	err  error
}

func (m *recordingMailer) Send(_ context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *recordingMailer) messages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.sent...)
}

type testEnv struct {
	db          *database.DB
	mailer      *recordingMailer
	accounts    *AccountService
	members     *MemberService
	memberships *MembershipService
	payments    *PaymentService
	signups     *SignupService
	staff       *models.User
}

func setupTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Initialize(filepath.Join(t.TempDir(), "members.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.RunMigrations(context.Background(), migrations.FS))
	return db
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := setupTestDB(t)
	mailer := &recordingMailer{}

	accounts := NewAccountService(repository.NewUserRepository(db), security.NewTokenIssuer("test-secret", time.Hour))
	members := NewMemberService(db, accounts, mailer, 1)
	memberships := NewMembershipService(db, memberTypes)
	payments := NewPaymentService(db, paymentMethods, paymentMethods[0])
	signups := NewSignupService(db, members, memberships, payments, mailer, SignupConfig{
		StaffEmails:    []string{"door@guild.test"},
		MemberTypes:    memberTypes,
		PaymentMethods: paymentMethods,
	})

	env := &testEnv{
		db:          db,
		mailer:      mailer,
		accounts:    accounts,
		members:     members,
		memberships: memberships,
		payments:    payments,
		signups:     signups,
	}
	env.setNow(testNow)

	staff, err := accounts.CreateStaff(context.Background(), StaffParams{
		Username:  "door",
		Password:  "correct horse",
		FirstName: "Door",
		LastName:  "Keeper",
	})
	require.NoError(t, err)
	env.staff = staff

	return env
}

func (e *testEnv) setNow(now time.Time) {
	clock := func() time.Time { return now }
	e.members.now = clock
	e.memberships.now = clock
	e.payments.now = clock
	e.signups.now = clock
}

// conflictingProvisioner reports an allocation conflict a fixed number of times
type conflictingProvisioner struct {
	next      AccountProvisioner
	conflicts int
	calls     int
}

func (p *conflictingProvisioner) ProvisionMemberAccount(ctx context.Context, q database.DBTX, m *models.Member) (*models.User, error) {
	p.calls++
	if p.calls <= p.conflicts {
		return nil, repository.ErrAllocationConflict
	}
	return p.next.ProvisionMemberAccount(ctx, q, m)
}

var errProvisionerDown = errors.New("accounts unavailable")

type failingProvisioner struct{}

func (failingProvisioner) ProvisionMemberAccount(context.Context, database.DBTX, *models.Member) (*models.User, error) {
	return nil, errProvisionerDown
}
