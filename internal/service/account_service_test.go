package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guildmembers/internal/models"
	"guildmembers/internal/repository"
	"guildmembers/internal/validation"
)

func TestCreateStaff(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	assert.True(t, env.staff.IsStaff)
	assert.NotEqual(t, "correct horse", env.staff.PasswordHash)

	tests := []struct {
		name      string
		params    StaffParams
		wantField string
	}{
		{
			name:      "short password",
			params:    StaffParams{Username: "treasurer", Password: "short"},
			wantField: "password",
		},
		{
			name:      "numeric username",
			params:    StaffParams{Username: "12", Password: "correct horse"},
			wantField: "username",
		},
		{
			name:      "missing username",
			params:    StaffParams{Password: "correct horse"},
			wantField: "username",
		},
		{
			name:      "bad email",
			params:    StaffParams{Username: "treasurer", Password: "correct horse", Email: "nope"},
			wantField: "email",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.accounts.CreateStaff(ctx, tt.params)
			require.Error(t, err)
			require.True(t, validation.IsValidationError(err))
			assert.Contains(t, err.Error(), tt.wantField)
		})
	}

	_, err := env.accounts.CreateStaff(ctx, StaffParams{Username: "door", Password: "another secret"})
	assert.ErrorIs(t, err, repository.ErrDuplicateUsername)
}

func TestLogin(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	result, err := env.accounts.Login(ctx, "door", "correct horse")
	require.NoError(t, err)
	assert.NotEmpty(t, result.Token)
	assert.Equal(t, env.staff.ID, result.User.ID)

	_, err = env.accounts.Login(ctx, "door", "wrong horse")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = env.accounts.Login(ctx, "nobody", "correct horse")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	// member accounts carry no password
	m, err := env.members.CreateMember(ctx, MemberParams{Name: "Jane Doe"})
	require.NoError(t, err)
	_, err = env.accounts.Login(ctx, "1", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = env.accounts.GetStaffUser(ctx, *m.UserID)
	assert.ErrorIs(t, err, ErrUserNotFound)

	staff, err := env.accounts.GetStaffUser(ctx, env.staff.ID)
	require.NoError(t, err)
	assert.Equal(t, "door", staff.Username)
}

func TestProvisionMemberAccountReusesExisting(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	users := repository.NewUserRepository(env.db)
	existing := &models.User{Username: "1", FirstName: "Legacy"}
	require.NoError(t, users.CreateUser(ctx, existing))

	m, err := env.members.CreateMember(ctx, MemberParams{Name: "Jane Doe"})
	require.NoError(t, err)
	require.NotNil(t, m.UserID)
	assert.Equal(t, existing.ID, *m.UserID)
}

func TestStaffPasswords(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	_, err := env.accounts.CreateStaff(ctx, StaffParams{Username: "treasurer", Password: "counting coins"})
	require.NoError(t, err)
	_, err = env.members.CreateMember(ctx, MemberParams{Name: "Jane Doe"})
	require.NoError(t, err)

	staff, err := env.accounts.ListStaff(ctx)
	require.NoError(t, err)
	require.Len(t, staff, 2)
	assert.Equal(t, "door", staff[0].Username)
	assert.Equal(t, "treasurer", staff[1].Username)

	require.NoError(t, env.accounts.SetStaffPassword(ctx, "door", "new horse battery"))
	_, err = env.accounts.Login(ctx, "door", "correct horse")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = env.accounts.Login(ctx, "door", "new horse battery")
	assert.NoError(t, err)

	err = env.accounts.SetStaffPassword(ctx, "door", "short")
	assert.True(t, validation.IsValidationError(err), "got %v", err)

	assert.ErrorIs(t, env.accounts.SetStaffPassword(ctx, "1", "member password"), ErrUserNotFound)
	assert.ErrorIs(t, env.accounts.SetStaffPassword(ctx, "nobody", "some password"), ErrUserNotFound)
}
