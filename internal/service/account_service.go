package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"guildmembers/internal/database"
	"guildmembers/internal/models"
	"guildmembers/internal/repository"
	"guildmembers/internal/security"
	"guildmembers/internal/validation"
)

// AccountProvisioner returns the login account of a member, creating it when
// missing. It runs on the caller's transaction.
type AccountProvisioner interface {
	ProvisionMemberAccount(ctx context.Context, q database.DBTX, member *models.Member) (*models.User, error)
}

// AccountService manages login accounts: member accounts keyed by member
// number, and password-protected staff accounts
type AccountService struct {
	users  *repository.UserRepository
	tokens *security.TokenIssuer
}

// NewAccountService creates a new account service
func NewAccountService(users *repository.UserRepository, tokens *security.TokenIssuer) *AccountService {
	return &AccountService{users: users, tokens: tokens}
}

// ProvisionMemberAccount gets or creates the account whose username is the member number.
// A concurrent insert of the same username surfaces as repository.ErrAllocationConflict
// so the surrounding member allocation is retried.
func (s *AccountService) ProvisionMemberAccount(ctx context.Context, q database.DBTX, member *models.Member) (*models.User, error) {
	users := s.users.WithTx(q)
	username := strconv.FormatInt(member.Number, 10)

	user, err := users.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if user != nil {
		return user, nil
	}

	user = &models.User{
		Username:  username,
		FirstName: member.RefName,
		LastName:  member.SortName,
	}
	if err := users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateUsername) {
			return nil, fmt.Errorf("failed to provision account %s: %w", username, repository.ErrAllocationConflict)
		}
		return nil, err
	}
	return user, nil
}

// StaffParams describes a new staff account
type StaffParams struct {
	Username  string `json:"username" validate:"required,max=150"`
	Password  string `json:"password" validate:"required"`
	FirstName string `json:"first_name" validate:"max=150"`
	LastName  string `json:"last_name" validate:"max=150"`
	Email     string `json:"email" validate:"omitempty,email"`
}

// CreateStaff creates a staff account with a bcrypt password
func (s *AccountService) CreateStaff(ctx context.Context, params StaffParams) (*models.User, error) {
	if err := validation.Struct(params); err != nil {
		return nil, err
	}
	if _, err := strconv.ParseInt(params.Username, 10, 64); err == nil {
		return nil, validation.ValidationError{Field: "username", Message: "numeric usernames are reserved for members"}
	}

	hash, err := security.HashPassword(params.Password)
	if errors.Is(err, security.ErrPasswordTooShort) {
		return nil, validation.ValidationError{Field: "password", Message: err.Error()}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Username:     params.Username,
		FirstName:    params.FirstName,
		LastName:     params.LastName,
		Email:        params.Email,
		PasswordHash: hash,
		IsStaff:      true,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Authenticate checks a staff login. Member accounts have no password and never authenticate.
func (s *AccountService) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if user == nil || !user.IsStaff || !security.CheckPassword(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// LoginResult is a signed staff token
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	User      *models.User
}

// Login authenticates a staff user and issues a bearer token
func (s *AccountService) Login(ctx context.Context, username, password string) (result *LoginResult, err error) {
	ctx, span := startSpan(ctx, "AccountService.Login")
	defer func() { endSpan(span, err) }()

	user, err := s.Authenticate(ctx, username, password)
	if err != nil {
		return nil, err
	}
	token, expiresAt, err := s.tokens.Issue(user.ID, user.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}
	return &LoginResult{Token: token, ExpiresAt: expiresAt, User: user}, nil
}

// GetStaffUser returns the staff account with the given ID
func (s *AccountService) GetStaffUser(ctx context.Context, id int64) (*models.User, error) {
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil || !user.IsStaff {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// ListStaff returns every staff account ordered by username
func (s *AccountService) ListStaff(ctx context.Context) ([]models.User, error) {
	return s.users.GetStaffUsers(ctx)
}

// SetStaffPassword replaces the password of the named staff account
func (s *AccountService) SetStaffPassword(ctx context.Context, username, password string) error {
	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		return err
	}
	if user == nil || !user.IsStaff {
		return ErrUserNotFound
	}

	hash, err := security.HashPassword(password)
	if errors.Is(err, security.ErrPasswordTooShort) {
		return validation.ValidationError{Field: "password", Message: err.Error()}
	}
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	return s.users.UpdatePassword(ctx, user.ID, hash)
}
