package service

import "errors"

var (
	ErrMemberNotFound          = errors.New("member not found")
	ErrMembershipNotFound      = errors.New("membership not found")
	ErrTemporaryMemberNotFound = errors.New("temporary member not found")
	ErrUserNotFound            = errors.New("user not found")

	// ErrNotApproved means a signup was converted before staff approved it
	// with both an approving user and a payment method
	ErrNotApproved = errors.New("temporary member is not approved with a payment method and approving user")

	// ErrNoRecipients means the member has no email address to write to
	ErrNoRecipients = errors.New("member has no email addresses")

	ErrInvalidCredentials = errors.New("invalid username or password")
)
