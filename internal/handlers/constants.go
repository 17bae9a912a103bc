package handlers

const (
	ErrInvalidJSON         = "Invalid JSON body"
	ErrInvalidID           = "Invalid id"
	ErrInvalidNumber       = "Invalid member number"
	ErrUnauthorized        = "Unauthorized"
	ErrValidationFailed    = "Validation failed"
	ErrTooManyRequests     = "Too many requests"
	ErrTryAgain            = "Conflicting concurrent update, please try again"
	ErrInternalServerError = "Internal server error"

	// maxBodyBytes caps every JSON request body
	maxBodyBytes = 1 << 20
)
