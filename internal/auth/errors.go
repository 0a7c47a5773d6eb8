package auth

import "errors"

var (
	// ErrInvalidCredentials covers unknown email, wrong password, and
	// deactivated accounts. The three causes are deliberately collapsed
	// into one error so login responses cannot be used to enumerate
	// accounts or probe activation state.
	ErrInvalidCredentials = errors.New("invalid email or password")

	ErrEmailRequired      = errors.New("email is required")
	ErrPasswordRequired   = errors.New("password is required")
	ErrFirstNameRequired  = errors.New("first name is required")
	ErrLastNameRequired   = errors.New("last name is required")
	ErrInvalidEmailFormat = errors.New("invalid email format")

	ErrPasswordTooShort = errors.New("password must be at least 8 characters long")
	ErrPasswordNoUpper  = errors.New("password must contain at least one uppercase letter")
	ErrPasswordNoLower  = errors.New("password must contain at least one lowercase letter")
	ErrPasswordNoDigit  = errors.New("password must contain at least one number")

	// ErrInvalidResetToken covers missing, mismatched, and expired reset
	// tokens alike; callers cannot distinguish the cause.
	ErrInvalidResetToken = errors.New("invalid or expired reset token")

	ErrWrongPassword = errors.New("current password is incorrect")
)
