package auth

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/flordegrace/ims-api/internal/user"
)

// UserStore defines the credential-store operations the auth flows need
type UserStore interface {
	Create(ctx context.Context, email, passwordHash, firstName, lastName string, isAdmin bool) (*user.User, error)
	GetByEmail(ctx context.Context, email string) (*user.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*user.User, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, firstName, lastName, email string) error
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	SetResetToken(ctx context.Context, id uuid.UUID, tokenHash string, expiresAt time.Time) error
	ClearResetToken(ctx context.Context, id uuid.UUID) error
	ConsumeResetToken(ctx context.Context, id uuid.UUID, tokenHash, newPasswordHash string) error
	AdminExists(ctx context.Context) (bool, error)
}

// EmailService defines the interface for the notification sender.
// Delivery is best-effort; flow outcomes never depend on it.
type EmailService interface {
	SendPasswordResetEmail(ctx context.Context, toEmail, name, resetLink string) error
	SendPasswordChangedEmail(ctx context.Context, toEmail, name string) error
}
