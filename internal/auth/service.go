package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/flordegrace/ims-api/internal/logging"
	"github.com/flordegrace/ims-api/internal/user"
)

// Service handles authentication business logic
type Service struct {
	users        UserStore
	emailService EmailService
	logger       *logging.Logger
	frontendURL  string
}

func NewService(users UserStore, emailService EmailService, logger *logging.Logger, frontendURL string) *Service {
	return &Service{
		users:        users,
		emailService: emailService,
		logger:       logger,
		frontendURL:  frontendURL,
	}
}

// Login verifies credentials and returns the authenticated user. Unknown
// email, wrong password, and deactivated account all return
// ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, password string) (*user.User, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	existing, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if !VerifyPassword(existing.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}

	if !existing.IsActive {
		return nil, ErrInvalidCredentials
	}

	return existing, nil
}

// Register creates a new user account. Admin privilege is enforced at the
// route level; the service only validates and persists.
func (s *Service) Register(ctx context.Context, email, password, firstName, lastName string, isAdmin bool) (*user.User, error) {
	email = NormalizeEmail(email)
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := ValidatePassword(password); err != nil {
		return nil, err
	}
	if strings.TrimSpace(firstName) == "" {
		return nil, ErrFirstNameRequired
	}
	if strings.TrimSpace(lastName) == "" {
		return nil, ErrLastNameRequired
	}

	passwordHash, err := HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	newUser, err := s.users.Create(ctx, email, passwordHash, strings.TrimSpace(firstName), strings.TrimSpace(lastName), isAdmin)
	if err != nil {
		if errors.Is(err, user.ErrDuplicateEmail) {
			return nil, user.ErrDuplicateEmail
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return newUser, nil
}

// RequestPasswordReset issues a reset token and mails the reset link.
// Always returns nil so responses cannot be used to enumerate accounts;
// a token is only issued when the account exists and is active.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	email = NormalizeEmail(email)

	existing, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, user.ErrNotFound) {
			s.logger.Warn("failed to get user for password reset", "error", err)
		}
		return nil
	}

	if !existing.IsActive {
		return nil
	}

	if err := s.issueResetToken(ctx, existing); err != nil {
		s.logger.Warn("failed to issue password reset token", "error", err)
		return nil
	}

	return nil
}

// AdminResetPassword issues a reset token for an arbitrary user on behalf
// of an administrator. Unlike RequestPasswordReset this reports an unknown
// email: the caller is already a trusted admin, so enumeration resistance
// is not required.
func (s *Service) AdminResetPassword(ctx context.Context, email string) (*user.User, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, ErrEmailRequired
	}

	existing, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, user.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if err := s.issueResetToken(ctx, existing); err != nil {
		return nil, fmt.Errorf("failed to issue reset token: %w", err)
	}

	return existing, nil
}

// issueResetToken generates a token, persists its hash with a 1-hour
// expiry (replacing any pending token), and mails the link. The raw token
// exists only in the email.
func (s *Service) issueResetToken(ctx context.Context, u *user.User) error {
	token, err := generateResetToken()
	if err != nil {
		return fmt.Errorf("failed to generate reset token: %w", err)
	}

	expiresAt := time.Now().Add(resetTokenTTL)
	if err := s.users.SetResetToken(ctx, u.ID, hashToken(token), expiresAt); err != nil {
		return fmt.Errorf("failed to store reset token: %w", err)
	}

	resetLink := fmt.Sprintf("%s/reset-password?token=%s&email=%s",
		s.frontendURL, url.QueryEscape(token), url.QueryEscape(u.Email))

	// Send in a goroutine with a fresh context so request cancellation
	// does not abort delivery
	toEmail, name := u.Email, u.FullName()
	go func() {
		if err := s.emailService.SendPasswordResetEmail(context.Background(), toEmail, name, resetLink); err != nil {
			s.logger.Warn("failed to send password reset email", "email", toEmail, "error", err)
		}
	}()

	return nil
}

// ResetPassword sets a new password using a valid reset token. Verification
// and consumption happen in one atomic store operation, so a token can be
// used at most once even under concurrent attempts.
func (s *Service) ResetPassword(ctx context.Context, email, token, newPassword string) error {
	email = NormalizeEmail(email)
	if email == "" || token == "" {
		return ErrInvalidResetToken
	}
	if err := ValidatePassword(newPassword); err != nil {
		return err
	}

	existing, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return ErrInvalidResetToken
		}
		return fmt.Errorf("failed to get user: %w", err)
	}

	passwordHash, err := HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := s.users.ConsumeResetToken(ctx, existing.ID, hashToken(token), passwordHash); err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return ErrInvalidResetToken
		}
		return fmt.Errorf("failed to consume reset token: %w", err)
	}

	s.notifyPasswordChanged(existing)

	return nil
}

// ChangePassword re-verifies the caller's current password before setting
// a new one.
func (s *Service) ChangePassword(ctx context.Context, userID uuid.UUID, currentPassword, newPassword string) error {
	if currentPassword == "" {
		return ErrWrongPassword
	}
	if err := ValidatePassword(newPassword); err != nil {
		return err
	}

	existing, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to get user: %w", err)
	}

	if !VerifyPassword(existing.PasswordHash, currentPassword) {
		return ErrWrongPassword
	}

	passwordHash, err := HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := s.users.UpdatePassword(ctx, existing.ID, passwordHash); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	// A pending reset link should not outlive a deliberate password change
	if existing.ResetTokenHash != nil {
		if err := s.users.ClearResetToken(ctx, existing.ID); err != nil {
			s.logger.Warn("failed to clear pending reset token", "user_id", existing.ID, "error", err)
		}
	}

	s.notifyPasswordChanged(existing)

	return nil
}

// GetProfile returns the user record for the current session identity
func (s *Service) GetProfile(ctx context.Context, userID uuid.UUID) (*user.User, error) {
	return s.users.GetByID(ctx, userID)
}

// UpdateProfile updates display fields and email for the current session
// identity only. Email uniqueness is enforced against other users.
func (s *Service) UpdateProfile(ctx context.Context, userID uuid.UUID, firstName, lastName, email string) (*user.User, error) {
	firstName = strings.TrimSpace(firstName)
	lastName = strings.TrimSpace(lastName)
	email = NormalizeEmail(email)

	if firstName == "" {
		return nil, ErrFirstNameRequired
	}
	if lastName == "" {
		return nil, ErrLastNameRequired
	}
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}

	other, err := s.users.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, user.ErrNotFound) {
		return nil, fmt.Errorf("failed to check email uniqueness: %w", err)
	}
	if err == nil && other.ID != userID {
		return nil, user.ErrDuplicateEmail
	}

	if err := s.users.UpdateProfile(ctx, userID, firstName, lastName, email); err != nil {
		// The unique constraint backstops the pre-check under concurrency
		if errors.Is(err, user.ErrDuplicateEmail) {
			return nil, user.ErrDuplicateEmail
		}
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}

	return s.users.GetByID(ctx, userID)
}

// EnsureDefaultAdmin creates the bootstrap administrator when no admin
// account exists yet. Called once at startup; a no-op otherwise.
func (s *Service) EnsureDefaultAdmin(ctx context.Context, email, password, firstName, lastName string) error {
	exists, err := s.users.AdminExists(ctx)
	if err != nil {
		return fmt.Errorf("failed to check for existing admin: %w", err)
	}
	if exists {
		return nil
	}

	if password == "" {
		return fmt.Errorf("no admin account exists and DEFAULT_ADMIN_PASSWORD is not set")
	}

	admin, err := s.Register(ctx, email, password, firstName, lastName, true)
	if err != nil {
		if errors.Is(err, user.ErrDuplicateEmail) {
			// Account exists but lost its admin flag; leave it alone
			return nil
		}
		return fmt.Errorf("failed to create default admin: %w", err)
	}

	s.logger.Info("default admin account created", "email", admin.Email)
	return nil
}

func (s *Service) notifyPasswordChanged(u *user.User) {
	toEmail, name := u.Email, u.FullName()
	go func() {
		if err := s.emailService.SendPasswordChangedEmail(context.Background(), toEmail, name); err != nil {
			s.logger.Warn("failed to send password changed notification", "email", toEmail, "error", err)
		}
	}()
}
