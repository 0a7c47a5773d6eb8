package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/flordegrace/ims-api/internal/database"
)

var (
	ErrNotFound       = errors.New("user not found")
	ErrDuplicateEmail = errors.New("email already exists")
)

// Repository handles user data persistence
type Repository struct {
	db *bun.DB
}

func NewRepository(db *bun.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a new user. Email must already be normalized by the caller.
func (r *Repository) Create(ctx context.Context, email, passwordHash, firstName, lastName string, isAdmin bool) (*User, error) {
	dbUser := &database.User{
		Email:        email,
		PasswordHash: passwordHash,
		FirstName:    firstName,
		LastName:     lastName,
		IsAdmin:      isAdmin,
		IsActive:     true,
	}

	_, err := r.db.NewInsert().
		Model(dbUser).
		Returning("*").
		Exec(ctx)

	if err != nil {
		if strings.Contains(err.Error(), "duplicate key value violates unique constraint") {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return mapDBUserToModel(dbUser), nil
}

// GetByEmail retrieves a user by email
func (r *Repository) GetByEmail(ctx context.Context, email string) (*User, error) {
	dbUser := new(database.User)
	err := r.db.NewSelect().
		Model(dbUser).
		Where("email = ?", email).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}

	return mapDBUserToModel(dbUser), nil
}

// GetByID retrieves a user by ID
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	dbUser := new(database.User)
	err := r.db.NewSelect().
		Model(dbUser).
		Where("id = ?", id).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}

	return mapDBUserToModel(dbUser), nil
}

// List returns a page of users ordered by creation date, newest first.
// When search is non-empty it filters on email, first name, and last name.
func (r *Repository) List(ctx context.Context, page, perPage int, search string) ([]*User, int, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 10
	}

	var dbUsers []database.User
	query := r.db.NewSelect().Model(&dbUsers)
	if search != "" {
		pattern := "%" + search + "%"
		query = query.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("email ILIKE ?", pattern).
				WhereOr("first_name ILIKE ?", pattern).
				WhereOr("last_name ILIKE ?", pattern)
		})
	}

	total, err := query.
		Order("created_at DESC").
		Limit(perPage).
		Offset((page - 1) * perPage).
		ScanAndCount(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}

	users := make([]*User, len(dbUsers))
	for i := range dbUsers {
		users[i] = mapDBUserToModel(&dbUsers[i])
	}

	return users, total, nil
}

// UpdateProfile updates display fields and email in a single statement
func (r *Repository) UpdateProfile(ctx context.Context, id uuid.UUID, firstName, lastName, email string) error {
	result, err := r.db.NewUpdate().
		Model((*database.User)(nil)).
		Set("first_name = ?", firstName).
		Set("last_name = ?", lastName).
		Set("email = ?", email).
		Set("updated_at = NOW()").
		Where("id = ?", id).
		Exec(ctx)

	if err != nil {
		if strings.Contains(err.Error(), "duplicate key value violates unique constraint") {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("failed to update profile: %w", err)
	}

	return checkRowsAffected(result)
}

// UpdatePassword updates a user's password hash
func (r *Repository) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	result, err := r.db.NewUpdate().
		Model((*database.User)(nil)).
		Set("password_hash = ?", passwordHash).
		Set("updated_at = NOW()").
		Where("id = ?", id).
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	return checkRowsAffected(result)
}

// FlagUpdate carries optional admin/active flag changes. Nil fields are
// left untouched.
type FlagUpdate struct {
	FirstName *string
	LastName  *string
	IsAdmin   *bool
	IsActive  *bool
}

// UpdateFlags applies an admin edit to a user record in a single statement
func (r *Repository) UpdateFlags(ctx context.Context, id uuid.UUID, update FlagUpdate) error {
	query := r.db.NewUpdate().
		Model((*database.User)(nil)).
		Set("updated_at = NOW()").
		Where("id = ?", id)

	if update.FirstName != nil {
		query = query.Set("first_name = ?", *update.FirstName)
	}
	if update.LastName != nil {
		query = query.Set("last_name = ?", *update.LastName)
	}
	if update.IsAdmin != nil {
		query = query.Set("is_admin = ?", *update.IsAdmin)
	}
	if update.IsActive != nil {
		query = query.Set("is_active = ?", *update.IsActive)
	}

	result, err := query.Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	return checkRowsAffected(result)
}

// SetResetToken stores a password reset token hash and its expiry,
// replacing any token that is still pending.
func (r *Repository) SetResetToken(ctx context.Context, id uuid.UUID, tokenHash string, expiresAt time.Time) error {
	result, err := r.db.NewUpdate().
		Model((*database.User)(nil)).
		Set("reset_token_hash = ?", tokenHash).
		Set("reset_token_expires_at = ?", expiresAt).
		Set("updated_at = NOW()").
		Where("id = ?", id).
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("failed to set reset token: %w", err)
	}

	return checkRowsAffected(result)
}

// ClearResetToken removes a pending reset token without changing the password
func (r *Repository) ClearResetToken(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.NewUpdate().
		Model((*database.User)(nil)).
		Set("reset_token_hash = ?", nil).
		Set("reset_token_expires_at = ?", nil).
		Set("updated_at = NOW()").
		Where("id = ?", id).
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("failed to clear reset token: %w", err)
	}

	return checkRowsAffected(result)
}

// ConsumeResetToken atomically verifies the pending token and replaces the
// password in one statement. The WHERE clause covers token match and expiry,
// so two concurrent reset attempts cannot both succeed: the second sees zero
// rows affected. A zero-row result is returned as ErrNotFound whether the
// cause was a missing user, a token mismatch, or expiry.
func (r *Repository) ConsumeResetToken(ctx context.Context, id uuid.UUID, tokenHash, newPasswordHash string) error {
	result, err := r.db.NewUpdate().
		Model((*database.User)(nil)).
		Set("password_hash = ?", newPasswordHash).
		Set("reset_token_hash = ?", nil).
		Set("reset_token_expires_at = ?", nil).
		Set("updated_at = NOW()").
		Where("id = ?", id).
		Where("reset_token_hash = ?", tokenHash).
		Where("reset_token_expires_at > NOW()").
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("failed to consume reset token: %w", err)
	}

	return checkRowsAffected(result)
}

// Delete removes a user record
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.NewDelete().
		Model((*database.User)(nil)).
		Where("id = ?", id).
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	return checkRowsAffected(result)
}

// AdminExists reports whether any administrator account exists
func (r *Repository) AdminExists(ctx context.Context) (bool, error) {
	count, err := r.db.NewSelect().
		Model((*database.User)(nil)).
		Where("is_admin = ?", true).
		Count(ctx)

	if err != nil {
		return false, fmt.Errorf("failed to check for admin: %w", err)
	}

	return count > 0, nil
}

// CountStats returns aggregate user counts for the admin dashboard
func (r *Repository) CountStats(ctx context.Context) (*Stats, error) {
	total, err := r.db.NewSelect().
		Model((*database.User)(nil)).
		Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count users: %w", err)
	}

	active, err := r.db.NewSelect().
		Model((*database.User)(nil)).
		Where("is_active = ?", true).
		Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count active users: %w", err)
	}

	admins, err := r.db.NewSelect().
		Model((*database.User)(nil)).
		Where("is_admin = ?", true).
		Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count admin users: %w", err)
	}

	return &Stats{
		TotalUsers:    total,
		ActiveUsers:   active,
		InactiveUsers: total - active,
		AdminUsers:    admins,
	}, nil
}

// mapDBUserToModel converts database model to domain model
func mapDBUserToModel(dbu *database.User) *User {
	return &User{
		ID:                  dbu.ID,
		Email:               dbu.Email,
		PasswordHash:        dbu.PasswordHash,
		FirstName:           dbu.FirstName,
		LastName:            dbu.LastName,
		IsAdmin:             dbu.IsAdmin,
		IsActive:            dbu.IsActive,
		ResetTokenHash:      dbu.ResetTokenHash,
		ResetTokenExpiresAt: dbu.ResetTokenExpiresAt,
		CreatedAt:           dbu.CreatedAt,
		UpdatedAt:           dbu.UpdatedAt,
	}
}

func checkRowsAffected(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}
