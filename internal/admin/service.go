package admin

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/flordegrace/ims-api/internal/user"
)

var (
	// Self-action guards: each has its own sentinel so the API can report
	// exactly which forbidden self-edit was attempted
	ErrSelfDemote     = errors.New("cannot remove admin status from yourself")
	ErrSelfDeactivate = errors.New("cannot deactivate yourself")
	ErrSelfDelete     = errors.New("cannot delete yourself")
)

// UserStore defines the credential-store operations admin management needs
type UserStore interface {
	List(ctx context.Context, page, perPage int, search string) ([]*user.User, int, error)
	GetByID(ctx context.Context, id uuid.UUID) (*user.User, error)
	UpdateFlags(ctx context.Context, id uuid.UUID, update user.FlagUpdate) error
	Delete(ctx context.Context, id uuid.UUID) error
	CountStats(ctx context.Context) (*user.Stats, error)
}

// Service handles admin user management
type Service struct {
	users UserStore
}

func NewService(users UserStore) *Service {
	return &Service{users: users}
}

// ListUsers returns a page of users with the total count
func (s *Service) ListUsers(ctx context.Context, page, perPage int, search string) ([]*user.User, int, error) {
	return s.users.List(ctx, page, perPage, search)
}

// GetUser returns a single user by ID
func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*user.User, error) {
	return s.users.GetByID(ctx, id)
}

// UpdateUser applies an admin edit to a user record. Attempts by an admin
// to revoke their own admin flag or deactivate their own account are
// rejected before any mutation.
func (s *Service) UpdateUser(ctx context.Context, actorID, targetID uuid.UUID, update user.FlagUpdate) (*user.User, error) {
	if targetID == actorID {
		if update.IsAdmin != nil && !*update.IsAdmin {
			return nil, ErrSelfDemote
		}
		if update.IsActive != nil && !*update.IsActive {
			return nil, ErrSelfDeactivate
		}
	}

	if err := s.users.UpdateFlags(ctx, targetID, update); err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, user.ErrNotFound
		}
		return nil, fmt.Errorf("failed to update user: %w", err)
	}

	return s.users.GetByID(ctx, targetID)
}

// DeleteUser removes a user record. Admins cannot delete themselves.
func (s *Service) DeleteUser(ctx context.Context, actorID, targetID uuid.UUID) (*user.User, error) {
	if targetID == actorID {
		return nil, ErrSelfDelete
	}

	target, err := s.users.GetByID(ctx, targetID)
	if err != nil {
		return nil, err
	}

	if err := s.users.Delete(ctx, targetID); err != nil {
		return nil, fmt.Errorf("failed to delete user: %w", err)
	}

	return target, nil
}

// DashboardStats returns aggregate user counts
func (s *Service) DashboardStats(ctx context.Context) (*user.Stats, error) {
	return s.users.CountStats(ctx)
}
