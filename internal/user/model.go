package user

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID                  uuid.UUID  `json:"id"`
	Email               string     `json:"email"`
	PasswordHash        string     `json:"-"` // never expose the hash in JSON
	FirstName           string     `json:"first_name"`
	LastName            string     `json:"last_name"`
	IsAdmin             bool       `json:"is_admin"`
	IsActive            bool       `json:"is_active"`
	ResetTokenHash      *string    `json:"-"`
	ResetTokenExpiresAt *time.Time `json:"-"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// FullName returns the display name for notifications and admin listings
func (u *User) FullName() string {
	return u.FirstName + " " + u.LastName
}

// Stats holds aggregate user counts for the admin dashboard
type Stats struct {
	TotalUsers    int `json:"total_users"`
	ActiveUsers   int `json:"active_users"`
	InactiveUsers int `json:"inactive_users"`
	AdminUsers    int `json:"admin_users"`
}
