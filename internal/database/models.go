package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is the database model for the users table
type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID                  uuid.UUID  `bun:"id,pk,type:uuid,default:gen_random_uuid()"`
	Email               string     `bun:"email,notnull,unique"`
	PasswordHash        string     `bun:"password_hash,notnull"`
	FirstName           string     `bun:"first_name,notnull"`
	LastName            string     `bun:"last_name,notnull"`
	IsAdmin             bool       `bun:"is_admin,notnull,default:false"`
	IsActive            bool       `bun:"is_active,notnull,default:true"`
	ResetTokenHash      *string    `bun:"reset_token_hash"`
	ResetTokenExpiresAt *time.Time `bun:"reset_token_expires_at"`
	CreatedAt           time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt           time.Time  `bun:"updated_at,notnull,default:current_timestamp"`
}
