package models

import (
	"time"

	"github.com/google/uuid"
)

// Role is the single role a user holds in the procurement workflow
type Role string

const (
	RoleStaff          Role = "staff"
	RoleApproverLevel1 Role = "approver_level_1"
	RoleApproverLevel2 Role = "approver_level_2"
	RoleFinance        Role = "finance"
	RoleAdmin          Role = "admin"
)

// Roles lists every known role
var Roles = []Role{RoleStaff, RoleApproverLevel1, RoleApproverLevel2, RoleFinance, RoleAdmin}

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

// IsApprover reports whether r sits in the two-level approval chain
func (r Role) IsApprover() bool {
	return r == RoleApproverLevel1 || r == RoleApproverLevel2
}

// User represents a system user
type User struct {
	ID           uuid.UUID `json:"id" db:"id"`
	Username     string    `json:"username" db:"username"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"` // Never expose in JSON
	FirstName    *string   `json:"first_name,omitempty" db:"first_name"`
	LastName     *string   `json:"last_name,omitempty" db:"last_name"`
	Role         Role      `json:"role" db:"role"`
	Department   *string   `json:"department,omitempty" db:"department"`
	IsActive     bool      `json:"is_active" db:"is_active"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// DisplayName returns the full name when known, otherwise the username
func (u *User) DisplayName() string {
	switch {
	case u.FirstName != nil && u.LastName != nil:
		return *u.FirstName + " " + *u.LastName
	case u.FirstName != nil:
		return *u.FirstName
	default:
		return u.Username
	}
}

// Actor is the caller identity consumed by the workflow engine
type Actor struct {
	UserID uuid.UUID
	Role   Role
}

// Request/Response DTOs

// RegisterRequest represents a user registration request
type RegisterRequest struct {
	Username   string  `json:"username" validate:"required,min=3,max=50"`
	Email      string  `json:"email" validate:"required,email"`
	Password   string  `json:"password" validate:"required,min=8,max=72"`
	FirstName  *string `json:"first_name,omitempty"`
	LastName   *string `json:"last_name,omitempty"`
	Department *string `json:"department,omitempty"`
}

// LoginRequest represents a login request
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse represents a login response with an access token
type LoginResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"` // seconds
	TokenType   string `json:"token_type"`
	User        User   `json:"user"`
}
