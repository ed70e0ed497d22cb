package auth

import "time"

type Role string

const (
	RoleMerchant Role = "merchant"
	RoleAnalyst  Role = "analyst"
	RoleAdmin    Role = "admin"
)

// Account is the domain representation of an authenticated API caller.
// It mirrors the accounts table and carries no JSON annotations so it can be
// reused by different presentation layers.
type Account struct {
	ID           string
	Email        string
	FullName     string
	PasswordHash string
	MerchantID   *string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RegisterRequest contains account registration data supplied by callers.
type RegisterRequest struct {
	Email      string  `json:"email"`
	Password   string  `json:"password"`
	FullName   string  `json:"full_name"`
	MerchantID *string `json:"merchant_id,omitempty"`
	Role       Role    `json:"role"`
}

// LoginRequest contains account login credentials.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
