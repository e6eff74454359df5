package auth

import "time"

type Role string

const (
	RoleStudent Role = "student"
	RoleFaculty Role = "faculty"
	RoleAdmin   Role = "admin"
)

// User is the domain representation of an authenticated account.
// It mirrors the users table and should not include JSON annotations so it
// can be reused by different presentation layers.
type User struct {
	ID             string
	Email          string
	FullName       string
	PasswordHash   string
	Role           Role
	ResearchArea   *string
	PendingReviews int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// RegisterRequest contains account registration data supplied by callers.
type RegisterRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	FullName     string `json:"full_name"`
	Role         Role   `json:"role"`
	ResearchArea string `json:"research_area"`
}

// LoginRequest contains account login credentials.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
