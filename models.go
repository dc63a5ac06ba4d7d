package account

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserGender mirrors the profile choices exposed by the serializer layer
type UserGender = string

const (
	GenderMale   UserGender = "Male"
	GenderFemale UserGender = "Female"
)

// ImagePathPrefix is the per-purpose storage prefix for profile images
const ImagePathPrefix = "users/user_img"

// User is the user model
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Username      string     `bun:"username,notnull,unique" json:"username,omitempty"`
	FirstName     string     `bun:"first_name,notnull" json:"first_name,omitempty"`
	LastName      string     `bun:"last_name,notnull" json:"last_name,omitempty"`
	Email         string     `bun:"email,notnull,unique" json:"email,omitempty"`
	Phone         string     `bun:"phone_number" json:"phone_number,omitempty"`
	ProfileImage  string     `bun:"profile_image" json:"profile_image,omitempty"`
	BirthDate     *time.Time `bun:"birth_date,nullzero" json:"birth_date,omitempty"`
	Gender        UserGender `bun:"gender" json:"gender,omitempty"`
	PasswordHash  string     `bun:"password_hash" json:"-"`
	IsActive      bool       `bun:"is_active" json:"is_active"`
	ActivatedAt   *time.Time `bun:"activated_at,nullzero" json:"activated_at,omitempty"`

	LoginAttempts  int        `bun:"login_attempts" json:"login_attempts,omitempty"`
	LoginAttemptAt *time.Time `bun:"login_attempt_at" json:"login_attempt_at,omitempty"`
	LoggedInAt     *time.Time `bun:"loggedin_at" json:"loggedin_at,omitempty"`

	CreatedAt *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// NormalizeEmail lowercases and trims an email address. The store persists
// emails in this form so that uniqueness checks are case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Activate flips the user into the active state. Calling it on an already
// active user is harmless.
func (u *User) Activate() *User {
	u.IsActive = true
	if u.ActivatedAt == nil {
		now := time.Now()
		u.ActivatedAt = &now
	}
	return u
}

// FullName joins first and last name, tolerating either being empty
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}
