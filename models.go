package auth

import (
	"time"
)

// User is the account record owned by the UserStore
type User struct {
	ID            string
	Name          string
	Email         string
	PasswordHash  string
	Role          Role
	Picture       string
	EmailVerified bool
	CreatedAt     *time.Time
	UpdatedAt     *time.Time
}

// Identity is the resolved subject of a request. It is rebuilt on every
// request and never persisted.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  Role   `json:"role"`
}

// IdentityFromUser builds the identity for a user record
func IdentityFromUser(u *User) Identity {
	if u == nil {
		return Identity{}
	}
	return Identity{
		ID:    u.ID,
		Email: u.Email,
		Name:  u.Name,
		Role:  u.Role,
	}
}

// PublicUser is the user shape returned to clients
type PublicUser struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Image string `json:"image,omitempty"`
}

// ToPublic strips credential material from a user
func (u *User) ToPublic() PublicUser {
	if u == nil {
		return PublicUser{}
	}
	return PublicUser{
		ID:    u.ID,
		Name:  u.Name,
		Email: u.Email,
		Image: u.Picture,
	}
}

// AuthResult is returned by login and registration
type AuthResult struct {
	User        PublicUser `json:"user"`
	AccessToken string     `json:"accessToken"`
}

// ResetResult is returned by a confirmed password reset
type ResetResult struct {
	Message string     `json:"message"`
	User    PublicUser `json:"user"`
}

// Ack is a message-only acknowledgement
type Ack struct {
	Message string `json:"message,omitempty"`
	OK      bool   `json:"ok,omitempty"`
}
