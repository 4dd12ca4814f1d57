package domain

import "time"

type Role string

const (
	RoleUser      Role = "USER"
	RoleAdmin     Role = "ADMIN"
	RoleModerator Role = "MODERATOR"
)

type UserStatus string

const (
	UserStatusActive    UserStatus = "ACTIVE"
	UserStatusSuspended UserStatus = "SUSPENDED"
	UserStatusBanned    UserStatus = "BANNED"
)

// User is the store-side account record the auth gate loads on every verification.
type User struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Status      UserStatus `json:"status"`
	Role        Role       `json:"role"`
	AccountType string     `json:"account_type"`
	Verified    bool       `json:"verified"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (u *User) IsActive() bool {
	return u != nil && u.Status == UserStatusActive
}

// Principal is the verified identity attached to a connection session.
// It is a value type so a session can never observe a later mutation.
type Principal struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Role        Role   `json:"role"`
	AccountType string `json:"account_type"`
	Verified    bool   `json:"verified"`
}

func PrincipalFromUser(u *User) Principal {
	role := u.Role
	if role == "" {
		role = RoleUser
	}
	return Principal{
		ID:          u.ID,
		DisplayName: u.Name,
		Role:        role,
		AccountType: u.AccountType,
		Verified:    u.Verified,
	}
}
