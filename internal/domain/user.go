package domain

import (
	"fmt"
	"strings"
	"time"
)

// Role represents a user profile.
type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleOperator Role = "OPERATOR"
	RoleDriver   Role = "DRIVER"
)

func (r Role) String() string { return string(r) }

func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleOperator, RoleDriver:
		return true
	}
	return false
}

func ParseRoleFromString(s string) (Role, error) {
	role := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !role.IsValid() {
		return "", fmt.Errorf("%w: invalid role %q", ErrValidation, s)
	}
	return role, nil
}

// User is an account referenced by deliveries as the assigned driver.
// Credential management is out of scope; users carry identity and role only.
type User struct {
	ID        string
	Username  string
	Role      Role
	CreatedAt time.Time
}

func (u *User) Validate() error {
	if u.Username == "" {
		return fmt.Errorf("%w: username is required", ErrValidation)
	}
	if !u.Role.IsValid() {
		return fmt.Errorf("%w: invalid role %q", ErrValidation, u.Role)
	}
	return nil
}
