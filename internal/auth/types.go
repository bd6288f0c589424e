package auth

import (
	"errors"
	"strings"
)

// Role is an operator's authorisation tier.
type Role string

const (
	// RoleOperator may view devices, test them and open or close gates.
	RoleOperator Role = "operator"

	// RoleAdmin may additionally add, change and delete devices.
	RoleAdmin Role = "admin"
)

// ParseRole maps a configured role string to a Role. Empty means operator.
func ParseRole(s string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case "", RoleOperator:
		return RoleOperator, true
	case RoleAdmin:
		return RoleAdmin, true
	default:
		return "", false
	}
}

// Operator is an authenticated person allowed to control gates.
type Operator struct {
	Name string `json:"name"`
	Role Role   `json:"role"`
}

// Sentinel errors for auth operations.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenInvalid       = errors.New("invalid token")
	ErrForbidden          = errors.New("insufficient permissions")
)
