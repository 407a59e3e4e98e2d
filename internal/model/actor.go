package model

import "github.com/google/uuid"

// Role is the marketplace role carried by an authenticated caller.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleSeller   Role = "seller"
	RoleAdmin    Role = "admin"
)

// IsValid reports whether the value is a known Role.
func (r Role) IsValid() bool {
	return r == RoleCustomer || r == RoleSeller || r == RoleAdmin
}

// Actor is the authenticated caller of a service operation.
// A seller's seller id is its user id.
type Actor struct {
	UserID uuid.UUID
	Email  string
	Name   string
	Role   Role
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

func (a Actor) IsSeller() bool {
	return a.Role == RoleSeller
}
