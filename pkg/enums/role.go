package enums

import "strings"

// Role is the caller role carried in access tokens.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleStorefront Role = "storefront"
)

var roles = []Role{RoleAdmin, RoleStorefront}

func (r Role) String() string { return string(r) }

func (r Role) IsValid() bool { return known(r, roles) }

func ParseRole(value string) (Role, error) {
	return parse("role", value, strings.ToLower(strings.TrimSpace(value)), roles)
}
