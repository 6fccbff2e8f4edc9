package authz

import (
	"fmt"
	"slices"
)

type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

var knownRoles = []Role{RoleUser, RoleAdmin}

// ParseRole is case-exact: "admin" is not ADMIN.
func ParseRole(value string) (Role, error) {
	role := Role(value)
	if !slices.Contains(knownRoles, role) {
		return "", fmt.Errorf("authz: unknown role %q", value)
	}
	return role, nil
}

func ParseRoles(values []string) ([]Role, error) {
	roles := make([]Role, 0, len(values))
	for _, value := range values {
		role, err := ParseRole(value)
		if err != nil {
			return nil, err
		}
		if !slices.Contains(roles, role) {
			roles = append(roles, role)
		}
	}
	return roles, nil
}

func RoleStrings(roles []Role) []string {
	out := make([]string, len(roles))
	for i, role := range roles {
		out[i] = string(role)
	}
	return out
}

type Principal struct {
	Subject string
	Roles   []Role
}

func (p Principal) HasAnyRole(required ...Role) bool {
	for _, role := range required {
		if slices.Contains(p.Roles, role) {
			return true
		}
	}
	return false
}

func (p Principal) clone() Principal {
	p.Roles = slices.Clone(p.Roles)
	return p
}
