package enums

import "fmt"

// MemberRole captures the actor roles recognized by the API.
type MemberRole string

const (
	MemberRoleAdmin       MemberRole = "admin"
	MemberRoleManager     MemberRole = "manager"
	MemberRoleSalesperson MemberRole = "salesperson"
)

var validMemberRoles = []MemberRole{
	MemberRoleAdmin,
	MemberRoleManager,
	MemberRoleSalesperson,
}

// IsValid reports whether the value is a known MemberRole.
func (m MemberRole) IsValid() bool {
	for _, candidate := range validMemberRoles {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParseMemberRole converts raw input into a MemberRole.
func ParseMemberRole(value string) (MemberRole, error) {
	for _, candidate := range validMemberRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid member role %q", value)
}
