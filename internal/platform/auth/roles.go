package auth

import "strings"

// Role is the capability level attached to a verified identity.
// The identity collaborator assigns roles; this service only consumes them.
type Role string

const (
	RoleAuthor    Role = "author"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

// ParseRole maps a claim string to a Role. Unknown or empty values get the
// lowest capability.
func ParseRole(s string) Role {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(RoleAdmin):
		return RoleAdmin
	case string(RoleModerator):
		return RoleModerator
	default:
		return RoleAuthor
	}
}

// CanModerate reports whether the role may hide content.
func (r Role) CanModerate() bool {
	return r == RoleModerator || r == RoleAdmin
}

// IsAdmin reports whether the role holds admin capability.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin
}
