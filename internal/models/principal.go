package models

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// SystemActorID identifies engine-driven changes in the audit trail.
const SystemActorID = "system"

// Claims is the identity presented by the external identity provider.
type Claims struct {
	UserID string   `json:"sub"`
	Roles  []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// Actor is the authenticated caller as seen by the services.
type Actor struct {
	UserID string
	Roles  []Role
}

// Subject is an actor resolved against the role directory; it is the input of
// every access predicate.
type Subject struct {
	UserID      string
	Assignments []RoleAssignment
}

// HasRole reports whether any assignment carries role.
func (s Subject) HasRole(role Role) bool {
	for _, a := range s.Assignments {
		if a.Role == role {
			return true
		}
	}
	return false
}

// Actor converts presented claims to an actor, dropping role names that do
// not map to a known role.
func (c *Claims) Actor() Actor {
	if c == nil {
		return Actor{}
	}
	actor := Actor{UserID: strings.TrimSpace(c.UserID)}
	seen := make(map[Role]struct{}, len(c.Roles))
	for _, raw := range c.Roles {
		role, ok := ParseRole(raw)
		if !ok {
			continue
		}
		if _, dup := seen[role]; dup {
			continue
		}
		seen[role] = struct{}{}
		actor.Roles = append(actor.Roles, role)
	}
	return actor
}
