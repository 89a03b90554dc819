package domain

import "fmt"

type ActorRole string

const (
	RoleUser            ActorRole = "user"
	RoleAdmin           ActorRole = "admin"
	RoleSecurityOfficer ActorRole = "security_officer"
	RoleSystem          ActorRole = "system"
)

// Actor is the authenticated caller as asserted by the upstream gateway.
type Actor struct {
	ID   string
	Role ActorRole
	Meta RequestMeta
}

// SystemActor is used for transitions driven by the scheduler.
var SystemActor = Actor{ID: "system:scheduler", Role: RoleSystem}

func (a Actor) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("%w: missing actor identity", ErrUnauthorized)
	}
	switch a.Role {
	case RoleUser, RoleAdmin, RoleSecurityOfficer, RoleSystem:
		return nil
	}
	return fmt.Errorf("%w: unknown role %q", ErrUnauthorized, a.Role)
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin || a.Role == RoleSecurityOfficer
}
