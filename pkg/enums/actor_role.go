package enums

import "fmt"

// ActorRole is the marketplace role carried in the access token.
type ActorRole string

const (
	ActorRoleClient  ActorRole = "client"
	ActorRoleStore   ActorRole = "store"
	ActorRoleCourier ActorRole = "courier"
)

var validActorRoles = []ActorRole{
	ActorRoleClient,
	ActorRoleStore,
	ActorRoleCourier,
}

// String implements fmt.Stringer.
func (r ActorRole) String() string {
	return string(r)
}

// IsValid reports whether the value is a known ActorRole.
func (r ActorRole) IsValid() bool {
	for _, candidate := range validActorRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseActorRole converts raw input into a ActorRole.
func ParseActorRole(value string) (ActorRole, error) {
	for _, candidate := range validActorRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid actor role %q", value)
}
