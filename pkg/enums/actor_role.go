package enums

import "fmt"

// ActorRole is the role claim carried by bearer tokens.
type ActorRole string

const (
	ActorRoleAdmin        ActorRole = "admin"
	ActorRoleOrderService ActorRole = "order_service"
)

var validActorRoles = []ActorRole{
	ActorRoleAdmin,
	ActorRoleOrderService,
}

func (r ActorRole) String() string {
	return string(r)
}

func (r ActorRole) IsValid() bool {
	for _, candidate := range validActorRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseActorRole converts raw input into an ActorRole.
func ParseActorRole(value string) (ActorRole, error) {
	for _, candidate := range validActorRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid actor role %q", value)
}
