package model

import "fmt"

// Role is the closed set of roles a user can hold. Exactly one role per user.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleWasher  Role = "washer"
	RoleClient  Role = "client"
)

// AllRoles lists every valid role, highest privilege first
var AllRoles = []Role{RoleAdmin, RoleManager, RoleWasher, RoleClient}

// Valid reports whether the role is one of the known values
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleWasher, RoleClient:
		return true
	}
	return false
}

func (r Role) String() string {
	return string(r)
}

// ParseRole converts a string to a Role, rejecting unknown values
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// manageable is the management ordering table: which roles an actor's role
// may manage. Washer and Client manage nobody by role; they may still act on
// themselves, which is an identity check, not a role check.
var manageable = map[Role][]Role{
	RoleAdmin:   {RoleAdmin, RoleManager, RoleWasher, RoleClient},
	RoleManager: {RoleWasher, RoleClient},
	RoleWasher:  {},
	RoleClient:  {},
}

// CanManage reports whether a user with this role may manage a user holding
// the target role.
func (r Role) CanManage(target Role) bool {
	for _, t := range manageable[r] {
		if t == target {
			return true
		}
	}
	return false
}

// CanAssign reports whether a user with this role may grant the target role
// to another user. The assignment table matches the management table.
func (r Role) CanAssign(target Role) bool {
	return r.CanManage(target)
}
