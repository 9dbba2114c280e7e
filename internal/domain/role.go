package domain

// Role is a staff rank. Roles are totally ordered by Rank.
type Role string

const (
	RoleUser       Role = "user"
	RoleSuperuser  Role = "superuser"
	RoleAdmin      Role = "admin"
	RoleSuperadmin Role = "superadmin"
)

// roleOrder lists roles from lowest to highest rank. It is the only place
// where the ordering is defined.
var roleOrder = []Role{RoleUser, RoleSuperuser, RoleAdmin, RoleSuperadmin}

// AllRoles returns every role, lowest rank first.
func AllRoles() []Role {
	out := make([]Role, len(roleOrder))
	copy(out, roleOrder)
	return out
}

// Rank returns the position of r in the hierarchy, or -1 for an unknown role.
func Rank(r Role) int {
	for i, known := range roleOrder {
		if known == r {
			return i
		}
	}
	return -1
}

// Rank is shorthand for Rank(r).
func (r Role) Rank() int { return Rank(r) }

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool { return Rank(r) >= 0 }

// AtLeast reports whether r ranks at or above min. Unknown roles never qualify.
func (r Role) AtLeast(min Role) bool {
	return r.Valid() && Rank(r) >= Rank(min)
}

// Outranks reports whether r ranks strictly above other.
func (r Role) Outranks(other Role) bool {
	return r.Valid() && Rank(r) > Rank(other)
}

// ParseRole validates a role name.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", ErrValidation("unknown role: " + s)
	}
	return r, nil
}
