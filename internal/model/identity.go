package model

// Identity is an opaque, globally unique caller reference. The registry never
// interprets it; authentication happens before a call reaches the core.
type Identity string

func (i Identity) String() string { return string(i) }

// IsZero reports whether the identity is empty.
func (i Identity) IsZero() bool { return i == "" }

// Role is the single role held by an identity. Every identity has exactly one
// role at any time; assignment is write-once (no reassignment, no revocation).
type Role string

const (
	RoleUnassigned Role = "unassigned"
	RolePatient    Role = "patient"
	RoleDoctor     Role = "doctor"
	RoleLab        Role = "lab"
	RoleAdmin      Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUnassigned, RolePatient, RoleDoctor, RoleLab, RoleAdmin:
		return true
	}
	return false
}
