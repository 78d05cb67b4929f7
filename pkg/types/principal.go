package types

// UserRole represents the different user roles in the system
type UserRole string

const (
	RolePatient       UserRole = "patient"
	RoleDoctor        UserRole = "doctor"
	RoleNurse         UserRole = "nurse"
	RoleLabTechnician UserRole = "lab_technician"
	RoleReceptionist  UserRole = "receptionist"
	RoleClinicStaff   UserRole = "clinic_staff"
	RoleAdministrator UserRole = "administrator"
)

// validRoles is the fixed set of roles the pipeline accepts. A principal
// carrying anything else is treated as having no role at all.
var validRoles = map[UserRole]bool{
	RolePatient:       true,
	RoleDoctor:        true,
	RoleNurse:         true,
	RoleLabTechnician: true,
	RoleReceptionist:  true,
	RoleClinicStaff:   true,
	RoleAdministrator: true,
}

// IsValid reports whether the role belongs to the enumerated set.
func (r UserRole) IsValid() bool {
	return validRoles[r]
}

// Principal is the verified identity attached to a request by the
// authentication gate. It lives for the duration of one request and is
// never persisted.
type Principal struct {
	Subject        string                 `json:"subject"`
	Role           UserRole               `json:"role"`
	Claims         map[string]interface{} `json:"claims,omitempty"`
	IssuerVerified bool                   `json:"issuer_verified"`
}

// ResolveRole returns the principal's effective role: the explicit role
// field first, then a "role" entry embedded in the raw claims. The empty
// string means no usable role was found.
func (p *Principal) ResolveRole() UserRole {
	if p == nil {
		return ""
	}
	if p.Role != "" && p.Role.IsValid() {
		return p.Role
	}
	if raw, ok := p.Claims["role"]; ok {
		if s, ok := raw.(string); ok && UserRole(s).IsValid() {
			return UserRole(s)
		}
	}
	return ""
}
