// ABOUTME: Closed role enumeration and the permission sets valid for each role.
// ABOUTME: Roles and permissions are fixed at compile time; no dynamic grants.

package auth

// Role is one of a fixed closed set of caller roles.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleOperator Role = "operator"
	RoleReadOnly Role = "read-only"
)

// Permissions recognized by the gateway.
const (
	PermInvoke   = "invoke"   // invoke registered tools
	PermDiagnose = "diagnose" // run provider connection tests
	PermHealth   = "health"   // read the health report
	PermRotate   = "rotate"   // rotate the gateway credential
)

// rolePermissions maps each role to the full set of permissions it may hold.
var rolePermissions = map[Role][]string{
	RoleAdmin:    {PermInvoke, PermDiagnose, PermHealth, PermRotate},
	RoleOperator: {PermInvoke, PermDiagnose, PermHealth},
	RoleReadOnly: {PermHealth},
}

// DefaultPermissions returns the full permission set for a role, or nil for
// an unknown role. Callers that want a narrower grant pass their own subset.
func DefaultPermissions(r Role) []string {
	return append([]string(nil), rolePermissions[r]...)
}

// ValidRole reports whether r belongs to the closed role set.
func ValidRole(r Role) bool {
	_, ok := rolePermissions[r]
	return ok
}

// allowedForRole reports whether every requested permission is valid for r.
func allowedForRole(r Role, perms []string) bool {
	allowed := make(map[string]bool, len(rolePermissions[r]))
	for _, p := range rolePermissions[r] {
		allowed[p] = true
	}
	for _, p := range perms {
		if !allowed[p] {
			return false
		}
	}
	return true
}

// Identity is the resolved role and permission set of a verified caller.
type Identity struct {
	Role        Role
	Permissions []string
}

// Has reports whether the identity holds the given permission.
func (id *Identity) Has(perm string) bool {
	for _, p := range id.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}
