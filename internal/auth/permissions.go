package auth

// Permission represents a named capability.
type Permission string

// Permission constants.
const (
	PermDeviceRead      Permission = "device:read"
	PermDeviceTest      Permission = "device:test"
	PermGateOperate     Permission = "gate:operate"
	PermDeviceConfigure Permission = "device:configure"
	PermAuditRead       Permission = "audit:read"
)

// rolePermissions is the single source of truth for the authorisation model.
var rolePermissions = map[Role][]Permission{
	RoleOperator: {
		PermDeviceRead,
		PermDeviceTest,
		PermGateOperate,
		PermAuditRead,
	},
	RoleAdmin: {
		PermDeviceRead,
		PermDeviceTest,
		PermGateOperate,
		PermDeviceConfigure,
		PermAuditRead,
	},
}

// HasPermission reports whether role grants perm.
func HasPermission(role Role, perm Permission) bool {
	for _, p := range rolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}

// PermissionsForRole returns a copy of the permissions granted to role, or
// nil for unknown roles.
func PermissionsForRole(role Role) []Permission {
	perms := rolePermissions[role]
	if perms == nil {
		return nil
	}
	result := make([]Permission, len(perms))
	copy(result, perms)
	return result
}
