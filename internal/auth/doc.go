// Package auth authenticates gate operators.
//
// Operators are declared in configuration with an Argon2id password hash
// and a role. A successful login yields a short-lived HS256 JWT whose
// subject is the operator name; that name is what the gate actuator records
// in the audit log.
//
// Roles:
//
//	operator  view and test devices, open and close gates, read the audit log
//	admin     everything an operator can do plus device configuration
package auth
