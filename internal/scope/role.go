// Package scope derives what a caller may see from their tenant membership
// and role, and narrows every query filter accordingly. It fails closed: any
// identity lookup error yields a permission set with no access at all.
package scope

import (
	dErrors "sentra/pkg/domain-errors"
)

// Role is the closed set of tenant roles the identity service can report.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
	RoleGuest  Role = "guest"
)

func ParseRole(raw string) (Role, error) {
	switch Role(raw) {
	case RoleOwner, RoleAdmin, RoleMember, RoleGuest:
		return Role(raw), nil
	default:
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "unknown role %q", raw)
	}
}

// Export and query ceilings per role tier.
const (
	adminExportLimit   = 100000
	regularExportLimit = 10000

	adminQueryRangeDays   = 730
	regularQueryRangeDays = 90
)
