package scope

import (
	id "sentra/pkg/domain"
)

// Permissions is the capability set derived from a user's tenant and role.
// It is computed on demand, never persisted, and safe to cache with a short
// TTL keyed by user id.
type Permissions struct {
	TenantID             id.TenantID `json:"tenant_id"`
	CanView              bool        `json:"can_view"`
	CanViewSystemActions bool        `json:"can_view_system_actions"`
	CanViewSensitiveData bool        `json:"can_view_sensitive_data"`
	CanViewTechnicalData bool        `json:"can_view_technical_data"`
	MaxExportRows        int         `json:"max_export_rows"`
	MaxQueryRangeDays    int         `json:"max_query_range_days"`
}

// ForRole maps a role to its permissions. A pure switch over the closed enum:
// owner and admin get full visibility, members see their own plus basic
// organization logs, guests have no audit access.
func ForRole(tenant id.TenantID, role Role) Permissions {
	switch role {
	case RoleOwner, RoleAdmin:
		return Permissions{
			TenantID:             tenant,
			CanView:              true,
			CanViewSystemActions: true,
			CanViewSensitiveData: true,
			CanViewTechnicalData: true,
			MaxExportRows:        adminExportLimit,
			MaxQueryRangeDays:    adminQueryRangeDays,
		}
	case RoleMember:
		return Permissions{
			TenantID:          tenant,
			CanView:           true,
			MaxExportRows:     regularExportLimit,
			MaxQueryRangeDays: regularQueryRangeDays,
		}
	default:
		// Guests and anything unrecognized: no audit access.
		return Permissions{TenantID: tenant}
	}
}

// Denied is the fail-closed permission set: every capability off. The tenant
// id is kept when it could be derived so callers are never left with both an
// unknown tenant and elevated access.
func Denied(tenant id.TenantID) Permissions {
	return Permissions{TenantID: tenant}
}

// HasOrganizationWideView reports whether the caller may see other actors'
// entries. Roles without it are narrowed to their own actions.
func (p Permissions) HasOrganizationWideView() bool {
	return p.CanViewSystemActions
}
