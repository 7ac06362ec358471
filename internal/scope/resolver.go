package scope

import (
	"context"
	"log/slog"
	"time"

	"sentra/internal/audit"
	id "sentra/pkg/domain"
	dErrors "sentra/pkg/domain-errors"
)

const defaultCacheTTL = 2 * time.Minute

// Identity is what the external identity service reports for a user.
type Identity struct {
	TenantID id.TenantID
	Role     Role
}

// IdentityLookup resolves a user to their tenant and role. The implementation
// is an external collaborator; the resolver only assumes it is pure.
type IdentityLookup interface {
	Lookup(ctx context.Context, userID id.UserID) (Identity, error)
}

// LookupFunc adapts a function to the IdentityLookup interface.
type LookupFunc func(ctx context.Context, userID id.UserID) (Identity, error)

func (f LookupFunc) Lookup(ctx context.Context, userID id.UserID) (Identity, error) {
	return f(ctx, userID)
}

// Resolver derives ScopedPermissions and applies them to filters and
// individual entries.
type Resolver struct {
	lookup IdentityLookup
	cache  Cache
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

type ResolverOption func(*Resolver)

func WithCache(cache Cache, ttl time.Duration) ResolverOption {
	return func(r *Resolver) {
		r.cache = cache
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

func WithLogger(logger *slog.Logger) ResolverOption {
	return func(r *Resolver) { r.logger = logger }
}

func NewResolver(lookup IdentityLookup, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		lookup: lookup,
		ttl:    defaultCacheTTL,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve computes the caller's permissions. It never returns an error: any
// failure along the way degrades to the fail-closed Denied set so a lookup
// outage can only ever reduce visibility.
func (r *Resolver) Resolve(ctx context.Context, userID id.UserID) Permissions {
	if r.cache != nil {
		if perms, ok, err := r.cache.Get(ctx, userID); err == nil && ok {
			return perms
		}
	}

	identity, err := r.lookup.Lookup(ctx, userID)
	if err != nil {
		r.logger.WarnContext(ctx, "identity lookup failed, denying audit access",
			"user_id", userID.String(), "error", err)
		return Denied(identity.TenantID)
	}

	perms := ForRole(identity.TenantID, identity.Role)
	if r.cache != nil {
		if err := r.cache.Set(ctx, userID, perms, r.ttl); err != nil {
			r.logger.WarnContext(ctx, "permission cache write failed",
				"user_id", userID.String(), "error", err)
		}
	}
	return perms
}

// Invalidate drops the cached permissions for a user, called when the
// identity service signals a role or tenant change.
func (r *Resolver) Invalidate(ctx context.Context, userID id.UserID) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Invalidate(ctx, userID); err != nil {
		r.logger.WarnContext(ctx, "permission cache invalidation failed",
			"user_id", userID.String(), "error", err)
	}
}

// ScopeFilter narrows a requested filter to what the caller may see. A
// requested tenant that differs from the caller's own is an explicit
// cross-tenant error, not a silent empty result; everything else is narrowed
// silently.
func (r *Resolver) ScopeFilter(ctx context.Context, userID id.UserID, requested audit.Filter) (audit.Filter, error) {
	perms := r.Resolve(ctx, userID)

	if !perms.CanView {
		return audit.Filter{}, dErrors.New(dErrors.CodeAccessDenied, "access denied to audit logs")
	}
	if !requested.TenantID.IsNil() && requested.TenantID != perms.TenantID {
		return audit.Filter{}, dErrors.New(dErrors.CodeCrossTenant, "access denied to audit logs")
	}

	scoped := requested
	scoped.TenantID = perms.TenantID

	// Roles without organization-wide visibility only ever see their own
	// actions, whatever actor the request named.
	if !perms.HasOrganizationWideView() {
		caller := userID
		scoped.ActorID = &caller
	}
	if !perms.CanViewSystemActions {
		scoped.IncludeSystemActions = false
	}

	scoped = clampDateRange(scoped, perms, r.now())
	return scoped.Normalized(), nil
}

// clampDateRange enforces the role's history ceiling: the effective range
// never starts before now minus MaxQueryRangeDays.
func clampDateRange(f audit.Filter, perms Permissions, now time.Time) audit.Filter {
	if perms.MaxQueryRangeDays <= 0 {
		return f
	}
	floor := now.AddDate(0, 0, -perms.MaxQueryRangeDays)
	if f.DateFrom == nil || f.DateFrom.Before(floor) {
		f.DateFrom = &floor
	}
	return f
}

// CanAccessEntry implements record-level authorization: same tenant is
// mandatory; callers see their own actions whatever their role grants;
// another actor's action or a system-generated one requires system-action
// visibility.
func (r *Resolver) CanAccessEntry(ctx context.Context, userID id.UserID, event audit.Event) bool {
	perms := r.Resolve(ctx, userID)

	if event.TenantID != perms.TenantID {
		return false
	}
	if event.ActorID != nil && *event.ActorID == userID {
		return true
	}
	return perms.CanView && perms.CanViewSystemActions
}
