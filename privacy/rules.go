package privacy

import (
	"context"
	"fmt"
	"slices"

	"github.com/syssam/fluent"
)

// Viewer represents the authenticated user making a request.
type Viewer interface {
	// GetID returns the viewer's unique identifier.
	GetID() string
	// GetRoles returns the viewer's roles.
	GetRoles() []string
	// GetTenantID returns the viewer's tenant identifier, or "" if
	// tenancy does not apply.
	GetTenantID() string
}

type viewerCtxKey struct{}

// WithViewer returns a new context with the viewer attached.
func WithViewer(ctx context.Context, viewer Viewer) context.Context {
	return context.WithValue(ctx, viewerCtxKey{}, viewer)
}

// ViewerFromContext retrieves the viewer from the context.
// Returns nil if no viewer is present.
func ViewerFromContext(ctx context.Context) Viewer {
	v, _ := ctx.Value(viewerCtxKey{}).(Viewer)
	return v
}

// SimpleViewer is a basic implementation of the Viewer interface.
type SimpleViewer struct {
	UserID   string
	Roles    []string
	TenantID string
}

// GetID returns the user ID.
func (v *SimpleViewer) GetID() string { return v.UserID }

// GetRoles returns the user's roles.
func (v *SimpleViewer) GetRoles() []string { return v.Roles }

// GetTenantID returns the tenant ID.
func (v *SimpleViewer) GetTenantID() string { return v.TenantID }

// DenyIfNoViewer returns a rule that denies access if no viewer is present in the context.
// It is typically the first rule of a policy.
func DenyIfNoViewer() QueryMutationRule {
	return ContextQueryMutationRule(func(ctx context.Context) error {
		if ViewerFromContext(ctx) == nil {
			return Denyf("fluent/privacy: viewer required")
		}
		return Skip
	})
}

// HasRole returns a rule that allows access if the viewer has the specified role,
// and skips otherwise.
func HasRole(role string) QueryMutationRule {
	return HasAnyRole(role)
}

// HasAnyRole returns a rule that allows access if the viewer has any of the
// specified roles, and skips otherwise.
func HasAnyRole(roles ...string) QueryMutationRule {
	return ContextQueryMutationRule(func(ctx context.Context) error {
		viewer := ViewerFromContext(ctx)
		if viewer == nil {
			return Skip
		}
		viewerRoles := viewer.GetRoles()
		for _, role := range roles {
			if slices.Contains(viewerRoles, role) {
				return Allow
			}
		}
		return Skip
	})
}

// IsOwner returns a mutation rule that allows the mutation if the value of
// field matches the viewer's ID. For deletes the value held by the model
// is compared.
//
//	privacy.MutationPolicy{
//		privacy.DenyIfNoViewer(),
//		privacy.IsOwner("user_id"),
//		privacy.AlwaysDenyRule(),
//	}
func IsOwner(field string) MutationRule {
	return MutationRuleFunc(func(ctx context.Context, m fluent.Mutation) error {
		viewer := ViewerFromContext(ctx)
		if viewer == nil {
			return Skip
		}
		value, ok := m.Field(field)
		if !ok || value == nil {
			return Skip
		}
		if text(value) == viewer.GetID() {
			return Allow
		}
		return Skip
	})
}

// OwnerQueryRule returns a query rule that denies queries without a viewer.
// Combine it with OwnerFilter to restrict the rows.
func OwnerQueryRule() QueryRule {
	return QueryRuleFunc(func(ctx context.Context, _ *fluent.Query) error {
		if ViewerFromContext(ctx) == nil {
			return Denyf("fluent/privacy: viewer required for owner-filtered query")
		}
		return Skip
	})
}

// OwnerFilter returns a rule restricting queries, updates and deletes to
// the rows whose field equals the viewer's ID. It denies when no viewer
// is present.
func OwnerFilter(field string) QueryMutationRule {
	return FilterFunc(func(ctx context.Context, f Filter) error {
		viewer := ViewerFromContext(ctx)
		if viewer == nil {
			return Denyf("fluent/privacy: viewer required for owner-filtered %s", field)
		}
		f.Where(fluent.Filter{Field: field, Method: fluent.MethodEQ, Value: viewer.GetID()})
		return Skip
	})
}

// TenantRule returns a mutation rule that allows access if the viewer's tenant
// matches the value of field, and denies on mismatch.
func TenantRule(field string) MutationRule {
	return MutationRuleFunc(func(ctx context.Context, m fluent.Mutation) error {
		viewer := ViewerFromContext(ctx)
		if viewer == nil {
			return Skip
		}
		tenant := viewer.GetTenantID()
		if tenant == "" {
			return Skip
		}
		value, ok := m.Field(field)
		if !ok || value == nil {
			return Skip
		}
		if text(value) == tenant {
			return Allow
		}
		return Denyf("fluent/privacy: tenant mismatch")
	})
}

// TenantQueryRule returns a query rule that denies queries if no viewer
// or tenant is present.
func TenantQueryRule() QueryRule {
	return QueryRuleFunc(func(ctx context.Context, _ *fluent.Query) error {
		viewer := ViewerFromContext(ctx)
		if viewer == nil {
			return Denyf("fluent/privacy: viewer required for tenant-filtered query")
		}
		if viewer.GetTenantID() == "" {
			return Denyf("fluent/privacy: tenant required")
		}
		return Skip
	})
}

// TenantFilter returns a rule restricting queries, updates and deletes to
// the viewer's tenant.
func TenantFilter(field string) QueryMutationRule {
	return FilterFunc(func(ctx context.Context, f Filter) error {
		viewer := ViewerFromContext(ctx)
		if viewer == nil || viewer.GetTenantID() == "" {
			return Denyf("fluent/privacy: tenant required")
		}
		f.Where(fluent.Filter{Field: field, Method: fluent.MethodEQ, Value: viewer.GetTenantID()})
		return Skip
	})
}

// AllowMutationOperationRule returns a rule allowing specified mutation operation.
func AllowMutationOperationRule(op fluent.Op) MutationRule {
	rule := MutationRuleFunc(func(context.Context, fluent.Mutation) error {
		return Allow
	})
	return OnMutationOperation(rule, op)
}

func text(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}
