package rbac

import (
	"context"
	"strings"
)

// Checker answers whether a role holds a permission under a policy map.
// Permissions are "resource:action" strings; a policy entry may end in "*"
// to grant a whole resource, and the bare "*" grants everything.
type Checker struct {
	policy map[string][]string
}

// NewChecker builds a Checker over the given policy, falling back to the
// built-in RolePermissions when policy is nil.
func NewChecker(policy map[string][]string) *Checker {
	if policy == nil {
		policy = RolePermissions
	}
	return &Checker{policy: policy}
}

func (c *Checker) Has(role, perm string) bool {
	for _, granted := range c.policy[role] {
		if granted == "*" || granted == perm {
			return true
		}
		if strings.HasSuffix(granted, "*") && strings.HasPrefix(perm, strings.TrimSuffix(granted, "*")) {
			return true
		}
	}
	return false
}

// ---- role in context ----

type ctxKey struct{}

var ctxKeyRole = ctxKey{}

func WithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, ctxKeyRole, role)
}

// RoleFromContext returns the role attached by the auth middleware, or ""
// for unauthenticated requests.
func RoleFromContext(ctx context.Context) string {
	s, _ := ctx.Value(ctxKeyRole).(string)
	return s
}
