package auth

import (
	"context"
	"fmt"

	v1 "github.com/aevon-lab/eventbridge/internal/api/v1"
)

// Predicate decides whether a request may proceed. A non-nil error is the rejection reason.
// It receives a copy of the request and must treat it as read-only.
type Predicate func(ctx context.Context, req v1.Request) error

// AllowAll accepts every request.
func AllowAll(context.Context, v1.Request) error { return nil }

// PolicyConfig is the per-collection authorization config.
type PolicyConfig struct {
	// Anonymous allows requests without a user. Unset means allowed unless the
	// method lists roles.
	Anonymous *bool `koanf:"anonymous"`

	// Roles lists, per method, the roles of which a user needs at least one.
	// A method without roles is open to every user.
	Roles map[string][]string `koanf:"roles"`
}

// Policy is a role based rule set over the write methods.
type Policy struct {
	anonymous *bool
	allow     map[string]map[string]struct{}
}

// NewPolicy builds a policy from config. The zero config allows everything.
func NewPolicy(cfg PolicyConfig) *Policy {
	p := &Policy{anonymous: cfg.Anonymous, allow: make(map[string]map[string]struct{})}
	for method, roles := range cfg.Roles {
		if len(roles) == 0 {
			continue
		}
		set := make(map[string]struct{}, len(roles))
		for _, r := range roles {
			set[r] = struct{}{}
		}
		p.allow[method] = set
	}
	return p
}

// Police returns nil when user may run method, or the reason it may not.
func (p *Policy) Police(user *v1.User, method string) error {
	roles, restricted := p.allow[method]

	if user == nil {
		if p.anonymous != nil && !*p.anonymous {
			return fmt.Errorf("anonymous requests are not allowed")
		}
		if restricted {
			return fmt.Errorf("anonymous requests are not allowed to %s", method)
		}
		return nil
	}

	if !restricted {
		return nil
	}
	for _, r := range user.Roles {
		if _, ok := roles[r]; ok {
			return nil
		}
	}
	return fmt.Errorf("user %q is not allowed to %s", user.ID, method)
}

// Predicate adapts the policy to the pipeline's authorization hook.
func (p *Policy) Predicate() Predicate {
	return func(_ context.Context, req v1.Request) error {
		return p.Police(req.User, req.Method)
	}
}
