// api/enforce/enforcer.go
package enforce

import (
	"context"

	"github.com/warden-net/warden/api/model"
)

// Directive is one desired enforcement rule: a device and the action
// applied to its traffic. Directives are declarative; the enforcer
// owns translating them into firewall primitives.
type Directive struct {
	MAC    string       `json:"mac"`
	Action model.Action `json:"action"`
}

// Enforcer is the boundary to the enforcement primitive. Implementations
// must be idempotent: applying a directive that is already in place is
// a no-op, removing an absent one succeeds.
type Enforcer interface {
	ApplyDirective(ctx context.Context, d Directive) error
	RemoveDirective(ctx context.Context, mac string) error
	ListDirectives(ctx context.Context) ([]Directive, error)
}

// Enforceable reports whether an action needs a standing firewall
// rule. Allow and log-only resolve to the absence of a rule: the
// default forwarding posture already passes traffic, and logging
// happens at decision time, not in the packet path.
func Enforceable(a model.Action) bool {
	switch a {
	case model.ActionBlock, model.ActionQuarantine, model.ActionRateLimit:
		return true
	}
	return false
}
