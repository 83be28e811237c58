package permission

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// ErrDenied is the sentinel wrapped by every permission failure.
var ErrDenied = errors.New("permission denied")

// DeniedError carries the decision context of a denial.
type DeniedError struct {
	Role     string
	Resource string
	Op       Op
	Reason   string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("permission denied: role %q, resource %q, op %q: %s", e.Role, e.Resource, e.Op, e.Reason)
}

func (e *DeniedError) Unwrap() error {
	return ErrDenied
}

// Gate answers access questions against an immutable policy.
type Gate struct {
	policy *Policy
	logger *zap.Logger
}

// NewGate creates a gate. A nil policy uses DefaultPolicy.
func NewGate(policy *Policy, logger *zap.Logger) (*Gate, error) {
	if policy == nil {
		policy = DefaultPolicy()
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Gate{
		policy: policy,
		logger: logger,
	}, nil
}

// Check returns nil if role may perform op on resource, else a *DeniedError.
func (g *Gate) Check(role, resource string, op Op) error {
	if _, err := g.ruleFor(role, resource, op); err != nil {
		g.logger.Debug("access denied",
			zap.String("role", role),
			zap.String("resource", resource),
			zap.String("op", string(op)),
			zap.Error(err))
		return err
	}
	return nil
}

// ruleFor resolves the rule granting role access to resource for op.
func (g *Gate) ruleFor(role, resource string, op Op) (*Rule, error) {
	rules, ok := g.policy.Roles[role]
	if !ok {
		return nil, &DeniedError{Role: role, Resource: resource, Op: op, Reason: "unknown role"}
	}

	resource = strings.ToLower(strings.TrimSpace(resource))
	if resource == "" {
		return nil, &DeniedError{Role: role, Resource: resource, Op: op, Reason: "empty resource"}
	}

	for i := range rules {
		rule := &rules[i]
		if rule.Table != "*" && !strings.EqualFold(rule.Table, resource) {
			continue
		}
		if !opAllowed(rule, op) {
			return nil, &DeniedError{Role: role, Resource: resource, Op: op, Reason: "operation not granted"}
		}
		return rule, nil
	}

	return nil, &DeniedError{Role: role, Resource: resource, Op: op, Reason: "resource not granted"}
}

// opAllowed reports whether the rule grants op. Empty Ops means read only.
func opAllowed(rule *Rule, op Op) bool {
	if len(rule.Ops) == 0 {
		return op == OpRead
	}
	for _, granted := range rule.Ops {
		if granted == op {
			return true
		}
	}
	return false
}
