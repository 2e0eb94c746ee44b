package privacy

import (
	"context"
	"errors"
	"fmt"

	"github.com/syssam/fluent"
)

// Policy decision sentinel errors. Rules return them, possibly wrapped,
// and they are matched with errors.Is:
//
//	if errors.Is(err, privacy.Deny) { ... }
var (
	// Allow terminates the evaluation with an allow decision.
	Allow = errors.New("fluent/privacy: allow rule")

	// Deny terminates the evaluation with a deny decision. A denied
	// operation returns the decision to the caller.
	Deny = errors.New("fluent/privacy: deny rule")

	// Skip continues the evaluation with the next rule.
	Skip = errors.New("fluent/privacy: skip rule")
)

// Allowf returns a formatted wrapped Allow decision.
func Allowf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Allow)...)
}

// Denyf returns a formatted wrapped Deny decision.
func Denyf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Deny)...)
}

// Skipf returns a formatted wrapped Skip decision.
func Skipf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Skip)...)
}

// AlwaysAllowRule returns a rule that always returns an Allow decision.
func AlwaysAllowRule() QueryMutationRule {
	return fixedDecision{Allow}
}

// AlwaysDenyRule returns a rule that always returns a Deny decision.
func AlwaysDenyRule() QueryMutationRule {
	return fixedDecision{Deny}
}

// ContextQueryMutationRule creates a query/mutation rule from a context evaluation function.
// Returning nil from eval is equivalent to returning Skip.
func ContextQueryMutationRule(eval func(context.Context) error) QueryMutationRule {
	return contextDecision{eval}
}

type (
	// QueryRule decides whether a query is allowed and may narrow it.
	QueryRule interface {
		EvalQuery(context.Context, *fluent.Query) error
	}

	// QueryPolicy combines multiple query rules into a single policy.
	QueryPolicy []QueryRule

	// MutationRule decides whether a mutation is allowed.
	MutationRule interface {
		EvalMutation(context.Context, fluent.Mutation) error
	}

	// MutationPolicy combines multiple mutation rules into a single policy.
	MutationPolicy []MutationRule

	// QueryMutationRule groups query and mutation rules.
	QueryMutationRule interface {
		QueryRule
		MutationRule
	}
)

// QueryRuleFunc type is an adapter which allows the use of
// ordinary functions as query rules.
type QueryRuleFunc func(context.Context, *fluent.Query) error

// EvalQuery returns f(ctx, q).
func (f QueryRuleFunc) EvalQuery(ctx context.Context, q *fluent.Query) error {
	return f(ctx, q)
}

// MutationRuleFunc type is an adapter which allows the use of
// ordinary functions as mutation rules.
type MutationRuleFunc func(context.Context, fluent.Mutation) error

// EvalMutation returns f(ctx, m).
func (f MutationRuleFunc) EvalMutation(ctx context.Context, m fluent.Mutation) error {
	return f(ctx, m)
}

// OnMutationOperation evaluates the given rule only on a given mutation operation.
func OnMutationOperation(rule MutationRule, op fluent.Op) MutationRule {
	return MutationRuleFunc(func(ctx context.Context, m fluent.Mutation) error {
		if m.Op().Is(op) {
			return rule.EvalMutation(ctx, m)
		}
		return Skip
	})
}

// DenyMutationOperationRule returns a rule denying specified mutation operation.
func DenyMutationOperationRule(op fluent.Op) MutationRule {
	rule := MutationRuleFunc(func(_ context.Context, m fluent.Mutation) error {
		return Denyf("fluent/privacy: operation %s on %s is not allowed", m.Op(), m.Type())
	})
	return OnMutationOperation(rule, op)
}

// Policy groups query and mutation policies. It implements fluent.Policy
// and is installed on an entity with fluent.WithPolicy:
//
//	var Posts = fluent.MustNewEntity(func(p *Post) **int64 { return &p.ID },
//		fluent.WithPolicy(privacy.Policy{
//			Query:    privacy.QueryPolicy{privacy.OwnerFilter("author_id")},
//			Mutation: privacy.MutationPolicy{privacy.DenyIfNoViewer(), privacy.IsOwner("author_id"), privacy.AlwaysDenyRule()},
//		}),
//	)
type Policy struct {
	Query    QueryPolicy
	Mutation MutationPolicy
}

// EvalQuery evaluates the query policy. An Allow decision, or no decision,
// allows the query.
func (p Policy) EvalQuery(ctx context.Context, q *fluent.Query) error {
	if decision, ok := DecisionFromContext(ctx); ok {
		return decision
	}
	return final(p.Query.EvalQuery(ctx, q))
}

// EvalMutation evaluates the mutation policy. An Allow decision, or no
// decision, allows the mutation.
func (p Policy) EvalMutation(ctx context.Context, m fluent.Mutation) error {
	if decision, ok := DecisionFromContext(ctx); ok {
		return decision
	}
	return final(p.Mutation.EvalMutation(ctx, m))
}

func final(decision error) error {
	if errors.Is(decision, Allow) || errors.Is(decision, Skip) {
		return nil
	}
	return decision
}

// PolicyProvider is implemented by models and mixins that carry a policy.
type PolicyProvider interface {
	Policy() fluent.Policy
}

// NewPolicies combines the policies of the given providers. Providers
// returning a nil policy are ignored.
func NewPolicies(providers ...PolicyProvider) fluent.Policy {
	policies := make(Policies, 0, len(providers))
	for i := range providers {
		if policy := providers[i].Policy(); policy != nil {
			policies = append(policies, policy)
		}
	}
	return policies
}

// Policies combines multiple policies into a single policy.
type Policies []fluent.Policy

// EvalQuery evaluates the query policies. If the Allow error is returned
// from one of the policies, it stops the evaluation with a nil error.
func (policies Policies) EvalQuery(ctx context.Context, q *fluent.Query) error {
	return policies.eval(ctx, func(policy fluent.Policy) error {
		if p, ok := policy.(Policy); ok {
			return p.Query.EvalQuery(ctx, q)
		}
		return policy.EvalQuery(ctx, q)
	})
}

// EvalMutation evaluates the mutation policies. If the Allow error is returned
// from one of the policies, it stops the evaluation with a nil error.
func (policies Policies) EvalMutation(ctx context.Context, m fluent.Mutation) error {
	return policies.eval(ctx, func(policy fluent.Policy) error {
		if p, ok := policy.(Policy); ok {
			return p.Mutation.EvalMutation(ctx, m)
		}
		return policy.EvalMutation(ctx, m)
	})
}

func (policies Policies) eval(ctx context.Context, eval func(fluent.Policy) error) error {
	if decision, ok := DecisionFromContext(ctx); ok {
		return decision
	}
	for _, policy := range policies {
		switch decision := eval(policy); {
		case decision == nil || errors.Is(decision, Skip):
		case errors.Is(decision, Allow):
			return nil
		default:
			return decision
		}
	}
	return nil
}

// EvalQuery evaluates a query against a query policy.
func (policies QueryPolicy) EvalQuery(ctx context.Context, q *fluent.Query) error {
	for _, policy := range policies {
		switch decision := policy.EvalQuery(ctx, q); {
		case decision == nil || errors.Is(decision, Skip):
		default:
			return decision
		}
	}
	return nil
}

// EvalMutation evaluates a mutation against a mutation policy.
func (policies MutationPolicy) EvalMutation(ctx context.Context, m fluent.Mutation) error {
	for _, policy := range policies {
		switch decision := policy.EvalMutation(ctx, m); {
		case decision == nil || errors.Is(decision, Skip):
		default:
			return decision
		}
	}
	return nil
}

type decisionCtxKey struct{}

// DecisionContext creates a new context from the given parent context with
// a policy decision attached to it. Policies evaluated with the returned
// context return the decision without running their rules.
func DecisionContext(parent context.Context, decision error) context.Context {
	if decision == nil || errors.Is(decision, Skip) {
		return parent
	}
	return context.WithValue(parent, decisionCtxKey{}, decision)
}

// DecisionFromContext retrieves the policy decision from the context.
func DecisionFromContext(ctx context.Context) (error, bool) {
	decision, ok := ctx.Value(decisionCtxKey{}).(error)
	if ok && errors.Is(decision, Allow) {
		decision = nil
	}
	return decision, ok
}

type fixedDecision struct {
	decision error
}

func (f fixedDecision) EvalQuery(context.Context, *fluent.Query) error {
	return f.decision
}

func (f fixedDecision) EvalMutation(context.Context, fluent.Mutation) error {
	return f.decision
}

type contextDecision struct {
	eval func(context.Context) error
}

func (c contextDecision) EvalQuery(ctx context.Context, _ *fluent.Query) error {
	return c.eval(ctx)
}

func (c contextDecision) EvalMutation(ctx context.Context, _ fluent.Mutation) error {
	return c.eval(ctx)
}

// Filter narrows the rows affected by a query or mutation. Queries
// and the mutations of updates and deletes implement it.
type Filter interface {
	Where(...fluent.Filter)
}

// FilterFunc is an adapter that allows using ordinary functions as
// query/mutation rules that narrow the affected rows:
//
//	privacy.FilterFunc(func(ctx context.Context, f privacy.Filter) error {
//		f.Where(fluent.Filter{Field: "workspace_id", Method: fluent.MethodEQ, Value: workspaceID})
//		return privacy.Skip
//	})
type FilterFunc func(context.Context, Filter) error

// EvalQuery calls f(ctx, q).
func (f FilterFunc) EvalQuery(ctx context.Context, q *fluent.Query) error {
	return f(ctx, q)
}

// EvalMutation calls f(ctx, m) if the mutation can be filtered. Creates
// cannot, and are denied.
func (f FilterFunc) EvalMutation(ctx context.Context, m fluent.Mutation) error {
	fr, ok := m.(Filter)
	if !ok {
		return Denyf("fluent/privacy: %s on %s does not support filtering", m.Op(), m.Type())
	}
	return f(ctx, fr)
}

var (
	_ QueryMutationRule = FilterFunc(nil)
	_ fluent.Policy     = Policy{}
	_ fluent.Policy     = Policies(nil)
)
