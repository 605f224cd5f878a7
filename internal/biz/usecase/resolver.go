package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/groupguard/groupguard/internal/biz/domain"
	"github.com/groupguard/groupguard/internal/biz/repo"
)

// PolicySource resolves the effective policy of a group
type PolicySource interface {
	Resolve(ctx context.Context, groupID string) (domain.Policy, error)
}

// PolicyResolver layers group overrides on top of the global defaults.
// Precedence, lowest first: defaults, file overrides, stored overrides.
type PolicyResolver struct {
	defaults domain.Policy
	groups   map[string]domain.PolicyOverride
	store    repo.OverrideRepo
}

// NewPolicyResolver creates a resolver; store may be nil
func NewPolicyResolver(defaults domain.Policy, groups map[string]domain.PolicyOverride, store repo.OverrideRepo) *PolicyResolver {
	if groups == nil {
		groups = make(map[string]domain.PolicyOverride)
	}
	return &PolicyResolver{
		defaults: defaults,
		groups:   groups,
		store:    store,
	}
}

// Defaults returns the global default policy
func (r *PolicyResolver) Defaults() domain.Policy {
	return r.defaults
}

// Resolve returns the effective policy for a group.
// When the override store fails, the file-level policy is returned with the error.
func (r *PolicyResolver) Resolve(ctx context.Context, groupID string) (domain.Policy, error) {
	policy := domain.MergePolicy(r.defaults, r.groups[groupID])
	if r.store == nil {
		return policy, nil
	}

	stored, err := r.store.GetOverride(ctx, groupID)
	if err != nil {
		return policy, fmt.Errorf("load override for group %s: %w", groupID, err)
	}
	return domain.MergePolicy(policy, stored), nil
}

// Override returns the combined file and stored override of a group
func (r *PolicyResolver) Override(ctx context.Context, groupID string) (domain.PolicyOverride, error) {
	o := r.groups[groupID]
	if r.store == nil {
		return o, nil
	}
	stored, err := r.store.GetOverride(ctx, groupID)
	if err != nil {
		return o, fmt.Errorf("load override for group %s: %w", groupID, err)
	}
	return o.Merge(stored), nil
}

// MaxWindow returns the widest counting window any group can use
func (r *PolicyResolver) MaxWindow(ctx context.Context) time.Duration {
	widest := r.defaults.TimeWindow
	for _, o := range r.groups {
		if o.TimeWindow != nil && *o.TimeWindow > widest {
			widest = *o.TimeWindow
		}
	}
	if r.store == nil {
		return widest
	}

	stored, err := r.store.ListOverrides(ctx)
	if err != nil {
		return widest
	}
	for _, o := range stored {
		if o.TimeWindow != nil && *o.TimeWindow > widest {
			widest = *o.TimeWindow
		}
	}
	return widest
}
