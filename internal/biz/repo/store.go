package repo

import (
	"context"
	"time"

	"github.com/groupguard/groupguard/internal/biz/domain"
)

// OverrideRepo persists per-group policy overrides edited at runtime
type OverrideRepo interface {
	// GetOverride returns the stored override, or an empty one if none exists
	GetOverride(ctx context.Context, groupID string) (domain.PolicyOverride, error)

	// SaveOverride creates or replaces the override for a group
	SaveOverride(ctx context.Context, groupID string, o domain.PolicyOverride) error

	// DeleteOverride removes the override for a group
	DeleteOverride(ctx context.Context, groupID string) error

	// ListOverrides returns all stored overrides keyed by group
	ListOverrides(ctx context.Context) (map[string]domain.PolicyOverride, error)
}

// MuteRepo tracks timed user mutes until they are lifted
type MuteRepo interface {
	// SaveMute records (or extends) a mute
	SaveMute(ctx context.Context, m *domain.ActiveMute) error

	// DueMutes returns the mutes whose deadline is at or before now
	DueMutes(ctx context.Context, now time.Time) ([]*domain.ActiveMute, error)

	// ListMutes returns the active mutes of a group, or all groups when groupID is empty
	ListMutes(ctx context.Context, groupID string) ([]*domain.ActiveMute, error)

	// DeleteMute forgets a mute once it has been lifted
	DeleteMute(ctx context.Context, groupID, userID string) error
}
