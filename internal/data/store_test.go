package data

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groupguard/groupguard/internal/biz/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "nested", "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_Overrides(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	o, err := store.GetOverride(ctx, "g1")
	require.NoError(t, err)
	assert.True(t, o.IsEmpty(), "missing override should be empty")

	threshold := 5
	ruleID := "strict"
	window := 10 * time.Minute
	want := domain.PolicyOverride{
		SingleUserThreshold: &threshold,
		RuleID:              &ruleID,
		TimeWindow:          &window,
	}
	require.NoError(t, store.SaveOverride(ctx, "g1", want))

	got, err := store.GetOverride(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// Replace
	threshold = 7
	require.NoError(t, store.SaveOverride(ctx, "g1", domain.PolicyOverride{SingleUserThreshold: &threshold}))
	got, err = store.GetOverride(ctx, "g1")
	require.NoError(t, err)
	require.NotNil(t, got.SingleUserThreshold)
	assert.Equal(t, 7, *got.SingleUserThreshold)
	assert.Nil(t, got.RuleID)

	require.NoError(t, store.SaveOverride(ctx, "g2", domain.PolicyOverride{RuleID: &ruleID}))
	all, err := store.ListOverrides(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, store.DeleteOverride(ctx, "g1"))
	all, err = store.ListOverrides(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
	assert.Contains(t, all, "g2")
}

func TestStore_Mutes(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	now := time.Unix(1_700_000_000, 0)

	require.NoError(t, store.SaveMute(ctx, &domain.ActiveMute{GroupID: "g1", UserID: "u1", Until: now.Add(time.Minute), CreatedAt: now}))
	require.NoError(t, store.SaveMute(ctx, &domain.ActiveMute{GroupID: "g1", UserID: "u2", Until: now.Add(time.Hour), CreatedAt: now}))
	require.NoError(t, store.SaveMute(ctx, &domain.ActiveMute{GroupID: "g2", UserID: "u1", Until: now.Add(-time.Second), CreatedAt: now}))

	due, err := store.DueMutes(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "g2", due[0].GroupID)

	due, err = store.DueMutes(ctx, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Len(t, due, 2, "deadline is inclusive")

	g1, err := store.ListMutes(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, g1, 2)
	assert.Equal(t, "u1", g1[0].UserID, "ordered by deadline")

	all, err := store.ListMutes(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	require.NoError(t, store.DeleteMute(ctx, "g2", "u1"))
	all, err = store.ListMutes(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestStore_SaveMuteKeepsLaterDeadline(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	now := time.Unix(1_700_000_000, 0)

	require.NoError(t, store.SaveMute(ctx, &domain.ActiveMute{GroupID: "g", UserID: "u", Until: now.Add(time.Hour), CreatedAt: now}))
	require.NoError(t, store.SaveMute(ctx, &domain.ActiveMute{GroupID: "g", UserID: "u", Until: now.Add(time.Minute), CreatedAt: now}))

	mutes, err := store.ListMutes(ctx, "g")
	require.NoError(t, err)
	require.Len(t, mutes, 1)
	assert.True(t, mutes[0].Until.Equal(now.Add(time.Hour)))

	require.NoError(t, store.SaveMute(ctx, &domain.ActiveMute{GroupID: "g", UserID: "u", Until: now.Add(2 * time.Hour), CreatedAt: now}))
	mutes, err = store.ListMutes(ctx, "g")
	require.NoError(t, err)
	assert.True(t, mutes[0].Until.Equal(now.Add(2*time.Hour)))
}
