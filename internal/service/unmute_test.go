package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groupguard/groupguard/internal/biz/domain"
	"github.com/groupguard/groupguard/internal/biz/repo"
	"github.com/groupguard/groupguard/internal/biz/usecase"
)

func TestUnmuteRunner_LiftDue(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	mutes := newMockMuteRepo(
		&domain.ActiveMute{GroupID: "g1", UserID: "u1", Until: now.Add(-time.Minute), CreatedAt: now.Add(-time.Hour)},
		&domain.ActiveMute{GroupID: "g1", UserID: "u2", Until: now.Add(time.Minute), CreatedAt: now},
	)
	platform := &mockPlatform{}
	r := NewUnmuteRunner(platform, mutes, nil, nil, 0, 0, nil)
	r.now = func() time.Time { return now }

	assert.Equal(t, 1, r.LiftDue(context.Background()))
	assert.Equal(t, []string{"g1/u1"}, platform.unmuted)

	left, err := mutes.ListMutes(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "u2", left[0].UserID)
}

func TestUnmuteRunner_FailedLiftIsRetried(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	mutes := newMockMuteRepo(&domain.ActiveMute{GroupID: "g1", UserID: "u1", Until: now, CreatedAt: now})
	attempts := 0
	platform := &mockPlatform{unmuteFn: func(groupID, userID string) error {
		attempts++
		if attempts == 1 {
			return &repo.ActionError{Op: "unmute_user", Kind: repo.ErrNetwork, Err: errors.New("timeout")}
		}
		return nil
	}}
	r := NewUnmuteRunner(platform, mutes, nil, nil, 0, 0, nil)
	r.now = func() time.Time { return now }

	assert.Equal(t, 0, r.LiftDue(context.Background()))
	left, _ := mutes.ListMutes(context.Background(), "")
	assert.Len(t, left, 1, "mute stays queued after a network failure")

	assert.Equal(t, 1, r.LiftDue(context.Background()))
	left, _ = mutes.ListMutes(context.Background(), "")
	assert.Empty(t, left)
}

func TestUnmuteRunner_PermissionDeniedDrops(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	mutes := newMockMuteRepo(&domain.ActiveMute{GroupID: "g1", UserID: "u1", Until: now, CreatedAt: now})
	platform := &mockPlatform{unmuteFn: func(groupID, userID string) error {
		return &repo.ActionError{Op: "unmute_user", Kind: repo.ErrPermissionDenied, Err: errors.New("not admin")}
	}}
	r := NewUnmuteRunner(platform, mutes, nil, nil, 0, 0, nil)
	r.now = func() time.Time { return now }

	assert.Equal(t, 0, r.LiftDue(context.Background()))
	left, _ := mutes.ListMutes(context.Background(), "")
	assert.Empty(t, left)
}

func TestUnmuteRunner_DeleteFailureNotCounted(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	mutes := newMockMuteRepo(&domain.ActiveMute{GroupID: "g1", UserID: "u1", Until: now, CreatedAt: now})
	mutes.deleteErr = errors.New("database is locked")
	platform := &mockPlatform{}
	r := NewUnmuteRunner(platform, mutes, nil, nil, 0, 0, nil)
	r.now = func() time.Time { return now }

	assert.Equal(t, 0, r.LiftDue(context.Background()))
	left, _ := mutes.ListMutes(context.Background(), "")
	assert.Len(t, left, 1, "record stays queued")

	mutes.deleteErr = nil
	assert.Equal(t, 1, r.LiftDue(context.Background()))
	assert.Equal(t, []string{"g1/u1", "g1/u1"}, platform.unmuted)
}

func TestUnmuteRunner_Sweep(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	ledger := usecase.NewViolationLedger()
	ledger.RecordViolation("g1", "old", now.Add(-time.Hour))
	ledger.RecordViolation("g2", "new", now.Add(-time.Minute))

	r := NewUnmuteRunner(&mockPlatform{}, newMockMuteRepo(), ledger, fixedWindow(5*time.Minute), 0, 0, nil)
	r.now = func() time.Time { return now }

	assert.Equal(t, 2, r.Sweep(context.Background()), "idle user and group windows of g1")
	users, groups := ledger.Len()
	assert.Equal(t, 1, users)
	assert.Equal(t, 1, groups)
}

func TestUnmuteRunner_StartStop(t *testing.T) {
	mutes := newMockMuteRepo(&domain.ActiveMute{GroupID: "g1", UserID: "u1", Until: time.Now().Add(-time.Second), CreatedAt: time.Now()})
	platform := &mockPlatform{}
	r := NewUnmuteRunner(platform, mutes, nil, nil, time.Hour, time.Hour, nil)

	r.Start()
	r.Start()
	require.Eventually(t, func() bool {
		platform.mu.Lock()
		defer platform.mu.Unlock()
		return len(platform.unmuted) == 1
	}, time.Second, 10*time.Millisecond)
	r.Stop()
	r.Stop()
}
