package usecase

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groupguard/groupguard/internal/biz/domain"
)

func newTestEngine(p domain.Policy) *EscalationEngine {
	return NewEscalationEngine(staticPolicies{policy: p}, domain.DefaultPolicy, NewViolationLedger(), nil)
}

func scenarioPolicy() domain.Policy {
	return domain.Policy{
		RuleID:              "r1",
		SingleUserThreshold: 3,
		KickThreshold:       5,
		GroupThreshold:      5,
		TimeWindow:          300 * time.Second,
		MuteDuration:        86400 * time.Second,
	}
}

func TestEvaluate_MuteThenKick(t *testing.T) {
	assert := assert.New(t)

	e := newTestEngine(scenarioPolicy())
	ctx := context.Background()
	t0 := time.Unix(1_700_000_000, 0)
	bad := domain.NonCompliant("spam")

	for i := 1; i <= 2; i++ {
		d := e.Evaluate(ctx, bad, "G", "U", domain.ContentText, t0.Add(time.Duration(i)*time.Second))
		assert.Equal(domain.ActionRecallAndNotify, d.Action)
		assert.Empty(d.Punishments, "call %d", i)
	}

	d := e.Evaluate(ctx, bad, "G", "U", domain.ContentText, t0.Add(3*time.Second))
	assert.Equal([]domain.Punishment{domain.MuteUser(86400 * time.Second)}, d.Punishments)
	assert.Equal(3, d.UserCount)

	e.Evaluate(ctx, bad, "G", "U", domain.ContentText, t0.Add(4*time.Second))
	d = e.Evaluate(ctx, bad, "G", "U", domain.ContentText, t0.Add(5*time.Second))

	assert.True(d.Has(domain.PunishKickUser))
	assert.False(d.Has(domain.PunishMuteUser))
	kick, _ := d.Punishment(domain.PunishKickUser)
	assert.False(kick.Block)
	// Five violations of a single user also meet the group threshold
	assert.True(d.Has(domain.PunishMuteGroup))
}

func TestEvaluate_GroupThresholdAcrossUsers(t *testing.T) {
	assert := assert.New(t)

	e := newTestEngine(scenarioPolicy())
	ctx := context.Background()
	t0 := time.Unix(1_700_000_000, 0)

	var d domain.Decision
	for i := 1; i <= 5; i++ {
		d = e.Evaluate(ctx, domain.NonCompliant("ad"), "G", groupUser(i), domain.ContentImage, t0.Add(time.Duration(i)*time.Second))
		if i < 5 {
			assert.False(d.Has(domain.PunishMuteGroup), "event %d", i)
		}
	}

	assert.Equal([]domain.Punishment{domain.MuteGroup()}, d.Punishments)
	assert.Equal(5, d.GroupCount)
	assert.Equal(1, d.UserCount)
}

func TestEvaluate_GroupAndUserTiersTogether(t *testing.T) {
	p := scenarioPolicy()
	p.GroupThreshold = 3
	e := newTestEngine(p)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)

	var d domain.Decision
	for i := 0; i < 3; i++ {
		d = e.Evaluate(ctx, domain.NonCompliant("x"), "G", "U", domain.ContentText, now)
	}

	assert.True(t, d.Has(domain.PunishMuteUser))
	assert.True(t, d.Has(domain.PunishMuteGroup))
}

func TestEvaluate_ZeroThresholdDisablesTier(t *testing.T) {
	p := scenarioPolicy()
	p.KickThreshold = 0
	p.GroupThreshold = 0
	e := newTestEngine(p)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)

	var d domain.Decision
	for i := 0; i < 100; i++ {
		d = e.Evaluate(ctx, domain.NonCompliant("x"), "G", "U", domain.ContentText, now)
		assert.False(t, d.Has(domain.PunishKickUser))
		assert.False(t, d.Has(domain.PunishMuteGroup))
	}
	assert.Equal(t, 100, d.UserCount)
	assert.True(t, d.Has(domain.PunishMuteUser))
}

func TestEvaluate_WindowExpiry(t *testing.T) {
	assert := assert.New(t)

	p := scenarioPolicy()
	p.SingleUserThreshold = 2
	e := newTestEngine(p)
	ctx := context.Background()
	t0 := time.Unix(1_700_000_000, 0)

	e.Evaluate(ctx, domain.NonCompliant("x"), "G", "U", domain.ContentText, t0)
	d := e.Evaluate(ctx, domain.NonCompliant("x"), "G", "U", domain.ContentText, t0.Add(301*time.Second))

	assert.Equal(1, d.UserCount)
	assert.Empty(d.Punishments)
}

func TestEvaluate_NonPunitiveVerdictsLeaveLedgerUntouched(t *testing.T) {
	assert := assert.New(t)

	e := newTestEngine(scenarioPolicy())
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)

	cases := []struct {
		verdict domain.Verdict
		action  domain.Action
	}{
		{domain.Compliant(), domain.ActionNone},
		{domain.Suspicious("maybe"), domain.ActionNotifyOnly},
		{domain.ReviewFailed(errBoom), domain.ActionNotifyOwner},
	}
	for _, tc := range cases {
		for i := 0; i < 10; i++ {
			d := e.Evaluate(ctx, tc.verdict, "G", "U", domain.ContentText, now)
			assert.Equal(tc.action, d.Action, tc.verdict.Kind.String())
			assert.Empty(d.Punishments)
		}
	}

	users, groups := e.Ledger().Len()
	assert.Equal(0, users)
	assert.Equal(0, groups)
	assert.Equal(0, e.Ledger().CountUserViolations("G", "U", time.Hour, now))
}

func TestEvaluate_SuspiciousCarriesPolicy(t *testing.T) {
	p := scenarioPolicy()
	p.NotifyGroupID = "notify"
	e := newTestEngine(p)

	d := e.Evaluate(context.Background(), domain.Suspicious("maybe"), "G", "U", domain.ContentImage, time.Now())

	assert.Equal(t, "notify", d.Policy.NotifyGroupID)
	assert.Equal(t, domain.ContentImage, d.ContentType)
}

func TestEvaluate_PolicyErrorFallsBackToDefaults(t *testing.T) {
	assert := assert.New(t)

	e := NewEscalationEngine(staticPolicies{err: errBoom}, domain.DefaultPolicy, NewViolationLedger(), nil)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)

	var d domain.Decision
	for i := 0; i < domain.DefaultPolicy.SingleUserThreshold; i++ {
		d = e.Evaluate(ctx, domain.NonCompliant("x"), "G", "U", domain.ContentText, now)
	}

	require.Error(t, d.PolicyErr)
	assert.ErrorIs(d.PolicyErr, errBoom)
	assert.Equal(domain.DefaultPolicy, d.Policy)
	assert.Equal(domain.ActionRecallAndNotify, d.Action)
	assert.True(d.Has(domain.PunishMuteUser))
}

func TestEvaluate_StoreFailureKeepsFilePolicy(t *testing.T) {
	assert := assert.New(t)

	file := scenarioPolicy()
	file.NotifyGroupID = "admins"
	file.SingleUserThreshold = 1
	e := NewEscalationEngine(staticPolicies{policy: file, err: errBoom}, domain.DefaultPolicy, NewViolationLedger(), nil)

	d := e.Evaluate(context.Background(), domain.NonCompliant("x"), "G", "U", domain.ContentText, time.Now())

	assert.ErrorIs(d.PolicyErr, errBoom)
	assert.Equal(file, d.Policy)
	assert.True(d.Has(domain.PunishMuteUser))
}

func TestEvaluate_ConcurrentCallDuringResolve(t *testing.T) {
	assert := assert.New(t)

	p := scenarioPolicy()
	p.SingleUserThreshold = 2
	p.KickThreshold = 0
	p.GroupThreshold = 0
	policies := &gatedPolicies{policy: p, entered: make(chan struct{}), release: make(chan struct{})}
	e := NewEscalationEngine(policies, domain.DefaultPolicy, NewViolationLedger(), nil)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)

	first := make(chan domain.Decision)
	go func() {
		first <- e.Evaluate(ctx, domain.NonCompliant("x"), "G", "U", domain.ContentText, now)
	}()
	<-policies.entered

	second := e.Evaluate(ctx, domain.NonCompliant("x"), "G", "U", domain.ContentText, now)
	close(policies.release)
	d := <-first

	assert.Equal(1, second.UserCount)
	assert.Empty(second.Punishments)
	assert.Equal(2, d.UserCount)
	assert.Equal([]domain.Punishment{domain.MuteUser(p.MuteDuration)}, d.Punishments)
}

func TestEvaluate_ConcurrentCallsSeeDistinctCounts(t *testing.T) {
	p := scenarioPolicy()
	p.GroupThreshold = 0
	e := newTestEngine(p)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)

	const n = 5
	decisions := make([]domain.Decision, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			decisions[i] = e.Evaluate(ctx, domain.NonCompliant("x"), "G", "U", domain.ContentText, now)
		}(i)
	}
	wg.Wait()

	sort.Slice(decisions, func(i, j int) bool { return decisions[i].UserCount < decisions[j].UserCount })
	for i, d := range decisions {
		assert.Equal(t, i+1, d.UserCount)
	}
	assert.Empty(t, decisions[1].Punishments)
	assert.Equal(t, []domain.Punishment{domain.MuteUser(86400 * time.Second)}, decisions[2].Punishments)
	assert.True(t, decisions[4].Has(domain.PunishKickUser))
	assert.False(t, decisions[3].Has(domain.PunishKickUser))
}

func TestEvaluate_PanicStillRecalls(t *testing.T) {
	assert := assert.New(t)

	e := NewEscalationEngine(panickyPolicies{}, domain.DefaultPolicy, NewViolationLedger(), nil)
	d := e.Evaluate(context.Background(), domain.NonCompliant("x"), "G", "U", domain.ContentText, time.Now())

	assert.Equal(domain.ActionRecallAndNotify, d.Action)
	assert.Empty(d.Punishments)
	assert.Error(d.PolicyErr)
	assert.Equal(domain.DefaultPolicy, d.Policy)
}

func TestEvaluate_ResetOnPunish(t *testing.T) {
	assert := assert.New(t)

	p := scenarioPolicy()
	p.ResetOnPunish = true
	e := newTestEngine(p)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)

	var d domain.Decision
	for i := 0; i < 3; i++ {
		d = e.Evaluate(ctx, domain.NonCompliant("x"), "G", "U", domain.ContentText, now)
	}
	assert.True(d.Has(domain.PunishMuteUser))

	// The next violation starts a fresh count, so neither mute nor kick
	d = e.Evaluate(ctx, domain.NonCompliant("x"), "G", "U", domain.ContentText, now)
	assert.Equal(1, d.UserCount)
	assert.Empty(d.Punishments)
}

func TestEvaluateTiers(t *testing.T) {
	p := scenarioPolicy()

	tests := []struct {
		name  string
		user  int
		group int
		want  []domain.Punishment
	}{
		{"below all", 2, 2, nil},
		{"mute", 3, 3, []domain.Punishment{domain.MuteUser(p.MuteDuration)}},
		{"kick supersedes mute", 6, 1, []domain.Punishment{domain.KickUser(false)}},
		{"group only", 1, 5, []domain.Punishment{domain.MuteGroup()}},
		{"mute and group", 4, 9, []domain.Punishment{domain.MuteUser(p.MuteDuration), domain.MuteGroup()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EvaluateTiers(p, tt.user, tt.group))
		})
	}
}
