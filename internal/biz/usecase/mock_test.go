package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/groupguard/groupguard/internal/biz/domain"
	"github.com/groupguard/groupguard/internal/biz/repo"
)

// Mock implementations

type mockPlatform struct {
	mu    sync.Mutex
	calls []string
	sent  map[string][]string // group or user -> texts
	fail  map[string]error    // op -> error
	image []byte
}

func newMockPlatform() *mockPlatform {
	return &mockPlatform{
		sent: make(map[string][]string),
		fail: make(map[string]error),
	}
}

func (m *mockPlatform) record(op string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, op)
	if err, ok := m.fail[op]; ok {
		return &repo.ActionError{Op: op, Kind: repo.ErrPermissionDenied, Err: err}
	}
	return nil
}

func (m *mockPlatform) called(op string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.calls {
		if c == op {
			return true
		}
	}
	return false
}

func (m *mockPlatform) texts(to string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent[to]
}

func (m *mockPlatform) RecallMessage(ctx context.Context, groupID, messageID string) error {
	return m.record("recall")
}

func (m *mockPlatform) MuteUser(ctx context.Context, groupID, userID string, d time.Duration) error {
	return m.record("mute_user")
}

func (m *mockPlatform) UnmuteUser(ctx context.Context, groupID, userID string) error {
	return m.record("unmute_user")
}

func (m *mockPlatform) MuteGroup(ctx context.Context, groupID string, enabled bool) error {
	return m.record("mute_group")
}

func (m *mockPlatform) KickUser(ctx context.Context, groupID, userID string, block bool) error {
	return m.record("kick_user")
}

func (m *mockPlatform) SendGroupMessage(ctx context.Context, groupID, text string) error {
	if err := m.record("send_group"); err != nil {
		return err
	}
	m.mu.Lock()
	m.sent[groupID] = append(m.sent[groupID], text)
	m.mu.Unlock()
	return nil
}

func (m *mockPlatform) SendGroupMessageMentionAll(ctx context.Context, groupID, text string) error {
	if err := m.record("send_group_all"); err != nil {
		return err
	}
	m.mu.Lock()
	m.sent[groupID] = append(m.sent[groupID], text)
	m.mu.Unlock()
	return nil
}

func (m *mockPlatform) SendDirectMessage(ctx context.Context, userID, text string) error {
	if err := m.record("send_direct"); err != nil {
		return err
	}
	m.mu.Lock()
	m.sent[userID] = append(m.sent[userID], text)
	m.mu.Unlock()
	return nil
}

func (m *mockPlatform) FetchImage(ctx context.Context, msg *domain.Message, ref domain.ImageRef) ([]byte, error) {
	if err := m.record("fetch_image"); err != nil {
		return nil, err
	}
	return m.image, nil
}

type mockMuteRepo struct {
	mutes map[string]*domain.ActiveMute
}

func newMockMuteRepo() *mockMuteRepo {
	return &mockMuteRepo{mutes: make(map[string]*domain.ActiveMute)}
}

func (m *mockMuteRepo) SaveMute(ctx context.Context, mute *domain.ActiveMute) error {
	m.mutes[mute.GroupID+"/"+mute.UserID] = mute
	return nil
}

func (m *mockMuteRepo) DueMutes(ctx context.Context, now time.Time) ([]*domain.ActiveMute, error) {
	var due []*domain.ActiveMute
	for _, mute := range m.mutes {
		if mute.IsDue(now) {
			due = append(due, mute)
		}
	}
	return due, nil
}

func (m *mockMuteRepo) ListMutes(ctx context.Context, groupID string) ([]*domain.ActiveMute, error) {
	var out []*domain.ActiveMute
	for _, mute := range m.mutes {
		if groupID == "" || mute.GroupID == groupID {
			out = append(out, mute)
		}
	}
	return out, nil
}

func (m *mockMuteRepo) DeleteMute(ctx context.Context, groupID, userID string) error {
	delete(m.mutes, groupID+"/"+userID)
	return nil
}

type mockOverrideRepo struct {
	overrides map[string]domain.PolicyOverride
	err       error
}

func (m *mockOverrideRepo) GetOverride(ctx context.Context, groupID string) (domain.PolicyOverride, error) {
	if m.err != nil {
		return domain.PolicyOverride{}, m.err
	}
	return m.overrides[groupID], nil
}

func (m *mockOverrideRepo) SaveOverride(ctx context.Context, groupID string, o domain.PolicyOverride) error {
	if m.overrides == nil {
		m.overrides = make(map[string]domain.PolicyOverride)
	}
	m.overrides[groupID] = o
	return nil
}

func (m *mockOverrideRepo) DeleteOverride(ctx context.Context, groupID string) error {
	delete(m.overrides, groupID)
	return nil
}

func (m *mockOverrideRepo) ListOverrides(ctx context.Context) (map[string]domain.PolicyOverride, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.overrides, nil
}

// staticPolicies resolves every group to the same policy
type staticPolicies struct {
	policy domain.Policy
	err    error
}

func (s staticPolicies) Resolve(ctx context.Context, groupID string) (domain.Policy, error) {
	return s.policy, s.err
}

// gatedPolicies blocks the first Resolve call until release is closed
type gatedPolicies struct {
	policy  domain.Policy
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedPolicies) Resolve(ctx context.Context, groupID string) (domain.Policy, error) {
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.entered)
		<-g.release
	}
	return g.policy, nil
}

// panickyPolicies panics on resolution
type panickyPolicies struct{}

func (panickyPolicies) Resolve(ctx context.Context, groupID string) (domain.Policy, error) {
	panic("boom")
}

type mockClassifier struct {
	text     domain.Verdict
	textErr  error
	image    domain.Verdict
	imageErr error
	delay    time.Duration
	ruleIDs  []string
}

func (m *mockClassifier) wait(ctx context.Context) error {
	if m.delay == 0 {
		return nil
	}
	select {
	case <-time.After(m.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *mockClassifier) ClassifyText(ctx context.Context, text, ruleID string) (domain.Verdict, error) {
	m.ruleIDs = append(m.ruleIDs, ruleID)
	if err := m.wait(ctx); err != nil {
		return domain.Verdict{}, err
	}
	return m.text, m.textErr
}

func (m *mockClassifier) ClassifyImage(ctx context.Context, image []byte, ruleID string) (domain.Verdict, error) {
	m.ruleIDs = append(m.ruleIDs, ruleID)
	if err := m.wait(ctx); err != nil {
		return domain.Verdict{}, err
	}
	return m.image, m.imageErr
}

var errBoom = errors.New("boom")

func testPolicy() domain.Policy {
	p := domain.DefaultPolicy
	p.NotifyGroupID = "notify"
	return p
}

func groupUser(i int) string {
	return fmt.Sprintf("user-%d", i)
}
