package service

import (
	"context"
	"sync"
	"time"

	"github.com/groupguard/groupguard/internal/biz/domain"
	"github.com/groupguard/groupguard/internal/biz/usecase"
)

type mockReviewer struct {
	mu       sync.Mutex
	reviewed []string
	block    chan struct{}
	started  chan struct{}
}

func (m *mockReviewer) Review(ctx context.Context, msg *domain.Message) []usecase.Report {
	if m.started != nil {
		m.started <- struct{}{}
	}
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reviewed = append(m.reviewed, msg.ID)
	return []usecase.Report{{
		ContentType: domain.ContentText,
		Decision:    domain.Decision{Verdict: domain.Compliant()},
	}}
}

func (m *mockReviewer) ids() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.reviewed...)
}

type allowGroups map[string]bool

func (a allowGroups) GroupEnabled(groupID string) bool {
	return a[groupID]
}

type mockPlatform struct {
	mu       sync.Mutex
	unmuted  []string
	unmuteFn func(groupID, userID string) error
}

func (m *mockPlatform) RecallMessage(ctx context.Context, groupID, messageID string) error {
	return nil
}

func (m *mockPlatform) MuteUser(ctx context.Context, groupID, userID string, d time.Duration) error {
	return nil
}

func (m *mockPlatform) UnmuteUser(ctx context.Context, groupID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unmuteFn != nil {
		if err := m.unmuteFn(groupID, userID); err != nil {
			return err
		}
	}
	m.unmuted = append(m.unmuted, groupID+"/"+userID)
	return nil
}

func (m *mockPlatform) MuteGroup(ctx context.Context, groupID string, enabled bool) error {
	return nil
}

func (m *mockPlatform) KickUser(ctx context.Context, groupID, userID string, block bool) error {
	return nil
}

func (m *mockPlatform) SendGroupMessage(ctx context.Context, groupID, text string) error {
	return nil
}

func (m *mockPlatform) SendGroupMessageMentionAll(ctx context.Context, groupID, text string) error {
	return nil
}

func (m *mockPlatform) SendDirectMessage(ctx context.Context, userID, text string) error {
	return nil
}

func (m *mockPlatform) FetchImage(ctx context.Context, msg *domain.Message, ref domain.ImageRef) ([]byte, error) {
	return nil, nil
}

type mockMuteRepo struct {
	mu        sync.Mutex
	mutes     map[string]*domain.ActiveMute
	deleteErr error
}

func newMockMuteRepo(mutes ...*domain.ActiveMute) *mockMuteRepo {
	r := &mockMuteRepo{mutes: make(map[string]*domain.ActiveMute)}
	for _, m := range mutes {
		r.mutes[m.GroupID+"/"+m.UserID] = m
	}
	return r
}

func (r *mockMuteRepo) SaveMute(ctx context.Context, m *domain.ActiveMute) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mutes[m.GroupID+"/"+m.UserID] = m
	return nil
}

func (r *mockMuteRepo) DueMutes(ctx context.Context, now time.Time) ([]*domain.ActiveMute, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var due []*domain.ActiveMute
	for _, m := range r.mutes {
		if m.IsDue(now) {
			due = append(due, m)
		}
	}
	return due, nil
}

func (r *mockMuteRepo) ListMutes(ctx context.Context, groupID string) ([]*domain.ActiveMute, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.ActiveMute
	for _, m := range r.mutes {
		if groupID == "" || m.GroupID == groupID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *mockMuteRepo) DeleteMute(ctx context.Context, groupID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deleteErr != nil {
		return r.deleteErr
	}
	delete(r.mutes, groupID+"/"+userID)
	return nil
}

type fixedWindow time.Duration

func (w fixedWindow) MaxWindow(ctx context.Context) time.Duration {
	return time.Duration(w)
}
