package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/groupguard/groupguard/internal/biz/domain"
	"github.com/groupguard/groupguard/internal/biz/usecase"
)

// ErrClosed is returned for messages handed in after Close
var ErrClosed = errors.New("moderation service closed")

// Reviewer reviews a single group message
type Reviewer interface {
	Review(ctx context.Context, msg *domain.Message) []usecase.Report
}

// GroupFilter decides which groups are moderated
type GroupFilter interface {
	GroupEnabled(groupID string) bool
}

// ModerationConfig configures message intake
type ModerationConfig struct {
	MaxInFlight int
	DedupeSize  int
	DedupeTTL   time.Duration
}

// ModerationService accepts inbound platform messages and reviews each on
// its own goroutine
type ModerationService struct {
	reviewer Reviewer
	groups   GroupFilter
	logger   *slog.Logger

	seenMu sync.Mutex
	seen   *expirable.LRU[string, struct{}]

	sem    chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closeMu sync.RWMutex
	closed  bool
}

// NewModerationService creates the service. groups may be nil to moderate every group.
func NewModerationService(reviewer Reviewer, groups GroupFilter, cfg ModerationConfig, logger *slog.Logger) *ModerationService {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 16
	}
	if cfg.DedupeSize <= 0 {
		cfg.DedupeSize = 4096
	}
	if cfg.DedupeTTL <= 0 {
		cfg.DedupeTTL = 10 * time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &ModerationService{
		reviewer: reviewer,
		groups:   groups,
		logger:   logger.With("component", "moderation"),
		seen:     expirable.NewLRU[string, struct{}](cfg.DedupeSize, nil, cfg.DedupeTTL),
		sem:      make(chan struct{}, cfg.MaxInFlight),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// HandleMessage queues a message for review and returns immediately.
// Private messages, unmoderated groups and redelivered messages are dropped.
func (s *ModerationService) HandleMessage(msg *domain.Message) error {
	switch {
	case !msg.IsGroup():
		messagesReceived.WithLabelValues("ignored_private").Inc()
		return nil
	case s.groups != nil && !s.groups.GroupEnabled(msg.GroupID):
		messagesReceived.WithLabelValues("ignored_group").Inc()
		return nil
	case s.duplicate(msg.ID):
		messagesReceived.WithLabelValues("duplicate").Inc()
		s.logger.Debug("duplicate message dropped", "message", msg.ID)
		return nil
	}

	s.closeMu.RLock()
	defer s.closeMu.RUnlock()
	if s.closed {
		return ErrClosed
	}

	messagesReceived.WithLabelValues("accepted").Inc()
	s.wg.Add(1)
	go s.process(msg)
	return nil
}

// duplicate records the message id and reports whether it was seen before
func (s *ModerationService) duplicate(id string) bool {
	if id == "" {
		return false
	}
	s.seenMu.Lock()
	defer s.seenMu.Unlock()
	if s.seen.Contains(id) {
		return true
	}
	s.seen.Add(id, struct{}{})
	return false
}

func (s *ModerationService) process(msg *domain.Message) {
	defer s.wg.Done()

	select {
	case s.sem <- struct{}{}:
	case <-s.ctx.Done():
		return
	}
	defer func() { <-s.sem }()

	reviewsInFlight.Inc()
	defer reviewsInFlight.Dec()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("review panicked", "message", msg.ID, "group", msg.GroupID, "panic", r)
		}
	}()

	reports := s.reviewer.Review(s.ctx, msg)
	reviewDuration.Observe(time.Since(start).Seconds())

	for _, r := range reports {
		verdictsCounter.WithLabelValues(r.ContentType.String(), r.Decision.Verdict.Kind.String()).Inc()
		for _, o := range r.Result.Outcomes {
			stepsCounter.WithLabelValues(string(o.Step), outcomeStatus(o)).Inc()
		}
	}
}

func outcomeStatus(o domain.Outcome) string {
	switch {
	case o.Err != nil:
		return "failed"
	case o.Skipped != "":
		return "skipped"
	}
	return "ok"
}

// Close stops accepting messages and waits for queued reviews. Reviews
// still waiting for a slot when ctx expires are abandoned.
func (s *ModerationService) Close(ctx context.Context) error {
	s.closeMu.Lock()
	s.closed = true
	s.closeMu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		<-done
		return ctx.Err()
	}
}
