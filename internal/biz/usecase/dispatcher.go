package usecase

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/RussellLuo/slidingwindow"

	"github.com/groupguard/groupguard/internal/biz/domain"
	"github.com/groupguard/groupguard/internal/biz/repo"
)

// Target identifies the message and member a decision applies to
type Target struct {
	GroupID   string
	UserID    string
	MessageID string // Empty when there is nothing left to recall
	UserName  string
}

// User returns a display label for the member
func (t Target) User() string {
	if t.UserName == "" {
		return t.UserID
	}
	return t.UserName + " (" + t.UserID + ")"
}

// DispatcherConfig configures the action dispatcher
type DispatcherConfig struct {
	OwnerID         string // Receives direct messages about review and action failures
	NotifyPerMinute int    // Group notices per notify group per minute, 0 = unlimited
}

// Dispatcher executes decisions against the platform
type Dispatcher interface {
	Dispatch(ctx context.Context, d domain.Decision, t Target) domain.DispatchResult
}

// ActionDispatcher runs every step of a decision independently. A failed
// step is recorded and never prevents the remaining ones.
type ActionDispatcher struct {
	platform repo.PlatformRepo
	mutes    repo.MuteRepo
	notices  *Notices
	throttle *notifyThrottle
	cfg      DispatcherConfig
	logger   *slog.Logger
	now      func() time.Time
}

// NewActionDispatcher creates a dispatcher. mutes may be nil when the
// platform expires mutes on its own.
func NewActionDispatcher(platform repo.PlatformRepo, mutes repo.MuteRepo, notices *Notices, cfg DispatcherConfig, logger *slog.Logger) *ActionDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if notices == nil {
		notices, _ = NewNotices(DefaultNoticeTemplates)
	}
	return &ActionDispatcher{
		platform: platform,
		mutes:    mutes,
		notices:  notices,
		throttle: newNotifyThrottle(int64(cfg.NotifyPerMinute), time.Minute),
		cfg:      cfg,
		logger:   logger.With("component", "dispatcher"),
		now:      time.Now,
	}
}

// Close releases the notification limiters
func (d *ActionDispatcher) Close() {
	d.throttle.close()
}

// Dispatch performs the recall, the punishments and the notifications of a
// decision, in that order
func (d *ActionDispatcher) Dispatch(ctx context.Context, dec domain.Decision, t Target) domain.DispatchResult {
	var res domain.DispatchResult
	logger := d.logger.With("group", t.GroupID, "user", t.UserID, "message", t.MessageID)

	if dec.Action.Recalls() {
		if t.MessageID == "" {
			res.Skip(domain.StepRecall, "no message id")
		} else {
			res.Add(domain.StepRecall, d.platform.RecallMessage(ctx, t.GroupID, t.MessageID))
		}
	}

	for _, p := range dec.Punishments {
		switch p.Kind {
		case domain.PunishMuteUser:
			err := d.platform.MuteUser(ctx, t.GroupID, t.UserID, p.Duration)
			res.Add(domain.StepMuteUser, err)
			if err == nil {
				d.recordMute(ctx, logger, t, p.Duration)
			}
		case domain.PunishKickUser:
			res.Add(domain.StepKickUser, d.platform.KickUser(ctx, t.GroupID, t.UserID, p.Block))
		case domain.PunishMuteGroup:
			res.Add(domain.StepMuteGroup, d.platform.MuteGroup(ctx, t.GroupID, true))
		default:
			logger.Error("unknown punishment", "kind", p.Kind)
		}
	}

	d.notifyGroup(ctx, &res, dec, t)
	d.notifyOwner(ctx, &res, dec, t)

	for _, o := range res.Outcomes {
		if o.Err != nil {
			logger.Warn("dispatch step failed", "step", o.Step, "err", o.Err)
		} else if o.Skipped != "" {
			logger.Debug("dispatch step skipped", "step", o.Step, "reason", o.Skipped)
		}
	}
	return res
}

func (d *ActionDispatcher) recordMute(ctx context.Context, logger *slog.Logger, t Target, dur time.Duration) {
	if d.mutes == nil || dur <= 0 {
		return
	}
	now := d.now()
	m := &domain.ActiveMute{
		GroupID:   t.GroupID,
		UserID:    t.UserID,
		Until:     now.Add(dur),
		CreatedAt: now,
	}
	if err := d.mutes.SaveMute(ctx, m); err != nil {
		logger.Error("failed to record mute", "err", err)
	}
}

func (d *ActionDispatcher) noticeData(dec domain.Decision, t Target) NoticeData {
	data := NoticeData{
		GroupID:     t.GroupID,
		User:        t.User(),
		ContentType: dec.ContentType.String(),
		Reason:      dec.Verdict.Reason,
		RuleID:      dec.Policy.RuleID,
		UserCount:   dec.UserCount,
		GroupCount:  dec.GroupCount,
	}
	if p, ok := dec.Punishment(domain.PunishMuteUser); ok {
		data.MuteDuration = FormatDuration(p.Duration)
	}
	if p, ok := dec.Punishment(domain.PunishKickUser); ok {
		data.Block = p.Block
	}
	if dec.PolicyErr != nil {
		data.Error = dec.PolicyErr.Error()
	}
	return data
}

func (d *ActionDispatcher) notifyGroup(ctx context.Context, res *domain.DispatchResult, dec domain.Decision, t Target) {
	group := dec.Policy.NotifyGroupID
	data := d.noticeData(dec, t)

	if dec.Action.NotifiesGroup() {
		kind := NoticeViolation
		if dec.Verdict.Kind == domain.VerdictSuspicious {
			kind = NoticeSuspicious
		}
		d.send(ctx, res, domain.StepNotifyGroup, group, d.notices.Render(kind, data), false)
	}

	steps := []struct {
		punished domain.Step
		notify   domain.Step
		kind     NoticeKind
		all      bool
	}{
		{domain.StepMuteUser, domain.StepNotifyMute, NoticeMute, false},
		{domain.StepKickUser, domain.StepNotifyKick, NoticeKick, false},
		{domain.StepMuteGroup, domain.StepNotifyGroupMute, NoticeGroupMute, dec.Policy.NotifyMentionAll},
	}
	for _, s := range steps {
		if o, ok := res.Outcome(s.punished); ok && o.OK() {
			d.send(ctx, res, s.notify, group, d.notices.Render(s.kind, data), s.all)
		}
	}
}

func (d *ActionDispatcher) send(ctx context.Context, res *domain.DispatchResult, step domain.Step, group, text string, mentionAll bool) {
	switch {
	case group == "":
		res.Skip(step, "no notify group")
	case !d.throttle.allow(group):
		res.Skip(step, "throttled")
	case mentionAll:
		res.Add(step, d.platform.SendGroupMessageMentionAll(ctx, group, text))
	default:
		res.Add(step, d.platform.SendGroupMessage(ctx, group, text))
	}
}

func (d *ActionDispatcher) notifyOwner(ctx context.Context, res *domain.DispatchResult, dec domain.Decision, t Target) {
	data := d.noticeData(dec, t)

	var parts []string
	if dec.Action == domain.ActionNotifyOwner {
		parts = append(parts, d.notices.Render(NoticeReviewFailed, data))
	}
	if dec.PolicyErr != nil {
		parts = append(parts, d.notices.Render(NoticePolicyError, data))
	}
	if failed := res.Failed(); len(failed) > 0 {
		for _, o := range failed {
			data.Failures = append(data.Failures, o.String())
		}
		parts = append(parts, d.notices.Render(NoticeActionFailed, data))
	}
	if len(parts) == 0 {
		return
	}
	if d.cfg.OwnerID == "" {
		res.Skip(domain.StepNotifyOwner, "no owner configured")
		return
	}
	res.Add(domain.StepNotifyOwner, d.platform.SendDirectMessage(ctx, d.cfg.OwnerID, strings.Join(parts, "\n\n")))
}

// notifyThrottle keeps one sliding-window limiter per notify group
type notifyThrottle struct {
	mu       sync.Mutex
	limit    int64
	size     time.Duration
	limiters map[string]*slidingwindow.Limiter
	stops    []slidingwindow.StopFunc
}

func newNotifyThrottle(limit int64, size time.Duration) *notifyThrottle {
	return &notifyThrottle{
		limit:    limit,
		size:     size,
		limiters: make(map[string]*slidingwindow.Limiter),
	}
}

func (t *notifyThrottle) allow(key string) bool {
	if t.limit <= 0 {
		return true
	}
	t.mu.Lock()
	lim, ok := t.limiters[key]
	if !ok {
		var stop slidingwindow.StopFunc
		lim, stop = slidingwindow.NewLimiter(t.size, t.limit, func() (slidingwindow.Window, slidingwindow.StopFunc) {
			return slidingwindow.NewLocalWindow()
		})
		t.limiters[key] = lim
		t.stops = append(t.stops, stop)
	}
	t.mu.Unlock()
	return lim.Allow()
}

func (t *notifyThrottle) close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, stop := range t.stops {
		stop()
	}
	t.stops = nil
	t.limiters = make(map[string]*slidingwindow.Limiter)
}
