package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/groupguard/groupguard/internal/biz/domain"
	"github.com/groupguard/groupguard/internal/biz/repo"
	"github.com/groupguard/groupguard/internal/biz/usecase"
)

// WindowSource reports the widest violation window in use
type WindowSource interface {
	MaxWindow(ctx context.Context) time.Duration
}

// UnmuteRunner lifts timed mutes once they expire and periodically drops
// idle ledger windows
type UnmuteRunner struct {
	platform repo.PlatformRepo
	mutes    repo.MuteRepo
	ledger   *usecase.ViolationLedger
	windows  WindowSource
	logger   *slog.Logger
	now      func() time.Time

	pollInterval  time.Duration
	sweepInterval time.Duration
	running       bool
	stopCh        chan struct{}
	wg            sync.WaitGroup
}

// NewUnmuteRunner creates a new unmute runner
func NewUnmuteRunner(
	platform repo.PlatformRepo,
	mutes repo.MuteRepo,
	ledger *usecase.ViolationLedger,
	windows WindowSource,
	pollInterval, sweepInterval time.Duration,
	logger *slog.Logger,
) *UnmuteRunner {
	if logger == nil {
		logger = slog.Default()
	}
	if pollInterval <= 0 {
		pollInterval = 30 * time.Second
	}
	if sweepInterval <= 0 {
		sweepInterval = 10 * time.Minute
	}
	return &UnmuteRunner{
		platform:      platform,
		mutes:         mutes,
		ledger:        ledger,
		windows:       windows,
		logger:        logger.With("component", "unmute"),
		now:           time.Now,
		pollInterval:  pollInterval,
		sweepInterval: sweepInterval,
		stopCh:        make(chan struct{}),
	}
}

// Start starts the runner
func (r *UnmuteRunner) Start() {
	if r.running {
		return
	}
	r.running = true
	r.wg.Add(1)
	go r.loop()
	r.logger.Info("started", "poll_interval", r.pollInterval, "sweep_interval", r.sweepInterval)
}

// Stop stops the runner
func (r *UnmuteRunner) Stop() {
	if !r.running {
		return
	}
	r.running = false
	close(r.stopCh)
	r.wg.Wait()
	r.logger.Info("stopped")
}

func (r *UnmuteRunner) loop() {
	defer r.wg.Done()

	// Mutes that expired while the bot was down
	r.LiftDue(context.Background())

	poll := time.NewTicker(r.pollInterval)
	defer poll.Stop()
	sweep := time.NewTicker(r.sweepInterval)
	defer sweep.Stop()

	for {
		select {
		case <-poll.C:
			r.LiftDue(context.Background())
		case <-sweep.C:
			r.Sweep(context.Background())
		case <-r.stopCh:
			return
		}
	}
}

// LiftDue unmutes every member whose mute has expired and returns how many
// were lifted. A mute counts as lifted once the member is unmuted and its
// record is gone. Failed lifts stay queued unless the bot lacks the rights;
// a record that cannot be deleted is lifted again on the next poll.
func (r *UnmuteRunner) LiftDue(ctx context.Context) int {
	due, err := r.mutes.DueMutes(ctx, r.now())
	if err != nil {
		r.logger.Error("failed to load due mutes", "err", err)
		return 0
	}

	lifted := 0
	for _, m := range due {
		if r.lift(ctx, m) {
			lifted++
		}
	}
	return lifted
}

func (r *UnmuteRunner) lift(ctx context.Context, m *domain.ActiveMute) bool {
	logger := r.logger.With("group", m.GroupID, "user", m.UserID)

	err := r.platform.UnmuteUser(ctx, m.GroupID, m.UserID)
	switch {
	case err == nil:
		unmutesCounter.WithLabelValues("ok").Inc()
		logger.Info("mute lifted", "muted_for", m.Until.Sub(m.CreatedAt))
	case errors.Is(err, repo.ErrPermissionDenied):
		unmutesCounter.WithLabelValues("denied").Inc()
		logger.Warn("cannot lift mute, dropping it", "err", err)
	default:
		unmutesCounter.WithLabelValues("failed").Inc()
		logger.Warn("failed to lift mute, will retry", "err", err)
		return false
	}

	if delErr := r.mutes.DeleteMute(ctx, m.GroupID, m.UserID); delErr != nil {
		logger.Error("failed to delete mute", "err", delErr)
		return false
	}
	return err == nil
}

// Sweep drops ledger windows that have been idle longer than the widest window
func (r *UnmuteRunner) Sweep(ctx context.Context) int {
	if r.ledger == nil || r.windows == nil {
		return 0
	}
	removed := r.ledger.Sweep(r.windows.MaxWindow(ctx), r.now())
	users, groups := r.ledger.Len()
	ledgerKeys.WithLabelValues("user").Set(float64(users))
	ledgerKeys.WithLabelValues("group").Set(float64(groups))
	if removed > 0 {
		r.logger.Debug("ledger swept", "removed", removed, "users", users, "groups", groups)
	}
	return removed
}
