package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/groupguard/groupguard/internal/biz/domain"
	"github.com/groupguard/groupguard/internal/biz/repo"
)

// Evaluator turns a verdict into a decision
type Evaluator interface {
	Evaluate(ctx context.Context, verdict domain.Verdict, groupID, userID string, ct domain.ContentType, now time.Time) domain.Decision
}

// ImageFetcher downloads message attachments
type ImageFetcher interface {
	FetchImage(ctx context.Context, msg *domain.Message, ref domain.ImageRef) ([]byte, error)
}

// ReviewConfig switches content types on and bounds classifier calls
type ReviewConfig struct {
	TextEnabled  bool
	ImageEnabled bool
	Timeout      time.Duration // Per classifier call, 0 = no limit
}

// Report is the result of reviewing one part of a message
type Report struct {
	ContentType domain.ContentType
	Decision    domain.Decision
	Result      domain.DispatchResult
}

// ReviewCoordinator classifies every part of a message and applies the
// resulting decisions
type ReviewCoordinator struct {
	classifier repo.ClassifierRepo
	images     ImageFetcher
	policies   PolicySource
	engine     Evaluator
	dispatcher Dispatcher
	cfg        ReviewConfig
	logger     *slog.Logger
	now        func() time.Time
}

// NewReviewCoordinator creates a coordinator
func NewReviewCoordinator(
	classifier repo.ClassifierRepo,
	images ImageFetcher,
	policies PolicySource,
	engine Evaluator,
	dispatcher Dispatcher,
	cfg ReviewConfig,
	logger *slog.Logger,
) *ReviewCoordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReviewCoordinator{
		classifier: classifier,
		images:     images,
		policies:   policies,
		engine:     engine,
		dispatcher: dispatcher,
		cfg:        cfg,
		logger:     logger.With("component", "review"),
		now:        time.Now,
	}
}

// Review processes the text and the images of a group message. Parts are
// reviewed independently; once the message is recalled the remaining parts
// are still evaluated but not recalled again.
func (c *ReviewCoordinator) Review(ctx context.Context, msg *domain.Message) []Report {
	logger := c.logger.With(
		"review", uuid.NewString(),
		"group", msg.GroupID,
		"user", msg.SenderID,
		"message", msg.ID,
	)

	// Only the rule id is needed here; resolution errors surface through the engine
	policy, _ := c.policies.Resolve(ctx, msg.GroupID)

	target := Target{
		GroupID:   msg.GroupID,
		UserID:    msg.SenderID,
		MessageID: msg.ID,
		UserName:  msg.SenderName,
	}

	var reports []Report
	apply := func(ct domain.ContentType, verdict domain.Verdict) {
		d := c.engine.Evaluate(ctx, verdict, msg.GroupID, msg.SenderID, ct, c.now())
		r := Report{ContentType: ct, Decision: d}
		if d.Action != domain.ActionNone || len(d.Punishments) > 0 {
			r.Result = c.dispatcher.Dispatch(ctx, d, target)
			if o, ok := r.Result.Outcome(domain.StepRecall); ok && o.OK() {
				target.MessageID = ""
			}
		}
		logger.Info("reviewed",
			"content", ct,
			"verdict", verdict.Kind,
			"reason", verdict.Reason,
			"decision", d.String(),
			"failed_steps", len(r.Result.Failed()),
		)
		reports = append(reports, r)
	}

	if c.cfg.TextEnabled && strings.TrimSpace(msg.Text) != "" {
		verdict, err := c.classify(ctx, func(ctx context.Context) (domain.Verdict, error) {
			return c.classifier.ClassifyText(ctx, msg.Text, policy.RuleID)
		})
		switch {
		case errors.Is(err, repo.ErrUnsupportedContent):
			logger.Debug("text review not supported by classifier")
		case err != nil:
			apply(domain.ContentText, domain.ReviewFailed(err))
		default:
			apply(domain.ContentText, verdict)
		}
	}

	if c.cfg.ImageEnabled {
		for i, ref := range msg.Images {
			data, err := c.images.FetchImage(ctx, msg, ref)
			if err != nil {
				logger.Warn("image download failed", "index", i, "err", err)
				apply(domain.ContentImage, domain.ReviewFailed(fmt.Errorf("download image: %w", err)))
				continue
			}
			verdict, err := c.classify(ctx, func(ctx context.Context) (domain.Verdict, error) {
				return c.classifier.ClassifyImage(ctx, data, policy.RuleID)
			})
			switch {
			case errors.Is(err, repo.ErrUnsupportedContent):
				logger.Debug("image review not supported by classifier", "index", i)
			case err != nil:
				apply(domain.ContentImage, domain.ReviewFailed(err))
			default:
				apply(domain.ContentImage, verdict)
			}
		}
	}

	return reports
}

// classify runs one classifier call under the configured timeout. A verdict
// of kind ReviewFailed returned without an error is turned into one.
func (c *ReviewCoordinator) classify(ctx context.Context, call func(context.Context) (domain.Verdict, error)) (domain.Verdict, error) {
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}
	verdict, err := call(ctx)
	if err != nil {
		return domain.Verdict{}, err
	}
	if verdict.Kind == domain.VerdictReviewFailed {
		if verdict.Err != nil {
			return domain.Verdict{}, verdict.Err
		}
		return domain.Verdict{}, errors.New(verdict.Reason)
	}
	return verdict, nil
}
