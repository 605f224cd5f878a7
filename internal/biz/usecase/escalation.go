package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/groupguard/groupguard/internal/biz/domain"
)

// EscalationEngine turns verdicts into decisions, tracking repeat offenders
// in the violation ledger
type EscalationEngine struct {
	policies PolicySource
	fallback domain.Policy
	ledger   *ViolationLedger
	logger   *slog.Logger
}

// NewEscalationEngine creates an engine. fallback is used whenever the group
// policy cannot be resolved at all.
func NewEscalationEngine(policies PolicySource, fallback domain.Policy, ledger *ViolationLedger, logger *slog.Logger) *EscalationEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &EscalationEngine{
		policies: policies,
		fallback: fallback,
		ledger:   ledger,
		logger:   logger.With("component", "escalation"),
	}
}

// Ledger exposes the engine's violation ledger
func (e *EscalationEngine) Ledger() *ViolationLedger {
	return e.ledger
}

// Evaluate decides the enforcement for one verdict. It never panics: an
// internal fault on a non-compliant verdict still yields a recall decision.
func (e *EscalationEngine) Evaluate(ctx context.Context, verdict domain.Verdict, groupID, userID string, ct domain.ContentType, now time.Time) (d domain.Decision) {
	d = domain.Decision{Verdict: verdict, ContentType: ct}

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("evaluation panic", "err", r, "group", groupID, "user", userID, "verdict", verdict.Kind)
			d.PolicyErr = fmt.Errorf("evaluation panic: %v", r)
			d.Punishments = nil
			if d.Policy == (domain.Policy{}) {
				d.Policy = e.fallback
			}
			if verdict.Kind == domain.VerdictNonCompliant {
				d.Action = domain.ActionRecallAndNotify
			}
		}
	}()

	switch verdict.Kind {
	case domain.VerdictCompliant:
		d.Action = domain.ActionNone
		return d

	case domain.VerdictNonCompliant:
		d.Action = domain.ActionRecallAndNotify
		d.Policy, d.PolicyErr = e.resolve(ctx, groupID)
		d.UserCount, d.GroupCount = e.ledger.RecordAndCount(groupID, userID, now, d.Policy.TimeWindow, now)
		d.Punishments = EvaluateTiers(d.Policy, d.UserCount, d.GroupCount)
		if d.Policy.ResetOnPunish {
			e.resetPunished(d, groupID, userID)
		}

	case domain.VerdictSuspicious:
		d.Action = domain.ActionNotifyOnly
		d.Policy, d.PolicyErr = e.resolve(ctx, groupID)

	case domain.VerdictReviewFailed:
		d.Action = domain.ActionNotifyOwner
		d.Policy, d.PolicyErr = e.resolve(ctx, groupID)

	default:
		e.logger.Error("unknown verdict kind", "group", groupID, "verdict", verdict.Kind)
		return d
	}

	e.logger.Debug("evaluated",
		"group", groupID,
		"user", userID,
		"verdict", verdict.Kind,
		"content", ct,
		"decision", d.String(),
		"user_count", d.UserCount,
		"group_count", d.GroupCount,
	)
	return d
}

// resolve returns the group policy. On failure the partial policy the
// source still produced is kept; without one the fallback applies.
func (e *EscalationEngine) resolve(ctx context.Context, groupID string) (domain.Policy, error) {
	policy, err := e.policies.Resolve(ctx, groupID)
	if err == nil {
		return policy, nil
	}
	if policy == (domain.Policy{}) || policy.TimeWindow <= 0 {
		e.logger.Warn("policy resolution failed, using defaults", "group", groupID, "err", err)
		return e.fallback, err
	}
	e.logger.Warn("policy resolution incomplete, using file policy", "group", groupID, "err", err)
	return policy, err
}

func (e *EscalationEngine) resetPunished(d domain.Decision, groupID, userID string) {
	if d.Has(domain.PunishKickUser) || d.Has(domain.PunishMuteUser) {
		e.ledger.ResetUser(groupID, userID)
	}
	if d.Has(domain.PunishMuteGroup) {
		e.ledger.ResetGroup(groupID)
	}
}

// EvaluateTiers maps violation counts to punishments. Kick supersedes mute
// for the same user; the group tier is independent of the user tiers. A
// threshold of 0 disables its tier.
func EvaluateTiers(p domain.Policy, userCount, groupCount int) []domain.Punishment {
	var out []domain.Punishment

	switch {
	case p.KickThreshold > 0 && userCount >= p.KickThreshold:
		out = append(out, domain.KickUser(p.KickAndBlock))
	case p.SingleUserThreshold > 0 && userCount >= p.SingleUserThreshold:
		out = append(out, domain.MuteUser(p.MuteDuration))
	}

	if p.GroupThreshold > 0 && groupCount >= p.GroupThreshold {
		out = append(out, domain.MuteGroup())
	}
	return out
}
