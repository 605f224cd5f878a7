package biz

import (
	"log/slog"

	"github.com/groupguard/groupguard/internal/biz/domain"
	"github.com/groupguard/groupguard/internal/biz/repo"
	"github.com/groupguard/groupguard/internal/biz/usecase"
)

// Usecases contains all usecases
type Usecases struct {
	Policies   *usecase.PolicyResolver
	Ledger     *usecase.ViolationLedger
	Engine     *usecase.EscalationEngine
	Dispatcher *usecase.ActionDispatcher
	Review     *usecase.ReviewCoordinator
}

// Repos are the repositories the usecases run on
type Repos struct {
	Classifier repo.ClassifierRepo
	Platform   repo.PlatformRepo
	Overrides  repo.OverrideRepo
	Mutes      repo.MuteRepo
}

// Options carries the configuration of the usecases
type Options struct {
	Defaults       domain.Policy
	GroupOverrides map[string]domain.PolicyOverride
	Templates      usecase.NoticeTemplates
	Dispatcher     usecase.DispatcherConfig
	Review         usecase.ReviewConfig
}

// NewUsecases wires the moderation pipeline
func NewUsecases(repos Repos, opts Options, logger *slog.Logger) (*Usecases, error) {
	notices, err := usecase.NewNotices(opts.Templates)
	if err != nil {
		return nil, err
	}

	policies := usecase.NewPolicyResolver(opts.Defaults, opts.GroupOverrides, repos.Overrides)
	ledger := usecase.NewViolationLedger()
	engine := usecase.NewEscalationEngine(policies, policies.Defaults(), ledger, logger)
	dispatcher := usecase.NewActionDispatcher(repos.Platform, repos.Mutes, notices, opts.Dispatcher, logger)
	review := usecase.NewReviewCoordinator(repos.Classifier, repos.Platform, policies, engine, dispatcher, opts.Review, logger)

	return &Usecases{
		Policies:   policies,
		Ledger:     ledger,
		Engine:     engine,
		Dispatcher: dispatcher,
		Review:     review,
	}, nil
}

// Close releases background resources
func (u *Usecases) Close() {
	u.Dispatcher.Close()
}
