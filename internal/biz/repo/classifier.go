package repo

import (
	"context"
	"errors"

	"github.com/groupguard/groupguard/internal/biz/domain"
)

// ErrUnsupportedContent is returned by a classifier that cannot review a content type
var ErrUnsupportedContent = errors.New("content type not supported by classifier")

// ClassifierRepo is the external content classification interface.
// Implementations return only Compliant, NonCompliant or Suspicious verdicts;
// every failure is reported through the error.
type ClassifierRepo interface {
	// ClassifyText reviews a text under the given rule set
	ClassifyText(ctx context.Context, text, ruleID string) (domain.Verdict, error)

	// ClassifyImage reviews raw image bytes under the given rule set
	ClassifyImage(ctx context.Context, image []byte, ruleID string) (domain.Verdict, error)
}
