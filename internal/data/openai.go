package data

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/groupguard/groupguard/internal/biz/domain"
	"github.com/groupguard/groupguard/internal/biz/repo"
)

// moderationAPI is the part of the OpenAI client the classifier needs
type moderationAPI interface {
	Moderations(ctx context.Context, request openai.ModerationRequest) (openai.ModerationResponse, error)
}

// openaiClassifier implements ClassifierRepo on the OpenAI moderation endpoint
type openaiClassifier struct {
	client          moderationAPI
	model           string
	suspiciousScore float64
}

// NewOpenAIClassifier creates the OpenAI moderation classifier
func NewOpenAIClassifier(apiKey, baseURL, model string, suspiciousScore float64) repo.ClassifierRepo {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &openaiClassifier{
		client:          openai.NewClientWithConfig(config),
		model:           model,
		suspiciousScore: suspiciousScore,
	}
}

// ClassifyText reviews a text. A rule id naming a moderation model selects it.
func (c *openaiClassifier) ClassifyText(ctx context.Context, text, ruleID string) (domain.Verdict, error) {
	model := c.model
	if strings.Contains(ruleID, "moderation") {
		model = ruleID
	}

	resp, err := c.client.Moderations(ctx, openai.ModerationRequest{
		Input: text,
		Model: model,
	})
	if err != nil {
		return domain.Verdict{}, fmt.Errorf("moderation: %w", err)
	}
	if len(resp.Results) == 0 {
		return domain.Verdict{}, fmt.Errorf("moderation: empty result")
	}
	return c.verdict(resp.Results[0])
}

// ClassifyImage is not supported by the text moderation input
func (c *openaiClassifier) ClassifyImage(ctx context.Context, image []byte, ruleID string) (domain.Verdict, error) {
	return domain.Verdict{}, repo.ErrUnsupportedContent
}

func (c *openaiClassifier) verdict(r openai.Result) (domain.Verdict, error) {
	flagged, scores, err := moderationCategories(r)
	if err != nil {
		return domain.Verdict{}, err
	}

	if r.Flagged {
		return domain.NonCompliant("flagged: "+strings.Join(flagged, ", "), flagged...), nil
	}

	var suspicious []string
	for name, score := range scores {
		if score >= c.suspiciousScore {
			suspicious = append(suspicious, name)
		}
	}
	if len(suspicious) > 0 {
		sort.Strings(suspicious)
		return domain.Suspicious("high score: "+strings.Join(suspicious, ", "), suspicious...), nil
	}
	return domain.Compliant(), nil
}

// moderationCategories returns the flagged category names and all scores
func moderationCategories(r openai.Result) ([]string, map[string]float64, error) {
	var categories map[string]bool
	raw, err := json.Marshal(r.Categories)
	if err != nil {
		return nil, nil, fmt.Errorf("encode categories: %w", err)
	}
	if err := json.Unmarshal(raw, &categories); err != nil {
		return nil, nil, fmt.Errorf("decode categories: %w", err)
	}

	var scores map[string]float64
	raw, err = json.Marshal(r.CategoryScores)
	if err != nil {
		return nil, nil, fmt.Errorf("encode category scores: %w", err)
	}
	if err := json.Unmarshal(raw, &scores); err != nil {
		return nil, nil, fmt.Errorf("decode category scores: %w", err)
	}

	var flagged []string
	for name, on := range categories {
		if on {
			flagged = append(flagged, name)
		}
	}
	sort.Strings(flagged)
	return flagged, scores, nil
}
