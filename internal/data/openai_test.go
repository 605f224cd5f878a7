package data

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groupguard/groupguard/internal/biz/domain"
	"github.com/groupguard/groupguard/internal/biz/repo"
)

type mockModerationAPI struct {
	resp    openai.ModerationResponse
	err     error
	lastReq openai.ModerationRequest
}

func (m *mockModerationAPI) Moderations(ctx context.Context, req openai.ModerationRequest) (openai.ModerationResponse, error) {
	m.lastReq = req
	return m.resp, m.err
}

func moderationResponse(t *testing.T, raw string) openai.ModerationResponse {
	t.Helper()
	var resp openai.ModerationResponse
	require.NoError(t, json.Unmarshal([]byte(raw), &resp))
	return resp
}

func TestOpenAIClassifier_Text(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		kind domain.VerdictKind
		hits []string
	}{
		{
			name: "flagged",
			raw: `{"id":"m1","model":"omni-moderation-latest","results":[{"flagged":true,
				"categories":{"harassment":true,"violence":true},
				"category_scores":{"harassment":0.91,"violence":0.72}}]}`,
			kind: domain.VerdictNonCompliant,
			hits: []string{"harassment", "violence"},
		},
		{
			name: "high score",
			raw: `{"id":"m2","model":"omni-moderation-latest","results":[{"flagged":false,
				"categories":{},"category_scores":{"sexual":0.6,"violence":0.1}}]}`,
			kind: domain.VerdictSuspicious,
			hits: []string{"sexual"},
		},
		{
			name: "clean",
			raw: `{"id":"m3","model":"omni-moderation-latest","results":[{"flagged":false,
				"categories":{},"category_scores":{"sexual":0.01}}]}`,
			kind: domain.VerdictCompliant,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &mockModerationAPI{resp: moderationResponse(t, tt.raw)}
			c := &openaiClassifier{client: api, model: "omni-moderation-latest", suspiciousScore: 0.5}

			v, err := c.ClassifyText(context.Background(), "some text", "default")
			require.NoError(t, err)
			assert.Equal(t, tt.kind, v.Kind)
			assert.Equal(t, tt.hits, v.Hits)
			assert.Equal(t, "omni-moderation-latest", api.lastReq.Model)
			assert.Equal(t, "some text", api.lastReq.Input)
		})
	}
}

func TestOpenAIClassifier_RuleSelectsModel(t *testing.T) {
	api := &mockModerationAPI{resp: moderationResponse(t, `{"results":[{"flagged":false}]}`)}
	c := &openaiClassifier{client: api, model: "omni-moderation-latest", suspiciousScore: 0.5}

	_, err := c.ClassifyText(context.Background(), "x", "text-moderation-stable")
	require.NoError(t, err)
	assert.Equal(t, "text-moderation-stable", api.lastReq.Model)
}

func TestOpenAIClassifier_Errors(t *testing.T) {
	c := &openaiClassifier{client: &mockModerationAPI{err: errors.New("connection reset")}, suspiciousScore: 0.5}
	_, err := c.ClassifyText(context.Background(), "x", "")
	assert.ErrorContains(t, err, "connection reset")

	c = &openaiClassifier{client: &mockModerationAPI{}, suspiciousScore: 0.5}
	_, err = c.ClassifyText(context.Background(), "x", "")
	assert.ErrorContains(t, err, "empty result")

	_, err = c.ClassifyImage(context.Background(), []byte("img"), "")
	assert.ErrorIs(t, err, repo.ErrUnsupportedContent)
}
