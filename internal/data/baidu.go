package data

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/groupguard/groupguard/internal/biz/domain"
	"github.com/groupguard/groupguard/internal/biz/repo"
)

const baiduDefaultEndpoint = "https://aip.baidubce.com"

// Baidu conclusionType values
const (
	baiduCompliant    = 1
	baiduNonCompliant = 2
	baiduSuspicious   = 3
	baiduFailed       = 4
)

// tokenSlack renews the access token before it actually expires
const tokenSlack = 5 * time.Minute

// baiduClassifier implements ClassifierRepo on the Baidu content censor
// user-defined API
type baiduClassifier struct {
	endpoint  string
	apiKey    string
	secretKey string
	http      *http.Client // Censor calls, never retried
	tokenHTTP *http.Client // Token calls
	logger    *slog.Logger

	mu        sync.Mutex
	token     string
	expiresAt time.Time
	now       func() time.Time
}

// NewBaiduClassifier creates the Baidu classifier
func NewBaiduClassifier(endpoint, apiKey, secretKey string, censor, token *http.Client, logger *slog.Logger) repo.ClassifierRepo {
	return newBaiduClassifier(endpoint, apiKey, secretKey, censor, token, logger)
}

func newBaiduClassifier(endpoint, apiKey, secretKey string, censor, token *http.Client, logger *slog.Logger) *baiduClassifier {
	if endpoint == "" {
		endpoint = baiduDefaultEndpoint
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &baiduClassifier{
		endpoint:  strings.TrimRight(endpoint, "/"),
		apiKey:    apiKey,
		secretKey: secretKey,
		http:      censor,
		tokenHTTP: token,
		logger:    logger.With("component", "baidu"),
		now:       time.Now,
	}
}

// baiduCensorResponse is the shared text/image censor response
type baiduCensorResponse struct {
	LogID          int64  `json:"log_id"`
	ErrorCode      int    `json:"error_code"`
	ErrorMsg       string `json:"error_msg"`
	Conclusion     string `json:"conclusion"`
	ConclusionType int    `json:"conclusionType"`
	Data           []struct {
		Msg            string `json:"msg"`
		Type           int    `json:"type"`
		SubType        int    `json:"subType"`
		ConclusionType int    `json:"conclusionType"`
		Hits           []struct {
			DatasetName string   `json:"datasetName"`
			Words       []string `json:"words"`
		} `json:"hits"`
	} `json:"data"`
}

// ClassifyText reviews a text
func (c *baiduClassifier) ClassifyText(ctx context.Context, text, ruleID string) (domain.Verdict, error) {
	form := url.Values{}
	form.Set("text", text)
	return c.censor(ctx, "/rest/2.0/solution/v1/text_censor/v2/user_defined", form, ruleID)
}

// ClassifyImage reviews raw image bytes
func (c *baiduClassifier) ClassifyImage(ctx context.Context, image []byte, ruleID string) (domain.Verdict, error) {
	form := url.Values{}
	form.Set("image", base64.StdEncoding.EncodeToString(image))
	return c.censor(ctx, "/rest/2.0/solution/v1/img_censor/v2/user_defined", form, ruleID)
}

func (c *baiduClassifier) censor(ctx context.Context, path string, form url.Values, ruleID string) (domain.Verdict, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return domain.Verdict{}, err
	}
	if strategy := strategyID(ruleID); strategy != "" {
		form.Set("strategyId", strategy)
	}

	endpoint := c.endpoint + path + "?access_token=" + url.QueryEscape(token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return domain.Verdict{}, fmt.Errorf("build censor request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.Verdict{}, fmt.Errorf("censor request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.Verdict{}, fmt.Errorf("censor request: http status %d", resp.StatusCode)
	}

	var result baiduCensorResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return domain.Verdict{}, fmt.Errorf("decode censor response: %w", err)
	}
	if isBaiduTokenError(result.ErrorCode) {
		c.invalidateToken()
	}
	return parseBaiduResult(&result)
}

// parseBaiduResult maps a censor response to a verdict
func parseBaiduResult(r *baiduCensorResponse) (domain.Verdict, error) {
	if r.ErrorCode != 0 {
		return domain.Verdict{}, fmt.Errorf("baidu error %d: %s", r.ErrorCode, r.ErrorMsg)
	}

	switch r.ConclusionType {
	case baiduCompliant:
		return domain.Compliant(), nil
	case baiduNonCompliant, baiduSuspicious:
		var reasons, hits []string
		for _, item := range r.Data {
			if item.ConclusionType != 0 && item.ConclusionType != r.ConclusionType {
				continue
			}
			if item.Msg != "" {
				reasons = append(reasons, item.Msg)
			}
			for _, h := range item.Hits {
				hits = append(hits, h.Words...)
			}
		}
		reason := strings.Join(reasons, ", ")
		if reason == "" {
			reason = r.Conclusion
		}
		if r.ConclusionType == baiduSuspicious {
			return domain.Suspicious(reason, hits...), nil
		}
		return domain.NonCompliant(reason, hits...), nil
	case baiduFailed:
		return domain.Verdict{}, fmt.Errorf("baidu review failed: %s", r.Conclusion)
	}
	return domain.Verdict{}, fmt.Errorf("unknown baidu conclusion type %d", r.ConclusionType)
}

// strategyID maps a rule id to a Baidu strategy; "default" uses the account default
func strategyID(ruleID string) string {
	if ruleID == "" || ruleID == "default" {
		return ""
	}
	return ruleID
}

func isBaiduTokenError(code int) bool {
	// 110: invalid token, 111: expired token
	return code == 110 || code == 111
}

func (c *baiduClassifier) invalidateToken() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

// accessToken returns a cached OAuth token, fetching a new one when needed
func (c *baiduClassifier) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.expiresAt) {
		return c.token, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.apiKey)
	form.Set("client_secret", c.secretKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/oauth/2.0/token?"+form.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	resp, err := c.tokenHTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("get token: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		AccessToken      string `json:"access_token"`
		ExpiresIn        int64  `json:"expires_in"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode token: %w", err)
	}
	if result.Error != "" || result.AccessToken == "" {
		return "", fmt.Errorf("get token: %s %s", result.Error, result.ErrorDescription)
	}

	c.token = result.AccessToken
	c.expiresAt = c.now().Add(time.Duration(result.ExpiresIn)*time.Second - tokenSlack)
	c.logger.Info("access token refreshed", "expires_in", result.ExpiresIn)
	return c.token, nil
}
