package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"skillbridge-quiz-service/internal/domain"
)

// ChainClient talks to the chain gateway, the HTTP facade in front of the
// wallet/contract layer. It implements CompletionReader, RewardIssuer and
// ChainCommitter.
type ChainClient struct {
	baseURL string
	client  *http.Client
}

func NewChainClient(baseURL string) *ChainClient {
	return &ChainClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// CompletionStatus reads the user's entry-test flag and enrolled course ids.
func (c *ChainClient) CompletionStatus(ctx context.Context, userAddress string) (domain.CompletionStatus, error) {
	var status domain.CompletionStatus
	err := c.getJSON(ctx, "/api/users/"+url.PathEscape(userAddress)+"/status", &status)
	if err != nil {
		return domain.CompletionStatus{}, err
	}
	return status, nil
}

// AwardEntryReward requests one reward token per correct answer.
func (c *ChainClient) AwardEntryReward(ctx context.Context, userAddress string, correctCount int) error {
	payload := map[string]any{
		"userAddress":  userAddress,
		"correctCount": correctCount,
	}
	return c.postJSON(ctx, "/api/rewards/entry", payload, nil)
}

// CommitCompletion marks the course completed on-chain and links the
// certificate to the artifact id. The gateway treats a repeated call with
// the same artifact id as idempotent, so retries after failure are safe.
func (c *ChainClient) CommitCompletion(ctx context.Context, userAddress, courseID, artifactID string) error {
	payload := map[string]any{
		"userAddress": userAddress,
		"artifactId":  artifactID,
	}
	return c.postJSON(ctx, "/api/courses/"+url.PathEscape(courseID)+"/complete", payload, nil)
}

// ProfileCID resolves the user's profile content id, empty when unset.
// The chain stores certificate/profile ids as unsigned values behind this
// endpoint; only absence (empty cid) means "no profile" — a zero id is
// passed through verbatim rather than treated as a sentinel.
func (c *ChainClient) ProfileCID(ctx context.Context, userAddress string) (string, error) {
	var out struct {
		CID string `json:"cid"`
	}
	if err := c.getJSON(ctx, "/api/users/"+url.PathEscape(userAddress)+"/profile-cid", &out); err != nil {
		return "", err
	}
	return out.CID, nil
}

func (c *ChainClient) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *ChainClient) postJSON(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *ChainClient) do(req *http.Request, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("chain gateway returned status %d for %s", resp.StatusCode, req.URL.Path)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
