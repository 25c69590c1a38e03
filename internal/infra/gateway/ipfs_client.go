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

// IPFSClient publishes completion artifacts through the upload proxy and
// reads pinned documents back from the public gateway.
type IPFSClient struct {
	uploadURL  string
	gatewayURL string
	client     *http.Client
}

func NewIPFSClient(uploadURL, gatewayURL string) *IPFSClient {
	return &IPFSClient{
		uploadURL:  uploadURL,
		gatewayURL: gatewayURL,
		client:     &http.Client{Timeout: 30 * time.Second},
	}
}

// PublishArtifact pins the attempt summary and returns its content id.
func (c *IPFSClient) PublishArtifact(ctx context.Context, summary domain.AttemptSummary) (string, error) {
	body, err := json.Marshal(map[string]any{"quizResult": summary})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.uploadURL+"/api/ipfs/upload-result", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("ipfs upload returned status %d", resp.StatusCode)
	}

	var out struct {
		CID string `json:"cid"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if out.CID == "" {
		return "", fmt.Errorf("ipfs upload returned empty cid")
	}
	return out.CID, nil
}

// FetchJSON reads a pinned JSON document by content id.
func (c *IPFSClient) FetchJSON(ctx context.Context, cid string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.gatewayURL+"/ipfs/"+url.PathEscape(cid), nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ipfs gateway returned status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
