// Package remote implements the HTTP client for the sync relay, the
// remote fact copy a device reconciles against.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/calder-labs/persona/internal/domain"
)

const requestTimeout = 15 * time.Second

type Client struct {
	baseURL    string
	userID     string
	httpClient *http.Client
}

var _ domain.RemoteStore = (*Client)(nil)

// NewClient binds a relay endpoint to a single user's collection.
func NewClient(baseURL, userID string) *Client {
	return &Client{
		baseURL:    baseURL,
		userID:     userID,
		httpClient: &http.Client{Timeout: requestTimeout},
	}
}

type factsEnvelope struct {
	Facts []domain.Fact `json:"facts"`
}

func (c *Client) factsURL() string {
	return fmt.Sprintf("%s/v1/users/%s/facts", c.baseURL, url.PathEscape(c.userID))
}

func (c *Client) Fetch(ctx context.Context) ([]domain.Fact, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.factsURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("create fetch request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch facts: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read fetch response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("relay returned status %d: %s", resp.StatusCode, string(body))
	}

	var envelope factsEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("unmarshal facts: %w", err)
	}
	if envelope.Facts == nil {
		envelope.Facts = []domain.Fact{}
	}
	return envelope.Facts, nil
}

func (c *Client) ReplaceAll(ctx context.Context, facts []domain.Fact) error {
	body, err := json.Marshal(factsEnvelope{Facts: facts})
	if err != nil {
		return fmt.Errorf("marshal facts: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.factsURL(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create replace request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("replace facts: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("relay returned status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
