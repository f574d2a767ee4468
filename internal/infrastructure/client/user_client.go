package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

type UserSummary struct {
	ID              uint64 `json:"id"`
	Nickname        string `json:"nickname"`
	ProfileImageURL string `json:"profile_image_url"`
}

// UserClient fetches basic profile info for room summaries. Optional
// enrichment only; the messaging core never depends on it.
type UserClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewUserClient(baseURL string) *UserClient {
	return &UserClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 3 * time.Second},
	}
}

func (c *UserClient) Enabled() bool {
	return c.baseURL != ""
}

func (c *UserClient) GetUser(ctx context.Context, userID uint64) (*UserSummary, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("user service not configured")
	}

	url := fmt.Sprintf("%s/v1/users/%d", c.baseURL, userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("user service returned status %d", resp.StatusCode)
	}

	var envelope struct {
		Success bool         `json:"success"`
		Data    *UserSummary `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, err
	}
	if !envelope.Success || envelope.Data == nil {
		return nil, fmt.Errorf("user %d not found", userID)
	}
	return envelope.Data, nil
}
