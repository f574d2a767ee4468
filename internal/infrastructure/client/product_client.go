package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// ProductSummary is the slice of the product service's response the chat
// service cares about when building room summaries and resolving sellers.
type ProductSummary struct {
	ID           uint64 `json:"id"`
	SellerID     uint64 `json:"seller_id"`
	Name         string `json:"name"`
	Price        int64  `json:"price"`
	ThumbnailURL string `json:"thumbnail_url"`
	TradeStatus  string `json:"trade_status"`
}

// ProductClient talks to the product service. It is optional enrichment:
// callers must tolerate errors and fall back to placeholders.
type ProductClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewProductClient(baseURL string) *ProductClient {
	return &ProductClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 3 * time.Second},
	}
}

func (c *ProductClient) Enabled() bool {
	return c.baseURL != ""
}

func (c *ProductClient) GetProduct(ctx context.Context, productID uint64) (*ProductSummary, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("product service not configured")
	}

	url := fmt.Sprintf("%s/v1/products/%d", c.baseURL, productID)
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
		return nil, fmt.Errorf("product service returned status %d", resp.StatusCode)
	}

	var envelope struct {
		Success bool            `json:"success"`
		Data    *ProductSummary `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, err
	}
	if !envelope.Success || envelope.Data == nil {
		return nil, fmt.Errorf("product %d not found", productID)
	}
	return envelope.Data, nil
}
