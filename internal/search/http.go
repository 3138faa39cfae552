package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPProvider queries an external retrieval service over JSON.
type HTTPProvider struct {
	client *http.Client
	apiURL string
	apiKey string
}

func NewHTTPProvider(apiURL, apiKey string) *HTTPProvider {
	return &HTTPProvider{
		client: &http.Client{Timeout: 10 * time.Second},
		apiURL: strings.TrimRight(apiURL, "/"),
		apiKey: apiKey,
	}
}

type searchRequest struct {
	Query    string `json:"query"`
	TenantID string `json:"tenantId"`
	Limit    int    `json:"limit"`
}

type searchResponse struct {
	Results []Document `json:"results"`
}

func (p *HTTPProvider) Search(ctx context.Context, query, tenantID string, limit int) ([]Document, error) {
	if limit <= 0 {
		limit = 5
	}
	payload, err := json.Marshal(searchRequest{Query: query, TenantID: tenantID, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("search: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL+"/search", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("search: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("search: unexpected status %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var decoded searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("search: decode response: %w", err)
	}
	return decoded.Results, nil
}

// Disabled satisfies Provider when no retrieval service is configured.
type Disabled struct{}

func (Disabled) Search(context.Context, string, string, int) ([]Document, error) {
	return nil, nil
}
