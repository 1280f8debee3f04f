package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/stemforge/api/internal/config"
)

// TrackMetadata is an enrichment lookup result
type TrackMetadata struct {
	Title  string `json:"title"`
	Artist string `json:"artist"`
	Album  string `json:"album,omitempty"`
	Year   int    `json:"year,omitempty"`
}

// MetadataEnricher defines the interface for track metadata lookup
type MetadataEnricher interface {
	Lookup(ctx context.Context, title, artist string) (*TrackMetadata, error)
	IsConfigured() bool
}

// MetadataClient implements MetadataEnricher against an external
// enrichment API. Lookups are best-effort; callers treat any error as
// "no metadata available".
type MetadataClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewMetadataClient creates a new metadata enrichment client
func NewMetadataClient(cfg *config.MetadataConfig) *MetadataClient {
	return &MetadataClient{
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		},
		baseURL: cfg.ServiceURL,
		apiKey:  cfg.APIKey,
	}
}

// Lookup fetches metadata for a track by title and artist
func (c *MetadataClient) Lookup(ctx context.Context, title, artist string) (*TrackMetadata, error) {
	endpoint := fmt.Sprintf("%s/v1/tracks/lookup?title=%s&artist=%s",
		c.baseURL, url.QueryEscape(title), url.QueryEscape(artist))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("metadata service error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var result TrackMetadata
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return &result, nil
}

// IsConfigured returns true if the client has valid configuration
func (c *MetadataClient) IsConfigured() bool {
	return c.baseURL != ""
}
