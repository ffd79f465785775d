package birdeye

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/vitos/listing_alert_bot/internal/domain"
)

const (
	DefaultBaseURL = "https://public-api.birdeye.so"
	DefaultTimeout = 10 * time.Second

	newListingPath = "/defi/v2/tokens/new_listing"
	tokenPageURL   = "https://birdeye.so/token/"
	venueName      = "Birdeye"
)

// Client reads the Birdeye new-listing feed.
type Client struct {
	baseURL string
	apiKey  string
	chain   string
	limit   int
	client  *http.Client
}

func NewClient(baseURL, apiKey, chain string, limit int, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		chain:   chain,
		limit:   limit,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *Client) Venue() string {
	return venueName
}

func (c *Client) TokenURL(address string) string {
	return tokenPageURL + address
}

// FetchNewListings returns the newest listings up to timeTo. Entries that are
// not JSON objects come back as nil so callers can account for them.
func (c *Client) FetchNewListings(ctx context.Context, timeTo time.Time) ([]domain.RawListing, error) {
	params := url.Values{}
	params.Set("time_to", strconv.FormatInt(timeTo.Unix(), 10))
	params.Set("limit", strconv.Itoa(c.limit))
	params.Set("meme_platform_enabled", "false")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+newListingPath+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("birdeye: create request: %w", err)
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set("x-chain", c.chain)
	req.Header.Set("X-API-KEY", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("birdeye: request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("birdeye: read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("birdeye: %w", domain.ErrRateLimited)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("birdeye: unexpected status %d: %s", resp.StatusCode, truncate(body, 200))
	}

	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("birdeye: decode response: %w", err)
	}
	return parseItems(payload)
}

// parseItems walks {"data": {"items": [...]}}.
func parseItems(payload any) ([]domain.RawListing, error) {
	root, ok := payload.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("birdeye: body is %T: %w", payload, domain.ErrUnexpectedResponse)
	}
	data, ok := root["data"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("birdeye: missing data object: %w", domain.ErrUnexpectedResponse)
	}
	rawItems, ok := data["items"]
	if !ok {
		return nil, fmt.Errorf("birdeye: missing data.items: %w", domain.ErrUnexpectedResponse)
	}
	items, ok := rawItems.([]any)
	if !ok {
		return nil, fmt.Errorf("birdeye: data.items is %T: %w", rawItems, domain.ErrUnexpectedResponse)
	}

	listings := make([]domain.RawListing, 0, len(items))
	for _, item := range items {
		entry, _ := item.(map[string]any)
		listings = append(listings, entry)
	}
	return listings, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
