package dexscreener

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL = "https://api.dexscreener.com"
	DefaultTimeout = 5 * time.Second

	tokensPath = "/latest/dex/tokens/"
)

type tokenPairsResponse struct {
	Pairs []pairData `json:"pairs"`
}

type pairData struct {
	PairAddress   string     `json:"pairAddress"`
	Liquidity     *liquidity `json:"liquidity"`
	PairCreatedAt int64      `json:"pairCreatedAt"`
}

type liquidity struct {
	USD float64 `json:"usd"`
}

func (p pairData) liquidityUSD() float64 {
	if p.Liquidity == nil {
		return 0
	}
	return p.Liquidity.USD
}

// Client resolves token creation times from DexScreener pair data.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// ResolveCreationTime returns pairCreatedAt of the most liquid pair for the
// token, or nil on any failure.
func (c *Client) ResolveCreationTime(ctx context.Context, tokenAddress string) *int64 {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+tokensPath+url.PathEscape(tokenAddress), nil)
	if err != nil {
		c.logger.Warn("Failed to build dexscreener request", zap.String("token", tokenAddress), zap.Error(err))
		return nil
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("Dexscreener lookup failed", zap.String("token", tokenAddress), zap.Error(err))
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Debug("Dexscreener lookup non-200", zap.String("token", tokenAddress), zap.Int("status", resp.StatusCode))
		return nil
	}

	var result tokenPairsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		c.logger.Warn("Failed to decode dexscreener response", zap.String("token", tokenAddress), zap.Error(err))
		return nil
	}
	if len(result.Pairs) == 0 {
		return nil
	}

	best := lo.MaxBy(result.Pairs, func(a, b pairData) bool {
		return a.liquidityUSD() > b.liquidityUSD()
	})
	if best.PairCreatedAt == 0 {
		return nil
	}
	createdAt := best.PairCreatedAt
	return &createdAt
}
