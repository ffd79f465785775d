// Package solana reads observer wallet holdings from a Solana JSON-RPC node.
package solana

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/vitos/listing_alert_bot/internal/domain"
)

const DefaultTimeout = 5 * time.Second

// HoldingsSource reports which observer wallets hold a token. Each wallet
// holding a positive balance becomes one signal weighted by that balance.
type HoldingsSource struct {
	endpoint  string
	wallets   map[string]string
	client    *http.Client
	logger    *zap.Logger
	requestID atomic.Uint64
}

// Option configures HoldingsSource.
type Option func(*HoldingsSource)

// WithTimeout sets the HTTP timeout per RPC call.
func WithTimeout(d time.Duration) Option {
	return func(s *HoldingsSource) {
		if d > 0 {
			s.client.Timeout = d
		}
	}
}

// WithHTTPClient sets a custom http.Client. nil is ignored.
func WithHTTPClient(client *http.Client) Option {
	return func(s *HoldingsSource) {
		if client != nil {
			s.client = client
		}
	}
}

// NewHoldingsSource watches wallets, keyed by observer name.
func NewHoldingsSource(endpoint string, wallets map[string]string, logger *zap.Logger, opts ...Option) *HoldingsSource {
	s := &HoldingsSource{
		endpoint: endpoint,
		wallets:  wallets,
		client:   &http.Client{Timeout: DefaultTimeout},
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

type tokenAccountsResult struct {
	Value []struct {
		Account struct {
			Data struct {
				Parsed struct {
					Info struct {
						TokenAmount struct {
							UIAmount *float64 `json:"uiAmount"`
						} `json:"tokenAmount"`
					} `json:"info"`
				} `json:"parsed"`
			} `json:"data"`
		} `json:"account"`
	} `json:"value"`
}

// Signals never fails: a wallet whose lookup errors is simply absent.
func (s *HoldingsSource) Signals(ctx context.Context, tokenAddress string) domain.SignalSet {
	signals := make(domain.SignalSet)

	names := make([]string, 0, len(s.wallets))
	for name := range s.wallets {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		amount, err := s.balance(ctx, s.wallets[name], tokenAddress)
		if err != nil {
			s.logger.Warn("Holdings lookup failed",
				zap.String("observer", name),
				zap.String("token", tokenAddress),
				zap.Error(err))
			continue
		}
		if amount > 0 {
			signals[name] = amount
		}
	}
	return signals
}

// balance sums uiAmount over every token account the wallet owns for mint.
func (s *HoldingsSource) balance(ctx context.Context, wallet, mint string) (float64, error) {
	params := []any{
		wallet,
		map[string]string{"mint": mint},
		map[string]string{"encoding": "jsonParsed"},
	}

	var result tokenAccountsResult
	if err := s.call(ctx, "getTokenAccountsByOwner", params, &result); err != nil {
		return 0, err
	}

	var total float64
	for _, acc := range result.Value {
		if ui := acc.Account.Data.Parsed.Info.TokenAmount.UIAmount; ui != nil {
			total += *ui
		}
	}
	return total, nil
}

func (s *HoldingsSource) call(ctx context.Context, method string, params []any, result any) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      s.requestID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("http status %d: %s", resp.StatusCode, string(respBody))
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if err := json.Unmarshal(rpcResp.Result, result); err != nil {
		return fmt.Errorf("unmarshal result: %w", err)
	}
	return nil
}
