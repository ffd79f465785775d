package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Token identifies the base token of a pair.
type Token struct {
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
	Address string `json:"address"`
}

// CandidatePair is a newly listed pair under evaluation.
// Built fresh every poll cycle and dropped after notification or rejection.
type CandidatePair struct {
	PairAddress    string          `json:"pair_address"`
	BaseToken      Token           `json:"base_token"`
	Price          decimal.Decimal `json:"price_usd"`
	LiquidityUSD   float64         `json:"liquidity_usd"`
	VolumeH1USD    float64         `json:"volume_h1_usd"`
	MarketCap      float64         `json:"market_cap"`
	CreatedAtMs    *int64          `json:"created_at_ms,omitempty"` // nil when the creation time is unknown
	Venue          string          `json:"venue"`
	URL            string          `json:"url"`
	PriceChange24h float64         `json:"price_change_24h"`
}

// TokenID returns the base token address, falling back to the pair address.
func (p CandidatePair) TokenID() string {
	if p.BaseToken.Address != "" {
		return p.BaseToken.Address
	}
	return p.PairAddress
}

// AgeMinutes returns the elapsed minutes since creation. ok is false when the
// creation time is unknown.
func (p CandidatePair) AgeMinutes(now time.Time) (age float64, ok bool) {
	if p.CreatedAtMs == nil {
		return 0, false
	}
	return float64(now.UnixMilli()-*p.CreatedAtMs) / 60000, true
}

// FilterConfig holds the operator thresholds. Immutable for the process lifetime.
type FilterConfig struct {
	MaxAgeMinutes   float64
	MinLiquidityUSD float64
	MinVolumeH1USD  float64 // retained, not applied by the active filter path
}

// SignalSet maps an observer name to its weight (amount of the token held).
type SignalSet map[string]float64

// Alert records one notification attempt.
type Alert struct {
	ID           int64     `json:"id"`
	TokenAddress string    `json:"token_address"`
	PairAddress  string    `json:"pair_address"`
	Symbol       string    `json:"symbol"`
	Name         string    `json:"name"`
	Score        float64   `json:"score"`
	LiquidityUSD float64   `json:"liquidity_usd"`
	AgeMinutes   int64     `json:"age_minutes"`
	Signals      int       `json:"signals"`
	Delivered    bool      `json:"delivered"`
	Message      string    `json:"message"`
	CreatedAt    time.Time `json:"created_at"`
}
