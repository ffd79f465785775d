package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Field aliases for the logical listing attributes. Upstream schemas name the
// same concept differently; the first key present wins.
var (
	FieldAddress        = []string{"address"}
	FieldName           = []string{"name", "tokenName"}
	FieldSymbol         = []string{"symbol", "tokenSymbol"}
	FieldPrice          = []string{"price", "priceUSD"}
	FieldLiquidity      = []string{"liquidity", "liquidityUSD", "totalLiquidityUSD"}
	FieldVolumeH1       = []string{"v1hUSD", "volume1h", "volume1hUSD"}
	FieldVolumeH24      = []string{"v24hUSD", "volume24h", "volume24hUSD"}
	FieldMarketCap      = []string{"mc", "marketCap", "marketCapUSD"}
	FieldPriceChange24h = []string{"v24hChangePercent", "priceChange24h"}
)

// RawListing is one undecoded entry of the listings endpoint.
type RawListing map[string]any

// Lookup returns the value of the first alias present in the entry, even when
// that value is null.
func (r RawListing) Lookup(aliases ...string) (any, bool) {
	for _, key := range aliases {
		if v, ok := r[key]; ok {
			return v, true
		}
	}
	return nil, false
}

// String returns the first aliased value as a string, or def when it is
// absent or not a non-empty string.
func (r RawListing) String(def string, aliases ...string) string {
	v, ok := r.Lookup(aliases...)
	if !ok {
		return def
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return def
	}
	return s
}

// Float returns the first aliased value as a number. Absent and null values
// are zero; numeric strings are accepted. NaN and infinities are errors.
func (r RawListing) Float(aliases ...string) (float64, error) {
	v, ok := r.Lookup(aliases...)
	if !ok || v == nil {
		return 0, nil
	}
	return toFloat(v)
}

// Has reports whether the first alias present carries a non-null value.
func (r RawListing) Has(aliases ...string) bool {
	v, ok := r.Lookup(aliases...)
	return ok && v != nil
}

func toFloat(v any) (float64, error) {
	var (
		f   float64
		err error
	)
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		f, err = n.Float64()
	case string:
		f, err = strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", n)
		}
	default:
		return 0, fmt.Errorf("unexpected numeric type %T", v)
	}
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("not a finite number: %v", v)
	}
	return f, nil
}
