package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vitos/listing_alert_bot/internal/domain"
)

const wrappedSOL = "So11111111111111111111111111111111111111112"

var testNow = time.UnixMilli(1_700_000_000_000)

type sourceResponse struct {
	items []domain.RawListing
	err   error
}

// fakeSource replays responses in order and repeats the last one.
type fakeSource struct {
	mu        sync.Mutex
	responses []sourceResponse
	timeTos   []time.Time
}

func (s *fakeSource) FetchNewListings(ctx context.Context, timeTo time.Time) ([]domain.RawListing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := len(s.timeTos)
	s.timeTos = append(s.timeTos, timeTo)
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	r := s.responses[idx]
	return r.items, r.err
}

func (s *fakeSource) Venue() string { return "Birdeye" }

func (s *fakeSource) TokenURL(address string) string { return "https://birdeye.so/token/" + address }

func (s *fakeSource) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timeTos)
}

func listingsOf(items ...domain.RawListing) *fakeSource {
	return &fakeSource{responses: []sourceResponse{{items: items}}}
}

// fakeResolver knows creation times by address; everything else is unknown.
type fakeResolver map[string]int64

func (r fakeResolver) ResolveCreationTime(ctx context.Context, tokenAddress string) *int64 {
	if v, ok := r[tokenAddress]; ok {
		return &v
	}
	return nil
}

type countingRecorder struct {
	mu         sync.Mutex
	listings   int
	accepted   int
	rejections map[string]int
	retries    map[string]int
	sent       int
	failed     int
	cycles     int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{rejections: map[string]int{}, retries: map[string]int{}}
}

func (r *countingRecorder) AddListings(n int) {
	r.mu.Lock()
	r.listings += n
	r.mu.Unlock()
}
func (r *countingRecorder) Accept() {
	r.mu.Lock()
	r.accepted++
	r.mu.Unlock()
}
func (r *countingRecorder) Reject(reason string) {
	r.mu.Lock()
	r.rejections[reason]++
	r.mu.Unlock()
}
func (r *countingRecorder) Retry(reason string) {
	r.mu.Lock()
	r.retries[reason]++
	r.mu.Unlock()
}
func (r *countingRecorder) Notification(delivered bool) {
	r.mu.Lock()
	if delivered {
		r.sent++
	} else {
		r.failed++
	}
	r.mu.Unlock()
}
func (r *countingRecorder) ObserveCycle(started, finished time.Time) {
	r.mu.Lock()
	r.cycles++
	r.mu.Unlock()
}

var defaultFilter = domain.FilterConfig{MaxAgeMinutes: 5, MinLiquidityUSD: 500, MinVolumeH1USD: 100}

func newTestFetcher(source domain.ListingSource, resolver domain.AgeResolver, recorder Recorder) (*ListingFetcher, *[]time.Duration) {
	f := NewListingFetcher(source, resolver, FetcherConfig{
		Filter:            defaultFilter,
		ExcludedAddresses: []string{wrappedSOL},
	}, recorder, zap.NewNop())
	f.now = func() time.Time { return testNow }

	delays := &[]time.Duration{}
	f.sleep = func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return ctx.Err()
	}
	return f, delays
}

func minutesAgo(m float64) int64 {
	return testNow.UnixMilli() - int64(m*60000)
}

func TestFetchCandidates_LiquidityThreshold(t *testing.T) {
	for _, liquidity := range []float64{0, 1, 250, 499.99, 500, 500.01, 1e6} {
		t.Run(fmt.Sprint(liquidity), func(t *testing.T) {
			source := listingsOf(domain.RawListing{"address": "mint1", "liquidity": liquidity})
			f, _ := newTestFetcher(source, fakeResolver{"mint1": minutesAgo(1)}, nil)

			got := f.FetchCandidates(context.Background())
			if liquidity < defaultFilter.MinLiquidityUSD {
				assert.Empty(t, got)
			} else {
				require.Len(t, got, 1)
				assert.Equal(t, liquidity, got[0].LiquidityUSD)
			}
		})
	}
}

func TestFetchCandidates_MaxAge(t *testing.T) {
	tests := []struct {
		age  float64
		keep bool
	}{
		{0, true},
		{1, true},
		{5, true},
		{5.01, false},
		{6, false},
		{600, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.age), func(t *testing.T) {
			created := minutesAgo(tt.age)
			source := listingsOf(domain.RawListing{"address": "mint1", "liquidity": 1000.0})
			f, _ := newTestFetcher(source, fakeResolver{"mint1": created}, nil)

			got := f.FetchCandidates(context.Background())
			if !tt.keep {
				assert.Empty(t, got)
				return
			}
			require.Len(t, got, 1)
			require.NotNil(t, got[0].CreatedAtMs)
			assert.Equal(t, created, *got[0].CreatedAtMs)
		})
	}
}

func TestFetchCandidates_UnknownAgeIsKept(t *testing.T) {
	source := listingsOf(domain.RawListing{"address": "mint1", "liquidity": 1000.0})
	f, _ := newTestFetcher(source, fakeResolver{}, nil)

	got := f.FetchCandidates(context.Background())
	require.Len(t, got, 1)
	assert.Nil(t, got[0].CreatedAtMs)
}

func TestFetchCandidates_ExcludesWrappedSOL(t *testing.T) {
	recorder := newCountingRecorder()
	source := listingsOf(
		domain.RawListing{"address": wrappedSOL, "liquidity": 1e12},
		domain.RawListing{"address": "mint1", "liquidity": 1000.0},
	)
	f, _ := newTestFetcher(source, fakeResolver{wrappedSOL: minutesAgo(0), "mint1": minutesAgo(0)}, recorder)

	got := f.FetchCandidates(context.Background())
	require.Len(t, got, 1)
	assert.Equal(t, "mint1", got[0].BaseToken.Address)
	assert.Equal(t, 1, recorder.rejections[ReasonExcluded])
}

func TestFetchCandidates_RateLimitedThenSuccess(t *testing.T) {
	recorder := newCountingRecorder()
	source := &fakeSource{responses: []sourceResponse{
		{err: fmt.Errorf("birdeye: %w", domain.ErrRateLimited)},
		{items: []domain.RawListing{{"address": "mint1", "liquidity": 1000.0}}},
	}}
	f, delays := newTestFetcher(source, fakeResolver{}, recorder)

	got := f.FetchCandidates(context.Background())
	require.Len(t, got, 1)
	assert.Equal(t, 2, source.calls())
	assert.Equal(t, []time.Duration{time.Second}, *delays)
	assert.Equal(t, 1, recorder.retries[RetryRateLimited])
}

func TestFetchCandidates_BackoffDoublesUpToCap(t *testing.T) {
	responses := make([]sourceResponse, 0, 9)
	for i := 0; i < 8; i++ {
		err := errors.New("connection refused")
		if i%2 == 0 {
			err = domain.ErrRateLimited
		}
		responses = append(responses, sourceResponse{err: err})
	}
	responses = append(responses, sourceResponse{items: []domain.RawListing{}})
	source := &fakeSource{responses: responses}
	f, delays := newTestFetcher(source, fakeResolver{}, nil)

	got := f.FetchCandidates(context.Background())
	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.Equal(t, []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		32 * time.Second,
		64 * time.Second,
		64 * time.Second,
	}, *delays)
}

func TestFetchCandidates_BackoffStartsOverEachCall(t *testing.T) {
	source := &fakeSource{responses: []sourceResponse{
		{err: domain.ErrRateLimited},
		{items: []domain.RawListing{}},
		{err: domain.ErrRateLimited},
		{items: []domain.RawListing{}},
	}}
	f, delays := newTestFetcher(source, fakeResolver{}, nil)

	f.FetchCandidates(context.Background())
	f.FetchCandidates(context.Background())
	assert.Equal(t, []time.Duration{time.Second, time.Second}, *delays)
}

func TestFetchCandidates_UnexpectedShapeSkipsCycle(t *testing.T) {
	source := &fakeSource{responses: []sourceResponse{
		{err: fmt.Errorf("missing items: %w", domain.ErrUnexpectedResponse)},
		{items: []domain.RawListing{{"address": "mint1", "liquidity": 1000.0}}},
	}}
	f, delays := newTestFetcher(source, fakeResolver{}, nil)

	got := f.FetchCandidates(context.Background())
	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.Equal(t, 1, source.calls())
	assert.Empty(t, *delays)
}

func TestFetchCandidates_CancelledWhileBackingOff(t *testing.T) {
	source := &fakeSource{responses: []sourceResponse{{err: errors.New("boom")}}}
	f, _ := newTestFetcher(source, fakeResolver{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	f.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	assert.Nil(t, f.FetchCandidates(ctx))
	assert.Equal(t, 1, source.calls())
}

func TestFetchCandidates_SendsCurrentTime(t *testing.T) {
	source := listingsOf()
	f, _ := newTestFetcher(source, fakeResolver{}, nil)

	got := f.FetchCandidates(context.Background())
	assert.NotNil(t, got)
	assert.Empty(t, got)
	require.Len(t, source.timeTos, 1)
	assert.Equal(t, testNow, source.timeTos[0])
}

func TestFetchCandidates_Normalization(t *testing.T) {
	source := listingsOf(
		domain.RawListing{
			"address":           "mint1",
			"tokenName":         "Alpha",
			"tokenSymbol":       "ALP",
			"priceUSD":          "0.000123",
			"liquidityUSD":      2500.0,
			"totalLiquidityUSD": 1.0,
			"volume24h":         2400.0,
			"marketCap":         125000.0,
			"priceChange24h":    -12.5,
			"unrelatedField":    true,
		},
		domain.RawListing{
			"address":   "mint2",
			"liquidity": 800.0,
			"v1hUSD":    42.0,
			"v24hUSD":   2400.0,
			"name":      nil,
		},
		domain.RawListing{
			"address":   "mint3",
			"liquidity": 800.0,
			"v1hUSD":    nil,
			"v24hUSD":   4800.0,
		},
	)
	f, _ := newTestFetcher(source, fakeResolver{"mint1": minutesAgo(2)}, nil)

	got := f.FetchCandidates(context.Background())
	require.Len(t, got, 3)

	alpha := got[0]
	assert.Equal(t, "mint1", alpha.PairAddress)
	assert.Equal(t, domain.Token{Name: "Alpha", Symbol: "ALP", Address: "mint1"}, alpha.BaseToken)
	assert.Equal(t, "0.000123", alpha.Price.String())
	assert.Equal(t, 2500.0, alpha.LiquidityUSD)
	assert.Equal(t, 100.0, alpha.VolumeH1USD)
	assert.Equal(t, 125000.0, alpha.MarketCap)
	assert.Equal(t, -12.5, alpha.PriceChange24h)
	assert.Equal(t, "Birdeye", alpha.Venue)
	assert.Equal(t, "https://birdeye.so/token/mint1", alpha.URL)

	second := got[1]
	assert.Equal(t, "Unknown", second.BaseToken.Name)
	assert.Equal(t, "UNKNOWN", second.BaseToken.Symbol)
	assert.Equal(t, 42.0, second.VolumeH1USD)
	assert.True(t, second.Price.IsZero())
	assert.Zero(t, second.MarketCap)
	assert.Nil(t, second.CreatedAtMs)

	assert.Equal(t, 200.0, got[2].VolumeH1USD, "null hourly volume falls back to 24h / 24")
}

func TestFetchCandidates_MalformedEntriesDoNotAbortBatch(t *testing.T) {
	recorder := newCountingRecorder()
	source := listingsOf(
		nil,
		domain.RawListing{"symbol": "NOADDR", "liquidity": 1000.0},
		domain.RawListing{"address": 12345, "liquidity": 1000.0},
		domain.RawListing{"address": "", "liquidity": 1000.0},
		domain.RawListing{"address": "badliq", "liquidity": "lots"},
		domain.RawListing{"address": "badprice", "liquidity": 1000.0, "price": map[string]any{"usd": 1}},
		domain.RawListing{"address": "badmc", "liquidity": 1000.0, "mc": true},
		domain.RawListing{"address": "nanliq", "liquidity": "NaN"},
		domain.RawListing{"address": "infliq", "liquidity": "-Inf"},
		domain.RawListing{"address": "infprice", "liquidity": 1000.0, "price": "Inf"},
		domain.RawListing{"address": "good", "liquidity": "1000.5"},
	)
	f, _ := newTestFetcher(source, fakeResolver{}, recorder)

	var got []domain.CandidatePair
	require.NotPanics(t, func() {
		got = f.FetchCandidates(context.Background())
	})
	require.Len(t, got, 1)
	assert.Equal(t, "good", got[0].BaseToken.Address)
	assert.Equal(t, 1000.5, got[0].LiquidityUSD)

	assert.Equal(t, 11, recorder.listings)
	assert.Equal(t, 1, recorder.accepted)
	assert.Equal(t, 3, recorder.rejections[ReasonNoAddress])
	assert.Equal(t, 7, recorder.rejections[ReasonMalformed])
}

// slowResolver answers later for earlier addresses so completion order is
// the reverse of upstream order.
type slowResolver struct {
	delays map[string]time.Duration
}

func (r slowResolver) ResolveCreationTime(ctx context.Context, tokenAddress string) *int64 {
	time.Sleep(r.delays[tokenAddress])
	created := minutesAgo(1)
	return &created
}

func TestFetchCandidates_KeepsUpstreamOrder(t *testing.T) {
	source := listingsOf(
		domain.RawListing{"address": "a", "liquidity": 1000.0},
		domain.RawListing{"address": "b", "liquidity": 1000.0},
		domain.RawListing{"address": "c", "liquidity": 1000.0},
		domain.RawListing{"address": "d", "liquidity": 1000.0},
	)
	resolver := slowResolver{delays: map[string]time.Duration{
		"a": 40 * time.Millisecond,
		"b": 30 * time.Millisecond,
		"c": 20 * time.Millisecond,
		"d": 10 * time.Millisecond,
	}}
	f, _ := newTestFetcher(source, resolver, nil)

	got := f.FetchCandidates(context.Background())
	require.Len(t, got, 4)
	for i, want := range []string{"a", "b", "c", "d"} {
		assert.Equal(t, want, got[i].BaseToken.Address)
	}
}

func TestNewListingFetcher_Defaults(t *testing.T) {
	f := NewListingFetcher(listingsOf(), fakeResolver{}, FetcherConfig{}, nil, zap.NewNop())
	assert.Equal(t, DefaultInitialBackoff, f.cfg.InitialBackoff)
	assert.Equal(t, DefaultMaxBackoff, f.cfg.MaxBackoff)
	assert.Equal(t, DefaultResolveConcurrency, f.cfg.ResolveConcurrency)
	assert.NotNil(t, f.recorder)
}
