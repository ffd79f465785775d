package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jpillora/backoff"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vitos/listing_alert_bot/internal/domain"
)

const (
	DefaultInitialBackoff     = 1 * time.Second
	DefaultMaxBackoff         = 64 * time.Second
	DefaultResolveConcurrency = 4
)

type FetcherConfig struct {
	Filter             domain.FilterConfig
	ExcludedAddresses  []string
	InitialBackoff     time.Duration
	MaxBackoff         time.Duration
	ResolveConcurrency int
}

// ListingFetcher turns the newest upstream listings into filtered, normalized
// candidates.
type ListingFetcher struct {
	source   domain.ListingSource
	resolver domain.AgeResolver
	cfg      FetcherConfig
	excluded map[string]struct{}
	recorder Recorder
	logger   *zap.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewListingFetcher(source domain.ListingSource, resolver domain.AgeResolver, cfg FetcherConfig, recorder Recorder, logger *zap.Logger) *ListingFetcher {
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = DefaultInitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = DefaultMaxBackoff
	}
	if cfg.ResolveConcurrency <= 0 {
		cfg.ResolveConcurrency = DefaultResolveConcurrency
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &ListingFetcher{
		source:   source,
		resolver: resolver,
		cfg:      cfg,
		excluded: lo.Keyify(cfg.ExcludedAddresses),
		recorder: recorder,
		logger:   logger,
		now:      time.Now,
		sleep:    sleepContext,
	}
}

// FetchCandidates never fails. Upstream errors are retried with capped
// exponential backoff until they clear; it returns nil only once ctx is done.
func (f *ListingFetcher) FetchCandidates(ctx context.Context) []domain.CandidatePair {
	b := &backoff.Backoff{
		Min:    f.cfg.InitialBackoff,
		Max:    f.cfg.MaxBackoff,
		Factor: 2,
	}

	for {
		now := f.now()
		items, err := f.source.FetchNewListings(ctx, now)
		if err == nil {
			return f.filter(ctx, items, now)
		}
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, domain.ErrUnexpectedResponse) {
			f.logger.Error("Unexpected listings response, skipping cycle", zap.Error(err))
			return []domain.CandidatePair{}
		}

		delay := b.Duration()
		if errors.Is(err, domain.ErrRateLimited) {
			f.recorder.Retry(RetryRateLimited)
			f.logger.Warn("Listings rate limited, backing off", zap.Duration("backoff", delay))
		} else {
			f.recorder.Retry(RetryError)
			f.logger.Error("Listings request failed, retrying", zap.Duration("backoff", delay), zap.Error(err))
		}
		if err := f.sleep(ctx, delay); err != nil {
			return nil
		}
	}
}

type pendingEntry struct {
	raw       domain.RawListing
	address   string
	liquidity float64
}

func (f *ListingFetcher) filter(ctx context.Context, items []domain.RawListing, now time.Time) []domain.CandidatePair {
	f.recorder.AddListings(len(items))
	f.logger.Debug("Listings received", zap.Int("count", len(items)))

	pending := make([]pendingEntry, 0, len(items))
	for i, raw := range items {
		if raw == nil {
			f.reject(ReasonMalformed, "", zap.Int("index", i))
			continue
		}
		address := raw.String("", domain.FieldAddress...)
		if address == "" {
			f.reject(ReasonNoAddress, "", zap.Int("index", i))
			continue
		}
		if _, ok := f.excluded[address]; ok {
			f.reject(ReasonExcluded, address)
			continue
		}
		liquidity, err := raw.Float(domain.FieldLiquidity...)
		if err != nil {
			f.reject(ReasonMalformed, address, zap.Error(err))
			continue
		}
		if liquidity < f.cfg.Filter.MinLiquidityUSD {
			f.reject(ReasonLowLiquidity, address, zap.Float64("liquidity", liquidity))
			continue
		}
		pending = append(pending, pendingEntry{raw: raw, address: address, liquidity: liquidity})
	}

	created := f.resolveAges(ctx, pending)
	if ctx.Err() != nil {
		return nil
	}

	candidates := make([]domain.CandidatePair, 0, len(pending))
	for i, entry := range pending {
		if created[i] != nil {
			age := float64(now.UnixMilli()-*created[i]) / 60000
			if age > f.cfg.Filter.MaxAgeMinutes {
				f.reject(ReasonTooOld, entry.address, zap.Float64("age_minutes", age))
				continue
			}
		} else {
			f.logger.Debug("Creation time unknown, assuming new", zap.String("token", entry.address))
		}

		pair, err := f.normalize(entry, created[i])
		if err != nil {
			f.reject(ReasonMalformed, entry.address, zap.Error(err))
			continue
		}
		f.recorder.Accept()
		candidates = append(candidates, pair)
	}

	f.logger.Info("Listings filtered",
		zap.Int("received", len(items)),
		zap.Int("candidates", len(candidates)))
	return candidates
}

// resolveAges looks up creation times with bounded concurrency. The result is
// index-aligned with pending.
func (f *ListingFetcher) resolveAges(ctx context.Context, pending []pendingEntry) []*int64 {
	created := make([]*int64, len(pending))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.cfg.ResolveConcurrency)
	for i, entry := range pending {
		i, entry := i, entry
		g.Go(func() error {
			created[i] = f.resolver.ResolveCreationTime(gctx, entry.address)
			return nil
		})
	}
	_ = g.Wait()

	return created
}

func (f *ListingFetcher) normalize(entry pendingEntry, createdAt *int64) (domain.CandidatePair, error) {
	raw := entry.raw

	price, err := raw.Float(domain.FieldPrice...)
	if err != nil {
		return domain.CandidatePair{}, fmt.Errorf("price: %w", err)
	}

	var volumeH1 float64
	if raw.Has(domain.FieldVolumeH1...) {
		if volumeH1, err = raw.Float(domain.FieldVolumeH1...); err != nil {
			return domain.CandidatePair{}, fmt.Errorf("volume 1h: %w", err)
		}
	} else {
		volume24h, err := raw.Float(domain.FieldVolumeH24...)
		if err != nil {
			return domain.CandidatePair{}, fmt.Errorf("volume 24h: %w", err)
		}
		volumeH1 = volume24h / 24
	}

	marketCap, err := raw.Float(domain.FieldMarketCap...)
	if err != nil {
		return domain.CandidatePair{}, fmt.Errorf("market cap: %w", err)
	}
	change, err := raw.Float(domain.FieldPriceChange24h...)
	if err != nil {
		return domain.CandidatePair{}, fmt.Errorf("24h change: %w", err)
	}

	return domain.CandidatePair{
		PairAddress: entry.address,
		BaseToken: domain.Token{
			Name:    raw.String("Unknown", domain.FieldName...),
			Symbol:  raw.String("UNKNOWN", domain.FieldSymbol...),
			Address: entry.address,
		},
		Price:          decimal.NewFromFloat(price),
		LiquidityUSD:   entry.liquidity,
		VolumeH1USD:    volumeH1,
		MarketCap:      marketCap,
		CreatedAtMs:    createdAt,
		Venue:          f.source.Venue(),
		URL:            f.source.TokenURL(entry.address),
		PriceChange24h: change,
	}, nil
}

func (f *ListingFetcher) reject(reason, address string, fields ...zap.Field) {
	f.recorder.Reject(reason)
	f.logger.Debug("Listing skipped",
		append([]zap.Field{zap.String("reason", reason), zap.String("token", address)}, fields...)...)
}
