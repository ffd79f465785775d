package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/vitos/listing_alert_bot/internal/domain"
)

const DefaultPollInterval = 15 * time.Second

type MonitorConfig struct {
	Filter       domain.FilterConfig
	PollInterval time.Duration
	// NotifyUnknownAge lets candidates without a creation time through the
	// second gate. Off by default: such candidates are dropped.
	NotifyUnknownAge bool
}

// CandidateFetcher is satisfied by *ListingFetcher.
type CandidateFetcher interface {
	FetchCandidates(ctx context.Context) []domain.CandidatePair
}

// MonitorService drives the poll, notify and wait loop.
type MonitorService struct {
	fetcher     CandidateFetcher
	signals     domain.SignalSource
	notifier    domain.Notifier
	journal     domain.AlertRepository
	broadcaster domain.AlertBroadcaster
	recorder    Recorder
	cfg         MonitorConfig
	logger      *zap.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewMonitorService wires the loop. journal and broadcaster may be nil.
func NewMonitorService(
	fetcher CandidateFetcher,
	signals domain.SignalSource,
	notifier domain.Notifier,
	journal domain.AlertRepository,
	broadcaster domain.AlertBroadcaster,
	cfg MonitorConfig,
	recorder Recorder,
	logger *zap.Logger,
) *MonitorService {
	if signals == nil {
		signals = NoSignals{}
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &MonitorService{
		fetcher:     fetcher,
		signals:     signals,
		notifier:    notifier,
		journal:     journal,
		broadcaster: broadcaster,
		recorder:    recorder,
		cfg:         cfg,
		logger:      logger,
		now:         time.Now,
		sleep:       sleepContext,
	}
}

// Run polls until ctx is cancelled, which is a clean stop and returns nil.
// Any other cycle error ends the loop and is returned.
func (s *MonitorService) Run(ctx context.Context) error {
	s.logger.Info("Monitor started",
		zap.Duration("poll_interval", s.cfg.PollInterval),
		zap.Float64("max_age_minutes", s.cfg.Filter.MaxAgeMinutes),
		zap.Float64("min_liquidity_usd", s.cfg.Filter.MinLiquidityUSD))

	for {
		if err := s.RunCycle(ctx); err != nil {
			if ctx.Err() != nil {
				s.logger.Info("Monitor stopped")
				return nil
			}
			return err
		}

		s.logger.Debug("Waiting for next cycle", zap.Duration("interval", s.cfg.PollInterval))
		if err := s.sleep(ctx, s.cfg.PollInterval); err != nil {
			s.logger.Info("Monitor stopped")
			return nil
		}
	}
}

// RunCycle fetches one batch of candidates and notifies every one that
// passes the second gate.
func (s *MonitorService) RunCycle(ctx context.Context) error {
	started := s.now()

	candidates := s.fetcher.FetchCandidates(ctx)
	if err := ctx.Err(); err != nil {
		return err
	}
	s.logger.Info("Processing candidates", zap.Int("count", len(candidates)))

	for _, pair := range candidates {
		if err := s.process(ctx, pair); err != nil {
			return err
		}
	}

	s.recorder.ObserveCycle(started, s.now())
	return nil
}

func (s *MonitorService) process(ctx context.Context, pair domain.CandidatePair) error {
	token := pair.TokenID()
	if pair.PairAddress == "" || token == "" {
		s.skip(ReasonMissingID, token)
		return nil
	}

	var age int64
	if pair.CreatedAtMs == nil {
		if !s.cfg.NotifyUnknownAge {
			s.skip(ReasonUnknownAge, token)
			return nil
		}
	} else {
		// Truncated toward zero: a creation time slightly ahead of now reads as 0.
		age = int64(float64(s.now().UnixMilli()-*pair.CreatedAtMs) / 60000)
	}

	if pair.LiquidityUSD < s.cfg.Filter.MinLiquidityUSD {
		s.skip(ReasonLowLiquidity, token, zap.Float64("liquidity", pair.LiquidityUSD))
		return nil
	}

	signals := s.signals.Signals(ctx, token)
	// Volume is not scored for new pairs.
	score := Score(pair.LiquidityUSD, 0, len(signals))
	text := FormatAlert(pair, score, age, signals)

	delivered := s.notifier.Send(ctx, text)
	s.recorder.Notification(delivered)
	if delivered {
		s.logger.Info("Alert sent",
			zap.String("token", token),
			zap.String("symbol", pair.BaseToken.Symbol),
			zap.Float64("score", score),
			zap.Float64("liquidity", pair.LiquidityUSD),
			zap.Int64("age_minutes", age))
	} else {
		s.logger.Warn("Alert not delivered", zap.String("token", token))
	}

	alert := &domain.Alert{
		TokenAddress: token,
		PairAddress:  pair.PairAddress,
		Symbol:       pair.BaseToken.Symbol,
		Name:         pair.BaseToken.Name,
		Score:        score,
		LiquidityUSD: pair.LiquidityUSD,
		AgeMinutes:   age,
		Signals:      len(signals),
		Delivered:    delivered,
		Message:      text,
		CreatedAt:    s.now().UTC(),
	}
	if s.journal != nil {
		if err := s.journal.SaveAlert(ctx, alert); err != nil {
			return fmt.Errorf("failed to journal alert for %s: %w", token, err)
		}
	}
	if s.broadcaster != nil {
		s.broadcaster.Broadcast(alert)
	}
	return nil
}

func (s *MonitorService) skip(reason, token string, fields ...zap.Field) {
	s.recorder.Reject(reason)
	s.logger.Info("Candidate skipped",
		append([]zap.Field{zap.String("reason", reason), zap.String("token", token)}, fields...)...)
}
