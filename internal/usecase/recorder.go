package usecase

import (
	"context"
	"time"
)

// Rejection reasons reported to the Recorder.
const (
	ReasonMalformed    = "malformed"
	ReasonNoAddress    = "no_address"
	ReasonExcluded     = "excluded"
	ReasonLowLiquidity = "low_liquidity"
	ReasonTooOld       = "too_old"
	ReasonUnknownAge   = "unknown_age"
	ReasonMissingID    = "missing_id"
)

// Retry reasons reported to the Recorder.
const (
	RetryRateLimited = "rate_limited"
	RetryError       = "error"
)

// Recorder receives pipeline counters. metrics.Metrics implements it.
type Recorder interface {
	AddListings(n int)
	Accept()
	Reject(reason string)
	Retry(reason string)
	Notification(delivered bool)
	ObserveCycle(started, finished time.Time)
}

type nopRecorder struct{}

func (nopRecorder) AddListings(int)                   {}
func (nopRecorder) Accept()                           {}
func (nopRecorder) Reject(string)                     {}
func (nopRecorder) Retry(string)                      {}
func (nopRecorder) Notification(bool)                 {}
func (nopRecorder) ObserveCycle(time.Time, time.Time) {}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
