package usecase

import (
	"context"

	"github.com/vitos/listing_alert_bot/internal/domain"
)

// NoSignals is the SignalSource used when no observer wallets are configured.
type NoSignals struct{}

func (NoSignals) Signals(context.Context, string) domain.SignalSet {
	return domain.SignalSet{}
}
