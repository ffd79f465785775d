package domain

import (
	"context"
	"time"
)

// ListingSource fetches the newest token listings from an upstream API.
type ListingSource interface {
	// FetchNewListings returns the raw entries listed up to timeTo, newest
	// first. It returns ErrRateLimited on 429 and ErrUnexpectedResponse when
	// the body has the wrong shape.
	FetchNewListings(ctx context.Context, timeTo time.Time) ([]RawListing, error)
	// Venue names the source in notifications.
	Venue() string
	// TokenURL returns the public page of a token on this source.
	TokenURL(address string) string
}

// AgeResolver looks up when a token's main pair was created.
type AgeResolver interface {
	// ResolveCreationTime returns the creation time in ms since epoch, or nil
	// when unknown. It never fails.
	ResolveCreationTime(ctx context.Context, tokenAddress string) *int64
}

// Notifier delivers a formatted message to the chat channel.
type Notifier interface {
	Send(ctx context.Context, text string) bool
}

// SignalSource reports which observers are backing a token.
type SignalSource interface {
	Signals(ctx context.Context, tokenAddress string) SignalSet
}

// AlertRepository keeps the in-process journal of notification attempts.
type AlertRepository interface {
	SaveAlert(ctx context.Context, alert *Alert) error
	ListAlerts(ctx context.Context, limit int) ([]*Alert, error)
}

// AlertBroadcaster pushes alerts to live subscribers.
type AlertBroadcaster interface {
	Broadcast(alert *Alert)
}
