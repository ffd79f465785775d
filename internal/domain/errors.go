package domain

import "errors"

var (
	// ErrRateLimited is returned by a ListingSource when upstream answers 429.
	ErrRateLimited = errors.New("rate limited")
	// ErrUnexpectedResponse means the body decoded but did not have the
	// expected shape. Callers treat it as "no data this cycle".
	ErrUnexpectedResponse = errors.New("unexpected response structure")
)
