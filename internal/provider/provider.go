package provider

import (
	"context"
	"errors"
	"time"
)

// ErrRateLimited marks a response the upstream answered with a rate-limit
// marker instead of data. Callers advance to the next provider rather than
// retrying.
var ErrRateLimited = errors.New("provider rate limited")

// PricePoint is a single daily close in the provider's native currency.
// Date is a calendar day (UTC midnight); Close is always positive, adapters
// drop anything else at the boundary.
type PricePoint struct {
	Date  time.Time `json:"date"`
	Close float64   `json:"close"`
}

// Quote is a point-in-time price in the provider's native currency.
// Price or PrevClose may be nil when the upstream did not carry them.
type Quote struct {
	Price     *float64 `json:"price"`
	PrevClose *float64 `json:"prevClose"`
	Currency  string   `json:"currency"`
}

// HistoryStatus tags a history fetch outcome so callers can tell
// "this provider is throttling" from "this provider has nothing".
type HistoryStatus int

const (
	StatusOK HistoryStatus = iota
	StatusRateLimited
	StatusEmpty
)

// History is the normalized result of a history fetch. Currency may be empty
// when the feed does not state one (the caller then falls back to the
// classifier's guess).
type History struct {
	Status   HistoryStatus
	Points   []PricePoint
	Currency string
}

func OK(points []PricePoint, currency string) History {
	if len(points) == 0 {
		return Empty()
	}
	return History{Status: StatusOK, Points: points, Currency: currency}
}

func RateLimited() History { return History{Status: StatusRateLimited} }

func Empty() History { return History{Status: StatusEmpty} }

// HistorySource fetches a daily close series for a provider-native code.
type HistorySource interface {
	Name() string
	FetchHistory(ctx context.Context, code, rng, interval string) (History, error)
}

// QuoteSource fetches a current price and previous close for a
// provider-native code. A nil quote with nil error means "no data".
type QuoteSource interface {
	Name() string
	FetchQuote(ctx context.Context, code string) (*Quote, error)
}

// Source is a full adapter able to serve both contracts.
type Source interface {
	HistorySource
	QuoteSource
}

// Day truncates t to its calendar day in UTC.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Float returns a pointer to v; small helper for optional quote fields.
func Float(v float64) *float64 { return &v }
