// Package fx resolves currency rates into the settlement currency through an
// ordered source cascade: exchange pair feed, central-bank API, generic FX
// API. Daily rates only; a missing day is backfilled from the nearest earlier
// rate within a bounded window, never interpolated.
package fx

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"quoteengine/internal/cache"
	"quoteengine/internal/symbol"
)

// Rate is a point-in-time fact: how many units of the settlement currency one
// unit of Code bought on Date.
type Rate struct {
	Code string
	Date time.Time
	Mid  float64
}

// Source is one step of the cascade.
type Source interface {
	Name() string
	Latest(ctx context.Context, code string) (*Rate, error)
	Series(ctx context.Context, code string, from, to time.Time) ([]Rate, error)
}

// BackfillDays bounds how far back a missing day may borrow a rate.
const BackfillDays = 7

type Resolver struct {
	settlement string
	sources    []Source
	cache      *cache.Cache
	log        *zap.Logger
}

func NewResolver(settlement string, sources []Source, c *cache.Cache, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{settlement: settlement, sources: sources, cache: c, log: log}
}

func (r *Resolver) Settlement() string { return r.settlement }

// Alias maps pseudo-currency codes to the currency actually traded; pence
// stay the caller's problem (the ÷100 happens before conversion).
func Alias(code string) string {
	if code == symbol.Pence {
		return "GBP"
	}
	return code
}

// Rate returns the latest known rate for code against the settlement
// currency. Same-currency requests short-circuit to 1. ok=false means the
// whole cascade came up empty: conversion impossible, never parity.
func (r *Resolver) Rate(ctx context.Context, code string) (float64, bool) {
	code = Alias(code)
	if code == "" || code == r.settlement {
		return 1, true
	}
	key := "fx:rate:" + code
	v, ok := r.cache.Resolve(ctx, key, cache.ClassEOD, func(ctx context.Context) (any, error) {
		for _, s := range r.sources {
			rate, err := s.Latest(ctx, code)
			if err != nil {
				r.log.Debug("fx source failed", zap.String("source", s.Name()), zap.String("code", code), zap.Error(err))
				continue
			}
			if rate != nil && rate.Mid > 0 {
				return rate.Mid, nil
			}
		}
		return nil, fmt.Errorf("fx: no source resolved %s", code)
	})
	if !ok {
		return 0, false
	}
	return v.(float64), true
}

// Accessor returns a per-day rate lookup for code over [from, to], fed by the
// first cascade source that produces a non-empty series. The window is
// widened backwards by BackfillDays so early points can backfill too.
func (r *Resolver) Accessor(ctx context.Context, code string, from, to time.Time) (*Accessor, bool) {
	code = Alias(code)
	if code == "" || code == r.settlement {
		return &Accessor{unit: true}, true
	}
	lookbackFrom := from.AddDate(0, 0, -BackfillDays)
	key := fmt.Sprintf("fx:series:%s:%s:%s", code, lookbackFrom.Format("2006-01-02"), to.Format("2006-01-02"))
	v, ok := r.cache.Resolve(ctx, key, cache.ClassEOD, func(ctx context.Context) (any, error) {
		for _, s := range r.sources {
			rates, err := s.Series(ctx, code, lookbackFrom, to)
			if err != nil {
				r.log.Debug("fx source failed", zap.String("source", s.Name()), zap.String("code", code), zap.Error(err))
				continue
			}
			if len(rates) > 0 {
				return rates, nil
			}
		}
		return nil, fmt.Errorf("fx: no source resolved %s series", code)
	})
	if !ok {
		return nil, false
	}
	return newAccessor(v.([]Rate)), true
}

// Accessor answers "what was the rate on this day" with backfill.
type Accessor struct {
	unit  bool
	byDay map[string]float64
}

func newAccessor(rates []Rate) *Accessor {
	a := &Accessor{byDay: make(map[string]float64, len(rates))}
	for _, r := range rates {
		if r.Mid > 0 {
			a.byDay[r.Date.Format("2006-01-02")] = r.Mid
		}
	}
	return a
}

// On returns the rate for day, falling back to the nearest earlier day within
// BackfillDays. ok=false means the point has no resolvable rate and must be
// dropped.
func (a *Accessor) On(day time.Time) (float64, bool) {
	if a.unit {
		return 1, true
	}
	for i := 0; i <= BackfillDays; i++ {
		if v, ok := a.byDay[day.AddDate(0, 0, -i).Format("2006-01-02")]; ok {
			return v, true
		}
	}
	return 0, false
}
