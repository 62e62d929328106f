package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"quoteengine/internal/cache"
	"quoteengine/internal/provider"
	"quoteengine/internal/provider/stooq"
	"quoteengine/internal/provider/yahoo"
	"quoteengine/internal/symbol"
)

// historyStep is one entry of the per-segment priority list. currency
// resolves the native currency of a successful fetch; returning the
// settlement currency means "no FX step".
type historyStep struct {
	name     string
	fetch    func(ctx context.Context) (provider.History, error)
	currency func(h provider.History) string
}

// historyPlan builds the ordered provider list for a symbol. The ordering is
// a strict priority: the first step yielding a non-empty series wins and the
// rest are never consulted.
func (e *Engine) historyPlan(sym symbol.Symbol, rng, interval string) []historyStep {
	settled := func(provider.History) string { return e.cfg.Settlement }
	guessed := func(h provider.History) string {
		if h.Currency != "" {
			return h.Currency
		}
		if sym.Currency != "" {
			return sym.Currency
		}
		return "USD"
	}

	switch sym.Segment {
	case symbol.SegmentIndex:
		// Index series are currency-agnostic here: no FX step on any path.
		steps := make([]historyStep, 0, 3)
		for _, alias := range yahoo.IndexAliases(sym) {
			alias := alias
			steps = append(steps, historyStep{
				name: e.global.Name() + ":" + alias,
				fetch: func(ctx context.Context) (provider.History, error) {
					return e.global.FetchHistory(ctx, alias, rng, interval)
				},
				currency: settled,
			})
		}
		code := stooq.Code(sym)
		steps = append(steps, historyStep{
			name: e.domestic.Name() + ":" + code,
			fetch: func(ctx context.Context) (provider.History, error) {
				return e.domestic.FetchHistory(ctx, code, rng, interval)
			},
			currency: settled,
		})
		return steps

	case symbol.SegmentDomestic:
		code := stooq.Code(sym)
		global := yahoo.Code(sym)
		return []historyStep{
			{
				name: e.domestic.Name() + ":" + code,
				fetch: func(ctx context.Context) (provider.History, error) {
					return e.domestic.FetchHistory(ctx, code, rng, interval)
				},
				currency: settled,
			},
			{
				name: e.global.Name() + ":" + global,
				fetch: func(ctx context.Context) (provider.History, error) {
					return e.global.FetchHistory(ctx, global, rng, interval)
				},
				currency: guessed,
			},
		}

	default: // foreign
		code := stooq.Code(sym)
		global := yahoo.Code(sym)
		return []historyStep{
			{
				name: e.domestic.Name() + ":" + code,
				fetch: func(ctx context.Context) (provider.History, error) {
					return e.domestic.FetchHistory(ctx, code, rng, interval)
				},
				currency: guessed,
			},
			{
				name: e.global.Name() + ":" + global,
				fetch: func(ctx context.Context) (provider.History, error) {
					return e.global.FetchHistory(ctx, global, rng, interval)
				},
				currency: guessed,
			},
		}
	}
}

// GetHistory resolves a settlement-currency daily series for a raw ticker.
// Total failure and "no such instrument" both come back as an empty slice.
func (e *Engine) GetHistory(ctx context.Context, raw, rng, interval string) []PricePointSettled {
	sym := symbol.Classify(raw)
	interval = normalizeInterval(interval)
	if rng == "" {
		rng = "1y"
	}
	key := fmt.Sprintf("h:%s:%s:%s", sym.Canonical, rng, interval)
	v, ok := e.cache.Resolve(ctx, key, cache.ClassHistory, func(ctx context.Context) (any, error) {
		return e.resolveHistory(ctx, sym, rng, interval)
	})
	if !ok {
		return []PricePointSettled{}
	}
	return v.([]PricePointSettled)
}

func (e *Engine) resolveHistory(ctx context.Context, sym symbol.Symbol, rng, interval string) ([]PricePointSettled, error) {
	for _, step := range e.historyPlan(sym, rng, interval) {
		h, err := step.fetch(ctx)
		if err != nil {
			e.log.Debug("history step failed", zap.String("symbol", sym.Canonical), zap.String("step", step.name), zap.Error(err))
			continue
		}
		if h.Status != provider.StatusOK {
			if h.Status == provider.StatusRateLimited {
				e.log.Debug("history step rate limited", zap.String("symbol", sym.Canonical), zap.String("step", step.name))
			}
			continue
		}
		settled := e.settle(ctx, h.Points, step.currency(h))
		if len(settled) == 0 {
			// The series existed but no FX rate could be resolved for any
			// point; per the cascade rules a non-empty fetch still wins, so
			// this resolution ends here.
			return nil, fmt.Errorf("history %s: fx unresolved via %s", sym.Canonical, step.name)
		}
		return filterRange(settled, rng, e.nowFn()), nil
	}
	return nil, fmt.Errorf("history %s: no provider had data", sym.Canonical)
}

// settle converts native-currency points into the settlement currency.
// Pence-denominated series are normalized to pounds first. Points without a
// resolvable rate inside the backfill window are dropped.
func (e *Engine) settle(ctx context.Context, points []provider.PricePoint, currency string) []PricePointSettled {
	scale := 1.0
	if currency == symbol.Pence {
		scale = 0.01
		currency = "GBP"
	}
	if currency == e.cfg.Settlement {
		out := make([]PricePointSettled, 0, len(points))
		for _, p := range points {
			out = append(out, PricePointSettled{Date: p.Date, Close: p.Close * scale})
		}
		return out
	}
	acc, ok := e.fx.Accessor(ctx, currency, points[0].Date, points[len(points)-1].Date)
	if !ok {
		return nil
	}
	out := make([]PricePointSettled, 0, len(points))
	for _, p := range points {
		rate, ok := acc.On(p.Date)
		if !ok {
			continue
		}
		out = append(out, PricePointSettled{Date: p.Date, Close: p.Close * scale * rate})
	}
	return out
}
