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

type quoteStep struct {
	name     string
	fetch    func(ctx context.Context) (*provider.Quote, error)
	currency func(q *provider.Quote) string
}

// quotePlan mirrors historyPlan for a single point-in-time value, with the
// secondary quote API as a tertiary fallback for equities.
func (e *Engine) quotePlan(sym symbol.Symbol) []quoteStep {
	settled := func(*provider.Quote) string { return e.cfg.Settlement }
	guessed := func(q *provider.Quote) string {
		if q.Currency != "" {
			return q.Currency
		}
		if sym.Currency != "" {
			return sym.Currency
		}
		return "USD"
	}

	if sym.Segment == symbol.SegmentIndex {
		steps := make([]quoteStep, 0, 3)
		for _, alias := range yahoo.IndexAliases(sym) {
			alias := alias
			steps = append(steps, quoteStep{
				name: e.global.Name() + ":" + alias,
				fetch: func(ctx context.Context) (*provider.Quote, error) {
					return e.global.FetchQuote(ctx, alias)
				},
				currency: settled,
			})
		}
		code := stooq.Code(sym)
		steps = append(steps, quoteStep{
			name: e.domestic.Name() + ":" + code,
			fetch: func(ctx context.Context) (*provider.Quote, error) {
				return e.domestic.FetchQuote(ctx, code)
			},
			currency: settled,
		})
		return steps
	}

	domesticCurrency := guessed
	if sym.Segment == symbol.SegmentDomestic {
		domesticCurrency = settled
	}
	code := stooq.Code(sym)
	global := yahoo.Code(sym)
	steps := []quoteStep{
		{
			name: e.domestic.Name() + ":" + code,
			fetch: func(ctx context.Context) (*provider.Quote, error) {
				return e.domestic.FetchQuote(ctx, code)
			},
			currency: domesticCurrency,
		},
		{
			name: e.global.Name() + ":" + global,
			fetch: func(ctx context.Context) (*provider.Quote, error) {
				return e.global.FetchQuote(ctx, global)
			},
			currency: guessed,
		},
	}
	if e.secondary != nil {
		steps = append(steps, quoteStep{
			name: e.secondary.Name() + ":" + global,
			fetch: func(ctx context.Context) (*provider.Quote, error) {
				return e.secondary.FetchQuote(ctx, global)
			},
			currency: guessed,
		})
	}
	return steps
}

// GetQuote resolves a settlement-currency quote for a raw ticker. On total
// failure the price fields are nil; the call itself never fails.
func (e *Engine) GetQuote(ctx context.Context, raw string) QuoteSettled {
	sym := symbol.Classify(raw)
	key := "q:" + sym.Canonical
	v, ok := e.cache.Resolve(ctx, key, cache.ClassQuote, func(ctx context.Context) (any, error) {
		return e.resolveQuote(ctx, sym)
	})
	if !ok {
		return QuoteSettled{Currency: e.cfg.Settlement}
	}
	return v.(QuoteSettled)
}

func (e *Engine) resolveQuote(ctx context.Context, sym symbol.Symbol) (QuoteSettled, error) {
	for _, step := range e.quotePlan(sym) {
		q, err := step.fetch(ctx)
		if err != nil {
			e.log.Debug("quote step failed", zap.String("symbol", sym.Canonical), zap.String("step", step.name), zap.Error(err))
			continue
		}
		if q == nil || (q.Price == nil && q.PrevClose == nil) {
			continue
		}
		settled, ok := e.settleQuote(ctx, q, step.currency(q))
		if !ok {
			return QuoteSettled{}, fmt.Errorf("quote %s: fx unresolved via %s", sym.Canonical, step.name)
		}
		settled.Source = step.name
		return settled, nil
	}
	return QuoteSettled{}, fmt.Errorf("quote %s: no provider had data", sym.Canonical)
}

func (e *Engine) settleQuote(ctx context.Context, q *provider.Quote, currency string) (QuoteSettled, bool) {
	scale := 1.0
	if currency == symbol.Pence {
		scale = 0.01
		currency = "GBP"
	}
	rate := 1.0
	if currency != e.cfg.Settlement {
		r, ok := e.fx.Rate(ctx, currency)
		if !ok {
			return QuoteSettled{}, false
		}
		rate = r
	}
	out := QuoteSettled{Currency: e.cfg.Settlement}
	if q.Price != nil {
		out.Price = provider.Float(*q.Price * scale * rate)
	}
	if q.PrevClose != nil {
		out.PrevClose = provider.Float(*q.PrevClose * scale * rate)
	}
	return out, true
}
