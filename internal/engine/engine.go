// Package engine orchestrates provider adapters and the FX resolver into the
// three calls the application sees: quote, history, history batch. All output
// is in the settlement currency. Nothing here returns an error: a resolution
// that fails completely looks exactly like an instrument with no data.
package engine

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"quoteengine/internal/cache"
	"quoteengine/internal/fx"
	"quoteengine/internal/provider"
)

type Config struct {
	Settlement       string // default PLN
	BatchConcurrency int    // default 8
}

type Engine struct {
	cfg       Config
	domestic  provider.Source      // exchange CSV feed
	global    provider.Source      // quote/chart JSON feed
	secondary provider.QuoteSource // tertiary quote fallback, may be nil
	fx        *fx.Resolver
	cache     *cache.Cache
	log       *zap.Logger

	nowFn func() time.Time
}

func New(cfg Config, domestic, global provider.Source, secondary provider.QuoteSource, fxr *fx.Resolver, c *cache.Cache, log *zap.Logger) *Engine {
	if cfg.Settlement == "" {
		cfg.Settlement = "PLN"
	}
	if cfg.BatchConcurrency <= 0 {
		cfg.BatchConcurrency = 8
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		cfg:       cfg,
		domestic:  domestic,
		global:    global,
		secondary: secondary,
		fx:        fxr,
		cache:     c,
		log:       log,
		nowFn:     time.Now,
	}
}

// PricePointSettled is a daily close converted to the settlement currency.
type PricePointSettled struct {
	Date  time.Time
	Close float64
}

// MarshalJSON emits the calendar day, not a timestamp.
func (p PricePointSettled) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf(`{"date":%q,"close":%g}`, p.Date.Format("2006-01-02"), p.Close)), nil
}

// QuoteSettled is a settlement-currency quote plus the provider path that
// produced it. Price is nil when no provider had one.
type QuoteSettled struct {
	Price     *float64 `json:"pricePLN"`
	PrevClose *float64 `json:"prevClosePLN"`
	Currency  string   `json:"currency"`
	Source    string   `json:"source"`
}

// BatchItem pairs a caller-side id with the symbol to resolve. An empty ID
// falls back to the symbol itself.
type BatchItem struct {
	ID     string `json:"id"`
	Symbol string `json:"symbol"`
}

// normalizeInterval clamps the request interval to the supported set.
func normalizeInterval(interval string) string {
	switch interval {
	case "1d", "1wk", "1mo":
		return interval
	default:
		return "1d"
	}
}
