package engine

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// GetHistoryBatch resolves many symbols under a bounded worker pool. Every
// requested id gets a key in the result; a symbol whose resolution fails
// completely maps to an empty slice rather than failing the batch.
func (e *Engine) GetHistoryBatch(ctx context.Context, items []BatchItem, rng, interval string) map[string][]PricePointSettled {
	out := make(map[string][]PricePointSettled, len(items))
	if len(items) == 0 {
		return out
	}

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(e.cfg.BatchConcurrency)
	for _, item := range items {
		id := item.ID
		if id == "" {
			id = item.Symbol
		}
		sym := item.Symbol
		g.Go(func() error {
			series := e.GetHistory(ctx, sym, rng, interval)
			mu.Lock()
			out[id] = series
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // workers never return errors; failures are empty series
	return out
}
