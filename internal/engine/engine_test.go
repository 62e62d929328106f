package engine

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"quoteengine/internal/cache"
	"quoteengine/internal/fx"
	"quoteengine/internal/provider"
)

// fakeSource scripts per-code responses and counts upstream calls.
type fakeSource struct {
	name      string
	histories map[string]provider.History
	quotes    map[string]*provider.Quote
	quoteErr  map[string]error

	historyCalls atomic.Int32
	quoteCalls   atomic.Int32
	block        chan struct{} // when set, FetchQuote waits on it
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) FetchHistory(ctx context.Context, code, rng, interval string) (provider.History, error) {
	f.historyCalls.Add(1)
	if h, ok := f.histories[code]; ok {
		return h, nil
	}
	return provider.Empty(), nil
}

func (f *fakeSource) FetchQuote(ctx context.Context, code string) (*provider.Quote, error) {
	f.quoteCalls.Add(1)
	if f.block != nil {
		<-f.block
	}
	if err, ok := f.quoteErr[code]; ok {
		return nil, err
	}
	return f.quotes[code], nil
}

// fakeFxSource serves scripted rates into the resolver cascade.
type fakeFxSource struct {
	latest map[string]float64
	series map[string][]fx.Rate
	calls  atomic.Int32
}

func (f *fakeFxSource) Name() string { return "fake-fx" }

func (f *fakeFxSource) Latest(ctx context.Context, code string) (*fx.Rate, error) {
	f.calls.Add(1)
	if v, ok := f.latest[code]; ok {
		return &fx.Rate{Code: code, Date: day(2024, 1, 2), Mid: v}, nil
	}
	return nil, nil
}

func (f *fakeFxSource) Series(ctx context.Context, code string, from, to time.Time) ([]fx.Rate, error) {
	f.calls.Add(1)
	return f.series[code], nil
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func points(pp ...provider.PricePoint) provider.History {
	return provider.OK(pp, "")
}

func newTestEngine(domestic, global *fakeSource, secondary provider.QuoteSource, fxSrc *fakeFxSource) *Engine {
	c := cache.New(cache.Config{}, nil)
	resolver := fx.NewResolver("PLN", []fx.Source{fxSrc}, c, nil)
	e := New(Config{Settlement: "PLN", BatchConcurrency: 4}, domestic, global, secondary, resolver, c, nil)
	e.nowFn = func() time.Time { return day(2024, 6, 1) }
	return e
}

func TestGetHistory_DomesticSeriesNoFXStep(t *testing.T) {
	domestic := &fakeSource{name: "stooq", histories: map[string]provider.History{
		"xyz": points(
			provider.PricePoint{Date: day(2024, 1, 2), Close: 100},
			provider.PricePoint{Date: day(2024, 1, 3), Close: 102},
		),
	}}
	global := &fakeSource{name: "yahoo"}
	fxSrc := &fakeFxSource{}
	e := newTestEngine(domestic, global, nil, fxSrc)

	got := e.GetHistory(context.Background(), "XYZ.WA", "1y", "1d")
	if len(got) != 2 || got[0].Close != 100 || got[1].Close != 102 {
		t.Fatalf("series: %+v", got)
	}
	if fxSrc.calls.Load() != 0 {
		t.Fatalf("fx consulted for a settlement-currency series")
	}
	if global.historyCalls.Load() != 0 {
		t.Fatalf("global consulted although domestic succeeded")
	}
}

func TestGetHistory_ForeignFallsBackAndConverts(t *testing.T) {
	domestic := &fakeSource{name: "stooq"} // empty for everything
	global := &fakeSource{name: "yahoo", histories: map[string]provider.History{
		"ABC": provider.OK([]provider.PricePoint{{Date: day(2024, 1, 2), Close: 10.0}}, "USD"),
	}}
	fxSrc := &fakeFxSource{series: map[string][]fx.Rate{
		"USD": {{Code: "USD", Date: day(2024, 1, 2), Mid: 4.0}},
	}}
	e := newTestEngine(domestic, global, nil, fxSrc)

	got := e.GetHistory(context.Background(), "ABC", "1y", "1d")
	if len(got) != 1 {
		t.Fatalf("series: %+v", got)
	}
	if math.Abs(got[0].Close-40.0) > 1e-9 {
		t.Fatalf("close: %v", got[0].Close)
	}
	if domestic.historyCalls.Load() != 1 {
		t.Fatalf("domestic-style adapter not tried first")
	}
}

func TestGetHistory_RoundTripConstantRate(t *testing.T) {
	native := []provider.PricePoint{
		{Date: day(2024, 1, 2), Close: 10.0},
		{Date: day(2024, 1, 3), Close: 11.5},
		{Date: day(2024, 1, 4), Close: 9.75},
	}
	global := &fakeSource{name: "yahoo", histories: map[string]provider.History{
		"ABC": provider.OK(native, "USD"),
	}}
	const rate = 4.0
	series := make([]fx.Rate, len(native))
	for i, p := range native {
		series[i] = fx.Rate{Code: "USD", Date: p.Date, Mid: rate}
	}
	e := newTestEngine(&fakeSource{name: "stooq"}, global, nil, &fakeFxSource{series: map[string][]fx.Rate{"USD": series}})

	got := e.GetHistory(context.Background(), "ABC", "1y", "1d")
	if len(got) != len(native) {
		t.Fatalf("series: %+v", got)
	}
	for i, p := range got {
		if math.Abs(p.Close-native[i].Close*rate) > 1e-9 {
			t.Fatalf("point %d: %v", i, p.Close)
		}
	}
}

func TestGetHistory_GBXPenceNormalizedBeforeFX(t *testing.T) {
	global := &fakeSource{name: "yahoo", histories: map[string]provider.History{
		"BARC.L": provider.OK([]provider.PricePoint{{Date: day(2024, 1, 2), Close: 250.0}}, "GBX"),
	}}
	fxSrc := &fakeFxSource{series: map[string][]fx.Rate{
		"GBP": {{Code: "GBP", Date: day(2024, 1, 2), Mid: 5.0}},
	}}
	e := newTestEngine(&fakeSource{name: "stooq"}, global, nil, fxSrc)

	got := e.GetHistory(context.Background(), "BARC.L", "1y", "1d")
	if len(got) != 1 || math.Abs(got[0].Close-12.5) > 1e-9 {
		t.Fatalf("series: %+v", got)
	}
}

func TestGetHistory_IdempotentWithinTTL(t *testing.T) {
	domestic := &fakeSource{name: "stooq", histories: map[string]provider.History{
		"xyz": points(provider.PricePoint{Date: day(2024, 1, 2), Close: 100}),
	}}
	e := newTestEngine(domestic, &fakeSource{name: "yahoo"}, nil, &fakeFxSource{})

	e.GetHistory(context.Background(), "XYZ.WA", "1y", "1d")
	e.GetHistory(context.Background(), "XYZ.WA", "1y", "1d")
	if domestic.historyCalls.Load() != 1 {
		t.Fatalf("calls=%d, want 1", domestic.historyCalls.Load())
	}
}

func TestGetQuote_RateLimitedDomesticFallsToGlobalNotSecondary(t *testing.T) {
	domestic := &fakeSource{name: "stooq", quoteErr: map[string]error{
		"xyz": provider.ErrRateLimited,
	}}
	global := &fakeSource{name: "yahoo", quotes: map[string]*provider.Quote{
		"XYZ.WA": {Price: provider.Float(50), PrevClose: provider.Float(49), Currency: "PLN"},
	}}
	secondary := &fakeSource{name: "twelvedata"}
	e := newTestEngine(domestic, global, secondary, &fakeFxSource{})

	q := e.GetQuote(context.Background(), "XYZ.WA")
	if q.Price == nil || *q.Price != 50 {
		t.Fatalf("quote: %+v", q)
	}
	if q.Source != "yahoo:XYZ.WA" {
		t.Fatalf("source: %q", q.Source)
	}
	if secondary.quoteCalls.Load() != 0 {
		t.Fatalf("secondary consulted before global succeeded")
	}
}

func TestGetQuote_DomesticCurrencyIsSettlement(t *testing.T) {
	domestic := &fakeSource{name: "stooq", quotes: map[string]*provider.Quote{
		"xyz": {Price: provider.Float(50), PrevClose: provider.Float(49)},
	}}
	e := newTestEngine(domestic, &fakeSource{name: "yahoo"}, nil, &fakeFxSource{})

	q := e.GetQuote(context.Background(), "XYZ.WA")
	if q.Currency != "PLN" {
		t.Fatalf("currency: %q", q.Currency)
	}
	if q.Price == nil || *q.Price != 50 || q.PrevClose == nil || *q.PrevClose != 49 {
		t.Fatalf("quote: %+v", q)
	}
}

func TestGetQuote_SecondaryIsLastResort(t *testing.T) {
	secondary := &fakeSource{name: "twelvedata", quotes: map[string]*provider.Quote{
		"ABC": {Price: provider.Float(10), Currency: "USD"},
	}}
	fxSrc := &fakeFxSource{latest: map[string]float64{"USD": 4.0}}
	e := newTestEngine(&fakeSource{name: "stooq"}, &fakeSource{name: "yahoo"}, secondary, fxSrc)

	q := e.GetQuote(context.Background(), "ABC")
	if q.Price == nil || math.Abs(*q.Price-40.0) > 1e-9 {
		t.Fatalf("quote: %+v", q)
	}
	if q.Source != "twelvedata:ABC" {
		t.Fatalf("source: %q", q.Source)
	}
}

func TestGetQuote_ConcurrentCallersShareOneResolution(t *testing.T) {
	domestic := &fakeSource{
		name:   "stooq",
		quotes: map[string]*provider.Quote{"xyz": {Price: provider.Float(50)}},
		block:  make(chan struct{}),
	}
	e := newTestEngine(domestic, &fakeSource{name: "yahoo"}, nil, &fakeFxSource{})

	const n = 10
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.GetQuote(context.Background(), "XYZ.WA")
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(domestic.block)
	wg.Wait()

	if domestic.quoteCalls.Load() != 1 {
		t.Fatalf("calls=%d, want 1", domestic.quoteCalls.Load())
	}
}

func TestGetQuote_TotalFailureYieldsNullPrices(t *testing.T) {
	e := newTestEngine(&fakeSource{name: "stooq"}, &fakeSource{name: "yahoo"}, nil, &fakeFxSource{})
	q := e.GetQuote(context.Background(), "NOPE")
	if q.Price != nil || q.PrevClose != nil {
		t.Fatalf("quote: %+v", q)
	}
	if q.Currency != "PLN" {
		t.Fatalf("currency: %q", q.Currency)
	}
}

func TestGetHistoryBatch_PartialFailure(t *testing.T) {
	domestic := &fakeSource{name: "stooq", histories: map[string]provider.History{
		"aaa": points(provider.PricePoint{Date: day(2024, 1, 2), Close: 1}),
		"bbb": points(provider.PricePoint{Date: day(2024, 1, 2), Close: 2}),
	}}
	e := newTestEngine(domestic, &fakeSource{name: "yahoo"}, nil, &fakeFxSource{})

	got := e.GetHistoryBatch(context.Background(), []BatchItem{
		{ID: "1", Symbol: "AAA.WA"},
		{ID: "2", Symbol: "BBB.WA"},
		{ID: "3", Symbol: "DEAD.WA"},
	}, "1y", "1d")

	if len(got) != 3 {
		t.Fatalf("keys: %d", len(got))
	}
	if len(got["1"]) != 1 || len(got["2"]) != 1 {
		t.Fatalf("populated series missing: %+v", got)
	}
	if len(got["3"]) != 0 {
		t.Fatalf("failed symbol must map to empty series")
	}
}

func TestGetHistoryBatch_IDDefaultsToSymbol(t *testing.T) {
	e := newTestEngine(&fakeSource{name: "stooq"}, &fakeSource{name: "yahoo"}, nil, &fakeFxSource{})
	got := e.GetHistoryBatch(context.Background(), []BatchItem{{Symbol: "XYZ.WA"}}, "1y", "1d")
	if _, ok := got["XYZ.WA"]; !ok {
		t.Fatalf("keys: %v", got)
	}
}
