package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"quoteengine/internal/cache"
	"quoteengine/internal/config"
	"quoteengine/internal/engine"
	"quoteengine/internal/fx"
	"quoteengine/internal/httpx"
	"quoteengine/internal/provider"
	"quoteengine/internal/provider/stooq"
	"quoteengine/internal/provider/twelvedata"
	"quoteengine/internal/provider/twelvedataadapter"
	"quoteengine/internal/provider/yahoo"
)

// One-shot resolver for scripting and for poking at provider behavior
// without standing up the server.
func main() {
	var symbolsCSV string
	var mode string
	var rng string
	var interval string
	var timeout int
	var configPath string

	flag.StringVar(&symbolsCSV, "symbols", "", "comma-separated tickers (e.g. CDR.WA,AAPL,WIG20)")
	flag.StringVar(&mode, "mode", "quote", "quote or history")
	flag.StringVar(&rng, "range", "1y", "history range: 1mo 3mo 6mo ytd 1y 5y max")
	flag.StringVar(&interval, "interval", "1d", "history interval: 1d 1wk 1mo")
	flag.IntVar(&timeout, "timeout", 30, "overall timeout seconds")
	flag.StringVar(&configPath, "config", os.Getenv("CONFIG_FILE"), "path to config.json (optional)")
	flag.Parse()

	symbols := splitCSV(symbolsCSV)
	if len(symbols) == 0 {
		fmt.Fprintln(os.Stderr, "usage: fetch -symbols CDR.WA,AAPL [-mode quote|history]")
		os.Exit(2)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	httpClient := httpx.New(time.Duration(cfg.Server.RequestTimeoutSec) * time.Second)
	domestic := stooq.New(stooq.Config{
		Hosts:       cfg.Stooq.Hosts,
		CallTimeout: time.Duration(cfg.Stooq.CallTimeoutSec) * time.Second,
	}, httpClient)
	global := yahoo.New(yahoo.Config{
		Hosts:       cfg.Yahoo.Hosts,
		CallTimeout: time.Duration(cfg.Yahoo.CallTimeoutSec) * time.Second,
	}, httpClient)

	var secondary provider.QuoteSource
	if cfg.TwelveData.Enabled && cfg.TwelveData.APIKey != "" {
		tdClient, err := twelvedata.NewClient(cfg.TwelveData.APIKey,
			twelvedata.WithHTTPClient(httpClient.HTTP))
		if err != nil {
			log.Fatalf("twelvedata client: %v", err)
		}
		secondary = twelvedataadapter.New(twelvedataadapter.Config{
			MaxRequestsPerMinute: cfg.TwelveData.MaxRequestsPerMinute,
			Burst:                cfg.TwelveData.Burst,
			MinRequestInterval:   time.Duration(cfg.TwelveData.MinRequestIntervalSec) * time.Second,
		}, tdClient)
	}

	store := cache.New(cache.DefaultConfig(), zap.NewNop())
	sources := []fx.Source{
		&fx.StooqSource{Feed: domestic, Settlement: cfg.FX.Settlement},
		&fx.NBPSource{Client: httpClient, BaseURL: "https://" + cfg.FX.NBPHost + "/api"},
	}
	if cfg.FX.GenericHost != "" {
		sources = append(sources, &fx.GenericSource{
			Client:     httpClient,
			BaseURL:    "https://" + cfg.FX.GenericHost,
			Settlement: cfg.FX.Settlement,
		})
	}
	resolver := fx.NewResolver(cfg.FX.Settlement, sources, store, nil)
	eng := engine.New(engine.Config{
		Settlement:       cfg.FX.Settlement,
		BatchConcurrency: cfg.Engine.BatchConcurrency,
	}, domestic, global, secondary, resolver, store, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeout)*time.Second)
	defer cancel()

	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")

	switch mode {
	case "quote":
		out := make(map[string]engine.QuoteSettled, len(symbols))
		for _, s := range symbols {
			out[s] = eng.GetQuote(ctx, s)
		}
		_ = enc.Encode(out)
	case "history":
		items := make([]engine.BatchItem, 0, len(symbols))
		for _, s := range symbols {
			items = append(items, engine.BatchItem{Symbol: s})
		}
		_ = enc.Encode(eng.GetHistoryBatch(ctx, items, rng, interval))
	default:
		log.Fatalf("unknown mode %q", mode)
	}
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
