package main

import (
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
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

func main() {
	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatal("config", zap.Error(err))
	}
	if cfg.TwelveData.Enabled && cfg.TwelveData.APIKey == "" {
		log.Warn("twelvedata enabled but TWELVEDATA_API_KEY not set; disabling")
		cfg.TwelveData.Enabled = false
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
	if cfg.TwelveData.Enabled {
		tdClient, err := twelvedata.NewClient(cfg.TwelveData.APIKey,
			twelvedata.WithHTTPClient(httpClient.HTTP))
		if err != nil {
			log.Warn("twelvedata client", zap.Error(err))
		} else {
			secondary = twelvedataadapter.New(twelvedataadapter.Config{
				MaxRequestsPerMinute: cfg.TwelveData.MaxRequestsPerMinute,
				Burst:                cfg.TwelveData.Burst,
				MinRequestInterval:   time.Duration(cfg.TwelveData.MinRequestIntervalSec) * time.Second,
			}, tdClient)
		}
	}

	store := cache.New(cache.Config{
		QuoteTTL:    time.Duration(cfg.Cache.QuoteTTLSec) * time.Second,
		HistoryTTL:  time.Duration(cfg.Cache.HistoryTTLSec) * time.Second,
		EODTTL:      time.Duration(cfg.Cache.EODTTLSec) * time.Second,
		StaleFor:    time.Duration(cfg.Cache.StaleForSec) * time.Second,
		NegativeTTL: time.Duration(cfg.Cache.NegativeTTLSec) * time.Second,
	}, log.Named("cache"))

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
	resolver := fx.NewResolver(cfg.FX.Settlement, sources, store, log.Named("fx"))

	eng := engine.New(engine.Config{
		Settlement:       cfg.FX.Settlement,
		BatchConcurrency: cfg.Engine.BatchConcurrency,
	}, domestic, global, secondary, resolver, store, log.Named("engine"))

	// Prewarm FX rates once at startup and then on the daily schedule, so the
	// first request after the central bank publishes never pays the cascade.
	prewarm := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		for _, code := range cfg.FX.PrewarmCurrencies {
			if _, ok := resolver.Rate(ctx, code); !ok {
				log.Warn("fx prewarm failed", zap.String("code", code))
			}
		}
	}
	go prewarm()
	sched := cron.New()
	if cfg.FX.PrewarmSpec != "" {
		if _, err := sched.AddFunc(cfg.FX.PrewarmSpec, prewarm); err != nil {
			log.Warn("fx prewarm schedule", zap.Error(err))
		}
	}
	sched.Start()
	defer sched.Stop()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/api/quote", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		handleQuote(w, r, eng)
	})
	mux.HandleFunc("/api/history", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		handleHistory(w, r, eng)
	})
	mux.HandleFunc("/api/history/batch", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		handleHistoryBatch(w, r, eng)
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           withJSONHeaders(withGzip(recoverPanic(limitBody(mux)))),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      65 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func withJSONHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withGzip compresses response when client supports gzip.
func withGzip(next http.Handler) http.Handler {
	var gzPool = sync.Pool{New: func() any {
		w, _ := gzip.NewWriterLevel(io.Discard, gzip.BestSpeed)
		return w
	}}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			next.ServeHTTP(w, r)
			return
		}
		gz := gzPool.Get().(*gzip.Writer)
		gz.Reset(w)
		defer func() {
			_ = gz.Close()
			gz.Reset(io.Discard)
			gzPool.Put(gz)
		}()
		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Add("Vary", "Accept-Encoding")
		gw := gzipResponseWriter{ResponseWriter: w, Writer: gz}
		next.ServeHTTP(gw, r)
	})
}

type gzipResponseWriter struct {
	http.ResponseWriter
	Writer io.Writer
}

func (g gzipResponseWriter) Write(b []byte) (int, error) {
	return g.Writer.Write(b)
}

// limitBody caps request body size to avoid memory abuse.
func limitBody(next http.Handler) http.Handler {
	const maxBody = 1 << 20 // 1MB
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxBody)
		}
		next.ServeHTTP(w, r)
	})
}

// recoverPanic protects handlers from panics.
func recoverPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
