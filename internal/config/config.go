package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

type Server struct {
	Port              string `json:"port"`
	RequestTimeoutSec int    `json:"request_timeout_sec"`
}

type Stooq struct {
	Hosts          []string `json:"hosts"`
	CallTimeoutSec int      `json:"call_timeout_sec"`
}

type Yahoo struct {
	Hosts          []string `json:"hosts"`
	CallTimeoutSec int      `json:"call_timeout_sec"`
}

type TwelveData struct {
	Enabled               bool   `json:"enabled"`
	APIKey                string `json:"api_key"`
	MaxRequestsPerMinute  int    `json:"max_requests_per_minute"`
	MinRequestIntervalSec int    `json:"min_request_interval_sec"`
	Burst                 int    `json:"burst"`
}

type FX struct {
	Settlement string `json:"settlement"`
	// NBPHost points at the central bank rate API.
	NBPHost string `json:"nbp_host"`
	// GenericHost is the exchangerate-style fallback API; empty disables it.
	GenericHost string `json:"generic_host"`
	// PrewarmCurrencies are resolved on a schedule so the first request of
	// the day never pays the FX latency.
	PrewarmCurrencies []string `json:"prewarm_currencies"`
	PrewarmSpec       string   `json:"prewarm_spec"`
}

type Cache struct {
	QuoteTTLSec    int `json:"quote_ttl_sec"`
	HistoryTTLSec  int `json:"history_ttl_sec"`
	EODTTLSec      int `json:"eod_ttl_sec"`
	StaleForSec    int `json:"stale_for_sec"`
	NegativeTTLSec int `json:"negative_ttl_sec"`
}

type Engine struct {
	BatchConcurrency int `json:"batch_concurrency"`
}

type Config struct {
	Server     Server     `json:"server"`
	Stooq      Stooq      `json:"stooq"`
	Yahoo      Yahoo      `json:"yahoo"`
	TwelveData TwelveData `json:"twelvedata"`
	FX         FX         `json:"fx"`
	Cache      Cache      `json:"cache"`
	Engine     Engine     `json:"engine"`
}

func Default() Config {
	return Config{
		Server: Server{Port: "8080", RequestTimeoutSec: 10},
		Stooq: Stooq{
			Hosts:          []string{"stooq.com", "stooq.pl"},
			CallTimeoutSec: 2,
		},
		Yahoo: Yahoo{
			Hosts:          []string{"query1.finance.yahoo.com", "query2.finance.yahoo.com"},
			CallTimeoutSec: 3,
		},
		TwelveData: TwelveData{
			Enabled:              false,
			MaxRequestsPerMinute: 8,
			Burst:                1,
		},
		FX: FX{
			Settlement:        "PLN",
			NBPHost:           "api.nbp.pl",
			GenericHost:       "api.exchangerate.host",
			PrewarmCurrencies: []string{"USD", "EUR", "GBP", "CHF"},
			PrewarmSpec:       "0 7 * * *",
		},
		Cache: Cache{
			QuoteTTLSec:    60,
			HistoryTTLSec:  900,
			EODTTLSec:      86400,
			StaleForSec:    3600,
			NegativeTTLSec: 30,
		},
		Engine: Engine{BatchConcurrency: 8},
	}
}

// Load reads JSON config from path. If path is empty or file does not exist,
// it returns defaults. Environment variables override select fields for secrecy.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		if _, err := os.Stat("config.json"); err == nil {
			path = "config.json"
		}
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := json.Unmarshal(b, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v, ok := envInt("REQUEST_TIMEOUT_SEC"); ok && v > 0 {
		cfg.Server.RequestTimeoutSec = v
	}
	if v := os.Getenv("STOOQ_HOSTS"); v != "" {
		cfg.Stooq.Hosts = splitCSV(v)
	}
	if v := os.Getenv("YAHOO_HOSTS"); v != "" {
		cfg.Yahoo.Hosts = splitCSV(v)
	}
	if v := os.Getenv("TWELVEDATA_ENABLED"); v != "" {
		switch strings.ToLower(v) {
		case "1", "true", "yes", "y":
			cfg.TwelveData.Enabled = true
		case "0", "false", "no", "n":
			cfg.TwelveData.Enabled = false
		}
	}
	if v := os.Getenv("TWELVEDATA_API_KEY"); v != "" {
		cfg.TwelveData.APIKey = v
	}
	if v, ok := envInt("TWELVEDATA_MAX_RPM"); ok && v >= 0 {
		cfg.TwelveData.MaxRequestsPerMinute = v
	}
	if v, ok := envInt("TWELVEDATA_MIN_INTERVAL_SEC"); ok && v >= 0 {
		cfg.TwelveData.MinRequestIntervalSec = v
	}
	if v, ok := envInt("TWELVEDATA_BURST"); ok && v > 0 {
		cfg.TwelveData.Burst = v
	}
	if v := os.Getenv("FX_SETTLEMENT"); v != "" {
		cfg.FX.Settlement = strings.ToUpper(v)
	}
	if v := os.Getenv("FX_NBP_HOST"); v != "" {
		cfg.FX.NBPHost = v
	}
	if v := os.Getenv("FX_GENERIC_HOST"); v != "" {
		cfg.FX.GenericHost = v
	}
	if v := os.Getenv("FX_PREWARM_CURRENCIES"); v != "" {
		cfg.FX.PrewarmCurrencies = splitCSV(v)
	}
	if v := os.Getenv("FX_PREWARM_SPEC"); v != "" {
		cfg.FX.PrewarmSpec = v
	}
	if v, ok := envInt("CACHE_QUOTE_TTL_SEC"); ok && v > 0 {
		cfg.Cache.QuoteTTLSec = v
	}
	if v, ok := envInt("CACHE_HISTORY_TTL_SEC"); ok && v > 0 {
		cfg.Cache.HistoryTTLSec = v
	}
	if v, ok := envInt("CACHE_EOD_TTL_SEC"); ok && v > 0 {
		cfg.Cache.EODTTLSec = v
	}
	if v, ok := envInt("CACHE_STALE_FOR_SEC"); ok && v >= 0 {
		cfg.Cache.StaleForSec = v
	}
	if v, ok := envInt("CACHE_NEGATIVE_TTL_SEC"); ok && v >= 0 {
		cfg.Cache.NegativeTTLSec = v
	}
	if v, ok := envInt("BATCH_CONCURRENCY"); ok && v > 0 {
		cfg.Engine.BatchConcurrency = v
	}
}

func envInt(name string) (int, bool) {
	v := os.Getenv(name)
	if v == "" {
		return 0, false
	}
	var x int
	if _, err := fmt.Sscanf(v, "%d", &x); err != nil {
		return 0, false
	}
	return x, true
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
