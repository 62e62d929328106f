// Package yahoo adapts the Yahoo Finance v8 chart API: native-currency
// history and quotes for global listings and indexes.
package yahoo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"

	"quoteengine/internal/httpx"
	"quoteengine/internal/provider"
	"quoteengine/internal/symbol"
)

type Config struct {
	Name        string
	Hosts       []string // equivalent query hosts, raced per call
	CallTimeout time.Duration
}

type Provider struct {
	cfg    Config
	client *httpx.Client
	scheme string
}

func New(cfg Config, hc *httpx.Client) *Provider {
	if cfg.Name == "" {
		cfg.Name = "yahoo"
	}
	if len(cfg.Hosts) == 0 {
		cfg.Hosts = []string{"query1.finance.yahoo.com", "query2.finance.yahoo.com"}
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 1500 * time.Millisecond
	}
	return &Provider{cfg: cfg, client: hc, scheme: "https"}
}

func (p *Provider) Name() string { return p.cfg.Name }

// chartResponse is the subset of the v8 chart payload this engine reads.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Currency           string  `json:"currency"`
				RegularMarketPrice float64 `json:"regularMarketPrice"`
				PreviousClose      float64 `json:"previousClose"`
				ChartPreviousClose float64 `json:"chartPreviousClose"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func validChart(status int, body []byte) error {
	if status == 429 {
		return provider.ErrRateLimited
	}
	trimmed := strings.TrimSpace(string(body))
	if strings.Contains(trimmed, "Too Many Requests") {
		return provider.ErrRateLimited
	}
	if status != 200 {
		return fmt.Errorf("yahoo: status %d", status)
	}
	if trimmed == "" {
		return fmt.Errorf("yahoo: empty body")
	}
	if strings.HasPrefix(trimmed, "<") {
		return fmt.Errorf("yahoo: html page")
	}
	return nil
}

func (p *Provider) chartURLs(code, rng, interval string) []string {
	urls := make([]string, 0, len(p.cfg.Hosts))
	for _, h := range p.cfg.Hosts {
		urls = append(urls, fmt.Sprintf("%s://%s/v8/finance/chart/%s?interval=%s&range=%s",
			p.scheme, h, url.PathEscape(code), url.QueryEscape(interval), url.QueryEscape(rng)))
	}
	return urls
}

func (p *Provider) fetchChart(ctx context.Context, code, rng, interval string) (*chartResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.CallTimeout)
	defer cancel()

	body, _, err := p.client.FirstValid(ctx, p.chartURLs(code, rng, interval), validChart)
	if err != nil {
		return nil, err
	}
	var chart chartResponse
	if err := json.Unmarshal(body, &chart); err != nil {
		return nil, fmt.Errorf("yahoo decode: %w", err)
	}
	if chart.Chart.Error != nil {
		return nil, fmt.Errorf("yahoo api error: %s", chart.Chart.Error.Description)
	}
	return &chart, nil
}

// FetchHistory returns the daily close series with the native currency from
// the chart metadata. Null bars (holidays) and non-positive closes are
// skipped.
func (p *Provider) FetchHistory(ctx context.Context, code, rng, interval string) (provider.History, error) {
	if rng == "" {
		rng = "max"
	}
	if interval == "" {
		interval = "1d"
	}
	chart, err := p.fetchChart(ctx, code, rng, interval)
	if err != nil {
		if isRateLimit(err) {
			return provider.RateLimited(), nil
		}
		return provider.Empty(), err
	}
	if len(chart.Chart.Result) == 0 {
		return provider.Empty(), nil
	}
	result := chart.Chart.Result[0]
	if len(result.Timestamp) == 0 || len(result.Indicators.Quote) == 0 {
		return provider.Empty(), nil
	}
	closes := result.Indicators.Quote[0].Close
	points := make([]provider.PricePoint, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(closes) || closes[i] == nil {
			continue
		}
		c := *closes[i]
		if c <= 0 || math.IsNaN(c) || math.IsInf(c, 0) {
			continue
		}
		points = append(points, provider.PricePoint{Date: provider.Day(time.Unix(ts, 0).UTC()), Close: c})
	}
	return provider.OK(points, result.Meta.Currency), nil
}

// FetchQuote reads price, previous close and currency from the chart meta of
// a short window.
func (p *Provider) FetchQuote(ctx context.Context, code string) (*provider.Quote, error) {
	chart, err := p.fetchChart(ctx, code, "5d", "1d")
	if err != nil {
		if isRateLimit(err) {
			return nil, provider.ErrRateLimited
		}
		return nil, err
	}
	if len(chart.Chart.Result) == 0 {
		return nil, nil
	}
	meta := chart.Chart.Result[0].Meta
	q := &provider.Quote{Currency: meta.Currency}
	if meta.RegularMarketPrice > 0 {
		q.Price = provider.Float(meta.RegularMarketPrice)
	}
	switch {
	case meta.PreviousClose > 0:
		q.PrevClose = provider.Float(meta.PreviousClose)
	case meta.ChartPreviousClose > 0:
		q.PrevClose = provider.Float(meta.ChartPreviousClose)
	}
	if q.Price == nil && q.PrevClose == nil {
		return nil, nil
	}
	return q, nil
}

func isRateLimit(err error) bool {
	return errors.Is(err, provider.ErrRateLimited)
}

// Code maps a classified symbol to its Yahoo ticker. Index aliases cover the
// names users type without the caret.
func Code(s symbol.Symbol) string {
	if s.Segment == symbol.SegmentIndex {
		if c, ok := indexAlias[s.Canonical]; ok {
			return c
		}
		return s.Canonical
	}
	// Yahoo has no ".US" suffix for US listings.
	return strings.TrimSuffix(s.Canonical, ".US")
}

var indexAlias = map[string]string{
	"SPX":    "^GSPC",
	"SP500":  "^GSPC",
	"WIG":    "WIG.WA",
	"WIG20":  "WIG20.WA",
	"MWIG40": "MWIG40.WA",
	"SWIG80": "SWIG80.WA",
}

// IndexAliases lists the codes tried for an index, in order: the primary
// Yahoo code plus historical fallbacks.
func IndexAliases(s symbol.Symbol) []string {
	primary := Code(s)
	if alt, ok := indexFallback[primary]; ok {
		return append([]string{primary}, alt...)
	}
	return []string{primary}
}

var indexFallback = map[string][]string{
	"WIG20.WA": {"^WIG20"},
	"WIG.WA":   {"^WIG"},
}
