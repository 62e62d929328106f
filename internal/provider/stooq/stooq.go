// Package stooq adapts the Stooq CSV feed: daily history for Warsaw
// equities, FX pairs and indexes, plus synthesized codes for US listings.
package stooq

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"quoteengine/internal/httpx"
	"quoteengine/internal/provider"
	"quoteengine/internal/symbol"
)

// Config controls the Stooq adapter.
type Config struct {
	Name        string
	Hosts       []string // equivalent mirrors, raced per call
	CallTimeout time.Duration
}

type Provider struct {
	cfg    Config
	client *httpx.Client
	scheme string // overridden by tests that serve plain http
}

func New(cfg Config, hc *httpx.Client) *Provider {
	if cfg.Name == "" {
		cfg.Name = "stooq"
	}
	if len(cfg.Hosts) == 0 {
		cfg.Hosts = []string{"stooq.com", "stooq.pl"}
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 1500 * time.Millisecond
	}
	return &Provider{cfg: cfg, client: hc, scheme: "https"}
}

func (p *Provider) Name() string { return p.cfg.Name }

// limit markers embedded in 200-OK bodies when the daily hit quota runs out.
var limitMarkers = []string{
	"Przekroczony dzienny limit",
	"Exceeded the daily hits limit",
}

func rateLimited(body []byte) bool {
	s := string(body)
	for _, m := range limitMarkers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

// validCSV rejects non-200 responses, HTML error pages, empty bodies and
// quota markers before a raced response can win.
func validCSV(status int, body []byte) error {
	if status != 200 {
		return fmt.Errorf("stooq: status %d", status)
	}
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return fmt.Errorf("stooq: empty body")
	}
	if strings.HasPrefix(trimmed, "<") {
		return fmt.Errorf("stooq: html page")
	}
	if rateLimited(body) {
		return provider.ErrRateLimited
	}
	if !strings.ContainsAny(trimmed, ",;") {
		return fmt.Errorf("stooq: not csv")
	}
	return nil
}

var intervalCode = map[string]string{"1d": "d", "1wk": "w", "1mo": "m"}

func (p *Provider) historyURLs(code, interval string, from, to time.Time) []string {
	ic, ok := intervalCode[interval]
	if !ok {
		ic = "d"
	}
	urls := make([]string, 0, len(p.cfg.Hosts))
	for _, h := range p.cfg.Hosts {
		u := fmt.Sprintf("%s://%s/q/d/l/?s=%s&i=%s", p.scheme, h, strings.ToLower(code), ic)
		if !from.IsZero() {
			u += "&d1=" + from.Format("20060102")
		}
		if !to.IsZero() {
			u += "&d2=" + to.Format("20060102")
		}
		urls = append(urls, u)
	}
	return urls
}

// FetchHistory returns the daily close series for a Stooq code. The rng
// argument is advisory only: Stooq serves the full series and the caller
// trims, so it is ignored here.
func (p *Provider) FetchHistory(ctx context.Context, code, rng, interval string) (provider.History, error) {
	return p.fetchHistory(ctx, code, interval, time.Time{}, time.Time{})
}

// FetchHistoryBetween bounds the series server-side; used for FX windows and
// the quote path where the full series would be wasteful.
func (p *Provider) FetchHistoryBetween(ctx context.Context, code, interval string, from, to time.Time) (provider.History, error) {
	return p.fetchHistory(ctx, code, interval, from, to)
}

func (p *Provider) fetchHistory(ctx context.Context, code, interval string, from, to time.Time) (provider.History, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.CallTimeout)
	defer cancel()

	body, _, err := p.client.FirstValid(ctx, p.historyURLs(code, interval, from, to), validCSV)
	if err != nil {
		if isRateLimit(err) {
			return provider.RateLimited(), nil
		}
		return provider.Empty(), err
	}
	points := parseDailyCSV(body)
	if len(points) == 0 {
		return provider.Empty(), nil
	}
	// Stooq does not state a currency; the caller knows it from the code.
	return provider.OK(points, ""), nil
}

// FetchQuote derives a quote from the last two daily closes. Stooq has no
// dedicated quote endpoint worth trusting, the tail of the daily series is
// the same data.
func (p *Provider) FetchQuote(ctx context.Context, code string) (*provider.Quote, error) {
	to := time.Now().UTC()
	from := to.AddDate(0, 0, -14)
	h, err := p.fetchHistory(ctx, code, "1d", from, to)
	if err != nil {
		return nil, err
	}
	switch h.Status {
	case provider.StatusRateLimited:
		return nil, provider.ErrRateLimited
	case provider.StatusEmpty:
		return nil, nil
	}
	q := &provider.Quote{Price: provider.Float(h.Points[len(h.Points)-1].Close)}
	if n := len(h.Points); n >= 2 {
		q.PrevClose = provider.Float(h.Points[n-2].Close)
	}
	return q, nil
}

func isRateLimit(err error) bool {
	return errors.Is(err, provider.ErrRateLimited)
}

// parseDailyCSV parses Date,Open,High,Low,Close,Volume rows. Bad rows, "N/D"
// cells and non-positive closes are dropped, never propagated.
func parseDailyCSV(body []byte) []provider.PricePoint {
	lines := strings.Split(strings.ReplaceAll(string(body), "\r\n", "\n"), "\n")
	points := make([]provider.PricePoint, 0, len(lines))
	for i, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if i == 0 && strings.HasPrefix(strings.ToLower(line), "date") {
			continue
		}
		// Locale variants of the feed pair semicolon separators with
		// decimal commas.
		sep := ","
		if strings.Contains(line, ";") {
			sep = ";"
		}
		fields := strings.Split(line, sep)
		if len(fields) < 5 {
			continue
		}
		date, err := time.Parse("2006-01-02", strings.TrimSpace(fields[0]))
		if err != nil {
			continue
		}
		c, ok := parseClose(fields[4])
		if !ok {
			continue
		}
		points = append(points, provider.PricePoint{Date: provider.Day(date), Close: c})
	}
	return points
}

// parseClose accepts both decimal points and decimal commas and rejects
// non-positive or non-finite values.
func parseClose(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" || s == "N/D" || s == "-" {
		return 0, false
	}
	s = strings.ReplaceAll(s, ",", ".")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return 0, false
	}
	return v, true
}

// Code maps a classified symbol to its Stooq code: bare lowercase for Warsaw
// listings, an ".us" suffix for foreign equities, a fixed table for indexes.
func Code(s symbol.Symbol) string {
	switch s.Segment {
	case symbol.SegmentDomestic:
		return strings.ToLower(s.Base())
	case symbol.SegmentIndex:
		if c, ok := indexCode[s.Canonical]; ok {
			return c
		}
		return strings.ToLower(s.Canonical)
	default:
		if strings.HasSuffix(s.Canonical, ".US") {
			return strings.ToLower(s.Canonical)
		}
		if strings.Contains(s.Canonical, ".") {
			// Listings outside the US keep their own suffix form.
			return strings.ToLower(s.Canonical)
		}
		return strings.ToLower(s.Canonical) + ".us"
	}
}

var indexCode = map[string]string{
	"^GSPC":  "^spx",
	"^DJI":   "^dji",
	"^IXIC":  "^ndq",
	"^NDX":   "^ndx",
	"^GDAXI": "^dax",
	"^FTSE":  "^ftm",
	"^N225":  "^nkx",
	"WIG":    "wig",
	"WIG20":  "wig20",
	"MWIG40": "mwig40",
	"SWIG80": "swig80",
}

// PairCode builds the Stooq FX pair code, e.g. ("USD","PLN") -> "usdpln".
func PairCode(base, quote string) string {
	return strings.ToLower(base + quote)
}
