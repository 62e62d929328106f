package fx

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"quoteengine/internal/httpx"
	"quoteengine/internal/provider"
	"quoteengine/internal/provider/stooq"
)

// PairFeed is the slice of the Stooq adapter the pair source needs.
type PairFeed interface {
	FetchHistoryBetween(ctx context.Context, code, interval string, from, to time.Time) (provider.History, error)
}

// StooqSource reads FX pairs (e.g. usdpln) from the exchange CSV feed.
// First in the cascade: same freshness as the equity data it converts.
type StooqSource struct {
	Feed       PairFeed
	Settlement string
}

func (s *StooqSource) Name() string { return "stooq-fx" }

func (s *StooqSource) pair(code string) string {
	return stooq.PairCode(code, s.Settlement)
}

func (s *StooqSource) Latest(ctx context.Context, code string) (*Rate, error) {
	to := time.Now().UTC()
	h, err := s.Feed.FetchHistoryBetween(ctx, s.pair(code), "1d", to.AddDate(0, 0, -14), to)
	if err != nil {
		return nil, err
	}
	if h.Status != provider.StatusOK {
		return nil, nil
	}
	last := h.Points[len(h.Points)-1]
	return &Rate{Code: code, Date: last.Date, Mid: last.Close}, nil
}

func (s *StooqSource) Series(ctx context.Context, code string, from, to time.Time) ([]Rate, error) {
	h, err := s.Feed.FetchHistoryBetween(ctx, s.pair(code), "1d", from, to)
	if err != nil {
		return nil, err
	}
	if h.Status != provider.StatusOK {
		return nil, nil
	}
	rates := make([]Rate, 0, len(h.Points))
	for _, p := range h.Points {
		rates = append(rates, Rate{Code: code, Date: p.Date, Mid: p.Close})
	}
	return rates, nil
}

// NBPSource reads official mid rates from the central bank API (table A).
// Rates are quoted as PLN per unit, which is exactly native-to-settlement.
type NBPSource struct {
	Client  *httpx.Client
	BaseURL string // default https://api.nbp.pl/api
}

func (s *NBPSource) Name() string { return "nbp" }

func (s *NBPSource) base() string {
	if s.BaseURL != "" {
		return strings.TrimRight(s.BaseURL, "/")
	}
	return "https://api.nbp.pl/api"
}

func (s *NBPSource) get(ctx context.Context, u string) ([]byte, error) {
	status, body, err := s.Client.Get(ctx, u)
	if err != nil {
		return nil, err
	}
	if status == 404 {
		// Unknown code or no data in the window; not an error for a cascade.
		return nil, nil
	}
	if status != 200 {
		return nil, fmt.Errorf("nbp: status %d", status)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("nbp: malformed body")
	}
	return body, nil
}

func (s *NBPSource) Latest(ctx context.Context, code string) (*Rate, error) {
	u := fmt.Sprintf("%s/exchangerates/rates/a/%s/last/1/?format=json", s.base(), url.PathEscape(strings.ToLower(code)))
	body, err := s.get(ctx, u)
	if err != nil || body == nil {
		return nil, err
	}
	first := gjson.GetBytes(body, "rates.0")
	mid := first.Get("mid").Float()
	if mid <= 0 {
		return nil, nil
	}
	date, err := time.Parse("2006-01-02", first.Get("effectiveDate").String())
	if err != nil {
		date = time.Now().UTC()
	}
	return &Rate{Code: code, Date: provider.Day(date), Mid: mid}, nil
}

// nbpMaxWindowDays is the API's limit on one date-range query.
const nbpMaxWindowDays = 360

func (s *NBPSource) Series(ctx context.Context, code string, from, to time.Time) ([]Rate, error) {
	var rates []Rate
	for start := from; !start.After(to); start = start.AddDate(0, 0, nbpMaxWindowDays+1) {
		end := start.AddDate(0, 0, nbpMaxWindowDays)
		if end.After(to) {
			end = to
		}
		u := fmt.Sprintf("%s/exchangerates/rates/a/%s/%s/%s/?format=json",
			s.base(), url.PathEscape(strings.ToLower(code)),
			start.Format("2006-01-02"), end.Format("2006-01-02"))
		body, err := s.get(ctx, u)
		if err != nil {
			return nil, err
		}
		if body == nil {
			continue
		}
		for _, item := range gjson.GetBytes(body, "rates").Array() {
			mid := item.Get("mid").Float()
			date, perr := time.Parse("2006-01-02", item.Get("effectiveDate").String())
			if perr != nil || mid <= 0 {
				continue
			}
			rates = append(rates, Rate{Code: code, Date: provider.Day(date), Mid: mid})
		}
	}
	return rates, nil
}

// GenericSource is the last-resort generic FX API (exchangerate.host shape).
type GenericSource struct {
	Client     *httpx.Client
	BaseURL    string // default https://api.exchangerate.host
	Settlement string
}

func (s *GenericSource) Name() string { return "fx-api" }

func (s *GenericSource) base() string {
	if s.BaseURL != "" {
		return strings.TrimRight(s.BaseURL, "/")
	}
	return "https://api.exchangerate.host"
}

func (s *GenericSource) Latest(ctx context.Context, code string) (*Rate, error) {
	u := fmt.Sprintf("%s/latest?base=%s&symbols=%s", s.base(), url.QueryEscape(code), url.QueryEscape(s.Settlement))
	status, body, err := s.Client.Get(ctx, u)
	if err != nil {
		return nil, err
	}
	if status != 200 || !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("fx-api: status %d", status)
	}
	mid := gjson.GetBytes(body, "rates."+s.Settlement).Float()
	if mid <= 0 {
		return nil, nil
	}
	date, perr := time.Parse("2006-01-02", gjson.GetBytes(body, "date").String())
	if perr != nil {
		date = time.Now().UTC()
	}
	return &Rate{Code: code, Date: provider.Day(date), Mid: mid}, nil
}

func (s *GenericSource) Series(ctx context.Context, code string, from, to time.Time) ([]Rate, error) {
	u := fmt.Sprintf("%s/timeseries?start_date=%s&end_date=%s&base=%s&symbols=%s",
		s.base(), from.Format("2006-01-02"), to.Format("2006-01-02"),
		url.QueryEscape(code), url.QueryEscape(s.Settlement))
	status, body, err := s.Client.Get(ctx, u)
	if err != nil {
		return nil, err
	}
	if status != 200 || !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("fx-api: status %d", status)
	}
	var rates []Rate
	gjson.GetBytes(body, "rates").ForEach(func(key, value gjson.Result) bool {
		date, perr := time.Parse("2006-01-02", key.String())
		if perr != nil {
			return true
		}
		mid := value.Get(s.Settlement).Float()
		if mid > 0 {
			rates = append(rates, Rate{Code: code, Date: provider.Day(date), Mid: mid})
		}
		return true
	})
	return rates, nil
}
