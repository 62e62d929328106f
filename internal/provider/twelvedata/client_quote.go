package twelvedata

import (
	"context"
	"fmt"
	"io"
	"maps"
	"net/http"

	"github.com/tidwall/gjson"

	"quoteengine/internal/provider"
)

// Quote retrieves the current price and previous close for a symbol.
// A nil quote with nil error means the provider has no data for it.
func (c *Client) Quote(ctx context.Context, symbol string, opts ...Option) (*provider.Quote, error) {
	override := &Client{
		baseURL:    c.baseURL,
		httpClient: c.httpClient,
		header:     c.header.Clone(),
		query:      c.query,
	}
	for _, opt := range opts {
		opt(override)
	}

	query := maps.Clone(override.query)
	query.Add("symbol", symbol)

	url := fmt.Sprintf("%s/quote?%s", override.baseURL, query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header = override.header

	res, err := override.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("performing request: %w", err)
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
		break
	case http.StatusTooManyRequests:
		return nil, provider.ErrRateLimited
	case http.StatusNotFound:
		return nil, nil
	default:
		return nil, fmt.Errorf("unexpected status code: %d", res.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading quote response: %w", err)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("malformed quote response")
	}

	// Errors arrive as data inside a 200 body.
	if gjson.GetBytes(body, "status").String() == "error" {
		if gjson.GetBytes(body, "code").Int() == http.StatusTooManyRequests {
			return nil, provider.ErrRateLimited
		}
		return nil, nil
	}

	q := &provider.Quote{Currency: gjson.GetBytes(body, "currency").String()}
	if v := gjson.GetBytes(body, "close"); v.Exists() && v.Float() > 0 {
		q.Price = provider.Float(v.Float())
	}
	if v := gjson.GetBytes(body, "previous_close"); v.Exists() && v.Float() > 0 {
		q.PrevClose = provider.Float(v.Float())
	}
	if q.Price == nil && q.PrevClose == nil {
		return nil, nil
	}
	return q, nil
}
