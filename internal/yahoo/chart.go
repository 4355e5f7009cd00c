package yahoo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rickgao/mcpbus/internal/market"
)

// chartResponse is the /v8/finance/chart payload.
type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *chartError   `json:"error"`
	} `json:"chart"`
}

type chartError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

type chartResult struct {
	Meta struct {
		Symbol   string `json:"symbol"`
		Currency string `json:"currency"`
		Timezone string `json:"exchangeTimezoneName"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Open   []*float64 `json:"open"`
			High   []*float64 `json:"high"`
			Low    []*float64 `json:"low"`
			Close  []*float64 `json:"close"`
			Volume []*int64   `json:"volume"`
		} `json:"quote"`
		AdjClose []struct {
			AdjClose []*float64 `json:"adjclose"`
		} `json:"adjclose"`
	} `json:"indicators"`
}

// Download implements market.Provider.
func (c *Client) Download(ctx context.Context, symbol, period, interval string) ([]market.PriceRecord, error) {
	query := url.Values{}
	query.Set("range", period)
	query.Set("interval", interval)
	query.Set("includeAdjustedClose", "true")

	body, err := c.doWithRetry(ctx, "/v8/finance/chart/"+url.PathEscape(symbol), query)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			c.logger.Debug("no chart data", "symbol", symbol)
			return nil, nil
		}
		return nil, fmt.Errorf("get chart: %w", err)
	}

	var resp chartResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal chart: %w", err)
	}

	if e := resp.Chart.Error; e != nil {
		return nil, fmt.Errorf("chart error %s: %s", e.Code, e.Description)
	}
	if len(resp.Chart.Result) == 0 {
		return nil, nil
	}

	return toRecords(resp.Chart.Result[0]), nil
}

// toRecords flattens the column-oriented chart payload into rows.
func toRecords(r chartResult) []market.PriceRecord {
	if len(r.Indicators.Quote) == 0 {
		return nil
	}
	q := r.Indicators.Quote[0]

	var adj []*float64
	if len(r.Indicators.AdjClose) > 0 {
		adj = r.Indicators.AdjClose[0].AdjClose
	}

	records := make([]market.PriceRecord, 0, len(r.Timestamp))
	for i, ts := range r.Timestamp {
		closePrice := at(q.Close, i)
		if closePrice == nil {
			continue
		}

		rec := market.PriceRecord{
			Datetime: time.Unix(ts, 0).UTC(),
			Open:     deref(at(q.Open, i)),
			High:     deref(at(q.High, i)),
			Low:      deref(at(q.Low, i)),
			Close:    *closePrice,
			AdjClose: *closePrice,
		}
		if a := at(adj, i); a != nil {
			rec.AdjClose = *a
		}
		if v := at(q.Volume, i); v != nil {
			rec.Volume = *v
		}
		records = append(records, rec)
	}

	return records
}

func at[T any](s []*T, i int) *T {
	if i < len(s) {
		return s[i]
	}
	return nil
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}
