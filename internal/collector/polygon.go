package collector

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"time"

	polygonrest "github.com/polygon-io/client-go/rest"
	rmodels "github.com/polygon-io/client-go/rest/models"

	"BandWatch/internal/model"
)

// PolygonFetcher implements Fetcher using the Polygon.io aggregates API.
type PolygonFetcher struct {
	rest *polygonrest.Client
	loc  *time.Location
}

// NewPolygonFetcher creates a fetcher with optional proxy support. loc is the
// market timezone; the intraday window starts at local midnight.
func NewPolygonFetcher(apiKey, proxyURL string, loc *time.Location) *PolygonFetcher {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	client := &http.Client{
		Timeout:   30 * time.Second,
		Transport: transport,
	}
	return &PolygonFetcher{
		rest: polygonrest.NewWithClient(apiKey, client),
		loc:  loc,
	}
}

func (f *PolygonFetcher) Name() string { return "polygon" }

// FetchIntraday returns today's 1-minute aggregates for the symbol.
func (f *PolygonFetcher) FetchIntraday(ctx context.Context, symbol string) ([]model.Bar, error) {
	now := time.Now().In(f.loc)
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, f.loc)

	params := &rmodels.ListAggsParams{
		Ticker:     symbol,
		Timespan:   rmodels.Minute,
		Multiplier: 1,
		From:       rmodels.Millis(dayStart),
		// The REST upper bound is exclusive; add a minute so the bar
		// currently forming is included once it lands.
		To: rmodels.Millis(now.Add(1 * time.Minute)),
	}
	limit := 50000
	order := rmodels.Asc
	adjusted := true
	params.Limit = &limit
	params.Order = &order
	params.Adjusted = &adjusted

	var bars []model.Bar
	iter := f.rest.ListAggs(ctx, params)
	for iter.Next() {
		a := iter.Item()
		bars = append(bars, model.Bar{
			Time:   time.Time(a.Timestamp).In(f.loc),
			Open:   a.Open,
			High:   a.High,
			Low:    a.Low,
			Close:  a.Close,
			Volume: a.Volume,
		})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("polygon aggs %s: %v: %w", symbol, err, ErrDataSourceUnavailable)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("polygon %s: %w", symbol, ErrNoData)
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	return bars, nil
}
