package collector

import (
	"context"
	"errors"

	"BandWatch/internal/model"
)

// ErrNoData indicates the upstream source answered but had no bars for the
// current trading day (holiday, pre-open, delisted symbol). Transient from
// the monitor's point of view, same as a network failure.
var ErrNoData = errors.New("no intraday data")

// ErrDataSourceUnavailable wraps transport and upstream-API failures so the
// monitor can classify them as transient without inspecting provider details.
var ErrDataSourceUnavailable = errors.New("data source unavailable")

// Fetcher defines the interface for fetching market data.
// Implementations return the current day's minute bars in ascending time
// order. Errors are per-symbol and per-call; callers retry on the next tick.
type Fetcher interface {
	FetchIntraday(ctx context.Context, symbol string) ([]model.Bar, error)
	Name() string
}
