package collector

import (
	"context"
	"sync"
	"time"

	"BandWatch/internal/model"
)

// MockFetcher returns controllable fixed data for development and testing.
// With no fields set it synthesizes a plausible intraday random-walk so the
// "mock" provider works out of the box.
type MockFetcher struct {
	mu    sync.Mutex
	Bars  map[string][]model.Bar // per-symbol scripted series
	Err   error                  // returned for every fetch when set
	Price float64                // base price for generated bars
}

func (m *MockFetcher) Name() string { return "mock" }

func (m *MockFetcher) FetchIntraday(_ context.Context, symbol string) ([]model.Bar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	if bars, ok := m.Bars[symbol]; ok {
		out := make([]model.Bar, len(bars))
		copy(out, bars)
		return out, nil
	}
	price := m.Price
	if price == 0 {
		price = 100
	}
	return generateMockBars(price, 60), nil
}

// SetBars replaces the scripted series for one symbol.
func (m *MockFetcher) SetBars(symbol string, bars []model.Bar) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Bars == nil {
		m.Bars = make(map[string][]model.Bar)
	}
	m.Bars[symbol] = bars
}

func generateMockBars(basePrice float64, count int) []model.Bar {
	bars := make([]model.Bar, count)
	for i := 0; i < count; i++ {
		p := basePrice * (1 + float64(i-count/2)*0.001)
		bars[i] = model.Bar{
			Time:   time.Now().Add(-time.Duration(count-i) * time.Minute),
			Open:   p * 0.999,
			High:   p * 1.005,
			Low:    p * 0.995,
			Close:  p,
			Volume: 10000,
		}
	}
	return bars
}
