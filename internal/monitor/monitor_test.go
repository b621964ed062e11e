package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"BandWatch/internal/collector"
	"BandWatch/internal/config"
	"BandWatch/internal/model"
	"BandWatch/internal/persist"
	"BandWatch/internal/store"
)

func testSession() config.Session {
	return config.Session{
		Loc:     time.UTC,
		Open:    config.TimeOfDay{Hour: 9, Minute: 15},
		Capture: config.TimeOfDay{Hour: 10, Minute: 30},
		Close:   config.TimeOfDay{Hour: 15, Minute: 30},
	}
}

func at(h, m int) time.Time {
	return time.Date(2024, 3, 4, h, m, 0, 0, time.UTC)
}

func newMonitor(fetcher collector.Fetcher, now time.Time) (*Monitor, *store.Store) {
	clock := func() time.Time { return now }
	st := store.New(persist.NewNoopPersister(), clock)
	m := New(st, fetcher, testSession(), time.Second, time.Second, time.Minute, 2, clock)
	return m, st
}

func withBand(st *store.Store, symbol string, low, high float64) {
	st.Register(symbol)
	st.Mutate(symbol, false, func(s *model.BandState) {
		s.BandLow = model.Float64Ptr(low)
		s.BandHigh = model.Float64Ptr(high)
		s.Status = model.StatusInBand
	})
}

func TestPass_ClassifiesAgainstBand(t *testing.T) {
	fetcher := &collector.MockFetcher{}
	fetcher.SetBars("RELIANCE.NS", []model.Bar{
		{Time: at(10, 58), High: 108, Low: 104, Close: 106},
		{Time: at(10, 59), High: 112, Low: 107, Close: 111},
	})

	m, st := newMonitor(fetcher, at(11, 0))
	withBand(st, "RELIANCE.NS", 100, 110)

	m.Pass(context.Background())

	s, _ := st.Get("RELIANCE.NS")
	if s.Status != model.StatusBreakoutHigh {
		t.Fatalf("status = %s, want BREAKOUT_HIGH", s.Status)
	}
	if s.LastPrice == nil || *s.LastPrice != 111 {
		t.Fatalf("last price = %v, want 111 (most recent close)", s.LastPrice)
	}
	if *s.LiveHigh != 112 || *s.LiveLow != 104 {
		t.Fatalf("live extremes = (%v, %v), want (104, 112)", s.LiveLow, s.LiveHigh)
	}
	if s.Trigger == nil || s.Trigger.Price != 111 || !s.Trigger.Time.Equal(at(11, 0)) {
		t.Fatalf("trigger = %+v, want (11:00, 111)", s.Trigger)
	}
}

func TestPass_DataGapLeavesStateUntouched(t *testing.T) {
	fetcher := &collector.MockFetcher{Err: errors.New("upstream down")}
	m, st := newMonitor(fetcher, at(11, 5))
	withBand(st, "RELIANCE.NS", 100, 110)
	st.Mutate("RELIANCE.NS", false, func(s *model.BandState) {
		s.LastPrice = model.Float64Ptr(105)
		s.LiveHigh = model.Float64Ptr(108)
		s.LiveLow = model.Float64Ptr(101)
	})

	m.Pass(context.Background())

	s, _ := st.Get("RELIANCE.NS")
	if s.Status != model.StatusInBand || *s.LastPrice != 105 {
		t.Fatalf("transient gap mutated state: %+v", s)
	}
	if *s.BandHigh != 110 || *s.BandLow != 100 {
		t.Fatalf("transient gap mutated band: %+v", s)
	}
	if !s.LastChecked.Equal(at(11, 5)) {
		t.Fatalf("last checked = %v, want refreshed", s.LastChecked)
	}
}

func TestPass_NoDataIsTransientToo(t *testing.T) {
	fetcher := &collector.MockFetcher{Err: collector.ErrNoData}
	m, st := newMonitor(fetcher, at(11, 5))
	withBand(st, "SBIN.NS", 490, 510)

	m.Pass(context.Background())

	s, _ := st.Get("SBIN.NS")
	if s.Status != model.StatusInBand {
		t.Fatalf("no-data fetch regressed status to %s", s.Status)
	}
}

func TestPass_MonotonicExtremesAcrossPasses(t *testing.T) {
	fetcher := &collector.MockFetcher{}
	fetcher.SetBars("SBIN.NS", []model.Bar{
		{Time: at(10, 58), High: 510, Low: 490, Close: 500},
	})
	m, st := newMonitor(fetcher, at(11, 0))
	withBand(st, "SBIN.NS", 480, 520)
	m.Pass(context.Background())

	// A narrower series on the next pass must not shrink the extremes.
	fetcher.SetBars("SBIN.NS", []model.Bar{
		{Time: at(11, 1), High: 505, Low: 495, Close: 501},
	})
	m.Pass(context.Background())

	s, _ := st.Get("SBIN.NS")
	if *s.LiveHigh != 510 || *s.LiveLow != 490 {
		t.Fatalf("extremes shrank across passes: (%v, %v)", s.LiveLow, s.LiveHigh)
	}
}

func TestPass_ClosedSymbolStaysFrozen(t *testing.T) {
	fetcher := &collector.MockFetcher{}
	fetcher.SetBars("RELIANCE.NS", []model.Bar{
		{Time: at(15, 29), High: 200, Low: 150, Close: 180},
	})
	m, st := newMonitor(fetcher, at(15, 29))
	st.Register("RELIANCE.NS")
	st.Mutate("RELIANCE.NS", false, func(s *model.BandState) {
		s.Status = model.StatusMarketClosed
		s.LastPrice = model.Float64Ptr(100)
		s.LiveHigh = model.Float64Ptr(101)
		s.LiveLow = model.Float64Ptr(99)
	})

	m.Pass(context.Background())

	s, _ := st.Get("RELIANCE.NS")
	if *s.LastPrice != 100 || *s.LiveHigh != 101 || *s.LiveLow != 99 {
		t.Fatalf("refresh mutated a closed symbol: %+v", s)
	}
	if !s.LastChecked.Equal(at(15, 29)) {
		t.Fatalf("last checked not refreshed for closed symbol")
	}
}

func TestPass_FailureIsolatedPerSymbol(t *testing.T) {
	fetcher := &collector.MockFetcher{}
	fetcher.SetBars("GOOD.NS", []model.Bar{
		{Time: at(11, 0), High: 106, Low: 104, Close: 105},
	})
	// BAD.NS has no scripted bars and MockFetcher would synthesize some, so
	// give it an empty series to force ErrNoData-like behavior.
	fetcher.SetBars("BAD.NS", nil)

	m, st := newMonitor(fetcher, at(11, 1))
	withBand(st, "GOOD.NS", 100, 110)
	withBand(st, "BAD.NS", 100, 110)

	m.Pass(context.Background())

	good, _ := st.Get("GOOD.NS")
	if good.LastPrice == nil || *good.LastPrice != 105 {
		t.Fatalf("healthy symbol not refreshed: %+v", good)
	}
}
