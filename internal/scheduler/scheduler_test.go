package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"BandWatch/internal/collector"
	"BandWatch/internal/config"
	"BandWatch/internal/model"
	"BandWatch/internal/persist"
	"BandWatch/internal/store"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

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

func newLifecycle(clock *fakeClock, fetcher collector.Fetcher) (*Lifecycle, *store.Store) {
	st := store.New(persist.NewNoopPersister(), clock.Now)
	lc := New(st, fetcher, testSession(), false, time.Second, clock.Now)
	return lc, st
}

func TestTick_ResetClearsEverySymbol(t *testing.T) {
	clock := &fakeClock{t: at(9, 40)}
	lc, st := newLifecycle(clock, &collector.MockFetcher{Err: errors.New("down")})

	st.Register("RELIANCE.NS")
	st.Mutate("RELIANCE.NS", false, func(s *model.BandState) {
		s.BandHigh = model.Float64Ptr(110)
		s.BandLow = model.Float64Ptr(100)
		s.LiveHigh = model.Float64Ptr(112)
		s.Status = model.StatusBreakoutHigh
		s.Trigger = &model.TriggerMark{Time: at(9, 0), Price: 111}
		s.TradingDay = "2024-03-03" // yesterday
	})

	lc.Tick()

	s, _ := st.Get("RELIANCE.NS")
	if s.BandHigh != nil || s.BandLow != nil || s.LiveHigh != nil || s.LiveLow != nil {
		t.Fatalf("reset did not clear accumulators: %+v", s)
	}
	if s.Status != model.StatusUnknown || s.Trigger != nil {
		t.Fatalf("reset did not clear status/trigger: %+v", s)
	}
	if s.TradingDay != "2024-03-04" {
		t.Fatalf("trading day = %s, want 2024-03-04", s.TradingDay)
	}
}

func TestTick_ResetFiresOncePerDay(t *testing.T) {
	clock := &fakeClock{t: at(9, 40)}
	lc, st := newLifecycle(clock, &collector.MockFetcher{Err: errors.New("down")})
	st.Register("SBIN.NS")
	lc.Tick()

	// Live data arrives after the reset; a later tick must not wipe it.
	st.Mutate("SBIN.NS", false, func(s *model.BandState) {
		s.LiveHigh = model.Float64Ptr(505)
		s.LiveLow = model.Float64Ptr(495)
	})
	clock.Set(at(9, 45))
	lc.Tick()

	s, _ := st.Get("SBIN.NS")
	if s.LiveHigh == nil || *s.LiveHigh != 505 {
		t.Fatalf("second same-day tick re-ran the reset: %+v", s)
	}
}

func TestTick_RestartSameDayKeepsRestoredState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	clock := &fakeClock{t: at(11, 0)}

	// First process: captured band, breakout in progress, state on disk.
	st := store.New(persist.NewFilePersister(path), clock.Now)
	st.Register("RELIANCE.NS")
	st.Mutate("RELIANCE.NS", true, func(s *model.BandState) {
		s.BandHigh = model.Float64Ptr(110)
		s.BandLow = model.Float64Ptr(100)
		s.LiveHigh = model.Float64Ptr(112)
		s.LiveLow = model.Float64Ptr(99)
		s.LastPrice = model.Float64Ptr(111)
		s.Status = model.StatusBreakoutHigh
		s.Trigger = &model.TriggerMark{Time: at(10, 45), Price: 111}
	})

	// Second process, five minutes later: restore, then the startup
	// catch-up tick, with the data source down.
	clock.Set(at(11, 5))
	st2 := store.New(persist.NewFilePersister(path), clock.Now)
	if err := st2.Restore(false); err != nil {
		t.Fatalf("restore: %v", err)
	}
	lc := New(st2, &collector.MockFetcher{Err: errors.New("down")}, testSession(), false, time.Second, clock.Now)
	lc.Tick()

	s, err := st2.Get("RELIANCE.NS")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if s.BandHigh == nil || *s.BandHigh != 110 || *s.BandLow != 100 {
		t.Fatalf("restart wiped the captured band: %+v", s)
	}
	if s.LiveHigh == nil || *s.LiveHigh != 112 || *s.LiveLow != 99 {
		t.Fatalf("restart wiped the live extremes: %+v", s)
	}
	if s.LastPrice == nil || *s.LastPrice != 111 {
		t.Fatalf("restart wiped the last price: %+v", s)
	}
	if s.Status != model.StatusBreakoutHigh {
		t.Fatalf("status = %s, want BREAKOUT_HIGH preserved across restart", s.Status)
	}
	if s.Trigger == nil || s.Trigger.Price != 111 {
		t.Fatalf("restart wiped the trigger mark: %+v", s)
	}
}

func TestTick_CaptureFreezesLiveExtremes(t *testing.T) {
	clock := &fakeClock{t: at(9, 40)}
	lc, st := newLifecycle(clock, &collector.MockFetcher{Err: errors.New("down")})
	st.Register("RELIANCE.NS")
	lc.Tick() // reset for the day

	st.Mutate("RELIANCE.NS", false, func(s *model.BandState) {
		s.LiveHigh = model.Float64Ptr(110)
		s.LiveLow = model.Float64Ptr(100)
	})

	clock.Set(at(10, 30))
	lc.Tick()

	s, _ := st.Get("RELIANCE.NS")
	if s.BandHigh == nil || *s.BandHigh != 110 || *s.BandLow != 100 {
		t.Fatalf("band not captured: %+v", s)
	}
	if s.Status != model.StatusInBand {
		t.Fatalf("status = %s, want IN_BAND after capture", s.Status)
	}

	// Idempotence: wider live extremes after capture must not move the band.
	st.Mutate("RELIANCE.NS", false, func(bs *model.BandState) {
		bs.LiveHigh = model.Float64Ptr(120)
		bs.LiveLow = model.Float64Ptr(90)
	})
	clock.Set(at(10, 31))
	lc.Tick()

	s, _ = st.Get("RELIANCE.NS")
	if *s.BandHigh != 110 || *s.BandLow != 100 {
		t.Fatalf("repeated capture tick moved the band: %+v", s)
	}
}

func TestTick_LateStartSynthesizesBandFromWindow(t *testing.T) {
	fetcher := &collector.MockFetcher{}
	fetcher.SetBars("RELIANCE.NS", []model.Bar{
		{Time: at(9, 20), High: 102, Low: 98, Close: 100},
		{Time: at(10, 0), High: 107, Low: 101, Close: 106},
		{Time: at(11, 45), High: 130, Low: 95, Close: 125}, // after capture, excluded
	})

	// Process starts at noon, well past capture time, with no live data.
	clock := &fakeClock{t: at(12, 0)}
	lc, st := newLifecycle(clock, fetcher)
	st.Register("RELIANCE.NS")
	lc.Tick()

	s, _ := st.Get("RELIANCE.NS")
	if s.BandHigh == nil || *s.BandHigh != 107 || *s.BandLow != 98 {
		t.Fatalf("band = (%v, %v), want (98, 107) from the open-capture window", s.BandLow, s.BandHigh)
	}
}

func TestTick_CloseIsTerminalForTheDay(t *testing.T) {
	clock := &fakeClock{t: at(9, 40)}
	lc, st := newLifecycle(clock, &collector.MockFetcher{Err: errors.New("down")})
	st.Register("SBIN.NS")
	lc.Tick()

	st.Mutate("SBIN.NS", false, func(s *model.BandState) {
		s.LiveHigh = model.Float64Ptr(505)
		s.LiveLow = model.Float64Ptr(495)
		s.LastPrice = model.Float64Ptr(500)
		s.Status = model.StatusInBand
	})

	clock.Set(at(15, 31))
	lc.Tick()

	s, _ := st.Get("SBIN.NS")
	if s.Status != model.StatusMarketClosed {
		t.Fatalf("status = %s, want MARKET_CLOSED", s.Status)
	}
	if *s.LiveHigh != 505 || *s.LiveLow != 495 || *s.LastPrice != 500 {
		t.Fatalf("close did not freeze the day summary: %+v", s)
	}
}

func TestForceCapture(t *testing.T) {
	clock := &fakeClock{t: at(9, 50)}
	lc, st := newLifecycle(clock, &collector.MockFetcher{Err: errors.New("down")})
	st.Register("RELIANCE.NS")
	lc.Tick()

	if err := lc.ForceCapture(context.Background(), "GHOST.NS"); !errors.Is(err, store.ErrUnknownSymbol) {
		t.Fatalf("err = %v, want ErrUnknownSymbol", err)
	}

	st.Mutate("RELIANCE.NS", false, func(s *model.BandState) {
		s.LiveHigh = model.Float64Ptr(110)
		s.LiveLow = model.Float64Ptr(100)
	})
	if err := lc.ForceCapture(context.Background(), "RELIANCE.NS"); err != nil {
		t.Fatalf("force capture: %v", err)
	}
	s, _ := st.Get("RELIANCE.NS")
	if s.BandHigh == nil || *s.BandHigh != 110 {
		t.Fatalf("band not captured: %+v", s)
	}

	// Already captured: must be a no-op even with new live extremes.
	st.Mutate("RELIANCE.NS", false, func(bs *model.BandState) {
		bs.LiveHigh = model.Float64Ptr(200)
	})
	if err := lc.ForceCapture(context.Background(), "RELIANCE.NS"); err != nil {
		t.Fatalf("repeat force capture: %v", err)
	}
	s, _ = st.Get("RELIANCE.NS")
	if *s.BandHigh != 110 {
		t.Fatalf("repeat force capture moved the band: %+v", s)
	}
}
