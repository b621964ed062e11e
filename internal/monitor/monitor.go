package monitor

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"BandWatch/internal/band"
	"BandWatch/internal/collector"
	"BandWatch/internal/config"
	"BandWatch/internal/model"
	"BandWatch/internal/store"
)

// Monitor is the live refresh loop: every interval it fetches fresh minute
// bars for each registered symbol, extends the live extremes, and
// re-evaluates the alert status against the captured band.
type Monitor struct {
	store   *store.Store
	fetcher collector.Fetcher
	sess    config.Session
	now     func() time.Time

	interval      time.Duration
	fetchTimeout  time.Duration
	saveInterval  time.Duration
	maxConcurrent int
}

// New creates a Monitor. now is injectable for tests; nil means wall clock.
func New(st *store.Store, fetcher collector.Fetcher, sess config.Session,
	interval, fetchTimeout, saveInterval time.Duration, maxConcurrent int,
	now func() time.Time) *Monitor {
	if now == nil {
		now = time.Now
	}
	return &Monitor{
		store:         st,
		fetcher:       fetcher,
		sess:          sess,
		now:           now,
		interval:      interval,
		fetchTimeout:  fetchTimeout,
		saveInterval:  saveInterval,
		maxConcurrent: maxConcurrent,
	}
}

// Run drives the loop until the context is cancelled, then flushes one final
// save. Outside session hours the loop idles; the coarse periodic save keeps
// a crash from losing more than one save interval of live data.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	saveTicker := time.NewTicker(m.saveInterval)
	defer saveTicker.Stop()

	log.Printf("[INFO] monitor started (interval %s, source %s)", m.interval, m.fetcher.Name())
	for {
		select {
		case <-ctx.Done():
			m.store.Save()
			log.Println("[INFO] monitor stopped, final state flushed")
			return
		case <-saveTicker.C:
			m.store.Save()
		case <-ticker.C:
			if m.sess.IsOpen(m.now()) {
				m.Pass(ctx)
			}
		}
	}
}

// Pass refreshes every registered symbol once, fetching with a bounded
// worker pool so one slow symbol cannot starve the rest of the batch.
// Failures stay isolated per symbol.
func (m *Monitor) Pass(ctx context.Context) {
	symbols := m.store.Symbols()
	if len(symbols) == 0 {
		return
	}

	sem := make(chan struct{}, m.maxConcurrent)
	var wg sync.WaitGroup
	for _, symbol := range symbols {
		s := symbol
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			m.refresh(ctx, s)
		}()
	}
	wg.Wait()
}

// refresh fetches one symbol and applies the result to its state. A fetch
// that fails or returns nothing only bumps the last-checked timestamp: the
// prior status never regresses on a transient gap.
func (m *Monitor) refresh(ctx context.Context, symbol string) {
	fctx, cancel := context.WithTimeout(ctx, m.fetchTimeout)
	defer cancel()

	bars, err := m.fetcher.FetchIntraday(fctx, symbol)
	now := m.now()
	if err != nil || len(bars) == 0 {
		if err != nil && !errors.Is(err, collector.ErrNoData) {
			log.Printf("[WARN] fetch %s: %v", symbol, err)
		}
		if merr := m.store.Mutate(symbol, false, func(st *model.BandState) {
			st.LastChecked = now
		}); merr != nil && !errors.Is(merr, store.ErrUnknownSymbol) {
			log.Printf("[ERROR] touch %s: %v", symbol, merr)
		}
		return
	}

	high, low, err := band.Extremes(bars)
	if err != nil {
		return
	}
	last := bars[len(bars)-1].Close

	var statusChanged bool
	merr := m.store.Mutate(symbol, false, func(st *model.BandState) {
		prev := st.Status
		st.LastChecked = now
		if st.Status == model.StatusMarketClosed {
			return
		}
		band.Extend(st, high, low)
		band.Evaluate(st, last, now)
		statusChanged = st.Status != prev
	})
	if merr != nil {
		if !errors.Is(merr, store.ErrUnknownSymbol) {
			log.Printf("[ERROR] update %s: %v", symbol, merr)
		}
		return
	}
	// Persist on transitions only; routine ticks ride the periodic save.
	if statusChanged {
		m.store.Save()
		st, err := m.store.Get(symbol)
		if err == nil {
			log.Printf("[INFO] %s -> %s at %.2f", symbol, st.Status, last)
		}
	}
}
