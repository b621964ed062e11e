package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"BandWatch/internal/band"
	"BandWatch/internal/collector"
	"BandWatch/internal/config"
	"BandWatch/internal/model"
	"BandWatch/internal/store"

	"github.com/robfig/cron/v3"
)

// Lifecycle drives the daily state machine: reset at session open, band
// capture at the configured capture time, and the terminal market-close
// transition. A cron tick fires every minute; each action is gated by a
// watermark rather than the tick's wall-clock minute, so a tick missed while
// the process was paused still fires on the next check instead of skipping
// the day.
type Lifecycle struct {
	cron    *cron.Cron
	store   *store.Store
	fetcher collector.Fetcher
	sess    config.Session
	now     func() time.Time

	keepLastPrice bool
	fetchTimeout  time.Duration

	mu           sync.Mutex
	lastResetDay string
	lastCloseDay string
}

// New creates a Lifecycle. now is injectable for tests; nil means wall clock.
func New(st *store.Store, fetcher collector.Fetcher, sess config.Session,
	keepLastPrice bool, fetchTimeout time.Duration, now func() time.Time) *Lifecycle {
	if now == nil {
		now = time.Now
	}
	return &Lifecycle{
		cron:          cron.New(cron.WithSeconds(), cron.WithLocation(sess.Loc)),
		store:         st,
		fetcher:       fetcher,
		sess:          sess,
		now:           now,
		keepLastPrice: keepLastPrice,
		fetchTimeout:  fetchTimeout,
	}
}

// Start registers the minute tick and starts the cron scheduler.
func (l *Lifecycle) Start() error {
	if _, err := l.cron.AddFunc("0 * * * * *", l.Tick); err != nil {
		return fmt.Errorf("register lifecycle tick: %w", err)
	}
	l.cron.Start()
	log.Println("[INFO] lifecycle scheduler started")
	return nil
}

// Stop stops the cron scheduler gracefully.
func (l *Lifecycle) Stop() {
	l.cron.Stop()
	log.Println("[INFO] lifecycle scheduler stopped")
}

// Tick runs the three watermark-gated checks, in day order. Also called
// once at startup so a process launched mid-day catches up immediately.
func (l *Lifecycle) Tick() {
	now := l.now().In(l.sess.Loc)
	l.checkReset(now)
	l.checkCapture(now)
	l.checkClose(now)
}

// checkReset clears every symbol for the new trading day, once per day, at
// or after session open. One durable save covers the whole pass so a crash
// can't leave half the symbols on yesterday's band. Each state additionally
// carries its own trading-day watermark: a state already on today's day is
// left alone, so a restart mid-session (empty in-memory watermark, startup
// catch-up tick) cannot wipe what Restore just reloaded.
func (l *Lifecycle) checkReset(now time.Time) {
	day := now.Format(model.DayFormat)

	l.mu.Lock()
	done := l.lastResetDay == day
	l.mu.Unlock()
	if done || now.Before(l.sess.Open.On(now)) {
		return
	}

	l.store.MutateAll(true, func(symbol string, st *model.BandState) {
		if st.TradingDay == day {
			return
		}
		st.Reset(now, l.keepLastPrice)
	})

	l.mu.Lock()
	l.lastResetDay = day
	l.mu.Unlock()
	log.Printf("[INFO] daily reset done for %s", day)
}

// captureGrace bounds how long after capture time the accumulated live
// extremes are still a faithful open-to-capture window. Past it (process
// started late in the day) the band is synthesized from historical bars
// instead, because by then the live extremes span the whole day.
const captureGrace = 2 * time.Minute

// checkCapture freezes the reference band for every symbol not yet captured
// today. Gated per symbol on the band itself, so repeated ticks within the
// capture minute are idempotent. Symbols with no data yet are retried on the
// next tick.
func (l *Lifecycle) checkCapture(now time.Time) {
	captureAt := l.sess.Capture.On(now)
	if now.Before(captureAt) {
		return
	}
	day := now.Format(model.DayFormat)

	if now.Sub(captureAt) <= captureGrace {
		captured := 0
		l.store.MutateAll(true, func(symbol string, st *model.BandState) {
			if st.Captured(now) || st.TradingDay != day {
				return
			}
			if st.LiveHigh == nil || st.LiveLow == nil {
				return
			}
			freezeBand(st, *st.LiveHigh, *st.LiveLow)
			captured++
		})
		if captured > 0 {
			log.Printf("[INFO] band captured for %d symbol(s)", captured)
		}
		return
	}

	// Late pass: replay the open-to-capture window from historical bars.
	for _, symbol := range l.store.Symbols() {
		st, err := l.store.Get(symbol)
		if err != nil || st.Captured(now) || st.TradingDay != day {
			continue
		}
		if err := l.captureFromWindow(context.Background(), symbol, now); err != nil {
			log.Printf("[WARN] late capture %s: %v", symbol, err)
		}
	}
}

// checkClose moves every non-closed symbol to MARKET_CLOSED once per day
// after the session end, freezing the live extremes and last price as the
// day's final summary.
func (l *Lifecycle) checkClose(now time.Time) {
	day := now.Format(model.DayFormat)

	l.mu.Lock()
	done := l.lastCloseDay == day
	l.mu.Unlock()
	if done || now.Before(l.sess.Close.On(now)) {
		return
	}

	l.store.MutateAll(true, func(symbol string, st *model.BandState) {
		if st.Status != model.StatusMarketClosed {
			st.Status = model.StatusMarketClosed
		}
	})

	l.mu.Lock()
	l.lastCloseDay = day
	l.mu.Unlock()
	log.Printf("[INFO] market closed for %s", day)
}

// ForceCapture captures the symbol's band right now, bypassing the time
// gate. Used by the manual endpoint and for symbols registered after the
// day's capture time. Prefers the accumulated live extremes; with none
// available it synthesizes the band from the fetched minute bars windowed to
// [session open, capture time] (or now, when called before capture time).
// Idempotent for an already-captured symbol.
func (l *Lifecycle) ForceCapture(ctx context.Context, symbol string) error {
	now := l.now().In(l.sess.Loc)

	st, err := l.store.Get(symbol)
	if err != nil {
		return err
	}
	if st.Captured(now) {
		return nil
	}

	if st.LiveHigh != nil && st.LiveLow != nil {
		high, low := *st.LiveHigh, *st.LiveLow
		return l.store.Mutate(symbol, true, func(st *model.BandState) {
			if st.Captured(now) {
				return
			}
			freezeBand(st, high, low)
		})
	}
	return l.captureFromWindow(ctx, symbol, now)
}

// captureFromWindow synthesizes and freezes a band from historical bars.
func (l *Lifecycle) captureFromWindow(ctx context.Context, symbol string, now time.Time) error {
	high, low, err := l.windowExtremes(ctx, symbol, now)
	if err != nil {
		return err
	}
	return l.store.Mutate(symbol, true, func(st *model.BandState) {
		if st.Captured(now) {
			return
		}
		band.Extend(st, high, low)
		freezeBand(st, high, low)
	})
}

// windowExtremes fetches today's bars and reduces them to the high/low of
// the open-to-capture window.
func (l *Lifecycle) windowExtremes(ctx context.Context, symbol string, now time.Time) (float64, float64, error) {
	fctx, cancel := context.WithTimeout(ctx, l.fetchTimeout)
	defer cancel()

	bars, err := l.fetcher.FetchIntraday(fctx, symbol)
	if err != nil {
		return 0, 0, fmt.Errorf("capture %s: %w", symbol, err)
	}

	from := l.sess.Open.On(now)
	to := l.sess.Capture.On(now)
	if now.Before(to) {
		to = now
	}
	high, low, err := band.WindowExtremes(bars, from, to)
	if err != nil {
		return 0, 0, fmt.Errorf("capture %s: %w", symbol, err)
	}
	return high, low, nil
}

func freezeBand(st *model.BandState, high, low float64) {
	st.BandHigh = model.Float64Ptr(high)
	st.BandLow = model.Float64Ptr(low)
	st.Status = model.StatusInBand
	st.Trigger = nil
}
