package band

import (
	"errors"
	"math"
	"time"

	"BandWatch/internal/model"
)

// Classify places a price relative to a captured band. The band boundaries
// are inclusive: a price exactly on band_high or band_low is still IN_BAND.
func Classify(price, bandLow, bandHigh float64) model.Status {
	switch {
	case price > bandHigh:
		return model.StatusBreakoutHigh
	case price < bandLow:
		return model.StatusBreakoutLow
	default:
		return model.StatusInBand
	}
}

// Extremes scans a bar series and returns its high and low.
func Extremes(bars []model.Bar) (high, low float64, err error) {
	if len(bars) == 0 {
		return 0, 0, errors.New("no bars provided")
	}
	high = math.Inf(-1)
	low = math.Inf(1)
	for _, b := range bars {
		if b.High > high {
			high = b.High
		}
		if b.Low < low {
			low = b.Low
		}
	}
	return high, low, nil
}

// WindowExtremes returns the high and low of the bars whose timestamps fall
// within [from, to]. Used to synthesize a band for symbols registered after
// capture time, from the session-open-to-capture window of historical bars.
func WindowExtremes(bars []model.Bar, from, to time.Time) (high, low float64, err error) {
	high = math.Inf(-1)
	low = math.Inf(1)
	seen := false
	for _, b := range bars {
		if b.Time.Before(from) || b.Time.After(to) {
			continue
		}
		seen = true
		if b.High > high {
			high = b.High
		}
		if b.Low < low {
			low = b.Low
		}
	}
	if !seen {
		return 0, 0, errors.New("no bars in window")
	}
	return high, low, nil
}

// Extend widens live extremes monotonically: within one trading day the live
// high never shrinks and the live low never grows, regardless of what an
// individual fetch returns.
func Extend(s *model.BandState, high, low float64) {
	if s.LiveHigh == nil || high > *s.LiveHigh {
		s.LiveHigh = model.Float64Ptr(high)
	}
	if s.LiveLow == nil || low < *s.LiveLow {
		s.LiveLow = model.Float64Ptr(low)
	}
}

// Evaluate applies one price observation to a state: updates last price,
// re-classifies against the band if one exists, and records the trigger mark
// on the first transition into a breakout state since the last reset. States
// already frozen at MARKET_CLOSED are left untouched.
func Evaluate(s *model.BandState, price float64, now time.Time) {
	if s.Status == model.StatusMarketClosed {
		return
	}
	s.LastPrice = model.Float64Ptr(price)
	s.LastUpdate = now

	if s.BandHigh == nil || s.BandLow == nil {
		s.Status = model.StatusUnknown
		return
	}

	next := Classify(price, *s.BandLow, *s.BandHigh)
	breakout := next == model.StatusBreakoutHigh || next == model.StatusBreakoutLow
	if breakout && s.Trigger == nil {
		s.Trigger = &model.TriggerMark{Time: now, Price: price}
	}
	s.Status = next
}
