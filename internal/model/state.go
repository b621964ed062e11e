package model

import "time"

// Status classifies the live price against the captured reference band.
type Status string

const (
	StatusUnknown      Status = "UNKNOWN"
	StatusInBand       Status = "IN_BAND"
	StatusBreakoutHigh Status = "BREAKOUT_HIGH"
	StatusBreakoutLow  Status = "BREAKOUT_LOW"
	StatusMarketClosed Status = "MARKET_CLOSED"
)

// TriggerMark records when and at what price a symbol first broke out of its
// band since the last reset.
type TriggerMark struct {
	Time  time.Time `json:"time"`
	Price float64   `json:"price"`
}

// BandState is the per-symbol monitor state for one trading day.
//
// BandHigh and BandLow are either both nil (band not captured yet) or both
// set; once set they stay frozen until the next daily reset. LiveHigh and
// LiveLow only ever widen within a day.
type BandState struct {
	BandHigh    *float64     `json:"band_high"`
	BandLow     *float64     `json:"band_low"`
	LiveHigh    *float64     `json:"live_high"`
	LiveLow     *float64     `json:"live_low"`
	LastPrice   *float64     `json:"last_price"`
	Status      Status       `json:"status"`
	LastUpdate  time.Time    `json:"last_update"`
	LastChecked time.Time    `json:"last_checked"`
	TradingDay  string       `json:"trading_day"` // YYYY-MM-DD
	Trigger     *TriggerMark `json:"trigger,omitempty"`
}

// DayFormat is the layout used for TradingDay values.
const DayFormat = "2006-01-02"

// NewBandState returns the default state for a freshly registered symbol.
func NewBandState(day time.Time) *BandState {
	return &BandState{
		Status:     StatusUnknown,
		TradingDay: day.Format(DayFormat),
	}
}

// Reset clears the band and live accumulators for a new trading day.
// keepLastPrice preserves the previous close across the reset for display
// continuity; the trigger mark is always dropped.
func (s *BandState) Reset(day time.Time, keepLastPrice bool) {
	s.BandHigh = nil
	s.BandLow = nil
	s.LiveHigh = nil
	s.LiveLow = nil
	if !keepLastPrice {
		s.LastPrice = nil
	}
	s.Status = StatusUnknown
	s.Trigger = nil
	s.TradingDay = day.Format(DayFormat)
}

// Captured reports whether the band has already been frozen for the given day.
func (s *BandState) Captured(day time.Time) bool {
	return s.BandHigh != nil && s.BandLow != nil && s.TradingDay == day.Format(DayFormat)
}

// Clone returns a deep copy so callers can hand states out of the store
// without exposing internal pointers.
func (s *BandState) Clone() BandState {
	out := *s
	out.BandHigh = copyFloat(s.BandHigh)
	out.BandLow = copyFloat(s.BandLow)
	out.LiveHigh = copyFloat(s.LiveHigh)
	out.LiveLow = copyFloat(s.LiveLow)
	out.LastPrice = copyFloat(s.LastPrice)
	if s.Trigger != nil {
		t := *s.Trigger
		out.Trigger = &t
	}
	return out
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	f := *v
	return &f
}

// Float64Ptr is a convenience for building states in tests and persisters.
func Float64Ptr(v float64) *float64 { return &v }
