// Package strategy implements the directional sub-signals blended into the
// final portfolio decision: trend following, squeeze breakout and the
// dynamic benchmark hedge.
package strategy

import (
	"github.com/tuanphm93/coinfactor/internal/market"
)

// Action is a sub-signal's directional opinion on one instrument.
type Action string

const (
	Buy  Action = "BUY"
	Sell Action = "SELL"
	Hold Action = "HOLD"
)

// Signal is one sub-signal's output for one instrument. Confidence is in
// [0, 1]; Hold signals carry zero confidence.
type Signal struct {
	Symbol     string  `json:"symbol"`
	Action     Action  `json:"action"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"`
	Reason     string  `json:"reason,omitempty"`
}

// Tilt maps the signal onto a weight adjustment direction: +confidence for
// buys, -confidence for sells, 0 for holds.
func (s Signal) Tilt() float64 {
	switch s.Action {
	case Buy:
		return s.Confidence
	case Sell:
		return -s.Confidence
	default:
		return 0
	}
}

// SubSignal scores one instrument from the cycle snapshot. Insufficient
// history returns a Hold signal, not an error: a young listing simply has no
// directional opinion yet.
type SubSignal interface {
	Name() string
	Evaluate(symbol string, snap *market.Snapshot) Signal
}

func hold(symbol, source, reason string) Signal {
	return Signal{Symbol: symbol, Action: Hold, Source: source, Reason: reason}
}
