package risk

// KellyInputs are the win statistics the position sizer runs on. They come
// from the decision log's realized outcomes, or from configured priors until
// enough history accumulates.
type KellyInputs struct {
	WinRate float64 `json:"win_rate"`
	AvgWin  float64 `json:"avg_win"`
	AvgLoss float64 `json:"avg_loss"`
}

// KellyFraction computes the full Kelly fraction f = (p*b - q) / b with
// b = avgWin/avgLoss, clipped to [0, 1]. Degenerate inputs (no losses
// observed, zero payoff ratio) return 0 rather than an unbounded bet.
func KellyFraction(in KellyInputs) float64 {
	if in.AvgLoss <= 0 || in.AvgWin <= 0 {
		return 0
	}
	if in.WinRate <= 0 || in.WinRate >= 1 {
		if in.WinRate >= 1 {
			return 1
		}
		return 0
	}
	b := in.AvgWin / in.AvgLoss
	f := (in.WinRate*b - (1 - in.WinRate)) / b
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// HalfKelly is the per-position weight ceiling: half the full Kelly
// fraction. Full Kelly assumes the inputs are exact; halving trades a little
// growth for much less variance when they are not.
func HalfKelly(in KellyInputs) float64 {
	return KellyFraction(in) * 0.5
}
