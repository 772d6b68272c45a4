// Package indicators provides stateless technical indicator functions over
// price series. All functions read their inputs and return fresh slices;
// none keeps state between calls. Functions that need a minimum lookback
// return an INSUFFICIENT_DATA error when the series is too short, which
// callers treat as "skip instrument this cycle".
package indicators

import (
	"math"

	"github.com/tuanphm93/coinfactor/internal/engerr"
)

const component = "indicators"

// EMA computes the exponential moving average series, seeded with the first
// price.
func EMA(prices []float64, period int) ([]float64, error) {
	if len(prices) == 0 {
		return nil, engerr.InsufficientData(component, "", 0, 1)
	}
	out := make([]float64, len(prices))
	out[0] = prices[0]
	k := 2.0 / float64(period+1)
	for i := 1; i < len(prices); i++ {
		out[i] = (prices[i]-out[i-1])*k + out[i-1]
	}
	return out, nil
}

// SMA computes the simple moving average series. Positions before the first
// full window hold NaN.
func SMA(prices []float64, period int) ([]float64, error) {
	if len(prices) < period {
		return nil, engerr.InsufficientData(component, "", len(prices), period)
	}
	out := make([]float64, len(prices))
	sum := 0.0
	for i, p := range prices {
		sum += p
		if i >= period {
			sum -= prices[i-period]
		}
		if i < period-1 {
			out[i] = math.NaN()
		} else {
			out[i] = sum / float64(period)
		}
	}
	return out, nil
}

// RSI computes the latest Relative Strength Index over the trailing window
// using Wilder smoothing.
//
// Flat-series policy: when both average gain and average loss are zero the
// price carried no information and RSI is neutral 50. Only a strictly
// positive average gain with zero average loss yields 100.
func RSI(prices []float64, period int) (float64, error) {
	if len(prices) < period+1 {
		return 0, engerr.InsufficientData(component, "", len(prices), period+1)
	}

	gains := make([]float64, len(prices)-1)
	losses := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		change := prices[i] - prices[i-1]
		if change > 0 {
			gains[i-1] = change
		} else {
			losses[i-1] = -change
		}
	}

	avgGain := mean(gains[:period])
	avgLoss := mean(losses[:period])
	for i := period; i < len(gains); i++ {
		avgGain = (avgGain*float64(period-1) + gains[i]) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + losses[i]) / float64(period)
	}

	if avgLoss == 0 {
		if avgGain > 0 {
			return 100, nil
		}
		return 50, nil
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs), nil
}

// MACD computes the MACD line (DIF), signal line (DEA) and histogram series
// for the given fast/slow/signal periods.
func MACD(prices []float64, fast, slow, signal int) (dif, dea, hist []float64, err error) {
	if len(prices) < slow+signal {
		return nil, nil, nil, engerr.InsufficientData(component, "", len(prices), slow+signal)
	}
	emaFast, _ := EMA(prices, fast)
	emaSlow, _ := EMA(prices, slow)

	dif = make([]float64, len(prices))
	for i := range prices {
		dif[i] = emaFast[i] - emaSlow[i]
	}
	dea, _ = EMA(dif, signal)
	hist = make([]float64, len(prices))
	for i := range prices {
		hist[i] = 2 * (dif[i] - dea[i])
	}
	return dif, dea, hist, nil
}

// BollingerBands computes the upper, middle and lower band series for the
// given period and standard deviation multiplier. Positions before the first
// full window hold NaN.
func BollingerBands(prices []float64, period int, stdDev float64) (upper, middle, lower []float64, err error) {
	middle, err = SMA(prices, period)
	if err != nil {
		return nil, nil, nil, err
	}
	upper = make([]float64, len(prices))
	lower = make([]float64, len(prices))
	for i := range prices {
		if i < period-1 {
			upper[i] = math.NaN()
			lower[i] = math.NaN()
			continue
		}
		sd := stdDevOf(prices[i-period+1 : i+1])
		upper[i] = middle[i] + stdDev*sd
		lower[i] = middle[i] - stdDev*sd
	}
	return upper, middle, lower, nil
}

// ATR computes the Average True Range series with Wilder smoothing. The
// first period positions repeat the initial average.
func ATR(highs, lows, closes []float64, period int) ([]float64, error) {
	if len(highs) < period+1 {
		return nil, engerr.InsufficientData(component, "", len(highs), period+1)
	}

	tr := make([]float64, len(highs))
	tr[0] = highs[0] - lows[0]
	for i := 1; i < len(highs); i++ {
		hl := highs[i] - lows[i]
		hc := math.Abs(highs[i] - closes[i-1])
		lc := math.Abs(lows[i] - closes[i-1])
		tr[i] = math.Max(hl, math.Max(hc, lc))
	}

	out := make([]float64, len(highs))
	atr := mean(tr[:period])
	for i := 0; i < period; i++ {
		out[i] = atr
	}
	for i := period; i < len(tr); i++ {
		atr = (atr*float64(period-1) + tr[i]) / float64(period)
		out[i] = atr
	}
	return out, nil
}

// ADX computes the latest Average Directional Index value, a 0-100 trend
// strength measure. Values above 25 indicate a strong trend.
func ADX(highs, lows, closes []float64, period int) (float64, error) {
	if len(highs) < 2*period+1 {
		return 0, engerr.InsufficientData(component, "", len(highs), 2*period+1)
	}

	plusDM := make([]float64, len(highs)-1)
	minusDM := make([]float64, len(highs)-1)
	for i := 1; i < len(highs); i++ {
		up := highs[i] - highs[i-1]
		down := lows[i-1] - lows[i]
		if up > down && up > 0 {
			plusDM[i-1] = up
		}
		if down > up && down > 0 {
			minusDM[i-1] = down
		}
	}

	atr, err := ATR(highs, lows, closes, period)
	if err != nil {
		return 0, err
	}

	dx := make([]float64, len(plusDM))
	for i := range plusDM {
		if atr[i+1] <= 0 {
			continue
		}
		plusDI := 100 * plusDM[i] / atr[i+1]
		minusDI := 100 * minusDM[i] / atr[i+1]
		if sum := plusDI + minusDI; sum > 0 {
			dx[i] = 100 * math.Abs(plusDI-minusDI) / sum
		}
	}

	adx := mean(dx[:period])
	for i := period; i < len(dx); i++ {
		adx = (adx*float64(period-1) + dx[i]) / float64(period)
	}
	return adx, nil
}

func engerrInsufficient(have, need int) error {
	return engerr.InsufficientData(component, "", have, need)
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// stdDevOf is the population standard deviation, matching the cross-sectional
// normalization used by the factor engine.
func stdDevOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := mean(values)
	variance := 0.0
	for _, v := range values {
		d := v - m
		variance += d * d
	}
	return math.Sqrt(variance / float64(len(values)))
}
