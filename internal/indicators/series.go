package indicators

import "math"

// Returns computes simple period-over-period returns. The result has
// len(prices)-1 entries; a non-positive base price yields a zero return.
func Returns(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}
	out := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] > 0 {
			out[i-1] = (prices[i] - prices[i-1]) / prices[i-1]
		}
	}
	return out
}

// PeriodReturn is the fractional return over the trailing period: the change
// from the price period candles ago to the latest price.
func PeriodReturn(prices []float64, period int) (float64, error) {
	if len(prices) < period+1 {
		return 0, engerrInsufficient(len(prices), period+1)
	}
	base := prices[len(prices)-1-period]
	if base <= 0 {
		return 0, nil
	}
	return (prices[len(prices)-1] - base) / base, nil
}

// Mean is the arithmetic mean of values.
func Mean(values []float64) float64 { return mean(values) }

// StdDev is the population standard deviation of values.
func StdDev(values []float64) float64 { return stdDevOf(values) }

// ZScore is the standardized distance of the latest value from the mean of
// the trailing window. A zero-variance window yields 0.
func ZScore(values []float64, period int) (float64, error) {
	if len(values) < period {
		return 0, engerrInsufficient(len(values), period)
	}
	window := values[len(values)-period:]
	sd := stdDevOf(window)
	if sd == 0 {
		return 0, nil
	}
	return (values[len(values)-1] - mean(window)) / sd, nil
}

// Correlation is the Pearson correlation coefficient of two equal-length
// series. Degenerate inputs yield 0.
func Correlation(a, b []float64) float64 {
	if len(a) != len(b) || len(a) < 2 {
		return 0
	}
	ma, mb := mean(a), mean(b)
	var cov, va, vb float64
	for i := range a {
		da := a[i] - ma
		db := b[i] - mb
		cov += da * db
		va += da * da
		vb += db * db
	}
	if va == 0 || vb == 0 {
		return 0
	}
	return cov / math.Sqrt(va*vb)
}

// Beta is the regression coefficient of asset returns on market returns.
// Degenerate inputs yield 1.
func Beta(assetPrices, marketPrices []float64) float64 {
	if len(assetPrices) != len(marketPrices) || len(assetPrices) < 3 {
		return 1
	}
	ra := Returns(assetPrices)
	rm := Returns(marketPrices)
	mm := mean(rm)
	var cov, varM float64
	ma := mean(ra)
	for i := range ra {
		cov += (ra[i] - ma) * (rm[i] - mm)
		varM += (rm[i] - mm) * (rm[i] - mm)
	}
	if varM == 0 {
		return 1
	}
	return cov / varM
}

// LinearRegression fits y = alpha + beta*x by ordinary least squares.
// A zero-variance x yields beta 1, alpha 0.
func LinearRegression(x, y []float64) (alpha, beta float64) {
	if len(x) != len(y) || len(x) < 2 {
		return 0, 1
	}
	mx, my := mean(x), mean(y)
	var cov, varX float64
	for i := range x {
		dx := x[i] - mx
		cov += dx * (y[i] - my)
		varX += dx * dx
	}
	if varX == 0 {
		return 0, 1
	}
	beta = cov / varX
	alpha = my - beta*mx
	return alpha, beta
}
