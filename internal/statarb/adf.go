package statarb

import (
	"math"

	"github.com/tuanphm93/coinfactor/internal/engerr"
)

// Dickey-Fuller critical values for the constant-only regression, asymptotic
// case (MacKinnon 1994). Interpolated linearly to approximate a p-value.
var adfCriticalValues = []struct {
	stat float64
	p    float64
}{
	{-3.96, 0.001},
	{-3.43, 0.01},
	{-2.86, 0.05},
	{-2.57, 0.10},
	{-1.94, 0.30},
	{-1.62, 0.45},
	{-0.92, 0.70},
	{0.00, 0.95},
}

// ADFResult reports the unit-root test on a spread series.
type ADFResult struct {
	Statistic float64 `json:"statistic"`
	PValue    float64 `json:"p_value"`
}

// Stationary reports whether the series rejects a unit root at the given
// significance level.
func (r ADFResult) Stationary(alpha float64) bool { return r.PValue < alpha }

// ADFTest runs an augmented Dickey-Fuller test with a constant and no lagged
// difference terms: delta_t regressed on spread_{t-1}. The p-value is
// interpolated from tabulated critical values, which is plenty for a
// pair-admission gate.
func ADFTest(series []float64) (ADFResult, error) {
	n := len(series)
	if n < 20 {
		return ADFResult{}, engerr.InsufficientData("statarb", "", n, 20)
	}

	// Regress delta[i] = a + g*series[i-1] + e.
	m := n - 1
	var sumX, sumY, sumXX, sumXY float64
	for i := 1; i < n; i++ {
		x := series[i-1]
		y := series[i] - series[i-1]
		sumX += x
		sumY += y
		sumXX += x * x
		sumXY += x * y
	}
	fm := float64(m)
	den := fm*sumXX - sumX*sumX
	if den == 0 {
		return ADFResult{}, engerr.New(engerr.CategoryCointegration, "statarb",
			"degenerate spread series")
	}
	gamma := (fm*sumXY - sumX*sumY) / den
	alpha := (sumY - gamma*sumX) / fm

	// Residual variance and the standard error of gamma.
	var sse float64
	for i := 1; i < n; i++ {
		x := series[i-1]
		resid := (series[i] - series[i-1]) - alpha - gamma*x
		sse += resid * resid
	}
	dof := fm - 2
	if dof <= 0 {
		return ADFResult{}, engerr.InsufficientData("statarb", "", n, 20)
	}
	s2 := sse / dof
	seGamma := math.Sqrt(s2 * fm / den)
	if seGamma == 0 {
		return ADFResult{}, engerr.New(engerr.CategoryCointegration, "statarb",
			"zero standard error in unit-root regression")
	}

	stat := gamma / seGamma
	return ADFResult{Statistic: stat, PValue: interpolatePValue(stat)}, nil
}

func interpolatePValue(stat float64) float64 {
	cv := adfCriticalValues
	if stat <= cv[0].stat {
		return cv[0].p
	}
	if stat >= cv[len(cv)-1].stat {
		return cv[len(cv)-1].p
	}
	for i := 1; i < len(cv); i++ {
		if stat <= cv[i].stat {
			frac := (stat - cv[i-1].stat) / (cv[i].stat - cv[i-1].stat)
			return cv[i-1].p + frac*(cv[i].p-cv[i-1].p)
		}
	}
	return cv[len(cv)-1].p
}
