package expfit

import (
	"math"

	"expfit/domain/fit"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/floats"
)

// computeMetrics scores predictions of a k-parameter model against y.
//
// R2 is 0 for constant y. AIC and BIC use the Gaussian log-likelihood with
// unknown variance, n*ln(SSE/n), and are -Inf for a perfect fit.
func computeMetrics(y, pred []float64, k int) fit.Metrics {
	n := float64(len(y))
	resid := make([]float64, len(y))
	floats.SubTo(resid, y, pred)
	sse := floats.Dot(resid, resid)

	r2 := 0.0
	if sst := totalSumOfSquares(y); sst > 0 {
		r2 = 1 - sse/sst
	}

	logLik := n * math.Log(sse/n)
	return fit.Metrics{
		R2:        r2,
		RMSE:      math.Sqrt(sse / n),
		AIC:       logLik + 2*float64(k),
		BIC:       logLik + float64(k)*math.Log(n),
		SSE:       sse,
		Residuals: resid,
	}
}

// totalSumOfSquares returns SST around mean(y), exactly 0 for constant y.
func totalSumOfSquares(y []float64) float64 {
	if floats.Max(y) == floats.Min(y) {
		return 0
	}
	mean, err := stats.Mean(y)
	if err != nil {
		return 0
	}
	sst := 0.0
	for _, v := range y {
		d := v - mean
		sst += d * d
	}
	return sst
}
