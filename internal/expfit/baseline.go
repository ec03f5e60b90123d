package expfit

import (
	"math"

	"expfit/domain/fit"

	"gonum.org/v1/gonum/stat"
)

// linearBaseline fits y = a + b*x by ordinary least squares. It is reported
// next to the exponential candidates for comparison only.
func linearBaseline(x, y []float64) *fit.CandidateFit {
	c := &fit.CandidateFit{
		Model:      fit.ModelLinear,
		ParamCount: fit.ModelLinear.ParamCount(),
		Solver:     "ols",
	}

	alpha, beta := stat.LinearRegression(x, y, nil, false)
	if math.IsNaN(alpha) || math.IsNaN(beta) || math.IsInf(alpha, 0) || math.IsInf(beta, 0) {
		c.Status = fit.StatusFailed
		c.Failure = "x has no spread"
		return c
	}

	pred := make([]float64, len(x))
	for i, xi := range x {
		pred[i] = alpha + beta*xi
	}
	c.Params = []float64{alpha, beta}
	c.Predicted = pred
	c.Metrics = computeMetrics(y, pred, c.ParamCount)
	c.Status = fit.StatusConverged
	return c
}
