package expfit

import (
	"fmt"
	"math"

	"expfit/domain/core"
	"expfit/domain/fit"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Rate grid used to seed the solver: b = i * seedRateStep / span(x) for
// i in [-seedRateSteps, seedRateSteps], i != 0. The extremes let exp(b*x)
// change by a factor of e^20 across the sample.
const (
	seedRateSteps = 40
	seedRateStep  = 0.5
)

// seedParams returns an initial guess for f. For a fixed rate b both forms
// are linear in the remaining parameters, so every grid rate is scored by
// its linear least-squares optimum and the best rate wins.
func seedParams(f form, x, y []float64) ([]float64, error) {
	xSpan := floats.Max(x) - floats.Min(x)
	if xSpan == 0 {
		xSpan = 1
	}

	var (
		best    []float64
		bestSSE = math.Inf(1)
		e       = make([]float64, len(x))
	)
	for i := -seedRateSteps; i <= seedRateSteps; i++ {
		if i == 0 {
			continue
		}
		b := float64(i) * seedRateStep / xSpan
		if !expColumn(e, x, b) {
			continue
		}

		var p []float64
		switch f.name {
		case fit.ModelNoOffset:
			p = scaleOnly(e, y, b)
		case fit.ModelWithOffset:
			p = scaleAndOffset(e, y, b)
		default:
			return nil, fmt.Errorf("%w: no seed for model %s", core.ErrBadSeed, f.name)
		}
		if p == nil {
			continue
		}

		sse := 0.0
		for j, xj := range x {
			d := f.eval(xj, p) - y[j]
			sse += d * d
		}
		if sse < bestSSE {
			best, bestSSE = p, sse
		}
	}

	if best == nil {
		return nil, core.ErrBadSeed
	}
	return best, nil
}

// expColumn fills e with exp(b*x) and reports whether every entry is finite.
func expColumn(e, x []float64, b float64) bool {
	for i, xi := range x {
		e[i] = math.Exp(b * xi)
		if math.IsInf(e[i], 0) || math.IsNaN(e[i]) {
			return false
		}
	}
	return true
}

// scaleOnly solves min_a |a*e - y|^2.
func scaleOnly(e, y []float64, b float64) []float64 {
	den := floats.Dot(e, e)
	if den == 0 || math.IsInf(den, 0) {
		return nil
	}
	return []float64{floats.Dot(e, y) / den, b}
}

// scaleAndOffset solves min_{a,c} |a*e + c - y|^2 by QR.
func scaleAndOffset(e, y []float64, b float64) []float64 {
	if floats.Max(e) == floats.Min(e) {
		return nil
	}
	n := len(e)
	design := mat.NewDense(n, 2, nil)
	for i, ei := range e {
		design.Set(i, 0, ei)
		design.Set(i, 1, 1)
	}

	var qr mat.QR
	qr.Factorize(design)
	coef := mat.NewVecDense(2, nil)
	if err := qr.SolveVecTo(coef, false, mat.NewVecDense(n, y)); err != nil {
		return nil
	}
	a, c := coef.AtVec(0), coef.AtVec(1)
	if math.IsNaN(a) || math.IsNaN(c) || math.IsInf(a, 0) || math.IsInf(c, 0) {
		return nil
	}
	return []float64{a, b, c}
}
