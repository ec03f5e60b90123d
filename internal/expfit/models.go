package expfit

import (
	"math"

	"expfit/domain/fit"
	"expfit/ports"

	"gonum.org/v1/gonum/mat"
)

// form binds a model name to its prediction and partial derivatives.
type form struct {
	name fit.ModelName
	// eval returns the model value at x.
	eval func(x float64, p []float64) float64
	// grad writes d model / d p_j at x into dst.
	grad func(dst []float64, x float64, p []float64)
}

var noOffset = form{
	name: fit.ModelNoOffset,
	eval: func(x float64, p []float64) float64 {
		return p[0] * math.Exp(p[1]*x)
	},
	grad: func(dst []float64, x float64, p []float64) {
		e := math.Exp(p[1] * x)
		dst[0] = e
		dst[1] = p[0] * x * e
	},
}

var withOffset = form{
	name: fit.ModelWithOffset,
	eval: func(x float64, p []float64) float64 {
		return p[0]*math.Exp(p[1]*x) + p[2]
	},
	grad: func(dst []float64, x float64, p []float64) {
		e := math.Exp(p[1] * x)
		dst[0] = e
		dst[1] = p[0] * x * e
		dst[2] = 1
	},
}

func (f form) k() int {
	return f.name.ParamCount()
}

func (f form) predict(x, p []float64) []float64 {
	out := make([]float64, len(x))
	for i, xi := range x {
		out[i] = f.eval(xi, p)
	}
	return out
}

// problem turns the form and the samples into a least-squares problem
// with residual model(x_i) - y_i.
func (f form) problem(x, y, initial []float64, maxIter int) ports.LeastSquaresProblem {
	k := f.k()
	return ports.LeastSquaresProblem{
		Size: len(x),
		Dim:  k,
		Residuals: func(dst, p []float64) {
			for i, xi := range x {
				dst[i] = f.eval(xi, p) - y[i]
			}
		},
		Jacobian: func(dst *mat.Dense, p []float64) {
			row := make([]float64, k)
			for i, xi := range x {
				f.grad(row, xi, p)
				dst.SetRow(i, row)
			}
		},
		Initial:       initial,
		MaxIterations: maxIter,
	}
}
