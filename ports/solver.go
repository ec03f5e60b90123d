package ports

import (
	"context"

	"gonum.org/v1/gonum/mat"
)

// ResidualFunc writes model(x_i; params) - y_i into dst for every sample.
type ResidualFunc func(dst, params []float64)

// JacobianFunc writes d residual_i / d param_j into the n x k matrix dst.
type JacobianFunc func(dst *mat.Dense, params []float64)

// LeastSquaresProblem describes a nonlinear least-squares fit.
type LeastSquaresProblem struct {
	Size          int // number of residuals (n)
	Dim           int // number of parameters (k)
	Residuals     ResidualFunc
	Jacobian      JacobianFunc // optional for derivative-free solvers
	Initial       []float64
	MaxIterations int
}

// LeastSquaresResult is what a solver reports back. Converged is false when
// the iteration budget ran out before a stopping criterion was met.
type LeastSquaresResult struct {
	Params     []float64
	SSE        float64
	Iterations int
	Converged  bool
	Reason     string
}

// LeastSquaresSolver minimises the sum of squared residuals of a problem.
// Solve returns an error only for numerical failure (non-finite values,
// invalid problems, cancellation); non-convergence is reported in the result.
type LeastSquaresSolver interface {
	Name() string
	Solve(ctx context.Context, problem LeastSquaresProblem) (*LeastSquaresResult, error)
}
