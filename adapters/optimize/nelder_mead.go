package optimize

import (
	"context"
	"fmt"
	"math"

	"expfit/domain/core"
	"expfit/ports"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
)

// NelderMead minimises the SSE with gonum's downhill simplex. It ignores
// the Jacobian and is slower than LevenbergMarquardt, but it tolerates
// problems whose Jacobian is badly conditioned.
type NelderMead struct {
	// FuncTol is the absolute and relative SSE change under which the
	// simplex is considered converged.
	FuncTol float64
	// Patience is the number of major iterations the SSE must stay within
	// FuncTol before convergence is declared.
	Patience int
}

// NewNelderMead returns a simplex solver with default tolerances.
func NewNelderMead() *NelderMead {
	return &NelderMead{FuncTol: 1e-12, Patience: 50}
}

// Name returns the solver name
func (s *NelderMead) Name() string {
	return SolverNelderMead
}

// Solve minimises the SSE. The function evaluation budget is
// MaxIterations * (Dim + 1).
func (s *NelderMead) Solve(ctx context.Context, problem ports.LeastSquaresProblem) (*ports.LeastSquaresResult, error) {
	if err := checkProblem(problem, false); err != nil {
		return nil, err
	}

	r := make([]float64, problem.Size)
	objective := optimize.Problem{
		Func: func(x []float64) float64 {
			problem.Residuals(r, x)
			sse := floats.Dot(r, r)
			if math.IsNaN(sse) {
				return math.Inf(1)
			}
			return sse
		},
		Status: func() (optimize.Status, error) {
			if err := ctx.Err(); err != nil {
				return optimize.Failure, err
			}
			return optimize.NotTerminated, nil
		},
	}

	settings := &optimize.Settings{
		FuncEvaluations: problem.MaxIterations * (problem.Dim + 1),
		Converger: &optimize.FunctionConverge{
			Absolute:   s.FuncTol,
			Relative:   s.FuncTol,
			Iterations: s.Patience,
		},
	}

	res, err := optimize.Minimize(objective, problem.Initial, settings, &optimize.NelderMead{})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if res == nil {
		return nil, fmt.Errorf("%w: nelder-mead: %v", core.ErrFitFailed, err)
	}
	if res.Status == optimize.Failure {
		return nil, fmt.Errorf("%w: nelder-mead: %v", core.ErrFitFailed, err)
	}
	if !allFinite(res.X) || !isFinite(res.F) {
		return nil, fmt.Errorf("%w: nelder-mead produced non-finite parameters", core.ErrFitFailed)
	}

	converged := !res.Status.Early()
	return result(res.X, res.F, res.Stats.MajorIterations, converged, res.Status.String()), nil
}
