package optimize

import (
	"context"
	"fmt"
	"math"

	"expfit/domain/core"
	"expfit/ports"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// LevenbergMarquardt is a damped Gauss-Newton solver with Marquardt
// diagonal scaling. Damping and every stopping test are measured in the
// norms D = diag(J'J), so multiplying the residuals or rescaling a
// parameter does not change when the iteration stops.
type LevenbergMarquardt struct {
	Tau        float64 // initial damping factor
	GradTol    float64 // max_j |J_j'r| / |J_j| <= GradTol * |r|
	StepTol    float64 // |D^1/2 h| <= StepTol * |D^1/2 p|
	FuncTol    float64 // relative SSE reduction of an accepted step
	MaxDamping float64 // damping beyond this means the solver stalled
}

// NewLevenbergMarquardt returns a solver with the default tolerances.
func NewLevenbergMarquardt() *LevenbergMarquardt {
	return &LevenbergMarquardt{
		Tau:        1e-3,
		GradTol:    1e-10,
		StepTol:    1e-10,
		FuncTol:    1e-12,
		MaxDamping: 1e16,
	}
}

// Name returns the solver name
func (s *LevenbergMarquardt) Name() string {
	return SolverLevenbergMarquardt
}

// Solve runs the iteration from problem.Initial.
func (s *LevenbergMarquardt) Solve(ctx context.Context, problem ports.LeastSquaresProblem) (*ports.LeastSquaresResult, error) {
	if err := checkProblem(problem, true); err != nil {
		return nil, err
	}

	n, k := problem.Size, problem.Dim
	p := append([]float64(nil), problem.Initial...)
	r := make([]float64, n)
	jac := mat.NewDense(n, k, nil)
	jtj := mat.NewSymDense(k, nil)
	grad := mat.NewVecDense(k, nil)

	linearize := func(params []float64) (float64, error) {
		problem.Residuals(r, params)
		sse := floats.Dot(r, r)
		if !isFinite(sse) {
			return sse, fmt.Errorf("%w: non-finite residuals", core.ErrFitFailed)
		}
		problem.Jacobian(jac, params)
		if !allFinite(jac.RawMatrix().Data) {
			return sse, fmt.Errorf("%w: non-finite jacobian", core.ErrFitFailed)
		}
		jtj.SymOuterK(1, jac.T())
		grad.MulVec(jac.T(), mat.NewVecDense(n, r))
		return sse, nil
	}

	sse, err := linearize(p)
	if err != nil {
		return nil, err
	}

	var (
		mu     = s.Tau
		nu     = 2.0
		diag   = make([]float64, k)
		trial  = make([]float64, k)
		step   = mat.NewVecDense(k, nil)
		negG   = mat.NewVecDense(k, nil)
		damped = mat.NewSymDense(k, nil)
		chol   mat.Cholesky
	)

	for iter := 0; iter < problem.MaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if gradientCosine(jtj, grad) <= s.GradTol*math.Sqrt(sse) {
			return result(p, sse, iter, true, "gradient tolerance reached"), nil
		}

		damped.CopySym(jtj)
		for i := 0; i < k; i++ {
			// A vanishing column gets unit scaling.
			diag[i] = jtj.At(i, i)
			if diag[i] <= 0 {
				diag[i] = 1
			}
			damped.SetSym(i, i, jtj.At(i, i)+mu*diag[i])
		}
		negG.ScaleVec(-1, grad)

		if !chol.Factorize(damped) || chol.SolveVecTo(step, negG) != nil {
			mu *= nu
			nu *= 2
			if mu > s.MaxDamping {
				return result(p, sse, iter+1, false, "damping limit reached"), nil
			}
			continue
		}

		h := step.RawVector().Data
		if scaledNorm(diag, h) <= s.StepTol*scaledNorm(diag, p) {
			return result(p, sse, iter, true, "step tolerance reached"), nil
		}

		floats.AddTo(trial, p, h)
		problem.Residuals(r, trial)
		trialSSE := floats.Dot(r, r)

		// Reduction in SSE predicted by the linearised model.
		predicted := 0.0
		for i := 0; i < k; i++ {
			predicted += h[i] * (mu*diag[i]*h[i] - grad.AtVec(i))
		}
		rho := -1.0
		if predicted > 0 && isFinite(trialSSE) {
			rho = (sse - trialSSE) / predicted
		}

		if rho > 0 {
			reduction := (sse - trialSSE) / math.Max(sse, math.SmallestNonzeroFloat64)
			copy(p, trial)
			if sse, err = linearize(p); err != nil {
				return nil, err
			}
			mu *= math.Max(1.0/3.0, 1-math.Pow(2*rho-1, 3))
			nu = 2
			if reduction < s.FuncTol {
				return result(p, sse, iter+1, true, "relative reduction below tolerance"), nil
			}
			continue
		}

		mu *= nu
		nu *= 2
		if mu > s.MaxDamping {
			return result(p, sse, iter+1, false, "damping limit reached"), nil
		}
	}

	return result(p, sse, problem.MaxIterations, false, "iteration limit reached"), nil
}

// gradientCosine is the largest |J_j'r| / |J_j| over the non-zero Jacobian
// columns, the cosine between r and column j scaled by |r|.
func gradientCosine(jtj *mat.SymDense, grad *mat.VecDense) float64 {
	worst := 0.0
	for j := 0; j < grad.Len(); j++ {
		if d := jtj.At(j, j); d > 0 {
			worst = math.Max(worst, math.Abs(grad.AtVec(j))/math.Sqrt(d))
		}
	}
	return worst
}

// scaledNorm returns sqrt(sum d_i v_i^2).
func scaledNorm(d, v []float64) float64 {
	sum := 0.0
	for i, vi := range v {
		sum += d[i] * vi * vi
	}
	return math.Sqrt(sum)
}

func result(p []float64, sse float64, iterations int, converged bool, reason string) *ports.LeastSquaresResult {
	return &ports.LeastSquaresResult{
		Params:     append([]float64(nil), p...),
		SSE:        sse,
		Iterations: iterations,
		Converged:  converged,
		Reason:     reason,
	}
}

func checkProblem(problem ports.LeastSquaresProblem, needJacobian bool) error {
	switch {
	case problem.Size <= 0 || problem.Dim <= 0:
		return fmt.Errorf("%w: empty problem (n=%d, k=%d)", core.ErrFitFailed, problem.Size, problem.Dim)
	case len(problem.Initial) != problem.Dim:
		return fmt.Errorf("%w: initial guess has %d params, want %d", core.ErrFitFailed, len(problem.Initial), problem.Dim)
	case problem.Residuals == nil:
		return fmt.Errorf("%w: missing residual function", core.ErrFitFailed)
	case needJacobian && problem.Jacobian == nil:
		return fmt.Errorf("%w: missing jacobian", core.ErrFitFailed)
	case problem.MaxIterations <= 0:
		return fmt.Errorf("%w: iteration budget must be positive", core.ErrFitFailed)
	case !allFinite(problem.Initial):
		return fmt.Errorf("%w: non-finite initial guess", core.ErrFitFailed)
	}
	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func allFinite(vs []float64) bool {
	for _, v := range vs {
		if !isFinite(v) {
			return false
		}
	}
	return true
}
