// Package expfit decides whether paired samples follow an exponential law.
//
// Two forms are considered: a*exp(b*x) and a*exp(b*x)+c. Each is fitted by
// nonlinear least squares, scored by R2, RMSE, AIC and BIC, and the better
// fit is accepted when R2 >= r2_thresh and RMSE <= rmse_frac_thresh times
// the span of y.
package expfit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"expfit/adapters/optimize"
	"expfit/domain/core"
	"expfit/domain/fit"
	"expfit/internal"
	apperrors "expfit/internal/errors"
	"expfit/ports"
)

var errNonFinitePrediction = errors.New("non-finite prediction")

// Evaluator runs the fit-and-decide procedure with a pluggable solver.
// It holds no mutable state and is safe for concurrent use.
type Evaluator struct {
	solver ports.LeastSquaresSolver
	logger *internal.Logger
}

// NewEvaluator creates an evaluator. A nil solver selects
// Levenberg-Marquardt and a nil logger the process default.
func NewEvaluator(solver ports.LeastSquaresSolver, logger *internal.Logger) *Evaluator {
	if solver == nil {
		solver = optimize.NewLevenbergMarquardt()
	}
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Evaluator{solver: solver, logger: logger.With("expfit")}
}

var defaultEvaluator = NewEvaluator(nil, nil)

// EvaluateExponentialFit evaluates x and y with the default evaluator.
func EvaluateExponentialFit(x, y []float64, opts fit.Options) (*fit.Decision, error) {
	return defaultEvaluator.Evaluate(context.Background(), x, y, opts)
}

// Evaluate fits the candidate forms and applies the acceptance policy.
//
// Malformed input returns a VALIDATION_ERROR. Solver failures never surface
// as errors: they are recorded on the candidates, and when no candidate
// converges the decision outcome is fit_failed. Only context cancellation
// aborts an evaluation that passed validation.
func (e *Evaluator) Evaluate(ctx context.Context, x, y []float64, opts fit.Options) (*fit.Decision, error) {
	if err := validate(x, y, opts); err != nil {
		return nil, err
	}

	id := core.NewEvaluationID()
	hash := core.SampleHash(x, y)
	logger := e.logger.With(id.String())
	logger.Debug("evaluating %d samples (input %s)", len(x), hash.Short())

	span := dataSpan(y)
	iterations := opts.Iterations()

	basic, err := e.fitCandidate(ctx, logger, noOffset, x, y, iterations)
	if err != nil {
		return nil, err
	}
	candidates := []fit.CandidateFit{basic}

	if try, why := offsetTrigger(&basic, y, span, opts); try {
		logger.Debug("fitting %s: %s", withOffset.name, why)
		offset, err := e.fitCandidate(ctx, logger, withOffset, x, y, iterations)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, offset)
	} else {
		logger.Trace("skipping %s: %s", withOffset.name, why)
	}

	decision := &fit.Decision{
		ID:         id,
		InputHash:  hash,
		Span:       span,
		RMSELimit:  opts.RMSEFracThresh * span,
		Candidates: candidates,
		Linear:     linearBaseline(x, y),
	}

	best := selectBest(candidates)
	if best == nil {
		decision.Outcome = fit.OutcomeFitFailed
		decision.Reason = failureSummary(candidates)
		logger.Debug("no usable fit: %s", decision.Reason)
		return decision, nil
	}

	decision.Model = best.Model
	decision.Params = append([]float64(nil), best.Params...)
	decision.Metrics = best.Metrics
	decision.Accepted, decision.Reason = acceptance(best.Metrics, span, opts)
	decision.Outcome = fit.OutcomeRejected
	if decision.Accepted {
		decision.Outcome = fit.OutcomeAccepted
	}

	logger.Debug("%s with %s params=%v r2=%.6f rmse=%.6g: %s",
		decision.Outcome, decision.Model, decision.Params, best.Metrics.R2, best.Metrics.RMSE, decision.Reason)
	return decision, nil
}

// fitCandidate seeds and solves one form. The returned error is non-nil only
// when ctx was cancelled.
func (e *Evaluator) fitCandidate(ctx context.Context, logger *internal.Logger, f form, x, y []float64, iterations int) (fit.CandidateFit, error) {
	c := fit.CandidateFit{
		Model:      f.name,
		ParamCount: f.k(),
		Solver:     e.solver.Name(),
	}
	fail := func(status fit.FitStatus, err error) (fit.CandidateFit, error) {
		c.Status = status
		c.Err = err
		c.Failure = err.Error()
		logger.Debug("%s", c.Failure)
		return c, nil
	}

	seed, err := seedParams(f, x, y)
	if err != nil {
		return fail(fit.StatusFailed, apperrors.FitFailed(string(f.name), core.NewFitError(err)))
	}
	logger.Trace("%s seed %v", f.name, seed)

	res, err := e.solver.Solve(ctx, f.problem(x, y, seed, iterations))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return c, apperrors.Wrapf(ctxErr, "evaluation of %s interrupted", f.name)
		}
		return fail(fit.StatusFailed, apperrors.FitFailed(string(f.name), core.NewFitError(err)))
	}

	c.Params = res.Params
	c.Iterations = res.Iterations
	c.Predicted = f.predict(x, res.Params)
	for _, v := range c.Predicted {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			c.Predicted = nil
			return fail(fit.StatusFailed, apperrors.FitFailed(string(f.name), core.NewFitError(errNonFinitePrediction)))
		}
	}
	c.Metrics = computeMetrics(y, c.Predicted, c.ParamCount)

	if !res.Converged {
		return fail(fit.StatusNonConvergent, apperrors.NonConvergence(string(f.name), res.Iterations,
			fmt.Errorf("%w: %s", core.ErrNonConvergence, res.Reason)))
	}

	c.Status = fit.StatusConverged
	logger.Trace("%s converged in %d iterations (%s)", f.name, res.Iterations, res.Reason)
	return c, nil
}

func validate(x, y []float64, opts fit.Options) error {
	if len(x) != len(y) {
		return apperrors.ValidationError(core.ErrShapeMismatch,
			fmt.Sprintf("x has %d points, y has %d", len(x), len(y)))
	}
	if len(x) < core.MinSamples {
		return apperrors.ValidationError(core.ErrInsufficientData,
			fmt.Sprintf("need at least %d points, got %d", core.MinSamples, len(x)))
	}
	for i := range x {
		if math.IsNaN(x[i]) || math.IsInf(x[i], 0) || math.IsNaN(y[i]) || math.IsInf(y[i], 0) {
			return apperrors.ValidationError(core.ErrNonFinite,
				fmt.Sprintf("sample %d is (%v, %v)", i, x[i], y[i]))
		}
	}
	if err := opts.Validate(); err != nil {
		return apperrors.ValidationError(err, "invalid options")
	}
	return nil
}

func failureSummary(candidates []fit.CandidateFit) string {
	parts := make([]string, 0, len(candidates))
	for _, c := range candidates {
		parts = append(parts, fmt.Sprintf("%s: %s", c.Model, c.Failure))
	}
	return "fit failed (" + strings.Join(parts, "; ") + ")"
}
