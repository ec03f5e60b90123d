package expfit

import (
	"bytes"
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"expfit/adapters/optimize"
	"expfit/domain/core"
	"expfit/domain/fit"
	"expfit/internal"
	apperrors "expfit/internal/errors"
	"expfit/internal/testkit"
	"expfit/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockSolver lets tests script solver outcomes per model dimension.
type MockSolver struct {
	mock.Mock
}

func (m *MockSolver) Name() string {
	return "mock"
}

func (m *MockSolver) Solve(ctx context.Context, problem ports.LeastSquaresProblem) (*ports.LeastSquaresResult, error) {
	args := m.Called(ctx, problem)
	res, _ := args.Get(0).(*ports.LeastSquaresResult)
	return res, args.Error(1)
}

func withDim(k int) interface{} {
	return mock.MatchedBy(func(p ports.LeastSquaresProblem) bool { return p.Dim == k })
}

func quietEvaluator(solver ports.LeastSquaresSolver) *Evaluator {
	return NewEvaluator(solver, internal.NewLoggerTo(&bytes.Buffer{}, internal.LogLevelError))
}

func samples(t *testing.T, cfg testkit.SampleGeneratorConfig) ([]float64, []float64) {
	t.Helper()
	x, y, err := testkit.NewSampleGenerator(cfg).Generate()
	require.NoError(t, err)
	return x, y
}

func TestEvaluate_ExactExponentialIsAccepted(t *testing.T) {
	x, y := samples(t, testkit.DefaultSampleConfig())

	decision, err := EvaluateExponentialFit(x, y, fit.DefaultOptions())
	require.NoError(t, err)

	assert.True(t, decision.Accepted)
	assert.Equal(t, fit.OutcomeAccepted, decision.Outcome)
	assert.Equal(t, fit.ModelNoOffset, decision.Model)
	require.Len(t, decision.Params, 2)
	assert.InDelta(t, 2.0, decision.Params[0], 1e-6)
	assert.InDelta(t, 0.5, decision.Params[1], 1e-6)
	assert.InDelta(t, 1.0, decision.Metrics.R2, 1e-9)
	assert.Len(t, decision.Metrics.Residuals, len(y))

	// Positive data that passes on the basic model never needs the offset form.
	assert.Len(t, decision.Candidates, 1)
	require.NotNil(t, decision.Linear)
	assert.Less(t, decision.Linear.Metrics.R2, decision.Metrics.R2)

	assert.False(t, core.ID(decision.ID).IsEmpty())
	assert.Equal(t, core.SampleHash(x, y), decision.InputHash)
}

func TestEvaluate_LinearDataIsRejected(t *testing.T) {
	x, y := samples(t, testkit.SampleGeneratorConfig{Shape: testkit.ShapeLinear, A: 0, B: 1, XMin: 0, XMax: 9, Points: 10})

	decision, err := quietEvaluator(nil).Evaluate(context.Background(), x, y, fit.DefaultOptions())
	require.NoError(t, err)

	assert.False(t, decision.Accepted)
	assert.Equal(t, fit.OutcomeRejected, decision.Outcome)
	assert.Equal(t, fit.ModelNoOffset, decision.Model)
	assert.Less(t, decision.Metrics.R2, 0.95)
	assert.Contains(t, decision.Reason, "r2")

	// y starts at zero, so the offset form was tried; it chases a straight
	// line towards b -> 0 and never settles.
	require.Len(t, decision.Candidates, 2)
	assert.Equal(t, fit.StatusNonConvergent, decision.Candidates[1].Status)
	assert.Contains(t, decision.Candidates[1].Failure, "did not converge")

	// The line itself fits perfectly.
	assert.InDelta(t, 1.0, decision.Linear.Metrics.R2, 1e-12)
}

func TestEvaluate_ConstantYHasZeroR2(t *testing.T) {
	x, y := samples(t, testkit.SampleGeneratorConfig{Shape: testkit.ShapeConstant, C: 3, XMin: 0, XMax: 9, Points: 10})

	decision, err := quietEvaluator(nil).Evaluate(context.Background(), x, y, fit.DefaultOptions())
	require.NoError(t, err)

	assert.False(t, decision.Accepted)
	assert.Equal(t, 0.0, decision.Metrics.R2)
	assert.Equal(t, 0.0, decision.Span)
	for _, c := range decision.Candidates {
		if c.Usable() {
			assert.Equal(t, 0.0, c.Metrics.R2, "candidate %s", c.Model)
		}
	}
}

func TestEvaluate_OffsetDataNeedsOffsetModel(t *testing.T) {
	// exp(x)+10 on [-3, 2]: the offset dominates, so a*exp(b*x) misses. On
	// a range where exp(x) dwarfs the offset, such as 0..9, the basic model
	// alone already passes and the offset form is never needed.
	x, y := samples(t, testkit.SampleGeneratorConfig{Shape: testkit.ShapeOffset, A: 1, B: 1, C: 10, XMin: -3, XMax: 2, Points: 11})
	evaluator := quietEvaluator(nil)

	opts := fit.DefaultOptions()
	opts.TryOffset = false
	without, err := evaluator.Evaluate(context.Background(), x, y, opts)
	require.NoError(t, err)
	assert.False(t, without.Accepted)
	assert.Equal(t, fit.ModelNoOffset, without.Model)
	assert.Len(t, without.Candidates, 1)

	opts.TryOffset = true
	with, err := evaluator.Evaluate(context.Background(), x, y, opts)
	require.NoError(t, err)
	assert.True(t, with.Accepted)
	assert.Equal(t, fit.ModelWithOffset, with.Model)
	require.Len(t, with.Params, 3)
	assert.InDelta(t, 1.0, with.Params[0], 1e-6)
	assert.InDelta(t, 1.0, with.Params[1], 1e-6)
	assert.InDelta(t, 10.0, with.Params[2], 1e-6)
}

func TestEvaluate_MixedSignTriggersOffset(t *testing.T) {
	// 2*exp(0.8x) - 5 crosses zero; the basic fit alone would pass.
	x, y := samples(t, testkit.SampleGeneratorConfig{Shape: testkit.ShapeOffset, A: 2, B: 0.8, C: -5, XMin: 0, XMax: 3.75, Points: 16})

	decision, err := quietEvaluator(nil).Evaluate(context.Background(), x, y, fit.DefaultOptions())
	require.NoError(t, err)

	require.Len(t, decision.Candidates, 2)
	assert.Equal(t, fit.ModelWithOffset, decision.Model)
	assert.True(t, decision.Accepted)
	assert.InDelta(t, -5.0, decision.Params[2], 1e-6)
}

func TestEvaluate_RejectsShortInput(t *testing.T) {
	x := []float64{0, 1, 2, 3}
	y := []float64{1, 2, 4, 8}

	for _, opts := range []fit.Options{
		fit.DefaultOptions(),
		{R2Thresh: 0, RMSEFracThresh: 100, TryOffset: false},
	} {
		_, err := EvaluateExponentialFit(x, y, opts)
		require.Error(t, err)
		assert.ErrorIs(t, err, core.ErrInsufficientData)
		assert.True(t, apperrors.HasCode(err, apperrors.CodeValidationError))
		assert.True(t, core.IsValidationError(err))
	}
}

func TestEvaluate_ValidationErrors(t *testing.T) {
	good := []float64{0, 1, 2, 3, 4}
	tests := []struct {
		name string
		x, y []float64
		opts fit.Options
		want error
	}{
		{"length mismatch", good, []float64{1, 2, 3, 4, 5, 6}, fit.DefaultOptions(), core.ErrShapeMismatch},
		{"empty", nil, nil, fit.DefaultOptions(), core.ErrInsufficientData},
		{"nan in y", good, []float64{1, math.NaN(), 3, 4, 5}, fit.DefaultOptions(), core.ErrNonFinite},
		{"inf in x", []float64{0, 1, math.Inf(1), 3, 4}, good, fit.DefaultOptions(), core.ErrNonFinite},
		{"negative rmse fraction", good, good, fit.Options{R2Thresh: 0.9, RMSEFracThresh: -1}, core.ErrInvalidOptions},
		{"negative iterations", good, good, fit.Options{R2Thresh: 0.9, RMSEFracThresh: 0.1, MaxIterations: -5}, core.ErrInvalidOptions},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision, err := quietEvaluator(nil).Evaluate(context.Background(), tt.x, tt.y, tt.opts)
			assert.Nil(t, decision)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, apperrors.CodeValidationError, apperrors.GetCode(err))
		})
	}
}

func TestEvaluate_RMSEScalesWithY(t *testing.T) {
	x := testkit.Linspace(0, 9.5, 20)
	series := map[string]func(float64) float64{
		"sine ripple":   func(x float64) float64 { return 3*math.Exp(0.3*x) + 0.4*math.Sin(7*x) },
		"cosine ripple": func(x float64) float64 { return 1.7*math.Exp(0.37*x) + 0.3*math.Cos(5*x) },
	}
	evaluator := quietEvaluator(nil)

	for name, shape := range series {
		t.Run(name, func(t *testing.T) {
			y := make([]float64, len(x))
			for i, xi := range x {
				y[i] = shape(xi)
			}

			base, err := evaluator.Evaluate(context.Background(), x, y, fit.DefaultOptions())
			require.NoError(t, err)
			require.Equal(t, fit.ModelNoOffset, base.Model)
			assert.Greater(t, base.Metrics.RMSE, 0.0)

			// Small magnitudes must be solved as far as large ones, not
			// stopped at the initial guess.
			for _, c := range []float64{3, -2, 0.001, 1000, 1e-6, 1e-8, 1e-12, 1e8} {
				scaled, err := evaluator.Evaluate(context.Background(), x, testkit.Scale(y, c), fit.DefaultOptions())
				require.NoError(t, err)
				assert.InEpsilon(t, math.Abs(c)*base.Metrics.RMSE, scaled.Metrics.RMSE, 1e-6, "scale %v", c)
				assert.InDelta(t, base.Params[1], scaled.Params[1], 1e-6, "scale %v", c)
				assert.Greater(t, scaled.Candidates[0].Iterations, 0, "scale %v", c)
				assert.Equal(t, base.Accepted, scaled.Accepted, "scale %v", c)
			}
		})
	}
}

func TestEvaluate_ExtremeScaleIsFitFailure(t *testing.T) {
	x := []float64{1e6, 1e6 + 1, 1e6 + 2, 1e6 + 3, 1e6 + 4, 1e6 + 5}
	y := []float64{1, 2, 4, 8, 16, 32}

	decision, err := quietEvaluator(nil).Evaluate(context.Background(), x, y, fit.DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, fit.OutcomeFitFailed, decision.Outcome)
	assert.False(t, decision.Accepted)
	assert.Empty(t, decision.Model)
	require.Len(t, decision.Candidates, 2)
	for _, c := range decision.Candidates {
		assert.Equal(t, fit.StatusFailed, c.Status)
		assert.Contains(t, c.Failure, "no usable initial guess")
	}
	assert.Contains(t, decision.Reason, "fit failed")
}

func TestEvaluate_FallsBackToOffsetWhenBasicFails(t *testing.T) {
	x, y := samples(t, testkit.SampleGeneratorConfig{Shape: testkit.ShapeOffset, A: 1, B: 1, C: 10, XMin: -3, XMax: 2, Points: 11})

	solver := new(MockSolver)
	solver.On("Solve", mock.Anything, withDim(2)).Return(nil, core.ErrFitFailed)
	solver.On("Solve", mock.Anything, withDim(3)).Return(&ports.LeastSquaresResult{
		Params: []float64{1, 1, 10}, Iterations: 3, Converged: true, Reason: "scripted",
	}, nil)

	decision, err := quietEvaluator(solver).Evaluate(context.Background(), x, y, fit.DefaultOptions())
	require.NoError(t, err)
	solver.AssertExpectations(t)

	require.Len(t, decision.Candidates, 2)
	assert.Equal(t, fit.StatusFailed, decision.Candidates[0].Status)
	assert.Contains(t, decision.Candidates[0].Failure, "fitting exp_no_offset failed")
	assert.True(t, core.IsFitError(decision.Candidates[0].Err))
	assert.True(t, apperrors.HasCode(decision.Candidates[0].Err, apperrors.CodeFitFailed))
	assert.Equal(t, fit.ModelWithOffset, decision.Model)
	assert.Equal(t, "mock", decision.Candidates[1].Solver)
	assert.True(t, decision.Accepted)
}

func TestEvaluate_NonConvergenceIsReported(t *testing.T) {
	x, y := samples(t, testkit.DefaultSampleConfig())

	solver := new(MockSolver)
	solver.On("Solve", mock.Anything, withDim(2)).Return(&ports.LeastSquaresResult{
		Params: []float64{2, 0.5}, Iterations: 7, Converged: false, Reason: "iteration limit reached",
	}, nil)
	solver.On("Solve", mock.Anything, withDim(3)).Return(&ports.LeastSquaresResult{
		Params: []float64{2, 0.5, 0}, Iterations: 7, Converged: false, Reason: "iteration limit reached",
	}, nil)

	decision, err := quietEvaluator(solver).Evaluate(context.Background(), x, y, fit.DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, fit.OutcomeFitFailed, decision.Outcome)
	assert.False(t, decision.Accepted)
	require.Len(t, decision.Candidates, 2)
	for _, c := range decision.Candidates {
		assert.Equal(t, fit.StatusNonConvergent, c.Status)
		assert.Equal(t, 7, c.Iterations)
		assert.ErrorIs(t, c.Err, core.ErrNonConvergence)
		assert.True(t, core.IsFitError(c.Err))
		assert.Equal(t, apperrors.CodeNonConvergence, apperrors.GetCode(c.Err))
		// Diagnostics are kept even though the fit is not used.
		assert.InDelta(t, 1.0, c.Metrics.R2, 1e-9)
	}
}

func TestEvaluate_ForeignSolverErrorIsFitFailure(t *testing.T) {
	x, y := samples(t, testkit.DefaultSampleConfig())

	solver := new(MockSolver)
	solver.On("Solve", mock.Anything, mock.Anything).Return(nil, errors.New("matrix exploded"))

	decision, err := quietEvaluator(solver).Evaluate(context.Background(), x, y, fit.DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, fit.OutcomeFitFailed, decision.Outcome)
	require.Len(t, decision.Candidates, 2)
	for _, c := range decision.Candidates {
		assert.Equal(t, fit.StatusFailed, c.Status)
		assert.True(t, core.IsFitError(c.Err), "candidate %s", c.Model)
		assert.Equal(t, apperrors.CodeFitFailed, apperrors.GetCode(c.Err))
		assert.Contains(t, c.Failure, "fit failed: matrix exploded")
	}
}

func TestEvaluate_LogLinesCarryEvaluationID(t *testing.T) {
	x, y := samples(t, testkit.SampleGeneratorConfig{Shape: testkit.ShapeOffset, A: 1, B: 1, C: 10, XMin: -3, XMax: 2, Points: 11})

	var buf bytes.Buffer
	evaluator := NewEvaluator(nil, internal.NewLoggerTo(&buf, internal.LogLevelTrace))
	decision, err := evaluator.Evaluate(context.Background(), x, y, fit.DefaultOptions())
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	// start, both seeds, both solves, the offset trigger and the verdict
	require.GreaterOrEqual(t, len(lines), 6)
	for _, line := range lines {
		assert.Contains(t, line, "expfit."+decision.ID.String()+":", line)
	}
}

func TestEvaluate_NoFallbackWhenOffsetDisabled(t *testing.T) {
	x, y := samples(t, testkit.DefaultSampleConfig())

	solver := new(MockSolver)
	solver.On("Solve", mock.Anything, withDim(2)).Return(nil, core.ErrFitFailed)

	opts := fit.DefaultOptions()
	opts.TryOffset = false
	decision, err := quietEvaluator(solver).Evaluate(context.Background(), x, y, opts)
	require.NoError(t, err)

	assert.Equal(t, fit.OutcomeFitFailed, decision.Outcome)
	assert.Len(t, decision.Candidates, 1)
	solver.AssertNumberOfCalls(t, "Solve", 1)
}

func TestEvaluate_HonoursCancellation(t *testing.T) {
	x, y := samples(t, testkit.DefaultSampleConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := quietEvaluator(optimize.NewLevenbergMarquardt()).Evaluate(ctx, x, y, fit.DefaultOptions())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEvaluate_PassesIterationBudgetToSolver(t *testing.T) {
	x, y := samples(t, testkit.DefaultSampleConfig())

	solver := new(MockSolver)
	solver.On("Solve", mock.Anything, mock.MatchedBy(func(p ports.LeastSquaresProblem) bool {
		return p.MaxIterations == 17 && p.Size == len(x)
	})).Return(&ports.LeastSquaresResult{Params: []float64{2, 0.5}, Converged: true}, nil)

	opts := fit.DefaultOptions()
	opts.MaxIterations = 17
	decision, err := quietEvaluator(solver).Evaluate(context.Background(), x, y, opts)
	require.NoError(t, err)
	assert.True(t, decision.Accepted)
	solver.AssertExpectations(t)
}

func TestEvaluate_NelderMeadSolver(t *testing.T) {
	x, y := samples(t, testkit.DefaultSampleConfig())
	solver, err := optimize.NewSolver(optimize.SolverNelderMead)
	require.NoError(t, err)

	decision, err := quietEvaluator(solver).Evaluate(context.Background(), x, y, fit.DefaultOptions())
	require.NoError(t, err)

	assert.True(t, decision.Accepted)
	assert.Equal(t, optimize.SolverNelderMead, decision.Candidates[0].Solver)
	assert.InDelta(t, 2.0, decision.Params[0], 1e-3)
	assert.InDelta(t, 0.5, decision.Params[1], 1e-3)
}
