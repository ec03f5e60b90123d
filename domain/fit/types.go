package fit

import (
	"fmt"
	"math"

	"expfit/domain/core"
)

// ModelName identifies a parametric form.
type ModelName string

const (
	ModelNoOffset   ModelName = "exp_no_offset"   // a*exp(b*x)
	ModelWithOffset ModelName = "exp_with_offset" // a*exp(b*x) + c
	ModelLinear     ModelName = "linear"          // a + b*x, comparison baseline only
)

// ParamCount returns k, the number of fitted parameters of the form.
func (m ModelName) ParamCount() int {
	switch m {
	case ModelWithOffset:
		return 3
	case ModelNoOffset, ModelLinear:
		return 2
	default:
		return 0
	}
}

// FitStatus describes how the solver finished for one candidate.
type FitStatus string

const (
	StatusConverged     FitStatus = "converged"
	StatusNonConvergent FitStatus = "non_convergent"
	StatusFailed        FitStatus = "failed"
)

// Outcome is the overall verdict of an evaluation.
type Outcome string

const (
	OutcomeAccepted  Outcome = "accepted"
	OutcomeRejected  Outcome = "rejected"
	OutcomeFitFailed Outcome = "fit_failed"
)

// Metrics holds the goodness-of-fit diagnostics of a fitted curve.
// AIC and BIC are -Inf when SSE is exactly zero.
type Metrics struct {
	R2        float64   `json:"r2"`
	RMSE      float64   `json:"rmse"`
	AIC       float64   `json:"aic"`
	BIC       float64   `json:"bic"`
	SSE       float64   `json:"sse"`
	Residuals []float64 `json:"resid"`
}

// CandidateFit is the result of fitting one model form.
type CandidateFit struct {
	Model      ModelName `json:"model"`
	ParamCount int       `json:"param_count"`
	Params     []float64 `json:"params,omitempty"`
	Predicted  []float64 `json:"predicted,omitempty"`
	Metrics    Metrics   `json:"metrics"`
	Status     FitStatus `json:"status"`
	Iterations int       `json:"iterations"`
	Solver     string    `json:"solver,omitempty"`
	Failure    string    `json:"failure,omitempty"`

	// Err is the error behind Failure, kept for errors.Is checks.
	Err error `json:"-"`
}

// Usable reports whether the candidate can take part in model selection.
func (c *CandidateFit) Usable() bool {
	return c != nil && c.Status == StatusConverged
}

// Decision is the structured answer of the evaluator.
type Decision struct {
	ID         core.EvaluationID `json:"id"`
	InputHash  core.Hash         `json:"input_hash"`
	Outcome    Outcome           `json:"outcome"`
	Accepted   bool              `json:"decision"`
	Model      ModelName         `json:"model,omitempty"`
	Params     []float64         `json:"params,omitempty"`
	Metrics    Metrics           `json:"metrics"`
	Span       float64           `json:"span"`
	RMSELimit  float64           `json:"rmse_limit"`
	Reason     string            `json:"reason"`
	Candidates []CandidateFit    `json:"candidates"`
	Linear     *CandidateFit     `json:"linear_baseline,omitempty"`
}

// Options configures the acceptance policy and the solver budget.
type Options struct {
	R2Thresh       float64 `json:"r2_thresh" yaml:"r2_thresh"`
	RMSEFracThresh float64 `json:"rmse_frac_thresh" yaml:"rmse_frac_thresh"`
	TryOffset      bool    `json:"try_offset" yaml:"try_offset"`
	MaxIterations  int     `json:"max_iterations" yaml:"max_iterations"`
}

const (
	DefaultR2Thresh       = 0.95
	DefaultRMSEFracThresh = 0.1
	DefaultMaxIterations  = 200
)

// DefaultOptions returns r2_thresh=0.95, rmse_frac_thresh=0.1, try_offset=true.
func DefaultOptions() Options {
	return Options{
		R2Thresh:       DefaultR2Thresh,
		RMSEFracThresh: DefaultRMSEFracThresh,
		TryOffset:      true,
		MaxIterations:  DefaultMaxIterations,
	}
}

// Validate checks option ranges. A zero MaxIterations is allowed and means
// DefaultMaxIterations.
func (o Options) Validate() error {
	if math.IsNaN(o.R2Thresh) || math.IsInf(o.R2Thresh, 0) {
		return fmt.Errorf("%w: %v", core.ErrInvalidOptions, core.NewValidationError("r2_thresh", "must be finite"))
	}
	if math.IsNaN(o.RMSEFracThresh) || o.RMSEFracThresh < 0 {
		return fmt.Errorf("%w: %v", core.ErrInvalidOptions, core.NewValidationError("rmse_frac_thresh", "must be >= 0"))
	}
	if o.MaxIterations < 0 {
		return fmt.Errorf("%w: %v", core.ErrInvalidOptions, core.NewValidationError("max_iterations", "must be >= 0"))
	}
	return nil
}

// Iterations returns the effective solver iteration budget.
func (o Options) Iterations() int {
	if o.MaxIterations == 0 {
		return DefaultMaxIterations
	}
	return o.MaxIterations
}
