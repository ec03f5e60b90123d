package expfit

import (
	"fmt"
	"strings"

	"expfit/domain/fit"

	"github.com/montanaflynn/stats"
)

// dataSpan returns max(y) - min(y).
func dataSpan(y []float64) float64 {
	lo, err := stats.Min(y)
	if err != nil {
		return 0
	}
	hi, err := stats.Max(y)
	if err != nil {
		return 0
	}
	return hi - lo
}

// acceptance applies the pass/fail thresholds to a metrics set. The reason
// lists every failed criterion.
func acceptance(m fit.Metrics, span float64, opts fit.Options) (bool, string) {
	limit := opts.RMSEFracThresh * span
	var failed []string
	if !(m.R2 >= opts.R2Thresh) {
		failed = append(failed, fmt.Sprintf("r2 %.4f below threshold %.4f", m.R2, opts.R2Thresh))
	}
	if !(m.RMSE <= limit) {
		failed = append(failed, fmt.Sprintf("rmse %.4g above limit %.4g", m.RMSE, limit))
	}
	if len(failed) == 0 {
		return true, fmt.Sprintf("r2 %.4f >= %.4f and rmse %.4g <= %.4g", m.R2, opts.R2Thresh, m.RMSE, limit)
	}
	return false, strings.Join(failed, "; ")
}

// singleSigned reports whether every y is strictly positive or every y is
// strictly negative, the only data a*exp(b*x) can reproduce.
func singleSigned(y []float64) bool {
	pos, neg := 0, 0
	for _, v := range y {
		switch {
		case v > 0:
			pos++
		case v < 0:
			neg++
		default:
			return false
		}
	}
	return pos == 0 || neg == 0
}

// offsetTrigger decides whether the offset form is fitted. It is tried when
// the basic fit is unusable, fails the acceptance policy, or y is not
// strictly single-signed. The returned string names the trigger.
func offsetTrigger(basic *fit.CandidateFit, y []float64, span float64, opts fit.Options) (bool, string) {
	if !opts.TryOffset {
		return false, "offset model disabled"
	}
	if !basic.Usable() {
		return true, "basic fit " + string(basic.Status)
	}
	if !singleSigned(y) {
		return true, "y is not strictly single-signed"
	}
	if ok, reason := acceptance(basic.Metrics, span, opts); !ok {
		return true, "basic fit rejected: " + reason
	}
	return false, "basic fit accepted"
}

// better reports whether a is a better fit than b: higher R2, then lower
// AIC, then lower BIC, then fewer parameters.
func better(a, b *fit.CandidateFit) bool {
	if a.Metrics.R2 != b.Metrics.R2 {
		return a.Metrics.R2 > b.Metrics.R2
	}
	if a.Metrics.AIC != b.Metrics.AIC {
		return a.Metrics.AIC < b.Metrics.AIC
	}
	if a.Metrics.BIC != b.Metrics.BIC {
		return a.Metrics.BIC < b.Metrics.BIC
	}
	return a.ParamCount < b.ParamCount
}

// selectBest returns the best usable candidate, or nil when none converged.
func selectBest(candidates []fit.CandidateFit) *fit.CandidateFit {
	var best *fit.CandidateFit
	for i := range candidates {
		c := &candidates[i]
		if !c.Usable() {
			continue
		}
		if best == nil || better(c, best) {
			best = c
		}
	}
	return best
}
