package optimize

import (
	"fmt"
	"strings"

	"expfit/domain/core"
	"expfit/ports"
)

// Solver names accepted by NewSolver
const (
	SolverLevenbergMarquardt = "levenberg-marquardt"
	SolverNelderMead         = "nelder-mead"
)

// NewSolver builds a solver by name. "lm" is accepted for levenberg-marquardt
// and the empty name selects it as the default.
func NewSolver(name string) (ports.LeastSquaresSolver, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "lm", SolverLevenbergMarquardt:
		return NewLevenbergMarquardt(), nil
	case "nm", SolverNelderMead:
		return NewNelderMead(), nil
	default:
		return nil, fmt.Errorf("%w: %q (available: %s)", core.ErrUnknownSolver, name, strings.Join(SolverNames(), ", "))
	}
}

// SolverNames lists the canonical solver names.
func SolverNames() []string {
	return []string{SolverLevenbergMarquardt, SolverNelderMead}
}
