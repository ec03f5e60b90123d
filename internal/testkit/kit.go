package testkit

import (
	"fmt"
	"math"
	"math/rand"

	"expfit/domain/core"
)

// Shape names accepted by SampleGeneratorConfig.Shape
const (
	ShapeExponential = "exponential" // A*exp(B*x)
	ShapeOffset      = "offset"      // A*exp(B*x) + C
	ShapeLinear      = "linear"      // A + B*x
	ShapeConstant    = "constant"    // C
)

// SampleGeneratorConfig describes a synthetic sample set
type SampleGeneratorConfig struct {
	Shape       string
	A, B, C     float64
	XMin, XMax  float64
	Points      int
	NoiseStdDev float64 // Gaussian noise added to y; 0 for exact samples
	Seed        int64
}

// DefaultSampleConfig is y = 2*exp(0.5x) sampled at x = 0..9 without noise.
func DefaultSampleConfig() SampleGeneratorConfig {
	return SampleGeneratorConfig{
		Shape:  ShapeExponential,
		A:      2,
		B:      0.5,
		XMin:   0,
		XMax:   9,
		Points: 10,
		Seed:   42,
	}
}

// SampleGenerator produces deterministic (x, y) samples
type SampleGenerator struct {
	config SampleGeneratorConfig
	rng    *rand.Rand
}

// NewSampleGenerator creates a generator seeded from config.Seed
func NewSampleGenerator(config SampleGeneratorConfig) *SampleGenerator {
	return &SampleGenerator{
		config: config,
		rng:    rand.New(rand.NewSource(config.Seed)),
	}
}

// Generate returns evenly spaced x over [XMin, XMax] and the shaped y.
func (g *SampleGenerator) Generate() ([]float64, []float64, error) {
	cfg := g.config
	if cfg.Points < 2 {
		return nil, nil, fmt.Errorf("%w: %d points requested", core.ErrInsufficientData, cfg.Points)
	}

	x := Linspace(cfg.XMin, cfg.XMax, cfg.Points)
	y := make([]float64, len(x))
	for i, xi := range x {
		switch cfg.Shape {
		case ShapeExponential:
			y[i] = cfg.A * math.Exp(cfg.B*xi)
		case ShapeOffset:
			y[i] = cfg.A*math.Exp(cfg.B*xi) + cfg.C
		case ShapeLinear:
			y[i] = cfg.A + cfg.B*xi
		case ShapeConstant:
			y[i] = cfg.C
		default:
			return nil, nil, fmt.Errorf("unknown sample shape %q", cfg.Shape)
		}
		if cfg.NoiseStdDev > 0 {
			y[i] += g.rng.NormFloat64() * cfg.NoiseStdDev
		}
	}
	return x, y, nil
}

// Linspace returns n evenly spaced values from lo to hi inclusive.
func Linspace(lo, hi float64, n int) []float64 {
	out := make([]float64, n)
	if n == 1 {
		out[0] = lo
		return out
	}
	step := (hi - lo) / float64(n-1)
	for i := range out {
		out[i] = lo + float64(i)*step
	}
	return out
}

// Scale returns c*v for every element of v.
func Scale(v []float64, c float64) []float64 {
	out := make([]float64, len(v))
	for i, vi := range v {
		out[i] = c * vi
	}
	return out
}
