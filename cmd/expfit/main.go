package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"expfit/adapters/optimize"
	"expfit/domain/fit"
	"expfit/internal/config"
	"expfit/internal/expfit"
	"expfit/internal/testkit"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func main() {
	// Load environment variables from .env file
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// rootFlags are shared by every subcommand.
type rootFlags struct {
	configPath string
	solver     string
	r2Thresh   float64
	rmseFrac   float64
	tryOffset  bool
	maxIter    int
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	rootCmd := &cobra.Command{
		Use:           "expfit",
		Short:         "Decide whether (x, y) samples follow an exponential law",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "YAML config file (environment variables still apply)")
	pf.StringVar(&flags.solver, "solver", "", "least-squares solver: "+strings.Join(optimize.SolverNames(), ", "))
	pf.Float64Var(&flags.r2Thresh, "r2-thresh", fit.DefaultR2Thresh, "minimum acceptable R2")
	pf.Float64Var(&flags.rmseFrac, "rmse-frac-thresh", fit.DefaultRMSEFracThresh, "maximum RMSE as a fraction of the y span")
	pf.BoolVar(&flags.tryOffset, "try-offset", true, "also try a*exp(b*x)+c")
	pf.IntVar(&flags.maxIter, "max-iterations", fit.DefaultMaxIterations, "solver iteration budget per model")

	rootCmd.AddCommand(
		newEvalCmd(flags),
		newDemoCmd(flags),
		newBatchCmd(flags),
	)
	return rootCmd
}

func newEvalCmd(flags *rootFlags) *cobra.Command {
	var xs, ys []float64

	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Evaluate samples given on the command line",
		Long: `Fit a*exp(b*x) (and a*exp(b*x)+c when needed) to the samples and
print the decision with its diagnostics.

Example: expfit eval --x 0,1,2,3,4,5 --y 2,3.3,5.4,9,14.8,24.4`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvaluate(cmd, flags, xs, ys)
		},
	}

	cmd.Flags().Float64SliceVar(&xs, "x", nil, "comma separated x values")
	cmd.Flags().Float64SliceVar(&ys, "y", nil, "comma separated y values")
	_ = cmd.MarkFlagRequired("x")
	_ = cmd.MarkFlagRequired("y")

	return cmd
}

func newDemoCmd(flags *rootFlags) *cobra.Command {
	sample := testkit.DefaultSampleConfig()

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Evaluate a synthetic sample set",
		Long: `Generate samples of a known shape and evaluate them.

Shapes: exponential (A*exp(B*x)), offset (A*exp(B*x)+C), linear (A+B*x), constant (C).

Example: expfit demo --shape offset --a 1 --b 1 --c 10 --x-min=-3 --x-max=2 --points 11`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			x, y, err := testkit.NewSampleGenerator(sample).Generate()
			if err != nil {
				return err
			}
			return runEvaluate(cmd, flags, x, y)
		},
	}

	f := cmd.Flags()
	f.StringVar(&sample.Shape, "shape", sample.Shape, "sample shape")
	f.Float64Var(&sample.A, "a", sample.A, "shape parameter A")
	f.Float64Var(&sample.B, "b", sample.B, "shape parameter B")
	f.Float64Var(&sample.C, "c", sample.C, "shape parameter C")
	f.Float64Var(&sample.XMin, "x-min", sample.XMin, "first x")
	f.Float64Var(&sample.XMax, "x-max", sample.XMax, "last x")
	f.IntVar(&sample.Points, "points", sample.Points, "number of samples")
	f.Float64Var(&sample.NoiseStdDev, "noise", 0, "standard deviation of Gaussian noise on y")
	f.Int64Var(&sample.Seed, "seed", sample.Seed, "noise seed")

	return cmd
}

// batchFile is the YAML layout read by the batch command.
type batchFile struct {
	Series []expfit.Series `yaml:"series"`
}

func newBatchCmd(flags *rootFlags) *cobra.Command {
	var workers int

	cmd := &cobra.Command{
		Use:   "batch FILE",
		Short: "Evaluate every series listed in a YAML file",
		Long: `Evaluate named series concurrently. The file lists them as

series:
  - name: growth
    x: [0, 1, 2, 3, 4]
    y: [1, 2.7, 7.4, 20.1, 54.6]`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read batch file: %w", err)
			}
			var batch batchFile
			if err := yaml.Unmarshal(data, &batch); err != nil {
				return fmt.Errorf("failed to parse batch file: %w", err)
			}

			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			solver, err := optimize.NewSolver(cfg.Fit.Solver)
			if err != nil {
				return err
			}

			evaluator := expfit.NewEvaluator(solver, cfg.Logger())
			results := evaluator.EvaluateBatch(cmd.Context(), batch.Series, cfg.Options(), workers)

			w := cmd.OutOrStdout()
			failed := 0
			for _, r := range results {
				if r.Err != nil {
					failed++
					fmt.Fprintf(w, "%-20s error: %v\n", r.Name, r.Err)
					continue
				}
				d := r.Decision
				fmt.Fprintf(w, "%-20s %-10s %-16s %s\n", r.Name, d.Outcome, d.Model, formatParams(d.Params))
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d series could not be evaluated", failed, len(results))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&workers, "workers", 0, "concurrent evaluations (0 uses GOMAXPROCS)")
	return cmd
}

// loadConfig reads the config file or environment and applies the flags the
// user set explicitly.
func loadConfig(cmd *cobra.Command, flags *rootFlags) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if flags.configPath != "" {
		cfg, err = config.LoadFile(flags.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	changed := cmd.Flags().Changed
	if changed("solver") {
		cfg.Fit.Solver = flags.solver
	}
	if changed("r2-thresh") {
		cfg.Fit.R2Thresh = flags.r2Thresh
	}
	if changed("rmse-frac-thresh") {
		cfg.Fit.RMSEFracThresh = flags.rmseFrac
	}
	if changed("try-offset") {
		cfg.Fit.TryOffset = flags.tryOffset
	}
	if changed("max-iterations") {
		cfg.Fit.MaxIterations = flags.maxIter
	}
	return cfg, nil
}

func runEvaluate(cmd *cobra.Command, flags *rootFlags, x, y []float64) error {
	cfg, err := loadConfig(cmd, flags)
	if err != nil {
		return err
	}
	solver, err := optimize.NewSolver(cfg.Fit.Solver)
	if err != nil {
		return err
	}

	evaluator := expfit.NewEvaluator(solver, cfg.Logger())
	decision, err := evaluator.Evaluate(cmd.Context(), x, y, cfg.Options())
	if err != nil {
		return err
	}

	printDecision(cmd.OutOrStdout(), decision)
	return nil
}

func printDecision(w io.Writer, d *fit.Decision) {
	fmt.Fprintf(w, "id:       %s (input %s)\n", d.ID, d.InputHash.Short())
	fmt.Fprintf(w, "outcome:  %s\n", d.Outcome)
	fmt.Fprintf(w, "decision: %t\n", d.Accepted)
	if d.Model != "" {
		fmt.Fprintf(w, "model:    %s\n", d.Model)
		fmt.Fprintf(w, "params:   %s\n", formatParams(d.Params))
		fmt.Fprintf(w, "r2:       %.6f\n", d.Metrics.R2)
		fmt.Fprintf(w, "rmse:     %.6g (limit %.6g)\n", d.Metrics.RMSE, d.RMSELimit)
		fmt.Fprintf(w, "aic:      %.4f\n", d.Metrics.AIC)
		fmt.Fprintf(w, "bic:      %.4f\n", d.Metrics.BIC)
		fmt.Fprintf(w, "sse:      %.6g\n", d.Metrics.SSE)
	}
	fmt.Fprintf(w, "reason:   %s\n", d.Reason)

	for _, c := range d.Candidates {
		fmt.Fprintf(w, "  candidate %-16s %-15s iter=%-4d r2=%.6f %s\n",
			c.Model, c.Status, c.Iterations, c.Metrics.R2, c.Failure)
	}
	if d.Linear != nil && d.Linear.Usable() {
		fmt.Fprintf(w, "  linear baseline  r2=%.6f aic=%.4f\n", d.Linear.Metrics.R2, d.Linear.Metrics.AIC)
	}
}

func formatParams(p []float64) string {
	names := []string{"a", "b", "c"}
	parts := make([]string, len(p))
	for i, v := range p {
		parts[i] = fmt.Sprintf("%s=%.6g", names[i], v)
	}
	return strings.Join(parts, " ")
}
