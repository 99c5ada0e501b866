// Package fit implements Levenberg-Marquardt nonlinear least squares for
// small curve-fitting problems with analytic gradients.
package fit

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Problem is a curve y ≈ F(x, p) sampled at X.
type Problem struct {
	X []float64
	Y []float64

	// F evaluates the model at x.
	F func(x float64, p []float64) float64
	// Grad writes ∂F/∂p at x into dst.
	Grad func(x float64, p []float64, dst []float64)

	// Positive lists parameters that must stay strictly positive. Trial
	// steps that would violate this are rejected.
	Positive []int
}

func (p Problem) validate(n int) error {
	if len(p.X) != len(p.Y) {
		return fmt.Errorf("fit: %d x values for %d y values", len(p.X), len(p.Y))
	}
	if len(p.X) < n {
		return fmt.Errorf("fit: %d samples cannot determine %d parameters", len(p.X), n)
	}
	if p.F == nil || p.Grad == nil {
		return errors.New("fit: model function and gradient are required")
	}
	for _, j := range p.Positive {
		if j < 0 || j >= n {
			return fmt.Errorf("fit: positive constraint on missing parameter %d", j)
		}
	}
	return nil
}

// Settings bound the solver. Zero fields take the defaults.
type Settings struct {
	// MaxIterations caps the number of trial steps evaluated.
	MaxIterations int
	// FTol stops when an accepted step reduces the cost by less than this fraction.
	FTol float64
	// XTol stops when a step is smaller than this fraction of the parameter norm.
	XTol float64
	// GTol stops when the largest gradient component falls below this value.
	GTol float64
	// Lambda is the initial damping factor.
	Lambda float64
}

// DefaultSettings mirrors the budget and tolerances of common MINPACK wrappers.
func DefaultSettings() Settings {
	return Settings{
		MaxIterations: 3000,
		FTol:          1.5e-8,
		XTol:          1.5e-8,
		GTol:          1e-12,
		Lambda:        1e-3,
	}
}

func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.MaxIterations <= 0 {
		s.MaxIterations = d.MaxIterations
	}
	if s.FTol <= 0 {
		s.FTol = d.FTol
	}
	if s.XTol <= 0 {
		s.XTol = d.XTol
	}
	if s.GTol <= 0 {
		s.GTol = d.GTol
	}
	if s.Lambda <= 0 {
		s.Lambda = d.Lambda
	}
	return s
}

const maxLambda = 1e16

// Result is a converged fit.
type Result struct {
	Params     []float64
	Cost       float64 // half the residual sum of squares
	Iterations int
	Reason     string
}

// Divergence is returned when the solver does not converge within budget.
type Divergence struct {
	Iterations int
	Cost       float64
	Reason     string
}

func (e *Divergence) Error() string {
	return fmt.Sprintf("fit diverged after %d iterations (cost %.3g): %s", e.Iterations, e.Cost, e.Reason)
}

// LevenbergMarquardt minimises ½‖y − F(x, p)‖² starting from p0. The damped
// normal equations (JᵀJ + λD)δ = Jᵀr use Marquardt's diagonal scaling, with D
// the running maximum of diag(JᵀJ).
func LevenbergMarquardt(ctx context.Context, prob Problem, p0 []float64, settings Settings) (*Result, error) {
	n := len(p0)
	if err := prob.validate(n); err != nil {
		return nil, err
	}
	s := settings.withDefaults()
	m := len(prob.X)

	p := append([]float64(nil), p0...)
	if !feasible(p, prob.Positive) {
		return nil, fmt.Errorf("fit: initial guess violates positivity: %v", p0)
	}

	r := make([]float64, m)
	cost := residuals(prob, p, r)
	if !isFinite(cost) {
		return nil, &Divergence{Reason: "non-finite cost at initial guess", Cost: cost}
	}

	J := mat.NewDense(m, n, nil)
	grad := make([]float64, n)
	scale := make([]float64, n)
	trial := make([]float64, n)
	rTrial := make([]float64, m)
	lambda := s.Lambda

	var (
		jtj  mat.SymDense
		g    mat.VecDense
		step mat.VecDense
		chol mat.Cholesky
	)
	a := mat.NewSymDense(n, nil)

	iter := 0
	fresh := true
	for iter < s.MaxIterations {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if fresh {
			for i, x := range prob.X {
				prob.Grad(x, p, grad)
				J.SetRow(i, grad)
			}
			jtj.Reset()
			jtj.SymOuterK(1, J.T())
			g.Reset()
			g.MulVec(J.T(), mat.NewVecDense(m, r))

			if cost == 0 || maxAbs(g.RawVector().Data) <= s.GTol {
				return &Result{Params: p, Cost: cost, Iterations: iter, Reason: "gradient"}, nil
			}
			for j := 0; j < n; j++ {
				scale[j] = math.Max(scale[j], jtj.At(j, j))
				if scale[j] == 0 {
					scale[j] = 1
				}
			}
			fresh = false
		}

		a.CopySym(&jtj)
		for j := 0; j < n; j++ {
			a.SetSym(j, j, jtj.At(j, j)+lambda*scale[j])
		}
		iter++

		if ok := chol.Factorize(a); !ok {
			if lambda *= 10; lambda > maxLambda {
				break
			}
			continue
		}
		if err := chol.SolveVecTo(&step, &g); err != nil {
			if lambda *= 10; lambda > maxLambda {
				break
			}
			continue
		}

		delta := step.RawVector().Data
		floats.AddTo(trial, p, delta)
		small := floats.Norm(delta, 2) <= s.XTol*(floats.Norm(p, 2)+s.XTol)

		if !feasible(trial, prob.Positive) {
			if small {
				return &Result{Params: p, Cost: cost, Iterations: iter, Reason: "step size"}, nil
			}
			if lambda *= 10; lambda > maxLambda {
				break
			}
			continue
		}

		newCost := residuals(prob, trial, rTrial)
		if !isFinite(newCost) || newCost >= cost {
			if small {
				return &Result{Params: p, Cost: cost, Iterations: iter, Reason: "step size"}, nil
			}
			if lambda *= 10; lambda > maxLambda {
				break
			}
			continue
		}

		reduction := (cost - newCost) / cost
		copy(p, trial)
		copy(r, rTrial)
		cost = newCost
		lambda = math.Max(lambda/10, 1e-12)
		fresh = true

		if small {
			return &Result{Params: p, Cost: cost, Iterations: iter, Reason: "step size"}, nil
		}
		if reduction <= s.FTol {
			return &Result{Params: p, Cost: cost, Iterations: iter, Reason: "cost reduction"}, nil
		}
	}

	reason := "iteration budget exhausted"
	if lambda > maxLambda {
		reason = "damping exhausted without progress"
	}
	return nil, &Divergence{Iterations: iter, Cost: cost, Reason: reason}
}

func residuals(prob Problem, p, dst []float64) float64 {
	sum := 0.0
	for i, x := range prob.X {
		dst[i] = prob.Y[i] - prob.F(x, p)
		sum += dst[i] * dst[i]
	}
	return sum / 2
}

func feasible(p []float64, positive []int) bool {
	for _, j := range positive {
		if !(p[j] > 0) {
			return false
		}
	}
	return true
}

func maxAbs(xs []float64) float64 {
	out := 0.0
	for _, x := range xs {
		out = math.Max(out, math.Abs(x))
	}
	return out
}

func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
