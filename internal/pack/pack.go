// Package pack combines single-cell models into modules and packs: parallel
// cells share a stage voltage and split the stage current, series stages add
// their voltages.
package pack

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat/distuv"

	"battery-ecm/internal/ecm"
	"battery-ecm/internal/thermal"
)

// Empirical multipliers that map one simulated element's voltage to the
// pack voltage of the US06 test pack.
const (
	CellToPack   = 5.965
	ModuleToPack = 2.985
)

// Assembly is Series stages of Parallel identical cells.
type Assembly struct {
	Series   int `json:"series" yaml:"series"`
	Parallel int `json:"parallel" yaml:"parallel"`
}

func (a Assembly) Validate() error {
	if a.Series <= 0 || a.Parallel <= 0 {
		return fmt.Errorf("assembly %dS%dP: counts must be > 0", a.Series, a.Parallel)
	}
	return nil
}

func (a Assembly) Cells() int { return a.Series * a.Parallel }

func (a Assembly) String() string { return fmt.Sprintf("%dS%dP", a.Series, a.Parallel) }

// Grid returns a Series×Parallel matrix filled with v.
func (a Assembly) Grid(v float64) [][]float64 {
	out := make([][]float64, a.Series)
	for s := range out {
		out[s] = make([]float64, a.Parallel)
		for p := range out[s] {
			out[s][p] = v
		}
	}
	return out
}

// RandomSOC draws each cell's initial SOC uniformly from [lo, hi).
func (a Assembly) RandomSOC(lo, hi float64, seed uint64) [][]float64 {
	dist := distuv.Uniform{Min: lo, Max: hi, Src: rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)}
	out := a.Grid(0)
	for s := range out {
		for p := range out[s] {
			out[s][p] = dist.Rand()
		}
	}
	return out
}

// SplitParallelCurrent splits the pack current across the parallel cells of
// every series stage. Each cell is an OCV source behind r0, and the cells of
// a stage share one terminal voltage
//
//	v[s] = (Σ ocv/r0 − i_pack) / Σ 1/r0
//	i[s][p] = (ocv[s][p] − v[s]) / r0[s][p]
//
// so the cell currents of every stage sum to the pack current. The result
// is indexed [series][parallel][sample].
func SplitParallelCurrent(iPack []float64, ocv, r0 [][]float64) ([][][]float64, error) {
	if len(ocv) == 0 || len(ocv) != len(r0) {
		return nil, errors.New("split: ocv and r0 must have the same non-zero number of stages")
	}
	out := make([][][]float64, len(ocv))
	for s := range ocv {
		if len(ocv[s]) == 0 || len(ocv[s]) != len(r0[s]) {
			return nil, fmt.Errorf("split: stage %d has %d ocv values and %d resistances", s, len(ocv[s]), len(r0[s]))
		}
		var g, gv float64
		for p := range ocv[s] {
			if !(r0[s][p] > 0) {
				return nil, fmt.Errorf("split: r0[%d][%d] must be > 0", s, p)
			}
			g += 1 / r0[s][p]
			gv += ocv[s][p] / r0[s][p]
		}

		out[s] = make([][]float64, len(ocv[s]))
		for p := range out[s] {
			out[s][p] = make([]float64, len(iPack))
		}
		for k, i := range iPack {
			v := (gv - i) / g
			for p := range ocv[s] {
				out[s][p][k] = (ocv[s][p] - v) / r0[s][p]
			}
		}
	}
	return out, nil
}

// ScaleSeries multiplies a voltage trace by a series multiplier.
func ScaleSeries(vt []float64, m float64) []float64 {
	out := make([]float64, len(vt))
	for i, v := range vt {
		out[i] = v * m
	}
	return out
}

// CellForModule re-targets a cell fit at one parallel branch of a module
// with the given rated capacity.
func CellForModule(m *ecm.Model, moduleAh float64, parallel int) (*ecm.Model, error) {
	if parallel <= 0 {
		return nil, fmt.Errorf("parallel count must be > 0, got %d", parallel)
	}
	return m.WithCapacity(moduleAh / float64(parallel))
}

// Cell is the simulated response of one cell of an assembly.
type Cell struct {
	Series   int             `json:"series"`
	Parallel int             `json:"parallel"`
	Z0       float64         `json:"z0"`
	Trace    *ecm.Trace      `json:"trace"`
	Thermal  *thermal.Result `json:"thermal,omitempty"`
}

// Result is a pack simulation.
type Result struct {
	Assembly Assembly  `json:"assembly"`
	Time     []float64 `json:"time"`
	Current  []float64 `json:"current"`
	Voltage  []float64 `json:"voltage"`
	Cells    []Cell    `json:"cells"`
}

// Cell returns the result for stage s, branch p.
func (r *Result) Cell(s, p int) Cell {
	return r.Cells[s*r.Assembly.Parallel+p]
}

// Options tune a pack simulation.
type Options struct {
	// InitialTemperature in kelvin; zero uses the model's ambient temperature.
	InitialTemperature float64
	// Workers bounds concurrent cell simulations; zero means one per cell.
	Workers int
}

// Simulate drives every cell of the assembly with its share of iPack. Each
// cell's OCV is taken at its initial SOC z0[s][p] and r0 is the mean series
// resistance of the model's table. Cells are simulated concurrently, each
// writing only its own slot. The pack voltage is the sum over stages of the
// mean cell voltage in each stage. Temperatures are integrated when the
// model carries thermal constants.
func (a Assembly) Simulate(ctx context.Context, m *ecm.Model, iPack, time []float64, z0 [][]float64, opts Options) (*Result, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	if err := ValidateModel(m); err != nil {
		return nil, err
	}
	if len(z0) != a.Series {
		return nil, fmt.Errorf("pack: %d initial soc rows for %d stages", len(z0), a.Series)
	}
	for s := range z0 {
		if len(z0[s]) != a.Parallel {
			return nil, fmt.Errorf("pack: stage %d has %d initial soc values, want %d", s, len(z0[s]), a.Parallel)
		}
	}
	if len(iPack) != len(time) {
		return nil, fmt.Errorf("pack: %d current samples for %d time samples", len(iPack), len(time))
	}

	ocv := a.Grid(0)
	for s := range ocv {
		for p := range ocv[s] {
			ocv[s][p] = m.OcvAt(z0[s][p])
		}
	}
	split, err := SplitParallelCurrent(iPack, ocv, a.Grid(m.Table().MeanR0()))
	if err != nil {
		return nil, err
	}

	params := m.Params()
	t0 := opts.InitialTemperature
	if t0 == 0 {
		t0 = params.AmbientK
	}

	res := &Result{
		Assembly: a,
		Time:     append([]float64(nil), time...),
		Current:  append([]float64(nil), iPack...),
		Voltage:  make([]float64, len(time)),
		Cells:    make([]Cell, a.Cells()),
	}

	eg, ctx := errgroup.WithContext(ctx)
	if opts.Workers > 0 {
		eg.SetLimit(opts.Workers)
	}
	for s := 0; s < a.Series; s++ {
		for p := 0; p < a.Parallel; p++ {
			eg.Go(func() error {
				if err := ctx.Err(); err != nil {
					return err
				}
				tr, err := m.RunFrom(z0[s][p], split[s][p], time)
				if err != nil {
					return fmt.Errorf("cell %d/%d: %w", s, p, err)
				}
				cell := Cell{Series: s, Parallel: p, Z0: z0[s][p], Trace: tr}
				if params.HasThermal() {
					th, err := thermal.Integrate(tr.Current, tr.OCV, tr.Voltage, tr.Time, t0, params)
					if err != nil {
						return fmt.Errorf("cell %d/%d: %w", s, p, err)
					}
					cell.Thermal = th
				}
				res.Cells[s*a.Parallel+p] = cell
				return nil
			})
		}
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	for s := 0; s < a.Series; s++ {
		for p := 0; p < a.Parallel; p++ {
			v := res.Cell(s, p).Trace.Voltage
			for k := range res.Voltage {
				res.Voltage[k] += v[k] / float64(a.Parallel)
			}
		}
	}
	return res, nil
}

// ValidateModel checks that a model can drive a current split.
func ValidateModel(m *ecm.Model) error {
	if m == nil {
		return errors.New("pack: model is nil")
	}
	t := m.Table()
	if t.MeanR0() <= 0 {
		return fmt.Errorf("pack: mean r0 must be > 0, got %g", t.MeanR0())
	}
	return nil
}
