package ecm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"battery-ecm/internal/fit"
	"battery-ecm/internal/model"
	"battery-ecm/internal/segment"
)

// FitKind selects the relaxation model fitted to each rest period.
type FitKind int

const (
	// OneTimeConstant is v(t) = a − b·exp(−α·t), coefficients (a, b, α).
	OneTimeConstant FitKind = iota + 1
	// TwoTimeConstant is v(t) = a − b·exp(−α·t) − c·exp(−β·t),
	// coefficients (a, b, c, α, β).
	TwoTimeConstant
)

func (k FitKind) String() string {
	switch k {
	case OneTimeConstant:
		return "otc"
	case TwoTimeConstant:
		return "ttc"
	default:
		return fmt.Sprintf("FitKind(%d)", int(k))
	}
}

// ParseFitKind accepts "otc"/"1" and "ttc"/"2".
func ParseFitKind(s string) (FitKind, error) {
	switch s {
	case "otc", "1":
		return OneTimeConstant, nil
	case "ttc", "2", "":
		return TwoTimeConstant, nil
	default:
		return 0, fmt.Errorf("unknown fit kind %q", s)
	}
}

// NumCoeffs is the number of fitted coefficients.
func (k FitKind) NumCoeffs() int {
	if k == OneTimeConstant {
		return 3
	}
	return 5
}

// rates lists the coefficient positions of the decay rates.
func (k FitKind) rates() []int {
	if k == OneTimeConstant {
		return []int{2}
	}
	return []int{3, 4}
}

// Eval evaluates the relaxation model at t.
func (k FitKind) Eval(t float64, p []float64) float64 {
	if k == OneTimeConstant {
		return p[0] - p[1]*math.Exp(-p[2]*t)
	}
	return p[0] - p[1]*math.Exp(-p[3]*t) - p[2]*math.Exp(-p[4]*t)
}

func (k FitKind) grad(t float64, p, dst []float64) {
	if k == OneTimeConstant {
		e := math.Exp(-p[2] * t)
		dst[0] = 1
		dst[1] = -e
		dst[2] = p[1] * t * e
		return
	}
	e1 := math.Exp(-p[3] * t)
	e2 := math.Exp(-p[4] * t)
	dst[0] = 1
	dst[1] = -e1
	dst[2] = -e2
	dst[3] = p[1] * t * e1
	dst[4] = p[2] * t * e2
}

// Seeds are initial guesses. The first coefficient is replaced by the
// voltage at the end of each rest period.
type Seeds struct {
	OneTimeConstant []float64 `yaml:"otc" json:"otc"`
	TwoTimeConstant []float64 `yaml:"ttc" json:"ttc"`
}

var (
	CellSeeds = Seeds{
		OneTimeConstant: []float64{0, 0.01, 0.01},
		TwoTimeConstant: []float64{0, 0.01, 0.01, 0.001, 0.01},
	}
	ModuleSeeds = Seeds{
		OneTimeConstant: []float64{0, 0.0644, 0.0012},
		TwoTimeConstant: []float64{0, 0.0724, 0.0575, 0.0223, 0.0007},
	}
)

// For returns a copy of the seed for kind with a = vEnd.
func (s Seeds) For(kind FitKind, vEnd float64) []float64 {
	src := s.TwoTimeConstant
	if kind == OneTimeConstant {
		src = s.OneTimeConstant
	}
	out := append([]float64(nil), src...)
	if len(out) > 0 {
		out[0] = vEnd
	}
	return out
}

// BinFit is the outcome of fitting one SOC bin.
type BinFit struct {
	Bin    int
	SOC    float64
	Kind   FitKind
	Coeffs []float64
	Cost   float64
	Err    error
}

// OK reports whether the bin produced coefficients.
func (b BinFit) OK() bool { return b.Err == nil && b.Coeffs != nil }

// Fitter fits relaxation transients for every discharge group of a log.
type Fitter struct {
	Kind     FitKind
	Seeds    Seeds
	Settings fit.Settings
	// Workers bounds concurrent bin fits; zero uses GOMAXPROCS.
	Workers int
	// Reseed scales the seed decay rates on divergence, one retry per factor.
	Reseed []float64
	Log    logrus.FieldLogger
}

// NewFitter returns a two-time-constant fitter with cell seeds.
func NewFitter(log logrus.FieldLogger) *Fitter {
	return &Fitter{
		Kind:     TwoTimeConstant,
		Seeds:    CellSeeds,
		Settings: fit.DefaultSettings(),
		Reseed:   []float64{10, 0.1},
		Log:      log,
	}
}

// Fit fits the rest period of every group, from the end of the discharge
// through the end of the rest, with time rebased per group. Bins are fitted
// concurrently and each worker writes only its own slot. A bin that still
// diverges after re-seeding carries its error in BinFit.Err; the returned
// error is reserved for cancellation and invalid input.
func (f *Fitter) Fit(ctx context.Context, rec *model.TestRecord, set segment.IndexSet) ([]BinFit, error) {
	if f.Kind != OneTimeConstant && f.Kind != TwoTimeConstant {
		return nil, fmt.Errorf("fit: invalid kind %v", f.Kind)
	}
	for k, g := range set {
		if g.End < 0 || g.RestEnd >= rec.Len() || g.RestEnd <= g.End {
			return nil, fmt.Errorf("fit: group %d [%d, %d] outside record of %d rows", k, g.End, g.RestEnd, rec.Len())
		}
	}

	workers := f.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	out := make([]BinFit, len(set))
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for k, g := range set {
		eg.Go(func() error {
			res, err := f.fitGroup(ctx, rec, g)
			if err != nil && ctx.Err() != nil {
				return ctx.Err()
			}
			out[k] = BinFit{Bin: k, SOC: model.BinCenter(k), Kind: f.Kind, Err: err}
			if res != nil {
				out[k].Coeffs = res.Params
				out[k].Cost = res.Cost
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	for _, b := range out {
		if b.Err != nil {
			f.logger().WithField("bin", b.Bin).WithError(b.Err).Warn("relaxation fit failed")
		}
	}
	return out, nil
}

func (f *Fitter) fitGroup(ctx context.Context, rec *model.TestRecord, g segment.Group) (*fit.Result, error) {
	t0 := rec.Time[g.End]
	xs := make([]float64, 0, g.RestEnd-g.End+1)
	ys := make([]float64, 0, g.RestEnd-g.End+1)
	for i := g.End; i <= g.RestEnd; i++ {
		xs = append(xs, rec.Time[i]-t0)
		ys = append(ys, rec.Voltage[i])
	}

	kind := f.Kind
	prob := fit.Problem{X: xs, Y: ys, F: kind.Eval, Grad: kind.grad, Positive: kind.rates()}
	seed := f.Seeds.For(kind, ys[len(ys)-1])
	if len(seed) != kind.NumCoeffs() {
		return nil, fmt.Errorf("fit: %v seed has %d coefficients, want %d", kind, len(seed), kind.NumCoeffs())
	}

	res, err := fit.LevenbergMarquardt(ctx, prob, seed, f.Settings)
	var div *fit.Divergence
	for _, factor := range f.Reseed {
		if err == nil || !errors.As(err, &div) {
			break
		}
		retry := append([]float64(nil), seed...)
		for _, j := range kind.rates() {
			retry[j] *= factor
		}
		res, err = fit.LevenbergMarquardt(ctx, prob, retry, f.Settings)
	}
	return res, err
}

func (f *Fitter) logger() logrus.FieldLogger {
	if f.Log == nil {
		return logrus.StandardLogger()
	}
	return f.Log
}
