// Package pipeline runs the HPPC characterization end to end: segment the
// log, count charge, anchor the OCV curve, fit the relaxations, derive the
// RC table and validate the resulting model against measured data.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"battery-ecm/internal/analysis"
	"battery-ecm/internal/ecm"
	"battery-ecm/internal/fit"
	"battery-ecm/internal/model"
	"battery-ecm/internal/profile"
	"battery-ecm/internal/segment"
)

// Options select the log layout, cell constants and fit settings of a build.
type Options struct {
	Layout   model.Layout
	Params   model.CellParams
	Kind     ecm.FitKind
	Seeds    ecm.Seeds
	Settings fit.Settings
	Workers  int
	// Strict fails the build on any failed or degenerate bin instead of
	// dropping it from the table.
	Strict bool
}

// DefaultOptions is a two-time-constant build with seeds matching the layout.
func DefaultOptions(layout model.Layout, params model.CellParams) Options {
	seeds := ecm.CellSeeds
	if layout.Stride == model.LayoutModuleHPPC.Stride {
		seeds = ecm.ModuleSeeds
	}
	return Options{
		Layout:   layout,
		Params:   params,
		Kind:     ecm.TwoTimeConstant,
		Seeds:    seeds,
		Settings: fit.DefaultSettings(),
	}
}

type Engine struct {
	log logrus.FieldLogger
}

func New(log logrus.FieldLogger) *Engine {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Engine{log: log}
}

// BuildReport is everything a build produced, for plotting and ranking.
type BuildReport struct {
	Model      *ecm.Model
	Record     *model.TestRecord
	SOC        []float64
	Curve      model.OcvCurve
	Pulses     segment.IndexSet
	Discharges segment.IndexSet
	Fits       []ecm.BinFit
	Skipped    []error
	Bins       []analysis.BinQuality
	Elapsed    time.Duration
}

// Build characterizes one HPPC log.
func (e *Engine) Build(ctx context.Context, raw *model.TestRecord, opts Options) (*BuildReport, error) {
	start := time.Now()
	if err := raw.Validate(); err != nil {
		return nil, fmt.Errorf("build: %w", err)
	}
	if err := opts.Params.Validate(); err != nil {
		return nil, fmt.Errorf("build: %w", err)
	}
	log := e.log.WithFields(logrus.Fields{"layout": opts.Layout.Name, "kind": opts.Kind.String()})

	rec, err := segment.Prepare(raw, opts.Layout)
	if err != nil {
		return nil, err
	}
	soc, err := ecm.NewSocEstimator(opts.Params).Estimate(rec.Current, rec.Time)
	if err != nil {
		return nil, err
	}

	anchors, err := segment.AnchorIndices(rec, opts.Layout)
	if err != nil {
		return nil, err
	}
	curve, err := ecm.BuildOcvPoints(rec, soc, anchors)
	if err != nil {
		return nil, err
	}
	if err := curve.Validate(); err != nil {
		return nil, fmt.Errorf("build: ocv anchors: %w", err)
	}

	discharges, err := segment.RequireDischarges(rec, opts.Layout)
	if err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{
		"rows":       rec.Len(),
		"anchors":    len(anchors),
		"discharges": len(discharges),
	}).Info("segmented test log")

	fitter := &ecm.Fitter{
		Kind:     opts.Kind,
		Seeds:    opts.Seeds,
		Settings: opts.Settings,
		Workers:  opts.Workers,
		Reseed:   []float64{10, 0.1},
		Log:      log,
	}
	fits, err := fitter.Fit(ctx, rec, discharges)
	if err != nil {
		return nil, err
	}

	var table *model.RcTable
	var skipped []error
	if opts.Strict {
		table, err = ecm.Derive(fits, rec, discharges)
		if err != nil {
			return nil, err
		}
	} else {
		table, skipped = ecm.DeriveAvailable(fits, rec, discharges)
		for _, s := range skipped {
			log.WithError(s).Warn("bin dropped from rc table")
		}
		if table.Len() == 0 {
			return nil, fmt.Errorf("build: no usable bins: %w", errors.Join(skipped...))
		}
	}

	m, err := ecm.NewModel(opts.Params, curve, table)
	if err != nil {
		return nil, err
	}
	bins, err := analysis.RankBins(rec, discharges, fits)
	if err != nil {
		return nil, err
	}

	report := &BuildReport{
		Model:      m,
		Record:     rec,
		SOC:        soc,
		Curve:      curve,
		Pulses:     segment.PulseIndices(rec, opts.Layout),
		Discharges: discharges,
		Fits:       fits,
		Skipped:    skipped,
		Bins:       bins,
		Elapsed:    time.Since(start),
	}
	log.WithFields(logrus.Fields{
		"bins":    table.Len(),
		"skipped": len(skipped),
		"elapsed": report.Elapsed.Round(time.Millisecond).String(),
	}).Info("model built")
	return report, nil
}

// Validate replays a measured log through m from a full charge and compares
// the simulated terminal voltage with the measured one.
func (e *Engine) Validate(m *ecm.Model, rec *model.TestRecord) (*Result, error) {
	if m == nil {
		return nil, errors.New("validate: model is nil")
	}
	if err := rec.Validate(); err != nil {
		return nil, fmt.Errorf("validate: %w", err)
	}
	tr, err := m.Run(rec.Current, rec.Time)
	if err != nil {
		return nil, err
	}
	q, err := analysis.Compare(rec.Voltage, tr.Voltage)
	if err != nil {
		return nil, err
	}
	q.Label = "terminal voltage"
	e.log.WithFields(logrus.Fields{"rows": rec.Len(), "rmse": q.RMSE, "max_abs": q.MaxAbs}).Info("model validated")
	return &Result{
		Ledger:   NewLedger(tr, rec.Voltage),
		Quality:  q,
		FinalSOC: tr.SOC[len(tr.SOC)-1],
	}, nil
}

// Simulate samples a profile every dt seconds and runs it through m from
// initial SOC z0.
func (e *Engine) Simulate(m *ecm.Model, p profile.Profile, dt, z0 float64) (*ecm.Trace, error) {
	if m == nil {
		return nil, errors.New("simulate: model is nil")
	}
	t, i, err := p.Series(dt)
	if err != nil {
		return nil, err
	}
	tr, err := m.RunFrom(z0, i, t)
	if err != nil {
		return nil, fmt.Errorf("simulate %s: %w", p.Name(), err)
	}
	e.log.WithFields(logrus.Fields{"profile": p.Name(), "rows": len(t)}).Debug("profile simulated")
	return tr, nil
}
