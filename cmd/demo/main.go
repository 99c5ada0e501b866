package main

import (
	"context"
	"flag"
	"fmt"

	"battery-ecm/internal/config"
	"battery-ecm/internal/ecm"
	"battery-ecm/internal/logging"
	"battery-ecm/internal/model"
	"battery-ecm/internal/pack"
	"battery-ecm/internal/pipeline"
	"battery-ecm/internal/profile"
	"battery-ecm/internal/report"
)

// Demo:
// - Generate a noisy HPPC log from a known cell model
// - Fit a model back from the log and compare it with the truth
// - Drive a small pack of fitted cells with a discharge schedule
func main() {
	cfgPath := flag.String("config", "", "Path to YAML config (optional)")
	groups := flag.Int("groups", 9, "Number of HPPC groups to synthesize")
	noise := flag.Float64("noise", 0.0005, "Voltage noise standard deviation [V]")
	seed := flag.Uint64("seed", 1, "Noise and pack SOC seed")
	outCSV := flag.String("out", "", "Optional path to write the validation ledger CSV")
	logLevel := flag.String("log-level", "warn", "debug|info|warn|error")
	flag.Parse()

	// Defaults (can be overridden via --config): a 30.6 Ah pouch cell with
	// its lumped thermal constants.
	params := model.CellParams{
		CapacityAh:          30.6,
		ChargeEfficiency:    0.98,
		DischargeEfficiency: 1,
		SurfaceAreaM2:       0.067569,
		SpecificHeat:        1600,
		ConvectiveCoeff:     9.5,
		MassKg:              0.799,
		AmbientK:            298.15,
	}
	assembly := pack.Assembly{Series: 2, Parallel: 3}
	kind := ecm.TwoTimeConstant

	if *cfgPath != "" {
		cfg, err := config.Load(*cfgPath)
		if err != nil {
			panic(err)
		}
		params = cfg.Battery.ToModelParams()
		if cfg.Pack.Enabled() {
			assembly = cfg.Pack.Assembly()
		}
		if kind, err = ecm.ParseFitKind(cfg.Fit.Kind); err != nil {
			panic(err)
		}
	}

	truth, err := ecm.NewModel(params,
		model.OcvCurve{
			SOC:     []float64{1, 0.9, 0.8, 0.7, 0.6, 0.5, 0.4, 0.3, 0.2, 0.1, 0},
			Voltage: []float64{4.15, 4.03, 3.95, 3.88, 3.82, 3.76, 3.71, 3.66, 3.60, 3.50, 3.20},
		},
		model.Uniform(model.RcRow{Tau1: 15, Tau2: 300, R0: 0.0018, R1: 0.0008, R2: 0.0012, C1: 15 / 0.0008, C2: 300 / 0.0012}),
	)
	if err != nil {
		panic(err)
	}

	opts := profile.DefaultHPPC(params.CapacityAh)
	opts.Groups = *groups
	schedule, err := profile.HPPC(opts)
	if err != nil {
		panic(err)
	}
	rec, err := profile.Synthesize(truth, schedule, profile.SynthOptions{Dt: 1, NoiseStd: *noise, Seed: *seed})
	if err != nil {
		panic(err)
	}
	fmt.Printf("Synthesized %d rows, %d groups, %.0f s\n\n", rec.Len(), *groups, rec.Time[rec.Len()-1])

	log := logging.New(*logLevel, "text", nil)
	engine := pipeline.New(log)
	buildOpts := pipeline.DefaultOptions(opts.Layout, params)
	buildOpts.Kind = kind
	built, err := engine.Build(context.Background(), rec, buildOpts)
	if err != nil {
		panic(err)
	}
	for _, e := range built.Skipped {
		fmt.Printf("skipped: %v\n", e)
	}

	fmt.Println(report.OcvCurve(built.Curve))
	fmt.Println(report.RcTable(built.Model.Table()))
	fmt.Println(report.Bins(built.Bins))

	truthRow := truth.Table().Rows[0]
	for _, r := range built.Model.Table().Rows {
		fmt.Printf("soc=%.1f  r0=%.3f mΩ (truth %.3f)  τ1=%6.1f s (truth %.0f)  τ2=%6.1f s (truth %.0f)\n",
			r.SOC, r.R0*1e3, truthRow.R0*1e3, r.Tau1, truthRow.Tau1, r.Tau2, truthRow.Tau2)
	}

	res, err := engine.Validate(built.Model, rec)
	if err != nil {
		panic(err)
	}
	fmt.Println()
	fmt.Println(report.Quality(res.Quality))

	if *outCSV != "" {
		if err := pipeline.WriteLedgerCSV(*outCSV, res.Ledger); err != nil {
			panic(err)
		}
		fmt.Printf("\nWrote CSV: %s\n", *outCSV)
	}

	// 2C discharge of the pack for five minutes, then rest
	drive, err := profile.ParseSchedule(fmt.Sprintf("%g@300,0@300", -2*params.CapacityAh*float64(assembly.Parallel)))
	if err != nil {
		panic(err)
	}
	t, iPack, err := drive.Series(1)
	if err != nil {
		panic(err)
	}
	packRes, err := assembly.Simulate(context.Background(), built.Model, iPack, t,
		assembly.RandomSOC(0.95, 1.0, *seed), pack.Options{})
	if err != nil {
		panic(err)
	}
	fmt.Println()
	fmt.Println(report.Pack(packRes))

	n := len(packRes.Voltage)
	fmt.Printf("\nDone. Final pack voltage=%.3f V  single-cell series estimate=%.3f V\n",
		packRes.Voltage[n-1],
		pack.ScaleSeries(packRes.Cell(0, 0).Trace.Voltage, float64(assembly.Series))[n-1])
}
