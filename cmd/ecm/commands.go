package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gonum.org/v1/plot"

	"battery-ecm/internal/data"
	"battery-ecm/internal/ecm"
	"battery-ecm/internal/figure"
	"battery-ecm/internal/pack"
	"battery-ecm/internal/pipeline"
	"battery-ecm/internal/profile"
	"battery-ecm/internal/report"
	"battery-ecm/internal/segment"
)

func newViewCmd(a *app) *cobra.Command {
	var tempPath string

	cmd := &cobra.Command{
		Use:   "view <log.csv>",
		Short: "Summarize a test log: markers, groups and anchors",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.config()
			if err != nil {
				return err
			}
			rec, layout, err := a.load(args[0], c)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			n := rec.Len()
			_, _ = fmt.Fprintln(out, report.Title.Render(filepath.Base(args[0])))
			_, _ = fmt.Fprintf(out, "layout %s, %d rows over %.0f s, %d markers, %d quit rows\n",
				layout.Name, n, rec.Time[n-1]-rec.Time[0], len(rec.StartStopIndices()), len(rec.QuitIndices()))

			if layout.HighRateCurrent > 0 {
				w, err := segment.RestrictToDischarge(rec, layout)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(out, "discharge %.0f s .. %.0f s, %d rows\n", w.Ti, w.Tf, w.Record.Len())
				if tempPath != "" {
					return viewTemperature(cmd, tempPath, w.Ti, w.Tf)
				}
				return nil
			}

			prepared, err := segment.Prepare(rec, layout)
			if err != nil {
				return err
			}
			anchors, err := segment.AnchorIndices(prepared, layout)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(out, "experiment %d rows, %d pulse groups, %d discharge groups, %d ocv anchors\n",
				prepared.Len(),
				len(segment.PulseIndices(prepared, layout)),
				len(segment.DischargeIndices(prepared, layout)),
				len(anchors))
			if tempPath != "" {
				return viewTemperature(cmd, tempPath, rec.Time[0], rec.Time[n-1])
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&tempPath, "temperature", "", "thermocouple log (.lvm) recorded alongside")
	return cmd
}

func viewTemperature(cmd *cobra.Command, path string, ti, tf float64) error {
	tl, err := data.LoadTemperatureLog(path)
	if err != nil {
		return err
	}
	w := tl.Window(ti, tf)
	if w.Len() == 0 {
		return fmt.Errorf("temperature log %s has no samples in %.0f..%.0f s", path, ti, tf)
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "temperature %d samples, peak per channel %v °C\n", w.Len(), w.Max())
	return nil
}

func newSocOcvCmd(a *app) *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "sococv <log.csv>",
		Short: "Count charge and print the OCV anchors",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.config()
			if err != nil {
				return err
			}
			rec, layout, err := a.load(args[0], c)
			if err != nil {
				return err
			}
			prepared, err := segment.Prepare(rec, layout)
			if err != nil {
				return err
			}
			soc, err := ecm.NewSocEstimator(c.Battery.ToModelParams()).Estimate(prepared.Current, prepared.Time)
			if err != nil {
				return err
			}
			anchors, err := segment.AnchorIndices(prepared, layout)
			if err != nil {
				return err
			}
			curve, err := ecm.BuildOcvPoints(prepared, soc, anchors)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), report.OcvCurve(curve))
			if outPath != "" {
				return pipeline.WriteOcvCSV(outPath, curve)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "", "write the anchors as CSV")
	return cmd
}

func newCurveFitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "curvefit <log.csv>",
		Short: "Fit the relaxation after every discharge step",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, _, err := a.build(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), report.Fits(r.Fits))
			return nil
		},
	}
}

func newRcTauCmd(a *app) *cobra.Command {
	var outPath, modelPath string

	cmd := &cobra.Command{
		Use:   "rctau <log.csv>",
		Short: "Derive the RC table and save the model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, _, err := a.build(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintln(out, report.RcTable(r.Model.Table()))
			if len(r.Bins) > 0 {
				_, _ = fmt.Fprintln(out, report.Bins(r.Bins))
			}
			if outPath != "" {
				if err := pipeline.WriteRcTableCSV(outPath, r.Model.Table()); err != nil {
					return err
				}
			}
			if modelPath != "" {
				if err := data.SaveModelJSON(r.Model, modelPath); err != nil {
					return err
				}
				a.log.WithField("file", modelPath).Info("model saved")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "", "write the RC table as CSV")
	cmd.Flags().StringVar(&modelPath, "model", "", "save the model as JSON")
	return cmd
}

func newVtCmd(a *app) *cobra.Command {
	var modelPath, ledgerPath string

	cmd := &cobra.Command{
		Use:   "vt <log.csv>",
		Short: "Replay a log through the model and compare terminal voltage",
		Long: "Replays the log's current through the model and reports the voltage error. " +
			"Without --model the model is first built from the same log.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.model(cmd.Context(), modelPath, args[0])
			if err != nil {
				return err
			}
			c, err := a.config()
			if err != nil {
				return err
			}
			rec, layout, err := a.load(args[0], c)
			if err != nil {
				return err
			}
			if modelPath == "" {
				// a model built from this log is compared over its experiment
				if rec, err = segment.Prepare(rec, layout); err != nil {
					return err
				}
			}
			res, err := pipeline.New(a.log).Validate(m, rec)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), report.Quality(res.Quality))
			if ledgerPath != "" {
				return pipeline.WriteLedgerCSV(ledgerPath, res.Ledger)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&modelPath, "model", "", "saved model JSON")
	cmd.Flags().StringVar(&ledgerPath, "ledger", "", "write the per-sample ledger as CSV")
	return cmd
}

func newPackCmd(a *app) *cobra.Command {
	var (
		modelPath, schedule, drivePath, plotPath string
		dt, moduleAh                             float64
		series, parallel, moduleParallel         int
	)

	cmd := &cobra.Command{
		Use:   "pack",
		Short: "Simulate a series-parallel pack of model cells",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.config()
			if err != nil {
				return err
			}
			m, err := data.LoadModelJSON(modelPath)
			if err != nil {
				return err
			}
			if moduleAh > 0 {
				if m, err = pack.CellForModule(m, moduleAh, moduleParallel); err != nil {
					return err
				}
			}

			var p profile.Profile
			switch {
			case drivePath != "":
				rec, _, err := a.load(drivePath, c)
				if err != nil {
					return err
				}
				p = profile.Recorded{Label: filepath.Base(drivePath), Record: rec}
			case schedule != "":
				if p, err = profile.ParseSchedule(schedule); err != nil {
					return err
				}
			default:
				return fmt.Errorf("need --schedule or --drive")
			}
			t, iPack, err := p.Series(dt)
			if err != nil {
				return err
			}

			if series > 0 {
				c.Pack.Series = series
			}
			if parallel > 0 {
				c.Pack.Parallel = parallel
			}
			assembly := c.Pack.Assembly()
			if err := assembly.Validate(); err != nil {
				return err
			}
			z0 := assembly.RandomSOC(c.Pack.SOCMin, c.Pack.SOCMax, c.Pack.Seed)
			res, err := assembly.Simulate(cmd.Context(), m, iPack, t, z0, c.Pack.Options())
			if err != nil {
				return err
			}
			a.log.WithFields(logrus.Fields{"assembly": assembly.String(), "profile": p.Name(), "rows": len(t)}).Info("pack simulated")
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), report.Pack(res))

			if plotPath != "" {
				return savePlot(func() (*plot.Plot, error) { return figure.Pack(res) }, plotPath)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&modelPath, "model", "", "saved cell model JSON (required)")
	f.StringVar(&schedule, "schedule", "", `current schedule, e.g. "-30@360,0@600"`)
	f.StringVar(&drivePath, "drive", "", "replay the current of a logged drive cycle")
	f.StringVar(&plotPath, "plot", "", "save the cell voltages as an image")
	f.Float64Var(&dt, "dt", 1, "schedule sample period [s]")
	f.Float64Var(&moduleAh, "module-ah", 0, "re-target the cell model at a module of this capacity [Ah]")
	f.IntVar(&moduleParallel, "module-parallel", 2, "parallel cells per module for --module-ah")
	f.IntVar(&series, "series", 0, "series stages; overrides the config")
	f.IntVar(&parallel, "parallel", 0, "parallel cells per stage; overrides the config")
	_ = cmd.MarkFlagRequired("model")
	return cmd
}

func newPlotCmd(a *app) *cobra.Command {
	var (
		modelPath, dataPath, schedule, outPath string
		bin                                    int
		dt                                     float64
	)

	cmd := &cobra.Command{
		Use:       "plot <voltage|ocv|relaxation|trace>",
		Short:     "Draw a model figure",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"voltage", "ocv", "relaxation", "trace"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return savePlot(func() (*plot.Plot, error) {
				switch args[0] {
				case "ocv":
					m, err := a.model(ctx, modelPath, dataPath)
					if err != nil {
						return nil, err
					}
					return figure.Ocv(m.Curve())
				case "voltage":
					m, err := a.model(ctx, modelPath, dataPath)
					if err != nil {
						return nil, err
					}
					c, err := a.config()
					if err != nil {
						return nil, err
					}
					rec, _, err := a.load(dataPath, c)
					if err != nil {
						return nil, err
					}
					tr, err := m.Run(rec.Current, rec.Time)
					if err != nil {
						return nil, err
					}
					return figure.Voltage(rec, tr)
				case "relaxation":
					r, _, err := a.build(ctx, dataPath)
					if err != nil {
						return nil, err
					}
					if bin < 0 || bin >= len(r.Fits) {
						return nil, fmt.Errorf("bin %d outside 0..%d", bin, len(r.Fits)-1)
					}
					return figure.Relaxation(r.Record, r.Discharges[bin], r.Fits[bin])
				default:
					m, err := a.model(ctx, modelPath, dataPath)
					if err != nil {
						return nil, err
					}
					s, err := profile.ParseSchedule(schedule)
					if err != nil {
						return nil, err
					}
					tr, err := pipeline.New(a.log).Simulate(m, s, dt, 1)
					if err != nil {
						return nil, err
					}
					return figure.Trace(tr)
				}
			}, outPath)
		},
	}
	f := cmd.Flags()
	f.StringVar(&modelPath, "model", "", "saved model JSON")
	f.StringVar(&dataPath, "data", "", "HPPC log")
	f.StringVar(&schedule, "schedule", "-30@360,0@1200", "current schedule for trace")
	f.StringVar(&outPath, "out", "figure.png", "output image; the extension picks the format")
	f.IntVar(&bin, "bin", 0, "SOC bin for relaxation (0 = 90% SOC)")
	f.Float64Var(&dt, "dt", 1, "schedule sample period [s]")
	return cmd
}

func savePlot(draw func() (*plot.Plot, error), path string) error {
	p, err := draw()
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return figure.Save(p, path)
}

func newSynthCmd(a *app) *cobra.Command {
	var (
		modelPath, outPath string
		groups             int
		noise              float64
		seed               uint64
	)

	cmd := &cobra.Command{
		Use:   "synth",
		Short: "Write a synthetic HPPC log generated by a model",
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := data.LoadModelJSON(modelPath)
			if err != nil {
				return err
			}
			opts := profile.DefaultHPPC(m.Params().CapacityAh)
			opts.Groups = groups
			s, err := profile.HPPC(opts)
			if err != nil {
				return err
			}
			rec, err := profile.Synthesize(m, s, profile.SynthOptions{Dt: 1, NoiseStd: noise, Seed: seed})
			if err != nil {
				return err
			}
			if err := data.SaveTable(outPath, rec, opts.Layout); err != nil {
				return err
			}
			a.log.WithFields(logrus.Fields{"file": outPath, "rows": rec.Len(), "groups": groups}).Info("synthetic log written")
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&modelPath, "model", "", "model JSON that generates the voltage (required)")
	f.StringVar(&outPath, "out", "synthetic_hppc.csv", "output CSV in the cell-hppc layout")
	f.IntVar(&groups, "groups", 9, "pulse/discharge groups")
	f.Float64Var(&noise, "noise", 0, "voltage noise standard deviation [V]")
	f.Uint64Var(&seed, "seed", 1, "noise seed")
	_ = cmd.MarkFlagRequired("model")
	return cmd
}

func newManifestCmd(a *app) *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "manifest <dir>",
		Short: "Scan a directory of test logs and write its dataset manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := data.ScanDir(args[0])
			if err != nil {
				return err
			}
			m.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
			if outPath == "" {
				outPath = filepath.Join(args[0], "manifest.json")
			}
			if err := data.SaveManifest(m, outPath); err != nil {
				return err
			}
			for _, d := range m.Datasets {
				a.log.WithFields(logrus.Fields{"id": d.ID, "layout": d.Layout, "kind": d.Kind}).Debug("dataset")
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "wrote %d datasets to %s\n", len(m.Datasets), outPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "", "manifest path (default <dir>/manifest.json)")
	return cmd
}

