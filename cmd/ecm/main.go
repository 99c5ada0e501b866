package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"battery-ecm/internal/config"
	"battery-ecm/internal/data"
	"battery-ecm/internal/ecm"
	"battery-ecm/internal/logging"
	"battery-ecm/internal/model"
	"battery-ecm/internal/pipeline"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// app holds the persistent flags shared by every stage.
type app struct {
	configPath  string
	batteryPath string
	layoutName  string
	kind        string
	logLevel    string
	logFormat   string

	log *logrus.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "ecm",
		Short:         "Fit and run equivalent circuit models from HPPC test logs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			a.log = logging.New(a.logLevel, a.logFormat, cmd.ErrOrStderr())
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "run configuration YAML (e.g. configs/cell.yaml)")
	pf.StringVar(&a.batteryPath, "battery", "", "battery YAML; overrides the config's battery_file")
	pf.StringVar(&a.layoutName, "layout", "", "layout preset; overrides the config")
	pf.StringVar(&a.kind, "kind", "", "relaxation model: ttc|otc; overrides the config")
	pf.StringVar(&a.logLevel, "log-level", envOr("LOG_LEVEL", "info"), "debug|info|warn|error")
	pf.StringVar(&a.logFormat, "log-format", "text", "text|json")

	root.AddCommand(
		newViewCmd(a),
		newSocOcvCmd(a),
		newCurveFitCmd(a),
		newRcTauCmd(a),
		newVtCmd(a),
		newPackCmd(a),
		newPlotCmd(a),
		newSynthCmd(a),
		newManifestCmd(a),
	)
	return root
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// config merges the config file with the command-line overrides.
func (a *app) config() (*config.Config, error) {
	c := &config.Config{}
	if a.configPath != "" {
		var err error
		if c, err = config.LoadUnchecked(a.configPath); err != nil {
			return nil, err
		}
	}
	if a.batteryPath != "" {
		b, err := config.LoadBatteryFile(a.batteryPath)
		if err != nil {
			return nil, err
		}
		c.BatteryFile = a.batteryPath
		c.Battery = config.MergeBattery(c.Battery, b)
	}
	if a.layoutName != "" {
		c.Layout.Preset = a.layoutName
	}
	if a.kind != "" {
		c.Fit.Kind = a.kind
	}
	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// load reads a test log with the configured layout.
func (a *app) load(path string, c *config.Config) (*model.TestRecord, model.Layout, error) {
	layout, err := c.Layout.Resolve()
	if err != nil {
		return nil, model.Layout{}, err
	}
	rec, err := data.LoadTable(path, layout)
	if err != nil {
		return nil, model.Layout{}, err
	}
	a.log.WithFields(logrus.Fields{"file": path, "layout": layout.Name, "rows": rec.Len()}).Debug("log loaded")
	return rec, layout, nil
}

// build characterizes the HPPC log at path.
func (a *app) build(ctx context.Context, path string) (*pipeline.BuildReport, *config.Config, error) {
	c, err := a.config()
	if err != nil {
		return nil, nil, err
	}
	rec, _, err := a.load(path, c)
	if err != nil {
		return nil, nil, err
	}
	opts, err := c.BuildOptions()
	if err != nil {
		return nil, nil, err
	}
	report, err := pipeline.New(a.log).Build(ctx, rec, opts)
	if err != nil {
		return nil, nil, err
	}
	for _, e := range report.Skipped {
		a.log.WithError(e).Warn("bin skipped")
	}
	return report, c, nil
}

// model loads a saved model, or builds one from the HPPC log when no model
// file is given.
func (a *app) model(ctx context.Context, modelPath, dataPath string) (*ecm.Model, error) {
	if modelPath != "" {
		return data.LoadModelJSON(modelPath)
	}
	if dataPath == "" {
		return nil, fmt.Errorf("need --model or an HPPC log to build one from")
	}
	report, _, err := a.build(ctx, dataPath)
	if err != nil {
		return nil, err
	}
	return report.Model, nil
}
