package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"battery-ecm/internal/ecm"
	"battery-ecm/internal/model"
	"battery-ecm/internal/pack"
	"battery-ecm/internal/pipeline"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk configuration shape (YAML).
type Config struct {
	// Optional: load cell constants from a separate YAML (e.g. configs/batteries/*.yaml).
	// If both BatteryFile and Battery are provided, Battery overrides BatteryFile.
	BatteryFile string        `yaml:"battery_file"`
	Battery     BatteryConfig `yaml:"battery"`
	Layout      LayoutConfig  `yaml:"layout"`
	Fit         FitConfig     `yaml:"fit"`
	Pack        PackConfig    `yaml:"pack"`
}

type BatteryConfig struct {
	Name                string  `yaml:"name"`
	CapacityAh          float64 `yaml:"capacity_ah"`
	ChargeEfficiency    float64 `yaml:"charge_efficiency"`
	DischargeEfficiency float64 `yaml:"discharge_efficiency"`
	SurfaceAreaM2       float64 `yaml:"surface_area_m2"`
	SpecificHeat        float64 `yaml:"specific_heat"`
	ConvectiveCoeff     float64 `yaml:"convective_coeff"`
	MassKg              float64 `yaml:"mass_kg"`
	AmbientK            float64 `yaml:"ambient_k"`
}

// LayoutConfig names a layout preset and overrides parts of it.
type LayoutConfig struct {
	Preset      string  `yaml:"preset"`
	Stride      int     `yaml:"stride"`
	FirstMarker *int    `yaml:"first_marker"`
	LastMarker  *int    `yaml:"last_marker"`
	TruncateAt  float64 `yaml:"truncate_at"`
}

type FitConfig struct {
	// Kind is "ttc" (two time constants) or "otc".
	Kind string `yaml:"kind"`
	// Seeds is "cell" or "module"; empty picks by layout stride.
	Seeds         string `yaml:"seeds"`
	Workers       int    `yaml:"workers"`
	Strict        bool   `yaml:"strict"`
	MaxIterations int    `yaml:"max_iterations"`
}

type PackConfig struct {
	Series   int `yaml:"series"`
	Parallel int `yaml:"parallel"`
	// Initial cell SOC is drawn uniformly from [SOCMin, SOCMax).
	SOCMin              float64 `yaml:"soc_min"`
	SOCMax              float64 `yaml:"soc_max"`
	Seed                uint64  `yaml:"seed"`
	InitialTemperatureK float64 `yaml:"initial_temperature_k"`
	Workers             int     `yaml:"workers"`
}

func Load(path string) (*Config, error) {
	c, err := LoadUnchecked(path)
	if err != nil {
		return nil, err
	}
	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadUnchecked reads the file and merges its battery file without applying
// defaults or validating, so callers can layer overrides first.
func LoadUnchecked(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, err
	}
	if c.BatteryFile != "" {
		batteryPath := c.BatteryFile
		if !filepath.IsAbs(batteryPath) {
			// relative to the config file first, then to the working directory
			cand := filepath.Join(filepath.Dir(path), batteryPath)
			if _, err := os.Stat(cand); err == nil {
				batteryPath = cand
			}
		}
		loaded, err := LoadBatteryFile(batteryPath)
		if err != nil {
			return nil, err
		}
		c.Battery = MergeBattery(loaded, c.Battery)
	}
	return &c, nil
}

// ApplyDefaults fills the cell bench layout, a two-time-constant fit, the
// bench coulombic efficiencies and a 95-100% initial pack SOC spread.
func (c *Config) ApplyDefaults() {
	if c.Layout.Preset == "" {
		c.Layout.Preset = model.LayoutCellHPPC.Name
	}
	if c.Fit.Kind == "" {
		c.Fit.Kind = ecm.TwoTimeConstant.String()
	}
	if c.Battery.ChargeEfficiency == 0 {
		c.Battery.ChargeEfficiency = 0.98
	}
	if c.Battery.DischargeEfficiency == 0 {
		c.Battery.DischargeEfficiency = 1
	}
	if c.Pack.SOCMin == 0 && c.Pack.SOCMax == 0 {
		c.Pack.SOCMin, c.Pack.SOCMax = 0.95, 1.0
	}
}

func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if err := c.Battery.ToModelParams().Validate(); err != nil {
		return fmt.Errorf("battery config invalid: %w", err)
	}
	if _, err := c.Layout.Resolve(); err != nil {
		return fmt.Errorf("layout config invalid: %w", err)
	}
	if _, err := ecm.ParseFitKind(c.Fit.Kind); err != nil {
		return fmt.Errorf("fit config invalid: %w", err)
	}
	switch strings.ToLower(c.Fit.Seeds) {
	case "", "cell", "module":
	default:
		return fmt.Errorf("fit config invalid: unknown seeds %q", c.Fit.Seeds)
	}
	if err := c.Pack.Validate(); err != nil {
		return fmt.Errorf("pack config invalid: %w", err)
	}
	return nil
}

func (b BatteryConfig) ToModelParams() model.CellParams {
	return model.CellParams{
		CapacityAh:          b.CapacityAh,
		ChargeEfficiency:    b.ChargeEfficiency,
		DischargeEfficiency: b.DischargeEfficiency,
		SurfaceAreaM2:       b.SurfaceAreaM2,
		SpecificHeat:        b.SpecificHeat,
		ConvectiveCoeff:     b.ConvectiveCoeff,
		MassKg:              b.MassKg,
		AmbientK:            b.AmbientK,
	}
}

// Resolve returns the preset with overrides applied.
func (l LayoutConfig) Resolve() (model.Layout, error) {
	layout, err := model.LayoutByName(l.Preset)
	if err != nil {
		return model.Layout{}, err
	}
	if l.Stride != 0 {
		layout.Stride = l.Stride
	}
	if l.FirstMarker != nil {
		layout.FirstMarker = *l.FirstMarker
	}
	if l.LastMarker != nil {
		layout.LastMarker = *l.LastMarker
	}
	if l.TruncateAt != 0 {
		layout.TruncateAt = l.TruncateAt
	}
	if err := layout.Validate(); err != nil {
		return model.Layout{}, err
	}
	return layout, nil
}

// BuildOptions turns the validated config into pipeline options.
func (c *Config) BuildOptions() (pipeline.Options, error) {
	layout, err := c.Layout.Resolve()
	if err != nil {
		return pipeline.Options{}, err
	}
	kind, err := ecm.ParseFitKind(c.Fit.Kind)
	if err != nil {
		return pipeline.Options{}, err
	}
	opts := pipeline.DefaultOptions(layout, c.Battery.ToModelParams())
	opts.Kind = kind
	opts.Workers = c.Fit.Workers
	opts.Strict = c.Fit.Strict
	if c.Fit.MaxIterations > 0 {
		opts.Settings.MaxIterations = c.Fit.MaxIterations
	}
	switch strings.ToLower(c.Fit.Seeds) {
	case "cell":
		opts.Seeds = ecm.CellSeeds
	case "module":
		opts.Seeds = ecm.ModuleSeeds
	}
	return opts, nil
}

// Enabled reports whether a pack assembly is configured.
func (p PackConfig) Enabled() bool { return p.Series > 0 || p.Parallel > 0 }

func (p PackConfig) Assembly() pack.Assembly {
	return pack.Assembly{Series: p.Series, Parallel: p.Parallel}
}

func (p PackConfig) Validate() error {
	if p.Enabled() {
		if err := p.Assembly().Validate(); err != nil {
			return err
		}
	}
	if p.SOCMin < 0 || p.SOCMax > 1 || p.SOCMin >= p.SOCMax {
		return fmt.Errorf("soc range [%g, %g) must lie within [0, 1] and be non-empty", p.SOCMin, p.SOCMax)
	}
	if p.InitialTemperatureK < 0 {
		return errors.New("initial_temperature_k must be >= 0")
	}
	return nil
}

// Options returns the pack simulation options.
func (p PackConfig) Options() pack.Options {
	return pack.Options{InitialTemperature: p.InitialTemperatureK, Workers: p.Workers}
}

type batteryFileWrapper struct {
	Battery BatteryConfig `yaml:"battery"`
}

// LoadBatteryFile reads a YAML file holding a single battery: block.
func LoadBatteryFile(path string) (BatteryConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return BatteryConfig{}, err
	}
	var w batteryFileWrapper
	if err := yaml.Unmarshal(raw, &w); err != nil {
		return BatteryConfig{}, err
	}
	return w.Battery, nil
}

// MergeBattery overlays the non-zero fields of override onto base.
func MergeBattery(base, override BatteryConfig) BatteryConfig {
	out := base
	if override.Name != "" {
		out.Name = override.Name
	}
	if override.CapacityAh != 0 {
		out.CapacityAh = override.CapacityAh
	}
	if override.ChargeEfficiency != 0 {
		out.ChargeEfficiency = override.ChargeEfficiency
	}
	if override.DischargeEfficiency != 0 {
		out.DischargeEfficiency = override.DischargeEfficiency
	}
	if override.SurfaceAreaM2 != 0 {
		out.SurfaceAreaM2 = override.SurfaceAreaM2
	}
	if override.SpecificHeat != 0 {
		out.SpecificHeat = override.SpecificHeat
	}
	if override.ConvectiveCoeff != 0 {
		out.ConvectiveCoeff = override.ConvectiveCoeff
	}
	if override.MassKg != 0 {
		out.MassKg = override.MassKg
	}
	if override.AmbientK != 0 {
		out.AmbientK = override.AmbientK
	}
	return out
}
