package model

import (
	"errors"
	"fmt"
	"sort"
)

// Layout describes how a test log is laid out on disk and how its start/stop
// markers group into HPPC sections. One descriptor replaces per-topology
// loader variants; cell, module and pack logs differ only in these fields.
type Layout struct {
	Name string `yaml:"name" json:"name"`

	// SkipRows is the number of preamble lines before the header row.
	SkipRows      int      `yaml:"skip_rows" json:"skip_rows"`
	TimeColumn    string   `yaml:"time_column" json:"time_column"`
	CurrentColumn string   `yaml:"current_column" json:"current_column"`
	VoltageColumn string   `yaml:"voltage_column" json:"voltage_column"`
	FlagColumn    string   `yaml:"flag_column" json:"flag_column"`
	AuxColumns    []string `yaml:"aux_columns" json:"aux_columns,omitempty"`

	// Stride is the number of start/stop markers per 10% SOC group.
	Stride int `yaml:"stride" json:"stride"`
	// PulseOffset is the marker position of the first pulse start in a group.
	PulseOffset int `yaml:"pulse_offset" json:"pulse_offset"`
	// DischargeOffset is the marker position of the long discharge start in a group.
	DischargeOffset int `yaml:"discharge_offset" json:"discharge_offset"`

	// FirstMarker is the start/stop marker where the experiment begins; earlier
	// rows are priming/setup. Negative keeps the whole log.
	FirstMarker int `yaml:"first_marker" json:"first_marker"`
	// LastMarker, when non-negative, ends the experiment window (inclusive).
	LastMarker int `yaml:"last_marker" json:"last_marker"`
	// RebaseTime re-bases the restricted record so time starts at zero.
	RebaseTime bool `yaml:"rebase_time" json:"rebase_time"`

	// HighRateCurrent switches discharge-cycle marker positions for 2C/3C logs [A].
	HighRateCurrent float64 `yaml:"high_rate_current" json:"high_rate_current,omitempty"`
	// TruncateAt, when > 0, cuts drive-cycle logs at this time [s] (inclusive).
	TruncateAt float64 `yaml:"truncate_at" json:"truncate_at,omitempty"`
}

func (l Layout) Validate() error {
	if l.TimeColumn == "" || l.CurrentColumn == "" || l.VoltageColumn == "" {
		return errors.New("layout needs time, current and voltage columns")
	}
	if l.SkipRows < 0 {
		return errors.New("skip_rows must be >= 0")
	}
	if l.Stride <= 0 {
		return errors.New("stride must be > 0")
	}
	if l.PulseOffset < 0 || l.DischargeOffset < 0 {
		return errors.New("marker offsets must be >= 0")
	}
	if l.LastMarker >= 0 && l.FirstMarker >= 0 && l.LastMarker < l.FirstMarker {
		return fmt.Errorf("last_marker %d precedes first_marker %d", l.LastMarker, l.FirstMarker)
	}
	return nil
}

// Columns lists every column the layout reads.
func (l Layout) Columns() []string {
	cols := []string{l.TimeColumn, l.CurrentColumn, l.VoltageColumn}
	if l.FlagColumn != "" {
		cols = append(cols, l.FlagColumn)
	}
	return append(cols, l.AuxColumns...)
}

// Layout presets for the logs produced by the cell and module test benches.
var (
	LayoutCellHPPC = Layout{
		Name:            "cell-hppc",
		TimeColumn:      "Time(s)",
		CurrentColumn:   "Current(A)",
		VoltageColumn:   "Voltage(V)",
		FlagColumn:      "Data",
		Stride:          5,
		PulseOffset:     0,
		DischargeOffset: 3,
		FirstMarker:     1,
		LastMarker:      -1,
	}

	LayoutModuleHPPC = Layout{
		Name:            "module-hppc",
		SkipRows:        17,
		TimeColumn:      "Total Time",
		CurrentColumn:   "Current",
		VoltageColumn:   "Voltage",
		FlagColumn:      "Data Acquisition Flag",
		AuxColumns:      []string{"Temperature A1"},
		Stride:          6,
		PulseOffset:     0,
		DischargeOffset: 3,
		FirstMarker:     21,
		LastMarker:      76,
	}

	LayoutCellDischarge = Layout{
		Name:            "cell-discharge",
		TimeColumn:      "Time(s)",
		CurrentColumn:   "Current(A)",
		VoltageColumn:   "Voltage(V)",
		FlagColumn:      "Data",
		Stride:          5,
		FirstMarker:     -1,
		LastMarker:      -1,
		RebaseTime:      true,
		HighRateCurrent: 35,
	}

	LayoutPackUS06 = Layout{
		Name:          "pack-us06",
		SkipRows:      17,
		TimeColumn:    "Total Time",
		CurrentColumn: "Current",
		VoltageColumn: "Voltage",
		FlagColumn:    "Data Acquisition Flag",
		AuxColumns:    []string{"Temperature A1", "Temperature A2", "Temperature A3"},
		Stride:        5,
		FirstMarker:   -1,
		LastMarker:    -1,
		TruncateAt:    600,
	}
)

var presets = map[string]Layout{
	LayoutCellHPPC.Name:      LayoutCellHPPC,
	LayoutModuleHPPC.Name:    LayoutModuleHPPC,
	LayoutCellDischarge.Name: LayoutCellDischarge,
	LayoutPackUS06.Name:      LayoutPackUS06,
}

// LayoutByName returns a preset layout.
func LayoutByName(name string) (Layout, error) {
	l, ok := presets[name]
	if !ok {
		return Layout{}, fmt.Errorf("unknown layout %q", name)
	}
	l.AuxColumns = append([]string(nil), l.AuxColumns...)
	return l, nil
}

// Layouts returns all presets sorted by name.
func Layouts() []Layout {
	out := make([]Layout, 0, len(presets))
	for _, l := range presets {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
