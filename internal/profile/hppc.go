package profile

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"battery-ecm/internal/ecm"
	"battery-ecm/internal/model"
)

// HPPCOptions shape a synthetic hybrid pulse power characterization test.
// Currents are magnitudes in amperes, durations in seconds.
type HPPCOptions struct {
	CapacityAh       float64 `yaml:"capacity_ah" json:"capacity_ah"`
	PulseCurrent     float64 `yaml:"pulse_current" json:"pulse_current"`
	PulseSeconds     float64 `yaml:"pulse_seconds" json:"pulse_seconds"`
	ChargeRatio      float64 `yaml:"charge_ratio" json:"charge_ratio"`
	RestSeconds      float64 `yaml:"rest_seconds" json:"rest_seconds"`
	DischargeCurrent float64 `yaml:"discharge_current" json:"discharge_current"`
	RelaxSeconds     float64 `yaml:"relax_seconds" json:"relax_seconds"`
	Groups           int     `yaml:"groups" json:"groups"`

	// Layout decides the priming markers and the markers per group.
	Layout model.Layout `yaml:"-" json:"-"`
}

// DefaultHPPC is a 1C test of nine 10% SOC groups in the cell bench layout.
func DefaultHPPC(capacityAh float64) HPPCOptions {
	return HPPCOptions{
		CapacityAh:       capacityAh,
		PulseCurrent:     capacityAh,
		PulseSeconds:     10,
		ChargeRatio:      0.75,
		RestSeconds:      40,
		DischargeCurrent: capacityAh,
		RelaxSeconds:     1200,
		Groups:           9,
		Layout:           model.LayoutCellHPPC,
	}
}

func (o HPPCOptions) Validate() error {
	if !(o.CapacityAh > 0) || !(o.PulseCurrent > 0) || !(o.DischargeCurrent > 0) {
		return fmt.Errorf("hppc: capacity and currents must be > 0")
	}
	if !(o.PulseSeconds > 0) || !(o.RestSeconds > 0) || !(o.RelaxSeconds > 0) {
		return fmt.Errorf("hppc: durations must be > 0")
	}
	if o.Groups <= 0 {
		return fmt.Errorf("hppc: groups must be > 0, got %d", o.Groups)
	}
	l := o.Layout
	if l.Stride < 5 || l.PulseOffset != 0 || l.DischargeOffset != 3 {
		return fmt.Errorf("hppc: layout %q needs stride >= 5 with pulse offset 0 and discharge offset 3", l.Name)
	}
	return nil
}

// HPPC builds the step schedule. Each group is a discharge pulse, rest,
// charge pulse, rest, a discharge of 10% capacity and a long relaxation,
// followed by any extra marked rests the layout's stride calls for. A
// closing pulse gives the final OCV anchor.
func HPPC(o HPPCOptions) (*Schedule, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}
	s := &Schedule{Label: "hppc"}
	for i := 0; i < o.Layout.FirstMarker; i++ {
		s.Steps = append(s.Steps, Step{Label: "priming", Duration: 10, Mark: true})
	}

	ip := o.PulseCurrent
	discharge := 0.1 * o.CapacityAh * 3600 / o.DischargeCurrent
	for g := 0; g < o.Groups; g++ {
		s.Steps = append(s.Steps,
			Step{Label: "pulse discharge", Current: -ip, Duration: o.PulseSeconds, Mark: true},
			Step{Label: "pulse rest", Duration: o.RestSeconds, Mark: true},
			Step{Label: "pulse charge", Current: o.ChargeRatio * ip, Duration: o.PulseSeconds, Mark: true},
			Step{Label: "charge rest", Duration: o.RestSeconds},
			Step{Label: "discharge", Current: -o.DischargeCurrent, Duration: discharge, Mark: true},
			Step{Label: "relax", Duration: o.RelaxSeconds, Mark: true},
		)
		for i := 5; i < o.Layout.Stride; i++ {
			s.Steps = append(s.Steps, Step{Label: "hold", Duration: 10, Mark: true})
		}
	}
	s.Steps = append(s.Steps,
		Step{Label: "pulse discharge", Current: -ip, Duration: o.PulseSeconds, Mark: true},
		Step{Label: "pulse rest", Duration: o.RestSeconds},
	)
	return s, nil
}

// SynthOptions control how a schedule becomes a test log.
type SynthOptions struct {
	Dt float64
	// NoiseStd adds zero-mean Gaussian noise to the voltage column [V].
	NoiseStd float64
	Seed     uint64
}

// Synthesize runs a schedule through a model and returns the log a cycler
// would have written: marked step boundaries and a quit flag on the last row.
func Synthesize(m *ecm.Model, s *Schedule, opts SynthOptions) (*model.TestRecord, error) {
	if m == nil {
		return nil, fmt.Errorf("synthesize: model is nil")
	}
	dt := opts.Dt
	if dt == 0 {
		dt = 1
	}
	time, current, err := s.Series(dt)
	if err != nil {
		return nil, err
	}
	marks, err := s.Markers(dt)
	if err != nil {
		return nil, err
	}
	tr, err := m.Run(current, time)
	if err != nil {
		return nil, fmt.Errorf("synthesize %s: %w", s.Name(), err)
	}

	rec := &model.TestRecord{
		Time:    time,
		Current: current,
		Voltage: tr.Voltage,
		Flags:   make([]model.Flag, len(time)),
	}
	for _, k := range marks {
		rec.Flags[k] = model.FlagStartStop
	}
	rec.Flags[len(time)-1] = model.FlagQuit

	if opts.NoiseStd > 0 {
		noise := distuv.Normal{Mu: 0, Sigma: opts.NoiseStd, Src: rand.NewPCG(opts.Seed, opts.Seed^0x2545f4914f6cdd1d)}
		for k := range rec.Voltage {
			rec.Voltage[k] += noise.Rand()
		}
	}
	return rec, nil
}
