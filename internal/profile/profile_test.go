package profile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"battery-ecm/internal/ecm"
	"battery-ecm/internal/model"
	"battery-ecm/internal/segment"
)

func TestScheduleSeries(t *testing.T) {
	s := &Schedule{Steps: []Step{
		{Current: 0, Duration: 2, Mark: true},
		{Current: -5, Duration: 3, Mark: true},
		{Current: 1, Duration: 1},
	}}
	time, current, err := s.Series(1)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1, 2, 3, 4, 5, 6}, time)
	assert.Equal(t, []float64{0, 0, 0, -5, -5, -5, 1}, current)

	marks, err := s.Markers(1)
	require.NoError(t, err)
	// the step change row still carries the outgoing current
	assert.Equal(t, []int{0, 2}, marks)
	assert.Equal(t, 6.0, s.Duration())
}

func TestScheduleRejectsBadInput(t *testing.T) {
	_, _, err := (&Schedule{}).Series(1)
	assert.Error(t, err)
	_, _, err = Constant(1, 10).Series(0)
	assert.Error(t, err)
	_, _, err = Constant(1, -1).Series(1)
	assert.Error(t, err)
}

func TestParseSchedule(t *testing.T) {
	s, err := ParseSchedule("0@10!, -30@360 ,0@600!")
	require.NoError(t, err)
	require.Len(t, s.Steps, 3)
	assert.Equal(t, Step{Current: 0, Duration: 10, Mark: true}, s.Steps[0])
	assert.Equal(t, Step{Current: -30, Duration: 360}, s.Steps[1])
	assert.True(t, s.Steps[2].Mark)

	for _, bad := range []string{"", "30", "x@10", "1@y", "1@0"} {
		_, err := ParseSchedule(bad)
		assert.Error(t, err, bad)
	}
}

func TestRecordedProfile(t *testing.T) {
	rec := &model.TestRecord{
		Time:    []float64{0, 1},
		Current: []float64{0, -2},
		Voltage: []float64{4, 3.9},
		Flags:   []model.Flag{model.FlagNone, model.FlagNone},
	}
	var p Profile = Recorded{Record: rec}
	assert.Equal(t, "recorded", p.Name())
	time, current, err := p.Series(0)
	require.NoError(t, err)
	assert.Equal(t, rec.Time, time)
	current[1] = 7
	assert.Equal(t, -2.0, rec.Current[1])

	_, _, err = Recorded{}.Series(1)
	assert.Error(t, err)
}

func testModel(t *testing.T) *ecm.Model {
	t.Helper()
	m, err := ecm.NewModel(
		model.CellParams{CapacityAh: 30, ChargeEfficiency: 0.98, DischargeEfficiency: 1},
		model.OcvCurve{SOC: []float64{1, 0.5, 0}, Voltage: []float64{4.2, 3.7, 3.0}},
		model.Uniform(model.RcRow{Tau1: 20, Tau2: 400, R0: 0.002, R1: 0.001, R2: 0.0015}),
	)
	require.NoError(t, err)
	return m
}

func TestSynthesizeHPPCSegments(t *testing.T) {
	opts := DefaultHPPC(30)
	opts.Groups = 3
	s, err := HPPC(opts)
	require.NoError(t, err)

	rec, err := Synthesize(testModel(t), s, SynthOptions{Dt: 1})
	require.NoError(t, err)
	require.NoError(t, rec.Validate())
	assert.Len(t, rec.StartStopIndices(), 1+5*3+1)
	assert.Equal(t, []int{rec.Len() - 1}, rec.QuitIndices())

	exp, err := segment.Prepare(rec, opts.Layout)
	require.NoError(t, err)
	assert.Len(t, segment.PulseIndices(exp, opts.Layout), 3)
	discharges := segment.DischargeIndices(exp, opts.Layout)
	require.Len(t, discharges, 3)

	g := discharges[0]
	assert.Equal(t, 0.0, exp.Current[g.Start])
	assert.Equal(t, -30.0, exp.Current[g.AfterStart])
	assert.Equal(t, -30.0, exp.Current[g.End])
	assert.Equal(t, 0.0, exp.Current[g.AfterEnd])
	assert.InDelta(t, 360, exp.Time[g.End]-exp.Time[g.Start], 1e-9)
	assert.InDelta(t, 1200, exp.Time[g.RestEnd]-exp.Time[g.End], 1e-9)
}

func TestSynthesizeStrideSix(t *testing.T) {
	layout := model.LayoutCellHPPC
	layout.Stride = 6
	opts := DefaultHPPC(30)
	opts.Groups = 2
	opts.Layout = layout
	s, err := HPPC(opts)
	require.NoError(t, err)

	rec, err := Synthesize(testModel(t), s, SynthOptions{})
	require.NoError(t, err)
	exp, err := segment.Prepare(rec, layout)
	require.NoError(t, err)
	assert.Len(t, segment.DischargeIndices(exp, layout), 2)
	assert.Len(t, segment.PulseIndices(exp, layout), 2)
}

func TestSynthesizeNoise(t *testing.T) {
	s := Constant(-10, 100)
	m := testModel(t)
	clean, err := Synthesize(m, s, SynthOptions{Dt: 1})
	require.NoError(t, err)
	noisy, err := Synthesize(m, s, SynthOptions{Dt: 1, NoiseStd: 1e-3, Seed: 3})
	require.NoError(t, err)
	again, err := Synthesize(m, s, SynthOptions{Dt: 1, NoiseStd: 1e-3, Seed: 3})
	require.NoError(t, err)

	assert.NotEqual(t, clean.Voltage, noisy.Voltage)
	assert.Equal(t, noisy.Voltage, again.Voltage)
	for k := range clean.Voltage {
		assert.InDelta(t, clean.Voltage[k], noisy.Voltage[k], 0.01)
	}
}

func TestHPPCValidate(t *testing.T) {
	opts := DefaultHPPC(30)
	opts.Groups = 0
	_, err := HPPC(opts)
	assert.Error(t, err)

	opts = DefaultHPPC(30)
	opts.Layout = model.LayoutPackUS06
	opts.Layout.DischargeOffset = 0
	_, err = HPPC(opts)
	assert.Error(t, err)
}
