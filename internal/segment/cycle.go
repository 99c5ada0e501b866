package segment

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"battery-ecm/internal/model"
)

// Cycle bounds one discharge/charge cycle of a constant-current discharge
// log.
type Cycle struct {
	DischargeStart int `json:"discharge_start"`
	DischargeEnd   int `json:"discharge_end"`
	ChargeStart    int `json:"charge_start"`
	ChargeEnd      int `json:"charge_end"`
}

// Window is a restricted view of a log together with the absolute times of
// its bounds, used to line up a separately sampled temperature log.
type Window struct {
	Record *model.TestRecord
	Ti     float64
	Tf     float64
}

// DischargeCycle locates the first full cycle. 1C logs use markers 2..5;
// logs whose peak current magnitude exceeds highRate (2C and 3C) carry an
// extra conditioning step and use markers 3..6.
func DischargeCycle(rec *model.TestRecord, highRate float64) (Cycle, error) {
	ids := rec.StartStopIndices()
	first := 2
	if highRate > 0 && peakMagnitude(rec.Current) > highRate {
		first = 3
	}
	if len(ids) < first+4 {
		return Cycle{}, &SegmentationError{What: "discharge cycle", Need: first + 4, Have: len(ids)}
	}
	return Cycle{
		DischargeStart: ids[first],
		DischargeEnd:   ids[first+1],
		ChargeStart:    ids[first+2],
		ChargeEnd:      ids[first+3],
	}, nil
}

func peakMagnitude(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return math.Max(floats.Max(xs), -floats.Min(xs))
}

// RestrictToCycle returns the rows from the discharge start through the
// charge start, with time re-based to zero.
func RestrictToCycle(rec *model.TestRecord, layout model.Layout) (*Window, error) {
	c, err := DischargeCycle(rec, layout.HighRateCurrent)
	if err != nil {
		return nil, err
	}
	return window(rec, c.DischargeStart, c.ChargeStart), nil
}

// RestrictToDischarge returns only the discharge rows of the first cycle,
// with time re-based to zero.
func RestrictToDischarge(rec *model.TestRecord, layout model.Layout) (*Window, error) {
	c, err := DischargeCycle(rec, layout.HighRateCurrent)
	if err != nil {
		return nil, err
	}
	return window(rec, c.DischargeStart, c.DischargeEnd), nil
}

func window(rec *model.TestRecord, lo, hi int) *Window {
	return &Window{
		Record: rec.Slice(lo, hi+1).RebaseTime(),
		Ti:     rec.Time[lo],
		Tf:     rec.Time[hi],
	}
}

// TruncateAt keeps the rows up to and including the last sample at or before t.
func TruncateAt(rec *model.TestRecord, t float64) (*model.TestRecord, error) {
	n := 0
	for n < rec.Len() && rec.Time[n] <= t {
		n++
	}
	if n < 2 {
		return nil, fmt.Errorf("truncate at %gs leaves %d rows", t, n)
	}
	return rec.Slice(0, n), nil
}

// Prepare applies the layout's restriction rules to a freshly loaded log:
// the marker window for HPPC logs, the 600-s style cut for drive cycles.
func Prepare(rec *model.TestRecord, layout model.Layout) (*model.TestRecord, error) {
	out, err := RestrictToFirstExperiment(rec, layout)
	if err != nil {
		return nil, err
	}
	if layout.TruncateAt > 0 {
		return TruncateAt(out, layout.TruncateAt)
	}
	return out, nil
}
