package model

import (
	"errors"
	"fmt"
)

// TestRecord is one logged test file: time [s], current [A], voltage [V] and
// sparse event flags, one entry per row.
//
// Current sign convention: positive current charges the battery, negative
// current discharges it.
//
// A TestRecord is treated as immutable once loaded. Derived views are built
// with Slice or RebaseTime, which copy.
type TestRecord struct {
	Time    []float64
	Current []float64
	Voltage []float64
	Flags   []Flag

	// Channels holds optional auxiliary columns (e.g. module thermocouples)
	// sliced in lock step with the main columns.
	Channels map[string][]float64
}

func (r *TestRecord) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Time)
}

// Validate checks column lengths and that time is strictly increasing.
func (r *TestRecord) Validate() error {
	if r == nil {
		return errors.New("record is nil")
	}
	n := len(r.Time)
	if n == 0 {
		return errors.New("record is empty")
	}
	if len(r.Current) != n || len(r.Voltage) != n || len(r.Flags) != n {
		return fmt.Errorf("column lengths differ: time=%d current=%d voltage=%d flags=%d",
			n, len(r.Current), len(r.Voltage), len(r.Flags))
	}
	for name, ch := range r.Channels {
		if len(ch) != n {
			return fmt.Errorf("channel %q has %d rows, want %d", name, len(ch), n)
		}
	}
	for k := 1; k < n; k++ {
		if r.Time[k] <= r.Time[k-1] {
			return fmt.Errorf("time not strictly increasing at row %d (%g after %g)", k, r.Time[k], r.Time[k-1])
		}
	}
	return nil
}

// IndicesOf returns the row indices carrying flag f, in order.
func (r *TestRecord) IndicesOf(f Flag) []int {
	var out []int
	for i, fl := range r.Flags {
		if fl == f {
			out = append(out, i)
		}
	}
	return out
}

// StartStopIndices returns the rows flagged with the start/stop marker.
func (r *TestRecord) StartStopIndices() []int { return r.IndicesOf(FlagStartStop) }

// QuitIndices returns the rows flagged with the quit marker.
func (r *TestRecord) QuitIndices() []int { return r.IndicesOf(FlagQuit) }

// Slice returns a copy of rows [i, j).
func (r *TestRecord) Slice(i, j int) *TestRecord {
	out := &TestRecord{
		Time:    append([]float64(nil), r.Time[i:j]...),
		Current: append([]float64(nil), r.Current[i:j]...),
		Voltage: append([]float64(nil), r.Voltage[i:j]...),
		Flags:   append([]Flag(nil), r.Flags[i:j]...),
	}
	if len(r.Channels) > 0 {
		out.Channels = make(map[string][]float64, len(r.Channels))
		for name, ch := range r.Channels {
			out.Channels[name] = append([]float64(nil), ch[i:j]...)
		}
	}
	return out
}

// RebaseTime returns a copy whose time axis starts at zero.
func (r *TestRecord) RebaseTime() *TestRecord {
	out := r.Slice(0, r.Len())
	if out.Len() == 0 {
		return out
	}
	t0 := out.Time[0]
	for i := range out.Time {
		out.Time[i] -= t0
	}
	return out
}

// Duration is the elapsed time covered by the record [s].
func (r *TestRecord) Duration() float64 {
	if r.Len() == 0 {
		return 0
	}
	return r.Time[len(r.Time)-1] - r.Time[0]
}
