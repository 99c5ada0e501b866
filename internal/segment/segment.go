// Package segment turns the sparse start/stop markers of an HPPC or
// discharge log into the index groups used for OCV extraction, curve
// fitting and RC derivation. Everything here is index arithmetic over an
// immutable record; restricted views are produced by copying.
package segment

import (
	"fmt"

	"battery-ecm/internal/model"
)

// SegmentationError reports a log with fewer start/stop markers than a
// section needs.
type SegmentationError struct {
	What string
	Need int
	Have int
}

func (e *SegmentationError) Error() string {
	return fmt.Sprintf("segmentation: %s needs %d start/stop markers, found %d", e.What, e.Need, e.Have)
}

// Group is one five-index section of a log.
//
//	Start      first row of the pulse or constant discharge
//	AfterStart Start+1, the first row carrying the new current
//	End        last row of the pulse or discharge
//	AfterEnd   End+1, the first rest row
//	RestEnd    last row of the following rest period
type Group struct {
	Start      int `json:"start"`
	AfterStart int `json:"after_start"`
	End        int `json:"end"`
	AfterEnd   int `json:"after_end"`
	RestEnd    int `json:"rest_end"`
}

// IndexSet is an ordered list of groups, one per 10% SOC section.
type IndexSet []Group

// Starts returns the Start index of every group.
func (s IndexSet) Starts() []int {
	out := make([]int, len(s))
	for k, g := range s {
		out[k] = g.Start
	}
	return out
}

// RestrictToFirstExperiment drops the priming rows before the layout's first
// experiment marker. With the marker window set, rows after LastMarker are
// dropped too. Layouts with a negative FirstMarker return a copy of rec.
func RestrictToFirstExperiment(rec *model.TestRecord, layout model.Layout) (*model.TestRecord, error) {
	ids := rec.StartStopIndices()
	lo, hi := 0, rec.Len()
	if layout.FirstMarker >= 0 {
		if len(ids) <= layout.FirstMarker {
			return nil, &SegmentationError{What: "experiment start", Need: layout.FirstMarker + 1, Have: len(ids)}
		}
		lo = ids[layout.FirstMarker]
	}
	if layout.LastMarker >= 0 {
		if len(ids) <= layout.LastMarker {
			return nil, &SegmentationError{What: "experiment end", Need: layout.LastMarker + 1, Have: len(ids)}
		}
		hi = ids[layout.LastMarker] + 1
	}
	out := rec.Slice(lo, hi)
	if layout.RebaseTime {
		out = out.RebaseTime()
	}
	return out, nil
}

// PulseIndices returns one group per short HPPC pulse. Group k uses markers
// off+k*stride, off+1+k*stride and off+2+k*stride as pulse start, pulse end
// and rest end. Groups whose markers run past the list are dropped, so a
// log with less than one full group returns an empty set.
func PulseIndices(rec *model.TestRecord, layout model.Layout) IndexSet {
	return groups(rec, layout.Stride, layout.PulseOffset)
}

// DischargeIndices returns one group per long constant-current discharge and
// its rest, found at marker offset DischargeOffset with the same stride.
func DischargeIndices(rec *model.TestRecord, layout model.Layout) IndexSet {
	return groups(rec, layout.Stride, layout.DischargeOffset)
}

func groups(rec *model.TestRecord, stride, off int) IndexSet {
	ids := rec.StartStopIndices()
	var out IndexSet
	for m := off; m+2 < len(ids); m += stride {
		out = append(out, Group{
			Start:      ids[m],
			AfterStart: ids[m] + 1,
			End:        ids[m+1],
			AfterEnd:   ids[m+1] + 1,
			RestEnd:    ids[m+2],
		})
	}
	return out
}

// RequirePulses is PulseIndices that fails when no complete group exists.
func RequirePulses(rec *model.TestRecord, layout model.Layout) (IndexSet, error) {
	set := PulseIndices(rec, layout)
	if len(set) == 0 {
		return nil, &SegmentationError{What: "pulse section", Need: layout.PulseOffset + 3, Have: len(rec.StartStopIndices())}
	}
	return set, nil
}

// RequireDischarges is DischargeIndices that fails when no complete group exists.
func RequireDischarges(rec *model.TestRecord, layout model.Layout) (IndexSet, error) {
	set := DischargeIndices(rec, layout)
	if len(set) == 0 {
		return nil, &SegmentationError{What: "discharge section", Need: layout.DischargeOffset + 3, Have: len(rec.StartStopIndices())}
	}
	return set, nil
}

// AnchorIndices returns the rows used as OCV anchors: every stride-th marker
// from the pulse offset, including the start of a trailing partial group,
// followed by the final row of the record.
func AnchorIndices(rec *model.TestRecord, layout model.Layout) ([]int, error) {
	ids := rec.StartStopIndices()
	var out []int
	for m := layout.PulseOffset; m < len(ids); m += layout.Stride {
		out = append(out, ids[m])
	}
	if len(out) == 0 {
		return nil, &SegmentationError{What: "ocv anchors", Need: layout.PulseOffset + 1, Have: len(ids)}
	}
	last := rec.Len() - 1
	if out[len(out)-1] != last {
		out = append(out, last)
	}
	return out, nil
}
