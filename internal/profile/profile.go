// Package profile builds current demands for simulation: stepped schedules,
// replayed test logs and synthetic HPPC experiments.
package profile

import (
	"errors"
	"fmt"

	"battery-ecm/internal/model"
)

// Profile is a current demand on a time axis. Current[k] flows over
// (Time[k-1], Time[k]].
type Profile interface {
	Name() string
	Series(dt float64) (time, current []float64, err error)
}

// Recorded replays the current of a logged test.
type Recorded struct {
	Label  string
	Record *model.TestRecord
}

func (r Recorded) Name() string {
	if r.Label == "" {
		return "recorded"
	}
	return r.Label
}

// Series ignores dt and returns copies of the logged axes.
func (r Recorded) Series(float64) ([]float64, []float64, error) {
	if r.Record == nil {
		return nil, nil, errors.New("recorded profile has no record")
	}
	if err := r.Record.Validate(); err != nil {
		return nil, nil, fmt.Errorf("recorded profile %s: %w", r.Name(), err)
	}
	return append([]float64(nil), r.Record.Time...), append([]float64(nil), r.Record.Current...), nil
}
