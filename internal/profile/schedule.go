package profile

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Step holds one constant current for Duration seconds. Positive current
// charges. A marked step gets a start/stop flag on its boundary row, the
// last row of the step before it, as the cycler logs step changes.
type Step struct {
	Label    string  `yaml:"label" json:"label,omitempty"`
	Current  float64 `yaml:"current" json:"current"`
	Duration float64 `yaml:"duration" json:"duration"`
	Mark     bool    `yaml:"mark" json:"mark,omitempty"`
}

// Schedule is a sequence of constant-current steps.
type Schedule struct {
	Label string `yaml:"label" json:"label"`
	Steps []Step `yaml:"steps" json:"steps"`
}

func (s *Schedule) Name() string {
	if s.Label == "" {
		return "schedule"
	}
	return s.Label
}

func (s *Schedule) Validate() error {
	if len(s.Steps) == 0 {
		return errors.New("schedule has no steps")
	}
	for i, st := range s.Steps {
		if !(st.Duration > 0) {
			return fmt.Errorf("step %d: duration must be > 0", i)
		}
		if math.IsNaN(st.Current) || math.IsInf(st.Current, 0) {
			return fmt.Errorf("step %d: current must be finite", i)
		}
	}
	return nil
}

// Duration is the total schedule length in seconds.
func (s *Schedule) Duration() float64 {
	total := 0.0
	for _, st := range s.Steps {
		total += st.Duration
	}
	return total
}

// Series samples the schedule every dt seconds from t=0. Each step spans
// round(Duration/dt) samples, at least one. Row 0 carries zero current.
func (s *Schedule) Series(dt float64) ([]float64, []float64, error) {
	time, current, _, err := s.sample(dt)
	return time, current, err
}

// Markers returns the boundary row of every marked step for a series
// sampled every dt seconds.
func (s *Schedule) Markers(dt float64) ([]int, error) {
	_, _, marks, err := s.sample(dt)
	return marks, err
}

func (s *Schedule) sample(dt float64) (time, current []float64, marks []int, err error) {
	if !(dt > 0) {
		return nil, nil, nil, fmt.Errorf("time step must be > 0, got %g", dt)
	}
	if err := s.Validate(); err != nil {
		return nil, nil, nil, err
	}

	n := 1
	for _, st := range s.Steps {
		n += samples(st.Duration, dt)
	}
	time = make([]float64, n)
	current = make([]float64, n)
	for k := range time {
		time[k] = float64(k) * dt
	}

	row := 0
	for _, st := range s.Steps {
		if st.Mark {
			marks = append(marks, row)
		}
		m := samples(st.Duration, dt)
		for j := 1; j <= m; j++ {
			current[row+j] = st.Current
		}
		row += m
	}
	return time, current, marks, nil
}

func samples(d, dt float64) int {
	return max(1, int(math.Round(d/dt)))
}

// ParseSchedule reads a compact schedule such as "0@10!,-30@360,0@600!":
// comma separated current@seconds steps, with a trailing "!" marking a step.
func ParseSchedule(text string) (*Schedule, error) {
	s := &Schedule{Label: "custom"}
	for _, part := range strings.Split(text, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		st, err := parseStep(part)
		if err != nil {
			return nil, err
		}
		s.Steps = append(s.Steps, st)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func parseStep(s string) (Step, error) {
	var st Step
	if strings.HasSuffix(s, "!") {
		st.Mark = true
		s = strings.TrimSuffix(s, "!")
	}
	cur, dur, ok := strings.Cut(s, "@")
	if !ok {
		return Step{}, fmt.Errorf("invalid step %q, expected current@seconds", s)
	}
	var err error
	if st.Current, err = strconv.ParseFloat(strings.TrimSpace(cur), 64); err != nil {
		return Step{}, fmt.Errorf("invalid current in %q", s)
	}
	if st.Duration, err = strconv.ParseFloat(strings.TrimSpace(dur), 64); err != nil {
		return Step{}, fmt.Errorf("invalid duration in %q", s)
	}
	return st, nil
}

// Constant is a single step of current i lasting d seconds.
func Constant(i, d float64) *Schedule {
	return &Schedule{Label: "constant", Steps: []Step{{Current: i, Duration: d}}}
}
