package model

import (
	"errors"
	"fmt"
)

// OcvCurve holds the open-circuit voltage anchor points taken from a test,
// ordered by decreasing SOC (100% first, fully discharged last).
type OcvCurve struct {
	SOC     []float64 `json:"soc"`
	Voltage []float64 `json:"voltage"`
	Current []float64 `json:"current,omitempty"`
	Time    []float64 `json:"time,omitempty"`
}

func (c OcvCurve) Len() int { return len(c.SOC) }

// Validate checks lengths and that SOC never increases along the curve.
func (c OcvCurve) Validate() error {
	n := len(c.SOC)
	if n < 2 {
		return errors.New("ocv curve needs at least 2 points")
	}
	if len(c.Voltage) != n {
		return fmt.Errorf("ocv curve has %d voltages for %d soc points", len(c.Voltage), n)
	}
	if c.Current != nil && len(c.Current) != n {
		return fmt.Errorf("ocv curve has %d currents for %d soc points", len(c.Current), n)
	}
	if c.Time != nil && len(c.Time) != n {
		return fmt.Errorf("ocv curve has %d times for %d soc points", len(c.Time), n)
	}
	for k := 1; k < n; k++ {
		if c.SOC[k] >= c.SOC[k-1] {
			return fmt.Errorf("ocv curve soc not decreasing at point %d (%g after %g)", k, c.SOC[k], c.SOC[k-1])
		}
	}
	return nil
}

// Ascending returns copies of the SOC and voltage points reversed into
// increasing SOC order.
func (c OcvCurve) Ascending() (soc, voltage []float64) {
	n := len(c.SOC)
	soc = make([]float64, n)
	voltage = make([]float64, n)
	for i := 0; i < n; i++ {
		soc[i] = c.SOC[n-1-i]
		voltage[i] = c.Voltage[n-1-i]
	}
	return soc, voltage
}
