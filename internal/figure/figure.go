// Package figure draws model figures with gonum/plot: measured against
// simulated voltage, the OCV curve, relaxation fits and pack traces.
package figure

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"battery-ecm/internal/ecm"
	"battery-ecm/internal/model"
	"battery-ecm/internal/pack"
	"battery-ecm/internal/segment"
	"battery-ecm/internal/thermal"
)

// Default figure size.
const (
	Width  = 8 * vg.Inch
	Height = 4 * vg.Inch
)

func xy(x, y []float64) plotter.XYs {
	pts := make(plotter.XYs, len(x))
	for i := range x {
		pts[i].X = x[i]
		pts[i].Y = y[i]
	}
	return pts
}

func newPlot(title, x, y string) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = x
	p.Y.Label.Text = y
	p.Add(plotter.NewGrid())
	p.Legend.Top = true
	return p
}

func addLine(p *plot.Plot, name string, i int, x, y []float64) error {
	if len(x) != len(y) {
		return fmt.Errorf("plot %s: %d x values for %d y values", name, len(x), len(y))
	}
	l, err := plotter.NewLine(xy(x, y))
	if err != nil {
		return fmt.Errorf("plot %s: %w", name, err)
	}
	l.Color = plotutil.Color(i)
	l.Dashes = plotutil.Dashes(0)
	p.Add(l)
	if name != "" {
		p.Legend.Add(name, l)
	}
	return nil
}

func addPoints(p *plot.Plot, name string, i int, x, y []float64) error {
	s, err := plotter.NewScatter(xy(x, y))
	if err != nil {
		return fmt.Errorf("plot %s: %w", name, err)
	}
	s.Color = plotutil.Color(i)
	s.Shape = plotutil.Shape(i)
	p.Add(s)
	if name != "" {
		p.Legend.Add(name, s)
	}
	return nil
}

// Voltage compares measured and simulated terminal voltage.
func Voltage(rec *model.TestRecord, tr *ecm.Trace) (*plot.Plot, error) {
	if rec.Len() != tr.Len() {
		return nil, fmt.Errorf("plot voltage: %d measured samples for %d simulated", rec.Len(), tr.Len())
	}
	p := newPlot("Terminal voltage", "Time [s]", "Voltage [V]")
	if err := addLine(p, "data", 0, rec.Time, rec.Voltage); err != nil {
		return nil, err
	}
	if err := addLine(p, "ecm", 1, tr.Time, tr.Voltage); err != nil {
		return nil, err
	}
	return p, nil
}

// Trace draws a simulated voltage and its OCV.
func Trace(tr *ecm.Trace) (*plot.Plot, error) {
	p := newPlot("Simulated voltage", "Time [s]", "Voltage [V]")
	if err := addLine(p, "vt", 0, tr.Time, tr.Voltage); err != nil {
		return nil, err
	}
	if err := addLine(p, "ocv", 1, tr.Time, tr.OCV); err != nil {
		return nil, err
	}
	return p, nil
}

// Ocv draws the anchors over the interpolated curve.
func Ocv(curve model.OcvCurve) (*plot.Plot, error) {
	interp, err := ecm.NewOcvInterpolator(curve)
	if err != nil {
		return nil, err
	}
	const n = 101
	z := make([]float64, n)
	lo, hi := interp.Range()
	for i := range z {
		z[i] = lo + (hi-lo)*float64(i)/(n-1)
	}
	p := newPlot("Open circuit voltage", "SOC [-]", "OCV [V]")
	if err := addLine(p, "interpolated", 0, z, interp.Interpolate(z)); err != nil {
		return nil, err
	}
	if err := addPoints(p, "anchors", 1, curve.SOC, curve.Voltage); err != nil {
		return nil, err
	}
	return p, nil
}

// Relaxation draws one bin's rest voltage with its fitted curve.
func Relaxation(rec *model.TestRecord, g segment.Group, b ecm.BinFit) (*plot.Plot, error) {
	if !b.OK() {
		return nil, fmt.Errorf("plot relaxation: bin %d has no fit", b.Bin)
	}
	if g.End < 0 || g.RestEnd >= rec.Len() || g.RestEnd <= g.End {
		return nil, errors.New("plot relaxation: group outside record")
	}
	t0 := rec.Time[g.End]
	t := make([]float64, 0, g.RestEnd-g.End+1)
	for i := g.End; i <= g.RestEnd; i++ {
		t = append(t, rec.Time[i]-t0)
	}
	fitted := make([]float64, len(t))
	for i, ti := range t {
		fitted[i] = b.Kind.Eval(ti, b.Coeffs)
	}
	p := newPlot(fmt.Sprintf("Relaxation, %.0f%% SOC", b.SOC*100), "Time [s]", "Voltage [V]")
	if err := addPoints(p, "data", 0, t, rec.Voltage[g.End:g.RestEnd+1]); err != nil {
		return nil, err
	}
	if err := addLine(p, b.Kind.String(), 1, t, fitted); err != nil {
		return nil, err
	}
	return p, nil
}

// Pack draws every cell voltage of a pack simulation.
func Pack(res *pack.Result) (*plot.Plot, error) {
	p := newPlot(fmt.Sprintf("%s cell voltage", res.Assembly), "Time [s]", "Voltage [V]")
	for i, c := range res.Cells {
		if err := addLine(p, fmt.Sprintf("cell %d/%d", c.Series, c.Parallel), i, c.Trace.Time, c.Trace.Voltage); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Temperature draws every cell temperature of a pack simulation in °C.
func Temperature(res *pack.Result) (*plot.Plot, error) {
	p := newPlot(fmt.Sprintf("%s cell temperature", res.Assembly), "Time [s]", "Temperature [°C]")
	drawn := 0
	for i, c := range res.Cells {
		if c.Thermal == nil {
			continue
		}
		if err := addLine(p, fmt.Sprintf("cell %d/%d", c.Series, c.Parallel), i, c.Trace.Time, thermal.Celsius(c.Thermal.Temperature)); err != nil {
			return nil, err
		}
		drawn++
	}
	if drawn == 0 {
		return nil, errors.New("plot temperature: no cell carries a thermal result")
	}
	return p, nil
}

// Save writes p to path; the extension picks the format (png, svg, pdf).
func Save(p *plot.Plot, path string) error {
	return p.Save(Width, Height, path)
}

// Render writes p in format to w.
func Render(p *plot.Plot, format string, w io.Writer) error {
	wt, err := p.WriterTo(Width, Height, strings.ToLower(format))
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}

// Format returns the image format for a file name.
func Format(path string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}
