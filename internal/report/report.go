// Package report renders models, fits and simulations as terminal tables.
package report

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"battery-ecm/internal/analysis"
	"battery-ecm/internal/ecm"
	"battery-ecm/internal/model"
	"battery-ecm/internal/pack"
	"battery-ecm/internal/thermal"
)

var (
	Sapphire = lipgloss.Color("#74c7ec")
	Surface1 = lipgloss.Color("#45475a")
	Peach    = lipgloss.Color("#fab387")

	Title  = lipgloss.NewStyle().Foreground(Sapphire).Bold(true)
	Header = lipgloss.NewStyle().Foreground(Sapphire).Bold(true).Padding(0, 1)
	Cell   = lipgloss.NewStyle().Padding(0, 1)
	Hot    = lipgloss.NewStyle().Foreground(Peach).Bold(true).Padding(0, 1)
)

func grid(headers []string, rows [][]string, hot func(row int) bool) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Surface1)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return Header
			case hot != nil && hot(row):
				return Hot
			default:
				return Cell
			}
		})
	return t.String()
}

func f(x float64, prec int) string { return strconv.FormatFloat(x, 'f', prec, 64) }

// RcTable renders one row per SOC bin.
func RcTable(t *model.RcTable) string {
	rows := make([][]string, 0, t.Len())
	for _, r := range t.Rows {
		rows = append(rows, []string{
			f(r.SOC, 1), f(r.Tau1, 2), f(r.Tau2, 2),
			f(r.R0*1e3, 4), f(r.R1*1e3, 4), f(r.R2*1e3, 4),
			f(r.C1, 1), f(r.C2, 1),
		})
	}
	return Title.Render("RC parameters") + "\n" +
		grid([]string{"SOC", "τ1 [s]", "τ2 [s]", "r0 [mΩ]", "r1 [mΩ]", "r2 [mΩ]", "C1 [F]", "C2 [F]"}, rows, nil)
}

// OcvCurve renders the OCV anchors.
func OcvCurve(c model.OcvCurve) string {
	rows := make([][]string, 0, c.Len())
	for i := range c.SOC {
		rows = append(rows, []string{strconv.Itoa(i), f(c.SOC[i], 4), f(c.Voltage[i], 4)})
	}
	return Title.Render("OCV anchors") + "\n" + grid([]string{"#", "SOC", "OCV [V]"}, rows, nil)
}

// Fits renders the coefficients of every bin fit; failed bins show their error.
func Fits(fits []ecm.BinFit) string {
	rows := make([][]string, 0, len(fits))
	for _, b := range fits {
		row := []string{strconv.Itoa(b.Bin), f(b.SOC, 1), b.Kind.String()}
		if !b.OK() {
			msg := "no coefficients"
			if b.Err != nil {
				msg = b.Err.Error()
			}
			rows = append(rows, append(row, "failed: "+msg, ""))
			continue
		}
		coeffs := ""
		for i, c := range b.Coeffs {
			if i > 0 {
				coeffs += " "
			}
			coeffs += strconv.FormatFloat(c, 'g', 6, 64)
		}
		rows = append(rows, append(row, coeffs, strconv.FormatFloat(b.Cost, 'e', 3, 64)))
	}
	return Title.Render("Relaxation fits") + "\n" +
		grid([]string{"bin", "SOC", "kind", "coefficients", "cost"}, rows, func(r int) bool { return r >= 0 && r < len(fits) && !fits[r].OK() })
}

// Bins renders bin fit errors worst first, highlighting the worst bin.
func Bins(bins []analysis.BinQuality) string {
	rows := make([][]string, 0, len(bins))
	for _, b := range bins {
		rows = append(rows, []string{
			b.Label, strconv.Itoa(b.Count),
			f(b.RMSE*1e3, 3), f(b.MAE*1e3, 3), f(b.MaxAbs*1e3, 3),
		})
	}
	return Title.Render("Fit error by bin") + "\n" +
		grid([]string{"bin", "n", "rmse [mV]", "mae [mV]", "max [mV]"}, rows, func(r int) bool { return r == 0 })
}

// Quality renders one comparison as a single-row table.
func Quality(q analysis.FitQuality) string {
	return grid(
		[]string{"", "n", "mean [mV]", "rmse [mV]", "mae [mV]", "p95 [mV]", "max [mV]", "at"},
		[][]string{{
			q.Label, strconv.Itoa(q.Count),
			f(q.MeanError*1e3, 3), f(q.RMSE*1e3, 3), f(q.MAE*1e3, 3),
			f(q.P95Abs*1e3, 3), f(q.MaxAbs*1e3, 3), strconv.Itoa(q.MaxAbsIndex),
		}},
		nil,
	)
}

// Pack summarizes the final state of every cell of a pack simulation.
func Pack(res *pack.Result) string {
	n := len(res.Time)
	rows := make([][]string, 0, len(res.Cells))
	for _, c := range res.Cells {
		row := []string{
			fmt.Sprintf("%d/%d", c.Series, c.Parallel),
			f(c.Z0, 4), "", "", "",
		}
		if n > 0 {
			row[2] = f(c.Trace.SOC[n-1], 4)
			row[3] = f(c.Trace.Voltage[n-1], 4)
		}
		if c.Thermal != nil && n > 0 {
			row[4] = f(thermal.Celsius(c.Thermal.Temperature)[n-1], 2)
		}
		rows = append(rows, row)
	}
	title := fmt.Sprintf("%s pack", res.Assembly)
	if n > 0 {
		title += fmt.Sprintf(", %.4f V at %.0f s", res.Voltage[n-1], res.Time[n-1])
	}
	return Title.Render(title) + "\n" +
		grid([]string{"cell", "z0", "soc", "vt [V]", "T [°C]"}, rows, nil)
}
