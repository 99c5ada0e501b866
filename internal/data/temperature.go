package data

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// TemperatureCadence is the sampling period of the thermocouple logger [s].
const TemperatureCadence = 3.0

// SecondaryChannel is the thermocouple whose peak marks the end of a
// truncated high-rate discharge (tc2).
const SecondaryChannel = 1

// TemperatureLog is a multi-channel thermocouple log sampled every 3 s.
// Channels are in °C, Time is in seconds from the start of the log.
type TemperatureLog struct {
	Time     []float64
	Channels [][]float64 // tc1..tc4
}

// LoadTemperatureLog reads a headerless tab-separated LVM export. Column 0 is
// the logger's own clock and is ignored; columns 1..4 are thermocouples.
func LoadTemperatureLog(path string) (*TemperatureLog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadTemperatureLog(f, path)
}

func ReadTemperatureLog(r io.Reader, name string) (*TemperatureLog, error) {
	const nch = 4
	log := &TemperatureLog{Channels: make([][]float64, nch)}

	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		fields := strings.Split(text, "\t")
		if len(fields) < nch+1 {
			return nil, &FormatError{Path: name, Line: line, Msg: fmt.Sprintf("want %d tab-separated columns, got %d", nch+1, len(fields))}
		}
		for c := 0; c < nch; c++ {
			x, err := strconv.ParseFloat(strings.TrimSpace(fields[c+1]), 64)
			if err != nil {
				return nil, &FormatError{Path: name, Line: line, Msg: fmt.Sprintf("column %d: %v", c+1, err)}
			}
			log.Channels[c] = append(log.Channels[c], x)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	n := len(log.Channels[0])
	if n == 0 {
		return nil, &FormatError{Path: name, Msg: "no temperature samples"}
	}
	log.Time = make([]float64, n)
	for i := range log.Time {
		log.Time[i] = float64(i) * TemperatureCadence
	}
	return log, nil
}

func (l *TemperatureLog) Len() int { return len(l.Time) }

// NearestIndex returns the sample whose time is closest to t.
func (l *TemperatureLog) NearestIndex(t float64) int {
	best, bestDist := 0, math.Inf(1)
	for i, ti := range l.Time {
		if d := math.Abs(ti - t); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

// Window returns the samples between primary-log times ti and tf with time
// re-based to zero. When both times land on the same sample (3C tests that
// end before the logger catches up) the log is cut at the peak of the
// secondary channel instead.
func (l *TemperatureLog) Window(ti, tf float64) *TemperatureLog {
	id0 := l.NearestIndex(ti)
	id1 := l.NearestIndex(tf)
	if id0 == id1 {
		id0 = 0
		id1 = floats.MaxIdx(l.Channels[SecondaryChannel])
	}
	out := &TemperatureLog{
		Time:     make([]float64, id1-id0+1),
		Channels: make([][]float64, len(l.Channels)),
	}
	for i := range out.Time {
		out.Time[i] = l.Time[id0+i] - l.Time[id0]
	}
	for c, ch := range l.Channels {
		out.Channels[c] = append([]float64(nil), ch[id0:id1+1]...)
	}
	return out
}

// Max, Mean and Min reduce the first three thermocouples sample by sample;
// the fourth sits on the tab and is excluded.
func (l *TemperatureLog) Max() []float64 { return l.reduce(floats.Max) }

func (l *TemperatureLog) Mean() []float64 {
	return l.reduce(func(xs []float64) float64 { return floats.Sum(xs) / float64(len(xs)) })
}

func (l *TemperatureLog) Min() []float64 { return l.reduce(floats.Min) }

func (l *TemperatureLog) reduce(fn func([]float64) float64) []float64 {
	out := make([]float64, l.Len())
	buf := make([]float64, 3)
	for i := range out {
		for c := 0; c < 3; c++ {
			buf[c] = l.Channels[c][i]
		}
		out[i] = fn(buf)
	}
	return out
}

// Kelvin converts a channel from °C to K.
func Kelvin(celsius []float64) []float64 {
	out := make([]float64, len(celsius))
	for i, c := range celsius {
		out[i] = c + 273.15
	}
	return out
}
