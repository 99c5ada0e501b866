package data

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"battery-ecm/internal/model"
)

// FormatError reports a malformed or short test log.
type FormatError struct {
	Path string
	Line int // 1-based line in the file, 0 when not tied to a line
	Msg  string
}

func (e *FormatError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.Path, e.Line, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Msg)
}

// LoadTable reads a delimited test log and maps the layout's named columns
// onto a TestRecord. Blank flag cells mean no event.
func LoadTable(path string, layout model.Layout) (*model.TestRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadTable(f, path, layout)
}

// ReadTable is LoadTable over an already-open reader; name is used in errors.
func ReadTable(r io.Reader, name string, layout model.Layout) (*model.TestRecord, error) {
	if err := layout.Validate(); err != nil {
		return nil, &FormatError{Path: name, Msg: err.Error()}
	}

	br := bufio.NewReader(r)
	for i := 0; i < layout.SkipRows; i++ {
		if _, err := br.ReadString('\n'); err != nil {
			return nil, &FormatError{Path: name, Line: i + 1, Msg: "file ends inside preamble"}
		}
	}

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, &FormatError{Path: name, Line: layout.SkipRows + 1, Msg: "missing header row"}
	}
	pos := map[string]int{}
	for i, h := range header {
		pos[strings.TrimSpace(h)] = i
	}
	for _, col := range layout.Columns() {
		if _, ok := pos[col]; !ok {
			return nil, &FormatError{Path: name, Line: layout.SkipRows + 1, Msg: fmt.Sprintf("missing required column %q", col)}
		}
	}

	rec := &model.TestRecord{}
	if len(layout.AuxColumns) > 0 {
		rec.Channels = make(map[string][]float64, len(layout.AuxColumns))
	}

	line := layout.SkipRows + 1
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, &FormatError{Path: name, Line: line, Msg: err.Error()}
		}
		if isBlank(row) {
			continue
		}

		t, err := cell(row, pos[layout.TimeColumn])
		if err != nil {
			return nil, &FormatError{Path: name, Line: line, Msg: fmt.Sprintf("%s: %v", layout.TimeColumn, err)}
		}
		i, err := cell(row, pos[layout.CurrentColumn])
		if err != nil {
			return nil, &FormatError{Path: name, Line: line, Msg: fmt.Sprintf("%s: %v", layout.CurrentColumn, err)}
		}
		v, err := cell(row, pos[layout.VoltageColumn])
		if err != nil {
			return nil, &FormatError{Path: name, Line: line, Msg: fmt.Sprintf("%s: %v", layout.VoltageColumn, err)}
		}
		flag := model.FlagNone
		if layout.FlagColumn != "" {
			if p := pos[layout.FlagColumn]; p < len(row) {
				flag = model.FlagFromCell(row[p])
			}
		}
		for _, col := range layout.AuxColumns {
			x, err := cell(row, pos[col])
			if err != nil {
				return nil, &FormatError{Path: name, Line: line, Msg: fmt.Sprintf("%s: %v", col, err)}
			}
			rec.Channels[col] = append(rec.Channels[col], x)
		}

		rec.Time = append(rec.Time, t)
		rec.Current = append(rec.Current, i)
		rec.Voltage = append(rec.Voltage, v)
		rec.Flags = append(rec.Flags, flag)
	}

	if rec.Len() < 2 {
		return nil, &FormatError{Path: name, Msg: fmt.Sprintf("need at least 2 data rows, got %d", rec.Len())}
	}
	if err := rec.Validate(); err != nil {
		return nil, &FormatError{Path: name, Msg: err.Error()}
	}
	return rec, nil
}

func cell(row []string, p int) (float64, error) {
	if p >= len(row) {
		return 0, errors.New("short row")
	}
	s := strings.TrimSpace(row[p])
	if s == "" {
		return 0, errors.New("empty cell")
	}
	return strconv.ParseFloat(s, 64)
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// DetectLayout picks the first preset whose header matches the file. HPPC
// presets are tried before discharge and drive-cycle presets sharing the
// same columns.
func DetectLayout(path string) (model.Layout, error) {
	for _, name := range []string{"cell-hppc", "module-hppc"} {
		l, _ := model.LayoutByName(name)
		if ok, err := headerMatches(path, l); err != nil {
			return model.Layout{}, err
		} else if ok {
			return l, nil
		}
	}
	return model.Layout{}, &FormatError{Path: path, Msg: "header matches no known layout"}
}

func headerMatches(path string, layout model.Layout) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	br := bufio.NewReader(f)
	for i := 0; i < layout.SkipRows; i++ {
		if _, err := br.ReadString('\n'); err != nil {
			return false, nil
		}
	}
	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		return false, nil
	}
	have := map[string]bool{}
	for _, h := range header {
		have[strings.TrimSpace(h)] = true
	}
	for _, col := range layout.Columns() {
		if !have[col] {
			return false, nil
		}
	}
	return true, nil
}

// WriteTable writes rec in the layout's column format, the inverse of
// ReadTable. Preamble lines are left blank.
func WriteTable(w io.Writer, rec *model.TestRecord, layout model.Layout) error {
	if err := layout.Validate(); err != nil {
		return err
	}
	if err := rec.Validate(); err != nil {
		return err
	}
	bw := bufio.NewWriter(w)
	for i := 0; i < layout.SkipRows; i++ {
		if _, err := bw.WriteString("#\n"); err != nil {
			return err
		}
	}

	cw := csv.NewWriter(bw)
	if err := cw.Write(layout.Columns()); err != nil {
		return err
	}
	row := make([]string, 0, len(layout.Columns()))
	for k := 0; k < rec.Len(); k++ {
		row = append(row[:0],
			strconv.FormatFloat(rec.Time[k], 'f', -1, 64),
			strconv.FormatFloat(rec.Current[k], 'f', -1, 64),
			strconv.FormatFloat(rec.Voltage[k], 'f', -1, 64),
		)
		if layout.FlagColumn != "" {
			row = append(row, string(rec.Flags[k]))
		}
		for _, col := range layout.AuxColumns {
			ch, ok := rec.Channels[col]
			if !ok {
				return fmt.Errorf("record has no %q channel", col)
			}
			row = append(row, strconv.FormatFloat(ch[k], 'f', -1, 64))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	return bw.Flush()
}

// SaveTable writes rec to path with WriteTable, creating the directory.
func SaveTable(path string, rec *model.TestRecord, layout model.Layout) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteTable(f, rec, layout); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
