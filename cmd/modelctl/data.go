package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/wippyai/model-runtime/array"
)

// readCSV reads a numeric matrix, one row per record. Lines starting with
// '#' are skipped; every record must have the same number of fields.
func readCSV(r io.Reader) (array.View, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.TrimLeadingSpace = true

	var (
		data []float64
		rows int
		cols = -1
	)
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return array.View{}, err
		}
		if cols < 0 {
			cols = len(rec)
		}
		for j, field := range rec {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return array.View{}, fmt.Errorf("row %d column %d: %w", rows+1, j+1, err)
			}
			data = append(data, v)
		}
		rows++
	}
	if rows == 0 {
		return array.View{}, fmt.Errorf("no rows")
	}
	return array.New(data, rows, cols)
}

func readCSVFile(path string) (array.View, error) {
	f, err := os.Open(path)
	if err != nil {
		return array.View{}, err
	}
	defer f.Close()

	v, err := readCSV(f)
	if err != nil {
		return array.View{}, fmt.Errorf("%s: %w", path, err)
	}
	return v, nil
}

func writeCSV(w io.Writer, v array.View) error {
	cw := csv.NewWriter(w)
	rec := make([]string, v.Cols())
	for i := 0; i < v.Rows(); i++ {
		for j, x := range v.Row(i) {
			rec[j] = strconv.FormatFloat(x, 'g', -1, 64)
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// parseMatrix parses the inline form "1,2;3,4" (rows split by ';').
func parseMatrix(s string) ([]float64, int, int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, 0, 0, nil
	}
	var (
		data []float64
		cols = -1
	)
	rows := strings.Split(s, ";")
	for i, row := range rows {
		fields := strings.Split(row, ",")
		if cols < 0 {
			cols = len(fields)
		} else if len(fields) != cols {
			return nil, 0, 0, fmt.Errorf("row %d has %d values, want %d", i+1, len(fields), cols)
		}
		for _, f := range fields {
			v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
			if err != nil {
				return nil, 0, 0, fmt.Errorf("row %d: %w", i+1, err)
			}
			data = append(data, v)
		}
	}
	return data, len(rows), cols, nil
}

func formatMatrix(v array.View) string {
	var b strings.Builder
	for i := 0; i < v.Rows(); i++ {
		if i > 0 {
			b.WriteString("; ")
		}
		for j, x := range v.Row(i) {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString(strconv.FormatFloat(x, 'g', 6, 64))
		}
	}
	return b.String()
}
