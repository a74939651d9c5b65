package dataset

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"gonum.org/v1/gonum/mat"
)

// LoadCSV reads a headered numeric CSV file. target names the label column;
// empty selects the last column. Every other column becomes a feature.
func LoadCSV(path, target string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("dataset: open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("dataset: read %s: %w", path, err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("dataset: %s needs a header and at least one row", path)
	}

	header := rows[0]
	if target == "" {
		target = header[len(header)-1]
	}
	targetIdx := -1
	for i, name := range header {
		if name == target {
			targetIdx = i
			break
		}
	}
	if targetIdx < 0 {
		return nil, fmt.Errorf("dataset: target column %q not in header %v", target, header)
	}
	dim := len(header) - 1
	if dim == 0 {
		return nil, fmt.Errorf("dataset: %s has no feature columns", path)
	}

	n := len(rows) - 1
	x := mat.NewDense(n, dim, nil)
	y := mat.NewDense(n, 1, nil)
	columns := make([]string, 0, dim)
	for i, name := range header {
		if i != targetIdx {
			columns = append(columns, name)
		}
	}
	for i, row := range rows[1:] {
		if len(row) != len(header) {
			return nil, fmt.Errorf("dataset: %s row %d has %d fields, want %d", path, i+2, len(row), len(header))
		}
		fj := 0
		for j, field := range row {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("dataset: %s row %d column %q: %w", path, i+2, header[j], err)
			}
			if j == targetIdx {
				y.Set(i, 0, v)
				continue
			}
			x.Set(i, fj, v)
			fj++
		}
	}
	return New(x, y, columns, target)
}
