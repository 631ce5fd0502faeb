package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// WriteCSV writes one row per observation: trajectory, time, y0, y1, ...
func WriteCSV(w io.Writer, d *Dataset) error {
	cw := csv.NewWriter(w)
	header := []string{"trajectory", "time"}
	for k := 0; k < d.DataSize; k++ {
		header = append(header, fmt.Sprintf("y%d", k))
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	row := make([]string, len(header))
	for i, tr := range d.Trajectories {
		for j, ts := range tr.Times {
			row[0] = strconv.Itoa(i)
			row[1] = strconv.FormatFloat(ts, 'g', -1, 64)
			for k, v := range tr.Values[j] {
				row[2+k] = strconv.FormatFloat(v, 'g', -1, 64)
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV parses the format produced by WriteCSV. Rows of a trajectory
// must be contiguous.
func ReadCSV(r io.Reader) (*Dataset, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) < 3 {
		return nil, fmt.Errorf("%w: header has %d columns", ErrDimension, len(header))
	}
	d := &Dataset{DataSize: len(header) - 2}
	current := -1
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		id, err := strconv.Atoi(rec[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: trajectory id: %w", line, err)
		}
		vals := make([]float64, len(rec)-1)
		for k := range vals {
			if vals[k], err = strconv.ParseFloat(rec[k+1], 64); err != nil {
				return nil, fmt.Errorf("line %d column %d: %w", line, k+2, err)
			}
		}
		if id != current {
			d.Trajectories = append(d.Trajectories, Trajectory{})
			current = id
		}
		tr := &d.Trajectories[len(d.Trajectories)-1]
		tr.Times = append(tr.Times, vals[0])
		tr.Values = append(tr.Values, vals[1:])
	}
	for i, tr := range d.Trajectories {
		if err := tr.Validate(d.DataSize); err != nil {
			return nil, fmt.Errorf("trajectory %d: %w", i, err)
		}
	}
	return d, nil
}
