package dataset

import (
	"context"
	"io"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/spatial-access/internal/fetcher"
	"github.com/sells-group/spatial-access/internal/table"
)

// columnIndex maps named columns to their header positions, failing on
// any that are missing.
func columnIndex(header []string, cols ...string) (map[string]int, error) {
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[name] = i
	}
	for _, col := range cols {
		if _, ok := idx[col]; !ok {
			return nil, eris.Errorf("dataset: column %q not in header", col)
		}
	}
	return idx, nil
}

// ReadLocations loads a location table from CSV, summing values when an
// id appears more than once.
func ReadLocations(ctx context.Context, r io.Reader, idCol, valueCol string) (table.Locations, error) {
	header, rows, err := fetcher.ReadCSV(ctx, r, fetcher.CSVOptions{TrimSpace: true})
	if err != nil {
		return nil, eris.Wrap(err, "dataset: read locations")
	}
	idx, err := columnIndex(header, idCol, valueCol)
	if err != nil {
		return nil, err
	}

	locs := make(table.Locations, len(rows))
	for i, row := range rows {
		raw := row[idx[valueCol]]
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, eris.Wrapf(err, "dataset: row %d: bad %s", i+1, valueCol)
		}
		locs[row[idx[idCol]]] += v
	}
	if len(locs) == 0 {
		return nil, eris.New("dataset: no usable location rows")
	}
	return locs, nil
}

// ReadCosts loads a named cost metric from origin/dest/cost CSV columns.
// A later duplicate of the same pair overwrites the earlier one.
func ReadCosts(ctx context.Context, r io.Reader, metric, originCol, destCol, costCol string) (*table.CostTable, error) {
	header, rows, err := fetcher.ReadCSV(ctx, r, fetcher.CSVOptions{TrimSpace: true})
	if err != nil {
		return nil, eris.Wrap(err, "dataset: read costs")
	}
	idx, err := columnIndex(header, originCol, destCol, costCol)
	if err != nil {
		return nil, err
	}

	costs := make(map[table.OD]float64, len(rows))
	for i, row := range rows {
		raw := row[idx[costCol]]
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, eris.Wrapf(err, "dataset: row %d: bad %s", i+1, costCol)
		}
		costs[table.OD{Origin: row[idx[originCol]], Dest: row[idx[destCol]]}] = v
	}
	if len(costs) == 0 {
		return nil, eris.New("dataset: no usable cost rows")
	}
	return table.FromTriples(metric, costs), nil
}
