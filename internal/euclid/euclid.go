// Package euclid builds travel cost tables from coordinates when no
// observed cost matrix is available. Distances are straight-line in
// the coordinate plane, so inputs should be in a projected CRS.
package euclid

import (
	"context"
	"io"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"

	"github.com/sells-group/spatial-access/internal/fetcher"
	"github.com/sells-group/spatial-access/internal/table"
)

// Site is a located origin or destination.
type Site struct {
	ID    string
	Coord geom.Coord
}

// Options configure pairwise cost construction.
type Options struct {
	// MaxDist drops pairs farther apart than this. Zero means no cap.
	MaxDist float64
	// Scale multiplies every distance, for unit conversion. Zero means 1.
	Scale float64
}

// CostMatrix computes the pairwise distance between every origin and
// destination site. Passing the same slice twice yields a neighbor
// (origin to origin) table, self pairs included at distance zero.
func CostMatrix(origins, dests []Site, opts Options) (map[table.OD]float64, error) {
	if len(origins) == 0 || len(dests) == 0 {
		return nil, eris.New("euclid: both origin and destination sites are required")
	}
	scale := opts.Scale
	if scale == 0 {
		scale = 1
	}

	seen := make(map[string]bool, len(origins))
	for _, o := range origins {
		if seen[o.ID] {
			return nil, eris.Errorf("euclid: duplicate origin id %q", o.ID)
		}
		seen[o.ID] = true
	}

	out := make(map[table.OD]float64, len(origins)*len(dests))
	for _, o := range origins {
		for _, d := range dests {
			dist := xy.Distance(o.Coord, d.Coord) * scale
			if opts.MaxDist > 0 && dist > opts.MaxDist {
				continue
			}
			out[table.OD{Origin: o.ID, Dest: d.ID}] = dist
		}
	}
	return out, nil
}

// LoadCSV reads sites from CSV columns holding an id and projected x/y
// coordinates.
func LoadCSV(ctx context.Context, r io.Reader, idCol, xCol, yCol string) ([]Site, error) {
	header, rows, err := fetcher.ReadCSV(ctx, r, fetcher.CSVOptions{TrimSpace: true})
	if err != nil {
		return nil, eris.Wrap(err, "euclid: read sites csv")
	}

	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[name] = i
	}
	for _, col := range []string{idCol, xCol, yCol} {
		if _, ok := idx[col]; !ok {
			return nil, eris.Errorf("euclid: column %q not in header", col)
		}
	}

	sites := make([]Site, 0, len(rows))
	for i, row := range rows {
		x, err := strconv.ParseFloat(row[idx[xCol]], 64)
		if err != nil {
			return nil, eris.Wrapf(err, "euclid: row %d: bad %s", i+1, xCol)
		}
		y, err := strconv.ParseFloat(row[idx[yCol]], 64)
		if err != nil {
			return nil, eris.Wrapf(err, "euclid: row %d: bad %s", i+1, yCol)
		}
		sites = append(sites, Site{ID: row[idx[idCol]], Coord: geom.Coord{x, y}})
	}
	return sites, nil
}
