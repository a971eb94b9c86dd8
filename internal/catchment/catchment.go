// Package catchment implements the cost-bounded, optionally
// distance-weighted aggregation primitive underlying every floating
// catchment access measure.
package catchment

import (
	"github.com/sells-group/spatial-access/internal/table"
	"github.com/sells-group/spatial-access/internal/weights"
)

// Side selects which endpoint of a cost edge the location magnitudes
// are matched on. The aggregation groups by the opposite endpoint.
type Side int

const (
	// JoinOrigin matches locations on the edge origin, grouping sums
	// by destination.
	JoinOrigin Side = iota
	// JoinDest matches locations on the edge destination, grouping
	// sums by origin.
	JoinDest
)

// Options parameterize one aggregation pass.
type Options struct {
	// Metric names the cost column to read. Edges without it are
	// ignored.
	Metric string

	// MaxCost is the exclusive upper bound on cost; nil means
	// unbounded. An edge with cost exactly equal to MaxCost is
	// excluded: the strict less-than convention is shared by every
	// ratio method built on this primitive.
	MaxCost *float64

	// Weight scales each matched magnitude by Weight(cost). Nil means
	// identity.
	Weight weights.Fn

	// Joint, when non-nil, replaces Weight with a precomputed per-edge
	// multiplier (the three-stage W3·G product). Edges missing from
	// Joint are dropped.
	Joint map[table.OD]float64

	// CountOnly sums 1 per surviving edge instead of the location
	// magnitude.
	CountOnly bool
}

// Aggregate inner-joins cost edges to locations on the chosen side,
// restricts to edges with cost strictly below MaxCost, applies the
// weight, and sums the magnitudes grouped by the opposite endpoint.
//
// The result holds only grouping keys with at least one surviving
// edge; callers must zero-fill against their own key set before any
// arithmetic, so that NaN can be reserved for genuinely undefined
// ratios.
func Aggregate(locs table.Locations, costs *table.CostTable, join Side, opts Options) table.Series {
	out := table.Series{}

	for _, row := range costs.Rows {
		cost, ok := row.Costs[opts.Metric]
		if !ok {
			continue
		}
		if opts.MaxCost != nil && cost >= *opts.MaxCost {
			continue
		}

		var locID, groupID string
		if join == JoinOrigin {
			locID, groupID = row.Origin, row.Dest
		} else {
			locID, groupID = row.Dest, row.Origin
		}

		value, ok := locs[locID]
		if !ok {
			continue
		}
		if opts.CountOnly {
			value = 1
		}

		if opts.Joint != nil {
			w, ok := opts.Joint[table.OD{Origin: row.Origin, Dest: row.Dest}]
			if !ok {
				continue
			}
			value *= w
		} else if opts.Weight != nil {
			value *= opts.Weight(cost)
		}

		out[groupID] += value
	}

	return out
}
