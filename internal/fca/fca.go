// Package fca implements the floating catchment area family of access
// ratios: the simple buffer ratio, the two-stage method of Luo and
// Wang, its enhanced variant, and the three-stage method of Wan, Zou
// and Sternberg with preference weighting.
package fca

import (
	"math"

	"github.com/sells-group/spatial-access/internal/catchment"
	"github.com/sells-group/spatial-access/internal/table"
	"github.com/sells-group/spatial-access/internal/weights"
)

// RatioInput parameterizes the simple catchment ratio. Supply-side and
// neighbor (demand-side) costs may be two distinct relations with
// their own metric names.
type RatioInput struct {
	Demand       table.Locations
	Supply       table.Locations
	DemandCost   *table.CostTable // neighbor/demand-side relation
	SupplyCost   *table.CostTable // supply-side relation
	DemandMetric string
	SupplyMetric string
	MaxCost      *float64
	Weight       weights.Fn
	Normalize    bool
}

// Ratio computes, per demand location, the supply reachable inside the
// catchment over the demand reachable inside it. Every demand location
// appears in the result; a location whose demand catchment is empty
// has undefined access and is reported as NaN, never raised. Absent
// supply inside a non-empty catchment counts as zero.
func Ratio(in RatioInput) table.Series {
	demandSum := catchment.Aggregate(in.Demand, in.DemandCost, catchment.JoinDest, catchment.Options{
		Metric:  in.DemandMetric,
		MaxCost: in.MaxCost,
		Weight:  in.Weight,
	})
	supplySum := catchment.Aggregate(in.Supply, in.SupplyCost, catchment.JoinDest, catchment.Options{
		Metric:  in.SupplyMetric,
		MaxCost: in.MaxCost,
		Weight:  in.Weight,
	})

	out := make(table.Series, len(in.Demand))
	for id := range in.Demand {
		d, ok := demandSum[id]
		if !ok || d == 0 {
			out[id] = math.NaN()
			continue
		}
		out[id] = supplySum[id] / d // missing supply reads as zero
	}

	if in.Normalize {
		out = out.Normalize(in.Demand)
	}
	return out
}

// Input parameterizes the two- and three-stage methods, which run over
// a single demand-to-supply cost relation.
type Input struct {
	Demand    table.Locations
	Supply    table.Locations
	Cost      *table.CostTable
	Metric    string
	MaxCost   *float64
	Weight    weights.Fn
	Normalize bool
}

// TwoStage computes the 2SFCA access score. Stage one aggregates the
// demand reachable from each supply site and forms the site's
// supply-to-demand ratio; stage two sums those ratios over the supply
// sites reachable from each demand location. Demand locations with no
// reachable supply site are NaN.
func TwoStage(in Input) table.Series {
	return twoStage(in, nil)
}

// EnhancedTwoStage is TwoStage with the canonical step weights applied
// when the caller supplies none.
func EnhancedTwoStage(in Input) table.Series {
	if in.Weight == nil {
		in.Weight = weights.StepE2SFCA()
	}
	return TwoStage(in)
}

// ThreeStage computes the 3SFCA access score. Each cost edge acquires
// a preference weight G, the row-stochastic normalization of the raw
// distance weight across all destinations sharing the edge's origin;
// both aggregation passes then weight by the product W3·G, discounting
// supply choices crowded by competing nearby alternatives. The
// canonical three-stage step weights apply when the caller supplies
// none.
func ThreeStage(in Input) table.Series {
	if in.Weight == nil {
		in.Weight = weights.Step3SFCA()
	}
	joint, _ := PreferenceWeights(in.Cost, in.Metric, in.Weight)
	return twoStage(in, joint)
}

// PreferenceWeights computes the per-edge joint weight W3·G and the
// row-stochastic G itself. The normalizing sum runs over every
// destination present in the cost table for the origin, not only
// those inside a catchment cutoff.
func PreferenceWeights(costs *table.CostTable, metric string, weight weights.Fn) (joint, g map[table.OD]float64) {
	w3 := make(map[table.OD]float64, len(costs.Rows))
	rowSum := map[string]float64{}
	for _, row := range costs.Rows {
		cost, ok := row.Costs[metric]
		if !ok {
			continue
		}
		w := weight(cost)
		w3[table.OD{Origin: row.Origin, Dest: row.Dest}] = w
		rowSum[row.Origin] += w
	}

	joint = make(map[table.OD]float64, len(w3))
	g = make(map[table.OD]float64, len(w3))
	for od, w := range w3 {
		sum := rowSum[od.Origin]
		if sum == 0 {
			continue // origin with no positively weighted destination
		}
		g[od] = w / sum
		joint[od] = w * g[od]
	}
	return joint, g
}

// twoStage is the shared two-pass pipeline; a non-nil joint switches
// both passes to the three-stage W3·G parameterization.
func twoStage(in Input, joint map[table.OD]float64) table.Series {
	first := catchment.Options{
		Metric:  in.Metric,
		MaxCost: in.MaxCost,
		Weight:  in.Weight,
		Joint:   joint,
	}

	// Stage one: total (weighted) demand reaching each supply site.
	demandAtSupply := catchment.Aggregate(in.Demand, in.Cost, catchment.JoinOrigin, first)

	// Per-site supply-to-demand ratio. Sites missing from the supply
	// table contribute zero supply; sites whose aggregated demand is
	// zero cannot form a ratio and are skipped.
	ratios := make(table.Locations, len(demandAtSupply))
	for site, d := range demandAtSupply {
		if d == 0 {
			continue
		}
		ratios[site] = in.Supply[site] / d
	}

	// Stage two: sum the reachable ratios back at each demand site.
	summed := catchment.Aggregate(ratios, in.Cost, catchment.JoinDest, first)

	out := make(table.Series, len(in.Demand))
	for id := range in.Demand {
		if v, ok := summed[id]; ok {
			out[id] = v
		} else {
			out[id] = math.NaN()
		}
	}

	if in.Normalize {
		out = out.Normalize(in.Demand)
	}
	return out
}

// Uncovered lists the demand locations that never appear as an origin
// of the supply-side cost relation. Such locations can never receive a
// score. Partial coverage is common in real data and advisory only.
func Uncovered(demand table.Locations, supplyCost *table.CostTable, metric string) []string {
	origins := supplyCost.OriginSet(metric)
	var missing []string
	for _, id := range demand.IDs() {
		if _, ok := origins[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}
