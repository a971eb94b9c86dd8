package fca

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/spatial-access/internal/table"
	"github.com/sells-group/spatial-access/internal/weights"
)

func ptr(v float64) *float64 { return &v }

func TestRatio_SingleDemandLocation(t *testing.T) {
	// 5 demand units, 25 supply units, everything reachable: the
	// buffer ratio is 25/5 = 5.
	demand := table.Locations{"a": 5}
	supply := table.Locations{"x": 25}
	neighbor := table.FromTriples("cost", map[table.OD]float64{{Origin: "a", Dest: "a"}: 0})
	supplyCost := table.FromTriples("cost", map[table.OD]float64{{Origin: "a", Dest: "x"}: 5})

	out := Ratio(RatioInput{
		Demand: demand, Supply: supply,
		DemandCost: neighbor, SupplyCost: supplyCost,
		DemandMetric: "cost", SupplyMetric: "cost",
		MaxCost: ptr(10),
	})

	require.Len(t, out, 1)
	assert.InDelta(t, 5, out["a"], 1e-12)
}

func TestRatio_ThresholdExclusive(t *testing.T) {
	// The supply edge sits exactly at the cutoff and is excluded;
	// reachable supply is zero, demand is still reachable, so the
	// ratio is 0, not NaN.
	demand := table.Locations{"a": 5}
	supply := table.Locations{"x": 25}
	neighbor := table.FromTriples("cost", map[table.OD]float64{{Origin: "a", Dest: "a"}: 0})
	supplyCost := table.FromTriples("cost", map[table.OD]float64{{Origin: "a", Dest: "x"}: 10})

	out := Ratio(RatioInput{
		Demand: demand, Supply: supply,
		DemandCost: neighbor, SupplyCost: supplyCost,
		DemandMetric: "cost", SupplyMetric: "cost",
		MaxCost: ptr(10),
	})

	assert.Equal(t, 0.0, out["a"])
}

func TestRatio_ZeroCatchmentIsNaN(t *testing.T) {
	// With a zero cutoff and no self-edges nothing is reachable:
	// access is undefined everywhere, reported as NaN, not raised.
	demand := table.Locations{"a": 5, "b": 3}
	supply := table.Locations{"x": 25}
	costs := table.FromTriples("cost", map[table.OD]float64{
		{Origin: "a", Dest: "x"}: 5,
		{Origin: "b", Dest: "x"}: 5,
	})

	out := Ratio(RatioInput{
		Demand: demand, Supply: supply,
		DemandCost: costs, SupplyCost: costs,
		DemandMetric: "cost", SupplyMetric: "cost",
		MaxCost: ptr(0),
	})

	require.Len(t, out, 2)
	assert.True(t, math.IsNaN(out["a"]))
	assert.True(t, math.IsNaN(out["b"]))
}

func TestRatio_Normalized(t *testing.T) {
	demand := table.Locations{"a": 5, "b": 10}
	supply := table.Locations{"x": 25, "y": 5}
	costs := table.FromTriples("cost", map[table.OD]float64{
		{Origin: "a", Dest: "x"}: 5,
		{Origin: "a", Dest: "a"}: 0,
		{Origin: "b", Dest: "y"}: 5,
		{Origin: "b", Dest: "b"}: 0,
	})

	out := Ratio(RatioInput{
		Demand: demand, Supply: supply,
		DemandCost: costs, SupplyCost: costs,
		DemandMetric: "cost", SupplyMetric: "cost",
		MaxCost: ptr(10), Normalize: true,
	})

	// The normalized series has demand-weighted mean one.
	assert.InDelta(t, 1.0, out.WeightedMean(demand), 1e-9)
}

func TestTwoStage_SingleDemandLocation(t *testing.T) {
	// One origin with demand 5 and 25 total supply in reach: the
	// two-stage sum collapses to Σ supply / demand = 5.
	demand := table.Locations{"a": 5}
	supply := table.Locations{"x": 10, "y": 15}
	costs := table.FromTriples("cost", map[table.OD]float64{
		{Origin: "a", Dest: "x"}: 5,
		{Origin: "a", Dest: "y"}: 8,
	})

	out := TwoStage(Input{
		Demand: demand, Supply: supply, Cost: costs,
		Metric: "cost", MaxCost: ptr(10),
	})

	// R_x = 10/5, R_y = 15/5; access = 2 + 3 = 5.
	assert.InDelta(t, 5, out["a"], 1e-12)
}

func TestTwoStage_UnreachableOriginIsNaN(t *testing.T) {
	demand := table.Locations{"a": 5, "b": 7}
	supply := table.Locations{"x": 10}
	costs := table.FromTriples("cost", map[table.OD]float64{
		{Origin: "a", Dest: "x"}: 5,
		{Origin: "b", Dest: "x"}: 50,
	})

	out := TwoStage(Input{
		Demand: demand, Supply: supply, Cost: costs,
		Metric: "cost", MaxCost: ptr(10),
	})

	assert.InDelta(t, 2, out["a"], 1e-12) // 10/5
	assert.True(t, math.IsNaN(out["b"]))
}

func TestTwoStage_MissingSupplyContributesZero(t *testing.T) {
	// y appears in the cost table but not in the supply table: it
	// contributes zero supply, not an error.
	demand := table.Locations{"a": 5}
	supply := table.Locations{"x": 10}
	costs := table.FromTriples("cost", map[table.OD]float64{
		{Origin: "a", Dest: "x"}: 5,
		{Origin: "a", Dest: "y"}: 5,
	})

	out := TwoStage(Input{
		Demand: demand, Supply: supply, Cost: costs,
		Metric: "cost", MaxCost: ptr(10),
	})

	assert.InDelta(t, 2, out["a"], 1e-12)
}

// referenceTwoStage recomputes 2SFCA with plain dictionary arithmetic,
// independent of the catchment primitive.
func referenceTwoStage(demand, supply table.Locations, costs map[table.OD]float64, maxCost float64, w weights.Fn) table.Series {
	demandAt := map[string]float64{}
	for od, c := range costs {
		if c < maxCost {
			demandAt[od.Dest] += demand[od.Origin] * w(c)
		}
	}
	out := table.Series{}
	for id := range demand {
		out[id] = math.NaN()
	}
	for od, c := range costs {
		if c >= maxCost {
			continue
		}
		d := demandAt[od.Dest]
		if d == 0 {
			continue
		}
		if math.IsNaN(out[od.Origin]) {
			out[od.Origin] = 0
		}
		out[od.Origin] += supply[od.Dest] / d * w(c)
	}
	return out
}

func TestTwoStage_MatchesReference(t *testing.T) {
	demand := table.Locations{"a": 100, "b": 100, "c": 50}
	supply := table.Locations{"X": 10, "Y": 3}
	costs := map[table.OD]float64{
		{Origin: "a", Dest: "X"}: 30,
		{Origin: "b", Dest: "X"}: 30,
		{Origin: "c", Dest: "X"}: 5,
		{Origin: "a", Dest: "Y"}: 10,
		{Origin: "b", Dest: "Y"}: 25,
	}
	w := weights.StepE2SFCA()

	out := TwoStage(Input{
		Demand: demand, Supply: supply,
		Cost:   table.FromTriples("cost", costs),
		Metric: "cost", MaxCost: ptr(60), Weight: w,
	})
	want := referenceTwoStage(demand, supply, costs, 60, w)

	for id := range demand {
		assert.InDelta(t, want[id], out[id], 1e-9, "origin %s", id)
	}
}

func TestTwoStage_MonotoneUnderCostReduction(t *testing.T) {
	// When travel from the two large origins a and b into the
	// well-supplied X gets cheaper, their access must rise and the
	// access of c (co-located with X) must fall.
	demand := table.Locations{"a": 100, "b": 100, "c": 50}
	supply := table.Locations{"X": 10}
	w := weights.StepE2SFCA()

	far := map[table.OD]float64{
		{Origin: "a", Dest: "X"}: 30,
		{Origin: "b", Dest: "X"}: 30,
		{Origin: "c", Dest: "X"}: 5,
	}
	near := map[table.OD]float64{
		{Origin: "a", Dest: "X"}: 10,
		{Origin: "b", Dest: "X"}: 10,
		{Origin: "c", Dest: "X"}: 5,
	}

	run := func(costs map[table.OD]float64) table.Series {
		return TwoStage(Input{
			Demand: demand, Supply: supply,
			Cost:   table.FromTriples("cost", costs),
			Metric: "cost", MaxCost: ptr(60), Weight: w,
		})
	}
	before, after := run(far), run(near)

	assert.Greater(t, after["a"], before["a"])
	assert.Greater(t, after["b"], before["b"])
	assert.Less(t, after["c"], before["c"])

	// And both scenarios agree with the reference arithmetic.
	for id := range demand {
		assert.InDelta(t, referenceTwoStage(demand, supply, far, 60, w)[id], before[id], 1e-9)
		assert.InDelta(t, referenceTwoStage(demand, supply, near, 60, w)[id], after[id], 1e-9)
	}
}

func TestEnhancedTwoStage_DefaultWeights(t *testing.T) {
	demand := table.Locations{"a": 10}
	supply := table.Locations{"x": 4}
	costs := table.FromTriples("cost", map[table.OD]float64{{Origin: "a", Dest: "x"}: 25})

	out := EnhancedTwoStage(Input{
		Demand: demand, Supply: supply, Cost: costs,
		Metric: "cost", MaxCost: ptr(60),
	})

	// Default step weight at cost 25 is 0.22: demand at x is
	// 10*0.22 = 2.2, R = 4/2.2, access = R*0.22 = 0.4.
	assert.InDelta(t, 0.4, out["a"], 1e-9)
}

func TestPreferenceWeights_RowStochastic(t *testing.T) {
	costs := table.FromTriples("cost", map[table.OD]float64{
		{Origin: "a", Dest: "x"}: 5,
		{Origin: "a", Dest: "y"}: 15,
		{Origin: "a", Dest: "z"}: 25,
		{Origin: "b", Dest: "x"}: 5,
	})

	_, g := PreferenceWeights(costs, "cost", weights.Step3SFCA())

	sums := map[string]float64{}
	for od, v := range g {
		sums[od.Origin] += v
	}
	// G rows sum to one for every origin with a reachable destination.
	assert.InDelta(t, 1.0, sums["a"], 1e-12)
	assert.InDelta(t, 1.0, sums["b"], 1e-12)
}

func TestPreferenceWeights_ZeroRowSkipped(t *testing.T) {
	// All of b's destinations weigh zero: no G entries for b rather
	// than a division by zero.
	costs := table.FromTriples("cost", map[table.OD]float64{
		{Origin: "a", Dest: "x"}: 5,
		{Origin: "b", Dest: "x"}: 500,
	})

	joint, g := PreferenceWeights(costs, "cost", weights.Step3SFCA())

	_, ok := g[table.OD{Origin: "b", Dest: "x"}]
	assert.False(t, ok)
	_, ok = joint[table.OD{Origin: "b", Dest: "x"}]
	assert.False(t, ok)
}

func TestThreeStage_SingleOriginPair(t *testing.T) {
	// One origin, two equidistant identical sites: G = 1/2 each, so
	// the joint weight is w*G = 0.962*0.5 at cost 5.
	demand := table.Locations{"a": 10}
	supply := table.Locations{"x": 3, "y": 3}
	costs := table.FromTriples("cost", map[table.OD]float64{
		{Origin: "a", Dest: "x"}: 5,
		{Origin: "a", Dest: "y"}: 5,
	})

	out := ThreeStage(Input{
		Demand: demand, Supply: supply, Cost: costs,
		Metric: "cost", MaxCost: ptr(60),
	})

	// jw = 0.962*0.5 = 0.481. Demand at each site = 10*0.481 = 4.81.
	// R = 3/4.81 per site; access = 2 * R * 0.481 = 2*3/10 = 0.6.
	assert.InDelta(t, 0.6, out["a"], 1e-9)
}

func TestUncovered(t *testing.T) {
	demand := table.Locations{"a": 1, "b": 1, "c": 1}
	costs := table.FromTriples("cost", map[table.OD]float64{
		{Origin: "a", Dest: "a"}: 0,
		{Origin: "b", Dest: "a"}: 5,
	})

	missing := Uncovered(demand, costs, "cost")
	assert.Equal(t, []string{"c"}, missing)
}
