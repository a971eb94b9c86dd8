package session

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/spatial-access/internal/table"
)

func ptr(v float64) *float64 { return &v }

func testSession(t *testing.T) *Session {
	t.Helper()
	s, err := New(Options{
		Demand: table.Locations{"a": 5, "b": 10},
		Supply: map[string]table.Locations{
			"doc":     {"a": 25, "b": 5},
			"dentist": {"a": 10, "b": 10},
		},
		Cost: table.FromTriples("cost", map[table.OD]float64{
			{Origin: "a", Dest: "a"}: 0,
			{Origin: "a", Dest: "b"}: 15,
			{Origin: "b", Dest: "a"}: 15,
			{Origin: "b", Dest: "b"}: 0,
		}),
	})
	require.NoError(t, err)
	return s
}

func TestNew_Validation(t *testing.T) {
	costs := table.FromTriples("cost", map[table.OD]float64{{Origin: "a", Dest: "a"}: 0})

	_, err := New(Options{Supply: map[string]table.Locations{"doc": {}}, Cost: costs})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "demand table is empty")

	_, err = New(Options{Demand: table.Locations{"a": 1}, Cost: costs})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "supply type")

	_, err = New(Options{Demand: table.Locations{"a": 1}, Supply: map[string]table.Locations{"doc": {"a": 1}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cost table is empty")
}

func TestNew_DefaultMetricAmbiguous(t *testing.T) {
	costs := table.FromTriples("cost", map[table.OD]float64{{Origin: "a", Dest: "a"}: 0})
	require.NoError(t, costs.AppendMetric("euclidean", map[table.OD]float64{{Origin: "a", Dest: "a"}: 0}))

	_, err := New(Options{
		Demand: table.Locations{"a": 1},
		Supply: map[string]table.Locations{"doc": {"a": 1}},
		Cost:   costs,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a default must be named")

	// Naming one resolves the ambiguity.
	s, err := New(Options{
		Demand:      table.Locations{"a": 1},
		Supply:      map[string]table.Locations{"doc": {"a": 1}},
		Cost:        costs,
		DefaultCost: "euclidean",
	})
	require.NoError(t, err)
	assert.Equal(t, "euclidean", s.DefaultCost())
}

func TestSetDefaultCost(t *testing.T) {
	s := testSession(t)

	require.Error(t, s.SetDefaultCost("driving"))
	require.NoError(t, s.AppendCost("driving", map[table.OD]float64{{Origin: "a", Dest: "b"}: 9}))
	require.NoError(t, s.SetDefaultCost("driving"))
	assert.Equal(t, "driving", s.DefaultCost())
}

func TestCatchment(t *testing.T) {
	s := testSession(t)

	// Unbounded, every origin reaches both sites: doc sum 25+5 = 30.
	res, err := s.Catchment(context.Background(), MethodOptions{SupplyTypes: []string{"doc"}})
	require.NoError(t, err)
	assert.InDelta(t, 30.0, res["catchment_doc"]["a"], 1e-12)
	assert.InDelta(t, 30.0, res["catchment_doc"]["b"], 1e-12)

	// Cutoff 10 keeps only the zero-cost self edges, so each origin
	// sees its own site; a raw sum stays zero when nothing survives,
	// never NaN.
	res, err = s.Catchment(context.Background(), MethodOptions{
		Name:        "near",
		SupplyTypes: []string{"doc"},
		MaxCost:     ptr(10),
	})
	require.NoError(t, err)
	assert.InDelta(t, 25.0, res["near_doc"]["a"], 1e-12)
	assert.InDelta(t, 5.0, res["near_doc"]["b"], 1e-12)
}

func TestTwoStageFCA_PerTypeColumns(t *testing.T) {
	s := testSession(t)

	out, err := s.TwoStageFCA(context.Background(), MethodOptions{MaxCost: ptr(30)})
	require.NoError(t, err)

	require.Len(t, out, 2)
	require.Contains(t, out, "2sfca_doc")
	require.Contains(t, out, "2sfca_dentist")

	// Everything reaches everything: each origin's score is total
	// supply / total demand for its type.
	// doc: 30/15 = 2; dentist: 20/15.
	assert.InDelta(t, 2.0, out["2sfca_doc"]["a"], 1e-9)
	assert.InDelta(t, 2.0, out["2sfca_doc"]["b"], 1e-9)
	assert.InDelta(t, 20.0/15.0, out["2sfca_dentist"]["a"], 1e-9)

	// Results are retained on the session.
	got, ok := s.Series("2sfca_doc")
	require.True(t, ok)
	assert.InDelta(t, 2.0, got["a"], 1e-9)
}

func TestTwoStageFCA_SupplyTypeSubset(t *testing.T) {
	s := testSession(t)

	out, err := s.TwoStageFCA(context.Background(), MethodOptions{SupplyTypes: []string{"doc"}, MaxCost: ptr(30)})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Contains(t, out, "2sfca_doc")

	_, err = s.TwoStageFCA(context.Background(), MethodOptions{SupplyTypes: []string{"vet"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown supply type")
}

func TestFCARatio(t *testing.T) {
	s := testSession(t)

	out, err := s.FCARatio(context.Background(), MethodOptions{MaxCost: ptr(30)})
	require.NoError(t, err)

	// Supply and demand catchments both span the whole area:
	// doc ratio = 30/15 everywhere.
	assert.InDelta(t, 2.0, out["fca_doc"]["a"], 1e-9)
	assert.InDelta(t, 2.0, out["fca_doc"]["b"], 1e-9)
}

func TestEnhancedTwoStageFCA_CutoffNaN(t *testing.T) {
	s := testSession(t)

	out, err := s.EnhancedTwoStageFCA(context.Background(), MethodOptions{MaxCost: ptr(0)})
	require.NoError(t, err)
	assert.True(t, math.IsNaN(out["e2sfca_doc"]["a"]))
	assert.True(t, math.IsNaN(out["e2sfca_doc"]["b"]))
}

func TestThreeStageFCA(t *testing.T) {
	s := testSession(t)

	out, err := s.ThreeStageFCA(context.Background(), MethodOptions{MaxCost: ptr(30)})
	require.NoError(t, err)
	require.Contains(t, out, "3sfca_doc")
	assert.False(t, math.IsNaN(out["3sfca_doc"]["a"]))
}

func TestRAAM(t *testing.T) {
	s := testSession(t)

	out, err := s.RAAM(context.Background(), RAAMOptions{})
	require.NoError(t, err)
	require.Contains(t, out, "raam_doc")
	require.Contains(t, out, "raam_dentist")
	assert.False(t, math.IsNaN(out["raam_doc"]["a"]))
}

func TestNormalizedScores(t *testing.T) {
	s := testSession(t)

	_, err := s.TwoStageFCA(context.Background(), MethodOptions{MaxCost: ptr(30)})
	require.NoError(t, err)

	for column, series := range s.NormalizedScores() {
		assert.InDelta(t, 1.0, series.WeightedMean(s.Demand()), 1e-9, column)
	}
}

func TestScore(t *testing.T) {
	s := testSession(t)

	_, err := s.TwoStageFCA(context.Background(), MethodOptions{MaxCost: ptr(30)})
	require.NoError(t, err)

	combined, err := s.Score("combo", map[string]float64{
		"2sfca_doc":     0.8,
		"2sfca_dentist": 0.2,
	})
	require.NoError(t, err)

	// Both normalized components are exactly 1 everywhere (uniform
	// scores), so the combination is 0.8 + 0.2 = 1.
	assert.InDelta(t, 1.0, combined["a"], 1e-9)
	assert.InDelta(t, 1.0, combined["b"], 1e-9)

	// Stored for further use.
	_, ok := s.Series("combo")
	assert.True(t, ok)
}

func TestScore_UncoveredOriginUndefined(t *testing.T) {
	// u has demand but no cost edge, so raam excludes it from the
	// result column entirely. The combined score must report it as
	// undefined, not as a definite zero.
	s, err := New(Options{
		Demand: table.Locations{"a": 100, "u": 50},
		Supply: map[string]table.Locations{"doc": {"a": 4}},
		Cost: table.FromTriples("cost", map[table.OD]float64{
			{Origin: "a", Dest: "a"}: 10,
		}),
	})
	require.NoError(t, err)

	out, err := s.RAAM(context.Background(), RAAMOptions{})
	require.NoError(t, err)
	require.Contains(t, out["raam_doc"], "a")
	require.NotContains(t, out["raam_doc"], "u")

	combined, err := s.Score("combo", map[string]float64{"raam_doc": 1})
	require.NoError(t, err)

	// a is the lone scored origin, so its normalized value is 1.
	assert.InDelta(t, 1.0, combined["a"], 1e-9)
	assert.True(t, math.IsNaN(combined["u"]))
}

func TestScore_UnknownColumn(t *testing.T) {
	s := testSession(t)

	_, err := s.Score("combo", map[string]float64{"missing": 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a calculated access column")
}

func TestMethodOptions_UnknownMetric(t *testing.T) {
	s := testSession(t)

	_, err := s.TwoStageFCA(context.Background(), MethodOptions{Cost: "walking"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not an available cost metric")
}
