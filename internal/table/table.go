// Package table holds the tabular data model shared by the access
// engines: location magnitudes, sparse cost relations with named
// metrics, and per-location numeric series.
package table

import (
	"math"
	"sort"

	"github.com/rotisserie/eris"
)

// Series maps a location id to a numeric value. A missing key is
// logically zero until it has been joined against a location set;
// after a join, NaN marks a genuinely undefined value (for example a
// ratio over an empty catchment) as opposed to a zero one.
type Series map[string]float64

// Fill returns a copy of s covering every id in keys, inserting fill
// for ids that are absent. The receiver is not modified.
func (s Series) Fill(keys []string, fill float64) Series {
	out := make(Series, len(keys))
	for _, k := range keys {
		if v, ok := s[k]; ok {
			out[k] = v
		} else {
			out[k] = fill
		}
	}
	return out
}

// Keys returns the series ids in sorted order.
func (s Series) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// WeightedMean computes the demand-weighted mean of s,
// Σ s[i]·weights[i] / Σ weights[i], skipping NaN values in s.
// It returns NaN when the total weight over non-NaN entries is zero.
func (s Series) WeightedMean(weights Locations) float64 {
	var num, den float64
	for id, v := range s {
		if math.IsNaN(v) {
			continue
		}
		w := weights[id]
		num += v * w
		den += w
	}
	if den == 0 {
		return math.NaN()
	}
	return num / den
}

// Normalize scales s so that its demand-weighted mean is 1, making the
// series comparable across study areas of different sizes. NaN entries
// stay NaN.
func (s Series) Normalize(demand Locations) Series {
	mean := s.WeightedMean(demand)
	out := make(Series, len(s))
	for id, v := range s {
		out[id] = v / mean
	}
	return out
}

// Locations maps a location id to a non-negative magnitude: population
// for demand sites, capacity or head counts for supply sites.
type Locations map[string]float64

// IDs returns the location ids in sorted order.
func (l Locations) IDs() []string {
	ids := make([]string, 0, len(l))
	for id := range l {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Total returns the sum of all magnitudes.
func (l Locations) Total() float64 {
	var t float64
	for _, v := range l {
		t += v
	}
	return t
}

// FilterPositive returns only the locations with magnitude > 0.
func (l Locations) FilterPositive() Locations {
	out := make(Locations, len(l))
	for id, v := range l {
		if v > 0 {
			out[id] = v
		}
	}
	return out
}

// OD identifies a directed origin/destination pair in a cost table.
type OD struct {
	Origin string
	Dest   string
}

// Edge is one row of a cost table: a directed pair and one or more
// named cost metrics for it (travel time, euclidean distance, ...).
type Edge struct {
	Origin string
	Dest   string
	Costs  map[string]float64
}

// CostTable is a sparse, possibly asymmetric cost relation. A missing
// pair is implicitly at infinite cost. At most one row exists per
// (origin, dest) pair; alternate metrics live as named columns on the
// same row.
type CostTable struct {
	Rows []Edge

	index map[OD]int
}

// New builds a cost table from prepared rows.
func New(rows []Edge) *CostTable {
	t := &CostTable{Rows: rows}
	t.reindex()
	return t
}

// FromTriples builds a single-metric cost table.
func FromTriples(metric string, triples map[OD]float64) *CostTable {
	rows := make([]Edge, 0, len(triples))
	for od, c := range triples {
		rows = append(rows, Edge{Origin: od.Origin, Dest: od.Dest, Costs: map[string]float64{metric: c}})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Origin != rows[j].Origin {
			return rows[i].Origin < rows[j].Origin
		}
		return rows[i].Dest < rows[j].Dest
	})
	t := &CostTable{Rows: rows}
	t.reindex()
	return t
}

func (t *CostTable) reindex() {
	t.index = make(map[OD]int, len(t.Rows))
	for i, r := range t.Rows {
		t.index[OD{r.Origin, r.Dest}] = i
	}
}

// Metrics returns the sorted union of metric names present on any row.
func (t *CostTable) Metrics() []string {
	seen := map[string]struct{}{}
	for _, r := range t.Rows {
		for name := range r.Costs {
			seen[name] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasMetric reports whether any row carries the named metric.
func (t *CostTable) HasMetric(name string) bool {
	for _, r := range t.Rows {
		if _, ok := r.Costs[name]; ok {
			return true
		}
	}
	return false
}

// Cost returns the named metric for a pair, if present.
func (t *CostTable) Cost(od OD, metric string) (float64, bool) {
	i, ok := t.index[od]
	if !ok {
		return 0, false
	}
	c, ok := t.Rows[i].Costs[metric]
	return c, ok
}

// AppendMetric joins a new named cost column onto the table. Pairs not
// yet present are appended as new rows; pairs already present gain the
// new column. Overwriting an existing metric name is rejected.
func (t *CostTable) AppendMetric(name string, costs map[OD]float64) error {
	if t.HasMetric(name) {
		return eris.Errorf("table: cost metric %q already exists", name)
	}
	for od, c := range costs {
		if i, ok := t.index[od]; ok {
			t.Rows[i].Costs[name] = c
			continue
		}
		t.Rows = append(t.Rows, Edge{Origin: od.Origin, Dest: od.Dest, Costs: map[string]float64{name: c}})
		t.index[od] = len(t.Rows) - 1
	}
	return nil
}

// OriginSet returns the distinct origins carrying the named metric.
func (t *CostTable) OriginSet(metric string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, r := range t.Rows {
		if _, ok := r.Costs[metric]; ok {
			out[r.Origin] = struct{}{}
		}
	}
	return out
}

// DestSet returns the distinct destinations carrying the named metric.
func (t *CostTable) DestSet(metric string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, r := range t.Rows {
		if _, ok := r.Costs[metric]; ok {
			out[r.Dest] = struct{}{}
		}
	}
	return out
}
