// Package raam implements the rational agent access model: an
// iterative equilibrium solver that redistributes demand across supply
// sites until travel cost and congestion cost balance.
package raam

import (
	"math"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/spatial-access/internal/table"
)

// massTolerance bounds the per-origin drift allowed by the mass
// conservation check. Transfers are whole units, so any violation is a
// logic error, not float noise.
const massTolerance = 1e-9

// Step is one bound of the per-cycle transfer budget: either a
// fraction of each origin's demand or an absolute unit cap.
type Step struct {
	Value    float64
	Absolute bool
}

// Params configures a solve. Zero values take the model defaults.
type Params struct {
	Metric string // cost column name

	// Tau scales travel cost relative to congestion cost: the travel
	// time equivalent to congestion at 100% of the mean demand/supply
	// ratio. Default 60.
	Tau float64

	// Rho scales supply capacity. Nil defaults to the aggregate
	// demand-to-supply ratio of the study area.
	Rho *float64

	// MaxCycles bounds the iteration; the schedule is time-bounded,
	// not error-bounded. Default 150.
	MaxCycles int

	// InitialStep and MinStep bound the geometrically decaying
	// per-cycle transfer budget; HalfLife is the cycle count over
	// which the budget halves. Defaults 0.2, 0.005 (demand fractions)
	// and 50.
	InitialStep *Step
	MinStep     *Step
	HalfLife    int

	// LimitInitial is how many early cycles apply the anti-flood
	// scale-down that keeps attractive sites from being mobbed before
	// congestion cost self-corrects. Default 20.
	LimitInitial int
}

func (p *Params) setDefaults() {
	if p.Tau == 0 {
		p.Tau = 60
	}
	if p.MaxCycles == 0 {
		p.MaxCycles = 150
	}
	if p.InitialStep == nil {
		p.InitialStep = &Step{Value: 0.2}
	}
	if p.MinStep == nil {
		p.MinStep = &Step{Value: 0.005}
	}
	if p.HalfLife == 0 {
		p.HalfLife = 50
	}
	if p.LimitInitial == 0 {
		p.LimitInitial = 20
	}
}

// Solve runs the model and returns the converged demand-weighted
// travel-plus-congestion cost per demand location. Zero-demand origins
// and zero-capacity destinations are dropped before the matrix is
// built; origins with no cost edge to any retained destination are
// excluded from the output rather than raised.
func Solve(demand, supply table.Locations, costs *table.CostTable, params Params) (table.Series, error) {
	params.setDefaults()
	if params.Metric == "" {
		return nil, eris.New("raam: cost metric is required")
	}

	demand = demand.FilterPositive()
	supply = supply.FilterPositive()
	if len(demand) == 0 || len(supply) == 0 {
		return nil, eris.New("raam: no positive demand or supply")
	}

	// Rho defaults to the study area's mean demand/supply ratio,
	// computed before restricting to locations present in the cost
	// table.
	rho := demand.Total() / supply.Total()
	if params.Rho != nil {
		rho = *params.Rho
	}

	m := buildMatrices(demand, supply, costs, params.Metric, params.Tau, rho)
	if len(m.origins) == 0 || len(m.dests) == 0 {
		return nil, eris.Errorf("raam: no origins or destinations carry cost metric %q", params.Metric)
	}

	cost, err := iterate(m, params)
	if err != nil {
		return nil, err
	}

	out := make(table.Series, len(m.origins))
	for i, id := range m.origins {
		out[id] = cost[i]
	}
	return out, nil
}

// model is the dense solver state: travel costs already scaled by tau,
// capacities already scaled by rho.
type model struct {
	origins []string
	dests   []string
	travel  *masked
	demand  []float64 // per origin
	supply  []float64 // per destination
}

func buildMatrices(demand, supply table.Locations, costs *table.CostTable, metric string, tau, rho float64) *model {
	originSet := costs.OriginSet(metric)
	destSet := costs.DestSet(metric)

	var origins, dests []string
	for id := range demand {
		if _, ok := originSet[id]; ok {
			origins = append(origins, id)
		}
	}
	for id := range supply {
		if _, ok := destSet[id]; ok {
			dests = append(dests, id)
		}
	}
	sort.Strings(origins)
	sort.Strings(dests)

	destIdx := make(map[string]int, len(dests))
	for j, id := range dests {
		destIdx[id] = j
	}
	originIdx := make(map[string]int, len(origins))
	for i, id := range origins {
		originIdx[id] = i
	}

	travel := newMasked(len(origins), len(dests))
	for _, row := range costs.Rows {
		c, ok := row.Costs[metric]
		if !ok {
			continue
		}
		i, ok := originIdx[row.Origin]
		if !ok {
			continue
		}
		j, ok := destIdx[row.Dest]
		if !ok {
			continue
		}
		travel.set(i, j, c/tau)
	}

	// An origin whose row is entirely masked cannot be assigned
	// anywhere; exclude it from the solve.
	var keep []int
	for i := range origins {
		if travel.argminRow(i, func(_ int, v float64) float64 { return v }) >= 0 {
			keep = append(keep, i)
		}
	}
	if len(keep) < len(origins) {
		zap.L().Warn("raam: excluding unreachable origins",
			zap.Int("excluded", len(origins)-len(keep)),
		)
		compact := newMasked(len(keep), len(dests))
		kept := make([]string, len(keep))
		for ni, i := range keep {
			kept[ni] = origins[i]
			for j := 0; j < len(dests); j++ {
				if v, ok := travel.at(i, j); ok {
					compact.set(ni, j, v)
				}
			}
		}
		origins, travel = kept, compact
	}

	d := make([]float64, len(origins))
	for i, id := range origins {
		d[i] = demand[id]
	}
	s := make([]float64, len(dests))
	for j, id := range dests {
		s[j] = supply[id] * rho
	}

	return &model{origins: origins, dests: dests, travel: travel, demand: d, supply: s}
}

// iterate runs the bounded fixed-point loop and returns the final
// demand-weighted experienced cost per origin row.
func iterate(m *model, params Params) ([]float64, error) {
	n, k := len(m.origins), len(m.dests)

	// Every origin starts with its whole demand at the cheapest
	// reachable destination.
	assignment := make([][]float64, n)
	for i := range assignment {
		assignment[i] = make([]float64, k)
		j := m.travel.argminRow(i, func(_ int, v float64) float64 { return v })
		assignment[i][j] = m.demand[i]
	}

	load := make([]float64, k)
	congestion := make([]float64, k)
	minJ := make([]int, n)
	maxJ := make([]int, n)
	delta := make([]float64, n)
	inflow := make([]float64, k)

	for cycle := 0; cycle < params.MaxCycles; cycle++ {
		// Congestion at each destination under the current assignment.
		for j := 0; j < k; j++ {
			load[j] = 0
		}
		for i := 0; i < n; i++ {
			for j := 0; j < k; j++ {
				load[j] += assignment[i][j]
			}
		}
		for j := 0; j < k; j++ {
			congestion[j] = load[j] / m.supply[j]
		}

		total := func(j int, travel float64) float64 { return congestion[j] + travel }

		// Candidate transfer per origin: from its currently costliest
		// loaded destination toward its cheapest reachable one. The
		// closed form equalizes marginal cost between the two sites
		// given their capacities and loads.
		for i := 0; i < n; i++ {
			row := assignment[i]
			minJ[i] = m.travel.argminRow(i, total)
			maxJ[i] = m.travel.argmaxRow(i, func(j int) bool { return row[j] > 0 }, total)

			if minJ[i] == maxJ[i] {
				delta[i] = 0
				continue
			}

			sMin, sMax := m.supply[minJ[i]], m.supply[maxJ[i]]
			trMin, _ := m.travel.at(i, minJ[i])
			trMax, _ := m.travel.at(i, maxJ[i])
			drMin, drMax := row[minJ[i]], row[maxJ[i]]
			otherMin := load[minJ[i]] - drMin
			otherMax := load[maxJ[i]] - drMax

			balanced := (sMin * sMax / (sMin + sMax)) *
				((trMax - trMin) + (drMin+drMax+otherMax)/sMax - otherMin/sMin)

			d := balanced - drMin
			d = math.Min(d, drMax)
			d = math.Max(d, 0)
			delta[i] = d
		}

		// Geometrically decaying step budget with a floor, so early
		// cycles make large corrections and late cycles fine ones.
		decay := math.Pow(0.5, float64(cycle)/float64(params.HalfLife))
		if params.InitialStep.Absolute {
			step := math.Round(params.InitialStep.Value * decay)
			if step < params.MinStep.Value {
				step = params.MinStep.Value
			}
			for i := 0; i < n; i++ {
				delta[i] = math.Floor(math.Min(delta[i], step))
			}
		} else {
			step := params.InitialStep.Value * decay
			if step < params.MinStep.Value {
				step = params.MinStep.Value
			}
			for i := 0; i < n; i++ {
				delta[i] = math.Floor(math.Min(delta[i], step*m.demand[i]))
			}
		}

		// Anti-flood: during the early cycles, scale down transfers
		// proportionally wherever the naive inflow to a destination
		// would exceed its capacity.
		if cycle < params.LimitInitial {
			for j := 0; j < k; j++ {
				inflow[j] = 0
			}
			for i := 0; i < n; i++ {
				inflow[minJ[i]] += delta[i]
			}
			for i := 0; i < n; i++ {
				if scale := inflow[minJ[i]] / m.supply[minJ[i]]; scale > 1 {
					delta[i] = math.Round(delta[i] / scale)
				}
			}
		}

		for i := 0; i < n; i++ {
			assignment[i][minJ[i]] += delta[i]
			assignment[i][maxJ[i]] -= delta[i]
		}

		if err := checkMass(assignment, m.demand); err != nil {
			return nil, err
		}
	}

	// Final experienced cost under the converged assignment.
	for j := 0; j < k; j++ {
		load[j] = 0
	}
	for i := 0; i < n; i++ {
		for j := 0; j < k; j++ {
			load[j] += assignment[i][j]
		}
	}
	for j := 0; j < k; j++ {
		congestion[j] = load[j] / m.supply[j]
	}

	cost := make([]float64, n)
	for i := 0; i < n; i++ {
		var sum float64
		for j := 0; j < k; j++ {
			if assignment[i][j] == 0 {
				continue
			}
			travel, _ := m.travel.at(i, j)
			sum += (congestion[j] + travel) * assignment[i][j]
		}
		cost[i] = sum / m.demand[i]
	}
	return cost, nil
}

// checkMass fails when an origin's row no longer sums to its demand:
// transfers move demand between destinations and can never create or
// destroy it, so a drift here is a solver bug.
func checkMass(assignment [][]float64, demand []float64) error {
	for i, row := range assignment {
		var sum float64
		for _, v := range row {
			sum += v
		}
		if math.Abs(sum-demand[i]) > massTolerance {
			return eris.Errorf("raam: mass conservation violated at origin %d: %g != %g", i, sum, demand[i])
		}
	}
	return nil
}
