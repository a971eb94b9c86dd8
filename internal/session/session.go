// Package session provides the stateful façade over the access
// engines: it validates the demand, supply, and cost tables once,
// tracks named result columns across calls, and fans computations out
// over supply types.
package session

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/spatial-access/internal/catchment"
	"github.com/sells-group/spatial-access/internal/fca"
	"github.com/sells-group/spatial-access/internal/raam"
	"github.com/sells-group/spatial-access/internal/table"
	"github.com/sells-group/spatial-access/internal/weights"
)

// Options describe the tables a session operates on. The neighbor
// (demand-to-demand) cost relation is optional and falls back to the
// supply-side relation when absent.
type Options struct {
	Demand       table.Locations
	Supply       map[string]table.Locations // supply type -> magnitudes
	Cost         *table.CostTable           // demand -> supply
	NeighborCost *table.CostTable           // demand -> demand

	// DefaultCost and DefaultNeighborCost name the metric used when a
	// call does not pick one. They default to the lone metric of each
	// table and must be set explicitly when several coexist.
	DefaultCost         string
	DefaultNeighborCost string

	// WarnUncovered logs, at construction, the count of demand
	// locations absent from the cost origins. Advisory only.
	WarnUncovered bool
}

// Session holds validated inputs and accumulated result columns. The
// default cost metrics are explicit session state, changed only
// through validated setters.
type Session struct {
	demand       table.Locations
	supply       map[string]table.Locations
	cost         *table.CostTable
	neighborCost *table.CostTable

	defaultCost         string
	defaultNeighborCost string

	mu      sync.Mutex
	results map[string]table.Series

	log *zap.Logger
}

// New validates the tables and builds a session. Schema problems are
// construction-time errors; data conditions (partial coverage, empty
// catchments) never are.
func New(opts Options) (*Session, error) {
	if len(opts.Demand) == 0 {
		return nil, eris.New("session: demand table is empty")
	}
	if len(opts.Supply) == 0 {
		return nil, eris.New("session: at least one supply type is required")
	}
	if opts.Cost == nil || len(opts.Cost.Rows) == 0 {
		return nil, eris.New("session: cost table is empty")
	}
	if opts.NeighborCost == nil {
		opts.NeighborCost = opts.Cost
	}

	defaultCost, err := pickDefault(opts.Cost, opts.DefaultCost, "cost")
	if err != nil {
		return nil, err
	}
	defaultNeighbor, err := pickDefault(opts.NeighborCost, opts.DefaultNeighborCost, "neighbor cost")
	if err != nil {
		return nil, err
	}

	s := &Session{
		demand:              opts.Demand,
		supply:              opts.Supply,
		cost:                opts.Cost,
		neighborCost:        opts.NeighborCost,
		defaultCost:         defaultCost,
		defaultNeighborCost: defaultNeighbor,
		results:             map[string]table.Series{},
		log:                 zap.L().Named("session"),
	}

	if opts.WarnUncovered {
		if missing := fca.Uncovered(s.demand, s.cost, defaultCost); len(missing) > 0 {
			s.log.Warn("demand locations missing from cost origins can never score",
				zap.Int("count", len(missing)),
			)
		}
	}

	return s, nil
}

func pickDefault(t *table.CostTable, name, what string) (string, error) {
	metrics := t.Metrics()
	if name == "" {
		if len(metrics) != 1 {
			return "", eris.Errorf("session: %s table has %d metrics, a default must be named", what, len(metrics))
		}
		return metrics[0], nil
	}
	if !t.HasMetric(name) {
		return "", eris.Errorf("session: %q is not an available %s metric", name, what)
	}
	return name, nil
}

// DefaultCost returns the supply-side default metric.
func (s *Session) DefaultCost() string { return s.defaultCost }

// SetDefaultCost changes the supply-side default metric.
func (s *Session) SetDefaultCost(name string) error {
	if !s.cost.HasMetric(name) {
		return eris.Errorf("session: %q is not an available cost metric", name)
	}
	s.defaultCost = name
	return nil
}

// DefaultNeighborCost returns the demand-side default metric.
func (s *Session) DefaultNeighborCost() string { return s.defaultNeighborCost }

// SetDefaultNeighborCost changes the demand-side default metric.
func (s *Session) SetDefaultNeighborCost(name string) error {
	if !s.neighborCost.HasMetric(name) {
		return eris.Errorf("session: %q is not an available neighbor cost metric", name)
	}
	s.defaultNeighborCost = name
	return nil
}

// AppendCost joins a new named metric onto the supply-side cost table.
func (s *Session) AppendCost(name string, costs map[table.OD]float64) error {
	return s.cost.AppendMetric(name, costs)
}

// AppendNeighborCost joins a new named metric onto the neighbor cost
// table.
func (s *Session) AppendNeighborCost(name string, costs map[table.OD]float64) error {
	return s.neighborCost.AppendMetric(name, costs)
}

// SupplyTypes returns the configured supply type names, sorted.
func (s *Session) SupplyTypes() []string {
	types := make([]string, 0, len(s.supply))
	for name := range s.supply {
		types = append(types, name)
	}
	sort.Strings(types)
	return types
}

// Demand returns the demand table.
func (s *Session) Demand() table.Locations { return s.demand }

// MethodOptions parameterize one ratio-method invocation.
type MethodOptions struct {
	Name         string   // result column prefix; method name if empty
	Cost         string   // supply-side metric; session default if empty
	NeighborCost string   // demand-side metric; session default if empty
	SupplyTypes  []string // nil means every configured type
	MaxCost      *float64
	Weight       weights.Fn
	Normalize    bool
}

func (s *Session) resolve(opts *MethodOptions, method string) error {
	if opts.Name == "" {
		opts.Name = method
	}
	if opts.Cost == "" {
		opts.Cost = s.defaultCost
		if len(s.cost.Metrics()) > 1 {
			s.log.Info("using default cost", zap.String("cost", opts.Cost), zap.String("for", opts.Name))
		}
	} else if !s.cost.HasMetric(opts.Cost) {
		return eris.Errorf("session: %q is not an available cost metric", opts.Cost)
	}
	if opts.NeighborCost == "" {
		opts.NeighborCost = s.defaultNeighborCost
	} else if !s.neighborCost.HasMetric(opts.NeighborCost) {
		return eris.Errorf("session: %q is not an available neighbor cost metric", opts.NeighborCost)
	}
	if opts.SupplyTypes == nil {
		opts.SupplyTypes = s.SupplyTypes()
	} else {
		for _, st := range opts.SupplyTypes {
			if _, ok := s.supply[st]; !ok {
				return eris.Errorf("session: unknown supply type %q", st)
			}
		}
	}
	return nil
}

// runPerType computes one series per supply type in parallel and
// stores each under "<name>_<type>". Supply types are independent
// slices of the supply table, so the fanout needs no coordination
// beyond the results map.
func (s *Session) runPerType(ctx context.Context, opts MethodOptions, compute func(supplyType string) (table.Series, error)) (map[string]table.Series, error) {
	series := make([]table.Series, len(opts.SupplyTypes))

	g, _ := errgroup.WithContext(ctx)
	for i, st := range opts.SupplyTypes {
		g.Go(func() error {
			out, err := compute(st)
			if err != nil {
				return err
			}
			series[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]table.Series, len(opts.SupplyTypes))
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, st := range opts.SupplyTypes {
		column := fmt.Sprintf("%s_%s", opts.Name, st)
		if _, exists := s.results[column]; exists {
			s.log.Info("overwriting result column", zap.String("column", column))
		}
		s.results[column] = series[i]
		out[column] = series[i]
	}
	return out, nil
}

// FCARatio computes the simple catchment ratio per supply type.
func (s *Session) FCARatio(ctx context.Context, opts MethodOptions) (map[string]table.Series, error) {
	if err := s.resolve(&opts, "fca"); err != nil {
		return nil, err
	}
	return s.runPerType(ctx, opts, func(st string) (table.Series, error) {
		return fca.Ratio(fca.RatioInput{
			Demand:       s.demand,
			Supply:       s.supply[st],
			DemandCost:   s.neighborCost,
			SupplyCost:   s.cost,
			DemandMetric: opts.NeighborCost,
			SupplyMetric: opts.Cost,
			MaxCost:      opts.MaxCost,
			Weight:       opts.Weight,
			Normalize:    opts.Normalize,
		}), nil
	})
}

// Catchment sums, per demand location, the weighted supply reachable
// inside the catchment. Demand locations out of reach of every supply
// site get zero, not NaN: a raw sum is defined there, unlike a ratio.
func (s *Session) Catchment(ctx context.Context, opts MethodOptions) (map[string]table.Series, error) {
	if err := s.resolve(&opts, "catchment"); err != nil {
		return nil, err
	}
	return s.runPerType(ctx, opts, func(st string) (table.Series, error) {
		sum := catchment.Aggregate(s.supply[st], s.cost, catchment.JoinDest, catchment.Options{
			Metric:  opts.Cost,
			MaxCost: opts.MaxCost,
			Weight:  opts.Weight,
		})
		out := sum.Fill(s.demand.IDs(), 0)
		if opts.Normalize {
			out = out.Normalize(s.demand)
		}
		return out, nil
	})
}

// TwoStageFCA computes the 2SFCA score per supply type.
func (s *Session) TwoStageFCA(ctx context.Context, opts MethodOptions) (map[string]table.Series, error) {
	if err := s.resolve(&opts, "2sfca"); err != nil {
		return nil, err
	}
	return s.runPerType(ctx, opts, func(st string) (table.Series, error) {
		return fca.TwoStage(s.methodInput(st, opts)), nil
	})
}

// EnhancedTwoStageFCA computes the E2SFCA score per supply type,
// applying the canonical step weights when none are given.
func (s *Session) EnhancedTwoStageFCA(ctx context.Context, opts MethodOptions) (map[string]table.Series, error) {
	if err := s.resolve(&opts, "e2sfca"); err != nil {
		return nil, err
	}
	return s.runPerType(ctx, opts, func(st string) (table.Series, error) {
		return fca.EnhancedTwoStage(s.methodInput(st, opts)), nil
	})
}

// ThreeStageFCA computes the 3SFCA score per supply type.
func (s *Session) ThreeStageFCA(ctx context.Context, opts MethodOptions) (map[string]table.Series, error) {
	if err := s.resolve(&opts, "3sfca"); err != nil {
		return nil, err
	}
	return s.runPerType(ctx, opts, func(st string) (table.Series, error) {
		return fca.ThreeStage(s.methodInput(st, opts)), nil
	})
}

func (s *Session) methodInput(supplyType string, opts MethodOptions) fca.Input {
	return fca.Input{
		Demand:    s.demand,
		Supply:    s.supply[supplyType],
		Cost:      s.cost,
		Metric:    opts.Cost,
		MaxCost:   opts.MaxCost,
		Weight:    opts.Weight,
		Normalize: opts.Normalize,
	}
}

// RAAMOptions parameterize a RAAM solve.
type RAAMOptions struct {
	Name        string
	Cost        string
	SupplyTypes []string
	Normalize   bool
	Params      raam.Params
}

// RAAM runs the rational agent model per supply type.
func (s *Session) RAAM(ctx context.Context, opts RAAMOptions) (map[string]table.Series, error) {
	resolved := MethodOptions{Name: opts.Name, Cost: opts.Cost, SupplyTypes: opts.SupplyTypes}
	if err := s.resolve(&resolved, "raam"); err != nil {
		return nil, err
	}
	params := opts.Params
	params.Metric = resolved.Cost

	return s.runPerType(ctx, resolved, func(st string) (table.Series, error) {
		series, err := raam.Solve(s.demand, s.supply[st], s.cost, params)
		if err != nil {
			return nil, eris.Wrapf(err, "session: raam for %s", st)
		}
		if opts.Normalize {
			series = series.Normalize(s.demand)
		}
		return series, nil
	})
}

// Results returns a copy of all stored result columns.
func (s *Session) Results() map[string]table.Series {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]table.Series, len(s.results))
	for name, series := range s.results {
		out[name] = series
	}
	return out
}

// Series returns one stored result column.
func (s *Session) Series(column string) (table.Series, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	series, ok := s.results[column]
	return series, ok
}

// NormalizedScores returns every stored column scaled to a
// demand-weighted mean of one.
func (s *Session) NormalizedScores() map[string]table.Series {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]table.Series, len(s.results))
	for name, series := range s.results {
		out[name] = series.Normalize(s.demand)
	}
	return out
}

// Score combines already-computed columns into a single weighted
// aggregate of their normalized values, stored under name.
func (s *Session) Score(name string, columns map[string]float64) (table.Series, error) {
	if len(columns) == 0 {
		return nil, eris.New("session: score needs at least one column")
	}

	normalized := make(map[string]table.Series, len(columns))
	s.mu.Lock()
	for column := range columns {
		series, ok := s.results[column]
		if !ok {
			s.mu.Unlock()
			return nil, eris.Errorf("session: %q is not a calculated access column", column)
		}
		normalized[column] = series.Normalize(s.demand)
	}
	s.mu.Unlock()

	combined := make(table.Series, len(s.demand))
	for id := range s.demand {
		var sum float64
		for column, w := range columns {
			v, ok := normalized[column][id]
			if !ok {
				// An id a column never scored (an origin with no cost
				// edge) is undefined, not zero.
				sum = math.NaN()
				break
			}
			sum += v * w
		}
		combined[id] = sum
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.results[name]; exists {
		s.log.Info("overwriting result column", zap.String("column", name))
	}
	s.results[name] = combined
	return combined, nil
}
