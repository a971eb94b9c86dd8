package main

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/spatial-access/internal/export"
	"github.com/sells-group/spatial-access/internal/raam"
	"github.com/sells-group/spatial-access/internal/session"
	"github.com/sells-group/spatial-access/internal/table"
	"github.com/sells-group/spatial-access/internal/weights"
)

var scoreFlags struct {
	method string

	demand      string
	demandID    string
	demandValue string

	supply       string
	supplyID     string
	supplyValues []string

	cost       string
	costOrigin string
	costDest   string
	costValue  string

	neighborCost string

	maxCost     float64
	weightsFile string
	normalize   bool

	raamTau       float64
	raamMaxCycles int

	output   string
	idHeader string
	save     bool
}

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Compute access scores from demand, supply, and cost tables",
	Long: `Loads demand, supply, and travel cost CSVs, runs the chosen access
method per supply column, and writes the scores to CSV or XLSX.

Inputs are local paths or bundled dataset keys (dataset:chi_pop).
Each --supply-value column becomes its own supply type with its own
result column.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("score"); err != nil {
			return err
		}

		sess, err := buildSession(ctx)
		if err != nil {
			return err
		}

		results, params, err := runMethod(ctx, sess)
		if err != nil {
			return err
		}

		if scoreFlags.save {
			if err := persistRun(ctx, results, params); err != nil {
				return err
			}
		}

		format, err := outputFormat(scoreFlags.output)
		if err != nil {
			return err
		}
		opts := export.Options{IDHeader: scoreFlags.idHeader}
		switch format {
		case "xlsx":
			err = export.WriteXLSX(scoreFlags.output, results, opts)
		default:
			err = export.WriteCSVFile(scoreFlags.output, results, opts)
		}
		if err != nil {
			return err
		}

		zap.L().Info("scores written",
			zap.String("method", scoreFlags.method),
			zap.Int("columns", len(results)),
			zap.String("output", scoreFlags.output),
		)
		return nil
	},
}

func buildSession(ctx context.Context) (*session.Session, error) {
	demand, err := loadLocations(ctx, scoreFlags.demand, scoreFlags.demandID, scoreFlags.demandValue)
	if err != nil {
		return nil, err
	}

	supply := make(map[string]table.Locations, len(scoreFlags.supplyValues))
	for _, col := range scoreFlags.supplyValues {
		locs, err := loadLocations(ctx, scoreFlags.supply, scoreFlags.supplyID, col)
		if err != nil {
			return nil, err
		}
		supply[col] = locs
	}

	costs, err := loadCosts(ctx, scoreFlags.cost, "cost",
		scoreFlags.costOrigin, scoreFlags.costDest, scoreFlags.costValue)
	if err != nil {
		return nil, err
	}

	opts := session.Options{
		Demand:        demand,
		Supply:        supply,
		Cost:          costs,
		WarnUncovered: cfg.Engine.WarnUncovered,
	}
	if scoreFlags.neighborCost != "" {
		neighbor, err := loadCosts(ctx, scoreFlags.neighborCost, "cost",
			scoreFlags.costOrigin, scoreFlags.costDest, scoreFlags.costValue)
		if err != nil {
			return nil, err
		}
		opts.NeighborCost = neighbor
	}

	return session.New(opts)
}

func runMethod(ctx context.Context, sess *session.Session) (map[string]table.Series, map[string]any, error) {
	normalize := scoreFlags.normalize || cfg.Engine.Normalize
	params := map[string]any{"normalize": normalize}

	method := session.MethodOptions{Normalize: normalize}
	mc := scoreFlags.maxCost
	if mc < 0 {
		mc = cfg.Engine.MaxCost
	}
	if mc > 0 {
		method.MaxCost = &mc
		params["max_cost"] = mc
	}
	wf := scoreFlags.weightsFile
	if wf == "" {
		wf = cfg.Engine.WeightsFile
	}
	if wf != "" {
		fn, err := weights.LoadSpec(wf)
		if err != nil {
			return nil, nil, err
		}
		method.Weight = fn
		params["weights"] = wf
	}

	var (
		results map[string]table.Series
		err     error
	)
	switch scoreFlags.method {
	case "catchment":
		results, err = sess.Catchment(ctx, method)
	case "fca":
		results, err = sess.FCARatio(ctx, method)
	case "2sfca":
		results, err = sess.TwoStageFCA(ctx, method)
	case "e2sfca":
		results, err = sess.EnhancedTwoStageFCA(ctx, method)
	case "3sfca":
		results, err = sess.ThreeStageFCA(ctx, method)
	case "raam":
		tau := scoreFlags.raamTau
		if tau == 0 {
			tau = cfg.Engine.RAAMTau
		}
		cycles := scoreFlags.raamMaxCycles
		if cycles == 0 {
			cycles = cfg.Engine.RAAMMaxCycles
		}
		params["tau"] = tau
		params["max_cycles"] = cycles
		results, err = sess.RAAM(ctx, session.RAAMOptions{
			Normalize: normalize,
			Params:    raam.Params{Tau: tau, MaxCycles: cycles},
		})
	default:
		return nil, nil, eris.Errorf("unknown method %q (want catchment, fca, 2sfca, e2sfca, 3sfca, or raam)", scoreFlags.method)
	}
	if err != nil {
		return nil, nil, err
	}
	return results, params, nil
}

func persistRun(ctx context.Context, results map[string]table.Series, params map[string]any) error {
	st, err := initStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck
	if err := st.Migrate(ctx); err != nil {
		return err
	}

	run, err := st.CreateRun(ctx, scoreFlags.method, "cost", params)
	if err != nil {
		return err
	}
	if err := st.CompleteRun(ctx, run.ID, results); err != nil {
		return err
	}
	fmt.Println(run.ID)
	return nil
}

func init() {
	f := scoreCmd.Flags()
	f.StringVar(&scoreFlags.method, "method", "2sfca", "scoring method: catchment, fca, 2sfca, e2sfca, 3sfca, raam")

	f.StringVar(&scoreFlags.demand, "demand", "", "demand CSV path or dataset key (required)")
	f.StringVar(&scoreFlags.demandID, "demand-id", "geoid", "demand id column")
	f.StringVar(&scoreFlags.demandValue, "demand-value", "pop", "demand magnitude column")

	f.StringVar(&scoreFlags.supply, "supply", "", "supply CSV path or dataset key (required)")
	f.StringVar(&scoreFlags.supplyID, "supply-id", "geoid", "supply id column")
	f.StringSliceVar(&scoreFlags.supplyValues, "supply-value", []string{"doc"}, "supply magnitude columns, one result per column")

	f.StringVar(&scoreFlags.cost, "cost", "", "cost CSV path or dataset key (required)")
	f.StringVar(&scoreFlags.costOrigin, "cost-origin", "origin", "cost origin column")
	f.StringVar(&scoreFlags.costDest, "cost-dest", "dest", "cost destination column")
	f.StringVar(&scoreFlags.costValue, "cost-value", "cost", "cost value column")

	f.StringVar(&scoreFlags.neighborCost, "neighbor-cost", "", "demand-to-demand cost CSV (defaults to --cost)")

	f.Float64Var(&scoreFlags.maxCost, "max-cost", -1, "catchment cutoff, exclusive (-1 uses config engine.max_cost, 0 disables)")
	f.StringVar(&scoreFlags.weightsFile, "weights", "", "YAML weight function spec")
	f.BoolVar(&scoreFlags.normalize, "normalize", false, "scale each column to a demand-weighted mean of one")

	f.Float64Var(&scoreFlags.raamTau, "tau", 0, "raam congestion time scale (default from config)")
	f.IntVar(&scoreFlags.raamMaxCycles, "max-cycles", 0, "raam cycle cap (default from config)")

	f.StringVar(&scoreFlags.output, "output", "scores.csv", "output file (.csv or .xlsx)")
	f.StringVar(&scoreFlags.idHeader, "id-header", "geoid", "output id column header")
	f.BoolVar(&scoreFlags.save, "save", false, "persist the run and scores to the store")

	_ = scoreCmd.MarkFlagRequired("demand")
	_ = scoreCmd.MarkFlagRequired("supply")
	_ = scoreCmd.MarkFlagRequired("cost")

	rootCmd.AddCommand(scoreCmd)
}
