package main

import (
	"context"
	"encoding/csv"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/spatial-access/internal/euclid"
	"github.com/sells-group/spatial-access/internal/table"
)

var euclidFlags struct {
	origins  string
	originID string
	dests    string
	destID   string
	xCol     string
	yCol     string

	maxDist float64
	scale   float64
	output  string
}

var euclideanCmd = &cobra.Command{
	Use:   "euclidean",
	Short: "Build a straight-line cost table from coordinates",
	Long: `Reads origin and destination sites from CSV (id + projected x/y
columns) or from a shapefile (.shp, id attribute), computes pairwise
distances, and writes an origin/dest/cost CSV usable with score.

Omitting --dests computes origin-to-origin distances, which is the
neighbor table the fca method wants.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		origins, err := loadSites(ctx, euclidFlags.origins, euclidFlags.originID)
		if err != nil {
			return err
		}

		dests := origins
		if euclidFlags.dests != "" {
			dests, err = loadSites(ctx, euclidFlags.dests, euclidFlags.destID)
			if err != nil {
				return err
			}
		}

		maxDist := euclidFlags.maxDist
		if maxDist == 0 {
			maxDist = cfg.Engine.EuclidMaxDist
		}
		costs, err := euclid.CostMatrix(origins, dests, euclid.Options{
			MaxDist: maxDist,
			Scale:   euclidFlags.scale,
		})
		if err != nil {
			return err
		}

		if err := writeCostCSV(euclidFlags.output, costs); err != nil {
			return err
		}

		zap.L().Info("euclidean costs written",
			zap.Int("origins", len(origins)),
			zap.Int("dests", len(dests)),
			zap.Int("pairs", len(costs)),
			zap.String("output", euclidFlags.output),
		)
		return nil
	},
}

func loadSites(ctx context.Context, ref, idCol string) ([]euclid.Site, error) {
	if strings.HasSuffix(strings.ToLower(ref), ".shp") {
		return euclid.LoadShapefile(ref, idCol)
	}

	r, err := openInput(ctx, ref)
	if err != nil {
		return nil, err
	}
	defer r.Close() //nolint:errcheck
	return euclid.LoadCSV(ctx, r, idCol, euclidFlags.xCol, euclidFlags.yCol)
}

func writeCostCSV(path string, costs map[table.OD]float64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close() //nolint:errcheck

	w := csv.NewWriter(f)
	if err := w.Write([]string{"origin", "dest", "cost"}); err != nil {
		return err
	}
	for _, row := range table.FromTriples("cost", costs).Rows {
		rec := []string{row.Origin, row.Dest, strconv.FormatFloat(row.Costs["cost"], 'g', -1, 64)}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func init() {
	f := euclideanCmd.Flags()
	f.StringVar(&euclidFlags.origins, "origins", "", "origin sites: CSV path, dataset key, or .shp (required)")
	f.StringVar(&euclidFlags.originID, "origin-id", "geoid", "origin id column or shapefile attribute")
	f.StringVar(&euclidFlags.dests, "dests", "", "destination sites (defaults to origins)")
	f.StringVar(&euclidFlags.destID, "dest-id", "geoid", "destination id column or shapefile attribute")
	f.StringVar(&euclidFlags.xCol, "x", "x", "x coordinate column")
	f.StringVar(&euclidFlags.yCol, "y", "y", "y coordinate column")

	f.Float64Var(&euclidFlags.maxDist, "max-dist", 0, "drop pairs farther apart than this (0 uses config engine.euclid_max_dist)")
	f.Float64Var(&euclidFlags.scale, "scale", 0, "distance multiplier for unit conversion")
	f.StringVar(&euclidFlags.output, "output", "euclidean.csv", "output cost CSV")

	_ = euclideanCmd.MarkFlagRequired("origins")

	rootCmd.AddCommand(euclideanCmd)
}
