package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/spatial-access/internal/raam"
	"github.com/sells-group/spatial-access/internal/session"
	"github.com/sells-group/spatial-access/internal/store"
	"github.com/sells-group/spatial-access/internal/table"
)

var servePort int

type scoreRequest struct {
	Method string                     `json:"method"`
	Demand map[string]float64         `json:"demand"`
	Supply map[string]table.Locations `json:"supply"`
	Costs  []costTriple               `json:"costs"`

	NeighborCosts []costTriple `json:"neighbor_costs,omitempty"`

	MaxCost   *float64 `json:"max_cost,omitempty"`
	Normalize bool     `json:"normalize,omitempty"`
	Tau       float64  `json:"tau,omitempty"`
	MaxCycles int      `json:"max_cycles,omitempty"`
	Save      bool     `json:"save,omitempty"`
}

type costTriple struct {
	Origin string  `json:"origin"`
	Dest   string  `json:"dest"`
	Cost   float64 `json:"cost"`
}

type scoreResponse struct {
	RunID   string                  `json:"run_id,omitempty"`
	Columns map[string]table.Series `json:"columns"`
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the scoring HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		mux := http.NewServeMux()

		mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
		})

		mux.HandleFunc("POST /score", func(w http.ResponseWriter, r *http.Request) {
			var req scoreRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
				return
			}

			resp, err := handleScore(r.Context(), st, req)
			if err != nil {
				zap.L().Warn("score request failed", zap.Error(err))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnprocessableEntity)
				json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
				return
			}

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(resp)
		})

		mux.HandleFunc("GET /runs/{id}", func(w http.ResponseWriter, r *http.Request) {
			run, err := st.GetRun(r.Context(), r.PathValue("id"))
			if err != nil {
				http.Error(w, `{"error":"run not found"}`, http.StatusNotFound)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(run)
		})

		mux.HandleFunc("GET /runs/{id}/scores", func(w http.ResponseWriter, r *http.Request) {
			results, err := st.Scores(r.Context(), r.PathValue("id"))
			if err != nil {
				http.Error(w, `{"error":"run not found"}`, http.StatusNotFound)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(scoreResponse{Columns: sanitizeNaN(results)})
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		}

		// Graceful shutdown
		go shutdownOnDone(ctx, srv, 10*time.Second)

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func handleScore(ctx context.Context, st store.Store, req scoreRequest) (*scoreResponse, error) {
	if req.Method == "" {
		return nil, eris.New("method is required")
	}

	triples := make(map[table.OD]float64, len(req.Costs))
	for _, t := range req.Costs {
		triples[table.OD{Origin: t.Origin, Dest: t.Dest}] = t.Cost
	}

	opts := session.Options{
		Demand:        req.Demand,
		Supply:        req.Supply,
		Cost:          table.FromTriples("cost", triples),
		WarnUncovered: cfg.Engine.WarnUncovered,
	}
	if len(req.NeighborCosts) > 0 {
		nt := make(map[table.OD]float64, len(req.NeighborCosts))
		for _, t := range req.NeighborCosts {
			nt[table.OD{Origin: t.Origin, Dest: t.Dest}] = t.Cost
		}
		opts.NeighborCost = table.FromTriples("cost", nt)
	}

	sess, err := session.New(opts)
	if err != nil {
		return nil, err
	}

	method := session.MethodOptions{MaxCost: req.MaxCost, Normalize: req.Normalize}
	params := map[string]any{"normalize": req.Normalize}
	if req.MaxCost != nil {
		params["max_cost"] = *req.MaxCost
	}

	var results map[string]table.Series
	switch req.Method {
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
		tau := req.Tau
		if tau == 0 {
			tau = cfg.Engine.RAAMTau
		}
		cycles := req.MaxCycles
		if cycles == 0 {
			cycles = cfg.Engine.RAAMMaxCycles
		}
		params["tau"] = tau
		params["max_cycles"] = cycles
		results, err = sess.RAAM(ctx, session.RAAMOptions{
			Normalize: req.Normalize,
			Params:    raam.Params{Tau: tau, MaxCycles: cycles},
		})
	default:
		return nil, eris.Errorf("unknown method %q (want catchment, fca, 2sfca, e2sfca, 3sfca, or raam)", req.Method)
	}
	if err != nil {
		return nil, err
	}

	resp := &scoreResponse{Columns: sanitizeNaN(results)}
	if req.Save {
		run, err := st.CreateRun(ctx, req.Method, "cost", params)
		if err != nil {
			return nil, err
		}
		if err := st.CompleteRun(ctx, run.ID, results); err != nil {
			return nil, err
		}
		resp.RunID = run.ID
	}
	return resp, nil
}

// shutdownOnDone drains the server once ctx is canceled. The drain
// runs on a fresh context: the signal context is already dead, and
// in-flight requests still get the full timeout to finish.
func shutdownOnDone(ctx context.Context, srv *http.Server, timeout time.Duration) {
	<-ctx.Done()
	zap.L().Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zap.L().Warn("server shutdown", zap.Error(err))
	}
}

// sanitizeNaN drops NaN entries so the response stays valid JSON. A
// location absent from a column had an empty catchment.
func sanitizeNaN(results map[string]table.Series) map[string]table.Series {
	out := make(map[string]table.Series, len(results))
	for col, s := range results {
		clean := make(table.Series, len(s))
		for id, v := range s {
			if math.IsNaN(v) {
				continue
			}
			clean[id] = v
		}
		out[col] = clean
	}
	return out
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
