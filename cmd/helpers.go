package main

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/spatial-access/internal/dataset"
	"github.com/sells-group/spatial-access/internal/fetcher"
	"github.com/sells-group/spatial-access/internal/store"
	"github.com/sells-group/spatial-access/internal/table"
)

func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.New(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "init store")
	}
	return st, nil
}

func newDatasetCache() *dataset.Cache {
	return dataset.NewCache(cfg.Dataset.CacheDir, cfg.Dataset.BaseURL, newHTTPFetcher())
}

func newHTTPFetcher() *fetcher.HTTPFetcher {
	return fetcher.NewHTTPFetcher(httpOptions())
}

func httpOptions() fetcher.HTTPOptions {
	return fetcher.HTTPOptions{
		Timeout:           timeoutSecs(cfg.Fetch.TimeoutSecs),
		MaxRetries:        cfg.Fetch.Retries,
		RequestsPerSecond: cfg.Fetch.RequestsPerSecond,
	}
}

func timeoutSecs(secs int) time.Duration {
	return time.Duration(secs) * time.Second
}

// openInput opens either a dataset key (prefix "dataset:") or a local
// file path, decompressing cached datasets as needed.
func openInput(ctx context.Context, ref string) (io.ReadCloser, error) {
	if key, ok := strings.CutPrefix(ref, "dataset:"); ok {
		return newDatasetCache().Open(ctx, key)
	}
	f, err := os.Open(ref)
	if err != nil {
		return nil, eris.Wrapf(err, "open %s", ref)
	}
	return f, nil
}

func loadLocations(ctx context.Context, ref, idCol, valueCol string) (table.Locations, error) {
	r, err := openInput(ctx, ref)
	if err != nil {
		return nil, err
	}
	defer r.Close() //nolint:errcheck
	return dataset.ReadLocations(ctx, r, idCol, valueCol)
}

func loadCosts(ctx context.Context, ref, metric, originCol, destCol, costCol string) (*table.CostTable, error) {
	r, err := openInput(ctx, ref)
	if err != nil {
		return nil, err
	}
	defer r.Close() //nolint:errcheck
	return dataset.ReadCosts(ctx, r, metric, originCol, destCol, costCol)
}

// outputFormat picks csv or xlsx from the file extension.
func outputFormat(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return "csv", nil
	case ".xlsx":
		return "xlsx", nil
	default:
		return "", eris.Errorf("unsupported output extension on %q (want .csv or .xlsx)", path)
	}
}
