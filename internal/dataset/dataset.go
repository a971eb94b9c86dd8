// Package dataset manages the bundled Chicago and Cook County example
// datasets: a registry of known files, a download cache, and CSV
// loaders that turn them into demand, supply, and cost tables.
package dataset

import (
	"compress/bzip2"
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/spatial-access/internal/fetcher"
)

// Dataset describes one downloadable example file.
type Dataset struct {
	Key         string
	File        string
	Description string
}

var registry = map[string]Dataset{
	"chi_times": {
		Key:         "chi_times",
		File:        "chicago_metro_times.csv.bz2",
		Description: "Cost matrix with travel times from each Chicago Census Tract to all others.",
	},
	"chi_doc": {
		Key:         "chi_doc",
		File:        "chicago_metro_docs_dentists.csv",
		Description: "Doctor and dentist counts for each Chicago Census Tract.",
	},
	"chi_pop": {
		Key:         "chi_pop",
		File:        "chicago_metro_pop.csv",
		Description: "Population counts for each Chicago Census Tract.",
	},
	"chi_euclidean": {
		Key:         "chi_euclidean",
		File:        "chicago_metro_euclidean_costs.csv.bz2",
		Description: "Euclidean distance cost matrix with distances from each demand Chicago Census Tract to all others.",
	},
	"chi_euclidean_neighbors": {
		Key:         "chi_euclidean_neighbors",
		File:        "chicago_metro_euclidean_cost_neighbors.csv.bz2",
		Description: "Euclidean distance cost matrix with distances from each supply Census Tract to all others.",
	},
	"cook_county_hospitals": {
		Key:         "cook_county_hospitals",
		File:        "cook_county_hospitals.csv",
		Description: "Data for each hospital location in Cook County including X Y coordinates.",
	},
}

// Available returns the registry entries sorted by key.
func Available() []Dataset {
	out := make([]Dataset, 0, len(registry))
	for _, d := range registry {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Lookup resolves a dataset key.
func Lookup(key string) (Dataset, error) {
	d, ok := registry[key]
	if !ok {
		keys := make([]string, 0, len(registry))
		for k := range registry {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return Dataset{}, eris.Errorf("dataset: unknown key %q (available: %s)", key, strings.Join(keys, ", "))
	}
	return d, nil
}

// Cache downloads datasets on first use and keeps them on disk.
type Cache struct {
	dir     string
	baseURL string
	fetcher fetcher.Fetcher
	log     *zap.Logger
}

// NewCache builds a cache rooted at dir, downloading from baseURL.
func NewCache(dir, baseURL string, f fetcher.Fetcher) *Cache {
	if f == nil {
		f = fetcher.NewHTTPFetcher(fetcher.HTTPOptions{})
	}
	return &Cache{
		dir:     dir,
		baseURL: strings.TrimSuffix(baseURL, "/") + "/",
		fetcher: f,
		log:     zap.L().Named("dataset"),
	}
}

// Path returns the local path for a dataset, downloading it if absent.
func (c *Cache) Path(ctx context.Context, key string) (string, error) {
	d, err := Lookup(key)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return "", eris.Wrap(err, "dataset: create cache dir")
	}

	path := filepath.Join(c.dir, d.File)
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	url := c.baseURL + d.File
	c.log.Info("downloading dataset", zap.String("key", key), zap.String("url", url))
	if _, err := c.fetcher.DownloadToFile(ctx, url, path); err != nil {
		return "", eris.Wrapf(err, "dataset: download %s", key)
	}
	return path, nil
}

// Open returns a reader over the dataset contents, transparently
// decompressing bzip2 files.
func (c *Cache) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	path, err := c.Path(ctx, key)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: open %s", key)
	}

	if strings.HasSuffix(path, ".bz2") {
		return &decompressReader{r: bzip2.NewReader(f), f: f}, nil
	}
	return f, nil
}

// decompressReader closes the underlying file when the decompressed
// stream is closed.
type decompressReader struct {
	r io.Reader
	f *os.File
}

func (d *decompressReader) Read(p []byte) (int, error) { return d.r.Read(p) }
func (d *decompressReader) Close() error               { return d.f.Close() }
