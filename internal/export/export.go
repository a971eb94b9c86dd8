// Package export writes computed access columns to CSV and XLSX files.
package export

import (
	"encoding/csv"
	"io"
	"math"
	"os"
	"sort"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/spatial-access/internal/table"
)

// Options configure the output layout.
type Options struct {
	IDHeader string // header for the location id column; "id" if empty
}

// layout flattens result columns into a deterministic grid: one row per
// location id (union of all series), one column per result, sorted.
// NaN values come out as empty cells.
type layout struct {
	header []string
	ids    []string
	cols   []string
}

func buildLayout(results map[string]table.Series, opts Options) (layout, error) {
	if len(results) == 0 {
		return layout{}, eris.New("export: no result columns")
	}

	idHeader := opts.IDHeader
	if idHeader == "" {
		idHeader = "id"
	}

	cols := make([]string, 0, len(results))
	for c := range results {
		cols = append(cols, c)
	}
	sort.Strings(cols)

	idSet := map[string]bool{}
	for _, series := range results {
		for id := range series {
			idSet[id] = true
		}
	}
	ids := make([]string, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return layout{header: append([]string{idHeader}, cols...), ids: ids, cols: cols}, nil
}

// WriteCSV writes the result columns as CSV.
func WriteCSV(w io.Writer, results map[string]table.Series, opts Options) error {
	lay, err := buildLayout(results, opts)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(lay.header); err != nil {
		return eris.Wrap(err, "export: write header")
	}

	row := make([]string, len(lay.header))
	for _, id := range lay.ids {
		row[0] = id
		for i, col := range lay.cols {
			row[i+1] = formatCell(results[col], id)
		}
		if err := cw.Write(row); err != nil {
			return eris.Wrapf(err, "export: write row %s", id)
		}
	}

	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush")
}

// WriteCSVFile writes the result columns to a CSV file.
func WriteCSVFile(path string, results map[string]table.Series, opts Options) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "export: create csv")
	}
	if err := WriteCSV(f, results, opts); err != nil {
		f.Close()
		return err
	}
	return eris.Wrap(f.Close(), "export: close csv")
}

// WriteXLSX writes the result columns to an XLSX workbook with a single
// "scores" sheet.
func WriteXLSX(path string, results map[string]table.Series, opts Options) error {
	lay, err := buildLayout(results, opts)
	if err != nil {
		return err
	}

	f := xlsx.NewFile()
	sheet, err := f.AddSheet("scores")
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	header := sheet.AddRow()
	for _, h := range lay.header {
		header.AddCell().SetString(h)
	}

	for _, id := range lay.ids {
		row := sheet.AddRow()
		row.AddCell().SetString(id)
		for _, col := range lay.cols {
			cell := row.AddCell()
			if v, ok := results[col][id]; ok && !math.IsNaN(v) {
				cell.SetFloat(v)
			}
		}
	}

	return eris.Wrap(f.Save(path), "export: save xlsx")
}

func formatCell(series table.Series, id string) string {
	v, ok := series[id]
	if !ok || math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
