// Package importer reads prospect lists for batch runs from CSV and XLSX
// files.
package importer

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prospector/internal/model"
	"github.com/sells-group/prospector/internal/pipeline"
)

// Column aliases accepted in a header row.
var columnAliases = map[string]string{
	"website":       "website",
	"url":           "website",
	"domain":        "website",
	"name":          "name",
	"business_name": "name",
	"business":      "name",
	"company":       "name",
	"city":          "city",
}

// columns maps a field to its index in a row; -1 when absent.
type columns struct {
	website, name, city int
}

// positional is used when the file has no recognizable header:
// website, name, city.
var positional = columns{website: 0, name: 1, city: 2}

// ReadFile loads run requests from a .csv or .xlsx file. Rows without a
// website are skipped and duplicate websites keep their first row.
func ReadFile(ctx context.Context, path, requestedBy string) ([]pipeline.RunRequest, error) {
	var (
		rows [][]string
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt":
		rows, err = ReadCSVFile(ctx, path, CSVOptions{TrimSpace: true, Comment: '#'})
	case ".xlsx":
		rows, err = ReadXLSX(path, XLSXOptions{})
	default:
		return nil, eris.Errorf("importer: unsupported file type %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}
	return toRequests(rows, requestedBy), nil
}

func toRequests(rows [][]string, requestedBy string) []pipeline.RunRequest {
	if len(rows) == 0 {
		return nil
	}

	cols, hasHeader := detectColumns(rows[0])
	if hasHeader {
		rows = rows[1:]
	}

	seen := make(map[string]bool, len(rows))
	out := make([]pipeline.RunRequest, 0, len(rows))
	for _, row := range rows {
		website := model.NormalizeWebsite(cell(row, cols.website))
		if website == "" || seen[website] {
			continue
		}
		seen[website] = true
		out = append(out, pipeline.RunRequest{
			Website:      website,
			BusinessName: cell(row, cols.name),
			City:         cell(row, cols.city),
			RequestedBy:  requestedBy,
		})
	}
	return out
}

// detectColumns reads a header row. A row counts as a header when it names
// the website column.
func detectColumns(header []string) (columns, bool) {
	cols := columns{website: -1, name: -1, city: -1}
	for i, h := range header {
		key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(h)), " ", "_")
		switch columnAliases[key] {
		case "website":
			if cols.website < 0 {
				cols.website = i
			}
		case "name":
			if cols.name < 0 {
				cols.name = i
			}
		case "city":
			if cols.city < 0 {
				cols.city = i
			}
		}
	}
	if cols.website < 0 {
		return positional, false
	}
	return cols, true
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}
