package export

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/wbcard-cli/internal/model"
)

// articleHeaders are first-row values treated as a header and skipped.
var articleHeaders = map[string]bool{
	"article":    true,
	"vendorcode": true,
	"артикул":    true,
}

// ReadArticles loads a batch article list. XLSX files use the first column
// of the first sheet, CSV files the first field of each row, and any other
// file one article per line. Blank entries and duplicates are dropped and
// the order of first appearance is kept.
func ReadArticles(path string) ([]string, error) {
	var (
		raw []string
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		raw, err = readXLSXColumn(path)
	case ".csv":
		raw, err = readCSVColumn(path)
	default:
		raw, err = readLines(path)
	}
	if err != nil {
		return nil, err
	}
	return dedupeArticles(raw), nil
}

func readXLSXColumn(path string) ([]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "export: open xlsx")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.Errorf("export: %s has no sheets", path)
	}
	var out []string
	for _, row := range f.Sheets[0].Rows {
		if row == nil || len(row.Cells) == 0 {
			continue
		}
		out = append(out, cellText(row.Cells[0]))
	}
	return out, nil
}

func readCSVColumn(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "export: open csv")
	}
	defer f.Close() //nolint:errcheck

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.Comment = '#'

	var out []string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, eris.Wrap(err, "export: read csv row")
		}
		if len(record) > 0 {
			out = append(out, record[0])
		}
	}
}

func readLines(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "export: read article list")
	}
	return strings.Split(string(data), "\n"), nil
}

func dedupeArticles(raw []string) []string {
	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for i, a := range raw {
		a = model.NormalizeArticle(strings.TrimPrefix(a, "\ufeff"))
		if a == "" || seen[a] {
			continue
		}
		if i == 0 && articleHeaders[strings.ToLower(a)] {
			continue
		}
		seen[a] = true
		out = append(out, a)
	}
	return out
}
