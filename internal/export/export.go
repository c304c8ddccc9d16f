// Package export writes final card records to JSON and XLSX and reads
// article lists for batch runs.
package export

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/wbcard-cli/internal/model"
)

// Format selects the export encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatXLSX Format = "xlsx"
)

// FormatForPath picks the format from the file extension; anything that is
// not .xlsx is written as JSON.
func FormatForPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return FormatXLSX
	}
	return FormatJSON
}

// WriteJSON writes one record as an indented object, or several as an array.
func WriteJSON(w io.Writer, records ...model.FinalRecord) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)

	var v any = records
	if len(records) == 1 {
		v = records[0]
	}
	return eris.Wrap(enc.Encode(v), "export: encode json")
}

// Cards sheet columns. Characteristics are flattened to one column each,
// in first-seen order across all records.
var cardColumns = []string{"article", "nmID", "subjectID", "title", "description", "validation_score", "description_score"}

// BuildXLSX lays records out on a "cards" sheet.
func BuildXLSX(records []model.FinalRecord) (*xlsx.File, error) {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("cards")
	if err != nil {
		return nil, eris.Wrap(err, "export: add sheet")
	}

	var charNames []string
	seen := make(map[string]bool)
	for _, r := range records {
		for _, c := range r.Characteristics {
			if !seen[c.Name] {
				seen[c.Name] = true
				charNames = append(charNames, c.Name)
			}
		}
	}

	header := sheet.AddRow()
	for _, name := range append(append([]string(nil), cardColumns...), charNames...) {
		header.AddCell().SetString(name)
	}

	for _, r := range records {
		row := sheet.AddRow()
		row.AddCell().SetString(r.Article)
		row.AddCell().SetInt64(r.NmID)
		row.AddCell().SetInt64(r.SubjectID)
		row.AddCell().SetString(r.Title)
		row.AddCell().SetString(r.Description)
		setScore(row.AddCell(), r.ValidationScore)
		setScore(row.AddCell(), r.DescriptionMeta.Score)

		values := make(map[string]string, len(r.Characteristics))
		for _, c := range r.Characteristics {
			values[c.Name] = c.Value.String()
		}
		for _, name := range charNames {
			row.AddCell().SetString(values[name])
		}
	}
	return f, nil
}

func setScore(cell *xlsx.Cell, v *float64) {
	if v == nil {
		cell.SetString("")
		return
	}
	cell.SetFloat(*v)
}

// WriteXLSX saves records to an .xlsx file.
func WriteXLSX(path string, records ...model.FinalRecord) error {
	f, err := BuildXLSX(records)
	if err != nil {
		return err
	}
	return eris.Wrapf(f.Save(path), "export: save %s", path)
}

// WriteFile writes records to path in the format its extension implies.
func WriteFile(path string, records ...model.FinalRecord) error {
	if FormatForPath(path) == FormatXLSX {
		return WriteXLSX(path, records...)
	}
	out, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "export: create %s", path)
	}
	if err := WriteJSON(out, records...); err != nil {
		_ = out.Close()
		return err
	}
	return eris.Wrapf(out.Close(), "export: close %s", path)
}

func cellText(cell *xlsx.Cell) string {
	if cell.Type() == xlsx.CellTypeNumeric {
		if f, err := cell.Float(); err == nil {
			return strconv.FormatFloat(f, 'f', -1, 64)
		}
	}
	return cell.String()
}
