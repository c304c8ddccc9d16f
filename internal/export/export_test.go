package export

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/wbcard-cli/internal/model"
)

func ptr[T any](v T) *T { return &v }

func sampleRecords() []model.FinalRecord {
	return []model.FinalRecord{
		{
			Article:         "ART-1",
			NmID:            1001,
			SubjectID:       55,
			Title:           "Платье летнее",
			Description:     "Лёгкое платье <b>из хлопка</b>",
			DescriptionMeta: model.DescriptionMeta{Score: ptr(88.5)},
			Characteristics: []model.Characteristic{
				{Name: "Цвет", Value: model.ListValue("синий", "голубой")},
				{Name: "Материал", Value: model.StringValue("хлопок")},
			},
			ValidationScore: ptr(92.0),
		},
		{
			Article: "ART-2",
			NmID:    1002,
			Title:   "Юбка",
			Characteristics: []model.Characteristic{
				{Name: "Длина", Value: model.StringValue("миди")},
				{Name: "Цвет", Value: model.StringValue("красный")},
			},
		},
	}
}

func TestFormatForPath(t *testing.T) {
	assert.Equal(t, FormatXLSX, FormatForPath("out/cards.XLSX"))
	assert.Equal(t, FormatJSON, FormatForPath("cards.json"))
	assert.Equal(t, FormatJSON, FormatForPath("cards"))
}

func TestWriteJSON_SingleIsObject(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, sampleRecords()[0]))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "ART-1", got["article"])
	assert.Equal(t, float64(92), got["validation_score"])
	assert.Contains(t, buf.String(), "<b>из хлопка</b>")

	chars := got["characteristics"].([]any)
	require.Len(t, chars, 2)
	first := chars[0].(map[string]any)
	assert.Equal(t, []any{"синий", "голубой"}, first["value"])
}

func TestWriteJSON_ManyIsArray(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, sampleRecords()...))

	var got []model.FinalRecord
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "ART-2", got[1].Article)
	assert.Nil(t, got[1].ValidationScore)
}

func TestWriteXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cards.xlsx")
	require.NoError(t, WriteFile(path, sampleRecords()...))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	sheet, ok := f.Sheet["cards"]
	require.True(t, ok)
	require.Len(t, sheet.Rows, 3)

	header := rowText(sheet.Rows[0])
	assert.Equal(t, []string{
		"article", "nmID", "subjectID", "title", "description", "validation_score", "description_score",
		"Цвет", "Материал", "Длина",
	}, header)

	first := rowText(sheet.Rows[1])
	assert.Equal(t, "ART-1", first[0])
	assert.Equal(t, "1001", first[1])
	assert.Equal(t, "92", first[5])
	assert.Equal(t, "88.5", first[6])
	assert.Equal(t, "синий, голубой", first[7])
	assert.Equal(t, "", first[9])

	second := rowText(sheet.Rows[2])
	assert.Equal(t, "ART-2", second[0])
	assert.Equal(t, "", second[5])
	assert.Equal(t, "красный", second[7])
	assert.Equal(t, "миди", second[9])
}

func rowText(row *xlsx.Row) []string {
	out := make([]string, len(row.Cells))
	for i, c := range row.Cells {
		out[i] = cellText(c)
	}
	return out
}

func TestWriteFile_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "card.json")
	require.NoError(t, WriteFile(path, sampleRecords()[1]))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got model.FinalRecord
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "Юбка", got.Title)
}

func TestWriteFile_BadDir(t *testing.T) {
	err := WriteFile(filepath.Join(t.TempDir(), "missing", "card.json"), sampleRecords()[0])
	require.Error(t, err)
	assert.Contains(t, err.Error(), "export: create")
}
