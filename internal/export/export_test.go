package export

import (
	"bytes"
	"encoding/csv"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/jonathan/tender-radar/internal/types"
)

func sampleTenders() []*types.Tender {
	pub := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	return []*types.Tender{
		{
			ID: "abc", Source: types.SourceAPIA, Title: "Evaluation, phase 2", Organization: "Ministry",
			Country: "FR", PublicationDate: &pub, ClassificationCodes: []string{"79419000", "73000000"},
			URL: "https://example.org/abc",
			Classification: &types.Verdict{IsRelevant: true, Confidence: 87.5, Method: types.MethodPrimary, Reasoning: `says "yes"`},
		},
		{ID: "def", Source: types.SourceRSS, Title: "Unclassified"},
	}
}

func TestRow(t *testing.T) {
	tenders := sampleTenders()

	row := Row(tenders[0])
	require.Len(t, row, len(Columns))
	assert.Equal(t, []string{
		"abc", "api_a", "Evaluation, phase 2", "Ministry", "FR", "2026-04-02", "",
		"79419000;73000000", "true", "87.5", "primary", `says "yes"`, "https://example.org/abc",
	}, row)

	empty := Row(tenders[1])
	assert.Equal(t, "", empty[8])
	assert.Equal(t, "", empty[10])
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleTenders()))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, Columns, records[0])
	assert.Equal(t, "Evaluation, phase 2", records[1][2])
	assert.Equal(t, `says "yes"`, records[1][11])
	assert.Equal(t, "def", records[2][0])
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, sampleTenders()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, Columns, rows[0])
	assert.Equal(t, "abc", rows[1][0])
	assert.Equal(t, "TRUE", rows[1][8])
	assert.Equal(t, "87.5", rows[1][9])
}

func TestFormatFromPath(t *testing.T) {
	f, err := FormatFromPath("out/tenders.CSV")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)

	f, err = FormatFromPath("tenders.xlsx")
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, f)

	_, err = FormatFromPath("tenders.json")
	assert.Error(t, err)
}

func TestToFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, ToFile(filepath.Join(dir, "sub", "out.csv"), sampleTenders()))
	require.NoError(t, ToFile(filepath.Join(dir, "out.xlsx"), sampleTenders()))
	assert.Error(t, ToFile(filepath.Join(dir, "out.txt"), nil))
}
