// Package export writes tender snapshots as CSV or XLSX with a fixed column order.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/jonathan/tender-radar/internal/types"
)

// Columns is the export column order.
var Columns = []string{
	"id", "source", "title", "organization", "country", "publication_date", "deadline",
	"classification_codes", "is_relevant", "confidence", "method", "reasoning", "url",
}

// Format is an export file format.
type Format string

// Supported formats.
const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// FormatFromPath picks the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	}
	return "", fmt.Errorf("unsupported export format %q (want .csv or .xlsx)", filepath.Ext(path))
}

const sheetName = "Tenders"

// Row renders t in Columns order. Unclassified tenders have empty verdict cells.
func Row(t *types.Tender) []string {
	row := []string{
		t.ID,
		string(t.Source),
		t.Title,
		t.Organization,
		t.Country,
		formatDate(t.PublicationDate),
		formatDate(t.Deadline),
		strings.Join(t.ClassificationCodes, ";"),
		"", "", "", "",
		t.URL,
	}
	if v := t.Classification; v != nil {
		row[8] = strconv.FormatBool(v.IsRelevant)
		row[9] = strconv.FormatFloat(v.Confidence, 'f', 1, 64)
		row[10] = string(v.Method)
		row[11] = v.Reasoning
	}
	return row
}

func formatDate(d *time.Time) string {
	if d == nil {
		return ""
	}
	return d.Format("2006-01-02")
}

// WriteCSV writes a header row and one row per tender.
func WriteCSV(w io.Writer, tenders []*types.Tender) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, t := range tenders {
		if err := cw.Write(Row(t)); err != nil {
			return fmt.Errorf("failed to write CSV row %s: %w", t.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteXLSX writes a single-sheet workbook with a bold, frozen header row.
func WriteXLSX(w io.Writer, tenders []*types.Tender) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}
	header := make([]any, len(Columns))
	for i, c := range Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i, t := range tenders {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := xlsxValues(t)
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return fmt.Errorf("failed to write row %s: %w", t.ID, err)
		}
	}

	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	last, _ := excelize.CoordinatesToCellName(len(Columns), 1)
	if err := f.SetCellStyle(sheetName, "A1", last, style); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}
	if err := f.SetPanes(sheetName, &excelize.Panes{
		Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft",
	}); err != nil {
		return fmt.Errorf("failed to freeze header: %w", err)
	}
	_ = f.SetColWidth(sheetName, "C", "C", 60)
	_ = f.SetColWidth(sheetName, "L", "L", 80)

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// xlsxValues keeps booleans and confidence numeric so spreadsheets can sort and filter them.
func xlsxValues(t *types.Tender) []any {
	row := Row(t)
	values := make([]any, len(row))
	for i, v := range row {
		values[i] = v
	}
	if c := t.Classification; c != nil {
		values[8] = c.IsRelevant
		values[9] = c.Confidence
	}
	return values
}

// Write dispatches on format.
func Write(w io.Writer, format Format, tenders []*types.Tender) error {
	switch format {
	case FormatCSV:
		return WriteCSV(w, tenders)
	case FormatXLSX:
		return WriteXLSX(w, tenders)
	}
	return fmt.Errorf("unsupported export format %q", format)
}

// ToFile writes tenders to path in the format implied by its extension.
func ToFile(path string, tenders []*types.Tender) error {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create export dir: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := Write(f, format, tenders); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
