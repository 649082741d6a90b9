package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/jonathan/tender-radar/internal/types"
)

const titleWidth = 60

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.Style().Format.Footer = text.FormatDefault
	return t
}

// renderTenders prints one row per tender.
func renderTenders(w io.Writer, tenders []*types.Tender) {
	t := newTable(w)
	t.AppendHeader(table.Row{"ID", "Source", "Title", "Organization", "Deadline", "Relevant", "Confidence", "Method"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Title", WidthMax: titleWidth},
		{Name: "Confidence", Align: text.AlignRight},
	})
	for _, tender := range tenders {
		relevant, confidence, method := "-", "-", "-"
		if v := tender.Classification; v != nil {
			relevant = yesNo(v.IsRelevant)
			confidence = fmt.Sprintf("%.1f", v.Confidence)
			method = string(v.Method)
		}
		t.AppendRow(table.Row{
			shortID(tender.ID),
			tender.Source,
			truncate(tender.Title, titleWidth),
			tender.Organization,
			formatDate(tender.Deadline),
			relevant,
			confidence,
			method,
		})
	}
	t.AppendFooter(table.Row{"", "", fmt.Sprintf("%d tender(s)", len(tenders))})
	t.Render()
}

// renderRunLogs prints run logs, newest first.
func renderRunLogs(w io.Writer, logs []types.RunLog) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Started", "Source", "Found", "New", "Updated", "Classified", "Relevant", "Duration", "Status"})
	for _, l := range logs {
		status := "ok"
		if !l.Success {
			status = "failed: " + truncate(l.Error, 50)
		}
		t.AppendRow(table.Row{
			l.StartedAt.Local().Format("2006-01-02 15:04"),
			l.Source,
			l.Found,
			l.New,
			l.Updated,
			l.Classified,
			l.Relevant,
			(time.Duration(l.DurationSeconds * float64(time.Second))).Round(time.Second),
			status,
		})
	}
	t.Render()
}

// renderExemplars prints the similarity corpus.
func renderExemplars(w io.Writer, exemplars []types.PositiveExemplar) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Added", "Source", "Confidence", "Title"})
	for _, e := range exemplars {
		t.AppendRow(table.Row{
			e.AddedAt.Local().Format("2006-01-02"),
			e.Source,
			fmt.Sprintf("%.2f", e.Confidence),
			truncate(e.Title, titleWidth),
		})
	}
	t.AppendFooter(table.Row{"", "", "", fmt.Sprintf("%d exemplar(s)", len(exemplars))})
	t.Render()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func formatDate(d *time.Time) string {
	if d == nil {
		return "-"
	}
	return d.Format("2006-01-02")
}

// truncate shortens s to n runes, marking the cut with an ellipsis.
func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
