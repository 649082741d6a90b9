package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jonathan/tender-radar/internal/types"
)

func TestRenderTenders(t *testing.T) {
	deadline := time.Date(2026, 4, 30, 0, 0, 0, 0, time.UTC)
	tenders := []*types.Tender{
		{
			ID:           "0123456789abcdef0123",
			Source:       types.SourceAPIA,
			Title:        "Mid-term review of the school feeding programme",
			Organization: "Ministry of Education",
			Deadline:     &deadline,
			Classification: &types.Verdict{
				IsRelevant: true, Confidence: 87.5, Method: types.MethodPrimary,
			},
		},
		{ID: "short", Source: types.SourceRSS, Title: "Unclassified notice"},
	}

	var buf bytes.Buffer
	renderTenders(&buf, tenders)
	out := buf.String()

	assert.Contains(t, out, "0123456789ab")
	assert.NotContains(t, out, "0123456789abcdef")
	assert.Contains(t, out, "2026-04-30")
	assert.Contains(t, out, "87.5")
	assert.Contains(t, out, "primary")
	assert.Contains(t, out, "2 tender(s)")
}

func TestRenderRunLogs(t *testing.T) {
	logs := []types.RunLog{
		{Source: "board", StartedAt: time.Now(), Found: 12, New: 3, Success: true, DurationSeconds: 4.2},
		{Source: "portal", StartedAt: time.Now(), Success: false, Error: "connection refused"},
	}

	var buf bytes.Buffer
	renderRunLogs(&buf, logs)
	out := buf.String()

	assert.Contains(t, out, "board")
	assert.Contains(t, out, "4s")
	assert.Contains(t, out, "failed: connection refused")
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"exactly ten", 11, "exactly ten"},
		{"évaluation finale", 5, "éval…"},
		{"  padded  ", 10, "padded"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, truncate(tt.in, tt.n))
	}
}
