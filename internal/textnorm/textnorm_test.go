package textnorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClean(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "empty", input: "", expected: ""},
		{name: "collapses whitespace", input: "  Road \t\n maintenance  ", expected: "Road maintenance"},
		{name: "strips tags", input: "<p>Supply of <b>laptops</b></p><p>Lot 2</p>", expected: "Supply of laptops Lot 2"},
		{name: "decodes entities", input: "R&amp;D services&nbsp;2025", expected: "R&D services 2025"},
		{name: "drops control characters", input: "Audit\x00 of\x07 accounts", expected: "Audit of accounts"},
		{name: "keeps accents", input: "Étude économique", expected: "Étude économique"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Clean(tt.input))
		})
	}
}

func TestFold(t *testing.T) {
	assert.Equal(t, "etude economique", Fold("  Étude   ÉCONOMIQUE "))
	assert.Equal(t, "licitacao publica", Fold("Licitação Pública"))
	assert.Equal(t, "strasse", Fold("STRASSE"))
}

func TestJoin(t *testing.T) {
	assert.Equal(t, "economic study ministerio", Join("Economic  Study", "", "Ministério"))
}

func TestTokens(t *testing.T) {
	got := Tokens("The Economic study of the road-works sector, 2024 (Lot A)")
	assert.Equal(t, []string{"economic", "study", "road", "works", "sector", "2024", "lot"}, got)
}

func TestTokens_Empty(t *testing.T) {
	assert.Empty(t, Tokens("  <br/> "))
}

func TestTokens_OnlyStopWords(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{in: "Y", want: []string{"y"}},
		{in: "Las de", want: []string{"las", "de"}},
		{in: "A b", want: []string{"a", "b"}},
		{in: "Las obras", want: []string{"obras"}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Tokens(tt.in))
		})
	}
}
