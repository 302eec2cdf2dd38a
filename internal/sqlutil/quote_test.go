package sqlutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuoteIdentifier(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"autoreg_discovery", "`autoreg_discovery`"},
		{"State2", "`State2`"},
		{"", "``"},
		{"my`table", "`my``table`"},
		{"``", "``````"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, QuoteIdentifier(tt.input))
		})
	}
}

func TestIsValidIdentifier(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"default table", "autoreg_discovery", true},
		{"digits", "state_v2", true},
		{"max length", strings.Repeat("a", 64), true},
		{"too long", strings.Repeat("a", 65), false},
		{"empty", "", false},
		{"hyphen", "state-table", false},
		{"dot", "db.state", false},
		{"space", "state table", false},
		{"injection", "x; DROP TABLE y", false},
		{"backtick", "a`b", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValidIdentifier(tt.input))
		})
	}
}

func TestQuoteIdentifierSafe(t *testing.T) {
	got, err := QuoteIdentifierSafe("autoreg_discovery")
	require.NoError(t, err)
	assert.Equal(t, "`autoreg_discovery`", got)

	_, err = QuoteIdentifierSafe("a`b")
	var invalid *InvalidIdentifierError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "a`b", invalid.Name)
	assert.Contains(t, err.Error(), "invalid identifier")
}
