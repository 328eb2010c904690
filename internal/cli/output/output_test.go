package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"table", FormatTable, false},
		{"", FormatTable, false},
		{"json", FormatJSON, false},
		{"JSON", FormatJSON, false},
		{"yaml", FormatYAML, false},
		{"yml", FormatYAML, false},
		{" yaml ", FormatYAML, false},
		{"xml", "", true},
	}

	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintJSON(&buf, map[string]string{"status": "healthy"}))
	assert.JSONEq(t, `{"status":"healthy"}`, buf.String())
	assert.Contains(t, buf.String(), "  ")
}

func TestPrintYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintYAML(&buf, map[string]string{"status": "healthy"}))
	assert.Equal(t, "status: healthy\n", buf.String())
}

func TestSimpleTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, SimpleTable(&buf, [][2]string{
		{"Status", "running"},
		{"Message", "all good"},
	}))

	out := buf.String()
	assert.Contains(t, out, "Status")
	assert.Contains(t, out, "running")
	assert.Contains(t, out, "all good")
	assert.Equal(t, 2, strings.Count(strings.TrimRight(out, "\n"), "\n")+1)
}
