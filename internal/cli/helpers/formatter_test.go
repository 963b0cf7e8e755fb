package helpers

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testRow struct {
	Name   string `json:"name" header:"NAME"`
	Value  int    `json:"value" header:"VALUE"`
	Hidden string `json:"hidden"`
}

func TestFormatters(t *testing.T) {
	rows := []testRow{{Name: "counter", Value: 42, Hidden: "x"}, {Name: "arr", Value: 3}}

	tests := []struct {
		format OutputFormat
		check  func(t *testing.T, out string)
	}{
		{
			format: FormatText,
			check: func(t *testing.T, out string) {
				assert.Contains(t, out, "NAME")
				assert.Contains(t, out, "counter   42")
				assert.NotContains(t, out, "x\n")
			},
		},
		{
			format: FormatCSV,
			check: func(t *testing.T, out string) {
				assert.Equal(t, "NAME,VALUE\ncounter,42\narr,3\n", out)
			},
		},
		{
			format: FormatJSON,
			check: func(t *testing.T, out string) {
				var got []testRow
				require.NoError(t, json.Unmarshal([]byte(out), &got))
				assert.Equal(t, rows, got)
			},
		},
	}

	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			f, err := NewFormatter(tt.format)
			require.NoError(t, err)
			var buf bytes.Buffer
			require.NoError(t, f.Format(rows, &buf))
			tt.check(t, buf.String())
		})
	}
}

func TestFormatters_EmptyAndInvalid(t *testing.T) {
	for _, format := range []OutputFormat{FormatText, FormatCSV} {
		f, err := NewFormatter(format)
		require.NoError(t, err)

		var buf bytes.Buffer
		require.NoError(t, f.Format([]testRow{}, &buf))
		assert.Empty(t, buf.String())
		assert.Error(t, f.Format(testRow{}, &buf))
	}

	_, err := NewFormatter(FormatYAML)
	assert.Error(t, err)
}

func TestValidateFormat(t *testing.T) {
	assert.NoError(t, ValidateFormat("csv", RecordFormats))

	err := ValidateFormat("xml", RecordFormats)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "text, json, csv")
}

func TestAddFormatFlag(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	var format string
	AddFormatFlag(cmd, &format, FormatText, RecordFormats)

	require.NoError(t, cmd.ParseFlags([]string{"-o", "json"}))
	assert.Equal(t, "json", format)
}
