package helpers

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type row struct {
	Group   string    `header:"Group" json:"group" yaml:"group"`
	Samples int64     `header:"Samples" json:"samples" yaml:"samples"`
	Start   time.Time `header:"Start" json:"start" yaml:"start"`
	Extra   string    `json:"-" yaml:"-"`
}

var rows = []row{
	{Group: "checkout", Samples: 12, Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), Extra: "ignored"},
	{Group: "billing", Samples: 3},
}

func TestNewFormatter(t *testing.T) {
	for _, format := range []OutputFormat{FormatTable, FormatJSON, FormatCSV, FormatYAML} {
		f, err := NewFormatter(format)
		require.NoError(t, err, format)
		assert.NotNil(t, f)
	}

	_, err := NewFormatter(OutputFormat("xml"))
	assert.Error(t, err)
}

func TestJSONFormatter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&JSONFormatter{}).Format(rows, &buf))

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "checkout", decoded[0]["group"])
	assert.NotContains(t, decoded[0], "Extra")
}

func TestYAMLFormatter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&YAMLFormatter{}).Format(rows, &buf))

	var decoded []map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "billing", decoded[1]["group"])
}

func TestTableFormatter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&TableFormatter{}).Format(rows, &buf))

	out := buf.String()
	for _, want := range []string{"Group", "Samples", "Start", "checkout", "2024-01-01T00:00:00Z", "billing", "-"} {
		assert.Contains(t, out, want)
	}
	assert.NotContains(t, out, "ignored")
}

func TestTableFormatterEmptyAndInvalid(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&TableFormatter{}).Format([]row{}, &buf))
	assert.Empty(t, buf.String())

	assert.Error(t, (&TableFormatter{}).Format(rows[0], &buf))
}

func TestCSVFormatter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&CSVFormatter{}).Format(rows, &buf))

	assert.Equal(t,
		"Group,Samples,Start\ncheckout,12,2024-01-01T00:00:00Z\nbilling,3,-\n",
		buf.String())

	assert.Error(t, (&CSVFormatter{}).Format("nope", &buf))
}

func TestCellValue(t *testing.T) {
	assert.Equal(t, "1.500", cellValue(1.5))
	assert.Equal(t, "2s", cellValue(2*time.Second))
	assert.Equal(t, "-", cellValue(time.Time{}))
	assert.Equal(t, "7", cellValue(7))
}
