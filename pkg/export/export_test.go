package export

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/bascanada/logexplorer/pkg/backend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteCSV(t *testing.T) {
	rows := []backend.Row{
		{"level": "error", "message": `disk "sda" full, retrying`, "status": 500.0},
		{"level": "info", "message": "line1\nline2"},
		{"level": nil, "status": int64(200)},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, []string{"level", "status", "message"}, rows))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"level", "status", "message"},
		{"error", "500", `disk "sda" full, retrying`},
		{"info", "", "line1\nline2"},
		{"", "200", ""},
	}, records)
}

func TestWriteCSV_DefaultHeaders(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, nil, []backend.Row{{"b": "1"}, {"a": "2"}}))
	assert.Equal(t, "a,b\n,1\n2,\n", buf.String())
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, []backend.Row{{"n": 1}}))
	assert.JSONEq(t, `[{"n":1}]`, buf.String())

	buf.Reset()
	require.NoError(t, WriteJSON(&buf, nil))
	assert.JSONEq(t, `[]`, buf.String())
}

func TestStringify(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"x", "x"},
		{1.5, "1.5"},
		{true, "true"},
		{ts, "2026-01-02T03:04:05Z"},
		{map[string]any{"k": "v"}, `{"k":"v"}`},
		{int64(7), "7"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Stringify(tt.in))
	}
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat(" CSV ")
	require.NoError(t, err)
	assert.Equal(t, CSV, f)
	_, err = ParseFormat("xml")
	assert.Error(t, err)
}
