package printer_test

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/bascanada/logexplorer/pkg/backend"
	"github.com/bascanada/logexplorer/pkg/log/printer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrinter_Text(t *testing.T) {
	ts := time.Date(2026, 3, 2, 10, 30, 45, 0, time.Local)
	row := backend.Row{
		"p_timestamp": ts.Format(time.RFC3339Nano),
		"level":       "error",
		"message":     "[svc] payment failed",
		"status":      int64(500),
		"host":        "web-1",
	}

	tests := []struct {
		name     string
		opts     printer.Options
		expected string
	}{
		{
			name:     "default template",
			opts:     printer.Options{Color: printer.ColorNever},
			expected: "[10:30:45] error [svc] payment failed host=web-1 status=500\n",
		},
		{
			name:     "message regex keeps the capture",
			opts:     printer.Options{Color: printer.ColorNever, MessageRegex: `^\[\w+\]\s*(.*)$`, Template: "{{Message .}}"},
			expected: "payment failed\n",
		},
		{
			name:     "custom template",
			opts:     printer.Options{Color: printer.ColorNever, Template: `{{Field . "HOST"}} {{Format (Field . "p_timestamp") "2006-01-02"}}`},
			expected: "web-1 2026-03-02\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			p, err := printer.New(&buf, tt.opts)
			require.NoError(t, err)
			require.NoError(t, p.Print([]backend.Row{row}))
			assert.Equal(t, tt.expected, buf.String())
		})
	}
}

func TestPrinter_JSON(t *testing.T) {
	var buf bytes.Buffer
	p, err := printer.New(&buf, printer.Options{Format: printer.FormatJSON})
	require.NoError(t, err)
	require.NoError(t, p.Print([]backend.Row{{"n": int64(1)}, {"n": int64(2)}}))
	assert.Equal(t, "{\"n\":1}\n{\"n\":2}\n", buf.String())
}

func TestPrinter_Pretty(t *testing.T) {
	var buf bytes.Buffer
	p, err := printer.New(&buf, printer.Options{Format: printer.FormatPretty, Color: printer.ColorNever})
	require.NoError(t, err)
	require.NoError(t, p.PrintRow(backend.Row{"n": int64(1), "level": "info"}))
	assert.Contains(t, buf.String(), `"level"`)
	assert.Contains(t, buf.String(), `"info"`)
	assert.Contains(t, buf.String(), "\n  ", "indented")
	assert.NotContains(t, buf.String(), "\x1b[")
}

func TestPrinter_Errors(t *testing.T) {
	_, err := printer.New(&bytes.Buffer{}, printer.Options{Format: "xml"})
	assert.ErrorContains(t, err, "unknown output format")

	_, err = printer.New(&bytes.Buffer{}, printer.Options{MessageRegex: "("})
	assert.ErrorContains(t, err, "message regex")

	_, err = printer.New(&bytes.Buffer{}, printer.Options{Template: "{{"})
	assert.Error(t, err)

	var buf bytes.Buffer
	p, err := printer.New(&buf, printer.Options{Color: printer.ColorNever})
	require.NoError(t, err)
	p.PrintError(&backend.StreamError{Stream: "app", Err: errors.New("connection reset")})
	assert.Equal(t, "error: connection reset\n", buf.String())
}

func TestExpandJson(t *testing.T) {
	assert.NotEqual(t, "", printer.ExpandJson("get data from json : {\"dadaad\": 2244 }"))
	assert.Equal(t, "", printer.ExpandJson("no json here"))
}

func TestFormatTimestamp(t *testing.T) {
	ts := time.Date(2025, 12, 17, 10, 30, 45, 0, time.UTC)
	assert.Equal(t, ts.Local().Format("15:04:05"), printer.FormatTimestamp(ts, "15:04:05"))
	assert.Equal(t, ts.Local().Format("15:04:05"), printer.FormatTimestamp("2025-12-17T10:30:45Z", "15:04:05"))
	assert.Equal(t, "N/A", printer.FormatTimestamp(time.Time{}, "15:04:05"))
	assert.Equal(t, "N/A", printer.FormatTimestamp(nil, "15:04:05"))
	assert.Equal(t, "yesterday", printer.FormatTimestamp("yesterday", "15:04:05"))
	assert.Equal(t, "1700000000", printer.FormatTimestamp(int64(1700000000), "15:04:05"))
}

func TestKV(t *testing.T) {
	row := backend.Row{"b": 2.5, "a": "x", "Skip": true}
	assert.Equal(t, "a=x b=2.5", printer.KV(row, "skip"))
	assert.Equal(t, "Skip=true a=x b=2.5", printer.KV(row))
}
