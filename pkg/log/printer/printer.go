// Package printer renders result rows for the terminal: a text template per
// row, one JSON document per line, or indented colored JSON.
package printer

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"text/template"

	"github.com/TylerBrock/colorjson"
	"github.com/bascanada/logexplorer/pkg/backend"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Output formats.
const (
	FormatText   = "text"
	FormatJSON   = "json"
	FormatPretty = "pretty"
)

// DefaultTemplate prints the time, the level, the message and every other
// field as key=value.
const DefaultTemplate = `[{{Time . "15:04:05"}}]{{with Level .}} {{.}}{{end}}{{with Message .}} {{.}}{{end}}{{with KV .}} {{.}}{{end}}`

// Options configure a Printer.
type Options struct {
	Format   string
	Template string
	Color    ColorMode
	// MessageRegex keeps the first capture group of the message when it
	// matches.
	MessageRegex    string
	TimestampColumn string
}

// Printer writes rows to an io.Writer.
type Printer struct {
	out      io.Writer
	format   string
	tmpl     *template.Template
	regex    *regexp.Regexp
	tsColumn string
	colors   palette
	pretty   *colorjson.Formatter
}

// New checks opts and returns a printer writing to out.
func New(out io.Writer, opts Options) (*Printer, error) {
	p := &Printer{
		out:      out,
		format:   opts.Format,
		tsColumn: opts.TimestampColumn,
		colors:   newPalette(ColorEnabled(opts.Color, out)),
	}
	if p.format == "" {
		p.format = FormatText
	}
	if p.tsColumn == "" {
		p.tsColumn = backend.DefaultTimestampColumn
	}
	if opts.MessageRegex != "" {
		re, err := regexp.Compile(opts.MessageRegex)
		if err != nil {
			return nil, fmt.Errorf("message regex: %w", err)
		}
		p.regex = re
	}

	switch p.format {
	case FormatText:
		text := opts.Template
		if text == "" {
			text = DefaultTemplate
		}
		tmpl, err := template.New("row").Funcs(p.funcs()).Parse(text + "\n")
		if err != nil {
			return nil, err
		}
		p.tmpl = tmpl
	case FormatJSON:
	case FormatPretty:
		p.pretty = colorjson.NewFormatter()
		p.pretty.Indent = 2
		p.pretty.DisabledColor = !p.colors.enabled
	default:
		return nil, fmt.Errorf("unknown output format %q (want text, json or pretty)", p.format)
	}
	return p, nil
}

// Print writes every row.
func (p *Printer) Print(rows []backend.Row) error {
	for _, row := range rows {
		if err := p.PrintRow(row); err != nil {
			return err
		}
	}
	return nil
}

// PrintRow writes one row.
func (p *Printer) PrintRow(row backend.Row) error {
	switch p.format {
	case FormatJSON:
		b, err := json.Marshal(row)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(p.out, string(b))
		return err
	case FormatPretty:
		// colorjson only knows the types encoding/json decodes to.
		var generic map[string]any
		raw, err := json.Marshal(row)
		if err == nil {
			err = json.Unmarshal(raw, &generic)
		}
		if err != nil {
			return err
		}
		b, err := p.pretty.Marshal(generic)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(p.out, string(b))
		return err
	}
	var buf strings.Builder
	if err := p.tmpl.Execute(&buf, row); err != nil {
		return err
	}
	_, err := io.WriteString(p.out, buf.String())
	return err
}

// PrintError writes err dimmed, keeping the stream readable.
func (p *Printer) PrintError(err error) {
	var se *backend.StreamError
	if errors.As(err, &se) {
		err = se.Err
	}
	fmt.Fprintln(p.out, p.colors.paint(p.colors.err, "error: "+err.Error()))
}
