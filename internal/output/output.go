// Package output writes audit results as text, markdown or a structured
// data format.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	toon "github.com/toon-format/toon-go"
	"gopkg.in/yaml.v3"
)

// Format represents an output format.
type Format string

const (
	FormatText     Format = "text"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
	FormatTOON     Format = "toon"
	FormatYAML     Format = "yaml"
)

// ParseFormat converts a string to Format, defaulting to text.
func ParseFormat(s string) Format {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON
	case "markdown", "md":
		return FormatMarkdown
	case "toon":
		return FormatTOON
	case "yaml", "yml":
		return FormatYAML
	default:
		return FormatText
	}
}

// IsData reports whether f is a structured data format rather than a
// human-readable one.
func (f Format) IsData() bool {
	return f == FormatJSON || f == FormatTOON || f == FormatYAML
}

// Renderable is data that can present itself in every format.
type Renderable interface {
	RenderText(w io.Writer, colored bool) error
	RenderMarkdown(w io.Writer) error
	// RenderData returns what the data formats serialize.
	RenderData() any
}

// Formatter writes values in one configured format to stdout or a file.
type Formatter struct {
	format  Format
	writer  io.Writer
	file    *os.File
	colored bool
}

// NewFormatter creates a formatter writing to path, or to stdout when path
// is empty. Colour is disabled for file output.
func NewFormatter(format Format, path string, colored bool) (*Formatter, error) {
	f := &Formatter{format: format, writer: os.Stdout, colored: colored}
	if path != "" {
		file, err := os.Create(path)
		if err != nil {
			return nil, err
		}
		f.file = file
		f.writer = file
		f.colored = false
	}
	return f, nil
}

// NewWriterFormatter creates a formatter writing to w.
func NewWriterFormatter(format Format, w io.Writer, colored bool) *Formatter {
	return &Formatter{format: format, writer: w, colored: colored}
}

// Close closes the output file, if any.
func (f *Formatter) Close() error {
	if f.file == nil {
		return nil
	}
	return f.file.Close()
}

func (f *Formatter) Writer() io.Writer { return f.writer }
func (f *Formatter) Format() Format    { return f.format }
func (f *Formatter) Colored() bool     { return f.colored }

// Output writes v in the configured format. Values that are not Renderable
// are serialized in every format; text and markdown fall back to JSON.
func (f *Formatter) Output(v any) error {
	r, ok := v.(Renderable)
	if !ok {
		format := f.format
		if !format.IsData() {
			format = FormatJSON
		}
		return Encode(f.writer, format, v)
	}

	switch f.format {
	case FormatText:
		return r.RenderText(f.writer, f.colored)
	case FormatMarkdown:
		return r.RenderMarkdown(f.writer)
	default:
		return Encode(f.writer, f.format, r.RenderData())
	}
}

// Encode serializes v to w as JSON, TOON or YAML. TOON and YAML are
// produced from v's JSON form so every format carries the same field names
// and custom encodings.
func Encode(w io.Writer, format Format, v any) error {
	if format == FormatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}

	generic, err := toGeneric(v)
	if err != nil {
		return err
	}
	var out []byte
	switch format {
	case FormatTOON:
		out, err = toon.Marshal(generic, toon.WithIndent(2))
	case FormatYAML:
		out, err = yaml.Marshal(generic)
	default:
		return fmt.Errorf("%s is not a data format", format)
	}
	if err != nil {
		return fmt.Errorf("encode %s: %w", format, err)
	}
	if _, err := w.Write(out); err != nil {
		return err
	}
	if len(out) > 0 && out[len(out)-1] != '\n' {
		_, err = io.WriteString(w, "\n")
	}
	return err
}

func toGeneric(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Warning prints a highlighted message.
func (f *Formatter) Warning(format string, args ...any) {
	if f.colored {
		color.New(color.FgYellow).Fprintf(f.writer, format+"\n", args...)
		return
	}
	fmt.Fprintf(f.writer, "WARNING: "+format+"\n", args...)
}

// Info prints an informational message.
func (f *Formatter) Info(format string, args ...any) {
	if f.colored {
		color.New(color.FgCyan).Fprintf(f.writer, format+"\n", args...)
		return
	}
	fmt.Fprintf(f.writer, format+"\n", args...)
}

// SeverityColor colours text by severity: high red, medium yellow, low green.
func SeverityColor(severity, text string) string {
	switch strings.ToLower(severity) {
	case "high", "error", "critical":
		return color.RedString(text)
	case "medium", "warning":
		return color.YellowString(text)
	case "low", "ok":
		return color.GreenString(text)
	}
	return text
}
