package coverage

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ParseXML parses a Cobertura-style report as written by `coverage xml`.
//
// Every <class filename="..."> contributes its <line number hits> children;
// classes sharing a filename are merged. A line is hit when hits > 0.
func ParseXML(r io.Reader) (*Report, error) {
	report := NewReport(FormatXML)
	dec := xml.NewDecoder(r)

	var (
		sawRoot  bool
		current  *FileCoverage
		inSource bool
		source   strings.Builder
	)

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("invalid coverage xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if !sawRoot {
				if t.Name.Local != "coverage" {
					return nil, fmt.Errorf("invalid coverage xml: root element is <%s>, want <coverage>", t.Name.Local)
				}
				sawRoot = true
				continue
			}
			switch t.Name.Local {
			case "source":
				inSource = true
				source.Reset()
			case "class":
				filename := attr(t, "filename")
				if filename == "" {
					return nil, fmt.Errorf("invalid coverage xml: <class> without filename at offset %d", dec.InputOffset())
				}
				current = report.file(filename)
				current.HasLineData = true
			case "line":
				if current == nil {
					continue
				}
				if err := addLine(current, t); err != nil {
					return nil, err
				}
			}
		case xml.CharData:
			if inSource {
				source.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "source":
				inSource = false
				if s := strings.TrimSpace(source.String()); s != "" {
					report.Sources = append(report.Sources, s)
				}
			case "class":
				current = nil
			}
		}
	}

	if !sawRoot {
		return nil, fmt.Errorf("invalid coverage xml: empty document")
	}
	for _, fc := range report.Files {
		fc.finish()
	}
	return report, nil
}

func addLine(fc *FileCoverage, el xml.StartElement) error {
	number, err := strconv.Atoi(attr(el, "number"))
	if err != nil || number < 1 {
		return fmt.Errorf("invalid coverage xml: bad line number %q in %s", attr(el, "number"), fc.Path)
	}
	hits, err := strconv.Atoi(attr(el, "hits"))
	if err != nil {
		return fmt.Errorf("invalid coverage xml: bad hits %q at %s:%d", attr(el, "hits"), fc.Path, number)
	}
	fc.Measured.Add(uint32(number))
	if hits > 0 {
		fc.Hits.Add(uint32(number))
	}
	return nil
}

func attr(el xml.StartElement, name string) string {
	for _, a := range el.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}
