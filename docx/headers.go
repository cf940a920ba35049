package docx

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// Shape identifiers Word assigns to watermark objects
var watermarkMarkers = []string{
	"PowerPlusWaterMarkObject",
	"WordPictureWatermark",
}

// PartSummary describes the visible content of a header or footer part
type PartSummary struct {
	Name      string
	Text      string
	Shapes    int
	Watermark bool
}

// HasContent reports whether the part shows anything on the page
func (s *PartSummary) HasContent() bool {
	return s != nil && (s.Shapes > 0 || strings.TrimSpace(s.Text) != "")
}

// InspectPart summarizes a header or footer part
func (p *Parser) InspectPart(name string) (*PartSummary, error) {
	data, err := p.ReadFile(name)
	if err != nil {
		return nil, err
	}
	summary, _, err := scanHeaderFooter(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", name, err)
	}
	summary.Name = name
	return summary, nil
}

// ClearPart replaces the content of a header or footer part with one empty paragraph.
// Returns false when the part was already empty.
func (p *Parser) ClearPart(name string) (bool, error) {
	data, err := p.ReadFile(name)
	if err != nil {
		return false, err
	}
	summary, root, err := scanHeaderFooter(data)
	if err != nil {
		return false, fmt.Errorf("parsing %s: %w", name, err)
	}
	if !summary.HasContent() || root.inner.Start <= 0 {
		return false, nil
	}

	updated, err := Splice(data, []Edit{{
		Span:        root.inner,
		Replacement: []byte(qualify(root.prefix, "p") + "/>"),
	}})
	if err != nil {
		return false, fmt.Errorf("clearing %s: %w", name, err)
	}
	p.WriteFile(name, updated)
	return true, nil
}

// RemoveWatermarks deletes runs carrying watermark shapes from a header part.
// Returns the number of runs removed.
func (p *Parser) RemoveWatermarks(name string) (int, error) {
	data, err := p.ReadFile(name)
	if err != nil {
		return 0, err
	}
	_, root, err := scanHeaderFooter(data)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", name, err)
	}
	if len(root.watermarkRuns) == 0 {
		return 0, nil
	}

	edits := make([]Edit, 0, len(root.watermarkRuns))
	for _, span := range outermost(root.watermarkRuns) {
		edits = append(edits, Edit{Span: span})
	}
	updated, err := Splice(data, edits)
	if err != nil {
		return 0, fmt.Errorf("removing watermarks from %s: %w", name, err)
	}
	p.WriteFile(name, updated)
	return len(edits), nil
}

// partLayout records where editable pieces of a header or footer live
type partLayout struct {
	prefix        string
	inner         Span
	watermarkRuns []Span
}

type runFrame struct {
	start   int64
	flagged bool
}

type sdtFrame struct {
	watermark bool
}

// scanHeaderFooter walks a w:hdr or w:ftr part
func scanHeaderFooter(data []byte) (*PartSummary, *partLayout, error) {
	decoder := xml.NewDecoder(bytes.NewReader(data))
	decoder.Strict = false
	decoder.Entity = xml.HTMLEntity

	summary := &PartSummary{}
	layout := &partLayout{}

	var (
		stack        []string
		runs         []runFrame
		sdts         []sdtFrame
		fallback     int
		drawingDepth int
		text         strings.Builder
	)

	flagRuns := func() {
		summary.Watermark = true
		for i := range runs {
			runs[i].flagged = true
		}
	}

	for {
		off := decoder.InputOffset()
		tok, err := decoder.RawToken()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			name := t.Name.Local
			stack = append(stack, name)
			if len(stack) == 1 {
				layout.prefix = t.Name.Space
				layout.inner.Start = decoder.InputOffset()
				continue
			}
			if fallback > 0 || name == "Fallback" {
				fallback++
			}

			switch name {
			case "r":
				runs = append(runs, runFrame{start: off})
			case "sdt":
				sdts = append(sdts, sdtFrame{})
			case "docPartGallery":
				if attrValue(t, "val") == "Watermarks" && len(sdts) > 0 {
					sdts[len(sdts)-1].watermark = true
					summary.Watermark = true
				}
			case "drawing", "pict", "object":
				if drawingDepth == 0 && fallback == 0 {
					summary.Shapes++
				}
				drawingDepth++
				for _, s := range sdts {
					if s.watermark {
						flagRuns()
						break
					}
				}
			case "shape":
				if isWatermarkID(attrValue(t, "id")) {
					flagRuns()
				}
			case "docPr", "cNvPr":
				if strings.Contains(strings.ToLower(attrValue(t, "name")), "watermark") {
					flagRuns()
				}
			}

		case xml.EndElement:
			if len(stack) == 0 {
				continue
			}
			name := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				layout.inner.End = off
				continue
			}
			if fallback > 0 {
				fallback--
			}

			switch name {
			case "r":
				if n := len(runs); n > 0 {
					r := runs[n-1]
					runs = runs[:n-1]
					if r.flagged {
						layout.watermarkRuns = append(layout.watermarkRuns, Span{Start: r.start, End: decoder.InputOffset()})
					}
				}
			case "sdt":
				if n := len(sdts); n > 0 {
					sdts = sdts[:n-1]
				}
			case "drawing", "pict", "object":
				drawingDepth--
			case "p":
				text.WriteString("\r")
			}

		case xml.CharData:
			if len(stack) > 0 && stack[len(stack)-1] == "t" && fallback == 0 && drawingDepth == 0 {
				text.Write(t)
			}
		}
	}

	if layout.inner.End < layout.inner.Start {
		layout.inner = Span{}
	}
	summary.Text = text.String()
	return summary, layout, nil
}

func isWatermarkID(id string) bool {
	for _, marker := range watermarkMarkers {
		if strings.Contains(id, marker) {
			return true
		}
	}
	return false
}

// Unprotect removes editing restrictions from word/settings.xml.
// Returns false when the document was not protected.
func (p *Parser) Unprotect() (bool, error) {
	if !p.HasFile(SettingsPart) {
		return false, nil
	}
	data, err := p.ReadFile(SettingsPart)
	if err != nil {
		return false, err
	}

	spans, err := childElementSpans(data, "documentProtection", "writeProtection")
	if err != nil {
		return false, fmt.Errorf("parsing %s: %w", SettingsPart, err)
	}
	if len(spans) == 0 {
		return false, nil
	}

	edits := make([]Edit, 0, len(spans))
	for _, span := range spans {
		edits = append(edits, Edit{Span: span})
	}
	updated, err := Splice(data, edits)
	if err != nil {
		return false, fmt.Errorf("unprotecting: %w", err)
	}
	p.WriteFile(SettingsPart, updated)
	return true, nil
}

// childElementSpans finds direct children of the root element with the given local names
func childElementSpans(data []byte, names ...string) ([]Span, error) {
	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[n] = true
	}

	decoder := xml.NewDecoder(bytes.NewReader(data))
	decoder.Strict = false
	decoder.Entity = xml.HTMLEntity

	var (
		spans []Span
		depth int
		start int64 = -1
	)
	for {
		off := decoder.InputOffset()
		tok, err := decoder.RawToken()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if depth == 2 && wanted[t.Name.Local] {
				start = off
			}
		case xml.EndElement:
			if depth == 2 && start >= 0 {
				spans = append(spans, Span{Start: start, End: decoder.InputOffset()})
				start = -1
			}
			depth--
		}
	}
	return spans, nil
}
