package docx

import (
	"bytes"
	"fmt"
	"sort"
)

// Edit replaces a byte range of a part. An empty Replacement deletes the range;
// a zero-length Span inserts.
type Edit struct {
	Span        Span
	Replacement []byte
}

// Splice applies non-overlapping edits to data and returns the new content.
// Bytes outside the edited ranges are kept verbatim.
func Splice(data []byte, edits []Edit) ([]byte, error) {
	sorted := make([]Edit, len(edits))
	copy(sorted, edits)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Span.Start != sorted[j].Span.Start {
			return sorted[i].Span.Start < sorted[j].Span.Start
		}
		return sorted[i].Span.End < sorted[j].Span.End
	})

	var buf bytes.Buffer
	buf.Grow(len(data))
	var pos int64
	for _, e := range sorted {
		if e.Span.Start < pos || e.Span.End < e.Span.Start || e.Span.End > int64(len(data)) {
			return nil, fmt.Errorf("invalid edit range [%d, %d)", e.Span.Start, e.Span.End)
		}
		buf.Write(data[pos:e.Span.Start])
		buf.Write(e.Replacement)
		pos = e.Span.End
	}
	buf.Write(data[pos:])
	return buf.Bytes(), nil
}

// EditPart applies edits to the named part
func (p *Parser) EditPart(name string, edits []Edit) error {
	if len(edits) == 0 {
		return nil
	}
	data, err := p.ReadFile(name)
	if err != nil {
		return err
	}
	updated, err := Splice(data, edits)
	if err != nil {
		return fmt.Errorf("editing %s: %w", name, err)
	}
	p.WriteFile(name, updated)
	return nil
}

// SectionTypeEdit builds the edit that sets a section's start type.
// Returns false when the section already has that type.
func SectionTypeEdit(data []byte, props *SectionProperties, raw string) (Edit, bool) {
	if props == nil || props.BreakType() == raw {
		return Edit{}, false
	}

	element := []byte(fmt.Sprintf(`%s %s="%s"/>`, qualify(props.Prefix, "type"), attrName(props.Prefix, "val"), raw))

	switch {
	case props.TypeSpan != nil:
		return Edit{Span: *props.TypeSpan, Replacement: element}, true
	case props.SelfClosing:
		// <w:sectPr .../> becomes <w:sectPr ...><w:type .../></w:sectPr>
		open := bytes.TrimRight(bytes.TrimSuffix(data[props.Span.Start:props.Span.End], []byte("/>")), " \t\r\n")
		var buf bytes.Buffer
		buf.Write(open)
		buf.WriteString(">")
		buf.Write(element)
		buf.WriteString("</")
		buf.WriteString(qualify(props.Prefix, "sectPr")[1:])
		buf.WriteString(">")
		return Edit{Span: props.Span, Replacement: buf.Bytes()}, true
	default:
		return Edit{Span: Span{Start: props.TypeInsertAt, End: props.TypeInsertAt}, Replacement: element}, true
	}
}

// RemoveBlockEdit builds the edit that deletes a body block. A block ending a
// section is replaced by an empty paragraph that keeps its section properties.
func RemoveBlockEdit(data []byte, prefix string, block *Block) Edit {
	if block.Section == nil {
		return Edit{Span: block.Span}
	}

	var buf bytes.Buffer
	buf.WriteString(qualify(prefix, "p"))
	buf.WriteString(">")
	buf.WriteString(qualify(prefix, "pPr"))
	buf.WriteString(">")
	buf.Write(data[block.Section.Span.Start:block.Section.Span.End])
	buf.WriteString("</")
	buf.WriteString(qualify(prefix, "pPr")[1:])
	buf.WriteString("></")
	buf.WriteString(qualify(prefix, "p")[1:])
	buf.WriteString(">")
	return Edit{Span: block.Span, Replacement: buf.Bytes()}
}

// EmptyParagraphEdit inserts an empty paragraph at offset
func EmptyParagraphEdit(prefix string, offset int64) Edit {
	return Edit{
		Span:        Span{Start: offset, End: offset},
		Replacement: []byte(qualify(prefix, "p") + "/>"),
	}
}

// qualify returns the opening of a start tag, e.g. "<w:p"
func qualify(prefix, local string) string {
	if prefix == "" {
		return "<" + local
	}
	return "<" + prefix + ":" + local
}

func attrName(prefix, local string) string {
	if prefix == "" {
		return local
	}
	return prefix + ":" + local
}

// outermost drops spans nested inside another span of the list
func outermost(spans []Span) []Span {
	sorted := make([]Span, len(spans))
	copy(sorted, spans)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Start != sorted[j].Start {
			return sorted[i].Start < sorted[j].Start
		}
		return sorted[i].End > sorted[j].End
	})

	var result []Span
	for _, s := range sorted {
		if n := len(result); n > 0 && s.Start < result[n-1].End {
			continue
		}
		result = append(result, s)
	}
	return result
}
