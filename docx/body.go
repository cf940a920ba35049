package docx

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// BlockKind distinguishes body-level elements
type BlockKind int

const (
	BlockParagraph BlockKind = iota
	BlockTable
	BlockOther
)

// Span is a byte range [Start, End) within a part
type Span struct {
	Start int64
	End   int64
}

// Len returns the number of bytes covered
func (s Span) Len() int64 {
	return s.End - s.Start
}

// Block is one body-level element of word/document.xml
type Block struct {
	Kind BlockKind
	Span Span

	// Segments holds the text of the block split at manual page breaks.
	// Every paragraph end contributes "\r"; line breaks contribute "\v".
	Segments []string
	// PageBreaks are the w:br w:type="page" elements, in document order
	PageBreaks []Span
	// PageBreakBefore covers a w:pageBreakBefore paragraph property when enabled
	PageBreakBefore *Span

	// Rows holds table cell text, one slice per row
	Rows [][]string

	// Drawings counts inline or floating graphics (drawing, pict, object)
	Drawings int
	// DrawingHeight sums drawing extents in EMU
	DrawingHeight int64

	// Section is set when a section ends with this block
	Section *SectionProperties
}

// Text returns the block text including table cells
func (b *Block) Text() string {
	var sb strings.Builder
	for _, seg := range b.Segments {
		sb.WriteString(seg)
	}
	for _, row := range b.Rows {
		for _, cell := range row {
			sb.WriteString(cell)
		}
	}
	return sb.String()
}

// HasContent reports whether the block carries visible text or graphics
func (b *Block) HasContent() bool {
	if b.Drawings > 0 {
		return true
	}
	return strings.TrimSpace(b.Text()) != ""
}

// Body is the scanned w:body of word/document.xml
type Body struct {
	// Prefix is the namespace prefix used for WordprocessingML elements
	Prefix string
	// Span covers the body content between its start and end tags
	Span   Span
	Blocks []Block
	// Final holds the body-level section properties of the last section
	Final *SectionProperties
}

// Section groups the blocks belonging to one document section
type Section struct {
	Index      int
	Properties *SectionProperties
	// FirstBlock and LastBlock index Body.Blocks; LastBlock < FirstBlock for an empty section
	FirstBlock int
	LastBlock  int
}

// Sections splits the body into sections. A document always has at least one.
func (b *Body) Sections() []Section {
	var sections []Section
	first := 0
	for i := range b.Blocks {
		if b.Blocks[i].Section != nil {
			sections = append(sections, Section{
				Index:      len(sections),
				Properties: b.Blocks[i].Section,
				FirstBlock: first,
				LastBlock:  i,
			})
			first = i + 1
		}
	}
	sections = append(sections, Section{
		Index:      len(sections),
		Properties: b.Final,
		FirstBlock: first,
		LastBlock:  len(b.Blocks) - 1,
	})
	return sections
}

// elementFrame tracks one open element while scanning a block
type elementFrame struct {
	name      string
	start     int64
	startEnd  int64
	pageBreak bool
}

// sectionScan captures a w:sectPr element and the layout of its children
type sectionScan struct {
	level      int
	start      int64
	startEnd   int64
	prefix     string
	typeSpan   *Span
	insertAt   int64
	childStart int64
	childName  string
}

// blockScanner accumulates one body-level element from its tokens
type blockScanner struct {
	data  []byte
	block *Block
	stack []elementFrame

	seg  strings.Builder
	cell strings.Builder
	row  []string

	tableDepth   int
	skipDepth    int
	drawingDepth int

	sect *sectionScan
}

// Elements whose text never shows on the page
var skippedSubtrees = map[string]bool{
	"Fallback":     true,
	"txbxContent":  true,
	"delText":      true,
	"instrText":    true,
	"delInstrText": true,
	"rPrChange":    true,
	"pPrChange":    true,
}

// Child elements that precede w:type inside w:sectPr
var sectionTypePredecessors = map[string]bool{
	"headerReference": true,
	"footerReference": true,
	"footnotePr":      true,
	"endnotePr":       true,
}

func (s *blockScanner) parent() string {
	if len(s.stack) < 2 {
		return ""
	}
	return s.stack[len(s.stack)-2].name
}

func (s *blockScanner) write(text string) {
	if s.tableDepth > 0 {
		s.cell.WriteString(text)
		return
	}
	s.seg.WriteString(text)
}

func (s *blockScanner) start(t xml.StartElement, off, startEnd int64) {
	name := t.Name.Local
	s.stack = append(s.stack, elementFrame{name: name, start: off, startEnd: startEnd})
	level := len(s.stack)

	if s.skipDepth > 0 {
		s.skipDepth++
		return
	}

	if s.sect != nil {
		if level == s.sect.level+1 {
			s.sect.childName = name
			s.sect.childStart = off
			if s.sect.insertAt < 0 && name != "type" && !sectionTypePredecessors[name] {
				s.sect.insertAt = off
			}
		}
		return
	}

	if skippedSubtrees[name] {
		s.skipDepth = 1
		return
	}

	switch name {
	case "sectPr":
		s.sect = &sectionScan{
			level:    level,
			start:    off,
			startEnd: startEnd,
			prefix:   t.Name.Space,
			insertAt: -1,
		}
	case "tab":
		if s.parent() == "r" {
			s.write("\t")
		}
	case "br", "cr":
		if s.parent() != "r" {
			return
		}
		if name == "br" && attrValue(t, "type") == "page" && s.tableDepth == 0 {
			s.stack[len(s.stack)-1].pageBreak = true
			return
		}
		s.write("\v")
	case "pageBreakBefore":
		if s.parent() == "pPr" && isTruthy(attrValue(t, "val"), true) {
			s.stack[len(s.stack)-1].pageBreak = true
		}
	case "drawing", "pict", "object":
		if s.drawingDepth == 0 {
			s.block.Drawings++
		}
		s.drawingDepth++
	case "extent":
		if p := s.parent(); p == "inline" || p == "anchor" {
			if cy, err := strconv.ParseInt(attrValue(t, "cy"), 10, 64); err == nil && cy > 0 {
				s.block.DrawingHeight += cy
			}
		}
	case "tbl":
		s.tableDepth++
	case "tr":
		if s.tableDepth == 1 {
			s.row = nil
		}
	case "tc":
		if s.tableDepth == 1 {
			s.cell.Reset()
		}
	}
}

func (s *blockScanner) end(off, endEnd int64) error {
	if len(s.stack) == 0 {
		return nil
	}
	frame := s.stack[len(s.stack)-1]
	level := len(s.stack)
	s.stack = s.stack[:len(s.stack)-1]

	if s.skipDepth > 0 {
		s.skipDepth--
		return nil
	}

	if s.sect != nil {
		switch {
		case level == s.sect.level+1:
			if frame.name == "type" {
				s.sect.typeSpan = &Span{Start: s.sect.childStart, End: endEnd}
			}
		case level == s.sect.level:
			return s.finishSection(off, endEnd)
		}
		return nil
	}

	switch frame.name {
	case "br":
		if frame.pageBreak {
			s.block.PageBreaks = append(s.block.PageBreaks, Span{Start: frame.start, End: endEnd})
			s.block.Segments = append(s.block.Segments, s.seg.String())
			s.seg.Reset()
		}
	case "pageBreakBefore":
		if frame.pageBreak && s.block.PageBreakBefore == nil {
			s.block.PageBreakBefore = &Span{Start: frame.start, End: endEnd}
		}
	case "p":
		s.write("\r")
	case "drawing", "pict", "object":
		s.drawingDepth--
	case "tc":
		if s.tableDepth == 1 {
			s.row = append(s.row, s.cell.String())
		}
	case "tr":
		if s.tableDepth == 1 {
			s.block.Rows = append(s.block.Rows, s.row)
			s.row = nil
		}
	case "tbl":
		s.tableDepth--
	}
	return nil
}

func (s *blockScanner) text(data xml.CharData) {
	if s.skipDepth > 0 || s.sect != nil || s.drawingDepth > 0 || len(s.stack) == 0 {
		return
	}
	if s.stack[len(s.stack)-1].name == "t" {
		s.write(string(data))
	}
}

func (s *blockScanner) finishSection(endTagStart, end int64) error {
	sc := s.sect
	s.sect = nil

	props := &SectionProperties{}
	if err := unmarshalWordXML(s.data[sc.start:end], props); err != nil {
		return fmt.Errorf("parsing section properties at offset %d: %w", sc.start, err)
	}
	props.Span = Span{Start: sc.start, End: end}
	props.Prefix = sc.prefix
	props.SelfClosing = endTagStart == sc.startEnd && bytes.HasSuffix(s.data[sc.start:sc.startEnd], []byte("/>"))
	props.TypeSpan = sc.typeSpan
	props.TypeInsertAt = sc.insertAt
	if props.TypeInsertAt < 0 {
		props.TypeInsertAt = endTagStart
	}

	if s.block.Section == nil {
		s.block.Section = props
	}
	return nil
}

func (s *blockScanner) finish(end int64) {
	s.block.Span.End = end
	if s.block.Kind != BlockTable {
		s.block.Segments = append(s.block.Segments, s.seg.String())
	}
}

// parseBody scans word/document.xml and records body-level blocks with byte offsets
func parseBody(data []byte) (*Body, error) {
	decoder := xml.NewDecoder(bytes.NewReader(data))
	decoder.Strict = false
	decoder.Entity = xml.HTMLEntity

	body := &Body{}
	var (
		inBody  bool
		sawBody bool
		depth   int
		scanner *blockScanner
	)

	for {
		off := decoder.InputOffset()
		tok, err := decoder.RawToken()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("scanning document body: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if !inBody {
				if t.Name.Local == "body" && !sawBody {
					inBody, sawBody = true, true
					body.Prefix = t.Name.Space
					body.Span.Start = decoder.InputOffset()
					depth = 0
				}
				continue
			}
			depth++
			if depth == 1 {
				scanner = &blockScanner{
					data:  data,
					block: &Block{Kind: blockKind(t.Name.Local), Span: Span{Start: off}},
				}
			}
			scanner.start(t, off, decoder.InputOffset())

		case xml.EndElement:
			if !inBody {
				continue
			}
			if depth == 0 {
				body.Span.End = off
				inBody = false
				continue
			}
			if err := scanner.end(off, decoder.InputOffset()); err != nil {
				return nil, err
			}
			depth--
			if depth == 0 {
				scanner.finish(decoder.InputOffset())
				if scanner.block.Kind == BlockOther && len(scanner.stack) == 0 && isBodySection(scanner) {
					body.Final = scanner.block.Section
				} else {
					body.Blocks = append(body.Blocks, *scanner.block)
				}
				scanner = nil
			}

		case xml.CharData:
			if inBody && scanner != nil {
				scanner.text(t)
			}
		}
	}

	if !sawBody {
		return nil, fmt.Errorf("missing w:body element")
	}
	if inBody {
		return nil, fmt.Errorf("unterminated w:body element")
	}
	return body, nil
}

func blockKind(name string) BlockKind {
	switch name {
	case "p":
		return BlockParagraph
	case "tbl":
		return BlockTable
	default:
		return BlockOther
	}
}

// isBodySection reports whether the finished block is a body-level w:sectPr
func isBodySection(s *blockScanner) bool {
	return s.block.Section != nil && s.block.Section.Span == s.block.Span
}

func attrValue(t xml.StartElement, local string) string {
	for _, a := range t.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}
