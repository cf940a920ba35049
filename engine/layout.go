package engine

import (
	"strings"
	"unicode/utf8"

	"github.com/tenebris-tech/docxblank/docx"
)

// Layout estimation constants in twips
const (
	lineHeight       = 276 // 11pt text at 1.15 line spacing
	paragraphSpacing = 160 // 8pt after each paragraph
	averageCharWidth = 105
	emuPerTwip       = 635
)

type openerKind int

const (
	openFirst openerKind = iota
	openManualBreak
	openPageBreakBefore
	openSection
	openFiller
	openOverflow
)

// pageOpener records what started a page
type pageOpener struct {
	kind  openerKind
	block int
	span  docx.Span
}

// fragment is the part of a block that lands on one page
type fragment struct {
	block  int
	text   string
	cells  []string
	shapes int
}

type layoutPage struct {
	section      int
	opener       pageOpener
	fragments    []fragment
	sectionBreak bool
}

// blockPlacement holds the 0-based first and last page of a block, -1 when unplaced
type blockPlacement struct {
	first int
	last  int
}

type layout struct {
	pages    []*layoutPage
	blocks   []blockPlacement
	sections []SectionInfo
	// firstPage maps a section to its first owned page index, -1 when it owns none
	firstPage []int
}

type geometry struct {
	capacity     int64
	charsPerLine int
}

func geometryFor(props *docx.SectionProperties) geometry {
	top, bottom, left, right := props.Margins()
	cols := int64(props.ColumnCount())

	capacity := (props.PageHeight() - top - bottom) * cols
	if capacity < lineHeight {
		capacity = lineHeight
	}
	cpl := int((props.PageWidth() - left - right) / cols / averageCharWidth)
	if cpl < 1 {
		cpl = 1
	}
	return geometry{capacity: capacity, charsPerLine: cpl}
}

// layoutBuilder paginates a body the way a word processor roughly would
type layoutBuilder struct {
	out     *layout
	geo     geometry
	used    int64
	section int
}

func (b *layoutBuilder) current() *layoutPage {
	return b.out.pages[len(b.out.pages)-1]
}

func (b *layoutBuilder) newPage(section int, opener pageOpener) {
	b.out.pages = append(b.out.pages, &layoutPage{section: section, opener: opener})
	b.used = 0
}

func (b *layoutBuilder) add(f fragment, height int64) {
	page := b.current()
	page.fragments = append(page.fragments, f)
	idx := len(b.out.pages) - 1
	pl := &b.out.blocks[f.block]
	if pl.first < 0 {
		pl.first = idx
	}
	pl.last = idx
	b.used += height
	if b.used > b.geo.capacity {
		b.used = b.geo.capacity
	}
}

// placeText lays out one paragraph fragment, splitting it across pages when needed
func (b *layoutBuilder) placeText(block int, text string, extra int64, shapes int) {
	for {
		h := textHeight(text, b.geo.charsPerLine) + extra
		room := b.geo.capacity - b.used
		if h <= room {
			b.add(fragment{block: block, text: text, shapes: shapes}, h)
			return
		}

		lines := room / lineHeight
		if b.used > 0 && lines < 2 {
			b.newPage(b.section, pageOpener{kind: openOverflow, block: block})
			continue
		}

		head, tail := splitText(text, int(lines)*b.geo.charsPerLine)
		if tail == "" {
			if b.used > 0 {
				b.newPage(b.section, pageOpener{kind: openOverflow, block: block})
				continue
			}
			// Taller than a page and not splittable (a large drawing)
			b.add(fragment{block: block, text: text, shapes: shapes}, room)
			return
		}
		b.add(fragment{block: block, text: head}, room)
		b.newPage(b.section, pageOpener{kind: openOverflow, block: block})
		text = tail
	}
}

func (b *layoutBuilder) placeRow(block int, cells []string) {
	cpl := b.geo.charsPerLine
	if len(cells) > 0 {
		cpl = cpl / len(cells)
		if cpl < 1 {
			cpl = 1
		}
	}
	h := int64(lineHeight)
	for _, cell := range cells {
		if ch := textHeight(cell, cpl); ch > h {
			h = ch
		}
	}
	if b.used > 0 && b.used+h > b.geo.capacity {
		b.newPage(b.section, pageOpener{kind: openOverflow, block: block})
	}
	b.add(fragment{block: block, text: strings.Join(cells, ""), cells: cells}, h)
}

func (b *layoutBuilder) placeBlock(idx int, block *docx.Block) {
	if block.PageBreakBefore != nil && len(b.current().fragments) > 0 {
		b.newPage(b.section, pageOpener{kind: openPageBreakBefore, block: idx, span: *block.PageBreakBefore})
	}

	for _, row := range block.Rows {
		b.placeRow(idx, row)
	}
	if block.Kind == docx.BlockTable {
		if len(block.Rows) == 0 {
			b.add(fragment{block: idx}, 0)
		}
		return
	}

	for i, seg := range block.Segments {
		last := i == len(block.Segments)-1
		if !last {
			b.placeText(idx, seg+"\f", 0, 0)
			b.newPage(b.section, pageOpener{kind: openManualBreak, block: idx, span: block.PageBreaks[i]})
			continue
		}
		extra := block.DrawingHeight / emuPerTwip
		b.placeText(idx, seg, extra, block.Drawings)
		b.used += paragraphSpacing
		if b.used > b.geo.capacity {
			b.used = b.geo.capacity
		}
	}
}

// computeLayout paginates body. Section starts other than continuous open a
// page; even and odd starts insert a filler page owned by the previous section
// when parity requires.
func computeLayout(body *docx.Body) *layout {
	out := &layout{blocks: make([]blockPlacement, len(body.Blocks))}
	for i := range out.blocks {
		out.blocks[i] = blockPlacement{first: -1, last: -1}
	}

	sections := body.Sections()
	b := &layoutBuilder{out: out}

	for si, sec := range sections {
		b.section = si
		b.geo = geometryFor(sec.Properties)
		empty := sec.FirstBlock > sec.LastBlock

		switch {
		case si == 0:
			b.newPage(0, pageOpener{kind: openFirst, block: -1})
		case empty:
			// Nothing to place
		default:
			switch bt := sec.Properties.BreakType(); bt {
			case BreakContinuous:
			case BreakEvenPage, BreakOddPage:
				next := len(out.pages) + 1
				if (next%2 == 0) != (bt == BreakEvenPage) {
					b.newPage(si-1, pageOpener{kind: openFiller, block: -1})
				}
				b.newPage(si, pageOpener{kind: openSection, block: sec.FirstBlock})
			default:
				b.newPage(si, pageOpener{kind: openSection, block: sec.FirstBlock})
			}
		}

		for bi := sec.FirstBlock; bi <= sec.LastBlock; bi++ {
			b.placeBlock(bi, &body.Blocks[bi])
		}
		if si < len(sections)-1 && !empty {
			b.current().sectionBreak = true
		}
	}

	// Pages are created in section order, so owners never decrease
	out.firstPage = make([]int, len(sections))
	next := 1
	for si, sec := range sections {
		count := 0
		out.firstPage[si] = -1
		for pi, p := range out.pages {
			if p.section == si {
				if count == 0 {
					out.firstPage[si] = pi
				}
				count++
			}
		}
		out.sections = append(out.sections, SectionInfo{
			Index:     si,
			BreakType: sec.Properties.BreakType(),
			StartPage: next,
			EndPage:   next + count - 1,
		})
		next += count
	}

	return out
}

// textHeight estimates the height of text in twips
func textHeight(text string, charsPerLine int) int64 {
	if text == "" {
		return 0
	}
	visible := 0
	forced := 0
	paragraphs := 0
	for _, r := range text {
		switch r {
		case '\r':
			paragraphs++
		case '\f':
		case '\v', '\n':
			forced++
		default:
			visible++
		}
	}
	lines := (visible + charsPerLine - 1) / charsPerLine
	lines += forced
	if lines == 0 && paragraphs > 0 {
		lines = 1
	}
	return int64(lines) * lineHeight
}

// splitText cuts text after n runes. The tail is empty when only paragraph or
// page marks would remain in it.
func splitText(text string, n int) (string, string) {
	if n <= 0 {
		return "", text
	}
	if utf8.RuneCountInString(text) <= n {
		return text, ""
	}
	i := 0
	for pos := range text {
		if i == n {
			head, tail := text[:pos], text[pos:]
			if strings.Trim(tail, "\r\f") == "" {
				return text, ""
			}
			return head, tail
		}
		i++
	}
	return text, ""
}
