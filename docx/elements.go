package docx

import (
	"encoding/xml"
	"strings"
)

// Section break types as written in w:type/@w:val
const (
	BreakContinuous = "continuous"
	BreakNextPage   = "nextPage"
	BreakNextColumn = "nextColumn"
	BreakEvenPage   = "evenPage"
	BreakOddPage    = "oddPage"
)

// Default page geometry (US Letter, 1 inch margins) in twips
const (
	DefaultPageWidth  = 12240
	DefaultPageHeight = 15840
	DefaultMargin     = 1440
)

// SectionProperties represents a w:sectPr element together with its position
// in word/document.xml
type SectionProperties struct {
	Type    *ValProp                `xml:"type"`
	PgSz    *PageSize               `xml:"pgSz"`
	PgMar   *PageMargins            `xml:"pgMar"`
	Cols    *Columns                `xml:"cols"`
	TitlePg *BoolProp               `xml:"titlePg"`
	Headers []HeaderFooterReference `xml:"headerReference"`
	Footers []HeaderFooterReference `xml:"footerReference"`

	// Location of the element in the document part
	Span        Span   `xml:"-"`
	Prefix      string `xml:"-"`
	SelfClosing bool   `xml:"-"`
	// TypeSpan covers the w:type child, nil when the element has none
	TypeSpan *Span `xml:"-"`
	// TypeInsertAt is where a missing w:type child belongs in schema order
	TypeInsertAt int64 `xml:"-"`
}

// BreakType returns the raw section start type; an absent value means nextPage
func (s *SectionProperties) BreakType() string {
	if s == nil || s.Type == nil || s.Type.Val == "" {
		return BreakNextPage
	}
	return s.Type.Val
}

// PageHeight returns the page height in twips
func (s *SectionProperties) PageHeight() int64 {
	if s == nil || s.PgSz == nil || s.PgSz.H <= 0 {
		return DefaultPageHeight
	}
	return s.PgSz.H
}

// PageWidth returns the page width in twips
func (s *SectionProperties) PageWidth() int64 {
	if s == nil || s.PgSz == nil || s.PgSz.W <= 0 {
		return DefaultPageWidth
	}
	return s.PgSz.W
}

// Margins returns top, bottom, left and right margins in twips
func (s *SectionProperties) Margins() (top, bottom, left, right int64) {
	if s == nil || s.PgMar == nil {
		return DefaultMargin, DefaultMargin, DefaultMargin, DefaultMargin
	}
	abs := func(v int64) int64 {
		// Negative top/bottom margins mean "do not move text for headers"
		if v < 0 {
			return -v
		}
		return v
	}
	return abs(s.PgMar.Top), abs(s.PgMar.Bottom), s.PgMar.Left, s.PgMar.Right
}

// ColumnCount returns the number of text columns
func (s *SectionProperties) ColumnCount() int {
	if s == nil || s.Cols == nil || s.Cols.Num < 1 {
		return 1
	}
	return s.Cols.Num
}

// ValProp represents an element carrying a single w:val attribute
type ValProp struct {
	Val string `xml:"val,attr"`
}

// BoolProp represents a boolean property with optional val attribute
type BoolProp struct {
	Val string `xml:"val,attr"`
}

// IsTrue returns whether the property is enabled
func (b *BoolProp) IsTrue() bool {
	if b == nil {
		return false
	}
	// If val attribute is not present, the property is true
	return isTruthy(b.Val, true)
}

// PageSize specifies page dimensions in twips
type PageSize struct {
	W      int64  `xml:"w,attr"`
	H      int64  `xml:"h,attr"`
	Orient string `xml:"orient,attr"`
}

// PageMargins specifies page margins in twips
type PageMargins struct {
	Top    int64 `xml:"top,attr"`
	Bottom int64 `xml:"bottom,attr"`
	Left   int64 `xml:"left,attr"`
	Right  int64 `xml:"right,attr"`
	Header int64 `xml:"header,attr"`
	Footer int64 `xml:"footer,attr"`
}

// Columns specifies the text column layout
type Columns struct {
	Num   int   `xml:"num,attr"`
	Space int64 `xml:"space,attr"`
}

// HeaderFooterReference links a section to a header or footer part
type HeaderFooterReference struct {
	Type string `xml:"type,attr"` // default, first, even
	ID   string `xml:"id,attr"`
}

// Settings represents word/settings.xml
type Settings struct {
	XMLName            xml.Name            `xml:"settings"`
	DocumentProtection *DocumentProtection `xml:"documentProtection"`
	WriteProtection    *WriteProtection    `xml:"writeProtection"`
}

// DocumentProtection restricts the kind of edits allowed on a document
type DocumentProtection struct {
	Edit        string `xml:"edit,attr"` // readOnly, comments, trackedChanges, forms, none
	Enforcement string `xml:"enforcement,attr"`
}

// WriteProtection marks a document as recommended read-only or password protected
type WriteProtection struct {
	Recommended string `xml:"recommended,attr"`
	HashValue   string `xml:"hashValue,attr"`
}

// IsProtected reports whether editing restrictions are enforced
func (s *Settings) IsProtected() bool {
	if s == nil {
		return false
	}
	if dp := s.DocumentProtection; dp != nil && dp.Edit != "none" && isTruthy(dp.Enforcement, false) {
		return true
	}
	if wp := s.WriteProtection; wp != nil && wp.HashValue != "" {
		return true
	}
	return false
}

// isTruthy interprets an OOXML on/off value
func isTruthy(val string, absent bool) bool {
	switch strings.ToLower(strings.TrimSpace(val)) {
	case "":
		return absent
	case "1", "true", "on":
		return true
	default:
		return false
	}
}
