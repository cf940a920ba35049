// Package engine defines the document engine used by blank-page detection and
// remediation, and a pure-Go implementation backed by the DOCX package format.
package engine

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/tenebris-tech/docxblank/docx"
)

// Raw section break types understood by SetSectionBreakType
const (
	BreakContinuous = docx.BreakContinuous
	BreakNextPage   = docx.BreakNextPage
	BreakNextColumn = docx.BreakNextColumn
	BreakEvenPage   = docx.BreakEvenPage
	BreakOddPage    = docx.BreakOddPage
)

// ErrClosed is returned by calls on a closed document
var ErrClosed = errors.New("document is closed")

// Engine opens documents for page-level inspection and editing
type Engine interface {
	Open(ctx context.Context, path string) (Document, error)
}

// Document is one open document revision. Implementations are not safe for
// concurrent use.
type Document interface {
	// PageCount returns the number of pages of the current revision
	PageCount() (int, error)
	// PageContent extracts the content of a 1-based page
	PageContent(page int) (*ContentSnapshot, error)
	// Sections lists sections with their raw break types and page ranges
	Sections() ([]SectionInfo, error)
	// Paragraphs returns the text of every body paragraph in document order
	Paragraphs() ([]string, error)
	// SectionBodies returns the body content of each section
	SectionBodies() ([]SectionBody, error)

	// SetSectionBreakType changes how a section starts. Returns false when nothing changed.
	SetSectionBreakType(section int, breakType string) (bool, error)
	// DeletePageRange removes the content of pages start..end inclusive
	DeletePageRange(start, end int) error
	// ClearHeadersFooters empties the headers and footers a section displays
	ClearHeadersFooters(section int) (bool, error)
	// RemoveWatermarks deletes watermark shapes from the headers a section displays
	RemoveWatermarks(section int) (bool, error)
	// Unprotect lifts document-level editing restrictions
	Unprotect() (bool, error)

	Save(ctx context.Context, path string) error
	Close() error
}

// SectionInfo describes one section of a revision. Pages are 1-based; a
// section that starts and ends mid-page has EndPage == StartPage-1.
type SectionInfo struct {
	Index     int
	BreakType string
	StartPage int
	EndPage   int
}

// PageCount returns the number of pages the section owns
func (s SectionInfo) PageCount() int {
	if s.EndPage < s.StartPage {
		return 0
	}
	return s.EndPage - s.StartPage + 1
}

// SectionBody holds the extracted body content of one section
type SectionBody struct {
	TextBlocks []string
	Tables     [][][]string
}

// ContentSnapshot is the extracted content of one page
type ContentSnapshot struct {
	Text                 string
	TableCells           []string
	ShapeCount           int
	HeaderFooterPresent  bool
	WatermarkPresent     bool
	Protected            bool
	ContainsSectionBreak bool
}

// Validate checks a snapshot received from an engine
func (c *ContentSnapshot) Validate() error {
	if c == nil {
		return errors.New("nil content snapshot")
	}
	if c.ShapeCount < 0 {
		return fmt.Errorf("negative shape count %d", c.ShapeCount)
	}
	if !utf8.ValidString(c.Text) {
		return errors.New("page text is not valid UTF-8")
	}
	for i, cell := range c.TableCells {
		if !utf8.ValidString(cell) {
			return fmt.Errorf("table cell %d is not valid UTF-8", i)
		}
	}
	return nil
}

// IsKnownBreakType reports whether raw is a break type the engine can write
func IsKnownBreakType(raw string) bool {
	switch raw {
	case BreakContinuous, BreakNextPage, BreakNextColumn, BreakEvenPage, BreakOddPage:
		return true
	}
	return false
}
