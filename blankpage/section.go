// Package blankpage classifies document pages as blank or not and maps blank
// pages to the sections responsible for them.
package blankpage

import (
	"fmt"
	"strings"

	"github.com/tenebris-tech/docxblank/engine"
	apperrors "github.com/tenebris-tech/docxblank/internal/errors"
)

// BreakType is the normalized way a section starts
type BreakType int

const (
	BreakUnknown BreakType = iota
	BreakContinuous
	BreakNewPage
	BreakNewColumn
	BreakEvenPage
	BreakOddPage
)

var breakTypeNames = map[BreakType]string{
	BreakUnknown:    "Unknown",
	BreakContinuous: "Continuous",
	BreakNewPage:    "NewPage",
	BreakNewColumn:  "NewColumn",
	BreakEvenPage:   "EvenPage",
	BreakOddPage:    "OddPage",
}

func (b BreakType) String() string {
	if name, ok := breakTypeNames[b]; ok {
		return name
	}
	return breakTypeNames[BreakUnknown]
}

// Raw returns the engine value for the break type, "" for Unknown
func (b BreakType) Raw() string {
	switch b {
	case BreakContinuous:
		return engine.BreakContinuous
	case BreakNewPage:
		return engine.BreakNextPage
	case BreakNewColumn:
		return engine.BreakNextColumn
	case BreakEvenPage:
		return engine.BreakEvenPage
	case BreakOddPage:
		return engine.BreakOddPage
	}
	return ""
}

// ClassifyBreakType maps a raw engine value to a BreakType. Word's numeric
// WdSectionStart values are accepted too. Anything else is Unknown.
func ClassifyBreakType(raw string) BreakType {
	switch strings.TrimSpace(raw) {
	case engine.BreakContinuous, "0":
		return BreakContinuous
	case engine.BreakNextColumn, "1":
		return BreakNewColumn
	case engine.BreakNextPage, "2":
		return BreakNewPage
	case engine.BreakEvenPage, "3":
		return BreakEvenPage
	case engine.BreakOddPage, "4":
		return BreakOddPage
	}
	return BreakUnknown
}

// Section is a contiguous run of pages sharing page-layout settings.
// A section that starts and ends mid-page owns no pages: EndPage == StartPage-1.
type Section struct {
	Index     int
	BreakType BreakType
	RawType   string
	StartPage int
	EndPage   int
}

// Contains reports whether page falls in the section
func (s Section) Contains(page int) bool {
	return page >= s.StartPage && page <= s.EndPage
}

// PageCount returns the number of pages the section owns
func (s Section) PageCount() int {
	if s.EndPage < s.StartPage {
		return 0
	}
	return s.EndPage - s.StartPage + 1
}

// ListSections reads the section list of an open document
func ListSections(doc engine.Document) ([]Section, error) {
	if doc == nil {
		return nil, apperrors.NewDocumentAccessError("", fmt.Errorf("no document"))
	}
	infos, err := doc.Sections()
	if err != nil {
		return nil, apperrors.NewDocumentAccessError("", fmt.Errorf("listing sections: %w", err))
	}

	sections := make([]Section, len(infos))
	for i, info := range infos {
		sections[i] = Section{
			Index:     i,
			BreakType: ClassifyBreakType(info.BreakType),
			RawType:   info.BreakType,
			StartPage: info.StartPage,
			EndPage:   info.EndPage,
		}
	}
	return sections, nil
}

// SectionOf returns the index of the section containing page, or -1
func SectionOf(sections []Section, page int) int {
	for _, s := range sections {
		if s.Contains(page) {
			return s.Index
		}
	}
	return -1
}

// ValidatePartition checks that sections cover pages 1..pageCount without gaps or overlaps
func ValidatePartition(sections []Section, pageCount int) error {
	next := 1
	for i, s := range sections {
		if s.StartPage != next {
			return fmt.Errorf("section %d starts at page %d, expected %d", i, s.StartPage, next)
		}
		if s.EndPage < s.StartPage-1 {
			return fmt.Errorf("section %d has invalid range %d-%d", i, s.StartPage, s.EndPage)
		}
		next = s.EndPage + 1
	}
	if next != pageCount+1 {
		return fmt.Errorf("sections cover %d pages, document has %d", next-1, pageCount)
	}
	return nil
}
