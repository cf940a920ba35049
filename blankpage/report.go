package blankpage

import (
	"fmt"
	"strings"
)

// PageRecord is the classification of one page
type PageRecord struct {
	PageNumber   int
	SectionIndex int
	IsBlank      bool
	Reason       Reason

	HasText         bool
	HasTable        bool
	HasImage        bool
	HasHeaderFooter bool
	HasWatermark    bool
	IsProtected     bool

	// HasSectionBreak is set when the page is the last of its section and the
	// next section does not start continuously
	HasSectionBreak bool
}

// SectionSummary lists the blank pages of one section
type SectionSummary struct {
	Section    Section
	BlankPages []int
}

// Report is the blank-page analysis of one document revision. A failed
// detection pass yields an empty report with Err set.
type Report struct {
	Path      string
	PageCount int
	Pages     []PageRecord
	Sections  []Section

	BlankPageCount      int
	SectionsWithContent []int
	CandidateSections   []int

	Err error
}

// Failed reports whether the detection pass was aborted
func (r *Report) Failed() bool {
	return r == nil || r.Err != nil
}

// BlankPages returns the blank page numbers in ascending order
func (r *Report) BlankPages() []int {
	if r == nil {
		return nil
	}
	var out []int
	for _, p := range r.Pages {
		if p.IsBlank {
			out = append(out, p.PageNumber)
		}
	}
	return out
}

// Page returns the record of a 1-based page, or nil
func (r *Report) Page(number int) *PageRecord {
	if r == nil || number < 1 || number > len(r.Pages) {
		return nil
	}
	return &r.Pages[number-1]
}

// IsBlank reports whether page is blank in this revision
func (r *Report) IsBlank(page int) bool {
	rec := r.Page(page)
	return rec != nil && rec.IsBlank
}

// SectionSummaries groups blank pages by section
func (r *Report) SectionSummaries() []SectionSummary {
	if r == nil {
		return nil
	}
	out := make([]SectionSummary, len(r.Sections))
	for i, s := range r.Sections {
		out[i].Section = s
	}
	for _, p := range r.Pages {
		if p.IsBlank && p.SectionIndex >= 0 && p.SectionIndex < len(out) {
			out[p.SectionIndex].BlankPages = append(out[p.SectionIndex].BlankPages, p.PageNumber)
		}
	}
	return out
}

// Validate checks the report invariants
func (r *Report) Validate() error {
	if r.Failed() {
		return fmt.Errorf("detection failed")
	}
	if len(r.Pages) != r.PageCount {
		return fmt.Errorf("%d page records for %d pages", len(r.Pages), r.PageCount)
	}
	blank := 0
	for i, p := range r.Pages {
		if p.PageNumber != i+1 {
			return fmt.Errorf("page record %d numbered %d", i, p.PageNumber)
		}
		if p.IsBlank {
			blank++
			if p.Reason == "" {
				return fmt.Errorf("blank page %d has no reason", p.PageNumber)
			}
		}
	}
	if blank != r.BlankPageCount {
		return fmt.Errorf("blank page count %d, counted %d", r.BlankPageCount, blank)
	}
	return ValidatePartition(r.Sections, r.PageCount)
}

// Describe renders the document structure and page classification
func (r *Report) Describe() string {
	var sb strings.Builder
	if r.Failed() {
		fmt.Fprintf(&sb, "Document: %s\nDetection failed: %v\n", r.Path, r.Err)
		return sb.String()
	}

	fmt.Fprintf(&sb, "Document: %s\n", r.Path)
	fmt.Fprintf(&sb, "Pages: %d  Sections: %d  Blank pages: %d\n", r.PageCount, len(r.Sections), r.BlankPageCount)

	for _, summary := range r.SectionSummaries() {
		s := summary.Section
		pages := "no pages"
		if s.PageCount() > 0 {
			pages = fmt.Sprintf("pages %d-%d", s.StartPage, s.EndPage)
		}
		fmt.Fprintf(&sb, "Section %d [%s] %s", s.Index, s.BreakType, pages)
		if len(summary.BlankPages) > 0 {
			fmt.Fprintf(&sb, ", blank: %v", summary.BlankPages)
		}
		sb.WriteString("\n")

		for page := s.StartPage; page <= s.EndPage; page++ {
			rec := r.Page(page)
			if rec == nil {
				continue
			}
			status := "content"
			if rec.IsBlank {
				status = "BLANK"
			}
			fmt.Fprintf(&sb, "  page %d: %s (%s)%s\n", rec.PageNumber, status, rec.Reason, pageFlags(rec))
		}
	}
	return sb.String()
}

func pageFlags(rec *PageRecord) string {
	var flags []string
	if rec.HasSectionBreak {
		flags = append(flags, "section break")
	}
	if rec.HasTable {
		flags = append(flags, "table")
	}
	if rec.HasImage {
		flags = append(flags, "image")
	}
	if rec.HasHeaderFooter {
		flags = append(flags, "header/footer")
	}
	if rec.HasWatermark {
		flags = append(flags, "watermark")
	}
	if rec.IsProtected {
		flags = append(flags, "protected")
	}
	if len(flags) == 0 {
		return ""
	}
	return " [" + strings.Join(flags, ", ") + "]"
}
