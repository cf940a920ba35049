// Package remediate removes blank pages from documents by applying remediation
// strategies in rounds until every marked page is resolved, no progress is
// made, or the attempt budget runs out.
package remediate

import (
	"context"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/tenebris-tech/docxblank/blankpage"
	"github.com/tenebris-tech/docxblank/engine"
)

// Method names a remediation strategy
type Method string

const (
	MethodSectionFix   Method = "section_fix"
	MethodPageRemove   Method = "page_remove"
	MethodCombined     Method = "combined"
	MethodSpecialCases Method = "special_cases"
)

// DefaultMethods is the order strategies are tried in each round
var DefaultMethods = []Method{MethodSectionFix, MethodCombined, MethodPageRemove, MethodSpecialCases}

// ParseMethod validates a method name
func ParseMethod(name string) (Method, error) {
	switch m := Method(name); m {
	case MethodSectionFix, MethodPageRemove, MethodCombined, MethodSpecialCases:
		return m, nil
	}
	return "", fmt.Errorf("unknown remediation method %q", name)
}

// SpecialCase is the category handled by the special_cases strategy
type SpecialCase string

const (
	SpecialNone         SpecialCase = ""
	SpecialSectionBreak SpecialCase = "section_break"
	SpecialHeaderFooter SpecialCase = "header_footer"
	SpecialWatermark    SpecialCase = "watermark"
	SpecialProtection   SpecialCase = "protection"
)

// Target is what a strategy is asked to fix. Page numbers refer to the revision
// described by Report.
type Target struct {
	Path     string
	Pages    []int
	Sections []int
	Report   *blankpage.Report
}

// Outcome describes what a strategy changed
type Outcome struct {
	Applied         []int
	SectionsTouched []int
	SpecialCase     SpecialCase
}

// Strategy is one remediation operation. Applying it to an already fixed page
// or section is a no-op.
type Strategy interface {
	Method() Method
	Apply(ctx context.Context, doc engine.Document, target Target) (*Outcome, error)
}

// NewStrategy builds the strategy for method
func NewStrategy(method Method, detector *blankpage.Detector, log *logrus.Entry) (Strategy, error) {
	switch method {
	case MethodSectionFix:
		return &SectionFix{log: log}, nil
	case MethodPageRemove:
		return &PageRemove{log: log}, nil
	case MethodCombined:
		return &Combined{detector: detector, log: log}, nil
	case MethodSpecialCases:
		return &SpecialCases{log: log}, nil
	}
	return nil, fmt.Errorf("unknown remediation method %q", method)
}

// ImplicatedSections returns the sections responsible for pages: each page's
// own section, plus the next one when the page ends before a section break
func ImplicatedSections(report *blankpage.Report, pages []int) []int {
	set := make(map[int]bool)
	for _, page := range pages {
		for _, s := range pageSections(report, page) {
			set[s] = true
		}
	}
	return sortedKeys(set)
}

func pageSections(report *blankpage.Report, page int) []int {
	rec := report.Page(page)
	if rec == nil || rec.SectionIndex < 0 {
		return nil
	}
	out := []int{rec.SectionIndex}
	if rec.HasSectionBreak && rec.SectionIndex+1 < len(report.Sections) {
		out = append(out, rec.SectionIndex+1)
	}
	return out
}

// SectionFix converts the break of every target section to Continuous. The
// first section has no break and is left alone.
type SectionFix struct {
	log *logrus.Entry
}

func (s *SectionFix) Method() Method {
	return MethodSectionFix
}

func (s *SectionFix) Apply(ctx context.Context, doc engine.Document, target Target) (*Outcome, error) {
	sections, err := blankpage.ListSections(doc)
	if err != nil {
		return nil, err
	}

	changed := make(map[int]bool)
	for _, idx := range target.Sections {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if idx <= 0 || idx >= len(sections) {
			continue
		}
		if sections[idx].BreakType == blankpage.BreakContinuous {
			continue
		}
		ok, err := doc.SetSectionBreakType(idx, engine.BreakContinuous)
		if err != nil {
			return nil, fmt.Errorf("section %d: %w", idx, err)
		}
		if ok {
			changed[idx] = true
			s.log.WithFields(logrus.Fields{"section": idx, "from": sections[idx].BreakType}).Debug("Section break set to continuous")
		}
	}

	out := &Outcome{SectionsTouched: sortedKeys(changed)}
	for _, page := range target.Pages {
		for _, idx := range pageSections(target.Report, page) {
			if changed[idx] {
				out.Applied = append(out.Applied, page)
				break
			}
		}
	}
	return out, nil
}

// PageRemove deletes the content of every target page, highest page first so
// earlier targets keep their numbers
type PageRemove struct {
	log *logrus.Entry
}

func (s *PageRemove) Method() Method {
	return MethodPageRemove
}

func (s *PageRemove) Apply(ctx context.Context, doc engine.Document, target Target) (*Outcome, error) {
	pages := append([]int(nil), target.Pages...)
	sort.Sort(sort.Reverse(sort.IntSlice(pages)))

	out := &Outcome{}
	for _, page := range pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := doc.DeletePageRange(page, page); err != nil {
			return nil, fmt.Errorf("page %d: %w", page, err)
		}
		s.log.WithField("page", page).Debug("Page content deleted")
		out.Applied = append(out.Applied, page)
	}
	sort.Ints(out.Applied)
	return out, nil
}

// Combined fixes section breaks first, then removes only the pages that are
// still blank afterwards. Removal is skipped when the fix changed the page count.
type Combined struct {
	detector *blankpage.Detector
	log      *logrus.Entry
}

func (s *Combined) Method() Method {
	return MethodCombined
}

func (s *Combined) Apply(ctx context.Context, doc engine.Document, target Target) (*Outcome, error) {
	fixed, err := (&SectionFix{log: s.log}).Apply(ctx, doc, target)
	if err != nil {
		return nil, err
	}

	report, err := s.detector.Detect(ctx, doc, target.Path)
	if err != nil {
		return nil, err
	}

	// Target numbers come from the revision before the fix. Once the page
	// count moves they may name other pages, so removal waits for the next
	// round's detection.
	if target.Report != nil && report.PageCount != target.Report.PageCount {
		s.log.WithFields(logrus.Fields{
			"before": target.Report.PageCount,
			"after":  report.PageCount,
		}).Debug("Page count changed by section fix; skipping page removal")
		return fixed, nil
	}

	var still []int
	for _, page := range target.Pages {
		if report.IsBlank(page) {
			still = append(still, page)
		}
	}
	s.log.WithField("pages", still).Debug("Pages still blank after section fix")

	removed, err := (&PageRemove{log: s.log}).Apply(ctx, doc, Target{Path: target.Path, Pages: still, Report: report})
	if err != nil {
		return nil, err
	}

	applied := make(map[int]bool)
	for _, p := range fixed.Applied {
		applied[p] = true
	}
	for _, p := range removed.Applied {
		applied[p] = true
	}
	return &Outcome{Applied: sortedKeys(applied), SectionsTouched: fixed.SectionsTouched}, nil
}

// SpecialCases handles pages made blank by section breaks, headers or footers,
// watermarks or document protection. Only the highest priority category present
// among the targets is handled per invocation.
type SpecialCases struct {
	log *logrus.Entry
}

func (s *SpecialCases) Method() Method {
	return MethodSpecialCases
}

// Categorize groups target pages by special category in priority order
func Categorize(report *blankpage.Report, pages []int) map[SpecialCase][]int {
	out := make(map[SpecialCase][]int)
	for _, page := range pages {
		rec := report.Page(page)
		if rec == nil {
			continue
		}
		if rec.HasSectionBreak {
			out[SpecialSectionBreak] = append(out[SpecialSectionBreak], page)
		}
		if rec.HasHeaderFooter {
			out[SpecialHeaderFooter] = append(out[SpecialHeaderFooter], page)
		}
		if rec.HasWatermark {
			out[SpecialWatermark] = append(out[SpecialWatermark], page)
		}
		if rec.IsProtected {
			out[SpecialProtection] = append(out[SpecialProtection], page)
		}
	}
	return out
}

// PrimarySpecialCase picks the category to act on
func PrimarySpecialCase(categories map[SpecialCase][]int) SpecialCase {
	for _, c := range []SpecialCase{SpecialSectionBreak, SpecialHeaderFooter, SpecialWatermark, SpecialProtection} {
		if len(categories[c]) > 0 {
			return c
		}
	}
	return SpecialNone
}

func (s *SpecialCases) Apply(ctx context.Context, doc engine.Document, target Target) (*Outcome, error) {
	categories := Categorize(target.Report, target.Pages)
	primary := PrimarySpecialCase(categories)
	out := &Outcome{SpecialCase: primary}
	if primary == SpecialNone {
		return out, nil
	}
	pages := categories[primary]
	log := s.log.WithFields(logrus.Fields{"special_case": primary, "pages": pages})

	if primary == SpecialProtection {
		changed, err := doc.Unprotect()
		if err != nil || !changed {
			// Pages stay unresolved this round
			log.WithError(err).Warn("Cannot lift document protection")
			return out, nil
		}
		out.Applied = pages
		return out, nil
	}

	touched := make(map[int]bool)
	for _, page := range pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		section := target.Report.Page(page).SectionIndex
		if primary == SpecialSectionBreak {
			section++
		}
		if touched[section] {
			continue
		}

		var err error
		switch primary {
		case SpecialSectionBreak:
			_, err = doc.SetSectionBreakType(section, engine.BreakContinuous)
		case SpecialHeaderFooter:
			_, err = doc.ClearHeadersFooters(section)
		case SpecialWatermark:
			_, err = doc.RemoveWatermarks(section)
		}
		if err != nil {
			return nil, fmt.Errorf("%s on section %d: %w", primary, section, err)
		}
		touched[section] = true
	}

	log.Debug("Special case handled")
	out.Applied = pages
	out.SectionsTouched = sortedKeys(touched)
	return out, nil
}

func sortedKeys(set map[int]bool) []int {
	out := make([]int, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}
