package blankpage

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/tenebris-tech/docxblank/engine"
	apperrors "github.com/tenebris-tech/docxblank/internal/errors"
	"github.com/tenebris-tech/docxblank/internal/logging"
)

// Detector produces blank-page reports for open documents
type Detector struct {
	log *logrus.Entry
}

// NewDetector creates a detector logging through log
func NewDetector(log *logrus.Entry) *Detector {
	if log == nil {
		log = logging.Component("detector")
	}
	return &Detector{log: log}
}

// Detect classifies every page of doc. Any engine failure aborts the pass:
// the returned report is empty with Err set, and the error is an AnalysisError.
func (d *Detector) Detect(ctx context.Context, doc engine.Document, path string) (*Report, error) {
	log := d.log.WithField("path", path)

	fail := func(err error) (*Report, error) {
		aerr := apperrors.NewAnalysisError(path, err)
		log.WithError(err).Error("Blank page detection aborted")
		return &Report{Path: path, Err: aerr}, aerr
	}

	sections, err := ListSections(doc)
	if err != nil {
		return fail(err)
	}

	count, err := doc.PageCount()
	if err != nil {
		return fail(fmt.Errorf("counting pages: %w", err))
	}

	report := &Report{
		Path:      path,
		PageCount: count,
		Pages:     make([]PageRecord, 0, count),
		Sections:  sections,
	}

	for page := 1; page <= count; page++ {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}

		snap, err := doc.PageContent(page)
		if err != nil {
			return fail(fmt.Errorf("reading page %d: %w", page, err))
		}

		section := SectionOf(sections, page)
		rec := PageRecord{
			PageNumber:      page,
			SectionIndex:    section,
			HasSectionBreak: endsBeforeBreak(sections, section, page),
		}

		if verr := snap.Validate(); verr != nil {
			// Malformed content is treated as content rather than aborting the pass
			log.WithError(verr).WithField("page", page).Warn("Invalid page content")
			rec.Reason = ReasonHasContent
			report.Pages = append(report.Pages, rec)
			continue
		}

		rec.HasText = strings.TrimSpace(snap.Text) != ""
		rec.HasTable = len(snap.TableCells) > 0
		rec.HasImage = snap.ShapeCount > 0
		rec.HasHeaderFooter = snap.HeaderFooterPresent
		rec.HasWatermark = snap.WatermarkPresent
		rec.IsProtected = snap.Protected

		input := *snap
		input.ContainsSectionBreak = snap.ContainsSectionBreak || rec.HasSectionBreak
		c := Classify(input)
		rec.IsBlank = c.IsBlank
		rec.Reason = c.Reason

		log.WithFields(logrus.Fields{
			"page":    page,
			"section": section,
			"blank":   c.IsBlank,
			"reason":  c.Reason,
		}).Debug("Classified page")

		report.Pages = append(report.Pages, rec)
	}

	analysis := AnalyzeSections(doc, sections, log)
	report.SectionsWithContent = analysis.ContentSections()
	report.CandidateSections = analysis.CandidateSections()

	for i := range report.Pages {
		rec := &report.Pages[i]
		if !rec.IsBlank && rec.Reason == ReasonHasContent && analysis.Candidates[rec.SectionIndex] {
			rec.IsBlank = true
			rec.Reason = ReasonEmptyMiddleSection
			log.WithFields(logrus.Fields{"page": rec.PageNumber, "section": rec.SectionIndex}).Debug("Downgraded page in empty middle section")
		}
		if rec.IsBlank {
			report.BlankPageCount++
		}
	}

	log.WithFields(logrus.Fields{
		"pages": count,
		"blank": report.BlankPageCount,
	}).Info("Detection complete")
	return report, nil
}

// endsBeforeBreak reports whether page is the last page of its section and
// the following section starts on a new page
func endsBeforeBreak(sections []Section, section, page int) bool {
	if section < 0 || section+1 >= len(sections) {
		return false
	}
	if sections[section].EndPage != page {
		return false
	}
	return sections[section+1].BreakType != BreakContinuous
}
