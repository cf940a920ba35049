package blankpage

import (
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/tenebris-tech/docxblank/engine"
)

// SectionAnalysis estimates which sections carry genuine content
type SectionAnalysis struct {
	// WithContent holds sections judged to have content
	WithContent map[int]bool
	// Candidates holds empty middle sections starting on a new page between two
	// sections with content
	Candidates map[int]bool
}

// ContentSections returns the sections with content in ascending order
func (a *SectionAnalysis) ContentSections() []int {
	return sortedSet(a.WithContent)
}

// CandidateSections returns the strong blank candidates in ascending order
func (a *SectionAnalysis) CandidateSections() []int {
	return sortedSet(a.Candidates)
}

// AnalyzeSections unions two content signals: paragraphs spread over sections by
// their position in the document, and the per-section body content. The
// paragraph signal is an approximation since paragraph ownership is not known;
// it can attribute text to a neighboring section. Extraction failures degrade
// to an empty content set.
func AnalyzeSections(doc engine.Document, sections []Section, log *logrus.Entry) *SectionAnalysis {
	analysis := &SectionAnalysis{
		WithContent: make(map[int]bool),
		Candidates:  make(map[int]bool),
	}
	total := len(sections)
	if total == 0 {
		return analysis
	}

	paragraphs, err := doc.Paragraphs()
	if err != nil {
		log.WithError(err).Warn("Cannot read paragraphs for section analysis")
	} else {
		for idx := range distributeParagraphs(paragraphs, total) {
			analysis.WithContent[idx] = true
		}
	}

	bodies, err := doc.SectionBodies()
	if err != nil {
		log.WithError(err).Warn("Cannot read section bodies for section analysis")
	} else {
		for i, body := range bodies {
			if i < total && bodyHasContent(body) {
				analysis.WithContent[i] = true
			}
		}
	}

	for i := 1; i < total-1; i++ {
		if sections[i].BreakType != BreakNewPage || analysis.WithContent[i] {
			continue
		}
		if analysis.WithContent[i-1] && analysis.WithContent[i+1] {
			analysis.Candidates[i] = true
			log.WithField("section", i).Debug("Empty middle section")
		}
	}

	return analysis
}

// distributeParagraphs attributes each non-empty paragraph at index p to
// section floor(p/total*sections), clamped to the last section
func distributeParagraphs(paragraphs []string, sections int) map[int]bool {
	out := make(map[int]bool)
	total := len(paragraphs)
	for p, text := range paragraphs {
		if strings.TrimSpace(text) == "" {
			continue
		}
		idx := p * sections / total
		if idx > sections-1 {
			idx = sections - 1
		}
		out[idx] = true
	}
	return out
}

func bodyHasContent(body engine.SectionBody) bool {
	for _, block := range body.TextBlocks {
		if strings.TrimSpace(block) != "" {
			return true
		}
	}
	for _, table := range body.Tables {
		for _, row := range table {
			for _, cell := range row {
				if strings.TrimSpace(cell) != "" {
					return true
				}
			}
		}
	}
	return false
}

func sortedSet(set map[int]bool) []int {
	out := make([]int, 0, len(set))
	for k, v := range set {
		if v {
			out = append(out, k)
		}
	}
	sort.Ints(out)
	return out
}
