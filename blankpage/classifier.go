package blankpage

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/tenebris-tech/docxblank/engine"
)

// Reason explains a page classification
type Reason string

const (
	ReasonSectionBreakOnly    Reason = "section-break-only"
	ReasonNoContent           Reason = "no content"
	ReasonWhitespaceOnly      Reason = "whitespace only"
	ReasonPageBreakArtifact   Reason = "page-break artifact"
	ReasonBlankMarker         Reason = "blank marker text"
	ReasonPageNumberOnly      Reason = "page-number-only"
	ReasonInsufficientContent Reason = "insufficient content"
	ReasonHasContent          Reason = "has content"
	ReasonEmptyMiddleSection  Reason = "empty middle section"
)

// BlankMarkers are phrases placed on pages deliberately left empty.
// Matching is case-sensitive on NFC-normalized text.
var BlankMarkers = []string{
	"Page intentionally left blank",
	"Trang này được để trống",
	"Trang trống",
}

var normalizedMarkers = func() []string {
	out := make([]string, len(BlankMarkers))
	for i, m := range BlankMarkers {
		out[i] = norm.NFC.String(m)
	}
	return out
}()

// Classification is the outcome for one page
type Classification struct {
	IsBlank bool
	Reason  Reason
}

// Classify decides whether a page is blank. Rules are checked in order and the
// first match wins; later rules assume the earlier ones failed.
func Classify(snap engine.ContentSnapshot) Classification {
	text := snap.Text
	trimmed := strings.TrimSpace(text)
	trimmedLen := utf8.RuneCountInString(trimmed)

	if snap.ContainsSectionBreak && trimmedLen < 5 {
		return blank(ReasonSectionBreakOnly)
	}
	if len(text) == 0 && len(snap.TableCells) == 0 && snap.ShapeCount == 0 {
		return blank(ReasonNoContent)
	}

	stripped := alphanumeric(text)
	strippedLen := utf8.RuneCountInString(stripped)

	if strippedLen == 0 {
		return blank(ReasonWhitespaceOnly)
	}
	if strings.ContainsRune(text, '\f') && trimmedLen < 10 {
		return blank(ReasonPageBreakArtifact)
	}
	if containsMarker(text) {
		return blank(ReasonBlankMarker)
	}
	if strippedLen <= 3 && trimmedLen <= 10 {
		return blank(ReasonPageNumberOnly)
	}
	if strippedLen < 5 {
		return blank(ReasonInsufficientContent)
	}
	return Classification{IsBlank: false, Reason: ReasonHasContent}
}

func blank(reason Reason) Classification {
	return Classification{IsBlank: true, Reason: reason}
}

// alphanumeric keeps only letters and digits
func alphanumeric(s string) string {
	var sb strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func containsMarker(text string) bool {
	normalized := norm.NFC.String(text)
	for _, m := range normalizedMarkers {
		if strings.Contains(normalized, m) {
			return true
		}
	}
	return false
}
