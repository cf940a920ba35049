package blankpage

import (
	"errors"
	"reflect"
	"testing"

	"github.com/tenebris-tech/docxblank/engine"
	"github.com/tenebris-tech/docxblank/internal/logging"
)

// stubDocument serves paragraphs and bodies for analyzer tests
type stubDocument struct {
	engine.Document
	paragraphs    []string
	bodies        []engine.SectionBody
	paragraphsErr error
	bodiesErr     error
}

func (s *stubDocument) Paragraphs() ([]string, error) {
	return s.paragraphs, s.paragraphsErr
}

func (s *stubDocument) SectionBodies() ([]engine.SectionBody, error) {
	return s.bodies, s.bodiesErr
}

func threeSections(middle BreakType) []Section {
	return []Section{
		{Index: 0, BreakType: BreakNewPage, StartPage: 1, EndPage: 2},
		{Index: 1, BreakType: middle, StartPage: 3, EndPage: 3},
		{Index: 2, BreakType: BreakNewPage, StartPage: 4, EndPage: 5},
	}
}

func TestDistributeParagraphs(t *testing.T) {
	paragraphs := []string{"a", "", "", "b", " ", "c"}
	got := distributeParagraphs(paragraphs, 3)
	// 0*3/6=0, 3*3/6=1, 5*3/6=2
	want := map[int]bool{0: true, 1: true, 2: true}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("distributeParagraphs() = %v, want %v", got, want)
	}

	got = distributeParagraphs([]string{"only"}, 4)
	if !reflect.DeepEqual(got, map[int]bool{0: true}) {
		t.Errorf("single paragraph should map to section 0, got %v", got)
	}
}

func TestAnalyzeSectionsEmptyMiddle(t *testing.T) {
	doc := &stubDocument{
		paragraphs: []string{"Intro", "", "", "Body"},
		bodies: []engine.SectionBody{
			{TextBlocks: []string{"Intro"}},
			{TextBlocks: []string{"", " "}},
			{Tables: [][][]string{{{"cell"}}}},
		},
	}

	a := AnalyzeSections(doc, threeSections(BreakNewPage), logging.Discard())
	if got := a.ContentSections(); !reflect.DeepEqual(got, []int{0, 2}) {
		t.Errorf("content sections = %v", got)
	}
	if got := a.CandidateSections(); !reflect.DeepEqual(got, []int{1}) {
		t.Errorf("candidate sections = %v", got)
	}
}

func TestAnalyzeSectionsRequiresNewPage(t *testing.T) {
	doc := &stubDocument{
		bodies: []engine.SectionBody{
			{TextBlocks: []string{"Intro"}},
			{},
			{TextBlocks: []string{"End"}},
		},
	}
	for _, bt := range []BreakType{BreakContinuous, BreakOddPage, BreakUnknown} {
		a := AnalyzeSections(doc, threeSections(bt), logging.Discard())
		if len(a.Candidates) != 0 {
			t.Errorf("%v middle section should not be a candidate", bt)
		}
	}
}

func TestAnalyzeSectionsBodyContentWins(t *testing.T) {
	doc := &stubDocument{
		paragraphs: []string{"Intro", "", "", "Body"},
		bodies: []engine.SectionBody{
			{TextBlocks: []string{"Intro"}},
			{TextBlocks: []string{"Middle"}},
			{TextBlocks: []string{"Body"}},
		},
	}
	a := AnalyzeSections(doc, threeSections(BreakNewPage), logging.Discard())
	if len(a.Candidates) != 0 {
		t.Errorf("section with body content flagged: %v", a.CandidateSections())
	}
}

func TestAnalyzeSectionsExtractionFailure(t *testing.T) {
	doc := &stubDocument{
		paragraphsErr: errors.New("boom"),
		bodiesErr:     errors.New("boom"),
	}
	a := AnalyzeSections(doc, threeSections(BreakNewPage), logging.Discard())
	if len(a.WithContent) != 0 || len(a.Candidates) != 0 {
		t.Errorf("failed extraction should give empty sets, got %v %v", a.WithContent, a.Candidates)
	}
}

func TestAnalyzeSectionsNoSections(t *testing.T) {
	a := AnalyzeSections(&stubDocument{}, nil, logging.Discard())
	if len(a.ContentSections()) != 0 || len(a.CandidateSections()) != 0 {
		t.Errorf("expected empty analysis")
	}
}
