package blankpage

import (
	"errors"
	"testing"

	"github.com/tenebris-tech/docxblank/engine"
	"github.com/tenebris-tech/docxblank/engine/enginetest"
	apperrors "github.com/tenebris-tech/docxblank/internal/errors"
)

func TestClassifyBreakType(t *testing.T) {
	tests := []struct {
		raw  string
		want BreakType
	}{
		{engine.BreakContinuous, BreakContinuous},
		{engine.BreakNextPage, BreakNewPage},
		{engine.BreakNextColumn, BreakNewColumn},
		{engine.BreakEvenPage, BreakEvenPage},
		{engine.BreakOddPage, BreakOddPage},
		{"0", BreakContinuous},
		{"2", BreakNewPage},
		{"4", BreakOddPage},
		{" nextPage ", BreakNewPage},
		{"", BreakUnknown},
		{"NextPage", BreakUnknown},
		{"weird", BreakUnknown},
	}
	for _, tt := range tests {
		if got := ClassifyBreakType(tt.raw); got != tt.want {
			t.Errorf("ClassifyBreakType(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestBreakTypeRawRoundTrip(t *testing.T) {
	for _, bt := range []BreakType{BreakContinuous, BreakNewPage, BreakNewColumn, BreakEvenPage, BreakOddPage} {
		if got := ClassifyBreakType(bt.Raw()); got != bt {
			t.Errorf("%v: round trip gave %v", bt, got)
		}
	}
	if BreakUnknown.Raw() != "" {
		t.Errorf("unknown break type should have no raw value")
	}
	if BreakType(42).String() != "Unknown" {
		t.Errorf("out of range break type should print Unknown")
	}
}

func TestListSections(t *testing.T) {
	eng := enginetest.New()
	eng.Put("doc.docx", &enginetest.State{
		Pages: make([]engine.ContentSnapshot, 3),
		Sections: []engine.SectionInfo{
			{Index: 0, BreakType: engine.BreakNextPage, StartPage: 1, EndPage: 2},
			{Index: 1, BreakType: "bogus", StartPage: 3, EndPage: 2},
			{Index: 2, BreakType: engine.BreakContinuous, StartPage: 3, EndPage: 3},
		},
	})
	doc := openFake(t, eng, "doc.docx")

	sections, err := ListSections(doc)
	if err != nil {
		t.Fatalf("ListSections failed: %v", err)
	}
	if len(sections) != 3 {
		t.Fatalf("expected 3 sections, got %d", len(sections))
	}
	if sections[1].BreakType != BreakUnknown || sections[1].RawType != "bogus" {
		t.Errorf("unknown raw type not preserved: %+v", sections[1])
	}
	if sections[1].PageCount() != 0 {
		t.Errorf("mid-page section should own no pages")
	}
	if got := SectionOf(sections, 3); got != 2 {
		t.Errorf("page 3 should be in section 2, got %d", got)
	}
	if got := SectionOf(sections, 9); got != -1 {
		t.Errorf("page 9 should be in no section, got %d", got)
	}
	if err := ValidatePartition(sections, 3); err != nil {
		t.Errorf("partition should be valid: %v", err)
	}
}

func TestListSectionsClosedDocument(t *testing.T) {
	eng := enginetest.New()
	eng.Put("doc.docx", &enginetest.State{Sections: []engine.SectionInfo{{EndPage: 0, StartPage: 1}}})
	doc := openFake(t, eng, "doc.docx")
	_ = doc.Close()

	_, err := ListSections(doc)
	if !apperrors.HasCode(err, apperrors.ErrorDocumentAccess) {
		t.Fatalf("expected DOCUMENT_ACCESS, got %v", err)
	}
	if !errors.Is(err, engine.ErrClosed) {
		t.Errorf("expected the cause to be kept, got %v", err)
	}
}

func TestValidatePartition(t *testing.T) {
	tests := []struct {
		name     string
		sections []Section
		pages    int
		wantErr  bool
	}{
		{"single", []Section{{StartPage: 1, EndPage: 4}}, 4, false},
		{"contiguous", []Section{{StartPage: 1, EndPage: 2}, {StartPage: 3, EndPage: 5}}, 5, false},
		{"empty middle", []Section{{StartPage: 1, EndPage: 2}, {StartPage: 3, EndPage: 2}, {StartPage: 3, EndPage: 3}}, 3, false},
		{"gap", []Section{{StartPage: 1, EndPage: 2}, {StartPage: 4, EndPage: 5}}, 5, true},
		{"overlap", []Section{{StartPage: 1, EndPage: 3}, {StartPage: 3, EndPage: 5}}, 5, true},
		{"short", []Section{{StartPage: 1, EndPage: 2}}, 3, true},
		{"not from one", []Section{{StartPage: 2, EndPage: 3}}, 3, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePartition(tt.sections, tt.pages)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePartition() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
