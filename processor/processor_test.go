package processor

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/tenebris-tech/docxblank/docx/docxtest"
	"github.com/tenebris-tech/docxblank/engine"
	"github.com/tenebris-tech/docxblank/engine/enginetest"
	apperrors "github.com/tenebris-tech/docxblank/internal/errors"
	"github.com/tenebris-tech/docxblank/internal/logging"
	"github.com/tenebris-tech/docxblank/remediate"
)

func TestParsePages(t *testing.T) {
	tests := []struct {
		spec    string
		want    []int
		wantErr bool
	}{
		{"3", []int{3}, false},
		{"1,3", []int{1, 3}, false},
		{"5-7", []int{5, 6, 7}, false},
		{" 1, 3-5 ,7 ", []int{1, 3, 4, 5, 7}, false},
		{"4,2,4,3-4", []int{2, 3, 4}, false},
		{"", nil, true},
		{"a", nil, true},
		{"5-3", nil, true},
		{"1-", nil, true},
		{"-2", nil, true},
		{"1-2-3", nil, true},
	}
	for _, tt := range tests {
		got, err := ParsePages(tt.spec)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParsePages(%q) error = %v, wantErr %v", tt.spec, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ParsePages(%q) = %v, want %v", tt.spec, got, tt.want)
		}
	}
}

func TestValidatePages(t *testing.T) {
	if err := ValidatePages([]int{1, 5}, 5); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidatePages([]int{6}, 5); err == nil {
		t.Errorf("page past the end should fail")
	}
	if err := ValidatePages([]int{0}, 0); err == nil {
		t.Errorf("page 0 should fail")
	}
	if err := ValidatePages([]int{99}, 0); err != nil {
		t.Errorf("no upper bound when total is unknown: %v", err)
	}
}

func TestFormatPages(t *testing.T) {
	tests := map[string][]int{
		"":        nil,
		"3":       {3},
		"1,3-5,7": {7, 3, 4, 5, 1},
		"2-3":     {2, 3, 3},
	}
	for want, pages := range tests {
		if got := FormatPages(pages); got != want {
			t.Errorf("FormatPages(%v) = %q, want %q", pages, got, want)
		}
	}
}

func fakeProcessor(eng *enginetest.Engine, opts ...Option) *Processor {
	opts = append([]Option{WithEngine(eng), WithLogger(logging.Discard())}, opts...)
	return New(opts...)
}

func middleSectionState() *enginetest.State {
	page := func(text string) engine.ContentSnapshot { return engine.ContentSnapshot{Text: text + "\r"} }
	return &enginetest.State{
		Pages: []engine.ContentSnapshot{
			page("Introduction to the report"),
			page("More introduction text"),
			{Text: "\r"},
			page("Body of the report begins"),
		},
		Sections: []engine.SectionInfo{
			{Index: 0, BreakType: engine.BreakNextPage, StartPage: 1, EndPage: 2},
			{Index: 1, BreakType: engine.BreakNextPage, StartPage: 3, EndPage: 3},
			{Index: 2, BreakType: engine.BreakNextPage, StartPage: 4, EndPage: 4},
		},
	}
}

func TestProcessorDetect(t *testing.T) {
	eng := enginetest.New()
	eng.Put("doc.docx", middleSectionState())

	report, err := fakeProcessor(eng).Detect(context.Background(), "doc.docx")
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if !reflect.DeepEqual(report.BlankPages(), []int{3}) {
		t.Errorf("blank pages = %v", report.BlankPages())
	}
	if opened, closed := eng.Handles(); opened != 1 || closed != 1 {
		t.Errorf("handles opened %d closed %d", opened, closed)
	}
}

func TestProcessorDetectMissing(t *testing.T) {
	report, err := fakeProcessor(enginetest.New()).Detect(context.Background(), "missing.docx")
	if !apperrors.HasCode(err, apperrors.ErrorAnalysisFailed) || !apperrors.HasCode(err, apperrors.ErrorDocumentAccess) {
		t.Fatalf("expected ANALYSIS_FAILED caused by DOCUMENT_ACCESS, got %v", err)
	}
	if !report.Failed() {
		t.Errorf("report should be marked failed")
	}
}

func TestProcessorRemediateValidation(t *testing.T) {
	p := fakeProcessor(enginetest.New())
	tests := []struct {
		name   string
		path   string
		pages  []int
		output string
	}{
		{"no path", "", []int{1}, ""},
		{"bad page", "doc.docx", []int{0}, ""},
		{"output is input", "doc.docx", []int{1}, "doc.docx"},
	}
	for _, tt := range tests {
		_, err := p.Remediate(context.Background(), tt.path, tt.pages, tt.output)
		if !apperrors.HasCode(err, apperrors.ErrorInvalidInput) {
			t.Errorf("%s: expected INVALID_INPUT, got %v", tt.name, err)
		}
	}

	bad := fakeProcessor(enginetest.New(), WithMethods("shred"))
	if _, err := bad.Remediate(context.Background(), "doc.docx", []int{1}, ""); !apperrors.HasCode(err, apperrors.ErrorInvalidInput) {
		t.Errorf("unknown method: expected INVALID_INPUT, got %v", err)
	}
}

func TestProcessorDetectAndRemediate(t *testing.T) {
	eng := enginetest.New()
	eng.Put("doc.docx", middleSectionState())

	var processed []int
	report, result, err := fakeProcessor(eng).DetectAndRemediate(context.Background(), "doc.docx", "out.docx",
		remediate.WithOnPageProcessed(func(page int, method remediate.Method) {
			processed = append(processed, page)
		}))
	if err != nil {
		t.Fatalf("DetectAndRemediate failed: %v", err)
	}
	if report.BlankPageCount != 1 || !result.Success {
		t.Fatalf("unexpected outcome: report %v, result %+v", report.BlankPages(), result)
	}
	if !reflect.DeepEqual(processed, []int{3}) {
		t.Errorf("processed callback pages = %v", processed)
	}
	if eng.Get("out.docx") == nil {
		t.Errorf("output not written")
	}
}

func TestProcessorDocx(t *testing.T) {
	body := docxtest.P("Chapter one has real text") + docxtest.PageBreak() +
		docxtest.P("Page intentionally left blank") + docxtest.PageBreak() +
		docxtest.P("Chapter two has real text") +
		docxtest.SectPr("")
	dir := t.TempDir()
	input := docxtest.WriteFile(t, dir, "book.docx", docxtest.Docx(body))

	p := New(WithLogger(logging.Discard()), WithTempDir(t.TempDir()))
	report, result, err := p.DetectAndRemediate(context.Background(), input, "")
	if err != nil {
		t.Fatalf("DetectAndRemediate failed: %v", err)
	}
	if !reflect.DeepEqual(report.BlankPages(), []int{2}) {
		t.Fatalf("blank pages = %v", report.BlankPages())
	}
	if !result.Success || result.OutputPath != filepath.Join(dir, "book_processed.docx") {
		t.Fatalf("unexpected result %+v", result)
	}

	after, err := p.Detect(context.Background(), result.OutputPath)
	if err != nil {
		t.Fatalf("Detect on output failed: %v", err)
	}
	if after.PageCount != 2 || after.BlankPageCount != 0 {
		t.Errorf("output has %d pages, blank %v", after.PageCount, after.BlankPages())
	}
}
