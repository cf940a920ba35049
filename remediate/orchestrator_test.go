package remediate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/tenebris-tech/docxblank/docx/docxtest"
	"github.com/tenebris-tech/docxblank/engine"
	"github.com/tenebris-tech/docxblank/engine/enginetest"
	apperrors "github.com/tenebris-tech/docxblank/internal/errors"
	"github.com/tenebris-tech/docxblank/internal/logging"
)

func textPage(text string) engine.ContentSnapshot {
	return engine.ContentSnapshot{Text: text + "\r"}
}

// emptyMiddleState has an empty middle section owning page 3
func emptyMiddleState() *enginetest.State {
	return &enginetest.State{
		Pages: []engine.ContentSnapshot{
			textPage("Introduction to the report"),
			textPage("More introduction text"),
			textPage("Residual field code text"),
			textPage("Body of the report begins"),
			textPage("Body of the report ends"),
		},
		Sections: []engine.SectionInfo{
			{Index: 0, BreakType: engine.BreakNextPage, StartPage: 1, EndPage: 2},
			{Index: 1, BreakType: engine.BreakNextPage, StartPage: 3, EndPage: 3},
			{Index: 2, BreakType: engine.BreakNextPage, StartPage: 4, EndPage: 5},
		},
		Paragraphs: []string{"Introduction", "", "", "Body"},
		Bodies: []engine.SectionBody{
			{TextBlocks: []string{"Introduction"}},
			{},
			{TextBlocks: []string{"Body"}},
		},
	}
}

// singleSectionState has n pages in one section; the listed pages are empty
func singleSectionState(n int, blank ...int) *enginetest.State {
	s := &enginetest.State{
		Sections: []engine.SectionInfo{{Index: 0, BreakType: engine.BreakNextPage, StartPage: 1, EndPage: n}},
	}
	for i := 1; i <= n; i++ {
		s.Pages = append(s.Pages, textPage(fmt.Sprintf("Text content of page %d", i)))
	}
	for _, p := range blank {
		s.Pages[p-1] = engine.ContentSnapshot{Text: "\r"}
	}
	return s
}

type callbackLog struct {
	processed []string
	failed    []int
	progress  int
	completed []*Result
}

func (c *callbackLog) options() []Option {
	return []Option{
		WithLogger(logging.Discard()),
		WithOnPageProcessed(func(page int, method Method) {
			c.processed = append(c.processed, fmt.Sprintf("%d:%s", page, method))
		}),
		WithOnPageFailed(func(page int, reason string) {
			c.failed = append(c.failed, page)
		}),
		WithOnProgress(func(percent int, message string) {
			c.progress++
		}),
		WithOnComplete(func(r *Result) {
			c.completed = append(c.completed, r)
		}),
	}
}

func newOrchestrator(t *testing.T, eng engine.Engine, opts ...Option) *Orchestrator {
	t.Helper()
	opts = append([]Option{WithLogger(logging.Discard())}, opts...)
	o, err := New(eng, opts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return o
}

func checkHandles(t *testing.T, eng *enginetest.Engine) {
	t.Helper()
	opened, closed := eng.Handles()
	if opened != closed {
		t.Errorf("leaked document handles: opened %d, closed %d", opened, closed)
	}
}

func TestRemediateEmptyMiddleSection(t *testing.T) {
	eng := enginetest.New()
	eng.Put("doc.docx", emptyMiddleState())
	cb := &callbackLog{}

	result, err := newOrchestrator(t, eng, cb.options()...).Remediate(context.Background(), "doc.docx", []int{3}, "out.docx")
	if err != nil {
		t.Fatalf("Remediate failed: %v", err)
	}

	if !result.Success || result.State != StateConverged {
		t.Fatalf("expected convergence, got %+v", result)
	}
	if !reflect.DeepEqual(result.ProcessedPages, []int{3}) || len(result.RemainingPages) != 0 {
		t.Errorf("processed %v remaining %v", result.ProcessedPages, result.RemainingPages)
	}
	if result.Attempts != 1 {
		t.Errorf("expected 1 round, got %d", result.Attempts)
	}
	if st := result.Pages[0]; st.Method != MethodSectionFix || st.Status != StatusProcessed {
		t.Errorf("page 3 state = %+v", st)
	}
	if !reflect.DeepEqual(cb.processed, []string{"3:section_fix"}) {
		t.Errorf("OnPageProcessed calls = %v", cb.processed)
	}
	if len(cb.completed) != 1 || cb.completed[0] != result || cb.progress == 0 {
		t.Errorf("callbacks not delivered: %d completions, %d progress", len(cb.completed), cb.progress)
	}
	if result.OutputPath != "out.docx" || !strings.Contains(result.Message, "processed 1/1 pages after 1 rounds") {
		t.Errorf("unexpected result %q %q", result.OutputPath, result.Message)
	}

	out := eng.Get("out.docx")
	if out == nil {
		t.Fatal("output document not written")
	}
	if out.Sections[1].BreakType != engine.BreakContinuous {
		t.Errorf("section 1 break = %s", out.Sections[1].BreakType)
	}
	checkHandles(t, eng)
}

func TestRemediateNotBlankPages(t *testing.T) {
	eng := enginetest.New()
	eng.Put("doc.docx", singleSectionState(4))
	cb := &callbackLog{}

	result, err := newOrchestrator(t, eng, cb.options()...).Remediate(context.Background(), "doc.docx", []int{1, 2}, "out.docx")
	if err != nil {
		t.Fatalf("Remediate failed: %v", err)
	}
	if result.Success || result.State != StateNoProgress {
		t.Errorf("expected no progress, got %s success=%v", result.State, result.Success)
	}
	if !reflect.DeepEqual(result.RemainingPages, []int{1, 2}) || len(result.ProcessedPages) != 0 {
		t.Errorf("remaining %v processed %v", result.RemainingPages, result.ProcessedPages)
	}
	for _, st := range result.Pages {
		if st.Status != StatusFailed {
			t.Errorf("page %d should be failed, got %s", st.PageNumber, st.Status)
		}
	}
	if !reflect.DeepEqual(cb.failed, []int{1, 2}) {
		t.Errorf("OnPageFailed calls = %v", cb.failed)
	}
	if len(eng.Calls()) != 0 {
		t.Errorf("pages that are not blank must not be touched: %v", eng.Calls())
	}
	checkHandles(t, eng)
}

func TestRemediateTerminatesWithoutProgress(t *testing.T) {
	eng := enginetest.New()
	eng.Put("doc.docx", singleSectionState(3, 2))
	eng.OnDeletePages = func(*enginetest.State, int, int) error { return nil }

	result, err := newOrchestrator(t, eng, WithMaxAttempts(5)).Remediate(context.Background(), "doc.docx", []int{2}, "out.docx")
	if err != nil {
		t.Fatalf("Remediate failed: %v", err)
	}
	if result.State != StateNoProgress || result.Attempts != 1 {
		t.Errorf("expected no progress after 1 round, got %s after %d", result.State, result.Attempts)
	}
	if result.Success || !reflect.DeepEqual(result.RemainingPages, []int{2}) {
		t.Errorf("unexpected result %+v", result)
	}
	checkHandles(t, eng)
}

func TestRemediateExhausted(t *testing.T) {
	eng := enginetest.New()
	eng.Put("doc.docx", singleSectionState(5, 2, 4))
	// Only page 4 can be deleted
	eng.OnDeletePages = func(s *enginetest.State, start, end int) error {
		if start == 4 {
			s.RemovePages(start, end)
		}
		return nil
	}

	result, err := newOrchestrator(t, eng, WithMaxAttempts(1)).Remediate(context.Background(), "doc.docx", []int{2, 4}, "out.docx")
	if err != nil {
		t.Fatalf("Remediate failed: %v", err)
	}
	if result.State != StateExhausted || result.Attempts != 1 {
		t.Fatalf("expected exhaustion after 1 round, got %s after %d", result.State, result.Attempts)
	}
	if !reflect.DeepEqual(result.ProcessedPages, []int{4}) || !reflect.DeepEqual(result.RemainingPages, []int{2}) {
		t.Errorf("processed %v remaining %v", result.ProcessedPages, result.RemainingPages)
	}
	st := result.Pages[1]
	if st.PageNumber != 4 || st.Method != MethodCombined {
		t.Errorf("page 4 state = %+v", st)
	}
	if result.Success {
		t.Errorf("partial result must not report success")
	}
	if out := eng.Get("out.docx"); out == nil || len(out.Pages) != 4 {
		t.Errorf("output should hold the last good revision")
	}
}

func TestRemediateRecoversFromStrategyError(t *testing.T) {
	eng := enginetest.New()
	eng.Put("doc.docx", emptyMiddleState())
	eng.OnSetBreakType = func(*enginetest.State, int, string) (bool, error) {
		return false, errors.New("section is locked")
	}

	result, err := newOrchestrator(t, eng).Remediate(context.Background(), "doc.docx", []int{3}, "out.docx")
	if err != nil {
		t.Fatalf("Remediate failed: %v", err)
	}
	if !result.Success || result.Pages[0].Method != MethodPageRemove {
		t.Fatalf("expected page_remove to resolve the page, got %+v", result.Pages[0])
	}

	var failures []Method
	for _, a := range result.Log {
		if a.Err != nil {
			if !apperrors.HasCode(a.Err, apperrors.ErrorStrategyFailed) {
				t.Errorf("attempt error should be a StrategyError: %v", a.Err)
			}
			failures = append(failures, a.Method)
		}
	}
	if !reflect.DeepEqual(failures, []Method{MethodSectionFix, MethodCombined}) {
		t.Errorf("failed attempts = %v", failures)
	}
	checkHandles(t, eng)
}

func TestRemediateSaveFailure(t *testing.T) {
	eng := enginetest.New()
	eng.Put("doc.docx", emptyMiddleState())
	eng.FailSave = errors.New("disk full")
	cb := &callbackLog{}

	result, err := newOrchestrator(t, eng, cb.options()...).Remediate(context.Background(), "doc.docx", []int{3}, "out.docx")
	if !apperrors.HasCode(err, apperrors.ErrorSaveFailed) {
		t.Fatalf("expected SAVE_FAILED, got %v", err)
	}
	if result.State != StateExhausted || result.Success {
		t.Errorf("expected exhausted, got %s", result.State)
	}
	if !reflect.DeepEqual(result.RemainingPages, []int{3}) || result.Pages[0].Status != StatusFailed {
		t.Errorf("page 3 should fail: %+v", result.Pages)
	}
	if len(result.Log) != 1 || result.Log[0].Method != MethodSectionFix {
		t.Errorf("the loop should stop at the first save: %+v", result.Log)
	}
	if len(cb.completed) != 1 {
		t.Errorf("OnComplete should still be called")
	}
	checkHandles(t, eng)
}

func TestRemediateRedetectsAfterRemoval(t *testing.T) {
	eng := enginetest.New()
	state := singleSectionState(10, 5)
	state.Pages[5] = textPage("Former page six text")
	eng.Put("doc.docx", state)

	result, err := newOrchestrator(t, eng).Remediate(context.Background(), "doc.docx", []int{5}, "out.docx")
	if err != nil {
		t.Fatalf("Remediate failed: %v", err)
	}
	if !result.Success || result.Pages[0].Method != MethodCombined {
		t.Fatalf("unexpected result %+v", result.Pages)
	}

	out := eng.Get("out.docx")
	if len(out.Pages) != 9 {
		t.Fatalf("expected 9 pages, got %d", len(out.Pages))
	}
	if !strings.Contains(out.Pages[4].Text, "Former page six") {
		t.Errorf("page 5 of the output should be the former page 6, got %q", out.Pages[4].Text)
	}
}

func TestRemediateOpenFailure(t *testing.T) {
	eng := enginetest.New()
	cb := &callbackLog{}

	result, err := newOrchestrator(t, eng, cb.options()...).Remediate(context.Background(), "missing.docx", []int{1}, "")
	if !apperrors.HasCode(err, apperrors.ErrorDocumentAccess) {
		t.Fatalf("expected DOCUMENT_ACCESS, got %v", err)
	}
	if result.OutputPath != "" || result.Success || !reflect.DeepEqual(cb.failed, []int{1}) {
		t.Errorf("unexpected result %+v", result)
	}
}

func TestRemediateNothingMarked(t *testing.T) {
	eng := enginetest.New()
	eng.Put("doc.docx", singleSectionState(2))

	result, err := newOrchestrator(t, eng).Remediate(context.Background(), "doc.docx", nil, "")
	if err != nil {
		t.Fatalf("Remediate failed: %v", err)
	}
	if result.Success || result.State != StateNoProgress || result.Attempts != 0 {
		t.Errorf("unexpected result %+v", result)
	}
	if result.OutputPath != "doc_processed.docx" || eng.Get("doc_processed.docx") == nil {
		t.Errorf("output should still be written to the default path")
	}
}

func TestNewRejectsUnknownMethod(t *testing.T) {
	if _, err := New(enginetest.New(), WithMethods("shred")); err == nil {
		t.Fatal("expected an error")
	}
}

func TestRemediateDocx(t *testing.T) {
	body := docxtest.P("First section page one") + docxtest.PageBreak() +
		docxtest.TextWithSectionBreak("First section page two", "") +
		docxtest.SectionBreak(engine.BreakNextPage) +
		docxtest.P("Third section text") + docxtest.PageBreak() +
		docxtest.P("Third section more") +
		docxtest.SectPr(engine.BreakNextPage)

	dir := t.TempDir()
	revisions := t.TempDir()
	input := docxtest.WriteFile(t, dir, "report.docx", docxtest.Docx(body))
	eng := engine.NewDocxEngine(logging.Discard())

	result, err := newOrchestrator(t, eng, WithTempDir(revisions)).Remediate(context.Background(), input, []int{3}, "")
	if err != nil {
		t.Fatalf("Remediate failed: %v", err)
	}
	if !result.Success || result.Pages[0].Method != MethodSectionFix {
		t.Fatalf("unexpected result %+v", result)
	}

	want := filepath.Join(dir, "report_processed.docx")
	if result.OutputPath != want {
		t.Errorf("output path %s, want %s", result.OutputPath, want)
	}
	doc, err := eng.Open(context.Background(), want)
	if err != nil {
		t.Fatalf("cannot reopen output: %v", err)
	}
	defer doc.Close()
	if n, _ := doc.PageCount(); n != 3 {
		t.Errorf("expected 3 pages after the fix, got %d", n)
	}

	entries, err := os.ReadDir(revisions)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("revision files left behind: %v", entries)
	}
}
