package engine

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tenebris-tech/docxblank/docx/docxtest"
	apperrors "github.com/tenebris-tech/docxblank/internal/errors"
	"github.com/tenebris-tech/docxblank/internal/logging"
)

func openDocx(t *testing.T, data []byte) Document {
	t.Helper()
	path := docxtest.WriteFile(t, t.TempDir(), "doc.docx", data)
	doc, err := NewDocxEngine(logging.Discard()).Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = doc.Close() })
	return doc
}

func pageCount(t *testing.T, doc Document) int {
	t.Helper()
	n, err := doc.PageCount()
	if err != nil {
		t.Fatalf("PageCount failed: %v", err)
	}
	return n
}

func pageText(t *testing.T, doc Document, page int) string {
	t.Helper()
	snap, err := doc.PageContent(page)
	if err != nil {
		t.Fatalf("PageContent(%d) failed: %v", page, err)
	}
	return snap.Text
}

func TestOpenMissingFile(t *testing.T) {
	_, err := NewDocxEngine(logging.Discard()).Open(context.Background(), filepath.Join(t.TempDir(), "missing.docx"))
	if !apperrors.HasCode(err, apperrors.ErrorDocumentAccess) {
		t.Fatalf("expected DOCUMENT_ACCESS, got %v", err)
	}
}

func TestSinglePage(t *testing.T) {
	doc := openDocx(t, docxtest.Docx(docxtest.P("Hello")+docxtest.SectPr("")))

	if n := pageCount(t, doc); n != 1 {
		t.Fatalf("expected 1 page, got %d", n)
	}
	if got := pageText(t, doc, 1); got != "Hello\r" {
		t.Errorf("unexpected page text %q", got)
	}
	sections, _ := doc.Sections()
	if len(sections) != 1 || sections[0].StartPage != 1 || sections[0].EndPage != 1 {
		t.Errorf("unexpected sections %+v", sections)
	}
}

func TestManualPageBreak(t *testing.T) {
	doc := openDocx(t, docxtest.Docx(
		docxtest.P("A")+docxtest.PageBreak()+docxtest.P("B")+docxtest.SectPr(""),
	))

	if n := pageCount(t, doc); n != 2 {
		t.Fatalf("expected 2 pages, got %d", n)
	}
	if got := pageText(t, doc, 1); got != "A\r\f" {
		t.Errorf("page 1 text %q", got)
	}
	if got := pageText(t, doc, 2); got != "\rB\r" {
		t.Errorf("page 2 text %q", got)
	}
}

func TestSectionStartsOpenPages(t *testing.T) {
	doc := openDocx(t, docxtest.Docx(
		docxtest.P("A")+
			docxtest.SectionBreak(BreakNextPage)+
			docxtest.SectionBreak(BreakNextPage)+
			docxtest.P("C")+
			docxtest.SectPr(BreakNextPage),
	))

	if n := pageCount(t, doc); n != 3 {
		t.Fatalf("expected 3 pages, got %d", n)
	}
	sections, _ := doc.Sections()
	want := [][2]int{{1, 1}, {2, 2}, {3, 3}}
	for i, s := range sections {
		if s.StartPage != want[i][0] || s.EndPage != want[i][1] {
			t.Errorf("section %d range %d-%d, want %v", i, s.StartPage, s.EndPage, want[i])
		}
	}

	snap, _ := doc.PageContent(2)
	if strings.TrimSpace(snap.Text) != "" || !snap.ContainsSectionBreak {
		t.Errorf("page 2 should be an empty section break page: %+v", snap)
	}

	changed, err := doc.SetSectionBreakType(1, BreakContinuous)
	if err != nil || !changed {
		t.Fatalf("SetSectionBreakType = %v, %v", changed, err)
	}
	if n := pageCount(t, doc); n != 2 {
		t.Fatalf("expected 2 pages after fix, got %d", n)
	}
	sections, _ = doc.Sections()
	if sections[1].PageCount() != 0 || sections[1].StartPage != 2 || sections[2].StartPage != 2 {
		t.Errorf("unexpected sections after fix %+v", sections)
	}

	changed, err = doc.SetSectionBreakType(1, BreakContinuous)
	if err != nil || changed {
		t.Errorf("second fix should be a no-op, got %v, %v", changed, err)
	}
}

func TestSectionPartitionIsContiguous(t *testing.T) {
	doc := openDocx(t, docxtest.Docx(
		docxtest.P("A")+
			docxtest.SectionBreak(BreakContinuous)+
			docxtest.P("B")+
			docxtest.TextThenBreak("C")+
			docxtest.SectionBreak(BreakNextPage)+
			docxtest.P("D")+
			docxtest.SectPr(BreakContinuous),
	))

	sections, _ := doc.Sections()
	n := pageCount(t, doc)
	next := 1
	for _, s := range sections {
		if s.StartPage != next {
			t.Fatalf("gap or overlap at section %d: %+v", s.Index, sections)
		}
		next = s.EndPage + 1
	}
	if next != n+1 {
		t.Errorf("sections cover %d pages, document has %d", next-1, n)
	}
}

func TestOddPageInsertsFiller(t *testing.T) {
	doc := openDocx(t, docxtest.Docx(
		docxtest.P("A")+
			docxtest.SectionBreak("")+
			docxtest.P("B")+
			docxtest.SectPr(BreakOddPage),
	))

	if n := pageCount(t, doc); n != 3 {
		t.Fatalf("expected 3 pages with filler, got %d", n)
	}
	sections, _ := doc.Sections()
	if sections[0].EndPage != 2 || sections[1].StartPage != 3 {
		t.Errorf("filler page should belong to the first section: %+v", sections)
	}
	if got := pageText(t, doc, 2); got != "" {
		t.Errorf("filler page should be empty, got %q", got)
	}
}

func TestTablesImagesAndOverflow(t *testing.T) {
	long := strings.Repeat("word ", 1100)
	doc := openDocx(t, docxtest.Docx(
		docxtest.Table([]string{"Name", "Value"})+
			docxtest.Image(914400)+
			docxtest.P(long)+
			docxtest.SectPr(""),
	))

	snap, _ := doc.PageContent(1)
	if len(snap.TableCells) != 2 || snap.TableCells[0] != "Name\r" {
		t.Errorf("unexpected table cells %q", snap.TableCells)
	}
	if snap.ShapeCount != 1 {
		t.Errorf("expected one shape, got %d", snap.ShapeCount)
	}

	n := pageCount(t, doc)
	if n < 2 {
		t.Fatalf("long paragraph should overflow, got %d page(s)", n)
	}
	last := pageText(t, doc, n)
	if !strings.HasSuffix(last, "\r") || strings.TrimSpace(last) == "" {
		t.Errorf("overflow page should carry the paragraph tail, got %q", last)
	}
}

func TestHeaderFooterWatermarkProtection(t *testing.T) {
	doc := openDocx(t, docxtest.Package{
		Body: docxtest.P("A") +
			docxtest.SectionBreak(BreakNextPage, docxtest.HeaderRef("header1.xml")) +
			docxtest.P("B") +
			docxtest.SectPr(BreakNextPage),
		Headers:  map[string]string{"header1.xml": docxtest.Watermark("DRAFT")},
		Settings: docxtest.Protection(),
	}.Bytes())

	for page := 1; page <= 2; page++ {
		snap, _ := doc.PageContent(page)
		if !snap.HeaderFooterPresent || !snap.WatermarkPresent || !snap.Protected {
			t.Errorf("page %d: expected inherited header, watermark and protection: %+v", page, snap)
		}
	}

	changed, err := doc.RemoveWatermarks(1)
	if err != nil || !changed {
		t.Fatalf("RemoveWatermarks = %v, %v", changed, err)
	}
	snap, _ := doc.PageContent(2)
	if snap.WatermarkPresent {
		t.Error("watermark still reported")
	}

	changed, err = doc.Unprotect()
	if err != nil || !changed {
		t.Fatalf("Unprotect = %v, %v", changed, err)
	}
	snap, _ = doc.PageContent(1)
	if snap.Protected {
		t.Error("document still protected")
	}
}

func TestHeaderReferenceToOtherPartIgnored(t *testing.T) {
	// The reference resolves to the settings part, which holds text
	doc := openDocx(t, docxtest.Package{
		Body: docxtest.P("A") +
			docxtest.SectPr(BreakNextPage, `<w:headerReference w:type="default" r:id="rIdSettings"/>`),
		Settings: docxtest.P("Not a header") + `<w:defaultTabStop w:val="720"/>`,
	}.Bytes())

	snap, err := doc.PageContent(1)
	if err != nil {
		t.Fatalf("PageContent failed: %v", err)
	}
	if snap.HeaderFooterPresent || snap.WatermarkPresent {
		t.Errorf("settings part treated as a header: %+v", snap)
	}
}

func TestDeleteTrailingBlankPage(t *testing.T) {
	doc := openDocx(t, docxtest.Docx(docxtest.P("A")+docxtest.PageBreak()+docxtest.SectPr("")))

	if n := pageCount(t, doc); n != 2 {
		t.Fatalf("expected 2 pages, got %d", n)
	}
	if err := doc.DeletePageRange(2, 2); err != nil {
		t.Fatalf("DeletePageRange failed: %v", err)
	}
	if n := pageCount(t, doc); n != 1 {
		t.Errorf("expected 1 page after delete, got %d", n)
	}
}

func TestDeleteMiddlePageRenumbers(t *testing.T) {
	doc := openDocx(t, docxtest.Docx(
		docxtest.P("A")+
			docxtest.PageBreak()+
			docxtest.P("  ")+
			docxtest.PageBreak()+
			docxtest.P("C")+
			docxtest.SectPr(""),
	))

	if n := pageCount(t, doc); n != 3 {
		t.Fatalf("expected 3 pages, got %d", n)
	}
	if err := doc.DeletePageRange(2, 2); err != nil {
		t.Fatalf("DeletePageRange failed: %v", err)
	}
	if n := pageCount(t, doc); n != 2 {
		t.Fatalf("expected 2 pages, got %d", n)
	}
	if got := pageText(t, doc, 2); !strings.Contains(got, "C") {
		t.Errorf("former page 3 should now be page 2, got %q", got)
	}
}

func TestDeleteSolePageLeavesEmptyBody(t *testing.T) {
	doc := openDocx(t, docxtest.Docx(docxtest.P("only")+docxtest.SectPr("")))

	if err := doc.DeletePageRange(1, 1); err != nil {
		t.Fatalf("DeletePageRange failed: %v", err)
	}
	if n := pageCount(t, doc); n != 1 {
		t.Fatalf("expected 1 page, got %d", n)
	}
	if got := pageText(t, doc, 1); got != "\r" {
		t.Errorf("expected one empty paragraph, got %q", got)
	}
}

func TestDeleteKeepsSections(t *testing.T) {
	doc := openDocx(t, docxtest.Docx(
		docxtest.P("A")+
			docxtest.SectionBreak(BreakNextPage)+
			docxtest.TextWithSectionBreak("x", BreakNextPage)+
			docxtest.P("C")+
			docxtest.SectPr(BreakNextPage),
	))

	before, _ := doc.Sections()
	if err := doc.DeletePageRange(2, 2); err != nil {
		t.Fatalf("DeletePageRange failed: %v", err)
	}
	after, _ := doc.Sections()
	if len(before) != len(after) {
		t.Fatalf("section count changed from %d to %d", len(before), len(after))
	}
	if strings.TrimSpace(pageText(t, doc, 2)) != "" {
		t.Errorf("page 2 content should be gone, got %q", pageText(t, doc, 2))
	}
}

func TestInvalidCalls(t *testing.T) {
	doc := openDocx(t, docxtest.Docx(docxtest.P("A")+docxtest.SectPr("")))

	if _, err := doc.PageContent(2); err == nil {
		t.Error("expected out of range error")
	}
	if err := doc.DeletePageRange(2, 1); err == nil {
		t.Error("expected invalid range error")
	}
	if _, err := doc.SetSectionBreakType(0, "sideways"); err == nil {
		t.Error("expected unknown break type error")
	}
	if _, err := doc.SetSectionBreakType(3, BreakContinuous); err == nil {
		t.Error("expected section out of range error")
	}

	_ = doc.Close()
	if _, err := doc.PageCount(); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestSaveAndReopen(t *testing.T) {
	dir := t.TempDir()
	path := docxtest.WriteFile(t, dir, "in.docx", docxtest.Docx(
		docxtest.P("A")+docxtest.SectionBreak(BreakNextPage)+docxtest.P("B")+docxtest.SectPr(""),
	))
	eng := NewDocxEngine(logging.Discard())
	ctx := context.Background()

	doc, err := eng.Open(ctx, path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, err := doc.SetSectionBreakType(1, BreakContinuous); err != nil {
		t.Fatalf("SetSectionBreakType failed: %v", err)
	}
	out := filepath.Join(dir, "out.docx")
	if err := doc.Save(ctx, out); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	_ = doc.Close()

	reopened, err := eng.Open(ctx, out)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()
	if n := pageCount(t, reopened); n != 1 {
		t.Errorf("expected 1 page after saved fix, got %d", n)
	}

	err = reopened.Save(ctx, filepath.Join(dir, "missing", "out.docx"))
	if !apperrors.HasCode(err, apperrors.ErrorSaveFailed) {
		t.Errorf("expected SAVE_FAILED, got %v", err)
	}
}

func TestParagraphsAndSectionBodies(t *testing.T) {
	doc := openDocx(t, docxtest.Docx(
		docxtest.P("First")+
			docxtest.SectionBreak(BreakNextPage)+
			docxtest.Table([]string{"cell"})+
			docxtest.SectPr(""),
	))

	paras, _ := doc.Paragraphs()
	if len(paras) != 2 || paras[0] != "First" || paras[1] != "" {
		t.Errorf("unexpected paragraphs %q", paras)
	}

	bodies, _ := doc.SectionBodies()
	if len(bodies) != 2 {
		t.Fatalf("expected 2 section bodies, got %d", len(bodies))
	}
	if len(bodies[1].Tables) != 1 || bodies[1].Tables[0][0][0] != "cell" {
		t.Errorf("unexpected tables %v", bodies[1].Tables)
	}
}
