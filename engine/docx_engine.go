package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/tenebris-tech/docxblank/docx"
	apperrors "github.com/tenebris-tech/docxblank/internal/errors"
	"github.com/tenebris-tech/docxblank/internal/logging"
)

// Header and footer reference kinds
const (
	refDefault = "default"
	refFirst   = "first"
	refEven    = "even"
)

// DocxEngine implements Engine on top of the docx package with estimated pagination
type DocxEngine struct {
	log *logrus.Entry
}

// NewDocxEngine creates a DOCX-backed engine
func NewDocxEngine(log *logrus.Entry) *DocxEngine {
	if log == nil {
		log = logging.Component("engine")
	}
	return &DocxEngine{log: log}
}

// Open loads the document at path
func (e *DocxEngine) Open(ctx context.Context, path string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.NewDocumentAccessError(path, err)
	}

	parser, err := docx.NewParserFromFile(path)
	if err != nil {
		return nil, apperrors.NewDocumentAccessError(path, err)
	}
	if err := parser.Parse(); err != nil {
		return nil, apperrors.NewDocumentAccessError(path, err)
	}

	doc := &docxDocument{
		path:   path,
		parser: parser,
		log:    e.log.WithField("path", path),
	}
	if err := doc.refresh(); err != nil {
		return nil, apperrors.NewDocumentAccessError(path, err)
	}

	e.log.WithFields(logrus.Fields{
		"path":     path,
		"pages":    len(doc.layout.pages),
		"sections": len(doc.layout.sections),
	}).Debug("Opened document")
	return doc, nil
}

// docxDocument is one DOCX revision held in memory
type docxDocument struct {
	path   string
	parser *docx.Parser
	log    *logrus.Entry
	closed bool

	// Derived state, rebuilt after every mutation
	body      *docx.Body
	layout    *layout
	headers   []map[string]string
	footers   []map[string]string
	parts     map[string]*docx.PartSummary
	protected bool
}

// refresh re-parses the body and recomputes pagination
func (d *docxDocument) refresh() error {
	body, err := d.parser.GetBody()
	if err != nil {
		return err
	}
	d.body = body
	d.layout = computeLayout(body)
	d.parts = make(map[string]*docx.PartSummary)

	settings, err := d.parser.GetSettings()
	if err != nil {
		return err
	}
	d.protected = settings.IsProtected()

	// Sections without their own references inherit the previous section's
	sections := body.Sections()
	d.headers = make([]map[string]string, len(sections))
	d.footers = make([]map[string]string, len(sections))
	prevHeaders := map[string]string{}
	prevFooters := map[string]string{}
	for i, sec := range sections {
		d.headers[i] = inheritRefs(prevHeaders, d.resolveRefs(sec.Properties, true))
		d.footers[i] = inheritRefs(prevFooters, d.resolveRefs(sec.Properties, false))
		prevHeaders, prevFooters = d.headers[i], d.footers[i]
	}
	return nil
}

func (d *docxDocument) resolveRefs(props *docx.SectionProperties, headers bool) map[string]string {
	refs := map[string]string{}
	if props == nil {
		return refs
	}
	list := props.Footers
	if headers {
		list = props.Headers
	}
	for _, ref := range list {
		kind := ref.Type
		if kind == "" {
			kind = refDefault
		}
		if part := d.parser.ResolveHeaderFooterPart(ref.ID); part != "" && d.parser.HasFile(part) {
			refs[kind] = part
		}
	}
	return refs
}

func inheritRefs(prev, own map[string]string) map[string]string {
	merged := make(map[string]string, len(prev)+len(own))
	for k, v := range prev {
		merged[k] = v
	}
	for k, v := range own {
		merged[k] = v
	}
	return merged
}

func (d *docxDocument) summary(part string) *docx.PartSummary {
	if s, ok := d.parts[part]; ok {
		return s
	}
	s, err := d.parser.InspectPart(part)
	if err != nil {
		d.log.WithError(err).WithField("part", part).Warn("Cannot inspect header or footer")
		s = nil
	}
	d.parts[part] = s
	return s
}

func (d *docxDocument) check() error {
	if d.closed {
		return ErrClosed
	}
	return nil
}

func (d *docxDocument) checkSection(section int) error {
	if err := d.check(); err != nil {
		return err
	}
	if section < 0 || section >= len(d.layout.sections) {
		return fmt.Errorf("section %d out of range (0-%d)", section, len(d.layout.sections)-1)
	}
	return nil
}

func (d *docxDocument) PageCount() (int, error) {
	if err := d.check(); err != nil {
		return 0, err
	}
	return len(d.layout.pages), nil
}

func (d *docxDocument) PageContent(page int) (*ContentSnapshot, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	if page < 1 || page > len(d.layout.pages) {
		return nil, fmt.Errorf("page %d out of range (1-%d)", page, len(d.layout.pages))
	}

	lp := d.layout.pages[page-1]
	snap := &ContentSnapshot{
		Protected:            d.protected,
		ContainsSectionBreak: lp.sectionBreak,
	}

	var text strings.Builder
	for _, f := range lp.fragments {
		text.WriteString(f.text)
		snap.TableCells = append(snap.TableCells, f.cells...)
		snap.ShapeCount += f.shapes
	}
	snap.Text = text.String()

	kind := refDefault
	if d.layout.firstPage[lp.section] == page-1 && d.sectionTitlePage(lp.section) {
		kind = refFirst
	}
	for _, part := range []string{d.headers[lp.section][kind], d.footers[lp.section][kind]} {
		if part == "" {
			continue
		}
		if s := d.summary(part); s.HasContent() {
			snap.HeaderFooterPresent = true
		}
	}
	if part := d.headers[lp.section][kind]; part != "" {
		if s := d.summary(part); s != nil && s.Watermark {
			snap.WatermarkPresent = true
		}
	}

	return snap, nil
}

func (d *docxDocument) sectionTitlePage(section int) bool {
	props := d.body.Sections()[section].Properties
	return props != nil && props.TitlePg.IsTrue()
}

func (d *docxDocument) Sections() ([]SectionInfo, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	out := make([]SectionInfo, len(d.layout.sections))
	copy(out, d.layout.sections)
	return out, nil
}

func (d *docxDocument) Paragraphs() ([]string, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	var out []string
	for i := range d.body.Blocks {
		b := &d.body.Blocks[i]
		if b.Kind == docx.BlockTable {
			continue
		}
		out = append(out, cleanText(b.Text()))
	}
	return out, nil
}

func (d *docxDocument) SectionBodies() ([]SectionBody, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	sections := d.body.Sections()
	out := make([]SectionBody, len(sections))
	for si, sec := range sections {
		for bi := sec.FirstBlock; bi <= sec.LastBlock; bi++ {
			b := &d.body.Blocks[bi]
			if len(b.Rows) > 0 {
				table := make([][]string, len(b.Rows))
				for ri, row := range b.Rows {
					table[ri] = make([]string, len(row))
					for ci, cell := range row {
						table[ri][ci] = cleanText(cell)
					}
				}
				out[si].Tables = append(out[si].Tables, table)
			}
			if b.Kind != docx.BlockTable {
				out[si].TextBlocks = append(out[si].TextBlocks, cleanText(strings.Join(b.Segments, "")))
			}
		}
	}
	return out, nil
}

func (d *docxDocument) SetSectionBreakType(section int, breakType string) (bool, error) {
	if err := d.checkSection(section); err != nil {
		return false, err
	}
	if !IsKnownBreakType(breakType) {
		return false, fmt.Errorf("unknown section break type %q", breakType)
	}

	props := d.body.Sections()[section].Properties
	if props == nil {
		return false, fmt.Errorf("section %d has no section properties", section)
	}

	data, err := d.parser.ReadFile(docx.DocumentPart)
	if err != nil {
		return false, err
	}
	edit, changed := docx.SectionTypeEdit(data, props, breakType)
	if !changed {
		return false, nil
	}
	if err := d.parser.EditPart(docx.DocumentPart, []docx.Edit{edit}); err != nil {
		return false, err
	}

	d.log.WithFields(logrus.Fields{"section": section, "type": breakType}).Debug("Changed section break type")
	return true, d.refresh()
}

func (d *docxDocument) DeletePageRange(start, end int) error {
	if err := d.check(); err != nil {
		return err
	}
	n := len(d.layout.pages)
	if start < 1 || end < start || end > n {
		return fmt.Errorf("invalid page range %d-%d (document has %d pages)", start, end, n)
	}

	data, err := d.parser.ReadFile(docx.DocumentPart)
	if err != nil {
		return err
	}

	lo, hi := start-1, end-1
	var edits []docx.Edit
	removed := make(map[int]bool)
	remaining := 0
	for bi, pl := range d.layout.blocks {
		if pl.first >= lo && pl.last <= hi && pl.first >= 0 {
			block := &d.body.Blocks[bi]
			edits = append(edits, docx.RemoveBlockEdit(data, d.body.Prefix, block))
			removed[bi] = true
			if block.Section != nil {
				remaining++
			}
			continue
		}
		remaining++
	}

	// Remove the break that opens the range so the following content moves up
	opener := d.layout.pages[lo].opener
	switch opener.kind {
	case openManualBreak, openPageBreakBefore:
		if !removed[opener.block] {
			edits = append(edits, docx.Edit{Span: opener.span})
		}
	}

	if len(edits) == 0 {
		d.log.WithFields(logrus.Fields{"start": start, "end": end}).Debug("No removable content on pages")
		return nil
	}
	if remaining == 0 {
		edits = append(edits, docx.EmptyParagraphEdit(d.body.Prefix, d.body.Blocks[0].Span.Start))
	}

	if err := d.parser.EditPart(docx.DocumentPart, edits); err != nil {
		return err
	}
	d.log.WithFields(logrus.Fields{"start": start, "end": end, "edits": len(edits)}).Debug("Deleted page range")
	return d.refresh()
}

func (d *docxDocument) sectionParts(section int, includeFooters bool) []string {
	seen := map[string]bool{}
	var parts []string
	add := func(refs map[string]string) {
		for _, kind := range []string{refDefault, refFirst, refEven} {
			if part := refs[kind]; part != "" && !seen[part] {
				seen[part] = true
				parts = append(parts, part)
			}
		}
	}
	add(d.headers[section])
	if includeFooters {
		add(d.footers[section])
	}
	return parts
}

func (d *docxDocument) ClearHeadersFooters(section int) (bool, error) {
	if err := d.checkSection(section); err != nil {
		return false, err
	}
	changed := false
	for _, part := range d.sectionParts(section, true) {
		ok, err := d.parser.ClearPart(part)
		if err != nil {
			return changed, err
		}
		changed = changed || ok
	}
	if changed {
		return true, d.refresh()
	}
	return false, nil
}

func (d *docxDocument) RemoveWatermarks(section int) (bool, error) {
	if err := d.checkSection(section); err != nil {
		return false, err
	}
	changed := false
	for _, part := range d.sectionParts(section, false) {
		n, err := d.parser.RemoveWatermarks(part)
		if err != nil {
			return changed, err
		}
		changed = changed || n > 0
	}
	if changed {
		return true, d.refresh()
	}
	return false, nil
}

func (d *docxDocument) Unprotect() (bool, error) {
	if err := d.check(); err != nil {
		return false, err
	}
	changed, err := d.parser.Unprotect()
	if err != nil || !changed {
		return false, err
	}
	return true, d.refresh()
}

func (d *docxDocument) Save(ctx context.Context, path string) error {
	if err := d.check(); err != nil {
		return apperrors.NewSaveError(path, err)
	}
	if err := ctx.Err(); err != nil {
		return apperrors.NewSaveError(path, err)
	}
	if err := d.parser.SaveFile(path); err != nil {
		return apperrors.NewSaveError(path, err)
	}
	return nil
}

func (d *docxDocument) Close() error {
	d.closed = true
	d.parser = nil
	d.body = nil
	d.layout = nil
	return nil
}

// cleanText turns paragraph and line marks into newlines and trims the result
func cleanText(s string) string {
	s = strings.NewReplacer("\r", "\n", "\v", "\n", "\f", "\n").Replace(s)
	return strings.TrimSpace(s)
}
