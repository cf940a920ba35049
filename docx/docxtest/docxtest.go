// Package docxtest builds small DOCX packages for tests
package docxtest

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

// Namespace declarations used by generated parts
const namespaces = `xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main" ` +
	`xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships" ` +
	`xmlns:wp="http://schemas.openxmlformats.org/drawingml/2006/wordprocessingDrawing" ` +
	`xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main" ` +
	`xmlns:v="urn:schemas-microsoft-com:vml" ` +
	`xmlns:w14="http://schemas.microsoft.com/office/word/2010/wordml" ` +
	`xmlns:mc="http://schemas.openxmlformats.org/markup-compatibility/2006"`

// Package describes the parts of a generated DOCX
type Package struct {
	// Body is the inner XML of w:body
	Body string
	// Headers and Footers map part file names (header1.xml) to the inner XML of w:hdr / w:ftr
	Headers map[string]string
	Footers map[string]string
	// Settings is the inner XML of w:settings; no settings part is written when empty
	Settings string
}

// Docx creates a minimal valid DOCX whose body holds content
func Docx(content string) []byte {
	return Package{Body: content}.Bytes()
}

// RelID returns the relationship ID generated for a header or footer file
func RelID(file string) string {
	return "rId" + strings.TrimSuffix(file, ".xml")
}

// Bytes assembles the package
func (p Package) Bytes() []byte {
	buf := new(bytes.Buffer)
	w := zip.NewWriter(buf)

	var overrides, rels strings.Builder
	overrides.WriteString(`<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>`)

	for _, file := range sortedKeys(p.Headers) {
		overrides.WriteString(fmt.Sprintf(`<Override PartName="/word/%s" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.header+xml"/>`, file))
		rels.WriteString(fmt.Sprintf(`<Relationship Id="%s" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/header" Target="%s"/>`, RelID(file), file))
	}
	for _, file := range sortedKeys(p.Footers) {
		overrides.WriteString(fmt.Sprintf(`<Override PartName="/word/%s" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.footer+xml"/>`, file))
		rels.WriteString(fmt.Sprintf(`<Relationship Id="%s" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/footer" Target="%s"/>`, RelID(file), file))
	}
	if p.Settings != "" {
		overrides.WriteString(`<Override PartName="/word/settings.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.settings+xml"/>`)
		rels.WriteString(`<Relationship Id="rIdSettings" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/settings" Target="settings.xml"/>`)
	}

	add := func(name, content string) {
		f, _ := w.Create(name)
		_, _ = f.Write([]byte(content))
	}

	add("[Content_Types].xml", `<?xml version="1.0" encoding="UTF-8"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
  <Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>
  <Default Extension="xml" ContentType="application/xml"/>
  `+overrides.String()+`
</Types>`)

	add("_rels/.rels", `<?xml version="1.0" encoding="UTF-8"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
  <Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>
</Relationships>`)

	add("word/document.xml", `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document `+namespaces+` mc:Ignorable="w14">
  <w:body>`+p.Body+`</w:body>
</w:document>`)

	if rels.Len() > 0 {
		add("word/_rels/document.xml.rels", `<?xml version="1.0" encoding="UTF-8"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">`+rels.String()+`</Relationships>`)
	}

	for _, file := range sortedKeys(p.Headers) {
		add("word/"+file, `<?xml version="1.0" encoding="UTF-8"?>
<w:hdr `+namespaces+`>`+p.Headers[file]+`</w:hdr>`)
	}
	for _, file := range sortedKeys(p.Footers) {
		add("word/"+file, `<?xml version="1.0" encoding="UTF-8"?>
<w:ftr `+namespaces+`>`+p.Footers[file]+`</w:ftr>`)
	}
	if p.Settings != "" {
		add("word/settings.xml", `<?xml version="1.0" encoding="UTF-8"?>
<w:settings `+namespaces+`>`+p.Settings+`</w:settings>`)
	}

	_ = w.Close()
	return buf.Bytes()
}

// WriteFile stores data under dir and returns the path
func WriteFile(t testing.TB, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
	return path
}

// P returns a paragraph holding text
func P(text string) string {
	if text == "" {
		return `<w:p/>`
	}
	return `<w:p><w:r><w:t xml:space="preserve">` + escape(text) + `</w:t></w:r></w:p>`
}

// PageBreak returns a paragraph holding only a manual page break
func PageBreak() string {
	return `<w:p><w:r><w:br w:type="page"/></w:r></w:p>`
}

// TextThenBreak returns a paragraph with text followed by a manual page break
func TextThenBreak(text string) string {
	return `<w:p><w:r><w:t xml:space="preserve">` + escape(text) + `</w:t><w:br w:type="page"/></w:r></w:p>`
}

// SectPr returns section properties with the given start type; an empty type omits w:type
func SectPr(breakType string, refs ...string) string {
	var sb strings.Builder
	sb.WriteString(`<w:sectPr>`)
	for _, ref := range refs {
		sb.WriteString(ref)
	}
	if breakType != "" {
		sb.WriteString(`<w:type w:val="` + breakType + `"/>`)
	}
	sb.WriteString(`<w:pgSz w:w="12240" w:h="15840"/>`)
	sb.WriteString(`<w:pgMar w:top="1440" w:right="1440" w:bottom="1440" w:left="1440" w:header="720" w:footer="720" w:gutter="0"/>`)
	sb.WriteString(`</w:sectPr>`)
	return sb.String()
}

// SectionBreak returns an empty paragraph ending a section with the given start type
func SectionBreak(breakType string, refs ...string) string {
	return `<w:p><w:pPr>` + SectPr(breakType, refs...) + `</w:pPr></w:p>`
}

// TextWithSectionBreak returns a paragraph with text that ends a section
func TextWithSectionBreak(text, breakType string, refs ...string) string {
	return `<w:p><w:pPr>` + SectPr(breakType, refs...) + `</w:pPr><w:r><w:t xml:space="preserve">` + escape(text) + `</w:t></w:r></w:p>`
}

// HeaderRef returns a default header reference for a header file
func HeaderRef(file string) string {
	return `<w:headerReference w:type="default" r:id="` + RelID(file) + `"/>`
}

// FooterRef returns a default footer reference for a footer file
func FooterRef(file string) string {
	return `<w:footerReference w:type="default" r:id="` + RelID(file) + `"/>`
}

// Image returns a paragraph holding an inline drawing of height cy EMU
func Image(cy int64) string {
	return fmt.Sprintf(`<w:p><w:r><w:drawing><wp:inline><wp:extent cx="914400" cy="%d"/>`+
		`<wp:docPr id="1" name="Picture 1"/><a:graphic/></wp:inline></w:drawing></w:r></w:p>`, cy)
}

// Table returns a table with one row per entry of rows
func Table(rows ...[]string) string {
	var sb strings.Builder
	sb.WriteString(`<w:tbl><w:tblPr/><w:tblGrid/>`)
	for _, row := range rows {
		sb.WriteString(`<w:tr>`)
		for _, cell := range row {
			sb.WriteString(`<w:tc><w:tcPr/>` + P(cell) + `</w:tc>`)
		}
		sb.WriteString(`</w:tr>`)
	}
	sb.WriteString(`</w:tbl>`)
	return sb.String()
}

// Watermark returns a header paragraph holding a VML text watermark
func Watermark(text string) string {
	return `<w:p><w:r><w:pict><v:shape id="PowerPlusWaterMarkObject1" type="#_x0000_t136" ` +
		`style="position:absolute;width:400pt;height:100pt"><v:textpath string="` + escape(text) + `"/>` +
		`</v:shape></w:pict></w:r></w:p>`
}

// Protection returns settings content enforcing read-only protection
func Protection() string {
	return `<w:documentProtection w:edit="readOnly" w:enforcement="1"/><w:defaultTabStop w:val="720"/>`
}

func escape(s string) string {
	var buf bytes.Buffer
	_ = xml.EscapeText(&buf, []byte(s))
	return buf.String()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
