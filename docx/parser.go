package docx

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
)

// Well-known part names
const (
	DocumentPart      = "word/document.xml"
	SettingsPart      = "word/settings.xml"
	DocumentRelsPart  = "word/_rels/document.xml.rels"
	wordPartDirectory = "word"
)

// Parser handles DOCX file parsing and in-place part editing.
// Parts are read from the original archive until replaced with WriteFile.
type Parser struct {
	data      []byte
	zipReader *zip.Reader
	files     map[string]*zip.File
	order     []string
	modified  map[string][]byte

	// Cached parsed content, invalidated when the backing part changes
	body          *Body
	relationships *Relationships
	settings      *Settings
}

// NewParser creates a parser from byte data
func NewParser(data []byte) (*Parser, error) {
	reader := bytes.NewReader(data)
	zipReader, err := zip.NewReader(reader, int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("opening ZIP archive: %w", err)
	}

	p := &Parser{
		data:      data,
		zipReader: zipReader,
		files:     make(map[string]*zip.File),
		modified:  make(map[string][]byte),
	}

	// Index files by name, keeping archive order for saving
	for _, f := range zipReader.File {
		if _, dup := p.files[f.Name]; !dup {
			p.order = append(p.order, f.Name)
		}
		p.files[f.Name] = f
	}

	return p, nil
}

// NewParserFromFile creates a parser from a file path
func NewParserFromFile(path string) (*Parser, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return NewParser(data)
}

// Parse verifies the DOCX structure
func (p *Parser) Parse() error {
	if !p.HasFile(DocumentPart) {
		return fmt.Errorf("not a valid DOCX file: missing %s", DocumentPart)
	}
	return nil
}

// GetBody returns the scanned body of word/document.xml
func (p *Parser) GetBody() (*Body, error) {
	if p.body != nil {
		return p.body, nil
	}

	data, err := p.ReadFile(DocumentPart)
	if err != nil {
		return nil, err
	}

	body, err := parseBody(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", DocumentPart, err)
	}

	p.body = body
	return body, nil
}

// GetRelationships returns the parsed document relationships
func (p *Parser) GetRelationships() (*Relationships, error) {
	if p.relationships != nil {
		return p.relationships, nil
	}

	rels := &Relationships{}
	if err := p.readXML(DocumentRelsPart, rels); err != nil {
		// Relationships file is optional
		return &Relationships{}, nil
	}

	p.relationships = rels
	return rels, nil
}

// GetSettings returns the parsed document settings
func (p *Parser) GetSettings() (*Settings, error) {
	if p.settings != nil {
		return p.settings, nil
	}

	settings := &Settings{}
	if err := p.readXML(SettingsPart, settings); err != nil {
		// Settings file is optional
		return &Settings{}, nil
	}

	p.settings = settings
	return settings, nil
}

// ResolvePart maps a relationship ID of word/document.xml to an archive part name.
// Returns "" when the ID is unknown or points outside the package.
func (p *Parser) ResolvePart(id string) string {
	rels, err := p.GetRelationships()
	if err != nil {
		return ""
	}
	if rels.IsExternal(id) {
		return ""
	}
	target := rels.GetTarget(id)
	if target == "" {
		return ""
	}
	if strings.HasPrefix(target, "/") {
		return strings.TrimPrefix(target, "/")
	}
	return path.Clean(path.Join(wordPartDirectory, target))
}

// ResolveHeaderFooterPart is ResolvePart limited to header and footer
// relationships
func (p *Parser) ResolveHeaderFooterPart(id string) string {
	rels, err := p.GetRelationships()
	if err != nil || !rels.IsHeaderOrFooter(id) {
		return ""
	}
	return p.ResolvePart(id)
}

// readXML reads and parses an XML file from the ZIP archive
func (p *Parser) readXML(filename string, v interface{}) error {
	data, err := p.ReadFile(filename)
	if err != nil {
		return err
	}

	// Use custom decoder that handles Word XML namespaces
	if err := unmarshalWordXML(data, v); err != nil {
		return fmt.Errorf("parsing %s: %w", filename, err)
	}

	return nil
}

// HasFile reports whether the archive holds the named part
func (p *Parser) HasFile(filename string) bool {
	if _, ok := p.modified[filename]; ok {
		return true
	}
	_, ok := p.files[filename]
	return ok
}

// ReadFile reads a raw file from the ZIP archive, honoring pending edits
func (p *Parser) ReadFile(filename string) ([]byte, error) {
	if data, ok := p.modified[filename]; ok {
		return data, nil
	}

	f, ok := p.files[filename]
	if !ok {
		return nil, fmt.Errorf("file not found: %s", filename)
	}

	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", filename, err)
	}
	defer rc.Close()

	return io.ReadAll(rc)
}

// WriteFile replaces the content of a part. The part is written on Save.
func (p *Parser) WriteFile(filename string, data []byte) {
	if !p.HasFile(filename) {
		p.order = append(p.order, filename)
	}
	p.modified[filename] = data

	switch filename {
	case DocumentPart:
		p.body = nil
	case SettingsPart:
		p.settings = nil
	case DocumentRelsPart:
		p.relationships = nil
	}
}

// Modified reports whether any part has been replaced since the parser was created
func (p *Parser) Modified() bool {
	return len(p.modified) > 0
}

// ListFiles returns all file paths in the archive
func (p *Parser) ListFiles() []string {
	files := make([]string, len(p.order))
	copy(files, p.order)
	return files
}

// unmarshalWordXML handles Word's XML with namespaces
func unmarshalWordXML(data []byte, v interface{}) error {
	// Word XML uses namespaces that need to be handled
	// The main namespace is "http://schemas.openxmlformats.org/wordprocessingml/2006/main"
	// We'll strip namespaces for simpler parsing

	decoder := xml.NewDecoder(bytes.NewReader(data))
	decoder.Strict = false
	decoder.Entity = xml.HTMLEntity

	// Create a custom token reader that strips namespace prefixes
	return decodeWithNamespaceStripping(decoder, v)
}

// decodeWithNamespaceStripping decodes XML while handling namespaces.
// Fragments with unbound prefixes (a lone w:sectPr cut from the body) decode too.
func decodeWithNamespaceStripping(decoder *xml.Decoder, v interface{}) error {
	var tokens []xml.Token
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		// Transform token to strip namespace prefixes from local names
		// CRITICAL: CharData and other byte-based tokens must be copied since
		// xml.Decoder reuses its internal buffer between Token() calls
		switch t := tok.(type) {
		case xml.StartElement:
			t.Name.Local = stripNamespacePrefix(t.Name.Local)
			t.Name.Space = ""
			attrs := t.Attr[:0]
			for _, a := range t.Attr {
				// Namespace declarations become meaningless once prefixes are gone
				if a.Name.Space == "xmlns" || a.Name.Local == "xmlns" {
					continue
				}
				a.Name.Local = stripNamespacePrefix(a.Name.Local)
				a.Name.Space = ""
				attrs = append(attrs, a)
			}
			t.Attr = attrs
			tok = t
		case xml.EndElement:
			t.Name.Local = stripNamespacePrefix(t.Name.Local)
			t.Name.Space = ""
			tok = t
		case xml.CharData:
			tok = xml.CharData(append([]byte(nil), t...))
		case xml.Comment:
			tok = xml.Comment(append([]byte(nil), t...))
		case xml.ProcInst:
			// The encoder only accepts an xml declaration as the first token
			continue
		case xml.Directive:
			tok = xml.Directive(append([]byte(nil), t...))
		}
		tokens = append(tokens, tok)
	}

	// Re-encode tokens to XML and decode into struct
	var buf bytes.Buffer
	encoder := xml.NewEncoder(&buf)
	for _, tok := range tokens {
		if err := encoder.EncodeToken(tok); err != nil {
			return err
		}
	}
	if err := encoder.Flush(); err != nil {
		return err
	}

	return xml.Unmarshal(buf.Bytes(), v)
}

// stripNamespacePrefix removes namespace prefix from element names
func stripNamespacePrefix(name string) string {
	if idx := strings.Index(name, ":"); idx != -1 {
		return name[idx+1:]
	}
	return name
}
