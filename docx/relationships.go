package docx

import "encoding/xml"

// Relationships represents the relationships file (word/_rels/document.xml.rels)
type Relationships struct {
	XMLName       xml.Name       `xml:"Relationships"`
	Relationships []Relationship `xml:"Relationship"`
}

// Relationship defines a single relationship
type Relationship struct {
	ID         string `xml:"Id,attr"`
	Type       string `xml:"Type,attr"`
	Target     string `xml:"Target,attr"`
	TargetMode string `xml:"TargetMode,attr"` // External for external links
}

// Relationship type constants
const (
	RelTypeHeader = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/header"
	RelTypeFooter = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/footer"
)

// GetRelationship returns a relationship by ID
func (r *Relationships) GetRelationship(id string) *Relationship {
	for i := range r.Relationships {
		if r.Relationships[i].ID == id {
			return &r.Relationships[i]
		}
	}
	return nil
}

// GetTarget returns the target path for a relationship ID
func (r *Relationships) GetTarget(id string) string {
	rel := r.GetRelationship(id)
	if rel == nil {
		return ""
	}
	return rel.Target
}

// IsHeaderOrFooter checks if a relationship ID points to a header or footer part
func (r *Relationships) IsHeaderOrFooter(id string) bool {
	rel := r.GetRelationship(id)
	if rel == nil {
		return false
	}
	return rel.Type == RelTypeHeader || rel.Type == RelTypeFooter
}

// IsExternal checks if a relationship points to an external resource
func (r *Relationships) IsExternal(id string) bool {
	rel := r.GetRelationship(id)
	if rel == nil {
		return false
	}
	return rel.TargetMode == "External"
}
