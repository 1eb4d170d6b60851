// Package interpret turns free-form model output into a form patch.
package interpret

import "strings"

// FieldKind controls how a raw value is coerced.
type FieldKind int

const (
	FieldText FieldKind = iota
	FieldNumber
	FieldInteger
	FieldDate
	FieldList
	// FieldChoice is text restricted to Choices, matched case-insensitively.
	FieldChoice
)

func (k FieldKind) jsonType() string {
	switch k {
	case FieldNumber, FieldInteger:
		return "number"
	case FieldList:
		return "array of strings"
	case FieldDate:
		return "date YYYY-MM-DD"
	default:
		return "string"
	}
}

// Field describes one form input the model may fill.
type Field struct {
	Name        string
	Kind        FieldKind
	Description string
	// Anchor fields must all be present for a result to count as structured.
	Anchor  bool
	Choices []string
	// Paths are JSONPath expressions tried in order against the decoded
	// object. Defaults to $.<Name>.
	Paths []string
	// Cues are lowercase line prefixes recognised by the plain-text
	// fallback. Defaults to the lowercased name.
	Cues []string
}

func (f Field) paths() []string {
	if len(f.Paths) > 0 {
		return f.Paths
	}
	return []string{"$." + f.Name}
}

func (f Field) cues() []string {
	if len(f.Cues) > 0 {
		return f.Cues
	}
	return []string{strings.ToLower(f.Name)}
}

// Form is the set of fields one assisted action fills, with the instruction
// given to the model.
type Form struct {
	Name        string
	Instruction string
	Fields      []Field
}

// Anchors lists the anchor field names.
func (f Form) Anchors() []string {
	var out []string
	for _, fld := range f.Fields {
		if fld.Anchor {
			out = append(out, fld.Name)
		}
	}
	return out
}

// FieldNames lists every field name in order.
func (f Form) FieldNames() []string {
	out := make([]string, len(f.Fields))
	for i, fld := range f.Fields {
		out[i] = fld.Name
	}
	return out
}
