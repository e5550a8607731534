package layout

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/pkg/errors"
)

// Parse parses and validates a layout document from a byte slice. Faults
// inside an element, wrong-typed fields included, come back as a
// *StructuralError carrying the element position.
func Parse(data []byte) (*Document, error) {
	var raw struct {
		Document
		Elements []json.RawMessage `json:"elements"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "failed to parse layout")
	}

	doc := raw.Document
	doc.Elements = make([]Element, 0, len(raw.Elements))
	for i, msg := range raw.Elements {
		el, err := decodeElement(i, msg)
		if err != nil {
			return nil, err
		}
		doc.Elements = append(doc.Elements, el)
	}

	if err := Validate(&doc); err != nil {
		return nil, err
	}

	return &doc, nil
}

func decodeElement(index int, msg json.RawMessage) (Element, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(msg, &fields); err != nil {
		return Element{}, &StructuralError{Index: index, Reason: "element must be a JSON object"}
	}

	var tag string
	if t, ok := fields["type"]; ok {
		if err := json.Unmarshal(t, &tag); err != nil {
			return Element{}, &StructuralError{Index: index, Reason: "element type must be a string"}
		}
	}

	var el Element
	if err := json.Unmarshal(msg, &el); err != nil {
		reason := err.Error()
		var te *json.UnmarshalTypeError
		if errors.As(err, &te) {
			reason = fmt.Sprintf("field %s must be %s, got %s", te.Field, te.Type, te.Value)
		}
		return Element{}, &StructuralError{Index: index, Type: tag, Reason: reason}
	}

	// an empty content string is a blank line, a missing one is a fault
	if el.Type == TypeText {
		if _, ok := fields["content"]; !ok {
			return Element{}, &StructuralError{Index: index, Type: tag, Reason: "missing required field content"}
		}
	}
	return el, nil
}

// ParseFile parses a layout file from disk
func ParseFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read layout file")
	}

	return Parse(data)
}

// ToJSON converts a Document to indented JSON bytes
func (d *Document) ToJSON() ([]byte, error) {
	return json.MarshalIndent(d, "", "  ")
}

// SaveToFile saves a Document to a file
func (d *Document) SaveToFile(path string) error {
	data, err := d.ToJSON()
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
