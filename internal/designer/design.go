// Package designer is the editing side of the pipeline: an ordered, mutable
// list of layout elements that compiles into a validated layout document
package designer

import (
	"encoding/json"
	"sync"

	"github.com/pkg/errors"
	"github.com/thereceipt/receipt-interpreter/pkg/layout"
)

// ErrIndex is returned for positions outside the element list
var ErrIndex = errors.New("index out of range")

// Design holds the elements of a receipt under construction
type Design struct {
	mu         sync.RWMutex
	name       string
	paperWidth string
	elements   []layout.Element
}

// New creates an empty design
func New(name string) *Design {
	return &Design{name: name}
}

// FromDocument opens an existing layout for editing
func FromDocument(doc *layout.Document) *Design {
	d := &Design{
		name:       doc.Name,
		paperWidth: doc.PaperWidth,
		elements:   make([]layout.Element, len(doc.Elements)),
	}
	copy(d.elements, doc.Elements)
	return d
}

// SetPaperWidth sets the paper width recorded in the compiled document
func (d *Design) SetPaperWidth(w string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.paperWidth = w
}

// Len returns the number of elements
func (d *Design) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.elements)
}

// At returns the element at position i
func (d *Design) At(i int) (layout.Element, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if i < 0 || i >= len(d.elements) {
		return layout.Element{}, errors.Wrapf(ErrIndex, "at %d", i)
	}
	return d.elements[i], nil
}

// Elements returns a copy of the element list
func (d *Design) Elements() []layout.Element {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]layout.Element, len(d.elements))
	copy(out, d.elements)
	return out
}

// Add appends elements and returns the new length
func (d *Design) Add(els ...layout.Element) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.elements = append(d.elements, els...)
	return len(d.elements)
}

// Insert places el at position i, shifting later elements down. i may equal
// Len to append.
func (d *Design) Insert(i int, el layout.Element) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i < 0 || i > len(d.elements) {
		return errors.Wrapf(ErrIndex, "insert at %d", i)
	}
	d.elements = append(d.elements, layout.Element{})
	copy(d.elements[i+1:], d.elements[i:])
	d.elements[i] = el
	return nil
}

// Move relocates the element at from so that it ends up at position to
func (d *Design) Move(from, to int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := len(d.elements)
	if from < 0 || from >= n || to < 0 || to >= n {
		return errors.Wrapf(ErrIndex, "move %d to %d", from, to)
	}
	if from == to {
		return nil
	}

	el := d.elements[from]
	if from < to {
		copy(d.elements[from:to], d.elements[from+1:to+1])
	} else {
		copy(d.elements[to+1:from+1], d.elements[to:from])
	}
	d.elements[to] = el
	return nil
}

// Update edits the element at position i in place
func (d *Design) Update(i int, fn func(el *layout.Element)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i < 0 || i >= len(d.elements) {
		return errors.Wrapf(ErrIndex, "update %d", i)
	}
	fn(&d.elements[i])
	return nil
}

// Remove deletes the element at position i
func (d *Design) Remove(i int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i < 0 || i >= len(d.elements) {
		return errors.Wrapf(ErrIndex, "remove %d", i)
	}
	d.elements = append(d.elements[:i], d.elements[i+1:]...)
	return nil
}

// Compile produces a validated layout document. The document owns its own
// copy of the elements, so later edits do not leak into it.
func (d *Design) Compile() (*layout.Document, error) {
	d.mu.RLock()
	doc := &layout.Document{
		Version:    "1.0",
		Name:       d.name,
		PaperWidth: d.paperWidth,
		Elements:   make([]layout.Element, len(d.elements)),
	}
	copy(doc.Elements, d.elements)
	d.mu.RUnlock()

	if err := layout.Validate(doc); err != nil {
		return nil, errors.Wrap(err, "compile")
	}
	return doc, nil
}

// CompileJSON compiles the design into indented DSL JSON
func (d *Design) CompileJSON() ([]byte, error) {
	doc, err := d.Compile()
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(doc, "", "  ")
}
