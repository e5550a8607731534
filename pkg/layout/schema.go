// Package layout defines the receipt Layout DSL: an Order-independent JSON
// template describing the sequence of elements on a receipt
package layout

import "encoding/json"

// Element types
const (
	TypeText         = "text"
	TypeBarcode      = "barcode"
	TypeQRCode       = "qrcode"
	TypeAlign        = "align"
	TypeFeedLine     = "feedLine"
	TypeDivider      = "divider"
	TypeDynamic      = "dynamic"
	TypeItemsSection = "items_section"
	TypeCutPaper     = "cutPaper"
)

// Document is the root of a layout file
type Document struct {
	Version     string    `json:"version,omitempty"`
	Name        string    `json:"name,omitempty"`
	Description string    `json:"description,omitempty"`
	PaperWidth  string    `json:"paper_width,omitempty"` // "58mm", "80mm", "112mm"
	Elements    []Element `json:"elements"`
}

// Style is the optional text style of text and dynamic elements
type Style struct {
	Bold *bool  `json:"bold,omitempty"`
	Size string `json:"size,omitempty"` // SMALL, NORMAL, LARGE, XLARGE
}

// Element is one tagged entry of the layout. Only the fields belonging to
// its Type are meaningful.
type Element struct {
	Type string `json:"type"`

	// text
	Content string `json:"content,omitempty"`
	Style   *Style `json:"style,omitempty"`

	// barcode, qrcode
	Data        string `json:"data,omitempty"`
	BarcodeType string `json:"barcodeType,omitempty"`

	// align
	Alignment string `json:"alignment,omitempty"`

	// feedLine
	Lines *int `json:"lines,omitempty"`

	// divider
	Char string `json:"char,omitempty"`

	// dynamic
	Field   string  `json:"field,omitempty"`
	Default *string `json:"default,omitempty"`
	Prefix  string  `json:"prefix,omitempty"`
	Suffix  string  `json:"suffix,omitempty"`

	// items_section
	ShowPromotions bool `json:"showPromotions,omitempty"`
}

// MarshalJSON always writes content for text elements, even when empty
func (e Element) MarshalJSON() ([]byte, error) {
	type plain Element
	if e.Type != TypeText {
		return json.Marshal(plain(e))
	}
	return json.Marshal(struct {
		plain
		Content string `json:"content"`
	}{plain(e), e.Content})
}

// HasCut reports whether the document contains an explicit cutPaper element
func (d *Document) HasCut() bool {
	for _, el := range d.Elements {
		if el.Type == TypeCutPaper {
			return true
		}
	}
	return false
}
