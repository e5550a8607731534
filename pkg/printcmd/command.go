// Package printcmd defines the hardware-independent printer commands produced
// by the interpreter and the Sink capability that consumes them
package printcmd

import (
	"fmt"
	"strings"
)

// Type identifies a printer command variant
type Type string

// Command variants
const (
	TypePrintText    Type = "PrintText"
	TypePrintBarcode Type = "PrintBarcode"
	TypePrintQRCode  Type = "PrintQRCode"
	TypeSetAlignment Type = "SetAlignment"
	TypeFeedLines    Type = "FeedLines"
	TypeCutPaper     Type = "CutPaper"
)

// Alignment is the horizontal justification of subsequent text
type Alignment string

const (
	AlignLeft   Alignment = "LEFT"
	AlignCenter Alignment = "CENTER"
	AlignRight  Alignment = "RIGHT"
)

// ParseAlignment accepts LEFT, CENTER or RIGHT in any case
func ParseAlignment(s string) (Alignment, bool) {
	switch a := Alignment(strings.ToUpper(strings.TrimSpace(s))); a {
	case AlignLeft, AlignCenter, AlignRight:
		return a, true
	}
	return "", false
}

// Size is the text magnification
type Size string

const (
	SizeSmall  Size = "SMALL"
	SizeNormal Size = "NORMAL"
	SizeLarge  Size = "LARGE"
	SizeXLarge Size = "XLARGE"
)

// ParseSize accepts the four sizes in any case
func ParseSize(s string) (Size, bool) {
	switch sz := Size(strings.ToUpper(strings.TrimSpace(s))); sz {
	case SizeSmall, SizeNormal, SizeLarge, SizeXLarge:
		return sz, true
	}
	return "", false
}

// BarcodeType is the symbology of a PrintBarcode command
type BarcodeType string

const (
	BarcodeCODE39  BarcodeType = "CODE39"
	BarcodeCODE128 BarcodeType = "CODE128"
	BarcodeEAN8    BarcodeType = "EAN8"
	BarcodeEAN13   BarcodeType = "EAN13"
	BarcodeQR      BarcodeType = "QR"
)

// ParseBarcodeType accepts the supported symbologies in any case
func ParseBarcodeType(s string) (BarcodeType, bool) {
	switch bt := BarcodeType(strings.ToUpper(strings.TrimSpace(s))); bt {
	case BarcodeCODE39, BarcodeCODE128, BarcodeEAN8, BarcodeEAN13, BarcodeQR:
		return bt, true
	}
	return "", false
}

// Style is the resolved text style of a PrintText command
type Style struct {
	Bold bool `json:"bold"`
	Size Size `json:"size"`
}

// DefaultStyle is the style used for unset style fields
var DefaultStyle = Style{Bold: false, Size: SizeNormal}

// Command is one primitive print operation. Only the fields of its
// variant are meaningful; commands are values and never mutated.
type Command struct {
	Type Type `json:"type"`

	// PrintText
	Content string `json:"content,omitempty"`
	Style   *Style `json:"style,omitempty"`

	// PrintBarcode / PrintQRCode
	Data        string      `json:"data,omitempty"`
	BarcodeType BarcodeType `json:"barcodeType,omitempty"`

	// SetAlignment
	Alignment Alignment `json:"alignment,omitempty"`

	// FeedLines
	Count int `json:"count,omitempty"`
}

// PrintText builds a PrintText command
func PrintText(content string, style Style) Command {
	return Command{Type: TypePrintText, Content: content, Style: &style}
}

// PrintBarcode builds a PrintBarcode command
func PrintBarcode(data string, t BarcodeType) Command {
	return Command{Type: TypePrintBarcode, Data: data, BarcodeType: t}
}

// PrintQRCode builds a PrintQRCode command
func PrintQRCode(data string) Command {
	return Command{Type: TypePrintQRCode, Data: data}
}

// SetAlignment builds a SetAlignment command
func SetAlignment(a Alignment) Command {
	return Command{Type: TypeSetAlignment, Alignment: a}
}

// FeedLines builds a FeedLines command
func FeedLines(count int) Command {
	return Command{Type: TypeFeedLines, Count: count}
}

// CutPaper builds a CutPaper command
func CutPaper() Command {
	return Command{Type: TypeCutPaper}
}

// TextStyle returns the command's style, or DefaultStyle when unset
func (c Command) TextStyle() Style {
	if c.Style == nil {
		return DefaultStyle
	}
	return *c.Style
}

// String renders a compact human-readable form, used in logs and tests
func (c Command) String() string {
	switch c.Type {
	case TypePrintText:
		s := c.TextStyle()
		return fmt.Sprintf("PrintText(%q, bold=%t, size=%s)", c.Content, s.Bold, s.Size)
	case TypePrintBarcode:
		return fmt.Sprintf("PrintBarcode(%q, %s)", c.Data, c.BarcodeType)
	case TypePrintQRCode:
		return fmt.Sprintf("PrintQRCode(%q)", c.Data)
	case TypeSetAlignment:
		return fmt.Sprintf("SetAlignment(%s)", c.Alignment)
	case TypeFeedLines:
		return fmt.Sprintf("FeedLines(%d)", c.Count)
	case TypeCutPaper:
		return "CutPaper"
	default:
		return fmt.Sprintf("Unknown(%s)", c.Type)
	}
}
