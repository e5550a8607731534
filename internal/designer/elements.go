package designer

import "github.com/thereceipt/receipt-interpreter/pkg/layout"

// Text creates a text element
func Text(content string) layout.Element {
	return layout.Element{Type: layout.TypeText, Content: content}
}

// StyledText creates a text element with an explicit style
func StyledText(content string, bold bool, size string) layout.Element {
	return layout.Element{
		Type:    layout.TypeText,
		Content: content,
		Style:   &layout.Style{Bold: &bold, Size: size},
	}
}

// Barcode creates a barcode element. An empty barcodeType means CODE128.
func Barcode(data, barcodeType string) layout.Element {
	return layout.Element{Type: layout.TypeBarcode, Data: data, BarcodeType: barcodeType}
}

// QRCode creates a QR code element
func QRCode(data string) layout.Element {
	return layout.Element{Type: layout.TypeQRCode, Data: data}
}

// Align creates an alignment change
func Align(alignment string) layout.Element {
	return layout.Element{Type: layout.TypeAlign, Alignment: alignment}
}

// Feed creates a feedLine element
func Feed(lines int) layout.Element {
	return layout.Element{Type: layout.TypeFeedLine, Lines: &lines}
}

// Divider creates a divider drawn with char, or "-" when char is empty
func Divider(char string) layout.Element {
	return layout.Element{Type: layout.TypeDivider, Char: char}
}

// Field creates a dynamic element bound to an order field
func Field(name string) layout.Element {
	return layout.Element{Type: layout.TypeDynamic, Field: name}
}

// Items creates an items_section element
func Items(showPromotions bool) layout.Element {
	return layout.Element{Type: layout.TypeItemsSection, ShowPromotions: showPromotions}
}

// Cut creates a cutPaper element
func Cut() layout.Element {
	return layout.Element{Type: layout.TypeCutPaper}
}
