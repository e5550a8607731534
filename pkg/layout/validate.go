package layout

import (
	"fmt"

	"github.com/thereceipt/receipt-interpreter/pkg/printcmd"
)

// StructuralError locates a malformed element. It is fatal to the
// interpretation call that encounters it.
type StructuralError struct {
	Index  int    // element position, -1 for document-level faults
	Type   string // element tag as written
	Reason string
}

func (e *StructuralError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("layout: %s", e.Reason)
	}
	if e.Type == "" {
		return fmt.Sprintf("element[%d]: %s", e.Index, e.Reason)
	}
	return fmt.Sprintf("element[%d] (%s): %s", e.Index, e.Type, e.Reason)
}

// Validate checks the document structure and returns the first fault
func Validate(d *Document) error {
	if d == nil {
		return &StructuralError{Index: -1, Reason: "document is nil"}
	}

	if d.Version != "" && d.Version != "1.0" {
		return &StructuralError{Index: -1, Reason: fmt.Sprintf("unsupported version: %s (expected 1.0)", d.Version)}
	}

	if d.PaperWidth != "" && !ValidPaperWidth(d.PaperWidth) {
		return &StructuralError{Index: -1, Reason: fmt.Sprintf("invalid paper_width: %s (must be 58mm, 80mm, or 112mm)", d.PaperWidth)}
	}

	for i := range d.Elements {
		if err := ValidateElement(i, &d.Elements[i]); err != nil {
			return err
		}
	}

	return nil
}

// ValidateElement checks a single element at position index
func ValidateElement(index int, el *Element) error {
	fail := func(format string, args ...interface{}) error {
		return &StructuralError{Index: index, Type: el.Type, Reason: fmt.Sprintf(format, args...)}
	}

	switch el.Type {
	case "":
		return fail("element type is required")
	case TypeText:
		return validateStyle(el, fail)
	case TypeBarcode:
		if el.Data == "" {
			return fail("missing required field data")
		}
		if el.BarcodeType != "" {
			if _, ok := printcmd.ParseBarcodeType(el.BarcodeType); !ok {
				return fail("invalid barcodeType '%s'", el.BarcodeType)
			}
		}
	case TypeQRCode:
		if el.Data == "" {
			return fail("missing required field data")
		}
	case TypeAlign:
		if el.Alignment == "" {
			return fail("missing required field alignment")
		}
		if _, ok := printcmd.ParseAlignment(el.Alignment); !ok {
			return fail("invalid alignment '%s' (must be LEFT, CENTER, or RIGHT)", el.Alignment)
		}
	case TypeFeedLine:
		if el.Lines == nil {
			return fail("missing required field lines")
		}
		if *el.Lines < 1 {
			return fail("lines must be at least 1, got %d", *el.Lines)
		}
	case TypeDivider:
		if len([]rune(el.Char)) > 1 {
			return fail("divider char must be a single character, got '%s'", el.Char)
		}
	case TypeDynamic:
		if el.Field == "" {
			return fail("missing required field field")
		}
		return validateStyle(el, fail)
	case TypeItemsSection, TypeCutPaper:
		return nil
	default:
		return fail("unknown element type")
	}

	return nil
}

func validateStyle(el *Element, fail func(string, ...interface{}) error) error {
	if el.Style == nil || el.Style.Size == "" {
		return nil
	}
	if _, ok := printcmd.ParseSize(el.Style.Size); !ok {
		return fail("invalid style size '%s' (must be SMALL, NORMAL, LARGE, or XLARGE)", el.Style.Size)
	}
	return nil
}
