package designer

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/thereceipt/receipt-interpreter/pkg/layout"
)

// starters are the tokens that open a new element
var starters = map[string]string{
	"text":    layout.TypeText,
	"feed":    layout.TypeFeedLine,
	"align":   layout.TypeAlign,
	"barcode": layout.TypeBarcode,
	"qr":      layout.TypeQRCode,
	"qrcode":  layout.TypeQRCode,
	"field":   layout.TypeDynamic,
	"divider": layout.TypeDivider,
	"items":   layout.TypeItemsSection,
	"cut":     layout.TypeCutPaper,
}

// ParseCompose builds a design from command-line tokens. Each element starts
// with a type token (text:"Hello", feed:2, align:center, barcode:123,
// qr:url, field:total, divider, items, cut) and may be followed by
// properties for that element (size:LARGE, bold, type:CODE39, prefix:..,
// suffix:.., default:.., char:=, promotions). paper:58mm sets the paper
// width anywhere in the list.
func ParseCompose(args []string) (*Design, error) {
	if len(args) == 0 {
		return nil, errors.New("no compose arguments provided")
	}

	d := New("composed")
	var current *layout.Element

	flush := func() {
		if current != nil {
			d.Add(*current)
			current = nil
		}
	}

	for _, arg := range args {
		key, value, hasValue := strings.Cut(arg, ":")
		value = unquote(value)

		if key == "paper" {
			d.SetPaperWidth(value)
			continue
		}

		if typ, ok := starters[key]; ok {
			flush()
			el, err := startElement(typ, value, hasValue)
			if err != nil {
				return nil, errors.Wrapf(err, "failed to parse command '%s'", arg)
			}
			current = &el
			continue
		}

		if current == nil {
			return nil, errors.Errorf("unexpected argument '%s' (expected command start)", arg)
		}
		if err := setProperty(current, key, value, hasValue); err != nil {
			return nil, errors.Wrapf(err, "failed to parse property '%s'", arg)
		}
	}
	flush()

	return d, nil
}

func startElement(typ, value string, hasValue bool) (layout.Element, error) {
	switch typ {
	case layout.TypeText:
		return Text(value), nil
	case layout.TypeFeedLine:
		if !hasValue {
			return Feed(1), nil
		}
		lines, err := strconv.Atoi(value)
		if err != nil {
			return layout.Element{}, errors.Errorf("invalid feed lines value: %s", value)
		}
		return Feed(lines), nil
	case layout.TypeAlign:
		return Align(strings.ToUpper(value)), nil
	case layout.TypeBarcode:
		return Barcode(value, ""), nil
	case layout.TypeQRCode:
		return QRCode(value), nil
	case layout.TypeDynamic:
		return Field(value), nil
	case layout.TypeDivider:
		return Divider(value), nil
	case layout.TypeItemsSection:
		return Items(false), nil
	default:
		return Cut(), nil
	}
}

func setProperty(el *layout.Element, key, value string, hasValue bool) error {
	switch key {
	case "size":
		ensureStyle(el).Size = strings.ToUpper(value)
	case "bold":
		bold := true
		if hasValue {
			b, err := strconv.ParseBool(value)
			if err != nil {
				return errors.Errorf("invalid bold value: %s", value)
			}
			bold = b
		}
		ensureStyle(el).Bold = &bold
	case "type":
		el.BarcodeType = strings.ToUpper(value)
	case "prefix":
		el.Prefix = value
	case "suffix":
		el.Suffix = value
	case "default":
		el.Default = &value
	case "char":
		el.Char = value
	case "promotions":
		el.ShowPromotions = !hasValue || value == "true"
	default:
		return errors.Errorf("unknown property: %s", key)
	}
	return nil
}

func ensureStyle(el *layout.Element) *layout.Style {
	if el.Style == nil {
		el.Style = &layout.Style{}
	}
	return el.Style
}

func unquote(s string) string {
	return strings.Trim(s, `"'`)
}
