package order

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/pkg/errors"
)

// Parse decodes an order from JSON. The literal null (or empty input)
// yields a nil order, which the interpreter treats as absent.
func Parse(data []byte) (*Order, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	var o Order
	if err := json.Unmarshal(trimmed, &o); err != nil {
		return nil, errors.Wrap(err, "failed to parse order")
	}
	return &o, nil
}

// ParseFile reads and decodes an order file
func ParseFile(path string) (*Order, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read order file")
	}
	return Parse(data)
}

// Check reports data issues that do not prevent interpretation.
// The interpreter never calls it; callers may surface the warnings.
func (o *Order) Check() []string {
	if o == nil {
		return nil
	}

	var warnings []string
	for i, it := range o.Items {
		if it.Name == "" {
			warnings = append(warnings, fmt.Sprintf("items[%d]: name is empty", i))
		}
		if it.Quantity <= 0 {
			warnings = append(warnings, fmt.Sprintf("items[%d] '%s': quantity must be positive, got %d", i, it.Name, it.Quantity))
		}
		if it.UnitPrice.IsNegative() {
			warnings = append(warnings, fmt.Sprintf("items[%d] '%s': unitPrice is negative", i, it.Name))
		}
		if it.TotalPrice.IsNegative() {
			warnings = append(warnings, fmt.Sprintf("items[%d] '%s': totalPrice is negative", i, it.Name))
		}
	}
	for i, p := range o.OrderPromotions {
		if p.PromotionType != PromotionPercentage && p.PromotionType != PromotionFixed {
			warnings = append(warnings, fmt.Sprintf("orderPromotions[%d]: unknown promotionType '%s'", i, p.PromotionType))
		}
	}
	if o.TableInfo != nil && o.TableInfo.GuestCount < 0 {
		warnings = append(warnings, "tableInfo: guestCount is negative")
	}
	return warnings
}
