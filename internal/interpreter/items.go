package interpreter

import (
	"fmt"
	"strings"

	"github.com/thereceipt/receipt-interpreter/pkg/layout"
	"github.com/thereceipt/receipt-interpreter/pkg/order"
	"github.com/thereceipt/receipt-interpreter/pkg/printcmd"
)

// items expands an items_section into one line group per order item
func (s *state) items(el *layout.Element) {
	o := s.binding.order
	if o == nil {
		s.miss("items", Absent)
		return
	}

	for _, it := range o.Items {
		if len(it.Modifiers) > 0 {
			s.emit(printcmd.PrintText(strings.Join(it.Modifiers, ", "), printcmd.DefaultStyle))
		}
		s.emit(printcmd.PrintText(ItemLine(it), printcmd.DefaultStyle))

		if el.ShowPromotions {
			for _, p := range o.PromotionsFor(it.SKU) {
				s.emit(printcmd.PrintText(promotionLine(p), printcmd.DefaultStyle))
			}
		}
	}
}

// ItemLine formats an item as "{quantity}x {name}  {totalPrice}"
func ItemLine(it order.Item) string {
	return fmt.Sprintf("%dx %s  %s", it.Quantity, it.Name, money(it.TotalPrice))
}

func promotionLine(p order.ItemPromotion) string {
	return fmt.Sprintf("  %s  -%s", p.PromotionName, money(p.DiscountAmount))
}
