// Package order defines the per-transaction data supplied to the interpreter
package order

import (
	"github.com/shopspring/decimal"
)

// Order is the runtime data a layout is bound against.
// A nil *Order means the order is absent (practice round).
type Order struct {
	OrderID     string `json:"orderId"`
	StoreNumber string `json:"storeNumber"`
	StoreName   string `json:"storeName"`
	Timestamp   int64  `json:"timestamp"`

	Items []Item `json:"items"`

	// Totals are pre-calculated by the caller
	Subtotal    decimal.Decimal `json:"subtotal"`
	TaxRate     decimal.Decimal `json:"taxRate"`
	TaxAmount   decimal.Decimal `json:"taxAmount"`
	TotalAmount decimal.Decimal `json:"totalAmount"`

	ItemPromotions  []ItemPromotion  `json:"itemPromotions,omitempty"`
	OrderPromotions []OrderPromotion `json:"orderPromotions,omitempty"`

	CustomerInfo  *CustomerInfo `json:"customerInfo,omitempty"`
	PaymentMethod string        `json:"paymentMethod,omitempty"`

	SplitPayments []SplitPayment `json:"splitPayments,omitempty"`
	TableInfo     *TableInfo     `json:"tableInfo,omitempty"`
}

// Item is a single order line
type Item struct {
	Name       string          `json:"name"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unitPrice"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
	SKU        string          `json:"sku,omitempty"`
	Category   string          `json:"category,omitempty"`
	Modifiers  []string        `json:"modifiers,omitempty"`
}

// ItemPromotion is a discount attached to one item by SKU
type ItemPromotion struct {
	ItemSKU        string          `json:"itemSku"`
	PromotionName  string          `json:"promotionName"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
}

// Promotion types
const (
	PromotionPercentage = "PERCENTAGE"
	PromotionFixed      = "FIXED"
)

// OrderPromotion is a discount applied to the whole order
type OrderPromotion struct {
	PromotionName  string          `json:"promotionName"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
	PromotionType  string          `json:"promotionType"`
}

// CustomerInfo carries loyalty data
type CustomerInfo struct {
	CustomerID    string `json:"customerId"`
	Name          string `json:"name"`
	MemberStatus  string `json:"memberStatus,omitempty"`
	LoyaltyPoints *int   `json:"loyaltyPoints,omitempty"`
	MemberSince   string `json:"memberSince,omitempty"`
}

// SplitPayment is one payer's share of a split check
type SplitPayment struct {
	PayerName string           `json:"payerName"`
	Amount    decimal.Decimal  `json:"amount"`
	Method    string           `json:"method"`
	Tip       *decimal.Decimal `json:"tip,omitempty"`
	Items     []string         `json:"items,omitempty"`
}

// TableInfo describes dine-in service
type TableInfo struct {
	TableNumber   string `json:"tableNumber"`
	ServerName    string `json:"serverName"`
	GuestCount    int    `json:"guestCount"`
	ServiceRating *int   `json:"serviceRating,omitempty"`
}

// ItemCount returns the sum of item quantities
func (o *Order) ItemCount() int {
	n := 0
	for _, it := range o.Items {
		n += it.Quantity
	}
	return n
}

// DiscountTotal sums item and order promotion discounts
func (o *Order) DiscountTotal() decimal.Decimal {
	total := decimal.Zero
	for _, p := range o.ItemPromotions {
		total = total.Add(p.DiscountAmount)
	}
	for _, p := range o.OrderPromotions {
		total = total.Add(p.DiscountAmount)
	}
	return total
}

// TipTotal sums the tips of all split payments
func (o *Order) TipTotal() decimal.Decimal {
	total := decimal.Zero
	for _, sp := range o.SplitPayments {
		if sp.Tip != nil {
			total = total.Add(*sp.Tip)
		}
	}
	return total
}

// PromotionsFor returns the item promotions that target the given SKU
func (o *Order) PromotionsFor(sku string) []ItemPromotion {
	if sku == "" {
		return nil
	}
	var out []ItemPromotion
	for _, p := range o.ItemPromotions {
		if p.ItemSKU == sku {
			out = append(out, p)
		}
	}
	return out
}
