package interpreter

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/thereceipt/receipt-interpreter/pkg/order"
)

// Presence tells why a lookup did or did not produce a value
type Presence int

const (
	// Present means the field exists on the order
	Present Presence = iota
	// Absent means the field is known but the order, or the nested object
	// or optional value holding it, is missing
	Absent
	// Unknown means no field is registered under the name
	Unknown
)

func (p Presence) String() string {
	switch p {
	case Present:
		return "present"
	case Absent:
		return "absent"
	default:
		return "unknown"
	}
}

// binding is the per-call lookup context
type binding struct {
	order *order.Order
	loc   *time.Location
}

type accessor func(b *binding) (string, bool)

// fields maps normalized names to typed accessors. Built once in init and
// read-only afterwards, so concurrent interpretations can share it.
var fields = map[string]accessor{}

// normalizeField folds case and drops the separators allowed in names, so
// STORE_NAME, storeName, store-name and store.name are the same field
func normalizeField(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range strings.TrimSpace(name) {
		switch r {
		case '_', '-', '.', ' ':
			continue
		}
		b.WriteRune(r)
	}
	return strings.ToLower(b.String())
}

// Lookup resolves a field name against an order. A nil order resolves
// every known field as Absent.
func Lookup(o *order.Order, name string) (string, Presence) {
	return lookup(&binding{order: o, loc: time.UTC}, name)
}

func lookup(b *binding, name string) (string, Presence) {
	get, ok := fields[normalizeField(name)]
	if !ok {
		return "", Unknown
	}
	if b.order == nil {
		return "", Absent
	}
	v, ok := get(b)
	if !ok {
		return "", Absent
	}
	return v, Present
}

// FieldNames lists the registered normalized field names
func FieldNames() []string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	return names
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func optional(s string) (string, bool) {
	return s, s != ""
}

func register(get accessor, names ...string) {
	for _, n := range names {
		fields[normalizeField(n)] = get
	}
}

func registerCustomer(get func(c *order.CustomerInfo) (string, bool), names ...string) {
	acc := func(b *binding) (string, bool) {
		if b.order.CustomerInfo == nil {
			return "", false
		}
		return get(b.order.CustomerInfo)
	}
	for _, n := range names {
		register(acc, "customer_"+n, "customerInfo."+n)
	}
}

func registerTable(get func(t *order.TableInfo) (string, bool), names ...string) {
	acc := func(b *binding) (string, bool) {
		if b.order.TableInfo == nil {
			return "", false
		}
		return get(b.order.TableInfo)
	}
	for _, n := range names {
		register(acc, n, "tableInfo."+n)
	}
}

func init() {
	// Basic fields
	register(func(b *binding) (string, bool) { return b.order.OrderID, true }, "order_id", "order_number")
	register(func(b *binding) (string, bool) { return b.order.StoreNumber, true }, "store_number")
	register(func(b *binding) (string, bool) { return b.order.StoreName, true }, "store_name", "store")
	register(func(b *binding) (string, bool) {
		return strconv.FormatInt(b.order.Timestamp, 10), true
	}, "timestamp")
	register(func(b *binding) (string, bool) {
		return time.Unix(b.order.Timestamp, 0).In(b.loc).Format("2006-01-02"), true
	}, "date")
	register(func(b *binding) (string, bool) {
		return time.Unix(b.order.Timestamp, 0).In(b.loc).Format("15:04"), true
	}, "time")
	register(func(b *binding) (string, bool) {
		return time.Unix(b.order.Timestamp, 0).In(b.loc).Format("2006-01-02 15:04"), true
	}, "date_time")

	// Totals
	register(func(b *binding) (string, bool) { return money(b.order.Subtotal), true }, "subtotal")
	register(func(b *binding) (string, bool) { return money(b.order.TaxRate), true }, "tax_rate")
	register(func(b *binding) (string, bool) { return money(b.order.TaxAmount), true }, "tax_amount", "tax")
	register(func(b *binding) (string, bool) { return money(b.order.TotalAmount), true }, "total_amount", "total")

	// Counts
	register(func(b *binding) (string, bool) { return strconv.Itoa(b.order.ItemCount()), true }, "item_count")
	register(func(b *binding) (string, bool) { return strconv.Itoa(len(b.order.Items)), true }, "line_count")

	// Promotions
	register(func(b *binding) (string, bool) {
		if len(b.order.ItemPromotions) == 0 && len(b.order.OrderPromotions) == 0 {
			return "", false
		}
		return money(b.order.DiscountTotal()), true
	}, "discount_total", "total_discount")
	register(func(b *binding) (string, bool) {
		return strconv.Itoa(len(b.order.ItemPromotions) + len(b.order.OrderPromotions)), true
	}, "promotion_count")

	// Payment
	register(func(b *binding) (string, bool) { return optional(b.order.PaymentMethod) }, "payment_method", "payment")
	register(func(b *binding) (string, bool) {
		if len(b.order.SplitPayments) == 0 {
			return "", false
		}
		return strconv.Itoa(len(b.order.SplitPayments)), true
	}, "split_count")
	register(func(b *binding) (string, bool) {
		if len(b.order.SplitPayments) == 0 {
			return "", false
		}
		return money(b.order.TipTotal()), true
	}, "tip_total")

	// Customer
	registerCustomer(func(c *order.CustomerInfo) (string, bool) { return c.CustomerID, true }, "id", "customerId")
	registerCustomer(func(c *order.CustomerInfo) (string, bool) { return c.Name, true }, "name")
	registerCustomer(func(c *order.CustomerInfo) (string, bool) { return optional(c.MemberStatus) }, "memberStatus")
	registerCustomer(func(c *order.CustomerInfo) (string, bool) {
		if c.LoyaltyPoints == nil {
			return "", false
		}
		return strconv.Itoa(*c.LoyaltyPoints), true
	}, "loyaltyPoints")
	registerCustomer(func(c *order.CustomerInfo) (string, bool) { return optional(c.MemberSince) }, "memberSince")
	register(fields["customername"], "customer")
	register(fields["customermemberstatus"], "member_status")
	register(fields["customerloyaltypoints"], "loyalty_points", "points")
	register(fields["customermembersince"], "member_since")

	// Table
	registerTable(func(t *order.TableInfo) (string, bool) { return t.TableNumber, true }, "table_number", "table")
	registerTable(func(t *order.TableInfo) (string, bool) { return t.ServerName, true }, "server_name", "server")
	registerTable(func(t *order.TableInfo) (string, bool) { return strconv.Itoa(t.GuestCount), true }, "guest_count", "guests")
	registerTable(func(t *order.TableInfo) (string, bool) {
		if t.ServiceRating == nil {
			return "", false
		}
		return strconv.Itoa(*t.ServiceRating), true
	}, "service_rating")
}
