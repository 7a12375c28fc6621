// Package validate checks canonical orders field by field, collecting every
// violation instead of stopping at the first, so callers can render a
// complete error report for a row.
package validate

import (
	"fmt"
	"regexp"
	"strings"

	"mirakl-orchestrator/internal/entities"

	"github.com/shopspring/decimal"
)

var (
	emailRe   = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	countryRe = regexp.MustCompile(`^[A-Z]{2}$`)
)

// totalsTolerance absorbs rounding differences between the parsed goods
// total and the derived line-total sum.
var totalsTolerance = decimal.NewFromFloat(0.01)

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) String() string {
	return e.Field + ": " + e.Message
}

// Result accumulates violations for one order. Warnings do not make the
// order invalid; they flag suspicious but tolerated input such as a goods
// total that disagrees with the item lines.
type Result struct {
	Errors   []FieldError `json:"errors,omitempty"`
	Warnings []FieldError `json:"warnings,omitempty"`
}

func (r Result) OK() bool { return len(r.Errors) == 0 }

func (r *Result) fail(field, format string, args ...any) {
	r.Errors = append(r.Errors, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (r *Result) warn(field, format string, args ...any) {
	r.Warnings = append(r.Warnings, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// Order validates a canonical order. Pure function, no side effects.
func Order(o entities.Order) Result {
	var res Result

	if strings.TrimSpace(o.OrderID) == "" {
		res.fail("order_id", "is required")
	}
	if o.CreatedAt.IsZero() {
		res.fail("created_at", "is required")
	}
	if !validStatus(o.Status) {
		res.fail("status", "must be one of %s", statusList())
	}

	if len(o.Items) == 0 {
		res.fail("items", "at least one item is required")
	}
	for i, it := range o.Items {
		prefix := fmt.Sprintf("items[%d].", i)
		if strings.TrimSpace(it.SKU) == "" {
			res.fail(prefix+"sku", "is required")
		}
		if strings.TrimSpace(it.Name) == "" {
			res.fail(prefix+"name", "is required")
		}
		if it.Quantity <= 0 {
			res.fail(prefix+"quantity", "must be positive, got %d", it.Quantity)
		}
		if !it.UnitPrice.IsPositive() {
			res.fail(prefix+"unit_price", "must be positive, got %s", it.UnitPrice)
		}
	}

	if strings.TrimSpace(o.Buyer.Name) == "" {
		res.fail("buyer.name", "is required")
	}
	if o.Buyer.Email != "" && !emailRe.MatchString(o.Buyer.Email) {
		res.fail("buyer.email", "invalid email format")
	}

	if strings.TrimSpace(o.Shipping.Name) == "" {
		res.fail("shipping.name", "is required")
	}
	if strings.TrimSpace(o.Shipping.Address1) == "" {
		res.fail("shipping.address1", "is required")
	}
	if strings.TrimSpace(o.Shipping.City) == "" {
		res.fail("shipping.city", "is required")
	}
	if strings.TrimSpace(o.Shipping.Postcode) == "" {
		res.fail("shipping.postcode", "is required")
	}
	if !countryRe.MatchString(o.Shipping.Country) {
		res.fail("shipping.country", "must be a 2-letter ISO 3166-1 code, got %q", o.Shipping.Country)
	}

	if o.Totals.Goods.IsNegative() {
		res.fail("totals.goods", "must not be negative, got %s", o.Totals.Goods)
	}
	if o.Totals.Shipping.IsNegative() {
		res.fail("totals.shipping", "must not be negative, got %s", o.Totals.Shipping)
	}

	// Parsed goods total stays authoritative; a mismatch with the derived
	// line sum is flagged, never overwritten.
	if res.OK() {
		if diff := o.Totals.Goods.Sub(o.LineTotal()).Abs(); diff.GreaterThan(totalsTolerance) {
			res.warn("totals.goods", "parsed total %s differs from line total %s", o.Totals.Goods, o.LineTotal())
		}
	}

	return res
}

func validStatus(s entities.OrderStatus) bool {
	for _, valid := range entities.OrderStatuses {
		if s == valid {
			return true
		}
	}
	return false
}

func statusList() string {
	parts := make([]string, 0, len(entities.OrderStatuses))
	for _, s := range entities.OrderStatuses {
		parts = append(parts, string(s))
	}
	return strings.Join(parts, ", ")
}
