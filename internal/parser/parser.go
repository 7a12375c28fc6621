// Package parser converts raw marketplace CSV exports into canonical
// orders. Column name differences between marketplaces are configuration,
// not code: a ColumnMapping associates each canonical field with the source
// column header of that marketplace's export.
package parser

import (
	"encoding/csv"
	"strconv"
	"strings"
	"time"

	"mirakl-orchestrator/internal/entities"

	"github.com/shopspring/decimal"
)

// Canonical field names resolvable through a ColumnMapping.
const (
	FieldOrderID       = "order_id"
	FieldCreatedAt     = "created_at"
	FieldStatus        = "status"
	FieldSKU           = "sku"
	FieldItemName      = "item_name"
	FieldQuantity      = "quantity"
	FieldUnitPrice     = "unit_price"
	FieldBuyerName     = "buyer_name"
	FieldBuyerEmail    = "buyer_email"
	FieldBuyerPhone    = "buyer_phone"
	FieldShipName      = "ship_name"
	FieldAddress1      = "address1"
	FieldAddress2      = "address2"
	FieldCity          = "city"
	FieldPostcode      = "postcode"
	FieldCountry       = "country"
	FieldTotalGoods    = "total_goods"
	FieldTotalShipping = "total_shipping"
)

// ColumnMapping maps canonical field names to source column headers.
type ColumnMapping map[string]string

// MiraklMapping matches the column layout of a Mirakl order export.
func MiraklMapping() ColumnMapping {
	return ColumnMapping{
		FieldOrderID:       "Order ID",
		FieldCreatedAt:     "Created",
		FieldStatus:        "Status",
		FieldSKU:           "SKU",
		FieldItemName:      "Product",
		FieldQuantity:      "Quantity",
		FieldUnitPrice:     "Unit price",
		FieldBuyerName:     "Buyer name",
		FieldBuyerEmail:    "Buyer email",
		FieldBuyerPhone:    "Buyer phone",
		FieldShipName:      "Shipping name",
		FieldAddress1:      "Address 1",
		FieldAddress2:      "Address 2",
		FieldCity:          "City",
		FieldPostcode:      "Postcode",
		FieldCountry:       "Country",
		FieldTotalGoods:    "Total",
		FieldTotalShipping: "Shipping cost",
	}
}

// Parse converts raw CSV text into canonical orders, one order per data
// row. Missing columns degrade to empty values so a row with incomplete
// optional data still parses; rows missing identifying data are left to
// fail validation downstream. A header row with zero data rows yields an
// empty slice. A payload with no recognizable header structure returns
// *entities.ParseError.
func Parse(raw string, mapping ColumnMapping) ([]entities.Order, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, &entities.ParseError{Reason: "empty payload"}
	}

	r := csv.NewReader(strings.NewReader(raw))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, &entities.ParseError{Reason: err.Error()}
	}
	if len(records) == 0 {
		return nil, &entities.ParseError{Reason: "no header row"}
	}

	index := headerIndex(records[0])
	if !anyMappedColumn(index, mapping) {
		return nil, &entities.ParseError{Reason: "no recognizable header structure"}
	}

	orders := make([]entities.Order, 0, len(records)-1)
	for _, row := range records[1:] {
		orders = append(orders, rowToOrder(row, index, mapping))
	}
	return orders, nil
}

func headerIndex(header []string) map[string]int {
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(name)] = i
	}
	return index
}

func anyMappedColumn(index map[string]int, mapping ColumnMapping) bool {
	for _, source := range mapping {
		if _, ok := index[source]; ok {
			return true
		}
	}
	return false
}

func rowToOrder(row []string, index map[string]int, mapping ColumnMapping) entities.Order {
	get := func(field string) string {
		source, ok := mapping[field]
		if !ok {
			return ""
		}
		i, ok := index[source]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	return entities.Order{
		OrderID:   get(FieldOrderID),
		CreatedAt: parseTime(get(FieldCreatedAt)),
		Status:    entities.OrderStatus(strings.ToUpper(get(FieldStatus))),
		Items: []entities.OrderItem{{
			SKU:       get(FieldSKU),
			Name:      get(FieldItemName),
			Quantity:  parseInt(get(FieldQuantity)),
			UnitPrice: parseDecimal(get(FieldUnitPrice)),
		}},
		Buyer: entities.Buyer{
			Name:  get(FieldBuyerName),
			Email: get(FieldBuyerEmail),
			Phone: get(FieldBuyerPhone),
		},
		Shipping: entities.ShippingAddress{
			Name:     get(FieldShipName),
			Address1: get(FieldAddress1),
			Address2: get(FieldAddress2),
			City:     get(FieldCity),
			Postcode: get(FieldPostcode),
			Country:  strings.ToUpper(get(FieldCountry)),
		},
		Totals: entities.OrderTotals{
			Goods:    parseDecimal(get(FieldTotalGoods)),
			Shipping: parseDecimal(get(FieldTotalShipping)),
		},
	}
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTime(s string) time.Time {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func parseInt(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

func parseDecimal(s string) decimal.Decimal {
	// Some marketplace exports use a comma decimal separator.
	d, err := decimal.NewFromString(strings.ReplaceAll(s, ",", "."))
	if err != nil {
		return decimal.Zero
	}
	return d
}
