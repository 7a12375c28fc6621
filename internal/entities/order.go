package entities

import (
	"bytes"
	"encoding/gob"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	StatusPending   OrderStatus = "PENDING"
	StatusAccepted  OrderStatus = "ACCEPTED"
	StatusShipped   OrderStatus = "SHIPPED"
	StatusDelivered OrderStatus = "DELIVERED"
	StatusCancelled OrderStatus = "CANCELLED"
)

// OrderStatuses enumerates every marketplace status the canonical model accepts.
var OrderStatuses = []OrderStatus{
	StatusPending, StatusAccepted, StatusShipped, StatusDelivered, StatusCancelled,
}

type OrderItem struct {
	SKU       string
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal
}

type Buyer struct {
	Name  string
	Email string
	Phone string
}

type ShippingAddress struct {
	Name     string
	Address1 string
	Address2 string
	City     string
	Postcode string
	Country  string
}

type OrderTotals struct {
	Goods    decimal.Decimal
	Shipping decimal.Decimal
}

// Order is the marketplace-agnostic pivot format. It is built once by the
// parser and never mutated afterwards; carrier mappings derive new values.
type Order struct {
	OrderID     string
	Marketplace string
	CreatedAt   time.Time
	Status      OrderStatus

	Items    []OrderItem
	Buyer    Buyer
	Shipping ShippingAddress
	Totals   OrderTotals
}

// TotalQuantity sums item quantities across the order.
func (o Order) TotalQuantity() int {
	total := 0
	for _, it := range o.Items {
		total += it.Quantity
	}
	return total
}

// LineTotal derives the goods total from item lines. The parsed
// Totals.Goods stays authoritative, this is a cross-check only.
func (o Order) LineTotal() decimal.Decimal {
	sum := decimal.Zero
	for _, it := range o.Items {
		sum = sum.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return sum
}

func (o *Order) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(o); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (o *Order) Unmarshal(data []byte) error {
	buf := bytes.NewBuffer(data)
	dec := gob.NewDecoder(buf)
	return dec.Decode(o)
}

func init() {
	gob.Register(Order{})
	gob.Register(OrderItem{})
	gob.Register(Buyer{})
	gob.Register(ShippingAddress{})
	gob.Register(OrderTotals{})
}
