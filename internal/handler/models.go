package handler

import (
	"time"

	"mirakl-orchestrator/internal/entities"

	"github.com/shopspring/decimal"
)

// Order is the wire form of a canonical marketplace order.
type Order struct {
	OrderID     string          `json:"order_id" validate:"required"`
	Marketplace string          `json:"marketplace,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	Status      string          `json:"status,omitempty"`
	Items       []OrderItem     `json:"items" validate:"required,dive"`
	Buyer       Buyer           `json:"buyer" validate:"required"`
	Shipping    ShippingAddress `json:"shipping" validate:"required"`
	Totals      OrderTotals     `json:"totals"`
}

// OrderItem is one order line.
type OrderItem struct {
	SKU       string          `json:"sku,omitempty"`
	Name      string          `json:"name,omitempty"`
	Quantity  int             `json:"quantity" validate:"gt=0"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// Buyer identifies the purchaser.
type Buyer struct {
	Name  string `json:"name,omitempty" validate:"required"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// ShippingAddress is the delivery destination.
type ShippingAddress struct {
	Name     string `json:"name,omitempty" validate:"required"`
	Address1 string `json:"address1,omitempty" validate:"required"`
	Address2 string `json:"address2,omitempty"`
	City     string `json:"city,omitempty" validate:"required"`
	Postcode string `json:"postcode,omitempty" validate:"required"`
	Country  string `json:"country,omitempty" validate:"required,len=2"`
}

// OrderTotals carries the marketplace-declared amounts.
type OrderTotals struct {
	Goods    decimal.Decimal `json:"goods"`
	Shipping decimal.Decimal `json:"shipping"`
}

// OrchestrationRecord is the wire form of one order's derived
// orchestration state.
type OrchestrationRecord struct {
	OrderID           string    `json:"order_id"`
	Marketplace       string    `json:"marketplace,omitempty"`
	MarketplaceStatus string    `json:"marketplace_status,omitempty"`
	CarrierCode       string    `json:"carrier_code,omitempty"`
	ExpeditionID      string    `json:"expedition_id,omitempty"`
	TrackingNumber    string    `json:"tracking_number,omitempty"`
	CarrierStatus     string    `json:"carrier_status,omitempty"`
	InternalState     string    `json:"internal_state"`
	TrackAttempts     int       `json:"track_attempts"`
	LastError         string    `json:"last_error,omitempty"`
	LastEvent         string    `json:"last_event,omitempty"`
	LastEventAt       time.Time `json:"last_event_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Stats is the wire form of the aggregated orchestration view.
type Stats struct {
	TotalOrders int            `json:"total_orders"`
	ByState     map[string]int `json:"by_state"`
	ByCarrier   map[string]int `json:"by_carrier"`
}

func StatsEntityToJSON(s entities.OrchestrationStats) Stats {
	byState := make(map[string]int, len(s.ByState))
	for state, n := range s.ByState {
		byState[string(state)] = n
	}
	return Stats{
		TotalOrders: s.TotalOrders,
		ByState:     byState,
		ByCarrier:   s.ByCarrier,
	}
}

func OrderItemEntityToJSON(i entities.OrderItem) OrderItem {
	return OrderItem{
		SKU:       i.SKU,
		Name:      i.Name,
		Quantity:  i.Quantity,
		UnitPrice: i.UnitPrice,
	}
}

func OrderItemJSONToEntity(i OrderItem) entities.OrderItem {
	return entities.OrderItem{
		SKU:       i.SKU,
		Name:      i.Name,
		Quantity:  i.Quantity,
		UnitPrice: i.UnitPrice,
	}
}

func OrderEntityToJSON(o entities.Order) Order {
	items := make([]OrderItem, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, OrderItemEntityToJSON(it))
	}

	return Order{
		OrderID:     o.OrderID,
		Marketplace: o.Marketplace,
		CreatedAt:   o.CreatedAt,
		Status:      string(o.Status),
		Items:       items,
		Buyer: Buyer{
			Name:  o.Buyer.Name,
			Email: o.Buyer.Email,
			Phone: o.Buyer.Phone,
		},
		Shipping: ShippingAddress{
			Name:     o.Shipping.Name,
			Address1: o.Shipping.Address1,
			Address2: o.Shipping.Address2,
			City:     o.Shipping.City,
			Postcode: o.Shipping.Postcode,
			Country:  o.Shipping.Country,
		},
		Totals: OrderTotals{
			Goods:    o.Totals.Goods,
			Shipping: o.Totals.Shipping,
		},
	}
}

func OrderJSONToEntity(o Order) entities.Order {
	items := make([]entities.OrderItem, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, OrderItemJSONToEntity(it))
	}

	return entities.Order{
		OrderID:     o.OrderID,
		Marketplace: o.Marketplace,
		CreatedAt:   o.CreatedAt,
		Status:      entities.OrderStatus(o.Status),
		Items:       items,
		Buyer: entities.Buyer{
			Name:  o.Buyer.Name,
			Email: o.Buyer.Email,
			Phone: o.Buyer.Phone,
		},
		Shipping: entities.ShippingAddress{
			Name:     o.Shipping.Name,
			Address1: o.Shipping.Address1,
			Address2: o.Shipping.Address2,
			City:     o.Shipping.City,
			Postcode: o.Shipping.Postcode,
			Country:  o.Shipping.Country,
		},
		Totals: entities.OrderTotals{
			Goods:    o.Totals.Goods,
			Shipping: o.Totals.Shipping,
		},
	}
}

func RecordEntityToJSON(r entities.OrchestrationRecord) OrchestrationRecord {
	return OrchestrationRecord{
		OrderID:           r.OrderID,
		Marketplace:       r.Marketplace,
		MarketplaceStatus: r.MarketplaceStatus,
		CarrierCode:       r.CarrierCode,
		ExpeditionID:      r.ExpeditionID,
		TrackingNumber:    r.TrackingNumber,
		CarrierStatus:     r.CarrierStatus,
		InternalState:     string(r.InternalState),
		TrackAttempts:     r.TrackAttempts,
		LastError:         r.LastError,
		LastEvent:         r.LastEvent,
		LastEventAt:       r.LastEventAt,
		UpdatedAt:         r.UpdatedAt,
	}
}
