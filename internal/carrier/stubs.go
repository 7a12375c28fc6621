package carrier

import "mirakl-orchestrator/internal/entities"

const (
	CodeDHL    = "dhl"
	CodeUPS    = "ups"
	CodeOnTime = "ontime"
)

// genericHeader is the shared placeholder schema for carriers whose import
// format is not fully specified yet.
var genericHeader = []string{
	"order_id", "customer_name", "address", "city", "postal_code",
	"country", "phone", "email", "weight", "service",
}

// GenericRow is the placeholder output line used by the stub carriers.
type GenericRow struct {
	OrderID      string
	CustomerName string
	Address      string
	City         string
	PostalCode   string
	Country      string
	Phone        string
	Email        string
	Weight       string
	Service      string
}

func (r GenericRow) Fields() []string {
	return []string{
		r.OrderID, r.CustomerName, r.Address, r.City, r.PostalCode,
		r.Country, r.Phone, r.Email, r.Weight, r.Service,
	}
}

// generic is the common stub mapper; DHL, UPS and OnTime only differ in
// code and default service for now.
type generic struct {
	code    string
	service string
}

func (g generic) Code() string   { return g.code }
func (generic) Header() []string { return genericHeader }

func (g generic) MapOrder(o entities.Order) Row {
	return GenericRow{
		OrderID:      o.OrderID,
		CustomerName: o.Shipping.Name,
		Address:      joinAddress(o.Shipping.Address1, o.Shipping.Address2),
		City:         o.Shipping.City,
		PostalCode:   NormalizePostcode(o.Shipping.Postcode),
		Country:      o.Shipping.Country,
		Phone:        o.Buyer.Phone,
		Email:        o.Buyer.Email,
		Weight:       FormatWeight(WeightKg(o)),
		Service:      g.service,
	}
}

func NewDHL() Mapper    { return generic{code: CodeDHL, service: "EXPRESS"} }
func NewUPS() Mapper    { return generic{code: CodeUPS, service: "STANDARD"} }
func NewOnTime() Mapper { return generic{code: CodeOnTime, service: "DOMESTIC"} }
