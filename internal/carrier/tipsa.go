package carrier

import (
	"regexp"
	"strconv"
	"strings"

	"mirakl-orchestrator/internal/entities"
)

const (
	CodeTIPSA = "tipsa"

	// DefaultService is the TIPSA service code applied unless a batch
	// overrides it.
	DefaultService = "ESTANDAR"

	maxWeightKg = 1000.0
)

// TIPSAHeader is the exact column contract of a TIPSA import file.
var TIPSAHeader = []string{
	"destinatario", "direccion", "cp", "poblacion", "pais",
	"contacto", "telefono", "email", "referencia", "peso", "servicio",
}

// TIPSARow is one TIPSA output line. referencia carries the order id, so
// every row is losslessly traceable back to its canonical order.
type TIPSARow struct {
	Destinatario string
	Direccion    string
	CP           string
	Poblacion    string
	Pais         string
	Contacto     string
	Telefono     string
	Email        string
	Referencia   string
	Peso         string
	Servicio     string
}

func (r TIPSARow) Fields() []string {
	return []string{
		r.Destinatario, r.Direccion, r.CP, r.Poblacion, r.Pais,
		r.Contacto, r.Telefono, r.Email, r.Referencia, r.Peso, r.Servicio,
	}
}

// TIPSA maps canonical orders to the TIPSA row schema.
type TIPSA struct {
	Service string
}

func NewTIPSA(service string) TIPSA {
	if service == "" {
		service = DefaultService
	}
	return TIPSA{Service: service}
}

func (TIPSA) Code() string     { return CodeTIPSA }
func (TIPSA) Header() []string { return TIPSAHeader }

func (m TIPSA) MapOrder(o entities.Order) Row {
	return TIPSARow{
		Destinatario: o.Shipping.Name,
		Direccion:    joinAddress(o.Shipping.Address1, o.Shipping.Address2),
		CP:           NormalizePostcode(o.Shipping.Postcode),
		Poblacion:    o.Shipping.City,
		Pais:         o.Shipping.Country,
		Contacto:     o.Buyer.Name,
		Telefono:     o.Buyer.Phone,
		Email:        o.Buyer.Email,
		Referencia:   o.OrderID,
		Peso:         FormatWeight(WeightKg(o)),
		Servicio:     m.Service,
	}
}

var (
	postalRe       = regexp.MustCompile(`^\d{5}$`)
	countryCodeRe  = regexp.MustCompile(`^[A-Z]{2}$`)
	tipsaEmailRe   = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	spanishPhoneRe = regexp.MustCompile(`^(\+34|0034)?[6-9]\d{8}$`)
)

// RowValidation is the accumulated result of checking one TIPSA row.
// Never throws; every violation is collected.
type RowValidation struct {
	IsValid bool     `json:"is_valid"`
	Errors  []string `json:"errors,omitempty"`
}

// ValidateTIPSARow checks a mapped row against the TIPSA import contract.
func ValidateTIPSARow(r TIPSARow) RowValidation {
	var errs []string

	required := []struct{ name, value string }{
		{"Destinatario", r.Destinatario},
		{"Dirección", r.Direccion},
		{"Código postal", r.CP},
		{"Población", r.Poblacion},
		{"País", r.Pais},
		{"Referencia", r.Referencia},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			errs = append(errs, f.name+" is required")
		}
	}

	if r.CP != "" && !postalRe.MatchString(strings.TrimSpace(r.CP)) {
		errs = append(errs, "Invalid postal code format")
	}
	if r.Pais != "" && !countryCodeRe.MatchString(strings.TrimSpace(r.Pais)) {
		errs = append(errs, "Invalid country code")
	}
	if r.Email != "" && !tipsaEmailRe.MatchString(strings.TrimSpace(r.Email)) {
		errs = append(errs, "Invalid email format")
	}
	if r.Telefono != "" && !spanishPhoneRe.MatchString(stripSpaces(r.Telefono)) {
		errs = append(errs, "Invalid phone format")
	}
	if r.Peso != "" && !validWeight(r.Peso) {
		errs = append(errs, "Invalid weight format")
	}

	return RowValidation{IsValid: len(errs) == 0, Errors: errs}
}

func stripSpaces(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), " ", "")
}

func validWeight(s string) bool {
	w, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return false
	}
	return w > 0 && w <= maxWeightKg
}
