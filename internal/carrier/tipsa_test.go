package carrier_test

import (
	"testing"
	"time"

	"mirakl-orchestrator/internal/carrier"
	"mirakl-orchestrator/internal/entities"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleOrder() entities.Order {
	return entities.Order{
		OrderID:   "MIR-001",
		CreatedAt: time.Date(2025, 9, 19, 20, 0, 0, 0, time.UTC),
		Status:    entities.StatusPending,
		Items: []entities.OrderItem{
			{SKU: "SKU-100", Name: "Cafetera espresso", Quantity: 1, UnitPrice: decimal.RequireFromString("45.99")},
		},
		Buyer: entities.Buyer{
			Name:  "Juan Pérez",
			Email: "juan.perez@email.com",
			Phone: "+34612345678",
		},
		Shipping: entities.ShippingAddress{
			Name:     "Juan Pérez",
			Address1: "Calle Mayor 123",
			City:     "Madrid",
			Postcode: "28001",
			Country:  "ES",
		},
		Totals: entities.OrderTotals{Goods: decimal.RequireFromString("45.99")},
	}
}

func TestTIPSA_MapOrder(t *testing.T) {
	row, ok := carrier.NewTIPSA("").MapOrder(sampleOrder()).(carrier.TIPSARow)
	require.True(t, ok)

	assert.Equal(t, "Juan Pérez", row.Destinatario)
	assert.Equal(t, "Calle Mayor 123", row.Direccion)
	assert.Equal(t, "28001", row.CP)
	assert.Equal(t, "Madrid", row.Poblacion)
	assert.Equal(t, "ES", row.Pais)
	assert.Equal(t, "MIR-001", row.Referencia)
	assert.Equal(t, "0.5", row.Peso)
	assert.Equal(t, carrier.DefaultService, row.Servicio)
}

func TestTIPSA_MapOrder_AddressAndService(t *testing.T) {
	o := sampleOrder()
	o.Shipping.Address2 = "2º B"
	o.Items[0].Quantity = 3

	row := carrier.NewTIPSA("URGENTE").MapOrder(o).(carrier.TIPSARow)

	assert.Equal(t, "Calle Mayor 123, 2º B", row.Direccion)
	assert.Equal(t, "1.5", row.Peso)
	assert.Equal(t, "URGENTE", row.Servicio)
}

func TestTIPSA_MapOrder_PadsPostcode(t *testing.T) {
	o := sampleOrder()
	o.Shipping.Postcode = "6186"

	row := carrier.NewTIPSA("").MapOrder(o).(carrier.TIPSARow)
	assert.Equal(t, "06186", row.CP)
}

func TestValidateTIPSARow(t *testing.T) {
	valid := carrier.NewTIPSA("").MapOrder(sampleOrder()).(carrier.TIPSARow)

	testCases := []struct {
		name       string
		mutate     func(r *carrier.TIPSARow)
		wantErrors []string
	}{
		{
			name:   "valid row",
			mutate: func(r *carrier.TIPSARow) {},
		},
		{
			name:       "missing destinatario",
			mutate:     func(r *carrier.TIPSARow) { r.Destinatario = "  " },
			wantErrors: []string{"Destinatario is required"},
		},
		{
			name:       "bad postal code",
			mutate:     func(r *carrier.TIPSARow) { r.CP = "2800" },
			wantErrors: []string{"Invalid postal code format"},
		},
		{
			name:       "bad country code",
			mutate:     func(r *carrier.TIPSARow) { r.Pais = "ESP" },
			wantErrors: []string{"Invalid country code"},
		},
		{
			name:       "bad email",
			mutate:     func(r *carrier.TIPSARow) { r.Email = "not-an-email" },
			wantErrors: []string{"Invalid email format"},
		},
		{
			name:       "bad phone",
			mutate:     func(r *carrier.TIPSARow) { r.Telefono = "+34112345678" },
			wantErrors: []string{"Invalid phone format"},
		},
		{
			name:   "phone with spaces is tolerated",
			mutate: func(r *carrier.TIPSARow) { r.Telefono = "+34 612 345 678" },
		},
		{
			name:   "phone with 0034 prefix",
			mutate: func(r *carrier.TIPSARow) { r.Telefono = "0034698765432" },
		},
		{
			name:       "weight over limit",
			mutate:     func(r *carrier.TIPSARow) { r.Peso = "1000.1" },
			wantErrors: []string{"Invalid weight format"},
		},
		{
			name:       "weight not a number",
			mutate:     func(r *carrier.TIPSARow) { r.Peso = "heavy" },
			wantErrors: []string{"Invalid weight format"},
		},
		{
			name: "violations accumulate",
			mutate: func(r *carrier.TIPSARow) {
				r.Destinatario = ""
				r.CP = "abc"
				r.Email = "broken"
			},
			wantErrors: []string{
				"Destinatario is required",
				"Invalid postal code format",
				"Invalid email format",
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			row := valid
			tc.mutate(&row)

			res := carrier.ValidateTIPSARow(row)
			if len(tc.wantErrors) == 0 {
				assert.True(t, res.IsValid)
				assert.Empty(t, res.Errors)
				return
			}
			assert.False(t, res.IsValid)
			for _, want := range tc.wantErrors {
				assert.Contains(t, res.Errors, want)
			}
		})
	}
}

func TestNormalizePostcode(t *testing.T) {
	testCases := []struct {
		in   string
		want string
	}{
		{"6186", "06186"},
		{"28001", "28001"},
		{" 800 ", "00800"},
		{"AB12", "AB12"},
		{"", ""},
		{"280011", "280011"},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.want, carrier.NormalizePostcode(tc.in), "input %q", tc.in)
	}
}

func TestWeightKg(t *testing.T) {
	o := sampleOrder()
	o.Items = []entities.OrderItem{
		{Quantity: 2, UnitPrice: decimal.New(1, 0)},
		{Quantity: 3, UnitPrice: decimal.New(1, 0)},
	}
	assert.InDelta(t, 2.5, carrier.WeightKg(o), 0.001)

	o.Items = nil
	assert.InDelta(t, 0.1, carrier.WeightKg(o), 0.001)
}
