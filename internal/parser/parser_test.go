package parser_test

import (
	"errors"
	"testing"
	"time"

	"mirakl-orchestrator/internal/entities"
	"mirakl-orchestrator/internal/parser"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fullExport = `Order ID,Created,Status,SKU,Product,Quantity,Unit price,Buyer name,Buyer email,Buyer phone,Shipping name,Address 1,Address 2,City,Postcode,Country,Total,Shipping cost
MIR-001,2025-09-19T20:00:00Z,PENDING,SKU-100,Cafetera espresso,1,45.99,Juan Pérez,juan.perez@email.com,+34612345678,Juan Pérez,Calle Mayor 123,,Madrid,28001,ES,45.99,0
MIR-002,2025-09-19T21:00:00Z,PENDING,SKU-200,Auriculares inalámbricos,2,16.25,María García,maria.garcia@email.com,+34698765432,María García,Avenida de la Paz 456,2º B,Barcelona,08001,ES,32.50,0
`

func TestParse_FullExport(t *testing.T) {
	orders, err := parser.Parse(fullExport, parser.MiraklMapping())
	require.NoError(t, err)
	require.Len(t, orders, 2)

	first := orders[0]
	assert.Equal(t, "MIR-001", first.OrderID)
	assert.Equal(t, time.Date(2025, 9, 19, 20, 0, 0, 0, time.UTC), first.CreatedAt)
	assert.Equal(t, entities.StatusPending, first.Status)
	require.Len(t, first.Items, 1)
	assert.Equal(t, "SKU-100", first.Items[0].SKU)
	assert.Equal(t, "Cafetera espresso", first.Items[0].Name)
	assert.Equal(t, 1, first.Items[0].Quantity)
	assert.True(t, first.Items[0].UnitPrice.Equal(decimal.RequireFromString("45.99")))
	assert.Equal(t, "Juan Pérez", first.Buyer.Name)
	assert.Equal(t, "Madrid", first.Shipping.City)
	assert.Equal(t, "28001", first.Shipping.Postcode)
	assert.Equal(t, "ES", first.Shipping.Country)
	assert.True(t, first.Totals.Goods.Equal(decimal.RequireFromString("45.99")))

	second := orders[1]
	assert.Equal(t, "MIR-002", second.OrderID)
	assert.Equal(t, "2º B", second.Shipping.Address2)
	assert.Equal(t, 2, second.Items[0].Quantity)
	assert.True(t, second.Totals.Goods.Equal(decimal.RequireFromString("32.50")))
}

func TestParse_MissingOptionalColumns(t *testing.T) {
	raw := "Order ID,Quantity,Unit price\nMIR-010,2,10.00\n"

	orders, err := parser.Parse(raw, parser.MiraklMapping())
	require.NoError(t, err)
	require.Len(t, orders, 1)

	o := orders[0]
	assert.Equal(t, "MIR-010", o.OrderID)
	assert.Equal(t, 2, o.Items[0].Quantity)
	assert.Empty(t, o.Buyer.Name)
	assert.Empty(t, o.Shipping.City)
	assert.True(t, o.CreatedAt.IsZero())
}

func TestParse_CommaDecimalSeparator(t *testing.T) {
	raw := "Order ID,Quantity,Unit price\nMIR-011,1,\"12,50\"\n"

	orders, err := parser.Parse(raw, parser.MiraklMapping())
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.True(t, orders[0].Items[0].UnitPrice.Equal(decimal.RequireFromString("12.50")))
}

func TestParse_HeaderOnly(t *testing.T) {
	raw := "Order ID,Created,Status\n"

	orders, err := parser.Parse(raw, parser.MiraklMapping())
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestParse_Errors(t *testing.T) {
	testCases := []struct {
		name string
		raw  string
	}{
		{name: "empty payload", raw: "   \n  "},
		{name: "unrecognizable header", raw: "foo,bar\n1,2\n"},
		{name: "malformed csv", raw: "Order ID,Created\n\"unterminated\n"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parser.Parse(tc.raw, parser.MiraklMapping())
			require.Error(t, err)

			var pe *entities.ParseError
			assert.True(t, errors.As(err, &pe))
		})
	}
}

func TestParse_ShortRowDegrades(t *testing.T) {
	raw := "Order ID,Created,Status,SKU\nMIR-012\n"

	orders, err := parser.Parse(raw, parser.MiraklMapping())
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "MIR-012", orders[0].OrderID)
	assert.Empty(t, orders[0].Items[0].SKU)
}
