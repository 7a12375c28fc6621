package carrier_test

import (
	"testing"

	"mirakl-orchestrator/internal/carrier"
	"mirakl-orchestrator/internal/entities"

	"github.com/stretchr/testify/assert"
)

func TestSelect(t *testing.T) {
	testCases := []struct {
		name    string
		country string
		qty     int
		want    string
	}{
		{name: "domestic default", country: "ES", qty: 1, want: carrier.CodeTIPSA},
		{name: "international", country: "FR", qty: 1, want: carrier.CodeDHL},
		{name: "heavy stays domestic", country: "FR", qty: 50, want: carrier.CodeTIPSA},
		{name: "no country defaults to tipsa", country: "", qty: 1, want: carrier.CodeTIPSA},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			o := sampleOrder()
			o.Shipping.Country = tc.country
			o.Items[0].Quantity = tc.qty

			assert.Equal(t, tc.want, carrier.Select(o))
		})
	}
}

func TestMapOrders(t *testing.T) {
	orders := []entities.Order{sampleOrder(), sampleOrder()}
	orders[1].OrderID = "MIR-002"

	rows := carrier.MapOrders(carrier.NewTIPSA(""), orders)
	assert.Len(t, rows, 2)
	assert.Equal(t, "MIR-001", rows[0].(carrier.TIPSARow).Referencia)
	assert.Equal(t, "MIR-002", rows[1].(carrier.TIPSARow).Referencia)
}

func TestStubMappers(t *testing.T) {
	o := sampleOrder()

	for _, m := range []carrier.Mapper{carrier.NewDHL(), carrier.NewUPS(), carrier.NewOnTime()} {
		row := m.MapOrder(o)
		assert.Len(t, row.Fields(), len(m.Header()))
		assert.Equal(t, "MIR-001", row.Fields()[0])
	}
}
