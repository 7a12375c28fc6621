// Package carrier holds the pure transformations from canonical orders to
// carrier-specific row schemas. TIPSA is fully specified; the remaining
// carriers are placeholder variants of the same interface.
package carrier

import (
	"strconv"
	"strings"

	"mirakl-orchestrator/internal/entities"
)

// Row is one mapped output line. Fields are already formatted strings in
// the carrier's header order.
type Row interface {
	Fields() []string
}

// Mapper turns canonical orders into a carrier's row schema.
type Mapper interface {
	Code() string
	Header() []string
	MapOrder(o entities.Order) Row
}

// MapOrders maps a batch, order-preserving, one row per order.
func MapOrders(m Mapper, orders []entities.Order) []Row {
	rows := make([]Row, 0, len(orders))
	for _, o := range orders {
		rows = append(rows, m.MapOrder(o))
	}
	return rows
}

const (
	minWeightKg    = 0.1
	weightPerUnit  = 0.5
	postcodeLength = 5
)

// WeightKg estimates shipment weight as half a kilo per item unit with a
// 0.1 kg floor. An approximation policy, not a measurement.
func WeightKg(o entities.Order) float64 {
	w := float64(o.TotalQuantity()) * weightPerUnit
	if w < minWeightKg {
		return minWeightKg
	}
	return w
}

// FormatWeight renders a weight with exactly one decimal digit.
func FormatWeight(kg float64) string {
	return strconv.FormatFloat(kg, 'f', 1, 64)
}

// NormalizePostcode left-pads purely numeric postcodes shorter than five
// characters with zeros. Spanish postal codes are five digits, so "6186"
// becomes "06186". Non-numeric input passes through untouched.
func NormalizePostcode(cp string) string {
	cp = strings.TrimSpace(cp)
	if len(cp) == 0 || len(cp) >= postcodeLength {
		return cp
	}
	for _, r := range cp {
		if r < '0' || r > '9' {
			return cp
		}
	}
	return strings.Repeat("0", postcodeLength-len(cp)) + cp
}

// joinAddress combines the two address lines, skipping an absent second line.
func joinAddress(a1, a2 string) string {
	if a2 == "" {
		return a1
	}
	return a1 + ", " + a2
}
