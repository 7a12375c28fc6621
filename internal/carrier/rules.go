package carrier

import "mirakl-orchestrator/internal/entities"

const heavyThresholdKg = 20.0

// Select picks a carrier for an order:
//  1. estimated weight above 20 kg stays domestic with TIPSA
//  2. non-Spanish destinations ship internationally with DHL
//  3. everything else defaults to TIPSA
func Select(o entities.Order) string {
	if WeightKg(o) > heavyThresholdKg {
		return CodeTIPSA
	}
	if o.Shipping.Country != "" && o.Shipping.Country != "ES" {
		return CodeDHL
	}
	return CodeTIPSA
}
