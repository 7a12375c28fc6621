package parser

import "strings"

const MarketplaceUnknown = "unknown"

// signature describes one known marketplace export. A signature matches
// when the source URL contains any of its URL hints, or when every header
// hint appears in the export's header row.
type signature struct {
	name        string
	urlHints    []string
	headerHints []string
}

// Tenant signatures come before the generic mirakl one so that
// "carrefour.mirakl.net" classifies as carrefour, not mirakl.
var signatures = []signature{
	{
		name:        "carrefour",
		urlHints:    []string{"carrefour"},
		headerHints: []string{"Nº de pedido", "Referencia comercial"},
	},
	{
		name:        "leroy",
		urlHints:    []string{"leroymerlin", "adeo"},
		headerHints: []string{"N° de commande", "Référence"},
	},
	{
		name:        "mediamarkt",
		urlHints:    []string{"mediamarkt"},
		headerHints: []string{"Bestellnummer"},
	},
	{
		name:     "mirakl",
		urlHints: []string{"mirakl"},
	},
}

// DetectMarketplace classifies an export by its header names and/or source
// URL. Best-effort: callers must tolerate "unknown".
func DetectMarketplace(headers []string, sourceURL string) string {
	url := strings.ToLower(sourceURL)
	headerSet := make(map[string]struct{}, len(headers))
	for _, h := range headers {
		headerSet[strings.TrimSpace(h)] = struct{}{}
	}

	for _, sig := range signatures {
		for _, hint := range sig.urlHints {
			if url != "" && strings.Contains(url, hint) {
				return sig.name
			}
		}
		if len(sig.headerHints) == 0 {
			continue
		}
		all := true
		for _, hint := range sig.headerHints {
			if _, ok := headerSet[hint]; !ok {
				all = false
				break
			}
		}
		if all {
			return sig.name
		}
	}
	return MarketplaceUnknown
}
