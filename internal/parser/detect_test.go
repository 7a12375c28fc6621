package parser_test

import (
	"testing"

	"mirakl-orchestrator/internal/parser"

	"github.com/stretchr/testify/assert"
)

func TestDetectMarketplace(t *testing.T) {
	testCases := []struct {
		name      string
		headers   []string
		sourceURL string
		want      string
	}{
		{
			name:      "carrefour by url before generic mirakl",
			sourceURL: "https://carrefour.mirakl.net/api/orders/export",
			want:      "carrefour",
		},
		{
			name:    "carrefour by headers",
			headers: []string{"Nº de pedido", "Referencia comercial", "Estado"},
			want:    "carrefour",
		},
		{
			name:      "leroy by url",
			sourceURL: "https://marketplace.adeo.com/orders",
			want:      "leroy",
		},
		{
			name:    "mediamarkt by headers",
			headers: []string{"Bestellnummer", "Artikel"},
			want:    "mediamarkt",
		},
		{
			name:      "generic mirakl tenant",
			sourceURL: "https://somevendor.mirakl.net/api/orders",
			want:      "mirakl",
		},
		{
			name:      "unknown",
			headers:   []string{"Order ID", "Created"},
			sourceURL: "https://example.com/export",
			want:      parser.MarketplaceUnknown,
		},
		{
			name: "nothing to go on",
			want: parser.MarketplaceUnknown,
		},
		{
			name:    "partial header hints do not match",
			headers: []string{"Nº de pedido"},
			want:    parser.MarketplaceUnknown,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, parser.DetectMarketplace(tc.headers, tc.sourceURL))
		})
	}
}
