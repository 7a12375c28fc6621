// Package clients holds the outbound collaborators: the Mirakl marketplace
// API and the carrier APIs. The core never calls these directly; the
// orchestration service invokes them and feeds their declared outcomes to
// the tracker. Every client has a mock mode for local development, mirroring
// the sandbox-less carrier test accounts.
package clients

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"mirakl-orchestrator/internal/config"

	"github.com/go-resty/resty/v2"
)

// mockOrdersCSV is the canned pending-orders export served in mock mode.
const mockOrdersCSV = `Order ID,Created,Status,SKU,Product,Quantity,Unit price,Buyer name,Buyer email,Buyer phone,Shipping name,Address 1,Address 2,City,Postcode,Country,Total,Shipping cost
MIR-001,2025-09-19T20:00:00Z,PENDING,SKU-100,Cafetera espresso,1,45.99,Juan Pérez,juan.perez@email.com,+34612345678,Juan Pérez,Calle Mayor 123,,Madrid,28001,ES,45.99,0
MIR-002,2025-09-19T21:00:00Z,PENDING,SKU-200,Auriculares inalámbricos,2,16.25,María García,maria.garcia@email.com,+34698765432,María García,Avenida de la Paz 456,2º B,Barcelona,08001,ES,32.50,0
`

type Mirakl struct {
	logger *slog.Logger
	client *resty.Client
	cfg    config.Mirakl
}

func NewMirakl(logger *slog.Logger, cfg config.Mirakl) *Mirakl {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetHeader("Authorization", cfg.APIKey)
	return &Mirakl{
		logger: logger.With(slog.String("client", "mirakl")),
		client: client,
		cfg:    cfg,
	}
}

// FetchOrders downloads the pending-orders CSV export. Returns the raw CSV
// text plus the source URL used, which feeds marketplace detection.
func (m *Mirakl) FetchOrders(ctx context.Context) (string, string, error) {
	if m.cfg.MockMode {
		m.logger.Debug("serving mock orders export")
		return mockOrdersCSV, m.cfg.BaseURL, nil
	}

	resp, err := m.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"status": "PENDING",
			"shop":   m.cfg.ShopID,
		}).
		Get("/api/orders/export")
	if err != nil {
		return "", "", fmt.Errorf("orders export request failed: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return "", "", fmt.Errorf("orders export returned status %d", resp.StatusCode())
	}
	return string(resp.Body()), resp.Request.URL, nil
}

// PushTracking uploads a tracking number for an order and flips its
// marketplace status to SHIPPED.
func (m *Mirakl) PushTracking(ctx context.Context, orderID, trackingNumber, carrierCode string) error {
	if m.cfg.MockMode {
		m.logger.Debug("mock tracking push", slog.String("order_id", orderID))
		return nil
	}

	resp, err := m.client.R().
		SetContext(ctx).
		SetPathParam("order_id", orderID).
		SetBody(map[string]string{
			"tracking_number": trackingNumber,
			"carrier_code":    carrierCode,
		}).
		Put("/api/orders/{order_id}/tracking")
	if err != nil {
		return fmt.Errorf("tracking update request failed: %w", err)
	}
	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusNoContent {
		return fmt.Errorf("tracking update returned status %d", resp.StatusCode())
	}

	resp, err = m.client.R().
		SetContext(ctx).
		SetPathParam("order_id", orderID).
		SetBody(map[string]string{"status": "SHIPPED"}).
		Put("/api/orders/{order_id}/status")
	if err != nil {
		return fmt.Errorf("status update request failed: %w", err)
	}
	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusNoContent {
		return fmt.Errorf("status update returned status %d", resp.StatusCode())
	}
	return nil
}
