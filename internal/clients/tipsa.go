package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"

	"mirakl-orchestrator/internal/carrier"
	"mirakl-orchestrator/internal/config"
	"mirakl-orchestrator/internal/csvio"
	"mirakl-orchestrator/internal/entities"

	"github.com/go-resty/resty/v2"
)

// ShipmentResult is a carrier's declared outcome for one posted order.
type ShipmentResult struct {
	OrderID        string `json:"order_id"`
	ExpeditionID   string `json:"expedition_id"`
	TrackingNumber string `json:"tracking_number,omitempty"`
	Error          string `json:"error,omitempty"`
}

// TrackingInfo is a carrier's answer to one tracking poll.
type TrackingInfo struct {
	TrackingNumber string `json:"tracking_number"`
	CarrierStatus  string `json:"carrier_status"`
}

// TIPSA posts mapped shipment batches as semicolon-delimited CSV, the
// format TIPSA's import endpoint consumes.
type TIPSA struct {
	logger *slog.Logger
	client *resty.Client
	mapper carrier.TIPSA
	cfg    config.TIPSA

	mockSeq atomic.Int64
}

func NewTIPSA(logger *slog.Logger, cfg config.TIPSA) *TIPSA {
	return &TIPSA{
		logger: logger.With(slog.String("client", "tipsa")),
		client: resty.New().SetBaseURL(cfg.BaseURL).SetHeader("X-API-Key", cfg.APIKey),
		mapper: carrier.NewTIPSA(cfg.DefaultService),
		cfg:    cfg,
	}
}

func (t *TIPSA) Code() string { return carrier.CodeTIPSA }

// CreateShipments maps and posts a batch, one result per input order in
// input order. Rows failing TIPSA validation are reported as per-order
// errors and excluded from the upload instead of failing the batch.
func (t *TIPSA) CreateShipments(ctx context.Context, orders []entities.Order) ([]ShipmentResult, error) {
	results := make([]ShipmentResult, len(orders))
	upload := make([][]string, 0, len(orders))
	uploadIdx := make([]int, 0, len(orders))

	for i, o := range orders {
		row := t.mapper.MapOrder(o).(carrier.TIPSARow)
		if v := carrier.ValidateTIPSARow(row); !v.IsValid {
			results[i] = ShipmentResult{OrderID: o.OrderID, Error: strings.Join(v.Errors, "; ")}
			continue
		}
		results[i] = ShipmentResult{OrderID: o.OrderID}
		upload = append(upload, row.Fields())
		uploadIdx = append(uploadIdx, i)
	}
	if len(upload) == 0 {
		return results, nil
	}

	if t.cfg.MockMode {
		for _, i := range uploadIdx {
			results[i].ExpeditionID = fmt.Sprintf("TIPSA-%03d", t.mockSeq.Add(1))
		}
		t.logger.Debug("mock shipments created", slog.Int("count", len(upload)))
		return results, nil
	}

	body, err := csvio.Export(carrier.TIPSAHeader, upload, csvio.TIPSADelimiter)
	if err != nil {
		return nil, fmt.Errorf("failed to build shipment csv: %w", err)
	}

	resp, err := t.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "text/csv").
		SetBody(body).
		Post("/api/shipments/import")
	if err != nil {
		return nil, fmt.Errorf("shipment import request failed: %w", err)
	}
	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusCreated {
		return nil, fmt.Errorf("shipment import returned status %d", resp.StatusCode())
	}

	var created []ShipmentResult
	if err := json.Unmarshal(resp.Body(), &created); err != nil {
		return nil, fmt.Errorf("failed to decode shipment response: %w", err)
	}
	byOrder := make(map[string]ShipmentResult, len(created))
	for _, c := range created {
		byOrder[c.OrderID] = c
	}
	for _, i := range uploadIdx {
		if c, ok := byOrder[results[i].OrderID]; ok {
			results[i] = c
		} else {
			results[i].Error = "carrier returned no result for order"
		}
	}
	return results, nil
}

// Tracking polls one expedition. Mock mode answers immediately with a
// synthetic tracking number.
func (t *TIPSA) Tracking(ctx context.Context, expeditionID string) (TrackingInfo, error) {
	if t.cfg.MockMode {
		return TrackingInfo{
			TrackingNumber: expeditionID + "-TRK",
			CarrierStatus:  "IN_TRANSIT",
		}, nil
	}

	resp, err := t.client.R().
		SetContext(ctx).
		SetPathParam("expedition_id", expeditionID).
		Get("/api/shipments/{expedition_id}/tracking")
	if err != nil {
		return TrackingInfo{}, fmt.Errorf("tracking request failed: %w", err)
	}
	switch resp.StatusCode() {
	case http.StatusOK:
		var info TrackingInfo
		if err := json.Unmarshal(resp.Body(), &info); err != nil {
			return TrackingInfo{}, fmt.Errorf("failed to decode tracking response: %w", err)
		}
		return info, nil
	case http.StatusNoContent, http.StatusNotFound:
		// Not processed yet, poll again later.
		return TrackingInfo{}, nil
	default:
		return TrackingInfo{}, fmt.Errorf("tracking returned status %d", resp.StatusCode())
	}
}
