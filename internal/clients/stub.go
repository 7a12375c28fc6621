package clients

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"mirakl-orchestrator/internal/carrier"
	"mirakl-orchestrator/internal/entities"
)

// stubCarrier is a mock-only client for the carriers whose integrations
// are placeholders. It exercises the shared mapper interface and yields
// synthetic expedition ids, which is enough for the orchestration flow.
type stubCarrier struct {
	logger *slog.Logger
	mapper carrier.Mapper
	seq    atomic.Int64
}

func NewStubCarrier(logger *slog.Logger, mapper carrier.Mapper) *stubCarrier {
	return &stubCarrier{
		logger: logger.With(slog.String("client", mapper.Code())),
		mapper: mapper,
	}
}

func (s *stubCarrier) Code() string { return s.mapper.Code() }

func (s *stubCarrier) CreateShipments(_ context.Context, orders []entities.Order) ([]ShipmentResult, error) {
	results := make([]ShipmentResult, 0, len(orders))
	prefix := strings.ToUpper(s.mapper.Code())
	for _, o := range orders {
		row := s.mapper.MapOrder(o)
		s.logger.Debug("row mapped",
			slog.String("order_id", o.OrderID),
			slog.Any("fields", row.Fields()))
		results = append(results, ShipmentResult{
			OrderID:      o.OrderID,
			ExpeditionID: fmt.Sprintf("%s-%03d", prefix, s.seq.Add(1)),
		})
	}
	s.logger.Debug("stub shipments created", slog.Int("count", len(orders)))
	return results, nil
}

func (s *stubCarrier) Tracking(_ context.Context, expeditionID string) (TrackingInfo, error) {
	return TrackingInfo{
		TrackingNumber: expeditionID + "-TRK",
		CarrierStatus:  "IN_TRANSIT",
	}, nil
}
