package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"mirakl-orchestrator/internal/carrier"
	"mirakl-orchestrator/internal/clients"
	"mirakl-orchestrator/internal/entities"
	"mirakl-orchestrator/internal/parser"
	"mirakl-orchestrator/internal/tracker"
	"mirakl-orchestrator/internal/validate"
	"mirakl-orchestrator/pkg/utils"

	"golang.org/x/sync/errgroup"
)

// Marketplace is the outbound marketplace collaborator. The orchestrator
// only consumes its return payloads; transport and auth live in the client.
type Marketplace interface {
	FetchOrders(ctx context.Context) (rawCSV string, sourceURL string, err error)
	PushTracking(ctx context.Context, orderID, trackingNumber, carrierCode string) error
}

// Carrier is one outbound carrier collaborator.
type Carrier interface {
	Code() string
	CreateShipments(ctx context.Context, orders []entities.Order) ([]clients.ShipmentResult, error)
	Tracking(ctx context.Context, expeditionID string) (clients.TrackingInfo, error)
}

// Tracker records declared stage outcomes and serves projections.
type Tracker interface {
	RecordFetch(ctx context.Context, orders []entities.Order) []tracker.OrderOutcome
	RecordFetchFailure(ctx context.Context, orderID, reason string) error
	RecordPostResult(ctx context.Context, res tracker.PostResult) error
	RecordTrackingResult(ctx context.Context, res tracker.TrackingResult) error
	RecordPushResult(ctx context.Context, res tracker.PushResult) error
	CurrentView(ctx context.Context, f tracker.ViewFilter) ([]entities.OrchestrationRecord, error)
	Record(ctx context.Context, orderID string) (entities.OrchestrationRecord, error)
	Stats(ctx context.Context) (entities.OrchestrationStats, error)
	ExportOperationsLog(ctx context.Context) (string, error)
	ExportCurrentView(ctx context.Context) (string, error)
}

type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte)
	Remove(key string)
}

var retryConfig = utils.RetryConfig{
	InitialDelay: 100 * time.Millisecond,
	MaxAttempts:  5,
	Multiplier:   2,
}

type Orchestrator struct {
	logger      *slog.Logger
	trk         Tracker
	marketplace Marketplace
	carriers    map[string]Carrier
	mapping     parser.ColumnMapping
	cache       Cache

	// pending holds fetched canonical orders until their post succeeds.
	// Posting needs the full order, which the event log deliberately does
	// not carry.
	mu      sync.Mutex
	pending map[string]entities.Order
}

func NewOrchestrator(
	logger *slog.Logger,
	trk Tracker,
	marketplace Marketplace,
	carriers []Carrier,
	mapping parser.ColumnMapping,
	cache Cache,
) *Orchestrator {
	byCode := make(map[string]Carrier, len(carriers))
	for _, c := range carriers {
		byCode[c.Code()] = c
	}
	return &Orchestrator{
		logger:      logger.With(slog.String("service", "orchestrator")),
		trk:         trk,
		marketplace: marketplace,
		carriers:    byCode,
		mapping:     mapping,
		cache:       cache,
		pending:     make(map[string]entities.Order),
	}
}

// RowIssue reports one rejected row of an ingested batch.
type RowIssue struct {
	OrderID string                `json:"order_id"`
	Errors  []validate.FieldError `json:"errors"`
}

type IngestSummary struct {
	Marketplace string     `json:"marketplace"`
	Parsed      int        `json:"parsed"`
	Accepted    int        `json:"accepted"`
	Rejected    int        `json:"rejected"`
	Issues      []RowIssue `json:"issues,omitempty"`
}

// IngestCSV parses a marketplace export, validates every row, records the
// fetch outcome per order and queues valid orders for posting. Rows
// failing validation are recorded FAILED_FETCH and do not block the rest
// of the batch.
func (s *Orchestrator) IngestCSV(ctx context.Context, marketplace, sourceURL, raw string) (IngestSummary, error) {
	if marketplace == "" {
		marketplace = parser.DetectMarketplace(nil, sourceURL)
	}

	orders, err := parser.Parse(raw, s.mapping)
	if err != nil {
		return IngestSummary{Marketplace: marketplace}, fmt.Errorf("failed to parse export: %w", err)
	}

	summary := IngestSummary{Marketplace: marketplace, Parsed: len(orders)}
	accepted := make([]entities.Order, 0, len(orders))
	seen := make(map[string]bool, len(orders))
	for _, o := range orders {
		o.Marketplace = marketplace
		if o.OrderID != "" {
			if seen[o.OrderID] {
				summary.Rejected++
				summary.Issues = append(summary.Issues, RowIssue{
					OrderID: o.OrderID,
					Errors:  []validate.FieldError{{Field: "orderId", Message: "duplicate order id in batch"}},
				})
				continue
			}
			seen[o.OrderID] = true
		}
		if res := validate.Order(o); !res.OK() {
			summary.Rejected++
			summary.Issues = append(summary.Issues, RowIssue{OrderID: o.OrderID, Errors: res.Errors})
			if o.OrderID != "" {
				if err := s.trk.RecordFetchFailure(ctx, o.OrderID, issueMessage(res.Errors)); err != nil {
					s.logger.Warn("failed to record fetch failure",
						slog.String("order_id", o.OrderID), slog.Any("error", err))
				}
				s.cache.Remove(o.OrderID)
			}
			continue
		}
		accepted = append(accepted, o)
	}

	byID := make(map[string]entities.Order, len(accepted))
	for _, o := range accepted {
		byID[o.OrderID] = o
	}
	for _, outcome := range s.trk.RecordFetch(ctx, accepted) {
		if outcome.Err != nil {
			s.logger.Warn("failed to record fetch",
				slog.String("order_id", outcome.OrderID), slog.Any("error", outcome.Err))
			continue
		}
		s.cache.Remove(outcome.OrderID)
		summary.Accepted++
		s.mu.Lock()
		s.pending[outcome.OrderID] = byID[outcome.OrderID]
		s.mu.Unlock()
	}

	return summary, nil
}

type CarrierBreakdown struct {
	Orders    int    `json:"orders"`
	Shipments int    `json:"shipments"`
	Error     string `json:"error,omitempty"`
}

type LoadSummary struct {
	Ingest           IngestSummary               `json:"ingest"`
	ShipmentsCreated int                         `json:"shipments_created"`
	Breakdown        map[string]CarrierBreakdown `json:"carrier_breakdown"`
}

// LoadOrders is the main pipeline: fetch pending orders from the
// marketplace, normalize and validate them, then create shipments with
// the carrier selected per order.
func (s *Orchestrator) LoadOrders(ctx context.Context) (LoadSummary, error) {
	var raw, sourceURL string
	err := utils.Retry(retryConfig, func() error {
		var err error
		raw, sourceURL, err = s.marketplace.FetchOrders(ctx)
		return err
	}, context.Canceled, context.DeadlineExceeded)
	if err != nil {
		return LoadSummary{}, fmt.Errorf("failed to fetch orders: %w", err)
	}

	ingest, err := s.IngestCSV(ctx, "", sourceURL, raw)
	if err != nil {
		return LoadSummary{Ingest: ingest}, err
	}

	post, err := s.PostPending(ctx)
	if err != nil {
		return LoadSummary{Ingest: ingest}, err
	}

	return LoadSummary{
		Ingest:           ingest,
		ShipmentsCreated: post.ShipmentsCreated,
		Breakdown:        post.Breakdown,
	}, nil
}

type PostSummary struct {
	ShipmentsCreated int                         `json:"shipments_created"`
	Breakdown        map[string]CarrierBreakdown `json:"carrier_breakdown"`
}

// PostPending posts every queued order to its selected carrier. Carriers
// run concurrently; a failure on one carrier's batch is reported in the
// breakdown and never aborts the others.
func (s *Orchestrator) PostPending(ctx context.Context) (PostSummary, error) {
	s.mu.Lock()
	queued := make([]entities.Order, 0, len(s.pending))
	for _, o := range s.pending {
		queued = append(queued, o)
	}
	s.mu.Unlock()
	sort.Slice(queued, func(i, j int) bool { return queued[i].OrderID < queued[j].OrderID })

	// Consult the log before handing anything to a carrier. A re-ingested
	// export carries orders that already shipped; those leave the queue
	// without a second post.
	batch := make([]entities.Order, 0, len(queued))
	for _, o := range queued {
		rec, err := s.trk.Record(ctx, o.OrderID)
		switch {
		case errors.Is(err, entities.ErrOrderNotFound):
			batch = append(batch, o)
		case err != nil:
			s.logger.Warn("failed to read record before posting",
				slog.String("order_id", o.OrderID), slog.Any("error", err))
		case rec.InternalState == entities.StatePendingPost || rec.InternalState == entities.StateFailedPost:
			batch = append(batch, o)
		default:
			s.dropPending(o.OrderID)
		}
	}

	groups := make(map[string][]entities.Order)
	for _, o := range batch {
		code := carrier.Select(o)
		groups[code] = append(groups[code], o)
	}

	summary := PostSummary{Breakdown: make(map[string]CarrierBreakdown, len(groups))}
	var summaryMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for code, orders := range groups {
		code, orders := code, orders
		g.Go(func() error {
			breakdown := s.postGroup(gctx, code, orders)
			summaryMu.Lock()
			summary.Breakdown[code] = breakdown
			summary.ShipmentsCreated += breakdown.Shipments
			summaryMu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return summary, err
	}
	return summary, nil
}

func (s *Orchestrator) postGroup(ctx context.Context, code string, orders []entities.Order) CarrierBreakdown {
	breakdown := CarrierBreakdown{Orders: len(orders)}

	client, ok := s.carriers[code]
	if !ok {
		breakdown.Error = "no client configured for carrier " + code
		s.failGroup(ctx, code, orders, breakdown.Error)
		return breakdown
	}

	var results []clients.ShipmentResult
	err := utils.Retry(retryConfig, func() error {
		var err error
		results, err = client.CreateShipments(ctx, orders)
		return err
	}, context.Canceled, context.DeadlineExceeded)
	if err != nil {
		breakdown.Error = err.Error()
		s.failGroup(ctx, code, orders, err.Error())
		return breakdown
	}

	for _, res := range results {
		posted := res.Error == ""
		err := s.trk.RecordPostResult(ctx, tracker.PostResult{
			OrderID:        res.OrderID,
			OK:             posted,
			CarrierCode:    code,
			ExpeditionID:   res.ExpeditionID,
			TrackingNumber: res.TrackingNumber,
			Err:            res.Error,
		})
		s.cache.Remove(res.OrderID)
		if err != nil {
			if errors.Is(err, entities.ErrConflict) {
				s.dropPending(res.OrderID)
			}
			s.logger.Warn("failed to record post result",
				slog.String("order_id", res.OrderID), slog.Any("error", err))
			continue
		}
		if posted {
			breakdown.Shipments++
			s.dropPending(res.OrderID)
		}
	}
	return breakdown
}

// dropPending forgets a queued order. Called once its post succeeded or
// once the log shows its lifecycle already moved past posting.
func (s *Orchestrator) dropPending(orderID string) {
	s.mu.Lock()
	delete(s.pending, orderID)
	s.mu.Unlock()
}

func (s *Orchestrator) failGroup(ctx context.Context, code string, orders []entities.Order, reason string) {
	for _, o := range orders {
		err := s.trk.RecordPostResult(ctx, tracker.PostResult{
			OrderID:     o.OrderID,
			CarrierCode: code,
			Err:         reason,
		})
		s.cache.Remove(o.OrderID)
		if err != nil {
			if errors.Is(err, entities.ErrConflict) {
				s.dropPending(o.OrderID)
			}
			s.logger.Warn("failed to record post failure",
				slog.String("order_id", o.OrderID), slog.Any("error", err))
		}
	}
}

type StageSummary struct {
	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// PollTracking polls the carrier of every order still waiting for a
// tracking number and records the declared outcomes.
func (s *Orchestrator) PollTracking(ctx context.Context) (StageSummary, error) {
	var summary StageSummary

	// Snapshot the candidates before polling. Each poll moves its order
	// between the candidate states, so reading the states one at a time
	// would pick the same order up twice within one run.
	candidates, err := s.statesSnapshot(ctx,
		entities.StatePosted, entities.StateAwaitingTracking, entities.StateFailedTrack)
	if err != nil {
		return summary, err
	}

	for _, rec := range candidates {
		summary.Attempted++
		if s.pollOne(ctx, rec) {
			summary.Succeeded++
		} else {
			summary.Failed++
		}
	}
	return summary, nil
}

func (s *Orchestrator) statesSnapshot(ctx context.Context, states ...entities.InternalState) ([]entities.OrchestrationRecord, error) {
	var out []entities.OrchestrationRecord
	for _, state := range states {
		records, err := s.trk.CurrentView(ctx, tracker.ViewFilter{State: state})
		if err != nil {
			return nil, fmt.Errorf("failed to read current view: %w", err)
		}
		out = append(out, records...)
	}
	return out, nil
}

func (s *Orchestrator) pollOne(ctx context.Context, rec entities.OrchestrationRecord) bool {
	client, ok := s.carriers[rec.CarrierCode]
	if !ok {
		s.recordTracking(ctx, tracker.TrackingResult{
			OrderID: rec.OrderID,
			Err:     "no client configured for carrier " + rec.CarrierCode,
		})
		return false
	}

	info, err := client.Tracking(ctx, rec.ExpeditionID)
	if err != nil {
		s.recordTracking(ctx, tracker.TrackingResult{OrderID: rec.OrderID, Err: err.Error()})
		return false
	}
	s.recordTracking(ctx, tracker.TrackingResult{
		OrderID:        rec.OrderID,
		OK:             true,
		TrackingNumber: info.TrackingNumber,
		CarrierStatus:  info.CarrierStatus,
	})
	return true
}

func (s *Orchestrator) recordTracking(ctx context.Context, res tracker.TrackingResult) {
	if err := s.trk.RecordTrackingResult(ctx, res); err != nil {
		s.logger.Warn("failed to record tracking result",
			slog.String("order_id", res.OrderID), slog.Any("error", err))
	}
	s.cache.Remove(res.OrderID)
}

// PushTracking uploads the tracking number of every tracked order back to
// the marketplace and records the declared outcomes.
func (s *Orchestrator) PushTracking(ctx context.Context) (StageSummary, error) {
	var summary StageSummary

	// Snapshot first: a failed push lands in FAILED_PUSH, which is itself
	// a candidate state for the next run, not for this one.
	candidates, err := s.statesSnapshot(ctx, entities.StateTracked, entities.StateFailedPush)
	if err != nil {
		return summary, err
	}

	for _, rec := range candidates {
		summary.Attempted++

		err := utils.Retry(retryConfig, func() error {
			return s.marketplace.PushTracking(ctx, rec.OrderID, rec.TrackingNumber, rec.CarrierCode)
		}, context.Canceled, context.DeadlineExceeded)
		res := tracker.PushResult{OrderID: rec.OrderID, OK: err == nil}
		if err != nil {
			res.Err = err.Error()
			summary.Failed++
		} else {
			summary.Succeeded++
		}
		if err := s.trk.RecordPushResult(ctx, res); err != nil {
			s.logger.Warn("failed to record push result",
				slog.String("order_id", rec.OrderID), slog.Any("error", err))
		}
		s.cache.Remove(rec.OrderID)
	}
	return summary, nil
}

// GetRecord returns one derived record, cached until the next event for
// that order invalidates it.
func (s *Orchestrator) GetRecord(ctx context.Context, orderID string) (entities.OrchestrationRecord, error) {
	if data, ok := s.cache.Get(orderID); ok {
		var rec entities.OrchestrationRecord
		if err := rec.Unmarshal(data); err == nil {
			return rec, nil
		}
		s.cache.Remove(orderID)
	}

	rec, err := s.trk.Record(ctx, orderID)
	if err != nil {
		return entities.OrchestrationRecord{}, err
	}
	if data, err := rec.Marshal(); err == nil {
		s.cache.Set(orderID, data)
	}
	return rec, nil
}

func (s *Orchestrator) CurrentView(ctx context.Context, f tracker.ViewFilter) ([]entities.OrchestrationRecord, error) {
	return s.trk.CurrentView(ctx, f)
}

func (s *Orchestrator) Stats(ctx context.Context) (entities.OrchestrationStats, error) {
	return s.trk.Stats(ctx)
}

func (s *Orchestrator) ExportOperationsLog(ctx context.Context) (string, error) {
	return s.trk.ExportOperationsLog(ctx)
}

func (s *Orchestrator) ExportCurrentView(ctx context.Context) (string, error) {
	return s.trk.ExportCurrentView(ctx)
}

func issueMessage(errs []validate.FieldError) string {
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		parts = append(parts, e.String())
	}
	return strings.Join(parts, "; ")
}
