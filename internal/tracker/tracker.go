// Package tracker maintains the orchestration lifecycle of every order
// across the fetch, post, track and push stages. It performs no network
// I/O: external collaborators declare their outcomes and the tracker folds
// them into an append-only operations log. The log is the source of truth;
// every view is a rebuildable projection over it.
package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"mirakl-orchestrator/internal/csvio"
	"mirakl-orchestrator/internal/entities"

	"github.com/google/uuid"
)

// DefaultTrackAttempts is the poll budget before an order is parked in
// FAILED_TRACK. Re-invoking the track stage retries it.
const DefaultTrackAttempts = 5

type Tracker struct {
	logger        *slog.Logger
	store         Store
	trackAttempts int

	// keys serializes appends per order id so a tracking result can never
	// be folded ahead of the post result it depends on. Appends for
	// different orders proceed concurrently.
	keysMu sync.Mutex
	keys   map[string]*sync.Mutex
}

func New(logger *slog.Logger, store Store, trackAttempts int) *Tracker {
	if trackAttempts <= 0 {
		trackAttempts = DefaultTrackAttempts
	}
	return &Tracker{
		logger:        logger.With(slog.String("component", "tracker")),
		store:         store,
		trackAttempts: trackAttempts,
		keys:          make(map[string]*sync.Mutex),
	}
}

func (t *Tracker) lockOrder(orderID string) func() {
	t.keysMu.Lock()
	mu, ok := t.keys[orderID]
	if !ok {
		mu = &sync.Mutex{}
		t.keys[orderID] = mu
	}
	t.keysMu.Unlock()
	mu.Lock()
	return mu.Unlock
}

// PostResult is the declared outcome of posting one order to a carrier.
// TrackingNumber may already be present at post time.
type PostResult struct {
	OrderID        string
	OK             bool
	CarrierCode    string
	ExpeditionID   string
	TrackingNumber string
	Err            string
}

// TrackingResult is the declared outcome of one tracking poll.
type TrackingResult struct {
	OrderID        string
	OK             bool
	TrackingNumber string
	CarrierStatus  string
	Err            string
}

// PushResult is the declared outcome of pushing tracking back to the
// marketplace.
type PushResult struct {
	OrderID string
	OK      bool
	Err     string
}

// OrderOutcome reports the per-order result of a batch operation. An error
// on one order never blocks the rest of the batch.
type OrderOutcome struct {
	OrderID string
	Err     error
}

// RecordFetch registers a batch of fetched orders. First fetch of an order
// creates its record in PENDING_POST; fetching an order again refreshes
// its marketplace status without rewinding lifecycle progress. The whole
// batch lands in the log through one atomic append.
func (t *Tracker) RecordFetch(ctx context.Context, orders []entities.Order) []OrderOutcome {
	unlock := t.lockBatch(orders)
	defer unlock()

	outcomes := make([]OrderOutcome, len(orders))
	events := make([]*entities.OpEvent, 0, len(orders))
	appended := make([]int, 0, len(orders))
	for i, o := range orders {
		outcomes[i] = OrderOutcome{OrderID: o.OrderID}

		current, exists, err := t.fold(ctx, o.OrderID)
		if err != nil {
			outcomes[i].Err = fmt.Errorf("failed to fold order %s: %w", o.OrderID, err)
			continue
		}
		if err := checkTransition(o.OrderID, current, exists, entities.StageFetch); err != nil {
			outcomes[i].Err = err
			continue
		}

		events = append(events, &entities.OpEvent{
			ID:        uuid.NewString(),
			OrderID:   o.OrderID,
			Stage:     entities.StageFetch,
			OK:        true,
			Timestamp: time.Now().UTC(),
			Detail: map[string]string{
				entities.DetailMarketplace:       o.Marketplace,
				entities.DetailMarketplaceStatus: string(o.Status),
				entities.DetailMessage:           "order fetched",
			},
		})
		appended = append(appended, i)
	}

	if len(events) > 0 {
		if err := t.store.Append(ctx, events...); err != nil {
			err = fmt.Errorf("failed to append fetch events: %w", err)
			for _, i := range appended {
				outcomes[i].Err = err
			}
			return outcomes
		}
		t.logger.Debug("fetch batch recorded", slog.Int("events", len(events)))
	}
	return outcomes
}

// lockBatch takes the per-order locks of every distinct order in the
// batch, in id order so concurrent batches cannot deadlock each other.
func (t *Tracker) lockBatch(orders []entities.Order) func() {
	ids := make([]string, 0, len(orders))
	seen := make(map[string]bool, len(orders))
	for _, o := range orders {
		if !seen[o.OrderID] {
			seen[o.OrderID] = true
			ids = append(ids, o.OrderID)
		}
	}
	sort.Strings(ids)

	unlocks := make([]func(), 0, len(ids))
	for _, id := range ids {
		unlocks = append(unlocks, t.lockOrder(id))
	}
	return func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
}

// RecordFetchFailure marks one order FAILED_FETCH, e.g. when a fetched row
// failed canonical validation. Retryable by re-fetching.
func (t *Tracker) RecordFetchFailure(ctx context.Context, orderID, reason string) error {
	return t.append(ctx, &entities.OpEvent{
		OrderID: orderID,
		Stage:   entities.StageFetch,
		OK:      false,
		Detail: map[string]string{
			entities.DetailError: reason,
		},
	})
}

func (t *Tracker) RecordPostResult(ctx context.Context, res PostResult) error {
	detail := map[string]string{
		entities.DetailCarrierCode: res.CarrierCode,
	}
	if res.OK {
		detail[entities.DetailExpeditionID] = res.ExpeditionID
		if res.TrackingNumber != "" {
			detail[entities.DetailTrackingNumber] = res.TrackingNumber
		}
	} else {
		detail[entities.DetailError] = res.Err
	}
	return t.append(ctx, &entities.OpEvent{
		OrderID: res.OrderID,
		Stage:   entities.StagePost,
		OK:      res.OK,
		Detail:  detail,
	})
}

func (t *Tracker) RecordTrackingResult(ctx context.Context, res TrackingResult) error {
	detail := map[string]string{}
	if res.OK {
		if res.TrackingNumber != "" {
			detail[entities.DetailTrackingNumber] = res.TrackingNumber
		}
		if res.CarrierStatus != "" {
			detail[entities.DetailCarrierStatus] = res.CarrierStatus
		}
	} else {
		detail[entities.DetailError] = res.Err
	}
	return t.append(ctx, &entities.OpEvent{
		OrderID: res.OrderID,
		Stage:   entities.StageTrack,
		OK:      res.OK,
		Detail:  detail,
	})
}

func (t *Tracker) RecordPushResult(ctx context.Context, res PushResult) error {
	detail := map[string]string{}
	if !res.OK {
		detail[entities.DetailError] = res.Err
	}
	return t.append(ctx, &entities.OpEvent{
		OrderID: res.OrderID,
		Stage:   entities.StagePush,
		OK:      res.OK,
		Detail:  detail,
	})
}

// append validates the transition against the order's current state under
// its per-order lock, then appends exactly one immutable event.
func (t *Tracker) append(ctx context.Context, ev *entities.OpEvent) error {
	unlock := t.lockOrder(ev.OrderID)
	defer unlock()

	current, exists, err := t.fold(ctx, ev.OrderID)
	if err != nil {
		return fmt.Errorf("failed to fold order %s: %w", ev.OrderID, err)
	}
	if err := checkTransition(ev.OrderID, current, exists, ev.Stage); err != nil {
		return err
	}

	ev.ID = uuid.NewString()
	ev.Timestamp = time.Now().UTC()
	if err := t.store.Append(ctx, ev); err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}

	t.logger.Debug("event recorded",
		slog.String("order_id", ev.OrderID),
		slog.String("stage", string(ev.Stage)),
		slog.Bool("ok", ev.OK),
	)
	return nil
}

func (t *Tracker) fold(ctx context.Context, orderID string) (entities.OrchestrationRecord, bool, error) {
	events, err := t.store.Query(ctx, Filter{OrderID: orderID})
	if err != nil {
		return entities.OrchestrationRecord{}, false, err
	}
	if len(events) == 0 {
		return entities.OrchestrationRecord{}, false, nil
	}
	rec := entities.OrchestrationRecord{OrderID: orderID}
	for _, ev := range events {
		applyEvent(&rec, ev, t.trackAttempts)
	}
	return rec, true, nil
}

// checkTransition enforces the lifecycle machine at append time. The fold
// applies the same guards, so replaying the log reproduces the projection.
func checkTransition(orderID string, rec entities.OrchestrationRecord, exists bool, stage entities.Stage) error {
	if exists && rec.InternalState == entities.StateMiraklOK {
		return &entities.ConflictError{
			OrderID: orderID, Stage: stage, From: rec.InternalState,
			Reason: "order lifecycle is terminal",
		}
	}

	switch stage {
	case entities.StageFetch:
		return nil
	case entities.StagePost:
		if !exists {
			return &entities.ConflictError{OrderID: orderID, Stage: stage, Reason: "order was never fetched"}
		}
		if rec.InternalState != entities.StatePendingPost && rec.InternalState != entities.StateFailedPost {
			return &entities.ConflictError{OrderID: orderID, Stage: stage, From: rec.InternalState, Reason: "post requires PENDING_POST"}
		}
	case entities.StageTrack:
		if !exists {
			return &entities.ConflictError{OrderID: orderID, Stage: stage, Reason: "order was never fetched"}
		}
		switch rec.InternalState {
		case entities.StatePosted, entities.StateAwaitingTracking, entities.StateFailedTrack:
		default:
			return &entities.ConflictError{OrderID: orderID, Stage: stage, From: rec.InternalState, Reason: "tracking requires a posted order"}
		}
	case entities.StagePush:
		if !exists {
			return &entities.ConflictError{OrderID: orderID, Stage: stage, Reason: "order was never fetched"}
		}
		if rec.InternalState != entities.StateTracked && rec.InternalState != entities.StateFailedPush {
			return &entities.ConflictError{OrderID: orderID, Stage: stage, From: rec.InternalState, Reason: "push requires a tracked order"}
		}
	default:
		return &entities.ConflictError{OrderID: orderID, Stage: stage, Reason: "unknown stage"}
	}
	return nil
}

// applyEvent advances one record by one event, last-writer-wins per field
// while InternalState follows the explicit machine. Events not permitted
// by the machine are skipped, which keeps replay idempotent even against a
// log written by an older build.
func applyEvent(rec *entities.OrchestrationRecord, ev entities.OpEvent, trackBudget int) {
	if rec.InternalState == entities.StateMiraklOK {
		return
	}

	switch ev.Stage {
	case entities.StageFetch:
		if ev.OK {
			if mp := ev.Detail[entities.DetailMarketplace]; mp != "" {
				rec.Marketplace = mp
			}
			if ms := ev.Detail[entities.DetailMarketplaceStatus]; ms != "" {
				rec.MarketplaceStatus = ms
			}
			if rec.InternalState == "" || rec.InternalState == entities.StateFailedFetch {
				rec.InternalState = entities.StatePendingPost
				rec.LastError = ""
			}
		} else {
			rec.InternalState = entities.StateFailedFetch
			rec.LastError = ev.Detail[entities.DetailError]
		}

	case entities.StagePost:
		if rec.InternalState != entities.StatePendingPost && rec.InternalState != entities.StateFailedPost {
			return
		}
		if cc := ev.Detail[entities.DetailCarrierCode]; cc != "" {
			rec.CarrierCode = cc
		}
		if ev.OK {
			rec.ExpeditionID = ev.Detail[entities.DetailExpeditionID]
			rec.LastError = ""
			if tn := ev.Detail[entities.DetailTrackingNumber]; tn != "" {
				rec.TrackingNumber = tn
				rec.InternalState = entities.StateTracked
			} else {
				rec.InternalState = entities.StatePosted
			}
		} else {
			rec.InternalState = entities.StateFailedPost
			rec.LastError = ev.Detail[entities.DetailError]
		}

	case entities.StageTrack:
		switch rec.InternalState {
		case entities.StatePosted, entities.StateAwaitingTracking, entities.StateFailedTrack:
		default:
			return
		}
		if ev.OK {
			if cs := ev.Detail[entities.DetailCarrierStatus]; cs != "" {
				rec.CarrierStatus = cs
			}
			if tn := ev.Detail[entities.DetailTrackingNumber]; tn != "" {
				rec.TrackingNumber = tn
				rec.InternalState = entities.StateTracked
				rec.TrackAttempts = 0
				rec.LastError = ""
			} else {
				rec.InternalState = entities.StateAwaitingTracking
			}
		} else {
			rec.TrackAttempts++
			rec.LastError = ev.Detail[entities.DetailError]
			if rec.TrackAttempts >= trackBudget {
				rec.InternalState = entities.StateFailedTrack
			}
		}

	case entities.StagePush:
		if rec.InternalState != entities.StateTracked && rec.InternalState != entities.StateFailedPush {
			return
		}
		if ev.OK {
			rec.InternalState = entities.StateMiraklOK
			rec.LastError = ""
		} else {
			rec.InternalState = entities.StateFailedPush
			rec.LastError = ev.Detail[entities.DetailError]
		}
	}

	rec.LastEvent = lastEventLabel(ev)
	rec.LastEventAt = ev.Timestamp
	rec.UpdatedAt = ev.Timestamp
}

func lastEventLabel(ev entities.OpEvent) string {
	if ev.OK {
		return string(ev.Stage) + "_ok"
	}
	return string(ev.Stage) + "_failed"
}

// Project folds a complete event log into current-state records, ordered
// by first appearance. Pure function: replaying the same log any number of
// times produces identical output.
func Project(events []entities.OpEvent, trackBudget int) []entities.OrchestrationRecord {
	if trackBudget <= 0 {
		trackBudget = DefaultTrackAttempts
	}
	sortEvents(events)

	byOrder := make(map[string]*entities.OrchestrationRecord)
	var order []string
	for _, ev := range events {
		rec, ok := byOrder[ev.OrderID]
		if !ok {
			rec = &entities.OrchestrationRecord{OrderID: ev.OrderID}
			byOrder[ev.OrderID] = rec
			order = append(order, ev.OrderID)
		}
		applyEvent(rec, ev, trackBudget)
	}

	out := make([]entities.OrchestrationRecord, 0, len(order))
	for _, id := range order {
		out = append(out, *byOrder[id])
	}
	return out
}

// ViewFilter narrows the current-state view. Zero values match everything.
type ViewFilter struct {
	State   entities.InternalState
	Carrier string
}

// CurrentView returns the derived record of every order matching the
// filter. Pure projection over a consistent snapshot of the log.
func (t *Tracker) CurrentView(ctx context.Context, f ViewFilter) ([]entities.OrchestrationRecord, error) {
	events, err := t.store.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot log: %w", err)
	}

	records := Project(events, t.trackAttempts)
	out := make([]entities.OrchestrationRecord, 0, len(records))
	for _, rec := range records {
		if f.State != "" && rec.InternalState != f.State {
			continue
		}
		if f.Carrier != "" && rec.CarrierCode != f.Carrier {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// Record returns the derived record of one order.
func (t *Tracker) Record(ctx context.Context, orderID string) (entities.OrchestrationRecord, error) {
	rec, exists, err := func() (entities.OrchestrationRecord, bool, error) {
		unlock := t.lockOrder(orderID)
		defer unlock()
		return t.fold(ctx, orderID)
	}()
	if err != nil {
		return entities.OrchestrationRecord{}, err
	}
	if !exists {
		return entities.OrchestrationRecord{}, entities.ErrOrderNotFound
	}
	return rec, nil
}

// Stats aggregates the current view by state and carrier.
func (t *Tracker) Stats(ctx context.Context) (entities.OrchestrationStats, error) {
	records, err := t.CurrentView(ctx, ViewFilter{})
	if err != nil {
		return entities.OrchestrationStats{}, err
	}

	stats := entities.OrchestrationStats{
		TotalOrders: len(records),
		ByState:     make(map[entities.InternalState]int),
		ByCarrier:   make(map[string]int),
	}
	for _, rec := range records {
		stats.ByState[rec.InternalState]++
		if rec.CarrierCode != "" {
			stats.ByCarrier[rec.CarrierCode]++
		}
	}
	return stats, nil
}

// OperationsLogHeader is the column contract of operations.csv.
var OperationsLogHeader = []string{"ts", "action", "ok", "msg", "details_json"}

// ExportOperationsLog renders the raw event log as semicolon-delimited CSV.
func (t *Tracker) ExportOperationsLog(ctx context.Context) (string, error) {
	events, err := t.store.Snapshot(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to snapshot log: %w", err)
	}
	sortEvents(events)

	rows := make([][]string, 0, len(events))
	for _, ev := range events {
		msg := ev.Detail[entities.DetailMessage]
		if msg == "" {
			msg = ev.Detail[entities.DetailError]
		}
		details, err := json.Marshal(ev.Detail)
		if err != nil {
			return "", fmt.Errorf("failed to marshal event detail: %w", err)
		}
		rows = append(rows, []string{
			ev.Timestamp.UTC().Format(time.RFC3339Nano),
			string(ev.Stage),
			strconv.FormatBool(ev.OK),
			msg,
			string(details),
		})
	}
	return csvio.Export(OperationsLogHeader, rows, csvio.TIPSADelimiter)
}

// OrdersViewHeader is the column contract of orders-view.csv.
var OrdersViewHeader = []string{
	"mirakl_order_id", "marketplace", "carrier_code", "expedition_id",
	"tracking_number", "carrier_status", "internal_state", "track_attempts",
	"last_event", "last_event_at", "updated_at", "error_message",
}

// ExportCurrentView renders the derived projection as semicolon-delimited CSV.
func (t *Tracker) ExportCurrentView(ctx context.Context) (string, error) {
	records, err := t.CurrentView(ctx, ViewFilter{})
	if err != nil {
		return "", err
	}

	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		rows = append(rows, []string{
			rec.OrderID,
			rec.Marketplace,
			rec.CarrierCode,
			rec.ExpeditionID,
			rec.TrackingNumber,
			rec.CarrierStatus,
			string(rec.InternalState),
			strconv.Itoa(rec.TrackAttempts),
			rec.LastEvent,
			rec.LastEventAt.UTC().Format(time.RFC3339Nano),
			rec.UpdatedAt.UTC().Format(time.RFC3339Nano),
			rec.LastError,
		})
	}
	return csvio.Export(OrdersViewHeader, rows, csvio.TIPSADelimiter)
}
