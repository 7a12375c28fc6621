package entities

import (
	"bytes"
	"encoding/gob"
	"time"
)

// InternalState is the orchestration lifecycle stage of an order, distinct
// from marketplace or carrier-reported status strings.
type InternalState string

const (
	StatePendingPost      InternalState = "PENDING_POST"
	StatePosted           InternalState = "POSTED"
	StateAwaitingTracking InternalState = "AWAITING_TRACKING"
	StateTracked          InternalState = "TRACKED"
	StateMiraklOK         InternalState = "MIRAKL_OK"
	StateFailedFetch      InternalState = "FAILED_FETCH"
	StateFailedPost       InternalState = "FAILED_POST"
	StateFailedTrack      InternalState = "FAILED_TRACK"
	StateFailedPush       InternalState = "FAILED_PUSH"
)

// Stage names the four external collaborator calls whose outcomes the
// tracker records. The tracker itself performs no I/O.
type Stage string

const (
	StageFetch Stage = "fetch"
	StagePost  Stage = "post"
	StageTrack Stage = "track"
	StagePush  Stage = "push"
)

// OpEvent is one immutable entry of the append-only operations log.
// Seq is assigned by the store at append time and breaks timestamp ties
// during replay.
type OpEvent struct {
	ID        string
	Seq       int64
	OrderID   string
	Stage     Stage
	OK        bool
	Timestamp time.Time
	Detail    map[string]string
}

// Detail keys carried by OpEvent. The fold reads these to populate the
// derived record; unknown keys are preserved but ignored.
const (
	DetailMarketplace       = "marketplace"
	DetailMarketplaceStatus = "marketplace_status"
	DetailCarrierCode       = "carrier_code"
	DetailExpeditionID      = "expedition_id"
	DetailTrackingNumber    = "tracking_number"
	DetailCarrierStatus     = "carrier_status"
	DetailError             = "error"
	DetailMessage           = "message"
)

// OrchestrationRecord is the derived current-state projection for one order.
// It is always recomputed by folding that order's events, never stored.
type OrchestrationRecord struct {
	OrderID           string
	Marketplace       string
	MarketplaceStatus string
	CarrierCode       string
	ExpeditionID      string
	TrackingNumber    string
	CarrierStatus     string
	InternalState     InternalState
	TrackAttempts     int
	LastEvent         string
	LastEventAt       time.Time
	UpdatedAt         time.Time
	LastError         string
}

func (r *OrchestrationRecord) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (r *OrchestrationRecord) Unmarshal(data []byte) error {
	return gob.NewDecoder(bytes.NewBuffer(data)).Decode(r)
}

type OrchestrationStats struct {
	TotalOrders int
	ByState     map[InternalState]int
	ByCarrier   map[string]int
}
