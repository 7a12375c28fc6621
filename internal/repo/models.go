package repo

import (
	"database/sql"
	"encoding/json"
	"time"

	"mirakl-orchestrator/internal/entities"
)

type OpEvent struct {
	ID      string         `db:"id"`
	Seq     int64          `db:"seq"`
	OrderID string         `db:"order_id"`
	Stage   string         `db:"stage"`
	OK      bool           `db:"ok"`
	TS      time.Time      `db:"ts"`
	Detail  sql.NullString `db:"detail"`
}

func EventToEntity(ev OpEvent) (entities.OpEvent, error) {
	detail := map[string]string{}
	if ev.Detail.Valid && ev.Detail.String != "" {
		if err := json.Unmarshal([]byte(ev.Detail.String), &detail); err != nil {
			return entities.OpEvent{}, err
		}
	}
	return entities.OpEvent{
		ID:        ev.ID,
		Seq:       ev.Seq,
		OrderID:   ev.OrderID,
		Stage:     entities.Stage(ev.Stage),
		OK:        ev.OK,
		Timestamp: ev.TS,
		Detail:    detail,
	}, nil
}

func detailJSON(detail map[string]string) (sql.NullString, error) {
	if len(detail) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(detail)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}
