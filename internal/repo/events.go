package repo

import (
	"context"
	"fmt"

	"mirakl-orchestrator/internal/entities"
	"mirakl-orchestrator/internal/tracker"
	"mirakl-orchestrator/pkg/trm"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
)

// eventStore persists the operations log in postgres. Seq comes from a
// bigserial column, so the replay order survives restarts.
type eventStore struct {
	db      *sqlx.DB
	qb      sq.StatementBuilderType
	manager trm.Manager
}

func NewEventStore(db *sqlx.DB, manager trm.Manager) *eventStore {
	return &eventStore{
		db:      db,
		qb:      sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		manager: manager,
	}
}

var _ tracker.Store = (*eventStore)(nil)

// Append writes a batch in one transaction so a crash cannot leave a
// partial batch in the log.
func (r *eventStore) Append(ctx context.Context, events ...*entities.OpEvent) error {
	if len(events) > 1 {
		return r.manager.Do(ctx, func(ctx context.Context) error {
			return r.appendAll(ctx, events)
		})
	}
	return r.appendAll(ctx, events)
}

func (r *eventStore) appendAll(ctx context.Context, events []*entities.OpEvent) error {
	for _, ev := range events {
		detail, err := detailJSON(ev.Detail)
		if err != nil {
			return fmt.Errorf("failed to marshal event detail: %w", err)
		}

		query, args := r.qb.Insert("op_events").
			Columns("id", "order_id", "stage", "ok", "ts", "detail").
			Values(ev.ID, ev.OrderID, string(ev.Stage), ev.OK, ev.Timestamp, detail).
			Suffix("RETURNING seq").
			MustSql()

		if err := r.getContext(ctx, &ev.Seq, query, args...); err != nil {
			return fmt.Errorf("failed to append event: %w", err)
		}
	}
	return nil
}

func (r *eventStore) Query(ctx context.Context, f tracker.Filter) ([]entities.OpEvent, error) {
	q := r.qb.Select("id", "seq", "order_id", "stage", "ok", "ts", "detail").
		From("op_events").
		OrderBy("ts ASC", "seq ASC")
	if f.OrderID != "" {
		q = q.Where(sq.Eq{"order_id": f.OrderID})
	}
	if f.Stage != "" {
		q = q.Where(sq.Eq{"stage": string(f.Stage)})
	}
	query, args := q.MustSql()

	var rows []OpEvent
	if err := r.selectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to select events: %w", err)
	}

	events := make([]entities.OpEvent, 0, len(rows))
	for _, row := range rows {
		ev, err := EventToEntity(row)
		if err != nil {
			return nil, fmt.Errorf("failed to decode event %s: %w", row.ID, err)
		}
		events = append(events, ev)
	}
	return events, nil
}

func (r *eventStore) Snapshot(ctx context.Context) ([]entities.OpEvent, error) {
	return r.Query(ctx, tracker.Filter{})
}

func (r *eventStore) getContext(ctx context.Context, dest any, query string, args ...any) error {
	if tx := trm.ExtractTx(ctx); tx != nil {
		return tx.GetContext(ctx, dest, query, args...)
	}
	return r.db.GetContext(ctx, dest, query, args...)
}

func (r *eventStore) selectContext(ctx context.Context, dest any, query string, args ...any) error {
	if tx := trm.ExtractTx(ctx); tx != nil {
		return tx.SelectContext(ctx, dest, query, args...)
	}
	return r.db.SelectContext(ctx, dest, query, args...)
}
