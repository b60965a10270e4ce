package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists failed-login events.
type Repository interface {
	Append(ctx context.Context, event Event) error
	List(ctx context.Context, filter Filter) ([]Event, error)
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed event repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Append inserts an event.
func (r *PostgresRepository) Append(ctx context.Context, event Event) error {
	eventID, err := uuid.Parse(event.ID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO failed_login_events (id, user_id, session_id, reason, evidence, occurred_at)
        VALUES ($1, NULLIF($2, '')::uuid, NULLIF($3, ''), $4, $5, $6)`,
		eventID, event.UserID, event.SessionID, event.Reason, event.Evidence, event.OccurredAt.UTC())
	return err
}

// List returns matching events oldest first.
func (r *PostgresRepository) List(ctx context.Context, filter Filter) ([]Event, error) {
	const base = `SELECT id, COALESCE(user_id::text, ''), COALESCE(session_id, ''), reason, evidence, occurred_at
        FROM failed_login_events`
	query, args := base+` ORDER BY occurred_at, id`, []any{}
	switch {
	case filter.UserID != "":
		query, args = base+` WHERE user_id = $1::uuid ORDER BY occurred_at, id`, []any{filter.UserID}
	case filter.SessionID != "":
		query, args = base+` WHERE session_id = $1 ORDER BY occurred_at, id`, []any{filter.SessionID}
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			id         uuid.UUID
			occurredAt time.Time
			event      Event
		)
		if err := rows.Scan(&id, &event.UserID, &event.SessionID, &event.Reason, &event.Evidence, &occurredAt); err != nil {
			return nil, err
		}
		event.ID = id.String()
		event.OccurredAt = occurredAt.UTC()
		events = append(events, event)
	}
	return events, rows.Err()
}
