package servicerequest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Event is one row of a request's audit trail.
type Event struct {
	ID        int64
	RequestID string
	From      *Status
	To        Status
	ActorID   *string
	Payload   map[string]any
	CreatedAt time.Time
}

func appendEvent(ctx context.Context, tx pgx.Tx, requestID string, from, to Status, actorID string, payload map[string]any) error {
	if payload == nil {
		payload = map[string]any{}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("servicerequest: marshal event payload: %w", err)
	}

	var fromArg, actorArg any
	if from != "" {
		fromArg = string(from)
	}
	if actorID != "" {
		actorArg = actorID
	}

	const insertSQL = `
		INSERT INTO request_events (request_id, from_status, to_status, actor_id, payload)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := tx.Exec(ctx, insertSQL, requestID, fromArg, string(to), actorArg, body); err != nil {
		return fmt.Errorf("servicerequest: insert event: %w", err)
	}
	return nil
}

// Events returns the audit trail of a request in the order it happened.
func (s *PGStore) Events(ctx context.Context, requestID string) ([]Event, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, request_id, from_status, to_status, actor_id, payload, created_at
		FROM request_events
		WHERE request_id = $1
		ORDER BY id
	`, requestID)
	if err != nil {
		return nil, fmt.Errorf("servicerequest: list events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			e    Event
			body []byte
		)
		if err := rows.Scan(&e.ID, &e.RequestID, &e.From, &e.To, &e.ActorID, &body, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("servicerequest: scan event: %w", err)
		}
		if err := json.Unmarshal(body, &e.Payload); err != nil {
			return nil, fmt.Errorf("servicerequest: decode event payload: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("servicerequest: iterate events: %w", err)
	}
	return out, nil
}
