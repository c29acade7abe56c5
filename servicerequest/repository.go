package servicerequest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore implements Store on PostgreSQL. Every status change is a single
// conditional UPDATE; the partial unique index on pending pairs backs Insert.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

const pendingPairIndex = "service_requests_one_pending_per_pair"

// requestSelect reads a request row aliased sr together with party names.
const requestSelect = `
	SELECT sr.id, sr.customer_id, sr.professional_id, sr.trade, sr.description,
	       sr.preferred_date, sr.preferred_time, sr.location, sr.status,
	       sr.quoted_price::float8, sr.final_price::float8, sr.cancellation_reason,
	       sr.created_at, sr.updated_at, sr.completed_at, sr.cancelled_at,
	       trim(c.first_name || ' ' || c.last_name),
	       trim(p.first_name || ' ' || p.last_name)
	FROM sr
	JOIN users c ON c.id = sr.customer_id
	JOIN users p ON p.id = sr.professional_id
`

func (s *PGStore) Insert(ctx context.Context, req Request) (Request, error) {
	location, err := json.Marshal(req.Location)
	if err != nil {
		return Request{}, fmt.Errorf("servicerequest: marshal location: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Request{}, fmt.Errorf("servicerequest: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		WITH sr AS (
			INSERT INTO service_requests
				(id, customer_id, professional_id, trade, description, preferred_date, preferred_time, location, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'pending')
			RETURNING *
		)` + requestSelect

	created, err := scanRequest(tx.QueryRow(ctx, query,
		req.ID, req.CustomerID, req.ProfessionalID, req.Trade, req.Description,
		req.PreferredDate, req.PreferredTime, location))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == pendingPairIndex {
			return Request{}, ErrDuplicatePending
		}
		return Request{}, fmt.Errorf("servicerequest: insert: %w", err)
	}

	if err := appendEvent(ctx, tx, created.ID, "", StatusPending, created.CustomerID, nil); err != nil {
		return Request{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Request{}, fmt.Errorf("servicerequest: commit insert: %w", err)
	}
	return created, nil
}

func (s *PGStore) HasPending(ctx context.Context, customerID, professionalID string) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM service_requests
			WHERE customer_id = $1 AND professional_id = $2 AND status = 'pending'
		)
	`
	var exists bool
	if err := s.pool.QueryRow(ctx, query, customerID, professionalID).Scan(&exists); err != nil {
		return false, fmt.Errorf("servicerequest: has pending: %w", err)
	}
	return exists, nil
}

func (s *PGStore) Get(ctx context.Context, requestID string) (Request, error) {
	query := `WITH sr AS (SELECT * FROM service_requests WHERE id = $1)` + requestSelect
	req, err := scanRequest(s.pool.QueryRow(ctx, query, requestID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Request{}, ErrNotFound
		}
		return Request{}, fmt.Errorf("servicerequest: get: %w", err)
	}
	return req, nil
}

// Transition applies t as one compare-and-swap UPDATE and records the event in
// the same transaction. When no row matches, a follow-up read explains why.
func (s *PGStore) Transition(ctx context.Context, t Transition) (Request, error) {
	set, args, err := transitionSet(t)
	if err != nil {
		return Request{}, err
	}

	party := "professional_id"
	if t.Actor == PartyCustomer {
		party = "customer_id"
	}

	query := `
		WITH sr AS (
			UPDATE service_requests
			SET status = $4, updated_at = now()` + set + `
			WHERE id = $1 AND ` + party + ` = $2 AND status = $3
			RETURNING *
		)` + requestSelect

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Request{}, fmt.Errorf("servicerequest: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	base := []any{t.RequestID, t.ActorID, string(t.From), string(t.To)}
	updated, err := scanRequest(tx.QueryRow(ctx, query, append(base, args...)...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Request{}, s.explainMiss(ctx, tx, t)
		}
		return Request{}, fmt.Errorf("servicerequest: %s: %w", action(t.To), err)
	}

	payload := map[string]any{}
	switch t.To {
	case StatusAccepted:
		payload["quoted_price"] = updated.QuotedPrice
	case StatusCompleted:
		payload["final_price"] = updated.FinalPrice
	case StatusCancelled:
		if updated.CancellationReason != nil {
			payload["reason"] = *updated.CancellationReason
		}
	}
	if err := appendEvent(ctx, tx, updated.ID, t.From, t.To, t.ActorID, payload); err != nil {
		return Request{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Request{}, fmt.Errorf("servicerequest: commit %s: %w", action(t.To), err)
	}
	return updated, nil
}

// transitionSet returns the extra SET assignments for the target status and
// their arguments, numbered from $5.
func transitionSet(t Transition) (string, []any, error) {
	switch t.To {
	case StatusAccepted:
		return `, quoted_price = $5`, []any{t.QuotedPrice}, nil
	case StatusDenied:
		return ``, nil, nil
	case StatusCompleted:
		return `, final_price = COALESCE($5::numeric, quoted_price), completed_at = now()`, []any{t.FinalPrice}, nil
	case StatusCancelled:
		return `, cancelled_at = now(), cancellation_reason = $5`, []any{t.Reason}, nil
	}
	return "", nil, fmt.Errorf("servicerequest: no transition into %q", t.To)
}

func (s *PGStore) explainMiss(ctx context.Context, tx pgx.Tx, t Transition) error {
	var (
		status         Status
		customerID     string
		professionalID string
	)
	err := tx.QueryRow(ctx, `SELECT status, customer_id, professional_id FROM service_requests WHERE id = $1`, t.RequestID).
		Scan(&status, &customerID, &professionalID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("servicerequest: %s fetch: %w", action(t.To), err)
	}

	owner := professionalID
	if t.Actor == PartyCustomer {
		owner = customerID
	}
	if owner != t.ActorID {
		return ErrForbidden
	}
	return &TransitionError{RequestID: t.RequestID, Action: action(t.To), Current: status}
}

func (s *PGStore) ListByCustomer(ctx context.Context, customerID string) ([]Request, error) {
	query := `WITH sr AS (SELECT * FROM service_requests WHERE customer_id = $1)` +
		requestSelect + ` ORDER BY sr.created_at DESC, sr.id`
	return s.list(ctx, "list by customer", query, customerID)
}

func (s *PGStore) ListIncoming(ctx context.Context, professionalID string) ([]Request, error) {
	query := `WITH sr AS (SELECT * FROM service_requests WHERE professional_id = $1 AND status = 'pending')` +
		requestSelect + ` ORDER BY sr.created_at DESC, sr.id`
	return s.list(ctx, "list incoming", query, professionalID)
}

func (s *PGStore) ListHistory(ctx context.Context, professionalID string) ([]Request, error) {
	query := `WITH sr AS (SELECT * FROM service_requests WHERE professional_id = $1 AND status <> 'pending')` +
		requestSelect + ` ORDER BY sr.updated_at DESC, sr.id`
	return s.list(ctx, "list history", query, professionalID)
}

func (s *PGStore) list(ctx context.Context, op, query string, args ...any) ([]Request, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("servicerequest: %s: %w", op, err)
	}
	defer rows.Close()

	out := make([]Request, 0, 8)
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("servicerequest: %s scan: %w", op, err)
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("servicerequest: %s iterate: %w", op, err)
	}
	return out, nil
}

func scanRequest(row pgx.Row) (Request, error) {
	var (
		req      Request
		location []byte
	)
	err := row.Scan(
		&req.ID,
		&req.CustomerID,
		&req.ProfessionalID,
		&req.Trade,
		&req.Description,
		&req.PreferredDate,
		&req.PreferredTime,
		&location,
		&req.Status,
		&req.QuotedPrice,
		&req.FinalPrice,
		&req.CancellationReason,
		&req.CreatedAt,
		&req.UpdatedAt,
		&req.CompletedAt,
		&req.CancelledAt,
		&req.CustomerName,
		&req.ProfessionalName,
	)
	if err != nil {
		return Request{}, err
	}
	if len(location) > 0 {
		if err := json.Unmarshal(location, &req.Location); err != nil {
			return Request{}, fmt.Errorf("decode location: %w", err)
		}
	}
	return req, nil
}
