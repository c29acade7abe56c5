package rating

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrAlreadyRated signals the request already carries a rating.
	ErrAlreadyRated = errors.New("rating: request already rated")
	// ErrNotEligible signals the request is unknown, not completed, or belongs to another customer.
	ErrNotEligible = errors.New("rating: request not eligible for rating")
)

// PGLedger stores ratings in PostgreSQL. The UNIQUE constraint on
// ratings.request_id is the authoritative one-rating-per-request guard.
type PGLedger struct {
	pool *pgxpool.Pool
}

func NewLedger(pool *pgxpool.Pool) *PGLedger {
	return &PGLedger{pool: pool}
}

// Eligibility reads the rating preconditions for requestID as seen by customerID.
func (l *PGLedger) Eligibility(ctx context.Context, requestID, customerID string) (Eligibility, error) {
	const query = `
		SELECT sr.customer_id = $2, sr.status = 'completed',
		       EXISTS (SELECT 1 FROM ratings r WHERE r.request_id = sr.id)
		FROM service_requests sr
		WHERE sr.id = $1
	`

	e := Eligibility{Found: true}
	err := l.pool.QueryRow(ctx, query, requestID, customerID).Scan(&e.Owned, &e.Completed, &e.Rated)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Eligibility{}, nil
		}
		return Eligibility{}, fmt.Errorf("rating: eligibility: %w", err)
	}
	return e, nil
}

// Insert creates the rating only if the request is completed and owned by the
// customer, in one statement. The professional is copied from the request.
func (l *PGLedger) Insert(ctx context.Context, params InsertParams) (Rating, error) {
	const query = `
		INSERT INTO ratings (id, request_id, customer_id, professional_id, score, review)
		SELECT $1::uuid, sr.id, sr.customer_id, sr.professional_id, $4::smallint, $5::text
		FROM service_requests sr
		WHERE sr.id = $2 AND sr.customer_id = $3 AND sr.status = 'completed'
		RETURNING id, request_id, customer_id, professional_id, score, review, rated_at
	`

	var r Rating
	err := l.pool.QueryRow(ctx, query, params.ID, params.RequestID, params.CustomerID, params.Score, params.Review).
		Scan(&r.ID, &r.RequestID, &r.CustomerID, &r.ProfessionalID, &r.Score, &r.Review, &r.RatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		switch {
		case errors.As(err, &pgErr) && pgErr.Code == "23505":
			return Rating{}, ErrAlreadyRated
		case errors.Is(err, pgx.ErrNoRows):
			return Rating{}, ErrNotEligible
		}
		return Rating{}, fmt.Errorf("rating: insert: %w", err)
	}
	return r, nil
}

// Stats returns the mean score and count for a professional.
func (l *PGLedger) Stats(ctx context.Context, professionalID string) (Stats, error) {
	const query = `
		SELECT COALESCE(AVG(score), 0)::float8, COUNT(*)
		FROM ratings
		WHERE professional_id = $1
	`

	var s Stats
	if err := l.pool.QueryRow(ctx, query, professionalID).Scan(&s.Average, &s.Total); err != nil {
		return Stats{}, fmt.Errorf("rating: stats: %w", err)
	}
	return s, nil
}

// ListForProfessional returns a professional's ratings, newest first.
func (l *PGLedger) ListForProfessional(ctx context.Context, professionalID string) ([]Rating, error) {
	const query = `
		SELECT r.id, r.request_id, r.customer_id, r.professional_id, r.score, r.review, r.rated_at,
		       trim(u.first_name || ' ' || u.last_name)
		FROM ratings r
		JOIN users u ON u.id = r.customer_id
		WHERE r.professional_id = $1
		ORDER BY r.rated_at DESC
	`

	rows, err := l.pool.Query(ctx, query, professionalID)
	if err != nil {
		return nil, fmt.Errorf("rating: list: %w", err)
	}
	defer rows.Close()

	out := make([]Rating, 0, 8)
	for rows.Next() {
		var r Rating
		if err := rows.Scan(&r.ID, &r.RequestID, &r.CustomerID, &r.ProfessionalID, &r.Score, &r.Review, &r.RatedAt, &r.CustomerName); err != nil {
			return nil, fmt.Errorf("rating: scan: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rating: iterate: %w", err)
	}
	return out, nil
}
