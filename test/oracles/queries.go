package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Oracle is a query that must return no rows while the system is healthy.
type Oracle struct {
	Name string
	SQL  string
}

func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_one_pending_per_pair",
			SQL: `SELECT customer_id, professional_id, COUNT(*) FROM service_requests
                  WHERE status = 'pending'
                  GROUP BY customer_id, professional_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "O2_one_rating_per_request",
			SQL: `SELECT request_id, COUNT(*) FROM ratings
                  GROUP BY request_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "O3_rating_requires_completion",
			SQL: `SELECT r.id, sr.status FROM ratings r
                  JOIN service_requests sr ON sr.id = r.request_id
                  WHERE sr.status <> 'completed'
                     OR r.customer_id <> sr.customer_id
                     OR r.professional_id <> sr.professional_id
                     OR r.rated_at < sr.completed_at`,
		},
		{
			Name: "O4_completion_fields",
			SQL: `SELECT id, status FROM service_requests
                  WHERE (status = 'completed') <> (completed_at IS NOT NULL)
                     OR (final_price IS NOT NULL AND status <> 'completed')
                     OR (status = 'cancelled') <> (cancelled_at IS NOT NULL)`,
		},
		{
			Name: "O5_event_trail_matches_status",
			SQL: `WITH last AS (
                      SELECT DISTINCT ON (request_id) request_id, to_status
                      FROM request_events
                      ORDER BY request_id, id DESC)
                  SELECT sr.id, sr.status, last.to_status FROM service_requests sr
                  LEFT JOIN last ON last.request_id = sr.id
                  WHERE last.to_status IS DISTINCT FROM sr.status`,
		},
		{
			Name: "O6_event_edges_legal",
			SQL: `SELECT id, from_status, to_status FROM request_events
                  WHERE (from_status IS NULL AND to_status <> 'pending')
                     OR (from_status IS NOT NULL AND NOT service_request_validate_transition(from_status, to_status))`,
		},
		{
			Name: "O7_request_guards_installed",
			SQL: `SELECT 'missing_guard_trigger' AS detail
                  WHERE (SELECT COUNT(*) FROM pg_trigger
                         WHERE tgname IN ('guard_service_request_update', 'no_delete_service_requests')) < 2`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row text) or empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		has := rows.Next()
		if has {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
	}
	return "", "", nil
}
