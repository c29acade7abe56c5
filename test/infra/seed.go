package infra

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SeedCustomer inserts an active customer and returns its id.
func SeedCustomer(t testing.TB, ctx context.Context, pool *pgxpool.Pool, name string) string {
	t.Helper()
	return seedUser(t, ctx, pool, name, "customer")
}

// SeedProfessional inserts an active professional with a details row.
func SeedProfessional(t testing.TB, ctx context.Context, pool *pgxpool.Pool, name, trade string, approved bool) string {
	t.Helper()
	id := seedUser(t, ctx, pool, name, "professional")
	_, err := pool.Exec(ctx, `
		INSERT INTO professional_details (user_id, trade, experience, location, is_approved, approved_at)
		VALUES ($1, $2, 3, 'Nairobi', $3, CASE WHEN $3 THEN now() END)
	`, id, trade, approved)
	if err != nil {
		t.Fatalf("seed professional details: %v", err)
	}
	return id
}

func seedUser(t testing.TB, ctx context.Context, pool *pgxpool.Pool, name, role string) string {
	t.Helper()
	id := uuid.NewString()
	email := fmt.Sprintf("%s-%s@example.com", name, id[:8])
	_, err := pool.Exec(ctx, `
		INSERT INTO users (id, email, first_name, last_name, password_hash, role)
		VALUES ($1, $2, $3, 'Test', 'x', $4)
	`, id, email, name, role)
	if err != nil {
		t.Fatalf("seed user %s: %v", name, err)
	}
	return id
}
