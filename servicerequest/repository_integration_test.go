package servicerequest_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"fundiplus/professional"
	"fundiplus/rating"
	"fundiplus/servicerequest"
	"fundiplus/test/infra"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

type pgFixture struct {
	store   *servicerequest.PGStore
	manager *servicerequest.Manager
	pro     string
	cust    string
}

func newPGFixture(t *testing.T) (context.Context, pgFixture) {
	pool := infra.Postgres(t)
	ctx := context.Background()

	store := servicerequest.NewStore(pool)
	directory := professional.NewService(professional.NewRepository(pool), nil)
	m := servicerequest.NewManager(store, directory, rating.NewLedger(pool))

	return ctx, pgFixture{
		store:   store,
		manager: m,
		pro:     infra.SeedProfessional(t, ctx, pool, "Wanjiru", "plumbing", true),
		cust:    infra.SeedCustomer(t, ctx, pool, "Otieno"),
	}
}

func (f pgFixture) params() servicerequest.CreateParams {
	return servicerequest.CreateParams{
		CustomerID:     f.cust,
		ProfessionalID: f.pro,
		Trade:          "plumbing",
		Description:    "Replace the bathroom tap",
		PreferredDate:  time.Date(2025, 4, 2, 0, 0, 0, 0, time.UTC),
		Location:       servicerequest.Location{City: "Nairobi", ZipCode: "00100"},
	}
}

func TestPGLifecycle(t *testing.T) {
	ctx, f := newPGFixture(t)

	req, err := f.manager.Create(ctx, f.params())
	require.NoError(t, err)
	assert.Equal(t, servicerequest.StatusPending, req.Status)
	assert.Equal(t, "Otieno Test", req.CustomerName)
	assert.Equal(t, "00100", req.Location.ZipCode)

	quote := 120.5
	accepted, err := f.manager.Respond(ctx, servicerequest.RespondParams{
		RequestID: req.ID, ProfessionalID: f.pro, Decision: "accept", QuotedPrice: &quote,
	})
	require.NoError(t, err)
	require.NotNil(t, accepted.QuotedPrice)
	assert.InDelta(t, 120.5, *accepted.QuotedPrice, 0.001)

	done, err := f.manager.Complete(ctx, servicerequest.CompleteParams{RequestID: req.ID, ProfessionalID: f.pro})
	require.NoError(t, err)
	assert.Equal(t, servicerequest.StatusCompleted, done.Status)
	require.NotNil(t, done.FinalPrice)
	assert.InDelta(t, 120.5, *done.FinalPrice, 0.001)
	require.NotNil(t, done.CompletedAt)

	r, err := f.manager.Rate(ctx, servicerequest.RateParams{RequestID: req.ID, CustomerID: f.cust, Score: 4})
	require.NoError(t, err)
	assert.Equal(t, f.pro, r.ProfessionalID)

	_, err = f.manager.Rate(ctx, servicerequest.RateParams{RequestID: req.ID, CustomerID: f.cust, Score: 5})
	assert.ErrorIs(t, err, servicerequest.ErrAlreadyRated)

	stats, err := f.manager.RatingStats(ctx, f.pro)
	require.NoError(t, err)
	assert.Equal(t, rating.Stats{Average: 4, Total: 1}, stats)

	events, err := f.manager.Events(ctx, req.ID, f.cust)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Nil(t, events[0].From)
	assert.Equal(t, servicerequest.StatusPending, events[0].To)
	assert.Equal(t, servicerequest.StatusAccepted, events[1].To)
	assert.Equal(t, servicerequest.StatusCompleted, events[2].To)

	history, err := f.manager.ListHistory(ctx, f.pro)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, req.ID, history[0].ID)
}

func TestPGTransitionMisses(t *testing.T) {
	ctx, f := newPGFixture(t)
	req, err := f.manager.Create(ctx, f.params())
	require.NoError(t, err)

	_, err = f.manager.Respond(ctx, servicerequest.RespondParams{
		RequestID: "7d9f7a3c-6a53-4c0e-9d64-0a4e8f1f9a11", ProfessionalID: f.pro, Decision: "accept",
	})
	assert.ErrorIs(t, err, servicerequest.ErrNotFound)

	_, err = f.manager.Cancel(ctx, servicerequest.CancelParams{RequestID: req.ID, CustomerID: f.pro})
	assert.ErrorIs(t, err, servicerequest.ErrForbidden)

	_, err = f.manager.Cancel(ctx, servicerequest.CancelParams{RequestID: req.ID, CustomerID: f.cust})
	require.NoError(t, err)

	_, err = f.manager.Respond(ctx, servicerequest.RespondParams{RequestID: req.ID, ProfessionalID: f.pro, Decision: "accept"})
	var terr *servicerequest.TransitionError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, servicerequest.StatusCancelled, terr.Current)
}

func TestPGConcurrentCreateKeepsOnePending(t *testing.T) {
	ctx, f := newPGFixture(t)

	const racers = 8
	var (
		mu      sync.Mutex
		created int
	)
	var g errgroup.Group
	for i := 0; i < racers; i++ {
		g.Go(func() error {
			_, err := f.manager.Create(ctx, f.params())
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, servicerequest.ErrDuplicatePending):
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, 1, created)

	incoming, err := f.manager.ListIncoming(ctx, f.pro)
	require.NoError(t, err)
	assert.Len(t, incoming, 1)
}

func TestPGConcurrentRateHasOneWinner(t *testing.T) {
	ctx, f := newPGFixture(t)
	req, err := f.manager.Create(ctx, f.params())
	require.NoError(t, err)
	_, err = f.manager.Respond(ctx, servicerequest.RespondParams{RequestID: req.ID, ProfessionalID: f.pro, Decision: "accept"})
	require.NoError(t, err)
	_, err = f.manager.Complete(ctx, servicerequest.CompleteParams{RequestID: req.ID, ProfessionalID: f.pro})
	require.NoError(t, err)

	var (
		mu   sync.Mutex
		wins int
	)
	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			_, err := f.manager.Rate(ctx, servicerequest.RateParams{RequestID: req.ID, CustomerID: f.cust, Score: 3})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, servicerequest.ErrAlreadyRated):
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, 1, wins)
}

func TestPGTriggerRejectsTerminalRewrite(t *testing.T) {
	pool := infra.Postgres(t)
	ctx := context.Background()
	store := servicerequest.NewStore(pool)
	m := servicerequest.NewManager(store, professional.NewService(professional.NewRepository(pool), nil), rating.NewLedger(pool))
	pro := infra.SeedProfessional(t, ctx, pool, "Kamau", "electrical", true)
	cust := infra.SeedCustomer(t, ctx, pool, "Achieng")

	req, err := m.Create(ctx, servicerequest.CreateParams{
		CustomerID: cust, ProfessionalID: pro, Trade: "electrical",
		Description: "Fix the socket", PreferredDate: time.Now(),
	})
	require.NoError(t, err)
	_, err = m.Respond(ctx, servicerequest.RespondParams{RequestID: req.ID, ProfessionalID: pro, Decision: "deny"})
	require.NoError(t, err)

	_, err = pool.Exec(ctx, `UPDATE service_requests SET status = 'pending' WHERE id = $1`, req.ID)
	var pgErr *pgconn.PgError
	require.ErrorAs(t, err, &pgErr)
	assert.Equal(t, "P0001", pgErr.Code)

	_, err = pool.Exec(ctx, `DELETE FROM service_requests WHERE id = $1`, req.ID)
	require.ErrorAs(t, err, &pgErr)
}
