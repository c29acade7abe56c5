package servicerequest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"fundiplus/professional"
	"fundiplus/rating"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

const (
	customerA   = "cust-a"
	customerB   = "cust-b"
	plumber     = "pro-plumber"
	unapproved  = "pro-unapproved"
	inactivePro = "pro-inactive"
)

type fixture struct {
	store   *memStore
	ledger  *memLedger
	manager *Manager
}

func newFixture() fixture {
	store := newMemStore()
	ledger := newMemLedger(store)
	dir := fakeDirectory{
		plumber:     {Exists: true, Approved: true, Active: true},
		unapproved:  {Exists: true, Approved: false, Active: true},
		inactivePro: {Exists: true, Approved: true, Active: false},
	}
	m := NewManager(store, dir, ledger).WithIDGenerator(sequentialIDs("req"))
	return fixture{store: store, ledger: ledger, manager: m}
}

func price(v float64) *float64 { return &v }

func text(s string) *string { return &s }

func createParams(customer, pro string) CreateParams {
	return CreateParams{
		CustomerID:     customer,
		ProfessionalID: pro,
		Trade:          "plumbing",
		Description:    "Kitchen sink leaks under the cabinet",
		PreferredDate:  time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		PreferredTime:  text("morning"),
		Location:       Location{Street: "12 Moi Ave", City: "Nairobi"},
	}
}

func (f fixture) create(t *testing.T, customer string) Request {
	t.Helper()
	req, err := f.manager.Create(context.Background(), createParams(customer, plumber))
	require.NoError(t, err)
	return req
}

func (f fixture) complete(t *testing.T, customer string, final *float64) Request {
	t.Helper()
	ctx := context.Background()
	req := f.create(t, customer)
	_, err := f.manager.Respond(ctx, RespondParams{RequestID: req.ID, ProfessionalID: plumber, Decision: "accept", QuotedPrice: price(150)})
	require.NoError(t, err)
	done, err := f.manager.Complete(ctx, CompleteParams{RequestID: req.ID, ProfessionalID: plumber, FinalPrice: final})
	require.NoError(t, err)
	return done
}

func TestCanTransition(t *testing.T) {
	legal := map[Status][]Status{
		StatusPending:  {StatusAccepted, StatusDenied, StatusCancelled},
		StatusAccepted: {StatusCompleted},
	}
	all := []Status{StatusPending, StatusAccepted, StatusDenied, StatusCompleted, StatusCancelled}
	for _, from := range all {
		for _, to := range all {
			want := false
			for _, next := range legal[from] {
				if next == to {
					want = true
				}
			}
			assert.Equal(t, want, CanTransition(from, to), "%s -> %s", from, to)
		}
	}

	assert.True(t, StatusDenied.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.False(t, StatusPending.Terminal())
	assert.False(t, Status("archived").Valid())
}

func TestParseDecision(t *testing.T) {
	for in, want := range map[string]Decision{"accept": DecisionAccept, "Accepted": DecisionAccept, " deny ": DecisionDeny, "denied": DecisionDeny} {
		got, ok := ParseDecision(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := ParseDecision("maybe")
	assert.False(t, ok)
}

func TestCreateStartsPending(t *testing.T) {
	f := newFixture()
	req := f.create(t, customerA)

	assert.Equal(t, "req-001", req.ID)
	assert.Equal(t, StatusPending, req.Status)
	assert.Nil(t, req.QuotedPrice)
	assert.Nil(t, req.FinalPrice)
	assert.Nil(t, req.CompletedAt)
	assert.Equal(t, "Nairobi", req.Location.City)
}

func TestCreateRejectsDuplicatePending(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	first := f.create(t, customerA)

	_, err := f.manager.Create(ctx, createParams(customerA, plumber))
	require.ErrorIs(t, err, ErrDuplicatePending)

	// Another customer is unaffected.
	f.create(t, customerB)

	// Once the first leaves pending the pair is free again.
	_, err = f.manager.Respond(ctx, RespondParams{RequestID: first.ID, ProfessionalID: plumber, Decision: "deny"})
	require.NoError(t, err)
	f.create(t, customerA)
}

func TestCreateChecksProfessional(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.manager.Create(ctx, createParams(customerA, unapproved))
	assert.ErrorIs(t, err, ErrNotApproved)

	_, err = f.manager.Create(ctx, createParams(customerA, inactivePro))
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.manager.Create(ctx, createParams(customerA, "pro-missing"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateValidatesInput(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	cases := map[string]func(*CreateParams){
		"self":           func(p *CreateParams) { p.ProfessionalID = p.CustomerID },
		"no trade":       func(p *CreateParams) { p.Trade = "  " },
		"no description": func(p *CreateParams) { p.Description = "" },
		"long":           func(p *CreateParams) { p.Description = strings.Repeat("x", MaxDescriptionLength+1) },
		"no date":        func(p *CreateParams) { p.PreferredDate = time.Time{} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			p := createParams(customerA, plumber)
			mutate(&p)
			_, err := f.manager.Create(ctx, p)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestAcceptThenCompleteThenRate(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	req := f.create(t, customerA)

	accepted, err := f.manager.Respond(ctx, RespondParams{RequestID: req.ID, ProfessionalID: plumber, Decision: "accept", QuotedPrice: price(150)})
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, accepted.Status)
	require.NotNil(t, accepted.QuotedPrice)
	assert.Equal(t, 150.0, *accepted.QuotedPrice)

	ok, err := f.manager.CanRate(ctx, req.ID, customerA)
	require.NoError(t, err)
	assert.False(t, ok)

	done, err := f.manager.Complete(ctx, CompleteParams{RequestID: req.ID, ProfessionalID: plumber, FinalPrice: price(175)})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)
	require.NotNil(t, done.CompletedAt)
	assert.Equal(t, 175.0, *done.FinalPrice)

	ok, err = f.manager.CanRate(ctx, req.ID, customerA)
	require.NoError(t, err)
	assert.True(t, ok)

	r, err := f.manager.Rate(ctx, RateParams{RequestID: req.ID, CustomerID: customerA, Score: 5, Review: text(" Great work ")})
	require.NoError(t, err)
	assert.Equal(t, plumber, r.ProfessionalID)
	assert.Equal(t, "Great work", *r.Review)

	ok, err = f.manager.CanRate(ctx, req.ID, customerA)
	require.NoError(t, err)
	assert.False(t, ok)

	stats, err := f.manager.RatingStats(ctx, plumber)
	require.NoError(t, err)
	assert.Equal(t, rating.Stats{Average: 5, Total: 1}, stats)
}

func TestCompleteDefaultsFinalPrice(t *testing.T) {
	f := newFixture()
	done := f.complete(t, customerA, nil)
	require.NotNil(t, done.FinalPrice)
	assert.Equal(t, 150.0, *done.FinalPrice)
}

func TestCompleteWithoutAnyPriceLeavesItEmpty(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	req := f.create(t, customerA)
	_, err := f.manager.Respond(ctx, RespondParams{RequestID: req.ID, ProfessionalID: plumber, Decision: "accept"})
	require.NoError(t, err)

	done, err := f.manager.Complete(ctx, CompleteParams{RequestID: req.ID, ProfessionalID: plumber})
	require.NoError(t, err)
	assert.Nil(t, done.QuotedPrice)
	assert.Nil(t, done.FinalPrice)
}

func TestDenyIgnoresQuote(t *testing.T) {
	f := newFixture()
	req := f.create(t, customerA)

	denied, err := f.manager.Respond(context.Background(), RespondParams{RequestID: req.ID, ProfessionalID: plumber, Decision: "deny", QuotedPrice: price(90)})
	require.NoError(t, err)
	assert.Equal(t, StatusDenied, denied.Status)
	assert.Nil(t, denied.QuotedPrice)
}

func TestCancelledRequestCannotBeAccepted(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	req := f.create(t, customerA)

	cancelled, err := f.manager.Cancel(ctx, CancelParams{RequestID: req.ID, CustomerID: customerA, Reason: text("found someone closer")})
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)
	assert.Equal(t, "found someone closer", *cancelled.CancellationReason)

	_, err = f.manager.Respond(ctx, RespondParams{RequestID: req.ID, ProfessionalID: plumber, Decision: "accept"})
	var terr *TransitionError
	require.ErrorAs(t, err, &terr)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, StatusCancelled, terr.Current)

	got, err := f.manager.Get(ctx, req.ID, customerA)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
}

func TestIllegalTransitions(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	req := f.create(t, customerA)

	_, err := f.manager.Complete(ctx, CompleteParams{RequestID: req.ID, ProfessionalID: plumber})
	assert.ErrorIs(t, err, ErrInvalidTransition, "pending cannot complete")

	_, err = f.manager.Respond(ctx, RespondParams{RequestID: req.ID, ProfessionalID: plumber, Decision: "accept"})
	require.NoError(t, err)

	_, err = f.manager.Cancel(ctx, CancelParams{RequestID: req.ID, CustomerID: customerA})
	assert.ErrorIs(t, err, ErrInvalidTransition, "accepted cannot be cancelled")

	_, err = f.manager.Respond(ctx, RespondParams{RequestID: req.ID, ProfessionalID: plumber, Decision: "deny"})
	assert.ErrorIs(t, err, ErrInvalidTransition, "accepted cannot be answered again")
}

func TestInvalidInputOnSettledRequestReportsTransition(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	req := f.create(t, customerA)
	_, err := f.manager.Respond(ctx, RespondParams{RequestID: req.ID, ProfessionalID: plumber, Decision: "deny"})
	require.NoError(t, err)

	_, err = f.manager.Respond(ctx, RespondParams{RequestID: req.ID, ProfessionalID: plumber, Decision: "maybe"})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	other := f.create(t, customerA)
	_, err = f.manager.Respond(ctx, RespondParams{RequestID: other.ID, ProfessionalID: plumber, Decision: "maybe"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.manager.Respond(ctx, RespondParams{RequestID: other.ID, ProfessionalID: plumber, Decision: "accept", QuotedPrice: price(-1)})
	assert.ErrorIs(t, err, ErrInvalidInput)

	got, err := f.manager.Get(ctx, other.ID, plumber)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
}

func TestNotFoundAndForbidden(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	req := f.create(t, customerA)

	_, err := f.manager.Respond(ctx, RespondParams{RequestID: "missing", ProfessionalID: plumber, Decision: "accept"})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.manager.Respond(ctx, RespondParams{RequestID: req.ID, ProfessionalID: "pro-other", Decision: "accept"})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.manager.Cancel(ctx, CancelParams{RequestID: req.ID, CustomerID: customerB})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.manager.Get(ctx, req.ID, customerB)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.manager.Get(ctx, "missing", customerA)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCancelReasonLimit(t *testing.T) {
	f := newFixture()
	req := f.create(t, customerA)

	_, err := f.manager.Cancel(context.Background(), CancelParams{
		RequestID:  req.ID,
		CustomerID: customerA,
		Reason:     text(strings.Repeat("r", maxReasonLength+1)),
	})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestRateRules(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	pending := f.create(t, customerB)
	done := f.complete(t, customerA, price(200))

	_, err := f.manager.Rate(ctx, RateParams{RequestID: done.ID, CustomerID: customerA, Score: 0})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = f.manager.Rate(ctx, RateParams{RequestID: done.ID, CustomerID: customerA, Score: 6})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = f.manager.Rate(ctx, RateParams{RequestID: done.ID, CustomerID: customerA, Score: 4, Review: text(strings.Repeat("a", rating.MaxReviewLength+1))})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.manager.Rate(ctx, RateParams{RequestID: pending.ID, CustomerID: customerB, Score: 4})
	assert.ErrorIs(t, err, ErrNotEligible, "not completed")
	_, err = f.manager.Rate(ctx, RateParams{RequestID: done.ID, CustomerID: customerB, Score: 4})
	assert.ErrorIs(t, err, ErrNotEligible, "not the owner")
	_, err = f.manager.Rate(ctx, RateParams{RequestID: "missing", CustomerID: customerA, Score: 4})
	assert.ErrorIs(t, err, ErrNotEligible, "unknown request")

	_, err = f.manager.Rate(ctx, RateParams{RequestID: done.ID, CustomerID: customerA, Score: 4})
	require.NoError(t, err)
	_, err = f.manager.Rate(ctx, RateParams{RequestID: done.ID, CustomerID: customerA, Score: 2})
	assert.ErrorIs(t, err, ErrAlreadyRated)
}

func TestRatingStatsWithoutRatings(t *testing.T) {
	f := newFixture()
	stats, err := f.manager.RatingStats(context.Background(), plumber)
	require.NoError(t, err)
	assert.Equal(t, rating.Stats{}, stats)

	summary, err := f.manager.ProfessionalRatings(context.Background(), plumber)
	require.NoError(t, err)
	assert.Empty(t, summary.Ratings)
	assert.NotNil(t, summary.Ratings)
}

func TestProfessionalRatingsAggregates(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	first := f.complete(t, customerA, nil)
	second := f.complete(t, customerB, nil)

	_, err := f.manager.Rate(ctx, RateParams{RequestID: first.ID, CustomerID: customerA, Score: 5})
	require.NoError(t, err)
	_, err = f.manager.Rate(ctx, RateParams{RequestID: second.ID, CustomerID: customerB, Score: 4})
	require.NoError(t, err)

	summary, err := f.manager.ProfessionalRatings(ctx, plumber)
	require.NoError(t, err)
	assert.Len(t, summary.Ratings, 2)
	assert.Equal(t, 2, summary.Stats.Total)
	assert.InDelta(t, 4.5, summary.Stats.Average, 1e-9)
}

func TestConcurrentRateHasOneWinner(t *testing.T) {
	f := newFixture()
	done := f.complete(t, customerA, nil)

	const attempts = 16
	var (
		mu        sync.Mutex
		wins      int
		duplicate int
	)
	var g errgroup.Group
	for i := 0; i < attempts; i++ {
		score := i%5 + 1
		g.Go(func() error {
			_, err := f.manager.Rate(context.Background(), RateParams{RequestID: done.ID, CustomerID: customerA, Score: score})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, ErrAlreadyRated):
				duplicate++
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, 1, wins)
	assert.Equal(t, attempts-1, duplicate)

	stats, err := f.manager.RatingStats(context.Background(), plumber)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)
}

func TestConcurrentRespondAndCancel(t *testing.T) {
	f := newFixture()
	req := f.create(t, customerA)

	var g errgroup.Group
	results := make([]error, 3)
	g.Go(func() error {
		_, results[0] = f.manager.Respond(context.Background(), RespondParams{RequestID: req.ID, ProfessionalID: plumber, Decision: "accept"})
		return nil
	})
	g.Go(func() error {
		_, results[1] = f.manager.Respond(context.Background(), RespondParams{RequestID: req.ID, ProfessionalID: plumber, Decision: "deny"})
		return nil
	})
	g.Go(func() error {
		_, results[2] = f.manager.Cancel(context.Background(), CancelParams{RequestID: req.ID, CustomerID: customerA})
		return nil
	})
	require.NoError(t, g.Wait())

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ErrInvalidTransition)
	}
	assert.Equal(t, 1, succeeded)
}

func TestListings(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	done := f.complete(t, customerA, nil)
	open := f.create(t, customerA)
	denied := f.create(t, customerB)
	_, err := f.manager.Respond(ctx, RespondParams{RequestID: denied.ID, ProfessionalID: plumber, Decision: "deny"})
	require.NoError(t, err)

	mine, err := f.manager.ListForCustomer(ctx, customerA)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, open.ID, mine[0].ID)
	assert.Equal(t, done.ID, mine[1].ID)

	incoming, err := f.manager.ListIncoming(ctx, plumber)
	require.NoError(t, err)
	require.Len(t, incoming, 1)
	assert.Equal(t, open.ID, incoming[0].ID)

	history, err := f.manager.ListHistory(ctx, plumber)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, denied.ID, history[0].ID)
	assert.Equal(t, done.ID, history[1].ID)
}

func TestEventsFollowTheLifecycle(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	req := f.complete(t, customerA, nil)

	events, err := f.manager.Events(ctx, req.ID, plumber)
	require.NoError(t, err)
	require.Len(t, events, 3)

	assert.Nil(t, events[0].From)
	assert.Equal(t, StatusPending, events[0].To)
	assert.Equal(t, customerA, *events[0].ActorID)
	assert.Equal(t, StatusPending, *events[1].From)
	assert.Equal(t, StatusAccepted, events[1].To)
	assert.Equal(t, StatusCompleted, events[2].To)
	assert.Equal(t, plumber, *events[2].ActorID)

	fromCustomer, err := f.manager.Events(ctx, req.ID, customerA)
	require.NoError(t, err)
	assert.Equal(t, events, fromCustomer)

	_, err = f.manager.Events(ctx, req.ID, customerB)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.manager.Events(ctx, "missing", customerA)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreFailureIsWrapped(t *testing.T) {
	f := newFixture()
	req := f.create(t, customerA)
	boom := errors.New("connection reset")
	f.store.failNext = boom

	_, err := f.manager.Respond(context.Background(), RespondParams{RequestID: req.ID, ProfessionalID: plumber, Decision: "accept"})
	require.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrInvalidTransition)
}

func TestScenarioApprovalThroughRating(t *testing.T) {
	store := newMemStore()
	dir := fakeDirectory{plumber: {Exists: true, Approved: false, Active: true}}
	m := NewManager(store, dir, newMemLedger(store)).WithIDGenerator(sequentialIDs("req"))
	ctx := context.Background()

	_, err := m.Create(ctx, createParams(customerA, plumber))
	require.ErrorIs(t, err, ErrNotApproved)

	dir[plumber] = professional.Availability{Exists: true, Approved: true, Active: true}

	req, err := m.Create(ctx, createParams(customerA, plumber))
	require.NoError(t, err)
	_, err = m.Respond(ctx, RespondParams{RequestID: req.ID, ProfessionalID: plumber, Decision: "accept", QuotedPrice: price(500)})
	require.NoError(t, err)
	done, err := m.Complete(ctx, CompleteParams{RequestID: req.ID, ProfessionalID: plumber})
	require.NoError(t, err)
	require.NotNil(t, done.FinalPrice)
	assert.Equal(t, 500.0, *done.FinalPrice)

	_, err = m.Rate(ctx, RateParams{RequestID: req.ID, CustomerID: customerA, Score: 5, Review: text("Great work")})
	require.NoError(t, err)
	_, err = m.Rate(ctx, RateParams{RequestID: req.ID, CustomerID: customerA, Score: 4})
	assert.ErrorIs(t, err, ErrAlreadyRated)
}
