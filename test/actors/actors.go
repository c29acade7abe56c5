package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"fundiplus/servicerequest"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Pair is one customer and the professional they keep requesting.
type Pair struct {
	CustomerID     string
	ProfessionalID string
}

// expected reports errors that are a normal outcome of racing actors.
func expected(err error) bool {
	return err == nil ||
		errors.Is(err, servicerequest.ErrDuplicatePending) ||
		errors.Is(err, servicerequest.ErrInvalidTransition) ||
		errors.Is(err, servicerequest.ErrAlreadyRated) ||
		errors.Is(err, servicerequest.ErrNotEligible) ||
		errors.Is(err, context.Canceled)
}

func pause(lo, spread int) {
	time.Sleep(time.Duration(lo+rand.Intn(spread)) * time.Millisecond)
}

func stopped(ctx context.Context, stop <-chan struct{}) (bool, error) {
	select {
	case <-ctx.Done():
		return true, ctx.Err()
	case <-stop:
		return true, nil
	default:
		return false, nil
	}
}

// Requester keeps opening requests for the pair. Only one may be pending at a time.
func Requester(ctx context.Context, m *servicerequest.Manager, p Pair, stop <-chan struct{}) error {
	for {
		if done, err := stopped(ctx, stop); done {
			return err
		}
		_, err := m.Create(ctx, servicerequest.CreateParams{
			CustomerID:     p.CustomerID,
			ProfessionalID: p.ProfessionalID,
			Trade:          "plumbing",
			Description:    "stress request",
			PreferredDate:  time.Now().AddDate(0, 0, 3),
		})
		if !expected(err) {
			return fmt.Errorf("requester create: %w", err)
		}
		pause(5, 15)
	}
}

// Responder answers incoming requests, accepting or denying at random.
func Responder(ctx context.Context, m *servicerequest.Manager, professionalID string, stop <-chan struct{}) error {
	for {
		if done, err := stopped(ctx, stop); done {
			return err
		}
		incoming, err := m.ListIncoming(ctx, professionalID)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("responder list: %w", err)
		}
		for _, req := range incoming {
			decision := "accept"
			var quote *float64
			if rand.Intn(3) == 0 {
				decision = "deny"
			} else if rand.Intn(2) == 0 {
				q := float64(50 + rand.Intn(200))
				quote = &q
			}
			_, err := m.Respond(ctx, servicerequest.RespondParams{
				RequestID:      req.ID,
				ProfessionalID: professionalID,
				Decision:       decision,
				QuotedPrice:    quote,
			})
			if !expected(err) {
				return fmt.Errorf("responder respond: %w", err)
			}
		}
		pause(5, 20)
	}
}

// Canceller withdraws the customer's pending requests.
func Canceller(ctx context.Context, m *servicerequest.Manager, customerID string, stop <-chan struct{}) error {
	reason := "changed my mind"
	for {
		if done, err := stopped(ctx, stop); done {
			return err
		}
		mine, err := m.ListForCustomer(ctx, customerID)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("canceller list: %w", err)
		}
		for _, req := range mine {
			if req.Status != servicerequest.StatusPending || rand.Intn(2) == 0 {
				continue
			}
			_, err := m.Cancel(ctx, servicerequest.CancelParams{RequestID: req.ID, CustomerID: customerID, Reason: &reason})
			if !expected(err) {
				return fmt.Errorf("canceller cancel: %w", err)
			}
		}
		pause(10, 30)
	}
}

// Completer finishes accepted work.
func Completer(ctx context.Context, m *servicerequest.Manager, professionalID string, stop <-chan struct{}) error {
	for {
		if done, err := stopped(ctx, stop); done {
			return err
		}
		history, err := m.ListHistory(ctx, professionalID)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("completer list: %w", err)
		}
		for _, req := range history {
			if req.Status != servicerequest.StatusAccepted {
				continue
			}
			_, err := m.Complete(ctx, servicerequest.CompleteParams{RequestID: req.ID, ProfessionalID: professionalID})
			if !expected(err) {
				return fmt.Errorf("completer complete: %w", err)
			}
		}
		pause(10, 20)
	}
}

// Rater rates every completed request it sees. Several raters run per
// customer so each request is contended.
func Rater(ctx context.Context, m *servicerequest.Manager, customerID string, stop <-chan struct{}) error {
	for {
		if done, err := stopped(ctx, stop); done {
			return err
		}
		mine, err := m.ListForCustomer(ctx, customerID)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("rater list: %w", err)
		}
		for _, req := range mine {
			if req.Status != servicerequest.StatusCompleted {
				continue
			}
			_, err := m.Rate(ctx, servicerequest.RateParams{
				RequestID:  req.ID,
				CustomerID: customerID,
				Score:      1 + rand.Intn(5),
			})
			if !expected(err) {
				return fmt.Errorf("rater rate: %w", err)
			}
		}
		pause(10, 20)
	}
}

// Tamperer bypasses the application and tries to rewrite settled requests
// directly. The database must refuse every attempt.
func Tamperer(ctx context.Context, pool *pgxpool.Pool, stop <-chan struct{}) error {
	attempts := []string{
		`UPDATE service_requests SET status = 'pending' WHERE id = $1`,
		`UPDATE service_requests SET final_price = 1 WHERE id = $1`,
		`DELETE FROM service_requests WHERE id = $1`,
	}
	for {
		if done, err := stopped(ctx, stop); done {
			return err
		}
		var id string
		err := pool.QueryRow(ctx, `
			SELECT id FROM service_requests
			WHERE status IN ('denied', 'completed', 'cancelled')
			ORDER BY random() LIMIT 1
		`).Scan(&id)
		if err == nil {
			_, err = pool.Exec(ctx, attempts[rand.Intn(len(attempts))], id)
			if err == nil {
				return fmt.Errorf("tamperer: settled request %s was modified", id)
			}
			var pgErr *pgconn.PgError
			if !errors.As(err, &pgErr) && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("tamperer exec: %w", err)
			}
		}
		pause(50, 100)
	}
}
