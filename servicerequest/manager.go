package servicerequest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"fundiplus/logger"
	"fundiplus/professional"
	"fundiplus/rating"

	"github.com/google/uuid"
)

const (
	MaxDescriptionLength = 500
	maxReasonLength      = 500
)

// Store persists requests. Insert and Transition carry the atomicity
// guarantees: Insert fails with ErrDuplicatePending when the pair already has
// a pending request, and Transition is a compare-and-swap on the status that
// reports ErrNotFound, ErrForbidden or a *TransitionError when it does not apply.
type Store interface {
	Insert(ctx context.Context, req Request) (Request, error)
	HasPending(ctx context.Context, customerID, professionalID string) (bool, error)
	Get(ctx context.Context, requestID string) (Request, error)
	Transition(ctx context.Context, t Transition) (Request, error)
	ListByCustomer(ctx context.Context, customerID string) ([]Request, error)
	ListIncoming(ctx context.Context, professionalID string) ([]Request, error)
	ListHistory(ctx context.Context, professionalID string) ([]Request, error)
	Events(ctx context.Context, requestID string) ([]Event, error)
}

// Directory answers whether a professional may receive requests.
type Directory interface {
	Lookup(ctx context.Context, professionalID string) (professional.Availability, error)
}

// RatingLedger stores at most one rating per request.
type RatingLedger interface {
	Eligibility(ctx context.Context, requestID, customerID string) (rating.Eligibility, error)
	Insert(ctx context.Context, params rating.InsertParams) (rating.Rating, error)
	Stats(ctx context.Context, professionalID string) (rating.Stats, error)
	ListForProfessional(ctx context.Context, professionalID string) ([]rating.Rating, error)
}

// Manager runs the service request lifecycle.
type Manager struct {
	store     Store
	directory Directory
	ratings   RatingLedger
	idGen     func() string
	log       *slog.Logger
}

func NewManager(store Store, directory Directory, ratings RatingLedger) *Manager {
	return &Manager{
		store:     store,
		directory: directory,
		ratings:   ratings,
		idGen:     uuid.NewString,
		log:       logger.With("component", "servicerequest"),
	}
}

func (m *Manager) WithIDGenerator(gen func() string) *Manager {
	m.idGen = gen
	return m
}

// Create opens a pending request from a customer to an approved, active
// professional.
func (m *Manager) Create(ctx context.Context, p CreateParams) (Request, error) {
	if err := validateCreate(p); err != nil {
		return Request{}, err
	}

	avail, err := m.directory.Lookup(ctx, p.ProfessionalID)
	if err != nil {
		return Request{}, m.infra(ctx, "lookup professional", err)
	}
	if !avail.Exists || !avail.Active {
		return Request{}, fmt.Errorf("%w: professional %s", ErrNotFound, p.ProfessionalID)
	}
	if !avail.Approved {
		return Request{}, ErrNotApproved
	}

	dup, err := m.store.HasPending(ctx, p.CustomerID, p.ProfessionalID)
	if err != nil {
		return Request{}, m.infra(ctx, "check pending", err)
	}
	if dup {
		return Request{}, ErrDuplicatePending
	}

	created, err := m.store.Insert(ctx, Request{
		ID:             m.idGen(),
		CustomerID:     p.CustomerID,
		ProfessionalID: p.ProfessionalID,
		Trade:          strings.TrimSpace(p.Trade),
		Description:    strings.TrimSpace(p.Description),
		PreferredDate:  p.PreferredDate,
		PreferredTime:  trimmedOrNil(p.PreferredTime),
		Location:       p.Location,
		Status:         StatusPending,
	})
	if err != nil {
		if errors.Is(err, ErrDuplicatePending) {
			return Request{}, err
		}
		return Request{}, m.infra(ctx, "insert", err)
	}

	m.log.InfoContext(ctx, "service request created",
		"request_id", created.ID, "customer_id", created.CustomerID, "professional_id", created.ProfessionalID)
	return created, nil
}

// Respond accepts or denies a pending request addressed to the professional.
func (m *Manager) Respond(ctx context.Context, p RespondParams) (Request, error) {
	decision, ok := ParseDecision(p.Decision)
	var inputErr error
	switch {
	case !ok:
		inputErr = invalidInput("decision must be accept or deny, got %q", p.Decision)
	case !validPrice(p.QuotedPrice):
		inputErr = invalidInput("quoted price must be a non-negative number")
	}
	if inputErr != nil {
		// A request that has already left pending reports that first.
		if err := m.guard(ctx, p.RequestID, PartyProfessional, p.ProfessionalID, StatusPending, "respond to"); err != nil {
			return Request{}, err
		}
		return Request{}, inputErr
	}

	t := Transition{
		RequestID: p.RequestID,
		Actor:     PartyProfessional,
		ActorID:   p.ProfessionalID,
		From:      StatusPending,
		To:        decision.target(),
	}
	if decision == DecisionAccept {
		t.QuotedPrice = p.QuotedPrice
	}
	return m.apply(ctx, t)
}

// Complete closes an accepted request. The final price defaults to the quote
// and stays empty when neither is known.
func (m *Manager) Complete(ctx context.Context, p CompleteParams) (Request, error) {
	if !validPrice(p.FinalPrice) {
		if err := m.guard(ctx, p.RequestID, PartyProfessional, p.ProfessionalID, StatusAccepted, "complete"); err != nil {
			return Request{}, err
		}
		return Request{}, invalidInput("final price must be a non-negative number")
	}

	return m.apply(ctx, Transition{
		RequestID:  p.RequestID,
		Actor:      PartyProfessional,
		ActorID:    p.ProfessionalID,
		From:       StatusAccepted,
		To:         StatusCompleted,
		FinalPrice: p.FinalPrice,
	})
}

// Cancel withdraws a pending request on behalf of its customer.
func (m *Manager) Cancel(ctx context.Context, p CancelParams) (Request, error) {
	reason := trimmedOrNil(p.Reason)
	if reason != nil && len([]rune(*reason)) > maxReasonLength {
		if err := m.guard(ctx, p.RequestID, PartyCustomer, p.CustomerID, StatusPending, "cancel"); err != nil {
			return Request{}, err
		}
		return Request{}, invalidInput("cancellation reason exceeds %d characters", maxReasonLength)
	}

	return m.apply(ctx, Transition{
		RequestID: p.RequestID,
		Actor:     PartyCustomer,
		ActorID:   p.CustomerID,
		From:      StatusPending,
		To:        StatusCancelled,
		Reason:    reason,
	})
}

// Get returns a request to either of its parties.
func (m *Manager) Get(ctx context.Context, requestID, actorID string) (Request, error) {
	req, err := m.store.Get(ctx, requestID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Request{}, err
		}
		return Request{}, m.infra(ctx, "get", err)
	}
	if req.CustomerID != actorID && req.ProfessionalID != actorID {
		return Request{}, ErrForbidden
	}
	return req, nil
}

// Events returns the audit trail of a request to one of its two parties.
func (m *Manager) Events(ctx context.Context, requestID, actorID string) ([]Event, error) {
	if _, err := m.Get(ctx, requestID, actorID); err != nil {
		return nil, err
	}
	events, err := m.store.Events(ctx, requestID)
	if err != nil {
		return nil, m.infra(ctx, "events", err)
	}
	return events, nil
}

// ListForCustomer returns the customer's requests, newest first.
func (m *Manager) ListForCustomer(ctx context.Context, customerID string) ([]Request, error) {
	out, err := m.store.ListByCustomer(ctx, customerID)
	if err != nil {
		return nil, m.infra(ctx, "list for customer", err)
	}
	return out, nil
}

// ListIncoming returns requests awaiting the professional's answer, newest first.
func (m *Manager) ListIncoming(ctx context.Context, professionalID string) ([]Request, error) {
	out, err := m.store.ListIncoming(ctx, professionalID)
	if err != nil {
		return nil, m.infra(ctx, "list incoming", err)
	}
	return out, nil
}

// ListHistory returns every request that has left pending, most recently
// updated first.
func (m *Manager) ListHistory(ctx context.Context, professionalID string) ([]Request, error) {
	out, err := m.store.ListHistory(ctx, professionalID)
	if err != nil {
		return nil, m.infra(ctx, "list history", err)
	}
	return out, nil
}

func (m *Manager) apply(ctx context.Context, t Transition) (Request, error) {
	if !CanTransition(t.From, t.To) {
		return Request{}, fmt.Errorf("servicerequest: %s -> %s is not a lifecycle edge", t.From, t.To)
	}

	updated, err := m.store.Transition(ctx, t)
	if err != nil {
		var terr *TransitionError
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrForbidden) || errors.As(err, &terr) {
			return Request{}, err
		}
		return Request{}, m.infra(ctx, action(t.To), err)
	}

	m.log.InfoContext(ctx, "service request transitioned",
		"request_id", updated.ID, "from", t.From, "to", updated.Status, "actor_id", t.ActorID)
	return updated, nil
}

// guard reproduces the checks a transition from want would make, without
// changing anything.
func (m *Manager) guard(ctx context.Context, requestID string, actor Party, actorID string, want Status, verb string) error {
	req, err := m.store.Get(ctx, requestID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return m.infra(ctx, "get", err)
	}
	if owner(req, actor) != actorID {
		return ErrForbidden
	}
	if req.Status != want {
		return &TransitionError{RequestID: requestID, Action: verb, Current: req.Status}
	}
	return nil
}

func (m *Manager) infra(ctx context.Context, op string, err error) error {
	m.log.ErrorContext(ctx, "service request store failure", "op", op, "error", err)
	return fmt.Errorf("servicerequest: %s: %w", op, err)
}

func owner(req Request, actor Party) string {
	if actor == PartyCustomer {
		return req.CustomerID
	}
	return req.ProfessionalID
}

func validateCreate(p CreateParams) error {
	switch {
	case p.CustomerID == "" || p.ProfessionalID == "":
		return invalidInput("customer and professional are required")
	case p.CustomerID == p.ProfessionalID:
		return invalidInput("cannot request service from yourself")
	case strings.TrimSpace(p.Trade) == "":
		return invalidInput("trade is required")
	case strings.TrimSpace(p.Description) == "":
		return invalidInput("description is required")
	case len([]rune(strings.TrimSpace(p.Description))) > MaxDescriptionLength:
		return invalidInput("description exceeds %d characters", MaxDescriptionLength)
	case p.PreferredDate.IsZero():
		return invalidInput("preferred date is required")
	}
	return nil
}

func validPrice(p *float64) bool {
	return p == nil || (*p >= 0 && !math.IsInf(*p, 0) && !math.IsNaN(*p))
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	if t == "" {
		return nil
	}
	return &t
}
