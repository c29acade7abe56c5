package servicerequest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"fundiplus/professional"
	"fundiplus/rating"
)

// memStore mirrors PGStore's guarantees in memory: Insert enforces one pending
// request per pair and Transition is a compare-and-swap under a mutex.
type memStore struct {
	mu       sync.Mutex
	now      time.Time
	requests map[string]Request
	order    []string
	events   []Event
	failNext error
}

func newMemStore() *memStore {
	return &memStore{
		now:      time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
		requests: map[string]Request{},
	}
}

func (s *memStore) tick() time.Time {
	s.now = s.now.Add(time.Minute)
	return s.now
}

func (s *memStore) takeFailure() error {
	err := s.failNext
	s.failNext = nil
	return err
}

func (s *memStore) Insert(_ context.Context, req Request) (Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return Request{}, err
	}
	for _, r := range s.requests {
		if r.CustomerID == req.CustomerID && r.ProfessionalID == req.ProfessionalID && r.Status == StatusPending {
			return Request{}, ErrDuplicatePending
		}
	}
	ts := s.tick()
	req.CreatedAt, req.UpdatedAt = ts, ts
	s.requests[req.ID] = req
	s.order = append(s.order, req.ID)
	s.record(req.ID, "", StatusPending, req.CustomerID, ts)
	return req, nil
}

func (s *memStore) HasPending(_ context.Context, customerID, professionalID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.requests {
		if r.CustomerID == customerID && r.ProfessionalID == professionalID && r.Status == StatusPending {
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) Get(_ context.Context, requestID string) (Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return Request{}, err
	}
	r, ok := s.requests[requestID]
	if !ok {
		return Request{}, ErrNotFound
	}
	return r, nil
}

func (s *memStore) Transition(_ context.Context, t Transition) (Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return Request{}, err
	}
	r, ok := s.requests[t.RequestID]
	if !ok {
		return Request{}, ErrNotFound
	}
	if owner(r, t.Actor) != t.ActorID {
		return Request{}, ErrForbidden
	}
	if r.Status != t.From {
		return Request{}, &TransitionError{RequestID: r.ID, Action: action(t.To), Current: r.Status}
	}

	ts := s.tick()
	r.Status = t.To
	r.UpdatedAt = ts
	switch t.To {
	case StatusAccepted:
		r.QuotedPrice = t.QuotedPrice
	case StatusCompleted:
		r.FinalPrice = t.FinalPrice
		if r.FinalPrice == nil {
			r.FinalPrice = r.QuotedPrice
		}
		r.CompletedAt = &ts
	case StatusCancelled:
		r.CancellationReason = t.Reason
		r.CancelledAt = &ts
	}
	s.requests[r.ID] = r
	s.record(r.ID, t.From, t.To, t.ActorID, ts)
	return r, nil
}

func (s *memStore) record(requestID string, from, to Status, actorID string, at time.Time) {
	e := Event{ID: int64(len(s.events) + 1), RequestID: requestID, To: to, ActorID: &actorID, CreatedAt: at}
	if from != "" {
		e.From = &from
	}
	s.events = append(s.events, e)
}

func (s *memStore) Events(_ context.Context, requestID string) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return nil, err
	}
	var out []Event
	for _, e := range s.events {
		if e.RequestID == requestID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *memStore) ListByCustomer(_ context.Context, customerID string) ([]Request, error) {
	return s.filter(func(r Request) bool { return r.CustomerID == customerID }, byCreatedDesc), nil
}

func (s *memStore) ListIncoming(_ context.Context, professionalID string) ([]Request, error) {
	return s.filter(func(r Request) bool {
		return r.ProfessionalID == professionalID && r.Status == StatusPending
	}, byCreatedDesc), nil
}

func (s *memStore) ListHistory(_ context.Context, professionalID string) ([]Request, error) {
	return s.filter(func(r Request) bool {
		return r.ProfessionalID == professionalID && r.Status != StatusPending
	}, func(a, b Request) bool { return a.UpdatedAt.After(b.UpdatedAt) }), nil
}

func byCreatedDesc(a, b Request) bool { return a.CreatedAt.After(b.CreatedAt) }

func (s *memStore) filter(keep func(Request) bool, less func(a, b Request) bool) []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []Request{}
	for _, id := range s.order {
		if r := s.requests[id]; keep(r) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

// memLedger shares memStore's state the way the ratings table references
// service_requests.
type memLedger struct {
	store   *memStore
	mu      sync.Mutex
	ratings map[string]rating.Rating
}

func newMemLedger(store *memStore) *memLedger {
	return &memLedger{store: store, ratings: map[string]rating.Rating{}}
}

func (l *memLedger) Eligibility(_ context.Context, requestID, customerID string) (rating.Eligibility, error) {
	l.store.mu.Lock()
	r, ok := l.store.requests[requestID]
	l.store.mu.Unlock()
	if !ok {
		return rating.Eligibility{}, nil
	}
	l.mu.Lock()
	_, rated := l.ratings[requestID]
	l.mu.Unlock()
	return rating.Eligibility{
		Found:     true,
		Owned:     r.CustomerID == customerID,
		Completed: r.Status == StatusCompleted,
		Rated:     rated,
	}, nil
}

func (l *memLedger) Insert(_ context.Context, p rating.InsertParams) (rating.Rating, error) {
	l.store.mu.Lock()
	r, ok := l.store.requests[p.RequestID]
	l.store.mu.Unlock()
	if !ok || r.CustomerID != p.CustomerID || r.Status != StatusCompleted {
		return rating.Rating{}, rating.ErrNotEligible
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, dup := l.ratings[p.RequestID]; dup {
		return rating.Rating{}, rating.ErrAlreadyRated
	}
	out := rating.Rating{
		ID:             p.ID,
		RequestID:      p.RequestID,
		CustomerID:     p.CustomerID,
		ProfessionalID: r.ProfessionalID,
		Score:          p.Score,
		Review:         p.Review,
		RatedAt:        time.Date(2025, 3, 2, 0, len(l.ratings), 0, 0, time.UTC),
	}
	l.ratings[p.RequestID] = out
	return out, nil
}

func (l *memLedger) Stats(_ context.Context, professionalID string) (rating.Stats, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var st rating.Stats
	sum := 0
	for _, r := range l.ratings {
		if r.ProfessionalID == professionalID {
			st.Total++
			sum += r.Score
		}
	}
	if st.Total > 0 {
		st.Average = float64(sum) / float64(st.Total)
	}
	return st, nil
}

func (l *memLedger) ListForProfessional(_ context.Context, professionalID string) ([]rating.Rating, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []rating.Rating
	for _, r := range l.ratings {
		if r.ProfessionalID == professionalID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RatedAt.After(out[j].RatedAt) })
	return out, nil
}

type fakeDirectory map[string]professional.Availability

func (d fakeDirectory) Lookup(_ context.Context, id string) (professional.Availability, error) {
	return d[id], nil
}

func sequentialIDs(prefix string) func() string {
	var (
		mu sync.Mutex
		n  int
	)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%03d", prefix, n)
	}
}
