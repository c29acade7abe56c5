package servicerequest

import (
	"strings"
	"time"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusDenied    Status = "denied"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// transitions lists the legal next states. States without an entry are terminal.
var transitions = map[Status][]Status{
	StatusPending:  {StatusAccepted, StatusDenied, StatusCancelled},
	StatusAccepted: {StatusCompleted},
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusDenied, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

func (s Status) Terminal() bool {
	return s.Valid() && len(transitions[s]) == 0
}

// CanTransition reports whether from -> to is an edge of the lifecycle.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Decision is a professional's answer to a pending request.
type Decision string

const (
	DecisionAccept Decision = "accept"
	DecisionDeny   Decision = "deny"
)

// ParseDecision accepts both verb and status spellings ("accept"/"accepted").
func ParseDecision(s string) (Decision, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "accept", "accepted":
		return DecisionAccept, true
	case "deny", "denied":
		return DecisionDeny, true
	}
	return "", false
}

func (d Decision) target() Status {
	if d == DecisionAccept {
		return StatusAccepted
	}
	return StatusDenied
}

// Party identifies which side of a request acts on it.
type Party string

const (
	PartyCustomer     Party = "customer"
	PartyProfessional Party = "professional"
)

// Location is the service address. Every field is optional.
type Location struct {
	Street  string `json:"street,omitempty"`
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	ZipCode string `json:"zipCode,omitempty"`
}

// Request is a unit of work proposed by a customer to one professional.
type Request struct {
	ID                 string
	CustomerID         string
	ProfessionalID     string
	Trade              string
	Description        string
	PreferredDate      time.Time
	PreferredTime      *string
	Location           Location
	Status             Status
	QuotedPrice        *float64
	FinalPrice         *float64
	CancellationReason *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
	CompletedAt        *time.Time
	CancelledAt        *time.Time

	// Display names of both parties, filled on reads.
	CustomerName     string
	ProfessionalName string
}

type CreateParams struct {
	CustomerID     string
	ProfessionalID string
	Trade          string
	Description    string
	PreferredDate  time.Time
	PreferredTime  *string
	Location       Location
}

type RespondParams struct {
	RequestID      string
	ProfessionalID string
	Decision       string
	QuotedPrice    *float64
}

type CompleteParams struct {
	RequestID      string
	ProfessionalID string
	FinalPrice     *float64
}

type CancelParams struct {
	RequestID  string
	CustomerID string
	Reason     *string
}

type RateParams struct {
	RequestID  string
	CustomerID string
	Score      int
	Review     *string
}

// Transition is one guarded status change handed to the Store. The store
// applies it only if the request is still in From and ActorID is the party
// named by Actor.
type Transition struct {
	RequestID   string
	Actor       Party
	ActorID     string
	From        Status
	To          Status
	QuotedPrice *float64
	FinalPrice  *float64
	Reason      *string
}
