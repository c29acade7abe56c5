package rating

import "time"

const (
	MinScore        = 1
	MaxScore        = 5
	MaxReviewLength = 1000
)

// Rating is a customer's score for one completed service request.
type Rating struct {
	ID             string
	RequestID      string
	CustomerID     string
	ProfessionalID string
	Score          int
	Review         *string
	RatedAt        time.Time

	// CustomerName is filled by listings only.
	CustomerName string
}

// Stats aggregates a professional's ratings. A professional without ratings
// has the zero value.
type Stats struct {
	Average float64
	Total   int
}

// Eligibility describes a request from the point of view of one customer who
// wants to rate it.
type Eligibility struct {
	Found     bool
	Owned     bool
	Completed bool
	Rated     bool
}

// CanRate reports whether a rating may be created.
func (e Eligibility) CanRate() bool {
	return e.Found && e.Owned && e.Completed && !e.Rated
}

// InsertParams holds the values for a new rating row.
type InsertParams struct {
	ID         string
	RequestID  string
	CustomerID string
	Score      int
	Review     *string
}
