package professional

import (
	"io"
	"time"
)

// Profile is a professional's public and administrative data joined with
// the owning user account.
type Profile struct {
	UserID     string
	FirstName  string
	LastName   string
	Email      string
	Phone      *string
	IsActive   bool
	Trade      string
	Experience int
	Bio        *string
	HourlyRate *float64
	Location   string
	IsApproved bool
	ApprovedBy *string
	ApprovedAt *time.Time
	CreatedAt  time.Time
	Documents  []Document
}

// Document is an uploaded credential attached to a registration.
type Document struct {
	ID          string
	Filename    string
	StorageKey  string
	ContentType string
	SizeBytes   int64
	UploadedAt  time.Time
}

// Upload is a document received from a client and not yet stored.
type Upload struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

// Availability is what the request lifecycle needs to know about a
// professional before sending them work.
type Availability struct {
	Exists   bool
	Approved bool
	Active   bool
}

// Filter narrows the approved listing. Empty fields match everything.
type Filter struct {
	Trade    string
	Location string
}

type RegisterParams struct {
	UserID     string
	Trade      string
	Experience int
	Bio        *string
	HourlyRate *float64
	Location   string
	Uploads    []Upload
}

// UpdateParams changes only the non-nil fields.
type UpdateParams struct {
	Bio        *string
	HourlyRate *float64
	Location   *string
}

// CreateParams is the repository write model for a registration.
type CreateParams struct {
	UserID     string
	Trade      string
	Experience int
	Bio        *string
	HourlyRate *float64
	Location   string
	Documents  []Document
}
