package main

import (
	"time"

	"fundiplus/auth"
	"fundiplus/professional"
	"fundiplus/rating"
	"fundiplus/servicerequest"
)

const dateLayout = "2006-01-02"

type userResponse struct {
	ID          string  `json:"id"`
	Email       string  `json:"email"`
	FirstName   string  `json:"firstName"`
	LastName    string  `json:"lastName"`
	PhoneNumber *string `json:"phoneNumber,omitempty"`
	Role        string  `json:"role"`
	IsActive    bool    `json:"isActive"`
	CreatedAt   string  `json:"createdAt"`
}

type authResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

type documentResponse struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	URL         string `json:"url"`
	ContentType string `json:"contentType"`
	SizeBytes   int64  `json:"sizeBytes"`
	UploadedAt  string `json:"uploadedAt"`
}

type statsResponse struct {
	AverageRating float64 `json:"averageRating"`
	TotalRatings  int     `json:"totalRatings"`
}

type professionalResponse struct {
	ID         string             `json:"id"`
	FirstName  string             `json:"firstName"`
	LastName   string             `json:"lastName"`
	Email      string             `json:"email,omitempty"`
	Phone      *string            `json:"phoneNumber,omitempty"`
	Trade      string             `json:"trade"`
	Experience int                `json:"experience"`
	Bio        *string            `json:"bio,omitempty"`
	HourlyRate *float64           `json:"hourlyRate,omitempty"`
	Location   string             `json:"location"`
	IsApproved bool               `json:"isApproved"`
	ApprovedAt *string            `json:"approvedAt,omitempty"`
	CreatedAt  string             `json:"createdAt"`
	Documents  []documentResponse `json:"documents,omitempty"`
	Rating     *statsResponse     `json:"rating,omitempty"`
}

type requestResponse struct {
	ID                 string                  `json:"id"`
	CustomerID         string                  `json:"customerId"`
	CustomerName       string                  `json:"customerName,omitempty"`
	ProfessionalID     string                  `json:"professionalId"`
	ProfessionalName   string                  `json:"professionalName,omitempty"`
	Trade              string                  `json:"trade"`
	Description        string                  `json:"description"`
	PreferredDate      string                  `json:"preferredDate"`
	PreferredTime      *string                 `json:"preferredTime,omitempty"`
	Location           servicerequest.Location `json:"location"`
	Status             string                  `json:"status"`
	QuotedPrice        *float64                `json:"quotedPrice"`
	FinalPrice         *float64                `json:"finalPrice"`
	CancellationReason *string                 `json:"cancellationReason,omitempty"`
	CreatedAt          string                  `json:"createdAt"`
	UpdatedAt          string                  `json:"updatedAt"`
	CompletedAt        *string                 `json:"completedAt,omitempty"`
	CancelledAt        *string                 `json:"cancelledAt,omitempty"`
}

type eventResponse struct {
	From      *string        `json:"from"`
	To        string         `json:"to"`
	ActorID   *string        `json:"actorId,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt string         `json:"createdAt"`
}

type ratingResponse struct {
	ID             string  `json:"id"`
	RequestID      string  `json:"requestId"`
	CustomerID     string  `json:"customerId"`
	CustomerName   string  `json:"customerName,omitempty"`
	ProfessionalID string  `json:"professionalId"`
	Score          int     `json:"score"`
	Review         *string `json:"review,omitempty"`
	RatedAt        string  `json:"ratedAt"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func toUserResponse(u auth.User) userResponse {
	return userResponse{
		ID:          u.ID,
		Email:       u.Email,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		PhoneNumber: u.Phone,
		Role:        string(u.Role),
		IsActive:    u.IsActive,
		CreatedAt:   formatTime(u.CreatedAt),
	}
}

func toStatsResponse(s rating.Stats) statsResponse {
	return statsResponse{AverageRating: s.Average, TotalRatings: s.Total}
}

// toProfessionalResponse leaves out contact email unless withEmail is set.
func toProfessionalResponse(p professional.Profile, withEmail bool) professionalResponse {
	resp := professionalResponse{
		ID:         p.UserID,
		FirstName:  p.FirstName,
		LastName:   p.LastName,
		Phone:      p.Phone,
		Trade:      p.Trade,
		Experience: p.Experience,
		Bio:        p.Bio,
		HourlyRate: p.HourlyRate,
		Location:   p.Location,
		IsApproved: p.IsApproved,
		ApprovedAt: formatTimePtr(p.ApprovedAt),
		CreatedAt:  formatTime(p.CreatedAt),
	}
	if withEmail {
		resp.Email = p.Email
	}
	for _, d := range p.Documents {
		resp.Documents = append(resp.Documents, documentResponse{
			ID:          d.ID,
			Filename:    d.Filename,
			URL:         "/uploads/" + d.StorageKey,
			ContentType: d.ContentType,
			SizeBytes:   d.SizeBytes,
			UploadedAt:  formatTime(d.UploadedAt),
		})
	}
	return resp
}

func toRequestResponse(req servicerequest.Request) requestResponse {
	return requestResponse{
		ID:                 req.ID,
		CustomerID:         req.CustomerID,
		CustomerName:       req.CustomerName,
		ProfessionalID:     req.ProfessionalID,
		ProfessionalName:   req.ProfessionalName,
		Trade:              req.Trade,
		Description:        req.Description,
		PreferredDate:      req.PreferredDate.Format(dateLayout),
		PreferredTime:      req.PreferredTime,
		Location:           req.Location,
		Status:             string(req.Status),
		QuotedPrice:        req.QuotedPrice,
		FinalPrice:         req.FinalPrice,
		CancellationReason: req.CancellationReason,
		CreatedAt:          formatTime(req.CreatedAt),
		UpdatedAt:          formatTime(req.UpdatedAt),
		CompletedAt:        formatTimePtr(req.CompletedAt),
		CancelledAt:        formatTimePtr(req.CancelledAt),
	}
}

func toEventResponse(e servicerequest.Event) eventResponse {
	var from *string
	if e.From != nil {
		f := string(*e.From)
		from = &f
	}
	return eventResponse{
		From:      from,
		To:        string(e.To),
		ActorID:   e.ActorID,
		Payload:   e.Payload,
		CreatedAt: formatTime(e.CreatedAt),
	}
}

func toRequestList(reqs []servicerequest.Request) []requestResponse {
	out := make([]requestResponse, 0, len(reqs))
	for _, req := range reqs {
		out = append(out, toRequestResponse(req))
	}
	return out
}

func toRatingResponse(r rating.Rating) ratingResponse {
	return ratingResponse{
		ID:             r.ID,
		RequestID:      r.RequestID,
		CustomerID:     r.CustomerID,
		CustomerName:   r.CustomerName,
		ProfessionalID: r.ProfessionalID,
		Score:          r.Score,
		Review:         r.Review,
		RatedAt:        formatTime(r.RatedAt),
	}
}
