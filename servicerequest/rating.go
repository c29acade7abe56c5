package servicerequest

import (
	"context"
	"errors"
	"strings"

	"fundiplus/rating"

	"golang.org/x/sync/errgroup"
)

// CanRate reports whether customerID may rate requestID now: the request is
// theirs, it is completed, and it has no rating yet.
func (m *Manager) CanRate(ctx context.Context, requestID, customerID string) (bool, error) {
	e, err := m.ratings.Eligibility(ctx, requestID, customerID)
	if err != nil {
		return false, m.infra(ctx, "rating eligibility", err)
	}
	return e.CanRate(), nil
}

// Rate records the customer's rating for a completed request. The ledger's
// uniqueness on the request decides concurrent attempts; exactly one wins.
func (m *Manager) Rate(ctx context.Context, p RateParams) (rating.Rating, error) {
	if p.Score < rating.MinScore || p.Score > rating.MaxScore {
		return rating.Rating{}, invalidInput("score must be between %d and %d", rating.MinScore, rating.MaxScore)
	}
	review := trimmedOrNil(p.Review)
	if review != nil && len([]rune(*review)) > rating.MaxReviewLength {
		return rating.Rating{}, invalidInput("review exceeds %d characters", rating.MaxReviewLength)
	}

	e, err := m.ratings.Eligibility(ctx, p.RequestID, p.CustomerID)
	if err != nil {
		return rating.Rating{}, m.infra(ctx, "rating eligibility", err)
	}
	switch {
	case !e.Found || !e.Owned || !e.Completed:
		return rating.Rating{}, ErrNotEligible
	case e.Rated:
		return rating.Rating{}, ErrAlreadyRated
	}

	r, err := m.ratings.Insert(ctx, rating.InsertParams{
		ID:         m.idGen(),
		RequestID:  p.RequestID,
		CustomerID: p.CustomerID,
		Score:      p.Score,
		Review:     review,
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyRated) || errors.Is(err, ErrNotEligible) {
			return rating.Rating{}, err
		}
		return rating.Rating{}, m.infra(ctx, "insert rating", err)
	}

	m.log.InfoContext(ctx, "service request rated",
		"request_id", r.RequestID, "professional_id", r.ProfessionalID, "score", r.Score)
	return r, nil
}

// RatingStats returns the professional's mean score and rating count.
func (m *Manager) RatingStats(ctx context.Context, professionalID string) (rating.Stats, error) {
	s, err := m.ratings.Stats(ctx, professionalID)
	if err != nil {
		return rating.Stats{}, m.infra(ctx, "rating stats", err)
	}
	return s, nil
}

// RatingSummary is a professional's ratings with their aggregate.
type RatingSummary struct {
	Ratings []rating.Rating
	Stats   rating.Stats
}

// ProfessionalRatings loads the rating list and the aggregate concurrently.
func (m *Manager) ProfessionalRatings(ctx context.Context, professionalID string) (RatingSummary, error) {
	if strings.TrimSpace(professionalID) == "" {
		return RatingSummary{}, invalidInput("professional is required")
	}

	var out RatingSummary
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		list, err := m.ratings.ListForProfessional(gctx, professionalID)
		out.Ratings = list
		return err
	})
	g.Go(func() error {
		s, err := m.ratings.Stats(gctx, professionalID)
		out.Stats = s
		return err
	})
	if err := g.Wait(); err != nil {
		return RatingSummary{}, m.infra(ctx, "professional ratings", err)
	}
	if out.Ratings == nil {
		out.Ratings = []rating.Rating{}
	}
	return out, nil
}
