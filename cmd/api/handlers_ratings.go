package main

import (
	"net/http"
	"strings"

	"fundiplus/servicerequest"

	"github.com/google/uuid"
)

type rateBody struct {
	RequestID string  `json:"requestId"`
	Score     int     `json:"score"`
	Review    *string `json:"review"`
}

func (s *Server) handleRate(w http.ResponseWriter, r *http.Request) {
	var body rateBody
	if err := decodeJSON(r, &body); err != nil {
		writeServiceError(w, r, err)
		return
	}
	requestID, err := uuid.Parse(strings.TrimSpace(body.RequestID))
	if err != nil {
		writeServiceError(w, r, badRequest("requestId must be a valid id"))
		return
	}
	customerID, _ := principal(r)

	created, err := s.requestService.Rate(r.Context(), servicerequest.RateParams{
		RequestID:  requestID.String(),
		CustomerID: customerID,
		Score:      body.Score,
		Review:     body.Review,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRatingResponse(created))
}

func (s *Server) handleCanRate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	customerID, _ := principal(r)

	ok, err := s.requestService.CanRate(r.Context(), id, customerID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"canRate": ok})
}

func (s *Server) handleProfessionalRatings(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	summary, err := s.requestService.ProfessionalRatings(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	items := make([]ratingResponse, 0, len(summary.Ratings))
	for _, rt := range summary.Ratings {
		items = append(items, toRatingResponse(rt))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"stats": toStatsResponse(summary.Stats),
	})
}
