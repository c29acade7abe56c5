package main

import (
	"net/http"
	"strings"
	"time"

	"fundiplus/servicerequest"

	"github.com/google/uuid"
)

type createRequestBody struct {
	ProfessionalID string                  `json:"professionalId"`
	Trade          string                  `json:"trade"`
	Description    string                  `json:"description"`
	PreferredDate  string                  `json:"preferredDate"`
	PreferredTime  *string                 `json:"preferredTime"`
	Location       servicerequest.Location `json:"location"`
}

type respondBody struct {
	Status      string   `json:"status"`
	Decision    string   `json:"decision"`
	QuotedPrice *float64 `json:"quotedPrice"`
}

type completeBody struct {
	FinalPrice *float64 `json:"finalPrice"`
}

type cancelBody struct {
	Reason *string `json:"reason"`
}

func (s *Server) handleCreateRequest(w http.ResponseWriter, r *http.Request) {
	customerID, _ := principal(r)

	var body createRequestBody
	if err := decodeJSON(r, &body); err != nil {
		writeServiceError(w, r, err)
		return
	}
	proID, err := uuid.Parse(strings.TrimSpace(body.ProfessionalID))
	if err != nil {
		writeServiceError(w, r, badRequest("professionalId must be a valid id"))
		return
	}
	date, err := parseDate(body.PreferredDate)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	created, err := s.requestService.Create(r.Context(), servicerequest.CreateParams{
		CustomerID:     customerID,
		ProfessionalID: proID.String(),
		Trade:          body.Trade,
		Description:    body.Description,
		PreferredDate:  date,
		PreferredTime:  body.PreferredTime,
		Location:       body.Location,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRequestResponse(created))
}

func (s *Server) handleMyRequests(w http.ResponseWriter, r *http.Request) {
	customerID, _ := principal(r)
	reqs, err := s.requestService.ListForCustomer(r.Context(), customerID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": toRequestList(reqs)})
}

func (s *Server) handleIncoming(w http.ResponseWriter, r *http.Request) {
	professionalID, _ := principal(r)
	reqs, err := s.requestService.ListIncoming(r.Context(), professionalID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": toRequestList(reqs)})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	professionalID, _ := principal(r)
	reqs, err := s.requestService.ListHistory(r.Context(), professionalID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": toRequestList(reqs)})
}

func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	actorID, _ := principal(r)

	req, err := s.requestService.Get(r.Context(), id, actorID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestResponse(req))
}

func (s *Server) handleRequestEvents(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	actorID, _ := principal(r)

	events, err := s.requestService.Events(r.Context(), id, actorID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	items := make([]eventResponse, 0, len(events))
	for _, e := range events {
		items = append(items, toEventResponse(e))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleRespond(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	var body respondBody
	if err := decodeJSON(r, &body); err != nil {
		writeServiceError(w, r, err)
		return
	}
	decision := body.Decision
	if decision == "" {
		decision = body.Status
	}
	professionalID, _ := principal(r)

	updated, err := s.requestService.Respond(r.Context(), servicerequest.RespondParams{
		RequestID:      id,
		ProfessionalID: professionalID,
		Decision:       decision,
		QuotedPrice:    body.QuotedPrice,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestResponse(updated))
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	var body completeBody
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &body); err != nil {
			writeServiceError(w, r, err)
			return
		}
	}
	professionalID, _ := principal(r)

	updated, err := s.requestService.Complete(r.Context(), servicerequest.CompleteParams{
		RequestID:      id,
		ProfessionalID: professionalID,
		FinalPrice:     body.FinalPrice,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestResponse(updated))
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	var body cancelBody
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &body); err != nil {
			writeServiceError(w, r, err)
			return
		}
	}
	customerID, _ := principal(r)

	updated, err := s.requestService.Cancel(r.Context(), servicerequest.CancelParams{
		RequestID:  id,
		CustomerID: customerID,
		Reason:     body.Reason,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestResponse(updated))
}

// parseDate accepts a calendar date or a full RFC 3339 timestamp.
func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, badRequest("preferredDate is required")
	}
	if d, err := time.Parse(dateLayout, raw); err == nil {
		return d, nil
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		y, m, d := ts.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
	}
	return time.Time{}, badRequest("preferredDate must be YYYY-MM-DD")
}
