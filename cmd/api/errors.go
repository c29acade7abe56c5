package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"fundiplus/auth"
	"fundiplus/logger"
	"fundiplus/professional"
	"fundiplus/servicerequest"
	"fundiplus/storage"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

var errBadRequest = errors.New("bad request")

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type errorMapping struct {
	target error
	status int
	code   string
}

// errorMappings is checked in order with errors.Is.
var errorMappings = []errorMapping{
	{errBadRequest, http.StatusBadRequest, "invalid_input"},
	{servicerequest.ErrInvalidInput, http.StatusBadRequest, "invalid_input"},
	{professional.ErrInvalidProfile, http.StatusBadRequest, "invalid_input"},
	{auth.ErrWeakPassword, http.StatusBadRequest, "invalid_input"},
	{auth.ErrInvalidRegistration, http.StatusBadRequest, "invalid_input"},
	{storage.ErrInvalidKey, http.StatusBadRequest, "invalid_input"},

	{auth.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
	{auth.ErrInvalidToken, http.StatusUnauthorized, "unauthenticated"},

	{auth.ErrAccountDisabled, http.StatusForbidden, "account_disabled"},
	{servicerequest.ErrForbidden, http.StatusForbidden, "forbidden"},

	{servicerequest.ErrNotFound, http.StatusNotFound, "not_found"},
	{professional.ErrNotFound, http.StatusNotFound, "not_found"},
	{auth.ErrUserNotFound, http.StatusNotFound, "not_found"},
	{storage.ErrNotFound, http.StatusNotFound, "not_found"},

	{servicerequest.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{servicerequest.ErrDuplicatePending, http.StatusConflict, "duplicate_pending"},
	{servicerequest.ErrAlreadyRated, http.StatusConflict, "already_rated"},
	{professional.ErrAlreadyRegistered, http.StatusConflict, "already_registered"},
	{auth.ErrDuplicateEmail, http.StatusConflict, "duplicate_email"},

	{servicerequest.ErrNotApproved, http.StatusUnprocessableEntity, "not_approved"},
	{servicerequest.ErrNotEligible, http.StatusUnprocessableEntity, "not_eligible"},
}

// writeJSON encodes before writing the header; an unencodable payload is
// logged and answered with a 500.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		logger.Error("encode response", "status", status, "error", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error","code":"internal"}` + "\n"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(append(body, '\n')); err != nil {
		logger.Warn("write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: message, Code: code})
}

// writeServiceError maps a domain error to its HTTP status. Unknown errors are
// logged and reported as a generic 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			writeError(w, m.status, m.code, err.Error())
			return
		}
	}
	requestID, _ := r.Context().Value(ctxKeyRequestID).(string)
	logger.ErrorContext(r.Context(), "request failed", "request_id", requestID, "path", r.URL.Path, "error", err)
	writeError(w, http.StatusInternalServerError, "internal", "internal server error")
}

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return badRequest("request body is empty")
		}
		return badRequest("malformed JSON: %v", err)
	}
	return nil
}

// pathID returns the {id} route variable, which must be a UUID.
func pathID(r *http.Request) (string, error) {
	raw := mux.Vars(r)["id"]
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", badRequest("invalid id %q", raw)
	}
	return id.String(), nil
}
