package main

import (
	"net/http"

	"fundiplus/auth"
)

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body auth.RegisterRequest
	if err := decodeJSON(r, &body); err != nil {
		writeServiceError(w, r, err)
		return
	}

	result, err := s.authService.Register(r.Context(), body)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, authResponse{Token: result.Token, User: toUserResponse(result.User)})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body auth.LoginRequest
	if err := decodeJSON(r, &body); err != nil {
		writeServiceError(w, r, err)
		return
	}

	result, err := s.authService.Login(r.Context(), body)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, authResponse{Token: result.Token, User: toUserResponse(result.User)})
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.authService.ListUsers(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	items := make([]userResponse, 0, len(users))
	for _, u := range users {
		items = append(items, toUserResponse(u))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": len(items)})
}

func (s *Server) handleToggleUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if adminID, _ := principal(r); adminID == id {
		writeError(w, http.StatusBadRequest, "invalid_input", "admins cannot deactivate themselves")
		return
	}

	user, err := s.authService.ToggleActive(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}
