package main

import (
	"context"
	"io"
	"net/http"
	"time"

	"fundiplus/auth"
	"fundiplus/professional"
	"fundiplus/rating"
	"fundiplus/servicerequest"

	"github.com/gorilla/mux"
)

type authService interface {
	Register(ctx context.Context, req auth.RegisterRequest) (auth.LoginResult, error)
	Login(ctx context.Context, req auth.LoginRequest) (auth.LoginResult, error)
	Authenticate(ctx context.Context, token string) (auth.User, error)
	ListUsers(ctx context.Context) ([]auth.User, error)
	ToggleActive(ctx context.Context, userID string) (auth.User, error)
}

type professionalService interface {
	Register(ctx context.Context, params professional.RegisterParams) (professional.Profile, error)
	Get(ctx context.Context, professionalID string) (professional.Profile, error)
	ListApproved(ctx context.Context, filter professional.Filter) ([]professional.Profile, error)
	UpdateProfile(ctx context.Context, userID string, params professional.UpdateParams) (professional.Profile, error)
	ListPending(ctx context.Context) ([]professional.Profile, error)
	Approve(ctx context.Context, professionalID, adminID string) (professional.Profile, error)
	Reject(ctx context.Context, professionalID string) error
	OpenDocument(ctx context.Context, key string) (io.ReadCloser, error)
}

type requestService interface {
	Create(ctx context.Context, p servicerequest.CreateParams) (servicerequest.Request, error)
	Respond(ctx context.Context, p servicerequest.RespondParams) (servicerequest.Request, error)
	Complete(ctx context.Context, p servicerequest.CompleteParams) (servicerequest.Request, error)
	Cancel(ctx context.Context, p servicerequest.CancelParams) (servicerequest.Request, error)
	Get(ctx context.Context, requestID, actorID string) (servicerequest.Request, error)
	Events(ctx context.Context, requestID, actorID string) ([]servicerequest.Event, error)
	ListForCustomer(ctx context.Context, customerID string) ([]servicerequest.Request, error)
	ListIncoming(ctx context.Context, professionalID string) ([]servicerequest.Request, error)
	ListHistory(ctx context.Context, professionalID string) ([]servicerequest.Request, error)
	CanRate(ctx context.Context, requestID, customerID string) (bool, error)
	Rate(ctx context.Context, p servicerequest.RateParams) (rating.Rating, error)
	RatingStats(ctx context.Context, professionalID string) (rating.Stats, error)
	ProfessionalRatings(ctx context.Context, professionalID string) (servicerequest.RatingSummary, error)
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Server exposes the marketplace over HTTP.
type Server struct {
	authService         authService
	professionalService professionalService
	requestService      requestService
	db                  pinger

	maxUploadBytes int64
	requestTimeout time.Duration
}

func (s *Server) routes() http.Handler {
	r := mux.NewRouter()
	r.Use(s.accessLog)
	if s.requestTimeout > 0 {
		r.Use(s.timeout)
	}

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/uploads/{key:.+}", s.handleUpload).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/auth/register", s.handleRegister).Methods(http.MethodPost)
	api.HandleFunc("/auth/login", s.handleLogin).Methods(http.MethodPost)

	api.HandleFunc("/professionals", s.handleListProfessionals).Methods(http.MethodGet)
	api.Handle("/professionals/register", s.guard(s.handleRegisterProfessional)).Methods(http.MethodPost)
	api.Handle("/professionals/profile", s.guard(s.handleUpdateProfile, auth.RoleProfessional)).Methods(http.MethodPut)
	api.HandleFunc("/professionals/{id}", s.handleProfessional).Methods(http.MethodGet)

	api.Handle("/requests", s.guard(s.handleCreateRequest, auth.RoleCustomer)).Methods(http.MethodPost)
	api.Handle("/requests/my-requests", s.guard(s.handleMyRequests, auth.RoleCustomer)).Methods(http.MethodGet)
	api.Handle("/requests/incoming", s.guard(s.handleIncoming, auth.RoleProfessional)).Methods(http.MethodGet)
	api.Handle("/requests/history", s.guard(s.handleHistory, auth.RoleProfessional)).Methods(http.MethodGet)
	api.Handle("/requests/{id}", s.guard(s.handleRequest, auth.RoleCustomer, auth.RoleProfessional)).Methods(http.MethodGet)
	api.Handle("/requests/{id}/events", s.guard(s.handleRequestEvents, auth.RoleCustomer, auth.RoleProfessional)).Methods(http.MethodGet)
	api.Handle("/requests/{id}/respond", s.guard(s.handleRespond, auth.RoleProfessional)).Methods(http.MethodPut)
	api.Handle("/requests/{id}/complete", s.guard(s.handleComplete, auth.RoleProfessional)).Methods(http.MethodPut)
	api.Handle("/requests/{id}/cancel", s.guard(s.handleCancel, auth.RoleCustomer)).Methods(http.MethodPut)

	api.Handle("/ratings", s.guard(s.handleRate, auth.RoleCustomer)).Methods(http.MethodPost)
	api.Handle("/ratings/can-rate/{id}", s.guard(s.handleCanRate, auth.RoleCustomer)).Methods(http.MethodGet)
	api.HandleFunc("/ratings/professional/{id}", s.handleProfessionalRatings).Methods(http.MethodGet)

	api.Handle("/admin/professionals/pending", s.guard(s.handlePendingProfessionals, auth.RoleAdmin)).Methods(http.MethodGet)
	api.Handle("/admin/professionals/{id}/approve", s.guard(s.handleReviewProfessional, auth.RoleAdmin)).Methods(http.MethodPut)
	api.Handle("/admin/users", s.guard(s.handleListUsers, auth.RoleAdmin)).Methods(http.MethodGet)
	api.Handle("/admin/users/{id}/toggle-status", s.guard(s.handleToggleUser, auth.RoleAdmin)).Methods(http.MethodPut)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "route not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})
	return r
}

// guard authenticates the caller and, when roles are given, requires one of them.
func (s *Server) guard(h http.HandlerFunc, roles ...auth.Role) http.Handler {
	var next http.Handler = h
	if len(roles) > 0 {
		next = requireRoles(roles...)(next)
	}
	return s.authenticate(next)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		if err := s.db.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "unavailable", "database unreachable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
