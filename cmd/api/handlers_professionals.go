package main

import (
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path"
	"strconv"
	"strings"

	"fundiplus/professional"
	"fundiplus/storage"

	"github.com/gorilla/mux"
)

const defaultMaxUploadBytes = 10 << 20

func (s *Server) handleListProfessionals(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	profiles, err := s.professionalService.ListApproved(r.Context(), professional.Filter{
		Trade:    strings.TrimSpace(q.Get("trade")),
		Location: strings.TrimSpace(q.Get("location")),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	items := make([]professionalResponse, 0, len(profiles))
	for _, p := range profiles {
		items = append(items, toProfessionalResponse(p, false))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": len(items)})
}

func (s *Server) handleProfessional(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	profile, err := s.professionalService.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	stats, err := s.requestService.RatingStats(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	resp := toProfessionalResponse(profile, false)
	resp.Documents = nil
	st := toStatsResponse(stats)
	resp.Rating = &st
	writeJSON(w, http.StatusOK, resp)
}

// handleRegisterProfessional accepts multipart/form-data with profile fields
// and up to five "documents" files.
func (s *Server) handleRegisterProfessional(w http.ResponseWriter, r *http.Request) {
	userID, _ := principal(r)

	limit := s.maxUploadBytes
	if limit <= 0 {
		limit = defaultMaxUploadBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(limit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "too_large", "upload exceeds size limit")
			return
		}
		writeServiceError(w, r, badRequest("expected multipart form: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	params := professional.RegisterParams{
		UserID:   userID,
		Trade:    r.FormValue("trade"),
		Location: strings.TrimSpace(r.FormValue("location")),
		Bio:      optionalForm(r, "bio"),
	}
	if raw := strings.TrimSpace(r.FormValue("experience")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeServiceError(w, r, badRequest("experience must be a whole number of years"))
			return
		}
		params.Experience = n
	}
	if raw := strings.TrimSpace(r.FormValue("hourlyRate")); raw != "" {
		rate, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			writeServiceError(w, r, badRequest("hourlyRate must be a number"))
			return
		}
		params.HourlyRate = &rate
	}

	files := r.MultipartForm.File["documents"]
	if len(files) > professional.MaxDocuments {
		writeServiceError(w, r, badRequest("at most %d documents", professional.MaxDocuments))
		return
	}
	var opened []multipart.File
	defer func() {
		for _, f := range opened {
			f.Close()
		}
	}()
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			writeServiceError(w, r, badRequest("read document %q: %v", fh.Filename, err))
			return
		}
		opened = append(opened, f)
		params.Uploads = append(params.Uploads, professional.Upload{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Body:        f,
		})
	}

	profile, err := s.professionalService.Register(r.Context(), params)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProfessionalResponse(profile, true))
}

type updateProfileBody struct {
	Bio        *string  `json:"bio"`
	HourlyRate *float64 `json:"hourlyRate"`
	Location   *string  `json:"location"`
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, _ := principal(r)

	var body updateProfileBody
	if err := decodeJSON(r, &body); err != nil {
		writeServiceError(w, r, err)
		return
	}

	profile, err := s.professionalService.UpdateProfile(r.Context(), userID, professional.UpdateParams{
		Bio:        body.Bio,
		HourlyRate: body.HourlyRate,
		Location:   body.Location,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfessionalResponse(profile, true))
}

func (s *Server) handlePendingProfessionals(w http.ResponseWriter, r *http.Request) {
	profiles, err := s.professionalService.ListPending(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	items := make([]professionalResponse, 0, len(profiles))
	for _, p := range profiles {
		items = append(items, toProfessionalResponse(p, true))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": len(items)})
}

type reviewBody struct {
	Approve *bool `json:"approve"`
}

func (s *Server) handleReviewProfessional(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	var body reviewBody
	if err := decodeJSON(r, &body); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if body.Approve == nil {
		writeServiceError(w, r, badRequest("approve must be true or false"))
		return
	}

	if !*body.Approve {
		if err := s.professionalService.Reject(r.Context(), id); err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": id, "approved": false})
		return
	}

	adminID, _ := principal(r)
	profile, err := s.professionalService.Approve(r.Context(), id, adminID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfessionalResponse(profile, true))
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	rc, err := s.professionalService.OpenDocument(r.Context(), key)
	if err != nil {
		if errors.Is(err, storage.ErrInvalidKey) {
			writeError(w, http.StatusNotFound, "not_found", "document not found")
			return
		}
		writeServiceError(w, r, err)
		return
	}
	defer rc.Close()

	contentType := mime.TypeByExtension(path.Ext(key))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	_, _ = io.Copy(w, rc)
}

func optionalForm(r *http.Request, name string) *string {
	v := strings.TrimSpace(r.FormValue(name))
	if v == "" {
		return nil
	}
	return &v
}
