package professional

import (
	"context"
	"fmt"
	"io"
	"math"
	"path"
	"strings"

	"fundiplus/logger"
	"fundiplus/storage"

	"github.com/google/uuid"
)

const (
	MaxDocuments = 5
	maxBioLength = 2000
)

var allowedDocumentExt = map[string]bool{
	".pdf":  true,
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".doc":  true,
	".docx": true,
}

// Service implements the professional directory: registration, public
// listing and the admin approval workflow.
type Service struct {
	repo  Repository
	docs  storage.DocumentStore
	idGen func() string
}

func NewService(repo Repository, docs storage.DocumentStore) *Service {
	return &Service{
		repo:  repo,
		docs:  docs,
		idGen: uuid.NewString,
	}
}

func (s *Service) WithIDGenerator(gen func() string) *Service {
	s.idGen = gen
	return s
}

// Lookup answers the availability question asked before a request is created.
func (s *Service) Lookup(ctx context.Context, professionalID string) (Availability, error) {
	return s.repo.Availability(ctx, professionalID)
}

// Register stores the uploaded documents and then the profile. Files written
// for a registration that fails to persist are removed again.
func (s *Service) Register(ctx context.Context, params RegisterParams) (Profile, error) {
	if err := validateRegistration(params); err != nil {
		return Profile{}, err
	}

	docs := make([]Document, 0, len(params.Uploads))
	discard := func() {
		for _, d := range docs {
			if err := s.docs.Delete(context.WithoutCancel(ctx), d.StorageKey); err != nil {
				logger.Warn("discard uploaded document", "key", d.StorageKey, "error", err)
			}
		}
	}

	for _, up := range params.Uploads {
		name := path.Base(strings.ReplaceAll(up.Filename, `\`, "/"))
		key := fmt.Sprintf("professionals/%s/%s%s", params.UserID, s.idGen(), strings.ToLower(path.Ext(name)))
		size, err := s.docs.Save(ctx, key, up.Body)
		if err != nil {
			discard()
			return Profile{}, fmt.Errorf("professional: store document %q: %w", name, err)
		}
		contentType := up.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		docs = append(docs, Document{
			Filename:    name,
			StorageKey:  key,
			ContentType: contentType,
			SizeBytes:   size,
		})
	}

	profile, err := s.repo.Create(ctx, CreateParams{
		UserID:     params.UserID,
		Trade:      strings.TrimSpace(params.Trade),
		Experience: params.Experience,
		Bio:        trimmed(params.Bio),
		HourlyRate: params.HourlyRate,
		Location:   strings.TrimSpace(params.Location),
		Documents:  docs,
	})
	if err != nil {
		discard()
		return Profile{}, err
	}

	logger.Info("professional registered", "user_id", params.UserID, "trade", profile.Trade, "documents", len(docs))
	return profile, nil
}

func (s *Service) Get(ctx context.Context, professionalID string) (Profile, error) {
	return s.repo.GetApproved(ctx, professionalID)
}

func (s *Service) ListApproved(ctx context.Context, filter Filter) ([]Profile, error) {
	return s.repo.ListApproved(ctx, filter)
}

func (s *Service) UpdateProfile(ctx context.Context, userID string, params UpdateParams) (Profile, error) {
	if !validRate(params.HourlyRate) {
		return Profile{}, fmt.Errorf("%w: hourly rate must be a non-negative number", ErrInvalidProfile)
	}
	if params.Bio != nil && len([]rune(*params.Bio)) > maxBioLength {
		return Profile{}, fmt.Errorf("%w: bio exceeds %d characters", ErrInvalidProfile, maxBioLength)
	}
	if params.Location != nil {
		l := strings.TrimSpace(*params.Location)
		params.Location = &l
	}
	return s.repo.Update(ctx, userID, params)
}

func (s *Service) ListPending(ctx context.Context) ([]Profile, error) {
	return s.repo.ListPending(ctx)
}

func (s *Service) Approve(ctx context.Context, professionalID, adminID string) (Profile, error) {
	profile, err := s.repo.Approve(ctx, professionalID, adminID)
	if err != nil {
		return Profile{}, err
	}
	logger.Info("professional approved", "user_id", professionalID, "admin_id", adminID)
	return profile, nil
}

// Reject deletes the registration and its stored documents.
func (s *Service) Reject(ctx context.Context, professionalID string) error {
	docs, err := s.repo.Reject(ctx, professionalID)
	if err != nil {
		return err
	}
	for _, d := range docs {
		if err := s.docs.Delete(ctx, d.StorageKey); err != nil {
			logger.Warn("delete rejected document", "key", d.StorageKey, "error", err)
		}
	}
	logger.Info("professional rejected", "user_id", professionalID, "documents", len(docs))
	return nil
}

// OpenDocument streams a stored document.
func (s *Service) OpenDocument(ctx context.Context, key string) (io.ReadCloser, error) {
	return s.docs.Open(ctx, key)
}

func validateRegistration(p RegisterParams) error {
	switch {
	case p.UserID == "":
		return fmt.Errorf("%w: missing user id", ErrInvalidProfile)
	case strings.TrimSpace(p.Trade) == "":
		return fmt.Errorf("%w: trade is required", ErrInvalidProfile)
	case p.Experience < 0:
		return fmt.Errorf("%w: experience must not be negative", ErrInvalidProfile)
	case !validRate(p.HourlyRate):
		return fmt.Errorf("%w: hourly rate must be a non-negative number", ErrInvalidProfile)
	case p.Bio != nil && len([]rune(*p.Bio)) > maxBioLength:
		return fmt.Errorf("%w: bio exceeds %d characters", ErrInvalidProfile, maxBioLength)
	case len(p.Uploads) > MaxDocuments:
		return fmt.Errorf("%w: at most %d documents", ErrInvalidProfile, MaxDocuments)
	}
	for _, up := range p.Uploads {
		ext := strings.ToLower(path.Ext(up.Filename))
		if !allowedDocumentExt[ext] {
			return fmt.Errorf("%w: unsupported document type %q", ErrInvalidProfile, up.Filename)
		}
		if up.Body == nil {
			return fmt.Errorf("%w: empty document %q", ErrInvalidProfile, up.Filename)
		}
	}
	return nil
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	if t == "" {
		return nil
	}
	return &t
}

// validRate rejects negative, NaN and infinite rates.
func validRate(r *float64) bool {
	return r == nil || (*r >= 0 && !math.IsInf(*r, 0) && !math.IsNaN(*r))
}
