package professional

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound signals the professional profile (or its user) does not exist.
	ErrNotFound = errors.New("professional: not found")
	// ErrAlreadyRegistered signals the user already has a professional profile.
	ErrAlreadyRegistered = errors.New("professional: already registered")
	// ErrInvalidProfile signals malformed registration or update data.
	ErrInvalidProfile = errors.New("professional: invalid profile")
)

// Repository provides access to professional profiles.
type Repository interface {
	Availability(ctx context.Context, userID string) (Availability, error)
	Create(ctx context.Context, params CreateParams) (Profile, error)
	GetApproved(ctx context.Context, userID string) (Profile, error)
	ListApproved(ctx context.Context, filter Filter) ([]Profile, error)
	Update(ctx context.Context, userID string, params UpdateParams) (Profile, error)
	ListPending(ctx context.Context) ([]Profile, error)
	Approve(ctx context.Context, userID, adminID string) (Profile, error)
	Reject(ctx context.Context, userID string) ([]Document, error)
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository wires a pgxpool-backed repository implementation.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const profileSelect = `
	SELECT u.id, u.first_name, u.last_name, u.email, u.phone, u.is_active,
	       pd.trade, pd.experience, pd.bio, pd.hourly_rate::float8, pd.location,
	       pd.is_approved, pd.approved_by, pd.approved_at, pd.created_at
	FROM users u
	JOIN professional_details pd ON pd.user_id = u.id
`

// Availability reports whether userID is a professional and whether they can
// receive requests. Unknown users yield the zero value.
func (r *PGRepository) Availability(ctx context.Context, userID string) (Availability, error) {
	const query = `
		SELECT pd.is_approved, u.is_active
		FROM users u
		JOIN professional_details pd ON pd.user_id = u.id
		WHERE u.id = $1 AND u.role = 'professional'
	`

	a := Availability{Exists: true}
	if err := r.pool.QueryRow(ctx, query, userID).Scan(&a.Approved, &a.Active); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Availability{}, nil
		}
		return Availability{}, fmt.Errorf("professional: availability: %w", err)
	}
	return a, nil
}

// Create stores the profile and its documents and promotes the user to the
// professional role in one transaction.
func (r *PGRepository) Create(ctx context.Context, params CreateParams) (Profile, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Profile{}, fmt.Errorf("professional: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var role string
	if err := tx.QueryRow(ctx, `SELECT role FROM users WHERE id = $1 FOR UPDATE`, params.UserID).Scan(&role); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Profile{}, ErrNotFound
		}
		return Profile{}, fmt.Errorf("professional: lock user: %w", err)
	}
	if role == "admin" {
		return Profile{}, fmt.Errorf("%w: administrators cannot register as professionals", ErrInvalidProfile)
	}

	const insertSQL = `
		INSERT INTO professional_details (user_id, trade, experience, bio, hourly_rate, location)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := tx.Exec(ctx, insertSQL, params.UserID, params.Trade, params.Experience, params.Bio, params.HourlyRate, params.Location); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Profile{}, ErrAlreadyRegistered
		}
		return Profile{}, fmt.Errorf("professional: insert details: %w", err)
	}

	const docSQL = `
		INSERT INTO professional_documents (professional_id, filename, storage_key, content_type, size_bytes)
		VALUES ($1, $2, $3, $4, $5)
	`
	for _, d := range params.Documents {
		if _, err := tx.Exec(ctx, docSQL, params.UserID, d.Filename, d.StorageKey, d.ContentType, d.SizeBytes); err != nil {
			return Profile{}, fmt.Errorf("professional: insert document: %w", err)
		}
	}

	if _, err := tx.Exec(ctx, `UPDATE users SET role = 'professional', updated_at = now() WHERE id = $1`, params.UserID); err != nil {
		return Profile{}, fmt.Errorf("professional: promote user: %w", err)
	}

	profile, err := getProfile(ctx, tx, params.UserID, false)
	if err != nil {
		return Profile{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Profile{}, fmt.Errorf("professional: commit registration: %w", err)
	}
	return profile, nil
}

// GetApproved fetches an approved profile with its documents.
func (r *PGRepository) GetApproved(ctx context.Context, userID string) (Profile, error) {
	return getProfile(ctx, r.pool, userID, true)
}

// ListApproved returns approved profiles of active users ordered by name.
func (r *PGRepository) ListApproved(ctx context.Context, filter Filter) ([]Profile, error) {
	query := profileSelect + ` WHERE pd.is_approved AND u.is_active`
	args := make([]any, 0, 2)
	if t := strings.TrimSpace(filter.Trade); t != "" {
		args = append(args, t)
		query += " AND lower(pd.trade) = lower($" + strconv.Itoa(len(args)) + ")"
	}
	if l := strings.TrimSpace(filter.Location); l != "" {
		args = append(args, "%"+escapeLike(l)+"%")
		query += " AND pd.location ILIKE $" + strconv.Itoa(len(args))
	}
	query += " ORDER BY u.first_name, u.last_name, u.id"

	return listProfiles(ctx, r.pool, query, args...)
}

// Update changes the mutable profile fields.
func (r *PGRepository) Update(ctx context.Context, userID string, params UpdateParams) (Profile, error) {
	const query = `
		UPDATE professional_details
		SET bio = COALESCE($2, bio),
		    hourly_rate = COALESCE($3, hourly_rate),
		    location = COALESCE($4, location),
		    updated_at = now()
		WHERE user_id = $1
	`
	tag, err := r.pool.Exec(ctx, query, userID, params.Bio, params.HourlyRate, params.Location)
	if err != nil {
		return Profile{}, fmt.Errorf("professional: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return Profile{}, ErrNotFound
	}
	return getProfile(ctx, r.pool, userID, false)
}

// ListPending returns registrations awaiting review, oldest first, with their
// documents attached.
func (r *PGRepository) ListPending(ctx context.Context) ([]Profile, error) {
	query := profileSelect + ` WHERE NOT pd.is_approved ORDER BY pd.created_at ASC, u.id`
	profiles, err := listProfiles(ctx, r.pool, query)
	if err != nil || len(profiles) == 0 {
		return profiles, err
	}

	ids := make([]string, len(profiles))
	index := make(map[string]int, len(profiles))
	for i, p := range profiles {
		ids[i] = p.UserID
		index[p.UserID] = i
	}

	rows, err := r.pool.Query(ctx, `
		SELECT professional_id, id, filename, storage_key, content_type, size_bytes, uploaded_at
		FROM professional_documents
		WHERE professional_id = ANY($1::uuid[])
		ORDER BY uploaded_at, id
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("professional: list pending documents: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			owner string
			d     Document
		)
		if err := rows.Scan(&owner, &d.ID, &d.Filename, &d.StorageKey, &d.ContentType, &d.SizeBytes, &d.UploadedAt); err != nil {
			return nil, fmt.Errorf("professional: scan document: %w", err)
		}
		if i, ok := index[owner]; ok {
			profiles[i].Documents = append(profiles[i].Documents, d)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("professional: iterate documents: %w", err)
	}
	return profiles, nil
}

// Approve marks the profile approved. Approving twice keeps the first stamp.
func (r *PGRepository) Approve(ctx context.Context, userID, adminID string) (Profile, error) {
	const query = `
		UPDATE professional_details
		SET is_approved = TRUE,
		    approved_by = COALESCE(approved_by, $2),
		    approved_at = COALESCE(approved_at, now()),
		    updated_at = now()
		WHERE user_id = $1
	`
	tag, err := r.pool.Exec(ctx, query, userID, adminID)
	if err != nil {
		return Profile{}, fmt.Errorf("professional: approve: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return Profile{}, ErrNotFound
	}
	return getProfile(ctx, r.pool, userID, false)
}

// Reject removes the registration and reverts the user to a customer. It
// returns the documents whose files the caller should discard.
func (r *PGRepository) Reject(ctx context.Context, userID string) ([]Document, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("professional: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	docs, err := listDocuments(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	tag, err := tx.Exec(ctx, `DELETE FROM professional_details WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("professional: delete details: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}

	if _, err := tx.Exec(ctx, `UPDATE users SET role = 'customer', updated_at = now() WHERE id = $1 AND role = 'professional'`, userID); err != nil {
		return nil, fmt.Errorf("professional: revert role: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("professional: commit rejection: %w", err)
	}
	return docs, nil
}

func getProfile(ctx context.Context, q querier, userID string, approvedOnly bool) (Profile, error) {
	query := profileSelect + ` WHERE u.id = $1`
	if approvedOnly {
		query += ` AND pd.is_approved`
	}

	p, err := scanProfile(q.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Profile{}, ErrNotFound
		}
		return Profile{}, fmt.Errorf("professional: get profile: %w", err)
	}

	p.Documents, err = listDocuments(ctx, q, userID)
	if err != nil {
		return Profile{}, err
	}
	return p, nil
}

func listProfiles(ctx context.Context, q querier, query string, args ...any) ([]Profile, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("professional: list: %w", err)
	}
	defer rows.Close()

	profiles := make([]Profile, 0, 16)
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("professional: scan profile: %w", err)
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("professional: iterate profiles: %w", err)
	}
	return profiles, nil
}

func listDocuments(ctx context.Context, q querier, userID string) ([]Document, error) {
	rows, err := q.Query(ctx, `
		SELECT id, filename, storage_key, content_type, size_bytes, uploaded_at
		FROM professional_documents
		WHERE professional_id = $1
		ORDER BY uploaded_at, id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("professional: list documents: %w", err)
	}
	defer rows.Close()

	docs := make([]Document, 0, 2)
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.Filename, &d.StorageKey, &d.ContentType, &d.SizeBytes, &d.UploadedAt); err != nil {
			return nil, fmt.Errorf("professional: scan document: %w", err)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("professional: iterate documents: %w", err)
	}
	return docs, nil
}

func scanProfile(row pgx.Row) (Profile, error) {
	var p Profile
	err := row.Scan(
		&p.UserID,
		&p.FirstName,
		&p.LastName,
		&p.Email,
		&p.Phone,
		&p.IsActive,
		&p.Trade,
		&p.Experience,
		&p.Bio,
		&p.HourlyRate,
		&p.Location,
		&p.IsApproved,
		&p.ApprovedBy,
		&p.ApprovedAt,
		&p.CreatedAt,
	)
	return p, err
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
