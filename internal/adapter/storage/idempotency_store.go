// internal/adapter/storage/idempotency_store.go

package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"safewatch/internal/domain/incident"
)

// uniqueViolation is the postgres SQLSTATE for unique constraint failures
const uniqueViolation = "23505"

// IdempotencyStore persists idempotency records alongside the incidents
// they produced. The record and the incident are inserted in the same
// transaction so a duplicate key can never leave a half-created incident.
type IdempotencyStore struct {
	db *pgxpool.Pool
}

// NewIdempotencyStore creates a new idempotency store
func NewIdempotencyStore(db *pgxpool.Pool) *IdempotencyStore {
	return &IdempotencyStore{
		db: db,
	}
}

// Lookup returns the incident ID previously recorded for the key; the
// second return is false when the key has never been seen.
func (s *IdempotencyStore) Lookup(ctx context.Context, key string) (string, bool, error) {
	var incidentID string
	err := s.db.QueryRow(ctx, `
		SELECT incident_id FROM idempotency_records WHERE idempotency_key = $1
	`, key).Scan(&incidentID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("error looking up idempotency key: %w", err)
	}

	return incidentID, true, nil
}

// CreateWithKey inserts the incident and its idempotency record
// atomically. A concurrent submission of the same key loses the insert
// race and gets incident.ErrDuplicateSubmission.
func (s *IdempotencyStore) CreateWithKey(ctx context.Context, inc incident.Incident, key string) (*incident.Incident, error) {
	if inc.ID == "" {
		inc.ID = uuid.New().String()
	}
	if inc.CreatedAt.IsZero() {
		inc.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO incidents (
			id, incident_type, description, location,
			reported_by, verification_count, created_at, expires_at
		) VALUES (
			$1, $2, $3, ST_MakePoint($4, $5)::geography,
			$6, $7, $8, $9
		)
	`,
		inc.ID,
		string(inc.Type),
		inc.Description,
		inc.Location.Lng,
		inc.Location.Lat,
		inc.ReportedBy,
		inc.VerificationCount,
		inc.CreatedAt,
		inc.ExpiresAt,
	)
	if err != nil {
		return nil, fmt.Errorf("error creating incident: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO idempotency_records (idempotency_key, incident_id, created_at)
		VALUES ($1, $2, $3)
	`, key, inc.ID, inc.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, incident.ErrDuplicateSubmission
		}
		return nil, fmt.Errorf("error recording idempotency key: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("error committing sync insert: %w", err)
	}

	return &inc, nil
}
