// internal/adapter/storage/membership_store.go

package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"

	"safewatch/internal/domain/zone"
)

// MembershipStore implements append-only storage for zone visit history.
// A partial unique index on (user_id, zone_id) WHERE exited_at IS NULL
// backs the one-open-row-per-pair invariant.
type MembershipStore struct {
	db *pgxpool.Pool
}

// NewMembershipStore creates a new membership store
func NewMembershipStore(db *pgxpool.Pool) *MembershipStore {
	return &MembershipStore{
		db: db,
	}
}

// Open records a zone entry. If the user already has an open row for the
// zone, the insert is a no-op and the existing row stands.
func (s *MembershipStore) Open(ctx context.Context, userID, zoneID string, at time.Time) error {
	query := `
		INSERT INTO zone_memberships (id, user_id, zone_id, entered_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, zone_id) WHERE exited_at IS NULL DO NOTHING
	`

	_, err := s.db.Exec(ctx, query, uuid.New().String(), userID, zoneID, at)
	if err != nil {
		return fmt.Errorf("error opening membership: %w", err)
	}

	return nil
}

// Close records a zone exit by stamping the open row, if any
func (s *MembershipStore) Close(ctx context.Context, userID, zoneID string, at time.Time) error {
	query := `
		UPDATE zone_memberships
		SET exited_at = $3
		WHERE user_id = $1 AND zone_id = $2 AND exited_at IS NULL
	`

	_, err := s.db.Exec(ctx, query, userID, zoneID, at)
	if err != nil {
		return fmt.Errorf("error closing membership: %w", err)
	}

	return nil
}

// OpenZoneIDs returns the zones the user currently has open rows for
func (s *MembershipStore) OpenZoneIDs(ctx context.Context, userID string) ([]string, error) {
	query := `
		SELECT zone_id FROM zone_memberships
		WHERE user_id = $1 AND exited_at IS NULL
	`

	rows, err := s.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("error querying open memberships: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("error scanning membership: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating memberships: %w", err)
	}

	return ids, nil
}

// Stats aggregates visit history for a zone
func (s *MembershipStore) Stats(ctx context.Context, zoneID string) (*zone.Stats, error) {
	query := `
		SELECT
			COUNT(*) AS total_entries,
			COUNT(exited_at) AS total_exits,
			COUNT(*) FILTER (WHERE exited_at IS NULL) AS currently_inside,
			COUNT(*) FILTER (WHERE entered_at > now() - interval '24 hours') AS entries_24h,
			COALESCE(AVG(EXTRACT(EPOCH FROM (exited_at - entered_at)) / 60) FILTER (WHERE exited_at IS NOT NULL), 0) AS avg_dwell_minutes
		FROM zone_memberships
		WHERE zone_id = $1
	`

	var st zone.Stats
	st.ZoneID = zoneID

	err := s.db.QueryRow(ctx, query, zoneID).Scan(
		&st.TotalEntries,
		&st.TotalExits,
		&st.CurrentlyInside,
		&st.Entries24h,
		&st.AvgDwellMinutes,
	)
	if err != nil {
		return nil, fmt.Errorf("error querying zone stats: %w", err)
	}

	return &st, nil
}

// CloseStale closes rows that have been open longer than the staleness
// cutoff. Run by the background sweeper, not the per-update hot path, to
// reconcile users whose connection dropped without an exit.
func (s *MembershipStore) CloseStale(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE zone_memberships
		SET exited_at = now()
		WHERE exited_at IS NULL AND entered_at < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("error closing stale memberships: %w", err)
	}

	return tag.RowsAffected(), nil
}
