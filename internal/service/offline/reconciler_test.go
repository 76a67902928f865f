// internal/service/offline/reconciler_test.go

package offline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"safewatch/internal/domain/incident"
)

// fakeIdemStore keeps idempotency records in memory
type fakeIdemStore struct {
	byKey     map[string]string
	nextID    int
	createErr error
	lookupErr error

	// raceKey simulates losing the insert race: the first lookup misses,
	// the insert collides, and the retry lookup finds the winner's row
	raceKey string
	raceID  string
}

func newFakeIdemStore() *fakeIdemStore {
	return &fakeIdemStore{byKey: make(map[string]string)}
}

func (s *fakeIdemStore) Lookup(ctx context.Context, key string) (string, bool, error) {
	if s.lookupErr != nil {
		return "", false, s.lookupErr
	}
	id, ok := s.byKey[key]
	return id, ok, nil
}

func (s *fakeIdemStore) CreateWithKey(ctx context.Context, inc incident.Incident, key string) (*incident.Incident, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	if key == s.raceKey {
		s.byKey[key] = s.raceID
		return nil, incident.ErrDuplicateSubmission
	}
	if _, exists := s.byKey[key]; exists {
		return nil, incident.ErrDuplicateSubmission
	}

	s.nextID++
	inc.ID = fmt.Sprintf("inc-%d", s.nextID)
	s.byKey[key] = inc.ID
	return &inc, nil
}

func validReport(clientID, key string) incident.ClientReport {
	return incident.ClientReport{
		ClientID:       clientID,
		IdempotencyKey: key,
		Type:           incident.TypeMugging,
		Description:    "phone snatched",
		Lat:            -26.2041,
		Lng:            28.0473,
		ReportedAt:     time.Now().UTC(),
	}
}

func TestSyncNewReport(t *testing.T) {
	store := newFakeIdemStore()
	r := NewReconciler(store, zap.NewNop())

	var handled []incident.Incident
	r.RegisterCreatedHandler(func(ctx context.Context, inc incident.Incident) error {
		handled = append(handled, inc)
		return nil
	})

	results := r.SyncReports(context.Background(), "u1", []incident.ClientReport{validReport("c1", "k1")})

	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}
	res := results[0]
	if res.Status != incident.SyncStatusSynced {
		t.Fatalf("status = %s, want %s (error: %s)", res.Status, incident.SyncStatusSynced, res.Error)
	}
	if res.ClientID != "c1" {
		t.Errorf("client ID = %q, want c1", res.ClientID)
	}
	if res.IncidentID == "" {
		t.Error("synced result carries no incident ID")
	}

	if len(handled) != 1 {
		t.Fatalf("handlers ran %d times, want 1", len(handled))
	}
	if handled[0].ReportedBy != "u1" {
		t.Errorf("handled incident reported by %q, want u1", handled[0].ReportedBy)
	}
}

func TestSyncDuplicateKey(t *testing.T) {
	store := newFakeIdemStore()
	r := NewReconciler(store, zap.NewNop())

	handled := 0
	r.RegisterCreatedHandler(func(ctx context.Context, inc incident.Incident) error {
		handled++
		return nil
	})

	first := r.SyncReports(context.Background(), "u1", []incident.ClientReport{validReport("c1", "k1")})
	second := r.SyncReports(context.Background(), "u1", []incident.ClientReport{validReport("c1", "k1")})

	if second[0].Status != incident.SyncStatusDuplicate {
		t.Fatalf("replay status = %s, want %s", second[0].Status, incident.SyncStatusDuplicate)
	}
	if second[0].IncidentID != first[0].IncidentID {
		t.Errorf("replay incident ID = %q, want original %q", second[0].IncidentID, first[0].IncidentID)
	}
	if handled != 1 {
		t.Errorf("handlers ran %d times, want 1; replays must not re-trigger side effects", handled)
	}
}

func TestSyncInsertRace(t *testing.T) {
	store := newFakeIdemStore()
	store.raceKey = "contested"
	store.raceID = "inc-winner"
	r := NewReconciler(store, zap.NewNop())

	results := r.SyncReports(context.Background(), "u1", []incident.ClientReport{validReport("c1", "contested")})

	if results[0].Status != incident.SyncStatusDuplicate {
		t.Fatalf("status = %s, want %s", results[0].Status, incident.SyncStatusDuplicate)
	}
	if results[0].IncidentID != "inc-winner" {
		t.Errorf("incident ID = %q, want the race winner's", results[0].IncidentID)
	}
}

func TestSyncMissingIdempotencyKey(t *testing.T) {
	r := NewReconciler(newFakeIdemStore(), zap.NewNop())

	report := validReport("c1", "")
	results := r.SyncReports(context.Background(), "u1", []incident.ClientReport{report})

	if results[0].Status != incident.SyncStatusFailed {
		t.Fatalf("status = %s, want %s", results[0].Status, incident.SyncStatusFailed)
	}
	if results[0].Error == "" {
		t.Error("failed result carries no error message")
	}
}

func TestSyncInvalidReport(t *testing.T) {
	r := NewReconciler(newFakeIdemStore(), zap.NewNop())

	report := validReport("c1", "k1")
	report.Type = "vandalism"
	results := r.SyncReports(context.Background(), "u1", []incident.ClientReport{report})

	if results[0].Status != incident.SyncStatusFailed {
		t.Errorf("status = %s, want %s", results[0].Status, incident.SyncStatusFailed)
	}
}

func TestSyncBatchIndependence(t *testing.T) {
	store := newFakeIdemStore()
	r := NewReconciler(store, zap.NewNop())

	bad := validReport("c-bad", "k-bad")
	bad.Lat = 95

	results := r.SyncReports(context.Background(), "u1", []incident.ClientReport{
		bad,
		validReport("c-good", "k-good"),
	})

	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if results[0].Status != incident.SyncStatusFailed {
		t.Errorf("bad report status = %s, want %s", results[0].Status, incident.SyncStatusFailed)
	}
	if results[1].Status != incident.SyncStatusSynced {
		t.Errorf("good report status = %s, want %s; one failure must not poison the batch", results[1].Status, incident.SyncStatusSynced)
	}
}

func TestSyncStoreFailure(t *testing.T) {
	store := newFakeIdemStore()
	store.createErr = errors.New("connection refused")
	r := NewReconciler(store, zap.NewNop())

	results := r.SyncReports(context.Background(), "u1", []incident.ClientReport{validReport("c1", "k1")})

	if results[0].Status != incident.SyncStatusFailed {
		t.Fatalf("status = %s, want %s", results[0].Status, incident.SyncStatusFailed)
	}
	if results[0].Error != "temporary failure, retry later" {
		t.Errorf("error = %q, want the retryable message", results[0].Error)
	}
}

func TestSyncLookupFailure(t *testing.T) {
	store := newFakeIdemStore()
	store.lookupErr = errors.New("connection refused")
	core, logs := observer.New(zap.ErrorLevel)
	r := NewReconciler(store, zap.New(core))

	results := r.SyncReports(context.Background(), "u1", []incident.ClientReport{validReport("c1", "k1")})

	if results[0].Status != incident.SyncStatusFailed {
		t.Fatalf("status = %s, want %s", results[0].Status, incident.SyncStatusFailed)
	}
	if results[0].Error != "temporary failure, retry later" {
		t.Errorf("error = %q, want the retryable message", results[0].Error)
	}
	if logs.Len() != 1 {
		t.Fatalf("logged %d errors, want 1; a lookup failure must not vanish silently", logs.Len())
	}
	if got := logs.All()[0].ContextMap()["client_id"]; got != "c1" {
		t.Errorf("logged client_id = %v, want c1", got)
	}
}

func TestSyncHandlerFailureStaysSynced(t *testing.T) {
	r := NewReconciler(newFakeIdemStore(), zap.NewNop())
	r.RegisterCreatedHandler(func(ctx context.Context, inc incident.Incident) error {
		return errors.New("downstream unavailable")
	})

	results := r.SyncReports(context.Background(), "u1", []incident.ClientReport{validReport("c1", "k1")})

	if results[0].Status != incident.SyncStatusSynced {
		t.Errorf("status = %s, want %s; handler failures are logged, not surfaced", results[0].Status, incident.SyncStatusSynced)
	}
}
