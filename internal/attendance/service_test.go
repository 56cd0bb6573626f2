package attendance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/facegate/internal/models"
)

// memStore implements Store with the same conditional semantics the
// Postgres layer provides, guarded by a mutex so concurrent submissions
// exercise the race the state machine must survive.
type memStore struct {
	mu      sync.Mutex
	records map[string]*models.AttendanceRecord
	// failures makes the next N mutations return an error.
	failures int
}

func newMemStore() *memStore {
	return &memStore{records: make(map[string]*models.AttendanceRecord)}
}

func key(identityID uuid.UUID, day time.Time) string {
	return identityID.String() + "|" + day.Format("2006-01-02")
}

func (s *memStore) TryCheckIn(_ context.Context, rec *models.AttendanceRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failures > 0 {
		s.failures--
		return false, errors.New("injected store failure")
	}

	k := key(rec.IdentityID, rec.Day)
	if _, exists := s.records[k]; exists {
		return false, nil
	}
	cp := *rec
	s.records[k] = &cp
	return true, nil
}

func (s *memStore) TryCheckOut(_ context.Context, identityID uuid.UUID, day time.Time, ts time.Time, minPresence time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failures > 0 {
		s.failures--
		return false, errors.New("injected store failure")
	}

	rec, exists := s.records[key(identityID, day)]
	if !exists || rec.CheckOutTime != nil {
		return false, nil
	}
	if rec.CheckInTime.Add(minPresence).After(ts) {
		return false, nil
	}
	out := ts
	rec.CheckOutTime = &out
	return true, nil
}

func (s *memStore) GetForDay(_ context.Context, identityID uuid.UUID, day time.Time) (*models.AttendanceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.records[key(identityID, day)]
	if !exists {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func TestRecordEventFullCycle(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, time.UTC, 10*time.Second)
	identity := uuid.New()
	ctx := context.Background()

	checkIn := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	res, err := svc.RecordEvent(ctx, identity, nil, checkIn)
	if err != nil {
		t.Fatalf("first event: %v", err)
	}
	if res.Outcome != OutcomeCreated {
		t.Fatalf("first event outcome = %q, want created", res.Outcome)
	}

	res, err = svc.RecordEvent(ctx, identity, nil, checkIn.Add(8*time.Hour))
	if err != nil {
		t.Fatalf("second event: %v", err)
	}
	if res.Outcome != OutcomeUpdated {
		t.Fatalf("second event outcome = %q, want updated", res.Outcome)
	}

	res, err = svc.RecordEvent(ctx, identity, nil, checkIn.Add(9*time.Hour))
	if err != nil {
		t.Fatalf("third event: %v", err)
	}
	if res.Outcome != OutcomeRejected || res.Reason != ReasonAlreadyCheckedOut {
		t.Fatalf("third event = %+v, want rejected/already-checked-out", res)
	}

	rec, _ := store.GetForDay(ctx, identity, DayBucket(checkIn, time.UTC))
	if rec == nil || rec.CheckOutTime == nil {
		t.Fatalf("expected a completed record, got %+v", rec)
	}
	if !rec.CheckOutTime.After(rec.CheckInTime) {
		t.Errorf("check-out %v not after check-in %v", rec.CheckOutTime, rec.CheckInTime)
	}
}

func TestRecordEventTooSoonRejected(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, time.UTC, 10*time.Second)
	identity := uuid.New()
	ctx := context.Background()

	checkIn := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	if res, _ := svc.RecordEvent(ctx, identity, nil, checkIn); res.Outcome != OutcomeCreated {
		t.Fatalf("setup: first event outcome = %q", res.Outcome)
	}

	res, err := svc.RecordEvent(ctx, identity, nil, checkIn.Add(3*time.Second))
	if err != nil {
		t.Fatalf("rapid second event: %v", err)
	}
	if res.Outcome != OutcomeRejected || res.Reason != ReasonTooSoon {
		t.Fatalf("rapid second event = %+v, want rejected/too-soon", res)
	}

	// The record must still be open afterwards.
	rec, _ := store.GetForDay(ctx, identity, DayBucket(checkIn, time.UTC))
	if rec.CheckOutTime != nil {
		t.Errorf("too-soon rejection must not close the record, got check-out %v", rec.CheckOutTime)
	}
}

func TestRecordEventSeparateDays(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, time.UTC, 0)
	identity := uuid.New()
	ctx := context.Background()

	day1 := time.Date(2026, 3, 2, 23, 59, 59, 0, time.UTC)
	day2 := time.Date(2026, 3, 3, 0, 0, 1, 0, time.UTC)

	res1, _ := svc.RecordEvent(ctx, identity, nil, day1)
	res2, _ := svc.RecordEvent(ctx, identity, nil, day2)

	if res1.Outcome != OutcomeCreated {
		t.Errorf("day1 outcome = %q, want created", res1.Outcome)
	}
	if res2.Outcome != OutcomeCreated {
		t.Errorf("event 2s later across midnight = %q, want created (new day)", res2.Outcome)
	}
}

func TestRecordEventConcurrentFirstMatch(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, time.UTC, 10*time.Second)
	identity := uuid.New()
	ctx := context.Background()

	ts := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	const workers = 16
	results := make([]Result, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.RecordEvent(ctx, identity, nil, ts)
		}(i)
	}
	wg.Wait()

	created := 0
	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("worker %d: %v", i, errs[i])
		}
		switch results[i].Outcome {
		case OutcomeCreated:
			created++
		case OutcomeRejected:
			if results[i].Reason != ReasonTooSoon {
				t.Errorf("worker %d: reason = %q, want too-soon", i, results[i].Reason)
			}
		default:
			t.Errorf("worker %d: unexpected outcome %q", i, results[i].Outcome)
		}
	}
	if created != 1 {
		t.Fatalf("created = %d, want exactly 1", created)
	}

	rec, _ := store.GetForDay(ctx, identity, DayBucket(ts, time.UTC))
	if rec == nil {
		t.Fatal("no record after concurrent submissions")
	}
	if rec.CheckOutTime != nil {
		t.Errorf("simultaneous events must not close the record, got check-out %v", rec.CheckOutTime)
	}
}

func TestRecordEventRetriesTransientFailure(t *testing.T) {
	store := newMemStore()
	store.failures = 1
	svc := NewService(store, time.UTC, 0)
	ctx := context.Background()

	res, err := svc.RecordEvent(ctx, uuid.New(), nil, time.Now())
	if err != nil {
		t.Fatalf("expected retry to absorb one failure, got %v", err)
	}
	if res.Outcome != OutcomeCreated {
		t.Errorf("outcome = %q, want created", res.Outcome)
	}
}

func TestRecordEventSurfacesPersistentFailure(t *testing.T) {
	store := newMemStore()
	store.failures = 10
	svc := NewService(store, time.UTC, 0)

	_, err := svc.RecordEvent(context.Background(), uuid.New(), nil, time.Now())
	if err == nil {
		t.Fatal("expected an error when the store keeps failing")
	}
}
