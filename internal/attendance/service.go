package attendance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/facegate/internal/models"
	"github.com/your-org/facegate/internal/observability"
)

type Outcome string

const (
	OutcomeCreated  Outcome = "created"
	OutcomeUpdated  Outcome = "updated"
	OutcomeRejected Outcome = "rejected"
)

// Rejection reasons. Both are business outcomes, not errors: a repeated
// submission after a completed cycle must stay idempotent.
const (
	ReasonAlreadyCheckedOut = "already-checked-out"
	ReasonTooSoon           = "too-soon"
)

// Result is the answer to one attendance event submission.
type Result struct {
	Outcome Outcome `json:"result"`
	Reason  string  `json:"reason,omitempty"`
}

// Store is the persistence needed by the state machine. Both mutations are
// conditional at the storage layer: TryCheckIn only inserts when no record
// exists for (identity, day), TryCheckOut only updates an open record whose
// check-in is at least minPresence old. That conditioning is what closes the
// race between two near-simultaneous matches for the same person.
type Store interface {
	TryCheckIn(ctx context.Context, rec *models.AttendanceRecord) (bool, error)
	TryCheckOut(ctx context.Context, identityID uuid.UUID, day time.Time, ts time.Time, minPresence time.Duration) (bool, error)
	GetForDay(ctx context.Context, identityID uuid.UUID, day time.Time) (*models.AttendanceRecord, error)
}

// Service drives the per-(identity, day) attendance cycle:
// NoRecord -> CheckedIn -> CheckedInAndOut (terminal).
type Service struct {
	store       Store
	loc         *time.Location
	minPresence time.Duration
}

func NewService(store Store, loc *time.Location, minPresence time.Duration) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{store: store, loc: loc, minPresence: minPresence}
}

// RecordEvent applies one successful face match to the attendance ledger.
// The first event of the local day creates a check-in, the next completes
// the cycle with a check-out, and anything after that is rejected. Transient
// storage failures are retried once before being surfaced; an event is never
// silently dropped.
func (s *Service) RecordEvent(ctx context.Context, identityID uuid.UUID, stationID *uuid.UUID, ts time.Time) (Result, error) {
	var (
		res Result
		err error
	)
	for attempt := 0; attempt < 2; attempt++ {
		res, err = s.recordOnce(ctx, identityID, stationID, ts)
		if err == nil {
			observability.AttendanceEvents.WithLabelValues(string(res.Outcome)).Inc()
			return res, nil
		}
		slog.Warn("attendance write failed",
			"identity_id", identityID, "attempt", attempt, "error", err)
	}
	return Result{}, fmt.Errorf("record attendance event: %w", err)
}

func (s *Service) recordOnce(ctx context.Context, identityID uuid.UUID, stationID *uuid.UUID, ts time.Time) (Result, error) {
	day := DayBucket(ts, s.loc)

	rec := &models.AttendanceRecord{
		ID:          uuid.New(),
		IdentityID:  identityID,
		Day:         day,
		CheckInTime: ts,
		StationID:   stationID,
	}

	created, err := s.store.TryCheckIn(ctx, rec)
	if err != nil {
		return Result{}, err
	}
	if created {
		return Result{Outcome: OutcomeCreated}, nil
	}

	// A record for (identity, day) already exists: attempt the check-out
	// transition. The store refuses it when the cycle is already complete
	// or when the check-in is younger than minPresence.
	updated, err := s.store.TryCheckOut(ctx, identityID, day, ts, s.minPresence)
	if err != nil {
		return Result{}, err
	}
	if updated {
		return Result{Outcome: OutcomeUpdated}, nil
	}

	existing, err := s.store.GetForDay(ctx, identityID, day)
	if err != nil {
		return Result{}, err
	}
	if existing == nil {
		// Insert lost to a concurrent writer whose record we can no longer
		// see; only possible mid-transaction, so report it as transient.
		return Result{}, fmt.Errorf("attendance record for %s on %s disappeared",
			identityID, day.Format("2006-01-02"))
	}
	if existing.CheckOutTime != nil {
		return Result{Outcome: OutcomeRejected, Reason: ReasonAlreadyCheckedOut}, nil
	}
	return Result{Outcome: OutcomeRejected, Reason: ReasonTooSoon}, nil
}
