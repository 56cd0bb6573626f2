package models

import (
	"time"

	"github.com/google/uuid"
)

// AttendanceRecord is one identity's attendance cycle for one calendar day.
// At most one record exists per (identity, day); check_out_time is set once
// and the record is immutable afterwards.
type AttendanceRecord struct {
	ID           uuid.UUID  `json:"id" db:"id"`
	IdentityID   uuid.UUID  `json:"identity_id" db:"identity_id"`
	Day          time.Time  `json:"day" db:"day"`
	CheckInTime  time.Time  `json:"check_in_time" db:"check_in_time"`
	CheckOutTime *time.Time `json:"check_out_time,omitempty" db:"check_out_time"`
	StationID    *uuid.UUID `json:"station_id,omitempty" db:"station_id"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
}

// MatchEvent is published to NATS by the scanner for each accepted or
// unknown classification. It drives the live operator view only and is
// never persisted.
type MatchEvent struct {
	StationID   uuid.UUID  `json:"station_id"`
	Timestamp   time.Time  `json:"timestamp"`
	BBox        [4]float32 `json:"bbox"` // x1, y1, x2, y2
	IdentityID  *uuid.UUID `json:"identity_id,omitempty"`
	Label       string     `json:"label"`
	Distance    float32    `json:"distance"`
	SnapshotKey string     `json:"snapshot_key,omitempty"`
}

// AttendanceEvent is published after a successful recording so downstream
// consumers (payroll, reporting) can react without polling.
type AttendanceEvent struct {
	IdentityID uuid.UUID  `json:"identity_id"`
	StationID  *uuid.UUID `json:"station_id,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
	Result     string     `json:"result"`           // created, updated, rejected
	Reason     string     `json:"reason,omitempty"` // set when rejected
}
