package dto

import (
	"time"

	"github.com/google/uuid"
)

// AttendanceEventRequest is the payload scanners post for each recognized
// face. Timestamp may be zero, in which case the server clock is used.
type AttendanceEventRequest struct {
	IdentityID uuid.UUID  `json:"identity_id" binding:"required"`
	StationID  *uuid.UUID `json:"station_id"`
	Timestamp  time.Time  `json:"timestamp"`
}

type AttendanceRecordResponse struct {
	ID           uuid.UUID  `json:"id"`
	IdentityID   uuid.UUID  `json:"identity_id"`
	Day          string     `json:"day"`
	CheckInTime  time.Time  `json:"check_in_time"`
	CheckOutTime *time.Time `json:"check_out_time,omitempty"`
	StationID    *uuid.UUID `json:"station_id,omitempty"`
}

type PredictedCheckoutResponse struct {
	IdentityID        uuid.UUID  `json:"identity_id"`
	CheckInTime       time.Time  `json:"check_in_time"`
	PredictedCheckout *time.Time `json:"predicted_checkout,omitempty"`
	SampleCount       int        `json:"sample_count"`
}
