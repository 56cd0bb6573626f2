package dto

import (
	"time"

	"github.com/google/uuid"
)

// WSEvent is the envelope pushed to WebSocket subscribers for both match
// and attendance events.
type WSEvent struct {
	Type       string     `json:"type"` // match, attendance
	StationID  uuid.UUID  `json:"station_id"`
	IdentityID *uuid.UUID `json:"identity_id,omitempty"`
	Label      string     `json:"label,omitempty"`
	Distance   float32    `json:"distance,omitempty"`
	BBox       [4]float32 `json:"bbox,omitempty"`
	Result     string     `json:"result,omitempty"`
	Reason     string     `json:"reason,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}
