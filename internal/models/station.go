package models

import (
	"time"

	"github.com/google/uuid"
)

type StationStatus string

const (
	StationStatusStopped  StationStatus = "stopped"
	StationStatusStarting StationStatus = "starting"
	StationStatusRunning  StationStatus = "running"
	StationStatusError    StationStatus = "error"
)

// Station is a physical scan point: one camera watching one entrance.
type Station struct {
	ID           uuid.UUID     `json:"id" db:"id"`
	Name         string        `json:"name" db:"name"`
	CameraURL    string        `json:"camera_url" db:"camera_url"`
	Status       StationStatus `json:"status" db:"status"`
	ErrorMessage string        `json:"error_message,omitempty" db:"error_message"`
	CreatedAt    time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at" db:"updated_at"`
}
