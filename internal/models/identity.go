package models

import (
	"time"

	"github.com/google/uuid"
)

// Identity is one entry in the employee directory. The directory is owned
// by HR tooling; this service reads it for labeling matches and writes only
// via explicit administrative endpoints.
type Identity struct {
	ID         uuid.UUID `json:"id" db:"id"`
	Name       string    `json:"name" db:"name"`
	StaffCode  string    `json:"staff_code" db:"staff_code"`
	Department string    `json:"department" db:"department"`
	Active     bool      `json:"active" db:"active"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}
