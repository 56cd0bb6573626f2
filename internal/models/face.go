package models

import (
	"time"

	"github.com/google/uuid"
)

// FaceRecord is one enrolled embedding for one identity. Enrollment is
// append-only: re-enrolling adds another record so a person can be matched
// via any of several angles. Records are removed only administratively.
type FaceRecord struct {
	ID         uuid.UUID `json:"id" db:"id"`
	IdentityID uuid.UUID `json:"identity_id" db:"identity_id"`
	Embedding  []float32 `json:"-" db:"embedding"`
	SourceKey  string    `json:"source_key" db:"source_key"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}
