package dto

import "github.com/google/uuid"

type CreateIdentityRequest struct {
	Name       string `json:"name" binding:"required"`
	StaffCode  string `json:"staff_code"`
	Department string `json:"department"`
}

type IdentityResponse struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	StaffCode  string    `json:"staff_code,omitempty"`
	Department string    `json:"department,omitempty"`
	Active     bool      `json:"active"`
	FaceCount  int       `json:"face_count"`
	CreatedAt  string    `json:"created_at"`
}

type FaceRecordResponse struct {
	ID         uuid.UUID `json:"id"`
	IdentityID uuid.UUID `json:"identity_id"`
	SourceKey  string    `json:"source_key,omitempty"`
	CreatedAt  string    `json:"created_at"`
}

type SearchResult struct {
	IdentityID uuid.UUID `json:"identity_id"`
	Name       string    `json:"name"`
	Distance   float32   `json:"distance"`
}
