package dto

import "github.com/google/uuid"

type CreateStationRequest struct {
	Name      string `json:"name" binding:"required"`
	CameraURL string `json:"camera_url" binding:"required"`
	FPS       int    `json:"fps"`
}

type StationResponse struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	CameraURL    string    `json:"camera_url"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    string    `json:"created_at"`
}
