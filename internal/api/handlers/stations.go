package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/facegate/internal/models"
	"github.com/your-org/facegate/internal/queue"
	"github.com/your-org/facegate/internal/storage"
	"github.com/your-org/facegate/pkg/dto"
)

type StationHandler struct {
	db       *storage.PostgresStore
	producer *queue.Producer
}

func NewStationHandler(db *storage.PostgresStore, producer *queue.Producer) *StationHandler {
	return &StationHandler{db: db, producer: producer}
}

func (h *StationHandler) Create(c *gin.Context) {
	var req dto.CreateStationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	st := &models.Station{Name: req.Name, CameraURL: req.CameraURL}
	if err := h.db.CreateStation(c.Request.Context(), st); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, toStationResponse(st))
}

func (h *StationHandler) List(c *gin.Context) {
	stations, err := h.db.ListStations(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.StationResponse, 0, len(stations))
	for i := range stations {
		resp = append(resp, toStationResponse(&stations[i]))
	}

	c.JSON(http.StatusOK, gin.H{"stations": resp, "total": len(resp)})
}

func (h *StationHandler) Get(c *gin.Context) {
	st, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, toStationResponse(st))
}

// Start publishes a start command for the scanner fleet. The station shows
// up as running once a scanner picks the command up and reports back.
func (h *StationHandler) Start(c *gin.Context) {
	st, ok := h.lookup(c)
	if !ok {
		return
	}

	cmd := map[string]interface{}{
		"action":     "start",
		"station_id": st.ID.String(),
		"camera_url": st.CameraURL,
	}
	data, _ := json.Marshal(cmd)
	if err := h.producer.PublishControl(data); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "publish start command: " + err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "start requested"})
}

func (h *StationHandler) Stop(c *gin.Context) {
	st, ok := h.lookup(c)
	if !ok {
		return
	}

	cmd := map[string]interface{}{
		"action":     "stop",
		"station_id": st.ID.String(),
	}
	data, _ := json.Marshal(cmd)
	if err := h.producer.PublishControl(data); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "publish stop command: " + err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "stop requested"})
}

func (h *StationHandler) Delete(c *gin.Context) {
	st, ok := h.lookup(c)
	if !ok {
		return
	}

	if st.Status == models.StationStatusRunning || st.Status == models.StationStatusStarting {
		c.JSON(http.StatusConflict, gin.H{"error": "stop the station before deleting it"})
		return
	}

	if err := h.db.DeleteStation(c.Request.Context(), st.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (h *StationHandler) lookup(c *gin.Context) (*models.Station, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid station id"})
		return nil, false
	}

	st, err := h.db.GetStation(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, false
	}
	if st == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "station not found"})
		return nil, false
	}
	return st, true
}

func toStationResponse(st *models.Station) dto.StationResponse {
	return dto.StationResponse{
		ID:           st.ID,
		Name:         st.Name,
		CameraURL:    st.CameraURL,
		Status:       string(st.Status),
		ErrorMessage: st.ErrorMessage,
		CreatedAt:    st.CreatedAt.Format("2006-01-02T15:04:05Z"),
	}
}
