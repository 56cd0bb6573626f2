package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/facegate/internal/attendance"
	"github.com/your-org/facegate/internal/models"
	"github.com/your-org/facegate/internal/storage"
	"github.com/your-org/facegate/pkg/dto"
)

type AttendanceHandler struct {
	db      *storage.PostgresStore
	service *attendance.Service
	loc     *time.Location
}

func NewAttendanceHandler(db *storage.PostgresStore, service *attendance.Service, loc *time.Location) *AttendanceHandler {
	if loc == nil {
		loc = time.Local
	}
	return &AttendanceHandler{db: db, service: service, loc: loc}
}

// RecordEvent applies one face-match event to the attendance ledger.
// Rejected events still return 200: the submission was understood and the
// day's record is simply in a terminal state, so the scanner must not
// retry it.
func (h *AttendanceHandler) RecordEvent(c *gin.Context) {
	var req dto.AttendanceEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	identity, err := h.db.GetIdentity(c.Request.Context(), req.IdentityID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if identity == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "identity not found"})
		return
	}

	ts := req.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	result, err := h.service.RecordEvent(c.Request.Context(), req.IdentityID, req.StationID, ts)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	status := http.StatusOK
	if result.Outcome == attendance.OutcomeCreated {
		status = http.StatusCreated
	}
	c.JSON(status, result)
}

// List returns attendance records, filterable by identity and day range.
func (h *AttendanceHandler) List(c *gin.Context) {
	var identityID *uuid.UUID
	if v := c.Query("identity_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid identity_id"})
			return
		}
		identityID = &id
	}

	var fromDay, toDay *time.Time
	if v := c.Query("from"); v != "" {
		t, err := time.ParseInLocation("2006-01-02", v, h.loc)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from date, want YYYY-MM-DD"})
			return
		}
		fromDay = &t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.ParseInLocation("2006-01-02", v, h.loc)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to date, want YYYY-MM-DD"})
			return
		}
		toDay = &t
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	records, total, err := h.db.QueryAttendance(c.Request.Context(), identityID, fromDay, toDay, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"records": toAttendanceResponses(records),
		"total":   total,
	})
}

// Today returns one identity's record for the current local day, or 404
// when no scan happened yet.
func (h *AttendanceHandler) Today(c *gin.Context) {
	identityID, err := uuid.Parse(c.Query("identity_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid identity_id"})
		return
	}

	day := attendance.DayBucket(time.Now(), h.loc)
	rec, err := h.db.GetForDay(c.Request.Context(), identityID, day)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if rec == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no attendance record for today"})
		return
	}

	c.JSON(http.StatusOK, toAttendanceResponse(*rec))
}

// History returns one identity's attendance records, newest first.
func (h *AttendanceHandler) History(c *gin.Context) {
	identityID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid identity id"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	records, total, err := h.db.QueryAttendance(c.Request.Context(), &identityID, nil, nil, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"records": toAttendanceResponses(records),
		"total":   total,
	})
}

// PredictCheckout estimates when an identity will check out today, fitted
// from their completed history. Without a check-in or with too little
// history the response carries no prediction.
func (h *AttendanceHandler) PredictCheckout(c *gin.Context) {
	identityID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid identity id"})
		return
	}

	day := attendance.DayBucket(time.Now(), h.loc)
	rec, err := h.db.GetForDay(c.Request.Context(), identityID, day)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if rec == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no check-in recorded today"})
		return
	}

	history, err := h.db.CompletedHistory(c.Request.Context(), identityID, 90)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := dto.PredictedCheckoutResponse{
		IdentityID:  identityID,
		CheckInTime: rec.CheckInTime,
		SampleCount: len(history),
	}
	if predicted, err := attendance.PredictCheckout(history, rec.CheckInTime); err == nil {
		resp.PredictedCheckout = &predicted
	}

	c.JSON(http.StatusOK, resp)
}

func toAttendanceResponse(rec models.AttendanceRecord) dto.AttendanceRecordResponse {
	return dto.AttendanceRecordResponse{
		ID:           rec.ID,
		IdentityID:   rec.IdentityID,
		Day:          rec.Day.Format("2006-01-02"),
		CheckInTime:  rec.CheckInTime,
		CheckOutTime: rec.CheckOutTime,
		StationID:    rec.StationID,
	}
}

func toAttendanceResponses(records []models.AttendanceRecord) []dto.AttendanceRecordResponse {
	resp := make([]dto.AttendanceRecordResponse, 0, len(records))
	for _, rec := range records {
		resp = append(resp, toAttendanceResponse(rec))
	}
	return resp
}
