package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/your-org/facegate/internal/storage"
)

// MediaHandler proxies stored images (enrollment crops and scan snapshots)
// out of object storage so clients never need MinIO credentials.
type MediaHandler struct {
	objects *storage.MinIOStore
}

func NewMediaHandler(objects *storage.MinIOStore) *MediaHandler {
	return &MediaHandler{objects: objects}
}

// Snapshot serves an object by key. Only the faces/ and snapshots/
// prefixes are reachable; anything else in the bucket stays private.
func (h *MediaHandler) Snapshot(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("key"), "/")
	if !strings.HasPrefix(key, "faces/") && !strings.HasPrefix(key, "snapshots/") {
		c.JSON(http.StatusNotFound, gin.H{"error": "object not found"})
		return
	}

	data, err := h.objects.GetObject(c.Request.Context(), key)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "object not found"})
		return
	}

	c.Data(http.StatusOK, "image/jpeg", data)
}
