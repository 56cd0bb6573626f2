package handlers

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/facegate/internal/storage"
	"github.com/your-org/facegate/pkg/dto"
)

// EmbedFunc extracts an embedding from image bytes, returning the vector,
// the detection confidence, and the JPEG face crop.
type EmbedFunc func(imageData []byte) ([]float32, float32, []byte, error)

type IdentityHandler struct {
	db      *storage.PostgresStore
	objects *storage.MinIOStore
	// EmbedFn is set once the vision extractor is initialized.
	EmbedFn EmbedFunc
}

func NewIdentityHandler(db *storage.PostgresStore, objects *storage.MinIOStore) *IdentityHandler {
	return &IdentityHandler{db: db, objects: objects}
}

func (h *IdentityHandler) Create(c *gin.Context) {
	var req dto.CreateIdentityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	identity, err := h.db.CreateIdentity(c.Request.Context(), req.Name, req.StaffCode, req.Department)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, dto.IdentityResponse{
		ID:         identity.ID,
		Name:       identity.Name,
		StaffCode:  identity.StaffCode,
		Department: identity.Department,
		Active:     identity.Active,
		FaceCount:  0,
		CreatedAt:  identity.CreatedAt.Format("2006-01-02T15:04:05Z"),
	})
}

func (h *IdentityHandler) List(c *gin.Context) {
	identities, err := h.db.ListIdentities(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.IdentityResponse, 0, len(identities))
	for _, ident := range identities {
		faceCount, _ := h.db.CountFaceRecords(c.Request.Context(), ident.ID)
		resp = append(resp, dto.IdentityResponse{
			ID:         ident.ID,
			Name:       ident.Name,
			StaffCode:  ident.StaffCode,
			Department: ident.Department,
			Active:     ident.Active,
			FaceCount:  faceCount,
			CreatedAt:  ident.CreatedAt.Format("2006-01-02T15:04:05Z"),
		})
	}

	c.JSON(http.StatusOK, gin.H{"identities": resp, "total": len(resp)})
}

func (h *IdentityHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid identity id"})
		return
	}

	identity, err := h.db.GetIdentity(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if identity == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "identity not found"})
		return
	}

	faceCount, _ := h.db.CountFaceRecords(c.Request.Context(), id)

	c.JSON(http.StatusOK, dto.IdentityResponse{
		ID:         identity.ID,
		Name:       identity.Name,
		StaffCode:  identity.StaffCode,
		Department: identity.Department,
		Active:     identity.Active,
		FaceCount:  faceCount,
		CreatedAt:  identity.CreatedAt.Format("2006-01-02T15:04:05Z"),
	})
}

// AddFace accepts a multipart image upload, extracts an embedding, and
// appends it to the identity's enrollment set. Existing embeddings are
// never replaced; more enrollment angles improve matching.
func (h *IdentityHandler) AddFace(c *gin.Context) {
	identityID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid identity id"})
		return
	}

	identity, err := h.db.GetIdentity(c.Request.Context(), identityID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if identity == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "identity not found"})
		return
	}

	file, _, err := c.Request.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image file required"})
		return
	}
	defer file.Close()

	imageData, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "read image failed"})
		return
	}

	if h.EmbedFn == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "vision extractor not initialized"})
		return
	}

	embedding, _, crop, err := h.EmbedFn(imageData)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "failed to extract face: " + err.Error()})
		return
	}

	sourceKey := storage.EnrollmentKey(identityID, uuid.New())
	if err := h.objects.PutObject(c.Request.Context(), sourceKey, crop, "image/jpeg"); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store face crop failed"})
		return
	}

	fr, err := h.db.AddFaceRecord(c.Request.Context(), identityID, embedding, sourceKey)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, dto.FaceRecordResponse{
		ID:         fr.ID,
		IdentityID: fr.IdentityID,
		SourceKey:  fr.SourceKey,
		CreatedAt:  fr.CreatedAt.Format("2006-01-02T15:04:05Z"),
	})
}

func (h *IdentityHandler) ListFaces(c *gin.Context) {
	identityID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid identity id"})
		return
	}

	faces, err := h.db.ListFaceRecords(c.Request.Context(), identityID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.FaceRecordResponse, 0, len(faces))
	for _, f := range faces {
		resp = append(resp, dto.FaceRecordResponse{
			ID:         f.ID,
			IdentityID: f.IdentityID,
			SourceKey:  f.SourceKey,
			CreatedAt:  f.CreatedAt.Format("2006-01-02T15:04:05Z"),
		})
	}

	c.JSON(http.StatusOK, gin.H{"faces": resp, "total": len(resp)})
}

func (h *IdentityHandler) DeleteFace(c *gin.Context) {
	identityID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid identity id"})
		return
	}
	faceID, err := uuid.Parse(c.Param("faceId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid face id"})
		return
	}

	if err := h.db.DeleteFaceRecord(c.Request.Context(), identityID, faceID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// Search finds the closest enrolled identities for an uploaded image.
func (h *IdentityHandler) Search(c *gin.Context) {
	file, _, err := c.Request.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image file required"})
		return
	}
	defer file.Close()

	imageData, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "read image failed"})
		return
	}

	if h.EmbedFn == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "vision extractor not initialized"})
		return
	}

	embedding, _, _, err := h.EmbedFn(imageData)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "failed to extract face: " + err.Error()})
		return
	}

	maxDistance := 0.6
	if v := c.PostForm("max_distance"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			maxDistance = f
		}
	}

	matches, err := h.db.SearchFaces(c.Request.Context(), embedding, maxDistance, 5)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	results := make([]dto.SearchResult, 0, len(matches))
	for _, m := range matches {
		results = append(results, dto.SearchResult{
			IdentityID: m.IdentityID,
			Name:       m.Name,
			Distance:   m.Distance,
		})
	}

	c.JSON(http.StatusOK, gin.H{"results": results, "total": len(results)})
}
