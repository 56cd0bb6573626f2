package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/facegate/internal/api/handlers"
	"github.com/your-org/facegate/internal/api/ws"
	"github.com/your-org/facegate/internal/attendance"
	"github.com/your-org/facegate/internal/auth"
	"github.com/your-org/facegate/internal/queue"
	"github.com/your-org/facegate/internal/storage"
)

type RouterConfig struct {
	APIKey     string
	DB         *storage.PostgresStore
	Objects    *storage.MinIOStore
	Producer   *queue.Producer
	Hub        *ws.Hub
	Attendance *attendance.Service
	Location   *time.Location
	// EmbedFn extracts a face embedding from image bytes (from the vision
	// extractor).
	EmbedFn handlers.EmbedFunc
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.Default())

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.DB, cfg.Objects, cfg.Producer)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 (with auth)
	v1 := r.Group("/v1")
	v1.Use(auth.APIKeyMiddleware(cfg.APIKey))

	// WebSocket
	v1.GET("/ws", cfg.Hub.HandleWS)

	// Identities & faces
	identityH := handlers.NewIdentityHandler(cfg.DB, cfg.Objects)
	identityH.EmbedFn = cfg.EmbedFn
	v1.POST("/identities", identityH.Create)
	v1.GET("/identities", identityH.List)
	v1.GET("/identities/:id", identityH.Get)
	v1.POST("/identities/:id/faces", identityH.AddFace)
	v1.GET("/identities/:id/faces", identityH.ListFaces)
	v1.DELETE("/identities/:id/faces/:faceId", identityH.DeleteFace)
	v1.POST("/search", identityH.Search)

	// Attendance
	attendanceH := handlers.NewAttendanceHandler(cfg.DB, cfg.Attendance, cfg.Location)
	v1.POST("/attendance/events", attendanceH.RecordEvent)
	v1.GET("/attendance", attendanceH.List)
	v1.GET("/attendance/today", attendanceH.Today)
	v1.GET("/identities/:id/attendance", attendanceH.History)
	v1.GET("/identities/:id/attendance/prediction", attendanceH.PredictCheckout)

	// Stored media
	mediaH := handlers.NewMediaHandler(cfg.Objects)
	v1.GET("/snapshots/*key", mediaH.Snapshot)

	// Stations
	stationH := handlers.NewStationHandler(cfg.DB, cfg.Producer)
	v1.POST("/stations", stationH.Create)
	v1.GET("/stations", stationH.List)
	v1.GET("/stations/:id", stationH.Get)
	v1.POST("/stations/:id/start", stationH.Start)
	v1.POST("/stations/:id/stop", stationH.Stop)
	v1.DELETE("/stations/:id", stationH.Delete)

	return r
}
