package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/facegate/internal/api"
	"github.com/your-org/facegate/internal/api/handlers"
	"github.com/your-org/facegate/internal/api/ws"
	"github.com/your-org/facegate/internal/attendance"
	"github.com/your-org/facegate/internal/config"
	"github.com/your-org/facegate/internal/models"
	"github.com/your-org/facegate/internal/observability"
	"github.com/your-org/facegate/internal/queue"
	"github.com/your-org/facegate/internal/storage"
	"github.com/your-org/facegate/internal/vision"
	"github.com/your-org/facegate/pkg/dto"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting facegate API service", "port", cfg.Server.Port)

	loc, err := cfg.Attendance.Location()
	if err != nil {
		slog.Error("load attendance timezone", "error", err)
		os.Exit(1)
	}

	// Connect to Postgres
	db, err := storage.NewPostgresStore(cfg.Database)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Connect to MinIO
	objects, err := storage.NewMinIOStore(cfg.MinIO)
	if err != nil {
		slog.Error("connect to minio", "error", err)
		os.Exit(1)
	}
	if err := objects.EnsureBucket(context.Background()); err != nil {
		slog.Warn("ensure minio bucket", "error", err)
	}

	// Connect to NATS
	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	if err := producer.EnsureStreams(context.Background()); err != nil {
		slog.Warn("ensure nats streams", "error", err)
	}

	// WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		slog.Error("create event consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Fan scanner events out to WebSocket subscribers.
	err = consumer.ConsumeEvents(ctx, "api-events", func(ctx context.Context, msg jetstream.Msg) error {
		subject := msg.Subject()
		switch {
		case strings.HasPrefix(subject, queue.MatchSubjectBase+"."):
			var ev models.MatchEvent
			if err := json.Unmarshal(msg.Data(), &ev); err != nil {
				return err
			}
			hub.BroadcastEvent(&dto.WSEvent{
				Type:       "match",
				StationID:  ev.StationID,
				IdentityID: ev.IdentityID,
				Label:      ev.Label,
				Distance:   ev.Distance,
				BBox:       ev.BBox,
				Timestamp:  ev.Timestamp,
			})
		case strings.HasPrefix(subject, queue.AttendanceSubjectBase+"."):
			var ev models.AttendanceEvent
			if err := json.Unmarshal(msg.Data(), &ev); err != nil {
				return err
			}
			wsEv := &dto.WSEvent{
				Type:       "attendance",
				IdentityID: &ev.IdentityID,
				Result:     ev.Result,
				Reason:     ev.Reason,
				Timestamp:  ev.Timestamp,
			}
			if ev.StationID != nil {
				wsEv.StationID = *ev.StationID
			}
			hub.BroadcastEvent(wsEv)
		}
		return nil
	})
	if err != nil {
		slog.Warn("start event consumer", "error", err)
	}

	// Initialize ONNX Runtime for enrollment and search endpoints.
	var embedFn handlers.EmbedFunc

	ort.SetSharedLibraryPath(getONNXLibPath())
	if err := ort.InitializeEnvironment(); err != nil {
		slog.Warn("onnx runtime init failed — enrollment/search unavailable", "error", err)
	} else {
		extractor, err := vision.NewExtractor(cfg.Vision, nil)
		if err != nil {
			slog.Warn("vision extractor init failed — enrollment/search unavailable", "error", err)
		} else {
			embedFn = extractor.EmbedImage
			defer extractor.Close()
			defer ort.DestroyEnvironment()
			slog.Info("vision extractor ready")
		}
	}

	attendanceSvc := attendance.NewService(db, loc, cfg.Attendance.MinPresence)

	router := api.NewRouter(api.RouterConfig{
		APIKey:     cfg.Server.APIKey,
		DB:         db,
		Objects:    objects,
		Producer:   producer,
		Hub:        hub,
		Attendance: attendanceSvc,
		Location:   loc,
		EmbedFn:    embedFn,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("API server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down API server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("API server stopped")
}

// getONNXLibPath returns the ONNX Runtime shared library path.
func getONNXLibPath() string {
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "linux":
		return "libonnxruntime.so"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "onnxruntime.dll"
	}
}
