package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/facegate/internal/config"
	"github.com/your-org/facegate/internal/gallery"
	"github.com/your-org/facegate/internal/observability"
	"github.com/your-org/facegate/internal/queue"
	"github.com/your-org/facegate/internal/scan"
	"github.com/your-org/facegate/internal/storage"
	"github.com/your-org/facegate/internal/vision"
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
	slog.Info("starting facegate scanner service")

	// Connect to Postgres (gallery source and station status)
	db, err := storage.NewPostgresStore(cfg.Database)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Connect to MinIO (match snapshots)
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// A scanner without models cannot work; fail fast, unlike the API
	// which degrades to read-only endpoints.
	ort.SetSharedLibraryPath(getONNXLibPath())
	if err := ort.InitializeEnvironment(); err != nil {
		slog.Error("onnx runtime init", "error", err)
		os.Exit(1)
	}
	defer ort.DestroyEnvironment()

	extractor, err := vision.NewExtractor(cfg.Vision, nil)
	if err != nil {
		slog.Error("init vision extractor", "error", err)
		os.Exit(1)
	}
	defer extractor.Close()

	// Load the gallery before accepting stations: scanning against an
	// empty snapshot would silently mark everyone unknown.
	g := gallery.New(db)
	if snap, err := g.Refresh(ctx); err != nil {
		slog.Error("initial gallery load", "error", err)
		os.Exit(1)
	} else {
		slog.Info("gallery loaded", "entries", len(snap.Entries), "dim", snap.Dim)
	}

	submitter := scan.NewHTTPSubmitter(cfg.Scan.APIBaseURL, cfg.Server.APIKey)

	manager := scan.NewManager(cfg.Scan, cfg.Vision, extractor, g, submitter, producer, db, objects)
	if err := manager.StartJobs(ctx); err != nil {
		slog.Error("start background jobs", "error", err)
		os.Exit(1)
	}

	// Station control commands arrive over core NATS.
	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		slog.Error("create control consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	_, err = consumer.SubscribeControl(func(data []byte) {
		cmd, err := scan.ParseCommand(data)
		if err != nil {
			slog.Error("parse command", "error", err)
			return
		}

		slog.Info("received command", "action", cmd.Action, "station_id", cmd.StationID)
		if err := manager.HandleCommand(ctx, cmd); err != nil {
			slog.Error("handle command", "error", err, "action", cmd.Action, "station_id", cmd.StationID)
		}
	})
	if err != nil {
		slog.Error("subscribe to control", "error", err)
		os.Exit(1)
	}

	// Metrics endpoint
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
		addr := fmt.Sprintf(":%d", cfg.Scan.MetricsPort)
		slog.Info("scanner metrics listening", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			slog.Error("metrics server error", "error", err)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down scanner...")
	cancel()
	manager.StopAll()

	// Give sessions time to stop
	time.Sleep(2 * time.Second)
	slog.Info("scanner stopped")
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
