package scan

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/google/uuid"

	"github.com/your-org/facegate/internal/capture"
	"github.com/your-org/facegate/internal/config"
	"github.com/your-org/facegate/internal/gallery"
	"github.com/your-org/facegate/internal/models"
	"github.com/your-org/facegate/internal/observability"
	"github.com/your-org/facegate/internal/storage"
	"github.com/your-org/facegate/internal/vision"
)

// StationCommand is a start/stop command for one scan station, delivered
// over the control subject.
type StationCommand struct {
	Action    string `json:"action"` // start, stop
	StationID string `json:"station_id"`
	CameraURL string `json:"camera_url"`
	FPS       int    `json:"fps"`
}

// ParseCommand parses a NATS control payload.
func ParseCommand(data []byte) (StationCommand, error) {
	var cmd StationCommand
	if err := json.Unmarshal(data, &cmd); err != nil {
		return cmd, fmt.Errorf("parse command: %w", err)
	}
	return cmd, nil
}

type activeSession struct {
	cancel context.CancelFunc
	source *capture.FFmpegSource
}

// Manager owns the scan sessions of one scanner process: it reacts to
// control commands, shares the extractor and gallery across stations, and
// runs the periodic gallery refresh and snapshot retention jobs.
type Manager struct {
	cfg       config.ScanConfig
	vcfg      config.VisionConfig
	extractor *vision.Extractor
	gallery   *gallery.Gallery
	submitter AttendanceSubmitter
	events    EventSink
	db        *storage.PostgresStore
	objects   *storage.MinIOStore
	scheduler *gocron.Scheduler

	mu       sync.RWMutex
	sessions map[string]*activeSession
}

func NewManager(
	cfg config.ScanConfig,
	vcfg config.VisionConfig,
	extractor *vision.Extractor,
	g *gallery.Gallery,
	submitter AttendanceSubmitter,
	events EventSink,
	db *storage.PostgresStore,
	objects *storage.MinIOStore,
) *Manager {
	return &Manager{
		cfg:       cfg,
		vcfg:      vcfg,
		extractor: extractor,
		gallery:   g,
		submitter: submitter,
		events:    events,
		db:        db,
		objects:   objects,
		scheduler: gocron.NewScheduler(time.UTC),
		sessions:  make(map[string]*activeSession),
	}
}

// StartJobs schedules the periodic gallery refresh and, when object
// storage is configured, the daily snapshot retention sweep.
func (m *Manager) StartJobs(ctx context.Context) error {
	refreshEvery := m.cfg.GalleryRefresh
	if refreshEvery <= 0 {
		refreshEvery = 5 * time.Minute
	}

	_, err := m.scheduler.Every(refreshEvery).Do(func() {
		if _, err := m.gallery.Refresh(ctx); err != nil {
			slog.Error("scheduled gallery refresh", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule gallery refresh: %w", err)
	}

	if m.objects != nil && m.cfg.SnapshotRetention > 0 {
		_, err = m.scheduler.Every(1).Day().At("03:30").Do(func() {
			cutoff := time.Now().Add(-m.cfg.SnapshotRetention)
			n, err := m.objects.PruneSnapshots(ctx, cutoff)
			if err != nil {
				slog.Error("snapshot retention sweep", "error", err)
				return
			}
			if n > 0 {
				slog.Info("pruned old snapshots", "count", n)
			}
		})
		if err != nil {
			return fmt.Errorf("schedule snapshot retention: %w", err)
		}
	}

	m.scheduler.StartAsync()
	return nil
}

// HandleCommand processes a station control command.
func (m *Manager) HandleCommand(ctx context.Context, cmd StationCommand) error {
	switch cmd.Action {
	case "start":
		return m.startStation(ctx, cmd)
	case "stop":
		return m.stopStation(cmd.StationID)
	default:
		return fmt.Errorf("unknown action: %s", cmd.Action)
	}
}

func (m *Manager) startStation(ctx context.Context, cmd StationCommand) error {
	stationID, err := uuid.Parse(cmd.StationID)
	if err != nil {
		return fmt.Errorf("parse station id: %w", err)
	}

	m.mu.Lock()
	if _, exists := m.sessions[cmd.StationID]; exists {
		m.mu.Unlock()
		return fmt.Errorf("station %s already running", cmd.StationID)
	}
	m.mu.Unlock()

	sessionCtx, cancel := context.WithCancel(ctx)
	source := capture.NewFFmpegSource(cmd.CameraURL, cmd.FPS, m.vcfg.FrameWidth)

	m.mu.Lock()
	m.sessions[cmd.StationID] = &activeSession{cancel: cancel, source: source}
	m.mu.Unlock()

	observability.ActiveSessions.Inc()
	m.updateStatus(stationID, models.StationStatusStarting, "")

	slog.Info("starting scan station",
		"station_id", cmd.StationID, "camera_url", cmd.CameraURL)

	go m.runSession(sessionCtx, stationID, cmd, source)

	return nil
}

// runSession keeps one station alive across camera hiccups: the capture
// source is restarted with exponential backoff before the station is
// marked failed.
func (m *Manager) runSession(ctx context.Context, stationID uuid.UUID, cmd StationCommand, source *capture.FFmpegSource) {
	defer func() {
		m.mu.Lock()
		delete(m.sessions, cmd.StationID)
		m.mu.Unlock()
		observability.ActiveSessions.Dec()
		slog.Info("scan station stopped", "station_id", cmd.StationID)
	}()

	var saver SnapshotSaver
	if m.objects != nil {
		saver = &objectSnapshotSaver{store: m.objects}
	}

	controller := NewController(ControllerConfig{
		StationID: stationID,
		Interval:  m.cfg.Interval,
		Cooldown:  m.cfg.Cooldown,
		Threshold: float32(m.vcfg.MatchThreshold),
	}, source, &extractorAdapter{m.extractor}, m.gallery, m.submitter, m.events, saver)

	const maxRetries = 3
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(1<<uint(attempt)) * time.Second // 2s, 4s, 8s
			slog.Warn("restarting camera capture",
				"station_id", cmd.StationID, "attempt", attempt, "delay", delay)
			select {
			case <-ctx.Done():
				m.updateStatus(stationID, models.StationStatusStopped, "")
				return
			case <-time.After(delay):
			}
			source = capture.NewFFmpegSource(cmd.CameraURL, cmd.FPS, m.vcfg.FrameWidth)
			controller.grabber = source

			m.mu.Lock()
			if s, ok := m.sessions[cmd.StationID]; ok {
				s.source = source
			}
			m.mu.Unlock()
		}

		if err := source.Start(ctx); err != nil {
			slog.Error("start camera capture",
				"station_id", cmd.StationID, "attempt", attempt, "error", err)
			continue
		}

		m.updateStatus(stationID, models.StationStatusRunning, "")

		err := controller.Run(ctx)
		source.Stop()

		if ctx.Err() != nil {
			m.updateStatus(stationID, models.StationStatusStopped, "")
			return
		}
		slog.Error("scan loop exited",
			"station_id", cmd.StationID, "attempt", attempt, "error", err)
	}

	m.updateStatus(stationID, models.StationStatusError, "camera capture failed after retries")
}

func (m *Manager) stopStation(stationID string) error {
	m.mu.RLock()
	s, exists := m.sessions[stationID]
	m.mu.RUnlock()

	if !exists {
		return nil // already stopped
	}

	s.source.Stop()
	s.cancel()

	slog.Info("stop command applied", "station_id", stationID)
	return nil
}

func (m *Manager) updateStatus(stationID uuid.UUID, status models.StationStatus, errMsg string) {
	if err := m.db.UpdateStationStatus(context.Background(), stationID, status, errMsg); err != nil {
		slog.Error("update station status", "station_id", stationID, "error", err)
	}
}

// ActiveCount returns the number of running stations.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// StopAll stops every running station and the background jobs.
func (m *Manager) StopAll() {
	m.scheduler.Stop()

	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		_ = m.stopStation(id)
	}
}

// extractorAdapter bridges the ONNX extractor to the controller's
// test-friendly interface.
type extractorAdapter struct {
	x *vision.Extractor
}

func (a *extractorAdapter) ExtractAll(img image.Image) ([]Observation, error) {
	found, err := a.x.ExtractAll(img)
	if err != nil {
		return nil, err
	}
	obs := make([]Observation, len(found))
	for i, f := range found {
		obs[i] = Observation{BBox: f.BBox, Confidence: f.Confidence, Embedding: f.Embedding}
	}
	return obs, nil
}

// objectSnapshotSaver stores match snapshots in the shared bucket.
type objectSnapshotSaver struct {
	store *storage.MinIOStore
}

func (s *objectSnapshotSaver) Save(ctx context.Context, stationID uuid.UUID, ts time.Time, frame []byte) (string, error) {
	key := storage.SnapshotKey(stationID, ts)
	if err := s.store.PutObject(ctx, key, frame, "image/jpeg"); err != nil {
		return "", err
	}
	return key, nil
}
