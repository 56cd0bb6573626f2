package scan

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/facegate/internal/attendance"
	"github.com/your-org/facegate/internal/capture"
	"github.com/your-org/facegate/internal/gallery"
	"github.com/your-org/facegate/internal/match"
	"github.com/your-org/facegate/internal/models"
	"github.com/your-org/facegate/internal/observability"
)

// FrameGrabber hands out the most recent camera frame.
type FrameGrabber interface {
	Grab() ([]byte, error)
}

// FaceExtractor turns a decoded frame into embedded face observations.
type FaceExtractor interface {
	ExtractAll(img image.Image) ([]Observation, error)
}

// Observation mirrors vision.Observation without importing ONNX-backed
// code into the controller, so tests can feed synthetic faces.
type Observation struct {
	BBox       [4]float32
	Confidence float32
	Embedding  []float32
}

// SnapshotProvider yields the current gallery snapshot. A cycle matches
// every face against the same snapshot.
type SnapshotProvider interface {
	Snapshot() *gallery.Snapshot
}

// AttendanceSubmitter records a recognized identity's attendance.
type AttendanceSubmitter interface {
	Submit(ctx context.Context, identityID uuid.UUID, stationID uuid.UUID, ts time.Time) (attendance.Result, error)
}

// EventSink receives match and attendance events for fan-out. Satisfied by
// *queue.Producer.
type EventSink interface {
	PublishMatch(ctx context.Context, stationID string, data interface{}) error
	PublishAttendance(ctx context.Context, identityID string, data interface{}) error
}

// SnapshotSaver stores the frame crop that produced a match. May be nil.
type SnapshotSaver interface {
	Save(ctx context.Context, stationID uuid.UUID, ts time.Time, frame []byte) (string, error)
}

// Controller runs the scan loop for one station: every tick it grabs a
// frame, extracts faces, matches them against the gallery snapshot, and
// submits attendance for recognized identities. After a submission is
// accepted the controller cools down so one person standing in front of
// the camera produces one transition, not twenty.
type Controller struct {
	stationID uuid.UUID
	grabber   FrameGrabber
	extractor FaceExtractor
	snapshots SnapshotProvider
	submitter AttendanceSubmitter
	events    EventSink
	saver     SnapshotSaver

	interval  time.Duration
	cooldown  time.Duration
	threshold float32

	now           func() time.Time
	cooldownUntil time.Time
}

type ControllerConfig struct {
	StationID uuid.UUID
	Interval  time.Duration
	Cooldown  time.Duration
	Threshold float32
}

func NewController(cfg ControllerConfig, grabber FrameGrabber, extractor FaceExtractor,
	snapshots SnapshotProvider, submitter AttendanceSubmitter, events EventSink, saver SnapshotSaver) *Controller {
	if cfg.Interval <= 0 {
		cfg.Interval = 500 * time.Millisecond
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 10 * time.Second
	}
	return &Controller{
		stationID: cfg.StationID,
		grabber:   grabber,
		extractor: extractor,
		snapshots: snapshots,
		submitter: submitter,
		events:    events,
		saver:     saver,
		interval:  cfg.Interval,
		cooldown:  cfg.Cooldown,
		threshold: cfg.Threshold,
		now:       time.Now,
	}
}

// Run drives the scan loop until the context is cancelled. Cycles run
// inline on the ticker goroutine: a slow cycle delays the next tick rather
// than overlapping it.
func (c *Controller) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	slog.Info("scan loop started",
		"station_id", c.stationID,
		"interval", c.interval,
		"cooldown", c.cooldown,
	)

	for {
		select {
		case <-ctx.Done():
			slog.Info("scan loop stopped", "station_id", c.stationID)
			return ctx.Err()
		case <-ticker.C:
			if err := c.Cycle(ctx); err != nil {
				slog.Warn("scan cycle error", "station_id", c.stationID, "error", err)
			}
		}
	}
}

// Cycle performs one scan pass. Per-frame failures are returned to the
// caller for logging; the loop carries on regardless. During cooldown the
// cycle is a no-op.
func (c *Controller) Cycle(ctx context.Context) error {
	ts := c.now()
	if ts.Before(c.cooldownUntil) {
		return nil
	}

	observability.ScanCycles.WithLabelValues(c.stationID.String()).Inc()

	frame, err := c.grabber.Grab()
	if err != nil {
		if errors.Is(err, capture.ErrNoFrame) {
			return nil
		}
		return fmt.Errorf("grab frame: %w", err)
	}

	img, _, err := image.Decode(bytes.NewReader(frame))
	if err != nil {
		return fmt.Errorf("decode frame: %w", err)
	}

	observations, err := c.extractor.ExtractAll(img)
	if err != nil {
		return fmt.Errorf("extract faces: %w", err)
	}
	if len(observations) == 0 {
		return nil
	}

	observability.FacesDetected.WithLabelValues(c.stationID.String()).Add(float64(len(observations)))

	snap := c.snapshots.Snapshot()

	accepted := false
	for _, obs := range observations {
		result := match.Classify(obs.Embedding, snap, c.threshold)

		ev := models.MatchEvent{
			StationID: c.stationID,
			Timestamp: ts,
			BBox:      obs.BBox,
			Label:     result.Label,
			Distance:  result.Distance,
		}

		if !result.Known() {
			observability.MatchResults.WithLabelValues(c.stationID.String(), "unknown").Inc()
			c.publishMatch(ctx, ev)
			continue
		}

		observability.MatchResults.WithLabelValues(c.stationID.String(), "known").Inc()
		ev.IdentityID = result.IdentityID

		if c.saver != nil {
			key, err := c.saver.Save(ctx, c.stationID, ts, frame)
			if err != nil {
				slog.Warn("save match snapshot", "station_id", c.stationID, "error", err)
			} else {
				ev.SnapshotKey = key
			}
		}
		c.publishMatch(ctx, ev)

		res, err := c.submitter.Submit(ctx, *result.IdentityID, c.stationID, ts)
		if err != nil {
			slog.Warn("submit attendance",
				"station_id", c.stationID,
				"identity_id", result.IdentityID,
				"error", err,
			)
			continue
		}

		stationID := c.stationID
		c.publishAttendance(ctx, models.AttendanceEvent{
			IdentityID: *result.IdentityID,
			StationID:  &stationID,
			Timestamp:  ts,
			Result:     string(res.Outcome),
			Reason:     res.Reason,
		})
		// Any acknowledged submission ends the cycle's urgency: the day
		// record is settled (created, completed, or already terminal),
		// so re-scanning the same face within the cooldown buys nothing.
		accepted = true
	}

	if accepted {
		c.cooldownUntil = ts.Add(c.cooldown)
		observability.CooldownsEntered.WithLabelValues(c.stationID.String()).Inc()
	}

	return nil
}

func (c *Controller) publishMatch(ctx context.Context, ev models.MatchEvent) {
	if c.events == nil {
		return
	}
	if err := c.events.PublishMatch(ctx, c.stationID.String(), ev); err != nil {
		slog.Warn("publish match event", "station_id", c.stationID, "error", err)
	}
}

func (c *Controller) publishAttendance(ctx context.Context, ev models.AttendanceEvent) {
	if c.events == nil {
		return
	}
	if err := c.events.PublishAttendance(ctx, ev.IdentityID.String(), ev); err != nil {
		slog.Warn("publish attendance event", "station_id", c.stationID, "error", err)
	}
}
