package scan

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/facegate/internal/attendance"
	"github.com/your-org/facegate/internal/gallery"
)

func testFrame(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.RGBA{R: 128, G: 128, B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode test frame: %v", err)
	}
	return buf.Bytes()
}

type fakeGrabber struct {
	frame []byte
	err   error
	calls int
}

func (g *fakeGrabber) Grab() ([]byte, error) {
	g.calls++
	return g.frame, g.err
}

type fakeExtractor struct {
	observations []Observation
	err          error
}

func (e *fakeExtractor) ExtractAll(image.Image) ([]Observation, error) {
	return e.observations, e.err
}

type fakeSnapshots struct {
	snap *gallery.Snapshot
}

func (s *fakeSnapshots) Snapshot() *gallery.Snapshot { return s.snap }

type fakeSubmitter struct {
	mu     sync.Mutex
	result attendance.Result
	err    error
	calls  int
	lastID uuid.UUID
	lastTS time.Time
}

func (s *fakeSubmitter) Submit(_ context.Context, identityID, _ uuid.UUID, ts time.Time) (attendance.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.lastID = identityID
	s.lastTS = ts
	return s.result, s.err
}

type fakeSink struct {
	mu          sync.Mutex
	matches     int
	attendances int
}

func (s *fakeSink) PublishMatch(context.Context, string, interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.matches++
	return nil
}

func (s *fakeSink) PublishAttendance(context.Context, string, interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attendances++
	return nil
}

func gallerySnapshot(label string, embedding []float32) (*gallery.Snapshot, uuid.UUID) {
	identityID := uuid.New()
	return &gallery.Snapshot{
		Entries: []gallery.Entry{{
			RecordID:   uuid.New(),
			IdentityID: identityID,
			Label:      label,
			Embedding:  embedding,
		}},
		Dim:      len(embedding),
		LoadedAt: time.Now(),
	}, identityID
}

func newTestController(t *testing.T, extractor FaceExtractor, snap *gallery.Snapshot,
	submitter AttendanceSubmitter, sink EventSink) (*Controller, *fakeGrabber) {
	t.Helper()
	grabber := &fakeGrabber{frame: testFrame(t)}
	c := NewController(ControllerConfig{
		StationID: uuid.New(),
		Interval:  time.Millisecond,
		Cooldown:  10 * time.Second,
		Threshold: 0.5,
	}, grabber, extractor, &fakeSnapshots{snap: snap}, submitter, sink, nil)
	return c, grabber
}

func TestCycleSubmitsKnownFaceAndEntersCooldown(t *testing.T) {
	snap, identityID := gallerySnapshot("alice", []float32{1, 0, 0})
	extractor := &fakeExtractor{observations: []Observation{
		{BBox: [4]float32{0, 0, 2, 2}, Confidence: 0.9, Embedding: []float32{1, 0, 0}},
	}}
	submitter := &fakeSubmitter{result: attendance.Result{Outcome: attendance.OutcomeCreated}}
	sink := &fakeSink{}

	c, grabber := newTestController(t, extractor, snap, submitter, sink)

	base := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	now := base
	c.now = func() time.Time { return now }

	if err := c.Cycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}

	if submitter.calls != 1 {
		t.Fatalf("submitter calls = %d, want 1", submitter.calls)
	}
	if submitter.lastID != identityID {
		t.Errorf("submitted identity %s, want %s", submitter.lastID, identityID)
	}
	if sink.matches != 1 || sink.attendances != 1 {
		t.Errorf("events = %d match / %d attendance, want 1/1", sink.matches, sink.attendances)
	}

	// Cycles inside the cooldown window must not even grab a frame.
	grabsBefore := grabber.calls
	now = base.Add(5 * time.Second)
	if err := c.Cycle(context.Background()); err != nil {
		t.Fatalf("cooldown cycle: %v", err)
	}
	if grabber.calls != grabsBefore {
		t.Errorf("cooldown cycle grabbed a frame")
	}
	if submitter.calls != 1 {
		t.Errorf("submitter calls during cooldown = %d, want 1", submitter.calls)
	}

	// After the cooldown expires scanning resumes.
	now = base.Add(11 * time.Second)
	if err := c.Cycle(context.Background()); err != nil {
		t.Fatalf("post-cooldown cycle: %v", err)
	}
	if submitter.calls != 2 {
		t.Errorf("submitter calls after cooldown = %d, want 2", submitter.calls)
	}
}

func TestCycleUnknownFaceNoSubmissionNoCooldown(t *testing.T) {
	snap, _ := gallerySnapshot("alice", []float32{1, 0, 0})
	extractor := &fakeExtractor{observations: []Observation{
		{Embedding: []float32{0, 0, 1}}, // far from the gallery entry
	}}
	submitter := &fakeSubmitter{}
	sink := &fakeSink{}

	c, _ := newTestController(t, extractor, snap, submitter, sink)

	if err := c.Cycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}

	if submitter.calls != 0 {
		t.Errorf("unknown face must not submit attendance, calls = %d", submitter.calls)
	}
	if sink.matches != 1 {
		t.Errorf("unknown match events = %d, want 1", sink.matches)
	}
	if !c.cooldownUntil.IsZero() {
		t.Error("unknown face must not trigger cooldown")
	}

	// The next cycle scans again immediately.
	if err := c.Cycle(context.Background()); err != nil {
		t.Fatalf("second cycle: %v", err)
	}
	if sink.matches != 2 {
		t.Errorf("second cycle match events = %d, want 2", sink.matches)
	}
}

func TestCycleSubmissionErrorSkipsCooldown(t *testing.T) {
	snap, _ := gallerySnapshot("alice", []float32{1, 0, 0})
	extractor := &fakeExtractor{observations: []Observation{
		{Embedding: []float32{1, 0, 0}},
	}}
	submitter := &fakeSubmitter{err: errors.New("api unreachable")}

	c, _ := newTestController(t, extractor, snap, submitter, &fakeSink{})

	if err := c.Cycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}

	if !c.cooldownUntil.IsZero() {
		t.Error("failed submission must not enter cooldown; the next cycle should retry")
	}
}

func TestCycleErrorsAreIsolated(t *testing.T) {
	snap, _ := gallerySnapshot("alice", []float32{1, 0, 0})

	t.Run("grab failure", func(t *testing.T) {
		c, grabber := newTestController(t, &fakeExtractor{}, snap, &fakeSubmitter{}, &fakeSink{})
		grabber.err = errors.New("camera gone")
		if err := c.Cycle(context.Background()); err == nil {
			t.Fatal("expected grab error to surface")
		}
		// The controller stays usable.
		grabber.err = nil
		if err := c.Cycle(context.Background()); err != nil {
			t.Fatalf("recovery cycle: %v", err)
		}
	})

	t.Run("extract failure", func(t *testing.T) {
		extractor := &fakeExtractor{err: errors.New("inference failed")}
		c, _ := newTestController(t, extractor, snap, &fakeSubmitter{}, &fakeSink{})
		if err := c.Cycle(context.Background()); err == nil {
			t.Fatal("expected extract error to surface")
		}
		extractor.err = nil
		if err := c.Cycle(context.Background()); err != nil {
			t.Fatalf("recovery cycle: %v", err)
		}
	})

	t.Run("undecodable frame", func(t *testing.T) {
		c, grabber := newTestController(t, &fakeExtractor{}, snap, &fakeSubmitter{}, &fakeSink{})
		grabber.frame = []byte{0x00, 0x01, 0x02}
		if err := c.Cycle(context.Background()); err == nil {
			t.Fatal("expected decode error to surface")
		}
	})
}

func TestRunStopsOnCancel(t *testing.T) {
	snap, _ := gallerySnapshot("alice", []float32{1, 0, 0})
	c, _ := newTestController(t, &fakeExtractor{}, snap, &fakeSubmitter{}, &fakeSink{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}

func TestCycleMultipleFacesProcessedIndependently(t *testing.T) {
	identityA := uuid.New()
	identityB := uuid.New()
	snap := &gallery.Snapshot{
		Entries: []gallery.Entry{
			{RecordID: uuid.New(), IdentityID: identityA, Label: "alice", Embedding: []float32{1, 0, 0}},
			{RecordID: uuid.New(), IdentityID: identityB, Label: "bob", Embedding: []float32{0, 1, 0}},
		},
		Dim:      3,
		LoadedAt: time.Now(),
	}
	extractor := &fakeExtractor{observations: []Observation{
		{Embedding: []float32{1, 0, 0}},
		{Embedding: []float32{0, 1, 0}},
		{Embedding: []float32{0, 0, 1}}, // unknown
	}}
	submitter := &fakeSubmitter{result: attendance.Result{Outcome: attendance.OutcomeCreated}}
	sink := &fakeSink{}

	c, _ := newTestController(t, extractor, snap, submitter, sink)

	if err := c.Cycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}

	if submitter.calls != 2 {
		t.Errorf("submitter calls = %d, want 2 (one per known face)", submitter.calls)
	}
	if sink.matches != 3 {
		t.Errorf("match events = %d, want 3 (including the unknown)", sink.matches)
	}
}
