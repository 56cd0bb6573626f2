package match

import (
	"math"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/facegate/internal/gallery"
)

func snapshotOf(entries ...gallery.Entry) *gallery.Snapshot {
	dim := 0
	if len(entries) > 0 {
		dim = len(entries[0].Embedding)
	}
	return &gallery.Snapshot{Entries: entries, Dim: dim, LoadedAt: time.Now()}
}

func entry(label string, embedding []float32) gallery.Entry {
	return gallery.Entry{
		RecordID:   uuid.New(),
		IdentityID: uuid.New(),
		Label:      label,
		Embedding:  embedding,
	}
}

func TestEuclideanDistance(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float32
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 0},
		{"unit apart", []float32{0, 0}, []float32{1, 0}, 1},
		{"pythagorean", []float32{0, 0}, []float32{3, 4}, 5},
		{"negative components", []float32{-1, -1}, []float32{1, 1}, float32(math.Sqrt(8))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EuclideanDistance(tt.a, tt.b)
			if math.Abs(float64(got-tt.want)) > 1e-6 {
				t.Errorf("EuclideanDistance(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestClassifyAcceptsWithinThreshold(t *testing.T) {
	alice := entry("alice", []float32{1, 0, 0})
	bob := entry("bob", []float32{0, 1, 0})
	snap := snapshotOf(alice, bob)

	res := Classify([]float32{0.95, 0.05, 0}, snap, 0.5)

	if !res.Known() {
		t.Fatalf("expected a known result, got %+v", res)
	}
	if res.Label != "alice" {
		t.Errorf("matched %q, want alice", res.Label)
	}
	if *res.IdentityID != alice.IdentityID {
		t.Errorf("identity = %s, want %s", res.IdentityID, alice.IdentityID)
	}
}

func TestClassifyUnknownBeyondThreshold(t *testing.T) {
	snap := snapshotOf(entry("alice", []float32{1, 0, 0}))

	res := Classify([]float32{0, 0, 1}, snap, 0.5)

	if res.Known() {
		t.Fatalf("expected unknown, got %+v", res)
	}
	if res.Label != UnknownLabel {
		t.Errorf("label = %q, want %q", res.Label, UnknownLabel)
	}
	// The nearest distance is still reported for observability.
	want := float32(math.Sqrt2)
	if math.Abs(float64(res.Distance-want)) > 1e-6 {
		t.Errorf("distance = %v, want %v", res.Distance, want)
	}
}

func TestClassifyExactThresholdAccepted(t *testing.T) {
	snap := snapshotOf(entry("alice", []float32{1, 0}))

	// Distance is exactly 1.0; at-threshold must be accepted.
	res := Classify([]float32{1, 1}, snap, 1.0)

	if !res.Known() {
		t.Fatalf("distance equal to threshold should match, got %+v", res)
	}
}

func TestClassifyPicksClosestEnrollmentPerIdentity(t *testing.T) {
	identityID := uuid.New()
	far := gallery.Entry{RecordID: uuid.New(), IdentityID: identityID, Label: "alice", Embedding: []float32{0, 1}}
	near := gallery.Entry{RecordID: uuid.New(), IdentityID: identityID, Label: "alice", Embedding: []float32{1, 0}}
	snap := snapshotOf(far, near)

	res := Classify([]float32{0.9, 0}, snap, 0.5)

	if !res.Known() {
		t.Fatalf("expected match via closest enrollment, got %+v", res)
	}
	if math.Abs(float64(res.Distance-0.1)) > 1e-6 {
		t.Errorf("distance = %v, want 0.1 (the nearer enrollment)", res.Distance)
	}
}

func TestClassifyTieKeepsEarlierEnrollment(t *testing.T) {
	first := entry("first", []float32{1, 0})
	second := entry("second", []float32{-1, 0})
	snap := snapshotOf(first, second)

	// The query is equidistant from both entries.
	res := Classify([]float32{0, 1}, snap, 2.0)

	if !res.Known() {
		t.Fatalf("expected a match, got %+v", res)
	}
	if res.Label != "first" {
		t.Errorf("tie resolved to %q, want the earlier enrollment \"first\"", res.Label)
	}
}

func TestClassifyDegenerateInputs(t *testing.T) {
	snap := snapshotOf(entry("alice", []float32{1, 0, 0}))

	tests := []struct {
		name  string
		query []float32
		snap  *gallery.Snapshot
	}{
		{"nil snapshot", []float32{1, 0, 0}, nil},
		{"empty snapshot", []float32{1, 0, 0}, snapshotOf()},
		{"dim mismatch", []float32{1, 0}, snap},
		{"nil query", nil, snap},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Classify(tt.query, tt.snap, 0.5)
			if res.Known() {
				t.Errorf("expected unknown, got %+v", res)
			}
			if res.Label != UnknownLabel {
				t.Errorf("label = %q, want %q", res.Label, UnknownLabel)
			}
		})
	}
}
