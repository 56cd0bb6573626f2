package vision

import (
	"math"
	"testing"
)

func TestIoU(t *testing.T) {
	tests := []struct {
		name string
		a, b [4]float32
		want float32
	}{
		{"identical", [4]float32{0, 0, 10, 10}, [4]float32{0, 0, 10, 10}, 1},
		{"disjoint", [4]float32{0, 0, 10, 10}, [4]float32{20, 20, 30, 30}, 0},
		{"half overlap", [4]float32{0, 0, 10, 10}, [4]float32{5, 0, 15, 10}, 50.0 / 150.0},
		{"contained", [4]float32{0, 0, 10, 10}, [4]float32{2, 2, 8, 8}, 36.0 / 100.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := iou(tt.a, tt.b)
			if math.Abs(float64(got-tt.want)) > 1e-6 {
				t.Errorf("iou = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSuppressOverlaps(t *testing.T) {
	obs := []Observation{
		{BBox: [4]float32{0, 0, 10, 10}, Confidence: 0.7},
		{BBox: [4]float32{1, 1, 11, 11}, Confidence: 0.9}, // overlaps the first
		{BBox: [4]float32{50, 50, 60, 60}, Confidence: 0.8},
	}

	kept := suppressOverlaps(obs, 0.4)

	if len(kept) != 2 {
		t.Fatalf("kept %d observations, want 2", len(kept))
	}
	// Highest confidence survives and comes first.
	if kept[0].Confidence != 0.9 {
		t.Errorf("kept[0].Confidence = %v, want 0.9", kept[0].Confidence)
	}
	if kept[1].Confidence != 0.8 {
		t.Errorf("kept[1].Confidence = %v, want 0.8", kept[1].Confidence)
	}
}

func TestSuppressOverlapsKeepsDistinctFaces(t *testing.T) {
	obs := []Observation{
		{BBox: [4]float32{0, 0, 10, 10}, Confidence: 0.9},
		{BBox: [4]float32{100, 0, 110, 10}, Confidence: 0.6},
		{BBox: [4]float32{0, 100, 10, 110}, Confidence: 0.5},
	}

	if kept := suppressOverlaps(obs, 0.4); len(kept) != 3 {
		t.Errorf("kept %d observations, want all 3 distinct faces", len(kept))
	}
}

func TestSuppressOverlapsEmpty(t *testing.T) {
	if kept := suppressOverlaps(nil, 0.4); len(kept) != 0 {
		t.Errorf("kept %d observations from empty input", len(kept))
	}
}

func TestClampF(t *testing.T) {
	if got := clampF(-5, 0, 10); got != 0 {
		t.Errorf("clampF(-5) = %v, want 0", got)
	}
	if got := clampF(15, 0, 10); got != 10 {
		t.Errorf("clampF(15) = %v, want 10", got)
	}
	if got := clampF(5, 0, 10); got != 5 {
		t.Errorf("clampF(5) = %v, want 5", got)
	}
}
