package match

import (
	"math"

	"github.com/google/uuid"

	"github.com/your-org/facegate/internal/gallery"
)

// UnknownLabel classifies a query that clears no gallery entry.
const UnknownLabel = "unknown"

// Result is the outcome of classifying one query embedding. It lives for
// one scan cycle and is never persisted.
type Result struct {
	IdentityID *uuid.UUID
	Label      string
	Distance   float32
	BBox       [4]float32
}

// Known reports whether the query was accepted as an enrolled identity.
func (r Result) Known() bool {
	return r.IdentityID != nil
}

// Classify finds the closest enrolled identity for a query embedding.
//
// Every gallery embedding is compared by Euclidean distance; an identity
// with several enrollments is represented by its closest one. The winning
// identity is accepted only if its distance is at or below threshold,
// otherwise the result is unknown. When two identities are exactly
// equidistant the one enrolled first wins: snapshot entries keep enrollment
// order and only a strictly smaller distance displaces the current best.
func Classify(query []float32, snap *gallery.Snapshot, threshold float32) Result {
	unknown := Result{Label: UnknownLabel, Distance: float32(math.Inf(1))}

	if snap == nil || len(snap.Entries) == 0 || len(query) != snap.Dim {
		return unknown
	}

	best := -1
	bestDist := float32(math.Inf(1))
	for i := range snap.Entries {
		d := EuclideanDistance(query, snap.Entries[i].Embedding)
		if d < bestDist {
			bestDist = d
			best = i
		}
	}

	if best < 0 || bestDist > threshold {
		unknown.Distance = bestDist
		return unknown
	}

	id := snap.Entries[best].IdentityID
	return Result{
		IdentityID: &id,
		Label:      snap.Entries[best].Label,
		Distance:   bestDist,
	}
}

// EuclideanDistance computes the L2 distance between two equal-length
// vectors. Accumulation is in float64 to keep 512-D sums stable.
func EuclideanDistance(a, b []float32) float32 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return float32(math.Sqrt(sum))
}
