package gallery

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/facegate/internal/observability"
)

// Entry is one enrolled embedding, labeled with its identity. Entries keep
// enrollment order so matching is deterministic when distances tie.
type Entry struct {
	RecordID   uuid.UUID
	IdentityID uuid.UUID
	Label      string
	Embedding  []float32
}

// Snapshot is an immutable view of the gallery at load time. New enrollments
// are not visible until the next Refresh; callers accept that staleness
// window.
type Snapshot struct {
	Entries  []Entry
	Dim      int
	LoadedAt time.Time
}

// Lister fetches all enrolled face records joined with identity labels,
// ordered by enrollment time.
type Lister interface {
	ListGalleryEntries(ctx context.Context) ([]Entry, error)
}

// Gallery holds the current snapshot and reloads it on demand.
type Gallery struct {
	lister Lister

	mu   sync.RWMutex
	snap *Snapshot
}

func New(lister Lister) *Gallery {
	return &Gallery{lister: lister}
}

// Refresh loads a fresh snapshot from storage, replacing the current one.
// All embeddings must share one dimension; a mixed gallery means enrollment
// ran against a different model and is refused outright.
func (g *Gallery) Refresh(ctx context.Context) (*Snapshot, error) {
	entries, err := g.lister.ListGalleryEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("load gallery: %w", err)
	}

	dim := 0
	for i, e := range entries {
		if len(e.Embedding) == 0 {
			return nil, fmt.Errorf("gallery entry %s: empty embedding", e.RecordID)
		}
		if i == 0 {
			dim = len(e.Embedding)
			continue
		}
		if len(e.Embedding) != dim {
			return nil, fmt.Errorf("gallery entry %s: embedding dim %d, expected %d",
				e.RecordID, len(e.Embedding), dim)
		}
	}

	snap := &Snapshot{
		Entries:  entries,
		Dim:      dim,
		LoadedAt: time.Now(),
	}

	g.mu.Lock()
	g.snap = snap
	g.mu.Unlock()

	observability.GallerySize.Set(float64(len(entries)))
	observability.GalleryRefreshes.Inc()
	slog.Info("gallery refreshed", "entries", len(entries), "dim", dim)

	return snap, nil
}

// Snapshot returns the last loaded snapshot, or nil if Refresh has never
// succeeded.
func (g *Gallery) Snapshot() *Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.snap
}
