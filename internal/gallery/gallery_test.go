package gallery

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
)

type fakeLister struct {
	entries []Entry
	err     error
}

func (l *fakeLister) ListGalleryEntries(context.Context) ([]Entry, error) {
	return l.entries, l.err
}

func entryWith(label string, embedding []float32) Entry {
	return Entry{
		RecordID:   uuid.New(),
		IdentityID: uuid.New(),
		Label:      label,
		Embedding:  embedding,
	}
}

func TestRefreshLoadsSnapshot(t *testing.T) {
	lister := &fakeLister{entries: []Entry{
		entryWith("alice", []float32{1, 0, 0}),
		entryWith("bob", []float32{0, 1, 0}),
	}}
	g := New(lister)

	snap, err := g.Refresh(context.Background())
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}

	if len(snap.Entries) != 2 {
		t.Errorf("entries = %d, want 2", len(snap.Entries))
	}
	if snap.Dim != 3 {
		t.Errorf("dim = %d, want 3", snap.Dim)
	}
	if snap.LoadedAt.IsZero() {
		t.Error("LoadedAt not set")
	}
	if got := g.Snapshot(); got != snap {
		t.Error("Snapshot() does not return the refreshed snapshot")
	}
}

func TestRefreshPreservesEnrollmentOrder(t *testing.T) {
	first := entryWith("first", []float32{1, 0})
	second := entryWith("second", []float32{0, 1})
	g := New(&fakeLister{entries: []Entry{first, second}})

	snap, err := g.Refresh(context.Background())
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}

	if snap.Entries[0].RecordID != first.RecordID || snap.Entries[1].RecordID != second.RecordID {
		t.Error("snapshot reordered entries")
	}
}

func TestRefreshRejectsMixedDimensions(t *testing.T) {
	g := New(&fakeLister{entries: []Entry{
		entryWith("alice", []float32{1, 0, 0}),
		entryWith("bob", []float32{0, 1}),
	}})

	if _, err := g.Refresh(context.Background()); err == nil {
		t.Fatal("expected an error for mixed embedding dimensions")
	}
	if g.Snapshot() != nil {
		t.Error("failed refresh must not install a snapshot")
	}
}

func TestRefreshRejectsEmptyEmbedding(t *testing.T) {
	g := New(&fakeLister{entries: []Entry{entryWith("alice", nil)}})

	if _, err := g.Refresh(context.Background()); err == nil {
		t.Fatal("expected an error for an empty embedding")
	}
}

func TestRefreshFailureKeepsPreviousSnapshot(t *testing.T) {
	lister := &fakeLister{entries: []Entry{entryWith("alice", []float32{1, 0})}}
	g := New(lister)

	snap, err := g.Refresh(context.Background())
	if err != nil {
		t.Fatalf("initial refresh: %v", err)
	}

	lister.err = errors.New("db down")
	if _, err := g.Refresh(context.Background()); err == nil {
		t.Fatal("expected refresh to fail")
	}

	if g.Snapshot() != snap {
		t.Error("failed refresh must keep serving the previous snapshot")
	}
}

func TestRefreshEmptyGalleryIsValid(t *testing.T) {
	g := New(&fakeLister{})

	snap, err := g.Refresh(context.Background())
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if len(snap.Entries) != 0 {
		t.Errorf("entries = %d, want 0", len(snap.Entries))
	}
}
