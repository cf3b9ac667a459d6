package collab

import (
	"context"
	"errors"
	"testing"

	"realtime-notes/core"
	"realtime-notes/stores/memory"
)

func TestOracleAccessResolution(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	note := &core.Note{
		Title: "plan",
		Owner: "alice",
		SharedWith: []core.ShareEntry{
			{Subject: "bob", Role: core.RoleEditor},
			{Subject: "carol", Role: core.RoleViewer},
		},
	}
	id, err := store.CreateNote(ctx, note)
	if err != nil {
		t.Fatalf("CreateNote() failed: %v", err)
	}

	oracle := NewOracle(store)

	cases := []struct {
		subject string
		isOwner bool
		canEdit bool
		canView bool
	}{
		{"alice", true, true, true},
		{"bob", false, true, true},
		{"carol", false, false, true},
		{"mallory", false, false, false},
	}
	for _, tc := range cases {
		access, err := oracle.Access(ctx, id, tc.subject)
		if err != nil {
			t.Fatalf("Access(%s) failed: %v", tc.subject, err)
		}
		if access.IsOwner != tc.isOwner || access.CanEdit() != tc.canEdit || access.CanView() != tc.canView {
			t.Errorf("Access(%s) = %+v, want owner=%v edit=%v view=%v",
				tc.subject, access, tc.isOwner, tc.canEdit, tc.canView)
		}
	}
}

func TestOracleSnapshotAndApplyEdit(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	id, err := store.CreateNote(ctx, &core.Note{Owner: "alice", Content: "v1"})
	if err != nil {
		t.Fatalf("CreateNote() failed: %v", err)
	}

	oracle := NewOracle(store)

	content, err := oracle.Snapshot(ctx, id)
	if err != nil {
		t.Fatalf("Snapshot() failed: %v", err)
	}
	if content != "v1" {
		t.Errorf("Snapshot() = %q, want %q", content, "v1")
	}

	if err := oracle.ApplyEdit(ctx, id, "v2"); err != nil {
		t.Fatalf("ApplyEdit() failed: %v", err)
	}
	content, err = oracle.Snapshot(ctx, id)
	if err != nil {
		t.Fatalf("Snapshot() after edit failed: %v", err)
	}
	if content != "v2" {
		t.Errorf("Snapshot() after edit = %q, want %q", content, "v2")
	}
}

func TestOracleTreatsDeletedAsMissing(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	id, err := store.CreateNote(ctx, &core.Note{Owner: "alice", Content: "v1"})
	if err != nil {
		t.Fatalf("CreateNote() failed: %v", err)
	}
	note, err := store.GetNote(ctx, id)
	if err != nil {
		t.Fatalf("GetNote() failed: %v", err)
	}
	note.Deleted = true
	if err := store.SaveNote(ctx, note); err != nil {
		t.Fatalf("SaveNote() failed: %v", err)
	}

	oracle := NewOracle(store)

	if _, err := oracle.Access(ctx, id, "alice"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Access() on deleted note = %v, want ErrNotFound", err)
	}
	if _, err := oracle.Snapshot(ctx, id); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Snapshot() on deleted note = %v, want ErrNotFound", err)
	}
	if err := oracle.ApplyEdit(ctx, id, "v2"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("ApplyEdit() on deleted note = %v, want ErrNotFound", err)
	}
}

func TestOracleMissingNote(t *testing.T) {
	oracle := NewOracle(memory.NewStore())

	if _, err := oracle.Access(context.Background(), "nope", "alice"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Access() on missing note = %v, want ErrNotFound", err)
	}
}
